// Package metrics holds the Prometheus collectors for task generation,
// completion and LLM usage.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	batchesGeneratedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "daily_batches_generated_total",
			Help: "Daily task batch generation outcomes",
		},
		[]string{"outcome"},
	)

	tasksCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "daily_tasks_created_total",
			Help: "Tasks created in daily batches",
		},
		[]string{"type"},
	)

	wordsRebalancedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "words_rebalanced_total",
			Help: "Unselected words whose priority was raised",
		},
	)

	taskCompletionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "task_completions_total",
			Help: "Completed tasks by type and result",
		},
		[]string{"type", "result"},
	)

	wordsMasteredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "words_mastered_total",
			Help: "Words that reached the MASTERED state",
		},
	)

	llmCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_calls_total",
			Help: "Total number of LLM calls",
		},
		[]string{"capability", "status"},
	)

	llmCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_call_duration_seconds",
			Help:    "LLM call duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"capability"},
	)

	cronRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "daily_generation_runs_total",
			Help: "Scheduled generation runs by status",
		},
		[]string{"status"},
	)
)

// Batch generation outcomes.
const (
	OutcomeCreated  = "created"
	OutcomeExisting = "existing"
	OutcomeEmpty    = "empty"
	OutcomeFailed   = "failed"
)

func RecordBatch(outcome string) {
	batchesGeneratedTotal.WithLabelValues(outcome).Inc()
}

func RecordTaskCreated(taskType string) {
	tasksCreatedTotal.WithLabelValues(taskType).Inc()
}

func RecordRebalanced(n int64) {
	if n > 0 {
		wordsRebalancedTotal.Add(float64(n))
	}
}

func RecordCompletion(taskType, result string) {
	taskCompletionsTotal.WithLabelValues(taskType, result).Inc()
}

func RecordMastered() {
	wordsMasteredTotal.Inc()
}

// RecordLLMCall records one call to an LLM-backed capability.
func RecordLLMCall(capability string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	llmCallsTotal.WithLabelValues(capability, status).Inc()
	llmCallDuration.WithLabelValues(capability).Observe(duration.Seconds())
}

func RecordCronRun(status string) {
	cronRunsTotal.WithLabelValues(status).Inc()
}
