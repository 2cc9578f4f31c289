// Package scheduler runs daily batch generation for every active user at a
// fixed local time.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/reverba/api/internal/logger"
	"github.com/reverba/api/internal/metrics"
	"github.com/reverba/api/internal/model"
	"github.com/reverba/api/internal/task"
)

// maxRecordedErrors bounds the error list stored with a run.
const maxRecordedErrors = 50

// Store is the persistence the scheduler needs.
type Store interface {
	ListActiveUserIDs(ctx context.Context) ([]string, error)
	RecordCronRun(ctx context.Context, run *model.CronRun, stats model.CronRunStats) error
}

// Generator creates one user's batch for one date.
type Generator interface {
	GenerateForUser(ctx context.Context, userID, date string) (*task.GenerationReport, error)
}

type Config struct {
	Location    *time.Location
	Hour        int
	Minute      int
	Concurrency int
}

type DailyScheduler struct {
	store     Store
	generator Generator
	cfg       Config
	log       *logger.Logger
	now       func() time.Time

	mu         sync.Mutex
	running    bool
	stopChan   chan struct{}
	lastRun    *model.CronRun
	nextRun    time.Time
	inProgress bool
}

func NewDailyScheduler(store Store, generator Generator, cfg Config, log *logger.Logger) *DailyScheduler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if log == nil {
		log = logger.Nop()
	}
	return &DailyScheduler{
		store:     store,
		generator: generator,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
	}
}

// NextRun returns the first configured run time strictly after t, in the
// scheduler's location.
func (s *DailyScheduler) NextRun(t time.Time) time.Time {
	local := t.In(s.cfg.Location)
	next := time.Date(local.Year(), local.Month(), local.Day(), s.cfg.Hour, s.cfg.Minute, 0, 0, s.cfg.Location)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, s.cfg.Hour, s.cfg.Minute, 0, 0, s.cfg.Location)
	}
	return next
}

// Today is the current calendar date in the scheduler's location.
func (s *DailyScheduler) Today() string {
	return s.now().In(s.cfg.Location).Format(model.DateLayout)
}

// Start blocks until ctx is cancelled or Stop is called, running generation
// once per day at the configured time.
func (s *DailyScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	// A fresh channel per Start lets a stopped scheduler be started again.
	stop := make(chan struct{})
	s.stopChan = stop
	s.mu.Unlock()

	for {
		next := s.NextRun(s.now())
		s.mu.Lock()
		s.nextRun = next
		s.mu.Unlock()

		s.log.Info("scheduler waiting", "next_run", next.Format(time.RFC3339))
		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()
			s.markStopped()
			s.log.Info("scheduler context cancelled, stopping")
			return
		case <-stop:
			timer.Stop()
			s.log.Info("scheduler stop signal received")
			return
		case <-timer.C:
			date := next.Format(model.DateLayout)
			if _, err := s.RunOnce(ctx, date); err != nil {
				s.log.Error("daily generation failed", "date", date, "error", err)
			}
		}
	}
}

func (s *DailyScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		close(s.stopChan)
		s.running = false
		s.log.Info("scheduler stopped")
	}
}

func (s *DailyScheduler) markStopped() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// RunOnce generates date's batch for every active user and records the run.
// Users are processed concurrently; one user's failure does not stop the
// others. The returned error is non-nil only when the run could not start
// or could not be recorded.
func (s *DailyScheduler) RunOnce(ctx context.Context, date string) (*model.CronRun, error) {
	s.mu.Lock()
	if s.inProgress {
		s.mu.Unlock()
		return nil, task.InvalidStatef("generation run already in progress")
	}
	s.inProgress = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.inProgress = false
		s.mu.Unlock()
	}()

	run := &model.CronRun{Date: date, RunAt: s.now()}
	log := s.log.With("date", date)

	userIDs, err := s.store.ListActiveUserIDs(ctx)
	if err != nil {
		run.Status = model.CronRunFailed
		run.FinishedAt = s.now()
		stats := model.CronRunStats{Errors: []string{err.Error()}}
		s.record(ctx, run, stats)
		return run, err
	}

	var (
		mu     sync.Mutex
		stats  model.CronRunStats
		failed int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)

	for _, userID := range userIDs {
		g.Go(func() error {
			report, err := s.generator.GenerateForUser(gctx, userID, date)

			mu.Lock()
			defer mu.Unlock()
			stats.UsersProcessed++
			if err != nil {
				failed++
				addError(&stats, fmt.Sprintf("user %s: %v", userID, err))
				log.Warn("generation failed for user", "user_id", userID, "error", err)
				return nil
			}
			if report.Created {
				stats.BatchesCreated++
				stats.TasksCreated += len(report.Batch.Tasks)
				stats.WordsRebalanced += report.Rebalanced
			}
			for _, f := range report.Failures {
				stats.Warnings++
				addError(&stats, fmt.Sprintf("user %s: %v", userID, f))
			}
			return nil
		})
	}
	_ = g.Wait()

	run.FinishedAt = s.now()
	run.Status = runStatus(len(userIDs), failed, stats.Warnings)
	if err := ctx.Err(); err != nil && run.Status == model.CronRunSuccess {
		run.Status = model.CronRunPartial
	}

	log.Info("daily generation finished",
		"status", run.Status,
		"users", stats.UsersProcessed,
		"batches", stats.BatchesCreated,
		"tasks", stats.TasksCreated,
		"rebalanced", stats.WordsRebalanced,
		"failed", failed)

	if err := s.record(ctx, run, stats); err != nil {
		return run, err
	}
	return run, nil
}

func (s *DailyScheduler) record(ctx context.Context, run *model.CronRun, stats model.CronRunStats) error {
	if stats.Errors == nil {
		stats.Errors = []string{}
	}
	metrics.RecordCronRun(string(run.Status))

	// The run is recorded even when ctx was cancelled mid-run.
	err := s.store.RecordCronRun(context.WithoutCancel(ctx), run, stats)
	if err != nil {
		s.log.Error("failed to record generation run", "date", run.Date, "error", err)
	}

	s.mu.Lock()
	s.lastRun = run
	s.mu.Unlock()
	return err
}

func runStatus(users, failed, warnings int) model.CronRunStatus {
	switch {
	case users > 0 && failed == users:
		return model.CronRunFailed
	case failed > 0 || warnings > 0:
		return model.CronRunPartial
	default:
		return model.CronRunSuccess
	}
}

func addError(stats *model.CronRunStats, msg string) {
	if len(stats.Errors) < maxRecordedErrors {
		stats.Errors = append(stats.Errors, msg)
	}
}

// GetStatus returns current scheduler status
func (s *DailyScheduler) GetStatus() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := map[string]interface{}{
		"running":    s.running,
		"inProgress": s.inProgress,
		"timezone":   s.cfg.Location.String(),
		"runAt":      fmt.Sprintf("%02d:%02d", s.cfg.Hour, s.cfg.Minute),
	}
	if !s.nextRun.IsZero() {
		status["nextRun"] = s.nextRun.Format(time.RFC3339)
	}
	if s.lastRun != nil {
		status["lastRun"] = map[string]interface{}{
			"date":       s.lastRun.Date,
			"status":     s.lastRun.Status,
			"runAt":      s.lastRun.RunAt.Format(time.RFC3339),
			"finishedAt": s.lastRun.FinishedAt.Format(time.RFC3339),
		}
	}
	return status
}
