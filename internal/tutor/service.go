// Package tutor grades free-text answers and keeps the conversation for each
// task.
package tutor

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/reverba/api/internal/limiter"
	"github.com/reverba/api/internal/llm"
	"github.com/reverba/api/internal/logger"
	"github.com/reverba/api/internal/metrics"
	"github.com/reverba/api/internal/model"
	"github.com/reverba/api/internal/task"
)

const (
	defaultTimeout      = 30 * time.Second
	defaultRetryBackoff = 2 * time.Second
	evaluateAttempts    = 2
	maxResponseLength   = 4000
)

type Store interface {
	GetTask(ctx context.Context, taskID string) (*model.TaskItem, *model.DailyTaskBatch, error)
	GetWord(ctx context.Context, wordID string) (*model.Word, error)
	GetChat(ctx context.Context, chatID string) (*model.TutorChat, error)
	SaveChat(ctx context.Context, chat *model.TutorChat) error
}

type Grader interface {
	Evaluate(ctx context.Context, w model.Word, taskType model.TaskType, response string, priorFailures int) (*llm.Evaluation, error)
}

type RateLimiter interface {
	Check(ctx context.Context, clientID, action string) (*limiter.CheckResult, error)
}

type Options struct {
	Timeout      time.Duration
	RetryBackoff time.Duration
}

type Service struct {
	store   Store
	grader  Grader
	limiter RateLimiter
	opts    Options
	log     *logger.Logger
}

// NewService creates the tutor. limiter may be nil.
func NewService(store Store, grader Grader, rl RateLimiter, opts Options, log *logger.Logger) *Service {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = defaultRetryBackoff
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Service{store: store, grader: grader, limiter: rl, opts: opts, log: log}
}

type Request struct {
	TaskID       string `json:"taskId" binding:"required"`
	UserResponse string `json:"userResponse" binding:"required"`
}

type Response struct {
	llm.Evaluation
	ChatID string `json:"chatId"`
}

// Evaluate grades one answer for a pending free-text task and appends the
// exchange to the task's chat. It never completes the task.
func (s *Service) Evaluate(ctx context.Context, userID string, req Request) (*Response, error) {
	answer := strings.TrimSpace(req.UserResponse)
	if answer == "" {
		return nil, task.Validationf("userResponse is required")
	}
	if len(answer) > maxResponseLength {
		return nil, task.Validationf("userResponse is longer than %d characters", maxResponseLength)
	}

	if s.limiter != nil {
		res, err := s.limiter.Check(ctx, userID, limiter.ActionEvaluate)
		if err != nil {
			s.log.Warn("rate limiter unavailable", "user_id", userID, "error", err)
		} else if !res.Allowed {
			return nil, task.ErrRateLimited
		}
	}

	item, batch, err := s.store.GetTask(ctx, req.TaskID)
	if err != nil {
		return nil, err
	}
	if batch.UserID != userID {
		return nil, task.ErrNotFound
	}
	if !item.Type.FreeText() || item.ChatID == nil {
		return nil, task.Validationf("%s tasks are not graded by the tutor", item.Type)
	}
	if item.Status != model.TaskStatusPending {
		return nil, task.InvalidStatef("task %s is already completed", item.TaskID)
	}

	word, err := s.store.GetWord(ctx, item.WordID)
	if err != nil {
		return nil, err
	}

	chat, err := s.store.GetChat(ctx, *item.ChatID)
	if errors.Is(err, task.ErrNotFound) {
		chat = &model.TutorChat{
			ID:          *item.ChatID,
			UserID:      userID,
			WordID:      word.ID,
			TaskID:      item.TaskID,
			TaskType:    item.Type,
			FinalResult: model.ChatStatusPending,
		}
	} else if err != nil {
		return nil, err
	}

	history, err := chat.History()
	if err != nil {
		return nil, err
	}

	ev, err := s.grade(ctx, *word, item.Type, answer, chat.FailureCount())
	if err != nil {
		return nil, err
	}

	history = append(history,
		model.ChatMessage{Role: "user", Content: answer},
		model.ChatMessage{Role: "assistant", Content: assistantMessage(ev), Verdict: ev.Result},
	)
	if err := chat.SetHistory(history); err != nil {
		return nil, err
	}
	if err := s.store.SaveChat(ctx, chat); err != nil {
		return nil, err
	}

	return &Response{Evaluation: *ev, ChatID: chat.ID}, nil
}

func (s *Service) grade(ctx context.Context, w model.Word, taskType model.TaskType, answer string, priorFailures int) (*llm.Evaluation, error) {
	var lastErr error
	attempts := 0
	for attempts < evaluateAttempts {
		if attempts > 0 {
			select {
			case <-time.After(s.opts.RetryBackoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		attempts++

		callCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
		start := time.Now()
		ev, err := s.grader.Evaluate(callCtx, w, taskType, answer, priorFailures)
		cancel()
		metrics.RecordLLMCall("evaluate", err == nil, time.Since(start))
		if err == nil {
			return ev, nil
		}
		lastErr = err
		s.log.Debug("evaluation attempt failed", "word_id", w.ID, "attempt", attempts, "error", err)
	}
	return nil, &task.GenerationError{WordID: w.ID, TaskType: string(taskType), Attempts: attempts, Err: lastErr}
}

func assistantMessage(ev *llm.Evaluation) string {
	var b strings.Builder
	b.WriteString(ev.Feedback)
	if ev.Hint != "" {
		b.WriteString("\n\nHint: ")
		b.WriteString(ev.Hint)
	}
	if ev.AnswerRevealed && ev.ExpectedAnswer != "" {
		b.WriteString("\n\nCorrect answer: ")
		b.WriteString(ev.ExpectedAnswer)
	}
	return b.String()
}
