package task

import (
	"context"
	"errors"
	"time"

	"github.com/reverba/api/internal/logger"
	"github.com/reverba/api/internal/metrics"
	"github.com/reverba/api/internal/model"
)

// DefaultMasteryThreshold is the number of passed priority-4 tasks that
// masters a word.
const DefaultMasteryThreshold = 3

// Outcome is the word update implied by one task result.
type Outcome struct {
	Patch    model.WordPatch
	Mastered bool
}

// Transition computes the word update for a task result.
//
// PASS resets priority to 1. A PASS on a priority-4 word also counts toward
// mastery, and reaching the threshold masters the word. FAIL sets priority to
// 2 and bumps the failure counter of the task type (MCQ has none).
func Transition(w model.Word, taskType model.TaskType, result model.TaskResult, now time.Time, threshold int) Outcome {
	if threshold <= 0 {
		threshold = DefaultMasteryThreshold
	}

	reviewed := now
	var out Outcome
	out.Patch.LastReviewedAt = &reviewed

	switch result {
	case model.TaskResultPass:
		priority := model.MinPriority
		out.Patch.Priority = &priority

		if w.Priority == model.MaxPriority {
			count := w.MasteryCount + 1
			out.Patch.MasteryCount = &count
			if count >= threshold && w.State != model.WordStateMastered {
				state := model.WordStateMastered
				promoted := now
				out.Patch.State = &state
				out.Patch.LastPromotedAt = &promoted
				out.Mastered = true
			}
		}

	case model.TaskResultFail:
		priority := 2
		out.Patch.Priority = &priority

		if taskType.FreeText() {
			stats := w.FailureStats.Increment(taskType)
			out.Patch.FailureStats = &stats
		}
	}

	return out
}

// CompletionResult is what a successful completion returns.
type CompletionResult struct {
	Batch *model.DailyTaskBatch
	Task  *model.TaskItem
	// Word is nil when the word was deleted before the task was completed.
	Word     *model.Word
	Mastered bool
}

// CompleterOptions configures a Completer.
type CompleterOptions struct {
	MasteryThreshold int
	// Location decides which calendar date is "today" for the caller.
	Location *time.Location
}

// Completer applies task results exactly once.
type Completer struct {
	store Store
	chats ChatRecorder
	opts  CompleterOptions
	log   *logger.Logger
	now   func() time.Time
}

// NewCompleter creates a completer. chats may be nil.
func NewCompleter(store Store, chats ChatRecorder, opts CompleterOptions, log *logger.Logger) *Completer {
	if opts.MasteryThreshold <= 0 {
		opts.MasteryThreshold = DefaultMasteryThreshold
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Completer{
		store: store,
		chats: chats,
		opts:  opts,
		log:   log,
		now:   time.Now,
	}
}

// Complete records result for the task. The task must belong to the user's
// batch for today and still be PENDING. The task status and the word update
// commit together or not at all; a second completion of the same task fails
// with ErrInvalidState and leaves the word as the first one set it.
func (c *Completer) Complete(ctx context.Context, userID, taskID string, result model.TaskResult) (*CompletionResult, error) {
	if !result.Valid() {
		return nil, validation("result must be PASS or FAIL, got %q", result)
	}

	now := c.now()
	today := now.In(c.opts.Location).Format(model.DateLayout)

	var res CompletionResult
	err := c.store.InTx(ctx, func(tx Store) error {
		item, batch, err := tx.GetTask(ctx, taskID)
		if err != nil {
			return err
		}
		if batch.UserID != userID || batch.Date != today {
			return ErrNotFound
		}
		if item.Status != model.TaskStatusPending {
			return invalidState("task %s is already completed", taskID)
		}

		completedAt := now
		r := result
		if err := tx.UpdateTask(ctx, taskID, model.TaskStatusPending, model.TaskPatch{
			Status:      model.TaskStatusCompleted,
			Result:      &r,
			CompletedAt: &completedAt,
		}); err != nil {
			return err
		}

		word, err := tx.GetWord(ctx, item.WordID)
		if errors.Is(err, ErrNotFound) {
			// The word was deleted after the batch was built.
			c.log.Warn("completed task for missing word", "task_id", taskID, "word_id", item.WordID)
			res.Task = item
			return nil
		}
		if err != nil {
			return err
		}

		outcome := Transition(*word, item.Type, result, now, c.opts.MasteryThreshold)
		updated, err := tx.UpdateWord(ctx, word.ID, word.Version, outcome.Patch)
		if err != nil {
			return err
		}

		res.Task = item
		res.Word = updated
		res.Mastered = outcome.Mastered
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordCompletion(string(res.Task.Type), string(result))
	if res.Mastered {
		metrics.RecordMastered()
		c.log.Info("word mastered", "user_id", userID, "word_id", res.Word.ID)
	}

	if c.chats != nil && res.Task.ChatID != nil {
		if err := c.chats.SetChatResult(ctx, *res.Task.ChatID, result); err != nil {
			c.log.Warn("failed to update chat result", "chat_id", *res.Task.ChatID, "error", err)
		}
	}

	batch, err := c.store.GetBatch(ctx, userID, today)
	if err != nil {
		return nil, err
	}
	res.Batch = batch
	res.Task = batch.Task(taskID)
	return &res, nil
}
