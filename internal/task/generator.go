package task

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/reverba/api/internal/logger"
	"github.com/reverba/api/internal/metrics"
	"github.com/reverba/api/internal/model"
)

const (
	defaultLockTTL  = 10 * time.Minute
	defaultLockWait = 5 * time.Second
	defaultLockPoll = 250 * time.Millisecond
)

// GenerationReport describes one run of GenerateForUser.
type GenerationReport struct {
	Batch *model.DailyTaskBatch
	// Created is false when the batch already existed or the user had no
	// active words (in which case nothing is stored).
	Created    bool
	Rebalanced int64
	// Failures lists words whose task could not be generated. The batch is
	// still stored without them.
	Failures []*GenerationError
}

// Partial reports whether some selected words did not get a task.
func (r *GenerationReport) Partial() bool {
	return len(r.Failures) > 0
}

// GeneratorOptions configures a Generator.
type GeneratorOptions struct {
	LockTTL time.Duration
	// LockWait is how long a caller waits for another run holding the lock
	// before giving up with ErrBusy.
	LockWait time.Duration
	LockPoll time.Duration
}

// Generator runs selection, rebalancing and batch building for one user and
// one date.
type Generator struct {
	store   Store
	builder *Builder
	locker  Locker
	opts    GeneratorOptions
	log     *logger.Logger
	now     func() time.Time
}

// NewGenerator creates a generator. locker may be nil, in which case the
// (user, date) unique key of the batch table is the only guard.
func NewGenerator(store Store, builder *Builder, locker Locker, opts GeneratorOptions, log *logger.Logger) *Generator {
	if opts.LockTTL <= 0 {
		opts.LockTTL = defaultLockTTL
	}
	if opts.LockWait <= 0 {
		opts.LockWait = defaultLockWait
	}
	if opts.LockPoll <= 0 {
		opts.LockPoll = defaultLockPoll
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Generator{
		store:   store,
		builder: builder,
		locker:  locker,
		opts:    opts,
		log:     log,
		now:     time.Now,
	}
}

// LockKey is the lock name for a (user, date) generation run.
func LockKey(userID, date string) string {
	return fmt.Sprintf("gen:%s:%s", userID, date)
}

// GenerateForUser creates the batch for (userID, date) unless one exists, in
// which case the stored batch is returned unchanged. Unselected words are
// rebalanced in the same transaction that stores the batch, so each day's
// rebalance happens exactly once.
func (g *Generator) GenerateForUser(ctx context.Context, userID, date string) (*GenerationReport, error) {
	if _, err := time.Parse(model.DateLayout, date); err != nil {
		return nil, validation("date %q is not YYYY-MM-DD", date)
	}
	log := g.log.With("user_id", userID, "date", date)

	if existing, err := g.existing(ctx, userID, date); err != nil || existing != nil {
		if existing != nil {
			metrics.RecordBatch(metrics.OutcomeExisting)
		}
		return existing, err
	}

	if g.locker != nil {
		unlock, existing, err := g.acquire(ctx, userID, date)
		if err != nil || existing != nil {
			if existing != nil {
				metrics.RecordBatch(metrics.OutcomeExisting)
			}
			return existing, err
		}
		if unlock != nil {
			defer unlock()
		}

		// Another run may have finished between the first check and the lock.
		if existing, err := g.existing(ctx, userID, date); err != nil || existing != nil {
			return existing, err
		}
	}

	words, err := g.store.ListActiveWords(ctx, userID)
	if err != nil {
		metrics.RecordBatch(metrics.OutcomeFailed)
		return nil, err
	}
	if len(words) == 0 {
		metrics.RecordBatch(metrics.OutcomeEmpty)
		return &GenerationReport{Batch: &model.DailyTaskBatch{
			UserID:    userID,
			Date:      date,
			Status:    model.BatchStatusEmpty,
			Skipped:   []model.SkippedTask{},
			Tasks:     []model.TaskItem{},
			CreatedAt: g.now(),
		}}, nil
	}

	sel := Select(words)
	tasks, failures, err := g.builder.Build(ctx, userID, date, sel)
	if err != nil {
		metrics.RecordBatch(metrics.OutcomeFailed)
		return nil, err
	}
	if tasks == nil {
		tasks = []model.TaskItem{}
	}

	batch := &model.DailyTaskBatch{
		UserID:    userID,
		Date:      date,
		Status:    model.BatchStatusComplete,
		Skipped:   skippedTasks(failures),
		Tasks:     tasks,
		CreatedAt: g.now(),
	}
	if len(failures) > 0 {
		batch.Status = model.BatchStatusPartial
	}

	// Words whose MCQ failed stay out of the rebalance: they were chosen for
	// today and keep their tier for tomorrow's attempt.
	unselected := sel.UnselectedIDs()

	var rebalanced int64
	err = g.store.InTx(ctx, func(tx Store) error {
		if err := tx.CreateBatch(ctx, batch); err != nil {
			return err
		}
		n, err := tx.RebalanceWords(ctx, unselected)
		if err != nil {
			return err
		}
		rebalanced = n
		return nil
	})
	if err != nil {
		// A concurrent run may have stored the batch first.
		if existing, gerr := g.existing(ctx, userID, date); gerr == nil && existing != nil {
			log.Info("batch created concurrently, returning stored batch")
			metrics.RecordBatch(metrics.OutcomeExisting)
			return existing, nil
		}
		metrics.RecordBatch(metrics.OutcomeFailed)
		return nil, err
	}

	metrics.RecordBatch(metrics.OutcomeCreated)
	metrics.RecordRebalanced(rebalanced)
	for _, t := range tasks {
		metrics.RecordTaskCreated(string(t.Type))
	}

	log.Info("daily batch created",
		"tasks", len(tasks),
		"rebalanced", rebalanced,
		"failures", len(failures))

	return &GenerationReport{
		Batch:      batch,
		Created:    true,
		Rebalanced: rebalanced,
		Failures:   failures,
	}, nil
}

// acquire takes the (user, date) lock. While another run holds it, acquire
// polls for that run's batch and returns it once stored. It gives up with
// ErrBusy after LockWait. A nil unlock with nil error means the lock backend
// failed and generation continues unguarded.
func (g *Generator) acquire(ctx context.Context, userID, date string) (func(), *GenerationReport, error) {
	key := LockKey(userID, date)
	deadline := time.Now().Add(g.opts.LockWait)

	for {
		unlock, acquired, err := g.locker.TryLock(ctx, key, g.opts.LockTTL)
		if err != nil {
			g.log.Warn("generation lock unavailable, continuing without it",
				"user_id", userID, "date", date, "error", err)
			return nil, nil, nil
		}
		if acquired {
			return unlock, nil, nil
		}

		if !time.Now().Before(deadline) {
			return nil, nil, fmt.Errorf("%w: batch for %s is still being generated", ErrBusy, date)
		}
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-time.After(g.opts.LockPoll):
		}

		existing, err := g.existing(ctx, userID, date)
		if err != nil || existing != nil {
			return nil, existing, err
		}
	}
}

// skippedTasks records generation failures on the batch so clients still
// see them after the batch is re-read.
func skippedTasks(failures []*GenerationError) []model.SkippedTask {
	out := make([]model.SkippedTask, 0, len(failures))
	for _, f := range failures {
		reason := "question could not be generated"
		if errors.Is(f.Err, context.DeadlineExceeded) {
			reason = "question generation timed out"
		}
		out = append(out, model.SkippedTask{
			WordID:   f.WordID,
			Type:     model.TaskType(f.TaskType),
			Attempts: f.Attempts,
			Reason:   reason,
		})
	}
	return out
}

func (g *Generator) existing(ctx context.Context, userID, date string) (*GenerationReport, error) {
	batch, err := g.store.GetBatch(ctx, userID, date)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &GenerationReport{Batch: batch}, nil
}

// Preview runs selection without building or storing anything. It returns the
// selection and the priorities the unselected words would move to.
func (g *Generator) Preview(ctx context.Context, userID string) (Selection, []model.Word, error) {
	words, err := g.store.ListActiveWords(ctx, userID)
	if err != nil {
		return Selection{}, nil, err
	}
	sel := Select(words)
	return sel, Rebalance(sel), nil
}
