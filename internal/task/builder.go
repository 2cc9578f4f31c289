package task

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/reverba/api/internal/logger"
	"github.com/reverba/api/internal/metrics"
	"github.com/reverba/api/internal/model"
)

const (
	defaultGenerateTimeout = 30 * time.Second
	defaultRetryBackoff    = 2 * time.Second
	generateAttempts       = 2
)

// BuilderOptions tunes the calls to the question generator.
type BuilderOptions struct {
	// GenerateTimeout bounds each call to the generator.
	GenerateTimeout time.Duration
	// RetryBackoff is the pause before the single retry.
	RetryBackoff time.Duration
}

// Builder turns a Selection into task items.
type Builder struct {
	mcq    MCQGenerator
	drafts DraftCache
	opts   BuilderOptions
	log    *logger.Logger
	newID  func() string
}

// NewBuilder creates a builder. drafts may be nil.
func NewBuilder(mcq MCQGenerator, drafts DraftCache, opts BuilderOptions, log *logger.Logger) *Builder {
	if opts.GenerateTimeout <= 0 {
		opts.GenerateTimeout = defaultGenerateTimeout
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = defaultRetryBackoff
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Builder{
		mcq:    mcq,
		drafts: drafts,
		opts:   opts,
		log:    log,
		newID:  uuid.NewString,
	}
}

// Build emits one task per selected word in tier order (MEANING, SENTENCE,
// MCQ, PARAGRAPH). Free-text tasks get a fresh chat id; MCQ tasks get a
// question from the generator. A word whose question cannot be generated is
// skipped and reported in the returned errors; the rest of the batch is
// still built. Only a cancelled context aborts the build.
func (b *Builder) Build(ctx context.Context, userID, date string, sel Selection) ([]model.TaskItem, []*GenerationError, error) {
	var (
		tasks    []model.TaskItem
		failures []*GenerationError
	)

	for _, tier := range sel.Tiers {
		for _, w := range tier.Words {
			item := model.TaskItem{
				TaskID:   b.newID(),
				Type:     tier.Tier.Type,
				WordID:   w.ID,
				Status:   model.TaskStatusPending,
				Position: len(tasks),
			}

			if tier.Tier.Type == model.TaskTypeMCQ {
				mcq, gerr := b.questionFor(ctx, userID, date, w)
				if gerr != nil {
					if ctx.Err() != nil {
						return nil, nil, ctx.Err()
					}
					b.log.Warn("skipping mcq task", "user_id", userID, "word_id", w.ID, "error", gerr)
					failures = append(failures, gerr)
					continue
				}
				setMCQ(&item, mcq)
			} else {
				chatID := b.newID()
				item.ChatID = &chatID
			}

			if err := item.Validate(); err != nil {
				failures = append(failures, &GenerationError{
					WordID:   w.ID,
					TaskType: string(item.Type),
					Attempts: 1,
					Err:      err,
				})
				continue
			}
			tasks = append(tasks, item)
		}
	}

	return tasks, failures, nil
}

func setMCQ(item *model.TaskItem, mcq *model.MCQ) {
	question := mcq.Question
	correct := mcq.CorrectOption
	item.Question = &question
	item.CorrectOption = &correct
	item.Options = append(model.StringList(nil), mcq.Options...)
	item.OptionReasons = append(model.StringList(nil), mcq.OptionReasons...)
}

// questionFor returns a cached draft when a previous run already generated
// one for this word and day, and otherwise calls the generator with a
// timeout and a single retry.
func (b *Builder) questionFor(ctx context.Context, userID, date string, w model.Word) (*model.MCQ, *GenerationError) {
	if b.drafts != nil {
		draft, err := b.drafts.GetMCQDraft(ctx, userID, date, w.ID)
		if err != nil {
			b.log.Warn("mcq draft lookup failed", "word_id", w.ID, "error", err)
		} else if draft != nil && draft.Validate() == nil {
			return draft, nil
		}
	}

	var lastErr error
	attempts := 0
	for attempts < generateAttempts {
		if attempts > 0 {
			select {
			case <-time.After(b.opts.RetryBackoff):
			case <-ctx.Done():
				return nil, &GenerationError{WordID: w.ID, TaskType: string(model.TaskTypeMCQ), Attempts: attempts, Err: ctx.Err()}
			}
		}
		attempts++

		start := time.Now()
		mcq, err := b.generateOnce(ctx, w)
		metrics.RecordLLMCall("mcq", err == nil, time.Since(start))
		if err == nil {
			if b.drafts != nil {
				if perr := b.drafts.PutMCQDraft(ctx, userID, date, w.ID, mcq); perr != nil {
					b.log.Warn("mcq draft store failed", "word_id", w.ID, "error", perr)
				}
			}
			return mcq, nil
		}
		lastErr = err
		b.log.Debug("mcq generation attempt failed", "word_id", w.ID, "attempt", attempts, "error", err)
	}

	return nil, &GenerationError{WordID: w.ID, TaskType: string(model.TaskTypeMCQ), Attempts: attempts, Err: lastErr}
}

func (b *Builder) generateOnce(ctx context.Context, w model.Word) (*model.MCQ, error) {
	callCtx, cancel := context.WithTimeout(ctx, b.opts.GenerateTimeout)
	defer cancel()

	mcq, err := b.mcq.GenerateMCQ(callCtx, w)
	if err != nil {
		return nil, err
	}
	if mcq == nil {
		return nil, errors.New("generator returned no question")
	}
	if err := mcq.Validate(); err != nil {
		return nil, err
	}
	return mcq, nil
}
