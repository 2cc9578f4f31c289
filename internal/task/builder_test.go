package task

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reverba/api/internal/model"
)

func newTestBuilder(mcq MCQGenerator, drafts DraftCache) *Builder {
	b := NewBuilder(mcq, drafts, BuilderOptions{
		GenerateTimeout: 200 * time.Millisecond,
		RetryBackoff:    time.Millisecond,
	}, nil)
	n := 0
	b.newID = func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
	return b
}

func fullSelection() Selection {
	var words []model.Word
	for p := 1; p <= 4; p++ {
		words = append(words, wordsAt(p, 3, fmt.Sprintf("p%d", p))...)
	}
	return Select(words)
}

func TestBuildTierOrderAndShape(t *testing.T) {
	gen := newFakeMCQ()
	b := newTestBuilder(gen, nil)

	tasks, failures, err := b.Build(context.Background(), "u1", "2026-03-01", fullSelection())
	require.NoError(t, err)
	assert.Empty(t, failures)
	require.Len(t, tasks, MaxBatchSize())

	var types []model.TaskType
	words := map[string]bool{}
	for i, task := range tasks {
		types = append(types, task.Type)
		assert.Equal(t, i, task.Position)
		assert.Equal(t, model.TaskStatusPending, task.Status)
		assert.NoError(t, task.Validate())
		assert.False(t, words[task.WordID], "duplicate word %s", task.WordID)
		words[task.WordID] = true

		if task.Type == model.TaskTypeMCQ {
			assert.Nil(t, task.ChatID)
			require.NotNil(t, task.Question)
			assert.Len(t, task.Options, model.MCQOptionCount)
		} else {
			require.NotNil(t, task.ChatID)
			assert.NotEqual(t, task.TaskID, *task.ChatID)
			assert.Nil(t, task.Question)
		}
	}

	assert.Equal(t, []model.TaskType{
		model.TaskTypeMeaning,
		model.TaskTypeSentence, model.TaskTypeSentence,
		model.TaskTypeMCQ, model.TaskTypeMCQ, model.TaskTypeMCQ,
		model.TaskTypeParagraph, model.TaskTypeParagraph,
	}, types)
}

func TestBuildRetriesOnceThenSucceeds(t *testing.T) {
	gen := newFakeMCQ()
	gen.failFor["p3-0"] = 1
	b := newTestBuilder(gen, nil)

	tasks, failures, err := b.Build(context.Background(), "u1", "2026-03-01", fullSelection())
	require.NoError(t, err)
	assert.Empty(t, failures)
	assert.Len(t, tasks, MaxBatchSize())
	assert.Equal(t, 2, gen.callCount("p3-0"))
}

func TestBuildSkipsWordAfterTwoFailures(t *testing.T) {
	gen := newFakeMCQ()
	gen.failFor["p3-1"] = 2
	b := newTestBuilder(gen, nil)

	tasks, failures, err := b.Build(context.Background(), "u1", "2026-03-01", fullSelection())
	require.NoError(t, err)
	assert.Len(t, tasks, MaxBatchSize()-1)
	require.Len(t, failures, 1)

	f := failures[0]
	assert.Equal(t, "p3-1", f.WordID)
	assert.Equal(t, string(model.TaskTypeMCQ), f.TaskType)
	assert.Equal(t, 2, f.Attempts)
	assert.True(t, errors.Is(f, ErrGenerationFailure))
	assert.Equal(t, 2, gen.callCount("p3-1"))

	for i, task := range tasks {
		assert.NotEqual(t, "p3-1", task.WordID)
		assert.Equal(t, i, task.Position)
	}
}

func TestBuildRejectsMalformedQuestion(t *testing.T) {
	gen := newFakeMCQ()
	gen.malform["p3-2"] = true
	b := newTestBuilder(gen, nil)

	tasks, failures, err := b.Build(context.Background(), "u1", "2026-03-01", fullSelection())
	require.NoError(t, err)
	assert.Len(t, tasks, MaxBatchSize()-1)
	require.Len(t, failures, 1)
	assert.Equal(t, "p3-2", failures[0].WordID)
	assert.Equal(t, 2, gen.callCount("p3-2"))
}

func TestBuildTimesOutSlowGenerator(t *testing.T) {
	gen := newFakeMCQ()
	gen.blockFor = time.Second
	b := NewBuilder(gen, nil, BuilderOptions{
		GenerateTimeout: 10 * time.Millisecond,
		RetryBackoff:    time.Millisecond,
	}, nil)

	sel := Select(wordsAt(3, 1, "p3"))
	tasks, failures, err := b.Build(context.Background(), "u1", "2026-03-01", sel)
	require.NoError(t, err)
	assert.Empty(t, tasks)
	require.Len(t, failures, 1)
	assert.True(t, errors.Is(failures[0], context.DeadlineExceeded))
}

func TestBuildReusesDrafts(t *testing.T) {
	gen := newFakeMCQ()
	drafts := newMemDrafts()
	b := newTestBuilder(gen, drafts)
	sel := fullSelection()

	first, _, err := b.Build(context.Background(), "u1", "2026-03-01", sel)
	require.NoError(t, err)
	assert.Equal(t, 3, gen.totalCalls())

	second, _, err := b.Build(context.Background(), "u1", "2026-03-01", sel)
	require.NoError(t, err)
	assert.Equal(t, 3, gen.totalCalls(), "drafts should be reused")

	for i := range first {
		if first[i].Type == model.TaskTypeMCQ {
			assert.Equal(t, *first[i].Question, *second[i].Question)
		}
	}
}

func TestBuildCancelledContext(t *testing.T) {
	gen := newFakeMCQ()
	gen.failFor["p3-0"] = 2
	b := NewBuilder(gen, nil, BuilderOptions{
		GenerateTimeout: time.Second,
		RetryBackoff:    time.Second,
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, _, err := b.Build(ctx, "u1", "2026-03-01", Select(wordsAt(3, 1, "p3")))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBuildEmptySelection(t *testing.T) {
	b := newTestBuilder(newFakeMCQ(), nil)

	tasks, failures, err := b.Build(context.Background(), "u1", "2026-03-01", Selection{})
	require.NoError(t, err)
	assert.Empty(t, tasks)
	assert.Empty(t, failures)
}
