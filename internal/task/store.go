package task

import (
	"context"
	"time"

	"github.com/reverba/api/internal/model"
)

// WordStore is the persistence the task core needs for words.
type WordStore interface {
	ListActiveWords(ctx context.Context, userID string) ([]model.Word, error)
	GetWord(ctx context.Context, wordID string) (*model.Word, error)
	// UpdateWord applies patch only if the stored version still equals
	// expectedVersion; otherwise it fails with ErrInvalidState.
	UpdateWord(ctx context.Context, wordID string, expectedVersion int64, patch model.WordPatch) (*model.Word, error)
	// RebalanceWords raises the priority of each listed ACTIVE word by one,
	// capped at model.MaxPriority, and returns how many rows changed.
	RebalanceWords(ctx context.Context, wordIDs []string) (int64, error)
}

// BatchStore is the persistence the task core needs for daily batches.
type BatchStore interface {
	// GetBatch returns ErrNotFound when no batch exists for (userID, date).
	GetBatch(ctx context.Context, userID, date string) (*model.DailyTaskBatch, error)
	// CreateBatch inserts the batch and its tasks. A batch that already
	// exists for the same (user, date) makes it fail.
	CreateBatch(ctx context.Context, batch *model.DailyTaskBatch) error
	GetTask(ctx context.Context, taskID string) (*model.TaskItem, *model.DailyTaskBatch, error)
	// UpdateTask moves a task out of status from. It rejects transitions
	// that are not legal and fails with ErrInvalidState when the stored
	// status is no longer from.
	UpdateTask(ctx context.Context, taskID string, from model.TaskStatus, patch model.TaskPatch) error
}

// Store groups both stores and can run them inside one transaction.
type Store interface {
	WordStore
	BatchStore
	InTx(ctx context.Context, fn func(tx Store) error) error
}

// MCQGenerator is the external question-generation capability.
type MCQGenerator interface {
	GenerateMCQ(ctx context.Context, word model.Word) (*model.MCQ, error)
}

// DraftCache keeps generated questions between a crash and a re-run so the
// generator is not invoked twice for the same word and day.
type DraftCache interface {
	// GetMCQDraft returns nil, nil on a miss.
	GetMCQDraft(ctx context.Context, userID, date, wordID string) (*model.MCQ, error)
	PutMCQDraft(ctx context.Context, userID, date, wordID string, mcq *model.MCQ) error
}

// Locker guards a generation run for one (user, date).
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(), acquired bool, err error)
}

// ChatRecorder mirrors completion results onto tutor chats.
type ChatRecorder interface {
	SetChatResult(ctx context.Context, chatID string, result model.TaskResult) error
}
