// Package store persists words, daily batches, tutor chats and cron runs
// with gorm.
package store

import (
	"context"
	stderrors "errors"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/reverba/api/internal/task"
)

// Store is the gorm-backed implementation of task.Store plus the queries the
// HTTP layer and the scheduler need.
type Store struct {
	db *gorm.DB
}

var _ task.Store = (*Store)(nil)

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for health checks.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// InTx runs fn against a Store bound to a single transaction. The
// transaction commits when fn returns nil and rolls back otherwise.
func (s *Store) InTx(ctx context.Context, fn func(tx task.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

// Tx is InTx for callers that need the concrete type.
func (s *Store) Tx(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

// translate maps gorm errors onto the task package's sentinels and wraps
// everything else with the operation name.
func translate(err error, op string) error {
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, gorm.ErrRecordNotFound):
		return errors.Wrap(task.ErrNotFound, op)
	case stderrors.Is(err, gorm.ErrDuplicatedKey):
		return errors.Wrap(task.ErrConflict, op)
	}
	return errors.Wrap(err, op)
}
