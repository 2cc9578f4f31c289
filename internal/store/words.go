package store

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/reverba/api/internal/model"
	"github.com/reverba/api/internal/task"
)

// rebalanceChunk bounds the IN list of a single rebalance statement.
const rebalanceChunk = 500

// WordFilter narrows ListWords. Zero values mean no filter.
type WordFilter struct {
	Priority int
	State    model.WordState
	Limit    int
	Offset   int
}

func (s *Store) ListActiveWords(ctx context.Context, userID string) ([]model.Word, error) {
	var words []model.Word
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND state = ?", userID, model.WordStateActive).
		Order("created_at ASC, id ASC").
		Find(&words).Error
	if err != nil {
		return nil, translate(err, "list active words")
	}
	return words, nil
}

func (s *Store) GetWord(ctx context.Context, wordID string) (*model.Word, error) {
	var w model.Word
	if err := s.db.WithContext(ctx).Where("id = ?", wordID).First(&w).Error; err != nil {
		return nil, translate(err, "get word")
	}
	return &w, nil
}

// GetUserWord returns the word only if it belongs to userID.
func (s *Store) GetUserWord(ctx context.Context, userID, wordID string) (*model.Word, error) {
	var w model.Word
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", wordID, userID).First(&w).Error
	if err != nil {
		return nil, translate(err, "get word")
	}
	return &w, nil
}

// UpdateWord is a compare-and-set on the word's version.
func (s *Store) UpdateWord(ctx context.Context, wordID string, expectedVersion int64, patch model.WordPatch) (*model.Word, error) {
	cols := patch.Columns()
	cols["version"] = gorm.Expr("version + 1")
	cols["updated_at"] = time.Now()

	res := s.db.WithContext(ctx).Model(&model.Word{}).
		Where("id = ? AND version = ?", wordID, expectedVersion).
		Updates(cols)
	if res.Error != nil {
		return nil, translate(res.Error, "update word")
	}
	if res.RowsAffected == 0 {
		if _, err := s.GetWord(ctx, wordID); err != nil {
			return nil, err
		}
		return nil, task.InvalidStatef("word %s was modified concurrently", wordID)
	}
	return s.GetWord(ctx, wordID)
}

// RebalanceWords bumps the priority of each listed ACTIVE word below the
// maximum by one.
func (s *Store) RebalanceWords(ctx context.Context, wordIDs []string) (int64, error) {
	var total int64
	for start := 0; start < len(wordIDs); start += rebalanceChunk {
		end := start + rebalanceChunk
		if end > len(wordIDs) {
			end = len(wordIDs)
		}
		res := s.db.WithContext(ctx).Model(&model.Word{}).
			Where("id IN ? AND state = ? AND priority >= ? AND priority < ?",
				wordIDs[start:end], model.WordStateActive, model.MinPriority, model.MaxPriority).
			Updates(map[string]interface{}{
				"priority":   gorm.Expr("priority + 1"),
				"version":    gorm.Expr("version + 1"),
				"updated_at": time.Now(),
			})
		if res.Error != nil {
			return total, translate(res.Error, "rebalance words")
		}
		total += res.RowsAffected
	}
	return total, nil
}

// CreateWord inserts a new word. A word with the same normalized spelling
// for the same user fails with task.ErrConflict.
func (s *Store) CreateWord(ctx context.Context, w *model.Word) error {
	w.NormalizedWord = model.NormalizeWord(w.Word)
	if w.NormalizedWord == "" {
		return task.Validationf("word is required")
	}

	var count int64
	err := s.db.WithContext(ctx).Model(&model.Word{}).
		Where("user_id = ? AND normalized_word = ?", w.UserID, w.NormalizedWord).
		Count(&count).Error
	if err != nil {
		return translate(err, "check duplicate word")
	}
	if count > 0 {
		return errors.Wrapf(task.ErrConflict, "word %q", w.Word)
	}

	return translate(s.db.WithContext(ctx).Create(w).Error, "create word")
}

// ListWords returns the user's words newest first and the total matching
// count.
func (s *Store) ListWords(ctx context.Context, userID string, f WordFilter) ([]model.Word, int64, error) {
	q := s.db.WithContext(ctx).Model(&model.Word{}).Where("user_id = ?", userID)
	if f.Priority != 0 {
		q = q.Where("priority = ?", f.Priority)
	}
	if f.State != "" {
		q = q.Where("state = ?", f.State)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, translate(err, "count words")
	}

	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}

	var words []model.Word
	if err := q.Order("created_at DESC, id ASC").Find(&words).Error; err != nil {
		return nil, 0, translate(err, "list words")
	}
	return words, total, nil
}

// DeleteWord removes the user's word. Tasks that reference it stay in their
// batches; completing them later skips the word update.
func (s *Store) DeleteWord(ctx context.Context, userID, wordID string) error {
	res := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", wordID, userID).Delete(&model.Word{})
	if res.Error != nil {
		return translate(res.Error, "delete word")
	}
	if res.RowsAffected == 0 {
		return errors.Wrap(task.ErrNotFound, "delete word")
	}
	return nil
}

// CountMastered returns how many of the user's words are MASTERED.
func (s *Store) CountMastered(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&model.Word{}).
		Where("user_id = ? AND state = ?", userID, model.WordStateMastered).
		Count(&n).Error
	return n, translate(err, "count mastered")
}

// RecentWords returns the user's most recently added words.
func (s *Store) RecentWords(ctx context.Context, userID string, limit int) ([]model.Word, error) {
	var words []model.Word
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&words).Error
	if err != nil {
		return nil, translate(err, "recent words")
	}
	return words, nil
}
