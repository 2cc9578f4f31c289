package store

import (
	"context"

	"gorm.io/gorm"

	"github.com/reverba/api/internal/model"
	"github.com/reverba/api/internal/task"
)

func orderedTasks(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

func (s *Store) GetBatch(ctx context.Context, userID, date string) (*model.DailyTaskBatch, error) {
	var b model.DailyTaskBatch
	err := s.db.WithContext(ctx).
		Preload("Tasks", orderedTasks).
		Where("user_id = ? AND date = ?", userID, date).
		First(&b).Error
	if err != nil {
		return nil, translate(err, "get batch")
	}
	return &b, nil
}

// CreateBatch inserts the batch and its tasks. A second batch for the same
// (user, date) fails with task.ErrConflict.
func (s *Store) CreateBatch(ctx context.Context, batch *model.DailyTaskBatch) error {
	for i := range batch.Tasks {
		if err := batch.Tasks[i].Validate(); err != nil {
			return task.Validationf("task %d: %v", i, err)
		}
	}
	return translate(s.db.WithContext(ctx).Create(batch).Error, "create batch")
}

func (s *Store) GetTask(ctx context.Context, taskID string) (*model.TaskItem, *model.DailyTaskBatch, error) {
	var item model.TaskItem
	if err := s.db.WithContext(ctx).Where("task_id = ?", taskID).First(&item).Error; err != nil {
		return nil, nil, translate(err, "get task")
	}

	var b model.DailyTaskBatch
	if err := s.db.WithContext(ctx).Where("id = ?", item.BatchID).First(&b).Error; err != nil {
		return nil, nil, translate(err, "get task batch")
	}
	return &item, &b, nil
}

// UpdateTask applies patch only while the stored status is still from.
func (s *Store) UpdateTask(ctx context.Context, taskID string, from model.TaskStatus, patch model.TaskPatch) error {
	if !from.CanTransitionTo(patch.Status) {
		return task.InvalidStatef("task cannot move from %s to %s", from, patch.Status)
	}

	res := s.db.WithContext(ctx).Model(&model.TaskItem{}).
		Where("task_id = ? AND status = ?", taskID, from).
		Updates(map[string]interface{}{
			"status":       patch.Status,
			"result":       patch.Result,
			"completed_at": patch.CompletedAt,
		})
	if res.Error != nil {
		return translate(res.Error, "update task")
	}
	if res.RowsAffected == 0 {
		if _, _, err := s.GetTask(ctx, taskID); err != nil {
			return err
		}
		return task.InvalidStatef("task %s is no longer %s", taskID, from)
	}
	return nil
}

// ListBatches returns the user's batches newest first, with tasks.
func (s *Store) ListBatches(ctx context.Context, userID string, limit int) ([]model.DailyTaskBatch, error) {
	var batches []model.DailyTaskBatch
	err := s.db.WithContext(ctx).
		Preload("Tasks", orderedTasks).
		Where("user_id = ?", userID).
		Order("date DESC").
		Limit(limit).
		Find(&batches).Error
	if err != nil {
		return nil, translate(err, "list batches")
	}
	return batches, nil
}

// ResultCounts totals the user's completed tasks.
type ResultCounts struct {
	Pass int64
	Fail int64
}

func (s *Store) CountResults(ctx context.Context, userID string) (ResultCounts, error) {
	type row struct {
		Result model.TaskResult
		N      int64
	}
	var rows []row
	err := s.db.WithContext(ctx).
		Table("task_items").
		Select("task_items.result AS result, COUNT(*) AS n").
		Joins("JOIN daily_task_batches ON daily_task_batches.id = task_items.batch_id").
		Where("daily_task_batches.user_id = ? AND task_items.status = ?", userID, model.TaskStatusCompleted).
		Group("task_items.result").
		Scan(&rows).Error
	if err != nil {
		return ResultCounts{}, translate(err, "count results")
	}

	var out ResultCounts
	for _, r := range rows {
		switch r.Result {
		case model.TaskResultPass:
			out.Pass = r.N
		case model.TaskResultFail:
			out.Fail = r.N
		}
	}
	return out, nil
}
