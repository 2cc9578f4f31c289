package store

import (
	"context"
	"encoding/json"

	"gorm.io/datatypes"

	"github.com/reverba/api/internal/model"
)

// RecordCronRun stores the outcome of one generation run.
func (s *Store) RecordCronRun(ctx context.Context, run *model.CronRun, stats model.CronRunStats) error {
	b, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	run.Stats = datatypes.JSON(b)
	return translate(s.db.WithContext(ctx).Create(run).Error, "record cron run")
}

// LastCronRun returns the most recent run, or task.ErrNotFound.
func (s *Store) LastCronRun(ctx context.Context) (*model.CronRun, error) {
	var run model.CronRun
	if err := s.db.WithContext(ctx).Order("run_at DESC, id DESC").First(&run).Error; err != nil {
		return nil, translate(err, "last cron run")
	}
	return &run, nil
}
