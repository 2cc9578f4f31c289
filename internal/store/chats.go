package store

import (
	"context"
	"time"

	"gorm.io/gorm/clause"

	"github.com/reverba/api/internal/model"
)

func (s *Store) GetChat(ctx context.Context, chatID string) (*model.TutorChat, error) {
	var c model.TutorChat
	if err := s.db.WithContext(ctx).Where("id = ?", chatID).First(&c).Error; err != nil {
		return nil, translate(err, "get chat")
	}
	return &c, nil
}

// SaveChat inserts the chat or replaces its messages and result.
func (s *Store) SaveChat(ctx context.Context, c *model.TutorChat) error {
	if c.FinalResult == "" {
		c.FinalResult = model.ChatStatusPending
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"messages", "final_result", "updated_at"}),
	}).Create(c).Error
	return translate(err, "save chat")
}

// SetChatResult records the task result on the chat. A chat that was never
// opened is left alone.
func (s *Store) SetChatResult(ctx context.Context, chatID string, result model.TaskResult) error {
	err := s.db.WithContext(ctx).Model(&model.TutorChat{}).
		Where("id = ?", chatID).
		Updates(map[string]interface{}{
			"final_result": model.ChatStatus(result),
			"updated_at":   time.Now(),
		}).Error
	return translate(err, "set chat result")
}
