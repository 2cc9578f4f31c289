package store

import (
	"context"

	"github.com/reverba/api/internal/model"
)

func (s *Store) CreateUser(ctx context.Context, u *model.User) error {
	return translate(s.db.WithContext(ctx).Create(u).Error, "create user")
}

func (s *Store) GetUser(ctx context.Context, userID string) (*model.User, error) {
	var u model.User
	if err := s.db.WithContext(ctx).Where("id = ?", userID).First(&u).Error; err != nil {
		return nil, translate(err, "get user")
	}
	return &u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	var u model.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&u).Error; err != nil {
		return nil, translate(err, "get user by email")
	}
	return &u, nil
}

// ListActiveUserIDs returns the ids of active users that own at least one
// ACTIVE word, in a stable order.
func (s *Store) ListActiveUserIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&model.User{}).
		Where("is_active = ?", true).
		Where("EXISTS (SELECT 1 FROM words WHERE words.user_id = users.id AND words.state = ?)", model.WordStateActive).
		Order("id ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, translate(err, "list active users")
	}
	return ids, nil
}
