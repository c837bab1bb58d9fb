package store

import (
	"context"
	"strings"
	"time"

	"garden/models"
)

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	return classify(s.db.WithContext(ctx).Create(u).Error)
}

func (s *Store) GetUser(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, classify(err)
	}
	return &u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := s.db.WithContext(ctx).
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&u).Error
	if err != nil {
		return nil, classify(err)
	}
	return &u, nil
}

// UserRow is a user joined with its profile for the moderation page.
type UserRow struct {
	ID        uint
	Email     string
	FullName  string
	Username  string
	IsAdmin   bool
	IsBlocked bool
	CreatedAt time.Time
}

func (s *Store) ListUsers(ctx context.Context) ([]UserRow, error) {
	var rows []UserRow
	err := s.db.WithContext(ctx).
		Table("users").
		Select("users.id, users.email, users.created_at, profiles.full_name, profiles.username, " +
			"COALESCE(profiles.is_admin, false) AS is_admin, COALESCE(profiles.is_blocked, false) AS is_blocked").
		Joins("LEFT JOIN profiles ON profiles.id = users.id").
		Order("users.id ASC").
		Scan(&rows).Error
	return rows, err
}
