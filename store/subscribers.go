package store

import (
	"context"
	"strings"

	"garden/models"
)

// InsertSubscriber stores the lower-cased email and returns ErrDuplicate when it is
// already subscribed.
func (s *Store) InsertSubscriber(ctx context.Context, email string) error {
	sub := models.Subscriber{Email: strings.ToLower(strings.TrimSpace(email))}
	return classify(s.db.WithContext(ctx).Create(&sub).Error)
}

func (s *Store) ListSubscriberEmails(ctx context.Context) ([]string, error) {
	var emails []string
	err := s.db.WithContext(ctx).Model(&models.Subscriber{}).Order("id ASC").Pluck("email", &emails).Error
	return emails, err
}

func (s *Store) CountSubscribers(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Subscriber{}).Count(&n).Error
	return n, err
}
