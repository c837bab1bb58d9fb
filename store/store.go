// Package store is the relational backend: posts, profiles, likes, comments and subscribers.
// Writes to likes and comments are announced on the push-update channel after they commit.
package store

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"garden/logging"
	"garden/realtime"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
	ErrBlocked   = errors.New("user is blocked")
)

type Store struct {
	db     *gorm.DB
	broker realtime.Broker
}

// New returns a Store. broker may be nil, in which case no changes are announced.
func New(db *gorm.DB, broker realtime.Broker) *Store {
	return &Store{db: db, broker: broker}
}

func (s *Store) DB() *gorm.DB {
	return s.db
}

// classify maps driver errors onto the package's sentinel errors.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if isUniqueViolation(err) {
		return errors.Join(ErrDuplicate, err)
	}
	return err
}

// isUniqueViolation recognizes postgres SQLSTATE 23505 and sqlite's constraint message.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "23505") ||
		strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}

func (s *Store) announce(ctx context.Context, table, event string, postID uint) {
	if s.broker == nil {
		return
	}
	ch := realtime.Change{Table: table, Event: event, PostID: postID}
	if err := s.broker.Publish(ctx, ch); err != nil {
		// the write already committed; subscribers converge on their next refetch
		logging.L.Warn().Err(err).Str("table", table).Uint("post_id", postID).Msg("publish change failed")
	}
}
