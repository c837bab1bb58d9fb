// Package realtime carries table change notifications from writers to open post views.
package realtime

import (
	"context"
	"sync"
	"time"
)

const (
	TableLikes    = "likes"
	TableComments = "comments"

	EventInsert = "insert"
	EventUpdate = "update"
	EventDelete = "delete"
	EventAll    = "*"

	subscriptionBuffer = 32
)

// Change describes one committed write to a watched table.
type Change struct {
	Table  string    `json:"table"`
	Event  string    `json:"event"`
	PostID uint      `json:"post_id"`
	At     time.Time `json:"at"`
}

// Filter selects changes by table and event. Empty Tables matches every table;
// an empty Event or "*" matches every event. PostID 0 matches every post.
type Filter struct {
	Tables []string
	Event  string
	PostID uint
}

func (f Filter) Match(ch Change) bool {
	if f.PostID != 0 && f.PostID != ch.PostID {
		return false
	}
	if f.Event != "" && f.Event != EventAll && f.Event != ch.Event {
		return false
	}
	if len(f.Tables) == 0 {
		return true
	}
	for _, t := range f.Tables {
		if t == ch.Table {
			return true
		}
	}
	return false
}

// Broker is the push-update channel.
type Broker interface {
	Publish(ctx context.Context, ch Change) error
	Subscribe(ctx context.Context, f Filter) (*Subscription, error)
}

// Subscription delivers matching changes until Close is called or its context ends.
type Subscription struct {
	c      chan Change
	done   chan struct{}
	once   sync.Once
	mu     sync.Mutex
	closed bool
	stop   func()
}

func newSubscription(stop func()) *Subscription {
	return &Subscription{c: make(chan Change, subscriptionBuffer), done: make(chan struct{}), stop: stop}
}

// C returns the delivery channel. It is closed after Close.
func (s *Subscription) C() <-chan Change {
	return s.c
}

// deliver never blocks: a full buffer drops the change. The next change still
// triggers a full refetch, so a dropped one only delays convergence.
func (s *Subscription) deliver(ch Change) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.c <- ch:
		return true
	default:
		return false
	}
}

// closeOn closes the subscription when ctx ends.
func (s *Subscription) closeOn(ctx context.Context) {
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
	}()
}

func (s *Subscription) Close() {
	s.once.Do(func() {
		if s.stop != nil {
			s.stop()
		}
		s.mu.Lock()
		s.closed = true
		close(s.c)
		close(s.done)
		s.mu.Unlock()
	})
}
