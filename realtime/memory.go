package realtime

import (
	"context"
	"sync"
	"time"
)

// MemoryBroker fans changes out to subscribers of this process only.
type MemoryBroker struct {
	mu   sync.RWMutex
	next int
	subs map[int]memorySub
}

type memorySub struct {
	filter Filter
	sub    *Subscription
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: make(map[int]memorySub)}
}

func (b *MemoryBroker) Publish(_ context.Context, ch Change) error {
	if ch.At.IsZero() {
		ch.At = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if s.filter.Match(ch) {
			s.sub.deliver(ch)
		}
	}
	return nil
}

func (b *MemoryBroker) Subscribe(ctx context.Context, f Filter) (*Subscription, error) {
	b.mu.Lock()
	id := b.next
	b.next++
	sub := newSubscription(func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	})
	b.subs[id] = memorySub{filter: f, sub: sub}
	b.mu.Unlock()

	sub.closeOn(ctx)
	return sub, nil
}

// Subscribers reports how many subscriptions are open.
func (b *MemoryBroker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
