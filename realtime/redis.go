package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/redis/go-redis/v9"

	"garden/logging"
)

const channelPrefix = "changes:"

// RedisBroker publishes changes on redis channels so every server instance sees them.
type RedisBroker struct {
	rdb *redis.Client
}

func NewRedisBroker(rdb *redis.Client) *RedisBroker {
	return &RedisBroker{rdb: rdb}
}

// TableChannel derives the redis channel name for a table.
func TableChannel(table string) string {
	return channelPrefix + table
}

func (b *RedisBroker) Publish(ctx context.Context, ch Change) error {
	if ch.At.IsZero() {
		ch.At = time.Now()
	}
	payload, err := json.Marshal(ch)
	if err != nil {
		return fmt.Errorf("marshal change: %w", err)
	}
	return b.rdb.Publish(ctx, TableChannel(ch.Table), payload).Err()
}

func (b *RedisBroker) Subscribe(ctx context.Context, f Filter) (*Subscription, error) {
	var ps *redis.PubSub
	want := len(f.Tables)
	if want == 0 {
		ps = b.rdb.PSubscribe(ctx, channelPrefix+"*")
		want = 1
	} else {
		channels := make([]string, 0, len(f.Tables))
		for _, t := range f.Tables {
			channels = append(channels, TableChannel(t))
		}
		ps = b.rdb.Subscribe(ctx, channels...)
	}

	// wait for the server to confirm every channel so nothing published after
	// Subscribe returns is missed
	for confirmed := 0; confirmed < want; {
		msg, err := ps.Receive(ctx)
		if err != nil {
			_ = ps.Close()
			return nil, fmt.Errorf("subscribe: %w", err)
		}
		if s, ok := msg.(*redis.Subscription); ok {
			confirmed = s.Count
		}
	}

	sub := newSubscription(func() { _ = ps.Close() })
	msgs := ps.Channel()

	go func() {
		for {
			select {
			case <-sub.done:
				return
			case msg, ok := <-msgs:
				if !ok {
					sub.Close()
					return
				}
				b.dispatch(sub, f, msg)
			}
		}
	}()
	sub.closeOn(ctx)
	return sub, nil
}

func (b *RedisBroker) dispatch(sub *Subscription, f Filter, msg *redis.Message) {
	defer func() {
		if r := recover(); r != nil {
			logging.L.Error().Interface("panic", r).Str("stack", string(debug.Stack())).
				Str("channel", msg.Channel).Msg("PANIC in change subscriber")
		}
	}()

	var ch Change
	if err := json.Unmarshal([]byte(msg.Payload), &ch); err != nil {
		logging.L.Warn().Err(err).Str("channel", msg.Channel).Msg("dropping malformed change")
		return
	}
	if f.Match(ch) {
		sub.deliver(ch)
	}
}
