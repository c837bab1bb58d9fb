package blog

import (
	"context"
	"sync"
	"time"

	"garden/logging"
	"garden/metrics"
	"garden/store"
)

const trackTimeout = 5 * time.Second

// ViewCounter increments post view counts in the background. Every call counts;
// there is no per-visitor throttling.
type ViewCounter struct {
	store *store.Store
	wg    sync.WaitGroup
}

func NewViewCounter(s *store.Store) *ViewCounter {
	return &ViewCounter{store: s}
}

// Track never blocks the caller. Failures are logged and counted, never surfaced.
func (v *ViewCounter) Track(postID uint) {
	if v == nil || v.store == nil {
		return
	}

	v.wg.Add(1)
	go func() {
		defer v.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), trackTimeout)
		defer cancel()

		if err := v.store.IncrementViews(ctx, postID); err != nil {
			metrics.PostViews.WithLabelValues("error").Inc()
			logging.L.Warn().Err(err).Uint("post_id", postID).Msg("increment views failed")
			return
		}
		metrics.PostViews.WithLabelValues("ok").Inc()
	}()
}

// Wait blocks until in-flight increments finish.
func (v *ViewCounter) Wait() {
	if v == nil {
		return
	}
	v.wg.Wait()
}
