package registry

import (
	"context"
	"time"

	"github.com/issacpacheco/chat-stream-gemini/internal/event"
	"github.com/issacpacheco/chat-stream-gemini/internal/logging"
)

// StartEviction runs the idle sweep until ctx ends. It does nothing unless
// WithIdleTTL set a positive ttl and interval, or if a sweep already runs.
func (r *Registry) StartEviction(ctx context.Context) {
	r.mu.Lock()
	if r.evictRunning || r.idleTTL <= 0 || r.sweepInterval <= 0 {
		r.mu.Unlock()
		return
	}
	r.evictRunning = true
	r.mu.Unlock()

	go r.runEvictionLoop(ctx, r.sweepInterval)
}

func (r *Registry) runEvictionLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.mu.Lock()
			r.evictRunning = false
			r.mu.Unlock()
			return
		case <-ticker.C:
			if n := r.evictIdleOnce(r.now()); n > 0 {
				logging.Info().Int("evicted", n).Int("remaining", r.Len()).Msg("idle sessions evicted")
			}
		}
	}
}

// evictIdleOnce drops every conversation with no live connection that has
// been unused for longer than the idle ttl.
func (r *Registry) evictIdleOnce(now time.Time) int {
	if r.idleTTL <= 0 {
		return 0
	}

	r.mu.Lock()
	var evicted []string
	for el := r.order.Front(); el != nil; {
		e := el.Value.(*entry)
		next := el.Next()
		if e.active == 0 && now.Sub(e.lastUsed) > r.idleTTL {
			r.removeLocked(e)
			evicted = append(evicted, e.id)
		}
		el = next
	}
	r.mu.Unlock()

	for _, id := range evicted {
		r.publish(event.SessionEvicted, event.SessionData{ClientID: id, Reason: "idle"})
	}
	return len(evicted)
}
