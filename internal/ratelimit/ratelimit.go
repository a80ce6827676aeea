package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/richroberts-prog/air-demand/internal/model"
)

// Limiter enforces a minimum gap between fetches that share a key.
type Limiter struct {
	mu       sync.Mutex
	next     map[string]time.Time // key: source name, value: earliest allowed start
	minDelay time.Duration
}

// NewLimiter creates a limiter that spaces fetches with the same key by minDelay.
func NewLimiter(minDelay time.Duration) *Limiter {
	return &Limiter{
		next:     make(map[string]time.Time),
		minDelay: minDelay,
	}
}

// Wait blocks until a fetch for key may start. The slot is reserved before
// sleeping, so concurrent callers queue behind each other instead of all
// waking at once. Returns an error if ctx is cancelled while waiting.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	l.mu.Lock()
	now := time.Now()
	start := now
	if next, ok := l.next[key]; ok && next.After(now) {
		start = next
	}
	l.next[key] = start.Add(l.minDelay)
	l.mu.Unlock()

	wait := start.Sub(now)
	if wait <= 0 {
		return nil
	}

	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("rate limiter wait for %s: %w", key, ctx.Err())
	case <-t.C:
		return nil
	}
}

// RateLimitedSource waits on a shared Limiter before delegating to the
// wrapped BatchSource.
type RateLimitedSource struct {
	inner   model.BatchSource
	limiter *Limiter
	key     string
}

var _ model.BatchSource = (*RateLimitedSource)(nil)

// NewRateLimitedSource wraps a BatchSource. Sources reading the same export
// should share one limiter and key.
func NewRateLimitedSource(inner model.BatchSource, limiter *Limiter, key string) *RateLimitedSource {
	return &RateLimitedSource{
		inner:   inner,
		limiter: limiter,
		key:     key,
	}
}

func (s *RateLimitedSource) FetchBatch(ctx context.Context) (model.Batch, error) {
	if err := s.limiter.Wait(ctx, s.key); err != nil {
		return model.Batch{}, err
	}
	return s.inner.FetchBatch(ctx)
}
