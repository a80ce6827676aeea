package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/richroberts-prog/air-demand/internal/model"
)

// RetrySource is a decorator that retries transient fetch failures with
// exponential backoff and jitter.
type RetrySource struct {
	inner      model.BatchSource
	maxRetries int
	baseDelay  time.Duration
	logger     *slog.Logger
}

var _ model.BatchSource = (*RetrySource)(nil)

// NewRetrySource wraps a BatchSource with retry logic.
// maxRetries is the number of additional attempts after the first failure.
// baseDelay is the delay before the first retry, doubled on each subsequent retry.
func NewRetrySource(inner model.BatchSource, maxRetries int, baseDelay time.Duration, logger *slog.Logger) *RetrySource {
	return &RetrySource{
		inner:      inner,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		logger:     logger,
	}
}

// FetchBatch fetches the batch, retrying errors model.IsRetryable accepts.
func (s *RetrySource) FetchBatch(ctx context.Context) (model.Batch, error) {
	batch, err := s.inner.FetchBatch(ctx)
	if err == nil || !model.IsRetryable(err) {
		return batch, err
	}

	lastErr := err
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		delay := s.backoffDelay(attempt, lastErr)

		s.logger.Warn("retrying batch fetch after transient error",
			"attempt", attempt,
			"max_retries", s.maxRetries,
			"delay", delay,
			"error", lastErr,
		)

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return model.Batch{}, fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-t.C:
		}

		batch, err = s.inner.FetchBatch(ctx)
		if err == nil || !model.IsRetryable(err) {
			return batch, err
		}
		lastErr = err
	}

	return model.Batch{}, fmt.Errorf("giving up after %d retries: %w", s.maxRetries, lastErr)
}

// backoffDelay computes the delay for a given attempt with ±30% jitter.
// A Retry-After duration on an HTTP error takes precedence.
func (s *RetrySource) backoffDelay(attempt int, err error) time.Duration {
	var httpErr *model.HTTPError
	if errors.As(err, &httpErr) && httpErr.RetryAfter > 0 {
		return httpErr.RetryAfter
	}

	delay := s.baseDelay << (attempt - 1)

	jitter := float64(delay) * 0.3
	return time.Duration(float64(delay) + (rand.Float64()*2-1)*jitter)
}
