package model

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrEmptyBatch is returned when a batch holds no records at all.
	ErrEmptyBatch = errors.New("batch is empty")
	// ErrInvalidBatch is returned when a payload fails shape validation.
	ErrInvalidBatch = errors.New("batch payload is malformed")
	// ErrRunInProgress is returned when another run holds the write lock. Retryable.
	ErrRunInProgress = errors.New("another ingestion run is in progress")
	// ErrRunSealed is returned when finalising a run that is no longer running.
	ErrRunSealed = errors.New("scrape run already finalised")
	// ErrNotFound is returned by store lookups that match nothing.
	ErrNotFound = errors.New("not found")
)

// HTTPError wraps an HTTP status code so retry logic can inspect it.
type HTTPError struct {
	StatusCode int
	RetryAfter time.Duration // from Retry-After header, zero if absent
	Err        error
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("HTTP %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error represents a transient failure worth retrying.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrRunInProgress) {
		return true
	}
	if errors.Is(err, ErrEmptyBatch) || errors.Is(err, ErrInvalidBatch) {
		return false
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == 429 || httpErr.StatusCode >= 500
	}

	// Network, DNS and similar.
	return true
}
