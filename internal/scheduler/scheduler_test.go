package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/richroberts-prog/air-demand/internal/engine"
	"github.com/richroberts-prog/air-demand/internal/model"
)

// countingJob records each Poll call and the trigger it carried.
type countingJob struct {
	calls atomic.Int32
	err   error

	mu       sync.Mutex
	triggers []string
}

func (j *countingJob) Poll(ctx context.Context) (model.RunResult, error) {
	j.calls.Add(1)
	j.mu.Lock()
	j.triggers = append(j.triggers, engine.TriggerFrom(ctx))
	j.mu.Unlock()
	return model.RunResult{}, j.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func runFor(t *testing.T, s *Scheduler, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(d)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil error on cancel, got: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not return within 2s after cancel")
	}
}

func TestRun_RunOnStart(t *testing.T) {
	job := &countingJob{}
	s := NewScheduler(job, "0 5,17 * * *", time.UTC, true, discardLogger())

	runFor(t, s, 100*time.Millisecond)

	if got := job.calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1 immediate run", got)
	}
	if job.triggers[0] != "startup" {
		t.Errorf("trigger = %q, want startup", job.triggers[0])
	}
}

func TestRun_NoRunOnStart(t *testing.T) {
	job := &countingJob{}
	s := NewScheduler(job, "0 5,17 * * *", time.UTC, false, discardLogger())

	runFor(t, s, 100*time.Millisecond)

	if got := job.calls.Load(); got != 0 {
		t.Errorf("calls = %d, want 0", got)
	}
}

func TestRun_FiresOnSchedule(t *testing.T) {
	job := &countingJob{}
	s := NewScheduler(job, "@every 1s", time.UTC, false, discardLogger())

	runFor(t, s, 1500*time.Millisecond)

	if got := job.calls.Load(); got < 1 {
		t.Fatalf("calls = %d, want >= 1", got)
	}
	job.mu.Lock()
	defer job.mu.Unlock()
	if job.triggers[0] != "schedule" {
		t.Errorf("trigger = %q, want schedule", job.triggers[0])
	}
}

func TestRun_JobErrorsDoNotStopScheduler(t *testing.T) {
	for _, err := range []error{model.ErrRunInProgress, errors.New("store unreachable")} {
		job := &countingJob{err: err}
		s := NewScheduler(job, "@every 1h", time.UTC, true, discardLogger())
		runFor(t, s, 50*time.Millisecond)
		if got := job.calls.Load(); got != 1 {
			t.Errorf("calls = %d, want 1", got)
		}
	}
}

func TestRun_InvalidSpec(t *testing.T) {
	s := NewScheduler(&countingJob{}, "every tuesday", time.UTC, false, discardLogger())
	if err := s.Run(context.Background()); err == nil {
		t.Fatal("expected error for invalid cron spec")
	}
}
