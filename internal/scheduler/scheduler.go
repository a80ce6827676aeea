package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/richroberts-prog/air-demand/internal/engine"
	"github.com/richroberts-prog/air-demand/internal/model"
)

// Job is one ingestion cycle.
type Job interface {
	Poll(ctx context.Context) (model.RunResult, error)
}

// Scheduler owns the daemon loop: fires the job on a cron spec in a fixed
// timezone until the context is cancelled.
type Scheduler struct {
	job        Job
	spec       string
	location   *time.Location
	runOnStart bool
	logger     *slog.Logger
}

// NewScheduler creates a scheduler. spec is a standard five-field cron
// expression or a descriptor such as "@every 1h".
func NewScheduler(job Job, spec string, location *time.Location, runOnStart bool, logger *slog.Logger) *Scheduler {
	if location == nil {
		location = time.UTC
	}
	return &Scheduler{
		job:        job,
		spec:       spec,
		location:   location,
		runOnStart: runOnStart,
		logger:     logger,
	}
}

// Run blocks until ctx is cancelled, then waits for an in-flight job to
// finish. Overlapping ticks are skipped. It returns nil on graceful shutdown.
func (s *Scheduler) Run(ctx context.Context) error {
	log := cronLogger{s.logger}
	c := cron.New(
		cron.WithLocation(s.location),
		cron.WithLogger(log),
		cron.WithChain(cron.Recover(log), cron.SkipIfStillRunning(log)),
	)
	id, err := c.AddFunc(s.spec, func() { s.poll(ctx, "schedule") })
	if err != nil {
		return fmt.Errorf("registering cron job %q: %w", s.spec, err)
	}

	s.logger.Info("starting scheduler",
		"spec", s.spec,
		"timezone", s.location.String(),
	)

	if s.runOnStart {
		s.poll(ctx, "startup")
	}

	c.Start()
	s.logger.Info("next ingestion run", "at", c.Entry(id).Next)

	<-ctx.Done()
	s.logger.Info("shutting down scheduler")
	<-c.Stop().Done()
	return nil
}

func (s *Scheduler) poll(ctx context.Context, trigger string) {
	if ctx.Err() != nil {
		return
	}
	res, err := s.job.Poll(engine.WithTrigger(ctx, trigger))
	switch {
	case errors.Is(err, model.ErrRunInProgress):
		s.logger.Warn("skipping ingestion run, another run holds the lock", "trigger", trigger)
	case err != nil:
		s.logger.Error("ingestion run failed", "trigger", trigger, "run_id", res.Run.RunID, "error", err)
	}
}

// cronLogger routes cron's own logging through slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
