package poller

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/richroberts-prog/air-demand/internal/digest"
	"github.com/richroberts-prog/air-demand/internal/model"
)

// Ingester applies one batch to the entity store.
type Ingester interface {
	RunIngestion(ctx context.Context, batch model.Batch) (model.RunResult, error)
}

// RunHistory reports earlier scrape runs.
type RunHistory interface {
	ListRuns(ctx context.Context, limit int) ([]model.ScrapeRun, error)
}

// Poller owns one ingestion cycle:
// lock → fetch → ingest → unlock → notify.
type Poller struct {
	source   model.BatchSource
	locker   model.Locker
	engine   Ingester
	history  RunHistory
	notifier model.Notifier
	tiers    []model.Tier
	logger   *slog.Logger
}

// NewPoller creates a poller wired with all its dependencies. tiers selects
// which qualification tiers are announced.
func NewPoller(
	source model.BatchSource,
	locker model.Locker,
	engine Ingester,
	history RunHistory,
	notifier model.Notifier,
	tiers []model.Tier,
	logger *slog.Logger,
) *Poller {
	return &Poller{
		source:   source,
		locker:   locker,
		engine:   engine,
		history:  history,
		notifier: notifier,
		tiers:    tiers,
		logger:   logger,
	}
}

// Poll runs one cycle. The error wraps model.ErrRunInProgress when another
// run holds the lock. The very first run against an empty store
// seeds it without announcing anything.
func (p *Poller) Poll(ctx context.Context) (model.RunResult, error) {
	release, err := p.locker.Acquire(ctx)
	if err != nil {
		return model.RunResult{}, fmt.Errorf("acquiring run lock: %w", err)
	}
	res, firstRun, err := p.ingest(ctx)
	release()
	if err != nil {
		return res, err
	}

	d := digest.FromRun(res, p.tiers)
	switch {
	case firstRun:
		p.logger.Info("first run, seeding store without notifying", "run_id", res.Run.RunID, "roles", res.Run.Counts.New)
	case d.Empty():
		p.logger.Debug("nothing to announce", "run_id", res.Run.RunID)
	default:
		if err := p.notifier.Notify(d); err != nil {
			// The run is committed; a failed announcement does not undo it.
			p.logger.Error("notification failed", "run_id", res.Run.RunID, "error", err)
		}
	}

	p.logger.Info("poll complete",
		"run_id", res.Run.RunID,
		"found", res.Run.Counts.Found,
		"new", len(d.New),
		"changed", len(d.Changed),
	)
	return res, nil
}

func (p *Poller) ingest(ctx context.Context) (model.RunResult, bool, error) {
	runs, err := p.history.ListRuns(ctx, 1)
	if err != nil {
		return model.RunResult{}, false, fmt.Errorf("checking run history: %w", err)
	}

	batch, err := p.source.FetchBatch(ctx)
	if err != nil {
		return model.RunResult{}, false, fmt.Errorf("fetching batch: %w", err)
	}

	res, err := p.engine.RunIngestion(ctx, batch)
	if err != nil {
		return res, false, fmt.Errorf("ingesting batch: %w", err)
	}
	return res, len(runs) == 0, nil
}
