// Package engine turns a scraper batch into versioned roles: it diffs each
// record against its last snapshot, advances the lifecycle state machine,
// gates, scores and labels every role, and seals the run.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/richroberts-prog/air-demand/internal/config"
	"github.com/richroberts-prog/air-demand/internal/diff"
	"github.com/richroberts-prog/air-demand/internal/lifecycle"
	"github.com/richroberts-prog/air-demand/internal/model"
	"github.com/richroberts-prog/air-demand/internal/qualify"
	"github.com/richroberts-prog/air-demand/internal/scoring"
	"github.com/richroberts-prog/air-demand/internal/trend"
)

const lifecycleField = "lifecycle_status"

type triggerKey struct{}

// WithTrigger labels the runs started with ctx, e.g. "schedule" or "api".
func WithTrigger(ctx context.Context, trigger string) context.Context {
	return context.WithValue(ctx, triggerKey{}, trigger)
}

// TriggerFrom returns the label set by WithTrigger, or "manual".
func TriggerFrom(ctx context.Context) string {
	if t, ok := ctx.Value(triggerKey{}).(string); ok && t != "" {
		return t
	}
	return "manual"
}

// Engine runs ingestion batches against a RoleStore. Callers serialise runs;
// see internal/lock.
type Engine struct {
	store         model.RoleStore
	gate          *qualify.Gate
	scorer        *scoring.Scorer
	trends        *trend.Detector
	workers       int
	minBatchRatio float64
	missThreshold int
	logger        *slog.Logger

	now      func() time.Time
	newRunID func() string
}

// New wires an engine from the validated configuration.
func New(cfg *config.Config, store model.RoleStore, logger *slog.Logger) (*Engine, error) {
	scorer, err := scoring.NewScorer(cfg.Scoring, cfg.Investors, cfg.Qualification.Locations)
	if err != nil {
		return nil, fmt.Errorf("building scorer: %w", err)
	}
	return &Engine{
		store:         store,
		gate:          qualify.NewGate(cfg.Qualification, cfg.Investors),
		scorer:        scorer,
		trends:        trend.NewDetector(cfg.Trend),
		workers:       max(cfg.Engine.Workers, 1),
		minBatchRatio: cfg.Engine.MinBatchRatio,
		missThreshold: cfg.Lifecycle.DisappearanceThreshold,
		logger:        logger,
		now:           time.Now,
		newRunID:      uuid.NewString,
	}, nil
}

// RunIngestion processes one batch as a single logical unit of work. A batch
// without a single valid record is rejected with model.ErrEmptyBatch before
// anything is written. A store failure marks the run failed and returns the
// partial result alongside the error.
func (e *Engine) RunIngestion(ctx context.Context, batch model.Batch) (model.RunResult, error) {
	if len(batch.Records) == 0 {
		return model.RunResult{}, fmt.Errorf("%w: %d records, %d rejected", model.ErrEmptyBatch, batch.Size(), len(batch.Rejected))
	}

	now := e.now().UTC().Truncate(time.Microsecond)
	run := model.ScrapeRun{
		RunID:       e.newRunID(),
		TriggeredBy: TriggerFrom(ctx),
		StartedAt:   now,
	}
	if err := e.store.BeginRun(ctx, &run); err != nil {
		return model.RunResult{}, fmt.Errorf("starting run: %w", err)
	}
	logger := e.logger.With("run_id", run.RunID)
	result := model.RunResult{Run: run}

	for _, rej := range batch.Rejected {
		run.Errors = append(run.Errors, rej.String())
	}
	run.Counts.Rejected = len(batch.Rejected)

	records := dedupe(batch.Records, &run)

	existing, err := e.store.LoadRoles(ctx)
	if err != nil {
		return e.fail(ctx, logger, run, result, fmt.Errorf("loading roles: %w", err))
	}
	byExternalID := make(map[string]*model.Role, len(existing))
	tracked := 0
	for i := range existing {
		byExternalID[existing[i].ExternalID] = &existing[i]
		if existing[i].Status.Tracked() {
			tracked++
		}
	}

	if tracked > 0 && float64(len(records)) < e.minBatchRatio*float64(tracked) {
		run.Anomaly = true
		msg := fmt.Sprintf("batch has %d records but %d roles are tracked; disappearance processing skipped for review",
			len(records), tracked)
		run.Warnings = append(run.Warnings, msg)
		logger.Warn("mass disappearance anomaly", "records", len(records), "tracked", tracked)
	}

	outcomes := make([]model.RoleOutcome, len(records))
	illegal := make([]error, len(records))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, rec := range records {
		prev := byExternalID[string(rec.ID)]
		g.Go(func() error {
			out, err := e.observe(gctx, run.ID, rec, prev, now)
			if errors.Is(err, lifecycle.ErrIllegalTransition) {
				illegal[i] = err
				return nil
			}
			if err != nil {
				return fmt.Errorf("role %s: %w", rec.ID, err)
			}
			outcomes[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		result.Outcomes = completed(outcomes)
		return e.fail(ctx, logger, run, result, err)
	}
	result.Outcomes = completed(outcomes)
	for i, err := range illegal {
		if err == nil {
			continue
		}
		// The stored row is left untouched for an operator to repair.
		run.Errors = append(run.Errors, fmt.Sprintf("role %s skipped: %v", records[i].ID, err))
		run.Counts.Rejected++
		logger.Warn("role skipped", "external_id", records[i].ID, "error", err)
	}

	present := make(map[string]bool, len(records))
	for _, rec := range records {
		present[string(rec.ID)] = true
	}
	var absent []*model.Role
	for i := range existing {
		if existing[i].Status.Tracked() && !present[existing[i].ExternalID] {
			absent = append(absent, &existing[i])
		}
	}
	sort.Slice(absent, func(i, j int) bool { return absent[i].ID < absent[j].ID })

	run.Counts.Missing = len(absent)
	if !run.Anomaly {
		for _, role := range absent {
			out, err := e.miss(ctx, run.ID, *role, now)
			if errors.Is(err, lifecycle.ErrIllegalTransition) {
				run.Errors = append(run.Errors, fmt.Sprintf("role %s skipped: %v", role.ExternalID, err))
				run.Counts.Rejected++
				logger.Warn("role skipped", "external_id", role.ExternalID, "error", err)
				continue
			}
			if err != nil {
				return e.fail(ctx, logger, run, result, fmt.Errorf("role %s: %w", role.ExternalID, err))
			}
			result.Outcomes = append(result.Outcomes, out)
		}
	}

	tally(&run.Counts, result.Outcomes)
	done := e.now().UTC().Truncate(time.Microsecond)
	run.Status = model.RunCompleted
	run.CompletedAt = &done
	if err := e.store.FinishRun(ctx, run); err != nil {
		return e.fail(ctx, logger, run, result, fmt.Errorf("sealing run: %w", err))
	}
	result.Run = run

	logger.Info("ingestion run complete",
		"found", run.Counts.Found,
		"new", run.Counts.New,
		"changed", run.Counts.Changed,
		"unchanged", run.Counts.Unchanged,
		"qualified", run.Counts.Qualified,
		"missing", run.Counts.Missing,
		"disappeared", run.Counts.Disappeared,
		"reappeared", run.Counts.Reappeared,
		"rejected", run.Counts.Rejected,
		"anomaly", run.Anomaly,
		"duration", run.Duration(),
	)
	return result, nil
}

// dedupe keeps the first record per id and logs the rest as run errors.
func dedupe(records []model.RawRecord, run *model.ScrapeRun) []model.RawRecord {
	seen := make(map[model.SourceID]bool, len(records))
	out := make([]model.RawRecord, 0, len(records))
	for i, rec := range records {
		if seen[rec.ID] {
			run.Errors = append(run.Errors, model.RecordError{
				Index:      i,
				ExternalID: string(rec.ID),
				Message:    "duplicate id in batch, keeping first occurrence",
			}.String())
			run.Counts.Rejected++
			continue
		}
		seen[rec.ID] = true
		out = append(out, rec)
	}
	return out
}

// observe runs diff, lifecycle, snapshot, qualification, scoring and trend for
// one present record, in that order.
func (e *Engine) observe(ctx context.Context, runID int64, rec model.RawRecord, prev *model.Role, now time.Time) (model.RoleOutcome, error) {
	externalID := string(rec.ID)
	role := model.Role{
		ExternalID:  externalID,
		Fields:      rec.Fields,
		FirstSeenAt: now,
		LastSeenAt:  now,
	}
	out := model.RoleOutcome{ExternalID: externalID, Fields: rec.Fields, Classification: model.ClassNew}

	state := lifecycle.State{Status: model.StatusActive}
	if prev != nil {
		state = lifecycle.State{Status: prev.Status, Misses: prev.ConsecutiveMisses}
	}
	tr, err := lifecycle.Observe(state)
	if err != nil {
		return out, err
	}
	var changes []model.RoleChange
	if prev != nil {
		role.FirstSeenAt = prev.FirstSeenAt

		last, err := e.store.LatestSnapshot(ctx, prev.ID)
		if err != nil {
			return out, err
		}
		baseline := prev.Fields
		var prevSnapshotID *int64
		if last != nil {
			baseline = last.Fields
			id := last.ID
			prevSnapshotID = &id
		}

		for _, fc := range diff.Compare(baseline, rec.Fields) {
			changes = append(changes, model.RoleChange{
				Type:           fc.Type,
				Field:          fc.Field,
				OldValue:       fc.OldValue,
				NewValue:       fc.NewValue,
				PrevSnapshotID: prevSnapshotID,
				DetectedAt:     now,
			})
		}
		if tr.Event == model.ChangeReappeared {
			changes = append(changes, model.RoleChange{
				Type:           model.ChangeReappeared,
				Field:          lifecycleField,
				OldValue:       string(tr.From.Status),
				NewValue:       string(tr.To.Status),
				PrevSnapshotID: prevSnapshotID,
				DetectedAt:     now,
			})
		}

		out.Classification = model.ClassUnchanged
		if len(changes) > 0 {
			out.Classification = model.ClassChanged
		}
	}
	role.Status = tr.To.Status
	role.ConsecutiveMisses = tr.To.Misses

	observed, err := e.store.RecordObservation(ctx, model.Observation{
		RunID: runID,
		Role:  role,
		Snapshot: model.Snapshot{
			CapturedAt:  now,
			ContentHash: diff.Hash(rec.Fields),
			Fields:      rec.Fields,
		},
		Changes: changes,
	})
	if err != nil {
		return out, err
	}
	role.ID = observed.RoleID
	out.RoleID = observed.RoleID
	out.Changes = observed.Changes
	out.Status = tr.Reported()
	if prev != nil && tr.Changed() {
		e.logger.Debug("role status changed", "external_id", externalID, "from", tr.From.Status, "to", tr.To.Status)
	}

	assessment, err := e.assess(ctx, role, now)
	if err != nil {
		return out, err
	}
	out.Assessment = assessment

	e.logger.Debug("role observed",
		"external_id", externalID,
		"classification", out.Classification,
		"changes", len(out.Changes),
		"tier", assessment.Tier,
		"trend", assessment.Trend,
	)
	return out, nil
}

// assess gates the role, scores it when surfaced, labels its trend and saves
// the result.
func (e *Engine) assess(ctx context.Context, role model.Role, now time.Time) (model.Assessment, error) {
	verdict := e.gate.Evaluate(role.Fields, role.Status)
	a := model.Assessment{Tier: verdict.Tier, Reasons: verdict.Reasons, AssessedAt: now}
	if verdict.Tier.Surfaced() {
		scores := e.scorer.Score(role.Fields)
		a.Scores = &scores
	}

	history, err := e.store.RecentSnapshots(ctx, role.ID, e.trends.Window())
	if err != nil {
		return a, err
	}
	a.Trend = e.trends.Detect(history, role.Status, role.PostedAt(), now)

	if err := e.store.SaveAssessment(ctx, role.ID, a); err != nil {
		return a, err
	}
	return a, nil
}

// miss advances a tracked role that was absent from the batch. A role that
// crosses into REMOVED is re-gated so it drops out of surfaced views; a
// pending role keeps its last assessment.
func (e *Engine) miss(ctx context.Context, runID int64, role model.Role, now time.Time) (model.RoleOutcome, error) {
	tr, err := lifecycle.Miss(lifecycle.State{Status: role.Status, Misses: role.ConsecutiveMisses}, e.missThreshold)
	if err != nil {
		return model.RoleOutcome{}, err
	}
	m := model.Miss{
		RunID:             runID,
		RoleID:            role.ID,
		Status:            tr.To.Status,
		ConsecutiveMisses: tr.To.Misses,
	}
	if tr.Event == model.ChangeDisappeared {
		// The role is absent this run, so the event points at its last snapshot only.
		last, err := e.store.LatestSnapshot(ctx, role.ID)
		if err != nil {
			return model.RoleOutcome{}, err
		}
		if last == nil {
			return model.RoleOutcome{}, fmt.Errorf("role %s has no snapshot to mark as disappeared", role.ExternalID)
		}
		prevSnapshotID := last.ID
		removedAt := now
		m.RemovedAt = &removedAt
		m.Change = &model.RoleChange{
			Type:           model.ChangeDisappeared,
			Field:          lifecycleField,
			OldValue:       string(tr.From.Status),
			NewValue:       string(tr.To.Status),
			PrevSnapshotID: &prevSnapshotID,
			DetectedAt:     now,
		}
	}
	if err := e.store.RecordMiss(ctx, m); err != nil {
		return model.RoleOutcome{}, err
	}

	out := model.RoleOutcome{
		ExternalID:     role.ExternalID,
		RoleID:         role.ID,
		Fields:         role.Fields,
		Classification: model.ClassMissing,
		Status:         tr.To.Status,
		Assessment:     role.Assessment,
	}
	if m.Change != nil {
		c := *m.Change
		c.RoleID, c.RunID, c.ExternalID = role.ID, runID, role.ExternalID
		out.Changes = []model.RoleChange{c}

		verdict := e.gate.Evaluate(role.Fields, tr.To.Status)
		a := model.Assessment{Tier: verdict.Tier, Reasons: verdict.Reasons, AssessedAt: now}
		if err := e.store.SaveAssessment(ctx, role.ID, a); err != nil {
			return out, err
		}
		out.Assessment = a
	}
	e.logger.Debug("role missing", "external_id", role.ExternalID, "status", tr.To.Status, "misses", tr.To.Misses)
	return out, nil
}

func tally(c *model.RunCounts, outcomes []model.RoleOutcome) {
	for _, o := range outcomes {
		switch o.Classification {
		case model.ClassNew:
			c.New++
		case model.ClassChanged:
			c.Changed++
		case model.ClassUnchanged:
			c.Unchanged++
		case model.ClassMissing:
			if o.Status == model.StatusRemoved {
				c.Disappeared++
			}
			continue
		}
		c.Found++
		if o.Classification != model.ClassNew {
			c.Updated++
		}
		if o.Status == model.StatusReappeared {
			c.Reappeared++
		}
		if o.Assessment.Tier.Surfaced() {
			c.Qualified++
		}
	}
}

// completed drops the zero outcomes of records that never finished.
func completed(outcomes []model.RoleOutcome) []model.RoleOutcome {
	out := make([]model.RoleOutcome, 0, len(outcomes))
	for _, o := range outcomes {
		if o.RoleID != 0 {
			out = append(out, o)
		}
	}
	return out
}

// fail seals the run as failed with whatever was counted so far.
func (e *Engine) fail(ctx context.Context, logger *slog.Logger, run model.ScrapeRun, result model.RunResult, cause error) (model.RunResult, error) {
	tally(&run.Counts, result.Outcomes)
	done := e.now().UTC().Truncate(time.Microsecond)
	run.Status = model.RunFailed
	run.CompletedAt = &done
	run.Errors = append(run.Errors, cause.Error())

	if err := e.store.FinishRun(context.WithoutCancel(ctx), run); err != nil && !errors.Is(err, model.ErrRunSealed) {
		logger.Error("failed to seal failed run", "error", err)
	}
	result.Run = run
	logger.Error("ingestion run failed", "error", cause)
	return result, fmt.Errorf("ingestion run %s: %w", run.RunID, cause)
}
