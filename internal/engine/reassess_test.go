package engine

import (
	"context"
	"testing"
	"time"

	"github.com/richroberts-prog/air-demand/internal/config"
	"github.com/richroberts-prog/air-demand/internal/model"
)

func TestReassess_AppliesNewRules(t *testing.T) {
	first, s, clock := newTestEngine(t, nil)
	ctx := context.Background()

	ingest(t, first, clock, batch(record("r1", 250000), record("r2", 210000), record("r3", 260000)))
	ingest(t, first, clock, batch(record("r1", 250000), record("r2", 210000)))

	before, err := s.GetRole(ctx, "r2")
	if err != nil {
		t.Fatalf("GetRole: %v", err)
	}
	if !before.Assessment.Tier.Surfaced() {
		t.Fatalf("r2 tier = %s before the floor moved, want surfaced", before.Assessment.Tier)
	}
	runs, err := s.ListRuns(ctx, 10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}

	cfg := config.Default()
	cfg.Qualification.SalaryFloor = 240000
	e, err := New(cfg, s, discardLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	clock.advance(time.Hour)
	e.now = clock.now

	res, err := e.Reassess(ctx, model.RoleQuery{Statuses: []model.LifecycleStatus{model.StatusActive}})
	if err != nil {
		t.Fatalf("Reassess: %v", err)
	}
	if res.Assessed != 2 {
		t.Errorf("Assessed = %d, want only the two active roles", res.Assessed)
	}
	if len(res.Moves) != 1 || res.Moves[0].ExternalID != "r2" || res.Moves[0].To != model.TierSkip {
		t.Fatalf("Moves = %+v, want r2 moved to SKIP", res.Moves)
	}

	after, err := s.GetRole(ctx, "r2")
	if err != nil {
		t.Fatalf("GetRole: %v", err)
	}
	if after.Assessment.Tier != model.TierSkip || after.Assessment.Scores != nil {
		t.Errorf("stored r2 assessment = %+v, want unscored SKIP", after.Assessment)
	}
	if !after.Assessment.AssessedAt.Equal(clock.now().UTC().Truncate(time.Microsecond)) {
		t.Errorf("AssessedAt = %v, want the reassessment time", after.Assessment.AssessedAt)
	}

	pending, err := s.GetRole(ctx, "r3")
	if err != nil {
		t.Fatalf("GetRole: %v", err)
	}
	if pending.Status != model.StatusMissingPending || !pending.Assessment.Tier.Surfaced() {
		t.Errorf("r3 = %s %s, want pending role left alone", pending.Status, pending.Assessment.Tier)
	}

	history, err := s.RecentSnapshots(ctx, after.ID, 10)
	if err != nil {
		t.Fatalf("RecentSnapshots: %v", err)
	}
	if len(history) != 2 {
		t.Errorf("got %d snapshots, want reassessment to add none", len(history))
	}
	again, err := s.ListRuns(ctx, 10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(again) != len(runs) {
		t.Errorf("runs = %d, want %d", len(again), len(runs))
	}
}

func TestReassess_Idempotent(t *testing.T) {
	e, _, clock := newTestEngine(t, nil)
	ctx := context.Background()
	ingest(t, e, clock, batch(record("r1", 250000), record("r2", 150000)))

	for i := range 2 {
		res, err := e.Reassess(ctx, model.RoleQuery{})
		if err != nil {
			t.Fatalf("Reassess #%d: %v", i+1, err)
		}
		if res.Assessed != 2 || len(res.Moves) != 0 {
			t.Errorf("Reassess #%d = %+v, want no moves under unchanged rules", i+1, res)
		}
	}
}
