package store

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/richroberts-prog/air-demand/internal/model"
)

var t0 = time.Date(2026, 3, 1, 5, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func ptr[T any](v T) *T { return &v }

func beginRun(t *testing.T, s *SQLStore, runID string, at time.Time) model.ScrapeRun {
	t.Helper()
	run := model.ScrapeRun{RunID: runID, TriggeredBy: "test", StartedAt: at}
	if err := s.BeginRun(context.Background(), &run); err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	return run
}

func observe(t *testing.T, s *SQLStore, run model.ScrapeRun, externalID string, f model.Fields, at time.Time, changes ...model.RoleChange) model.Observed {
	t.Helper()
	obs := model.Observation{
		RunID: run.ID,
		Role: model.Role{
			ExternalID:  externalID,
			Fields:      f,
			Status:      model.StatusActive,
			FirstSeenAt: at,
			LastSeenAt:  at,
		},
		Snapshot: model.Snapshot{CapturedAt: at, ContentHash: "hash-" + externalID, Fields: f},
		Changes:  changes,
	}
	got, err := s.RecordObservation(context.Background(), obs)
	if err != nil {
		t.Fatalf("RecordObservation(%s): %v", externalID, err)
	}
	return got
}

func TestRunLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run := beginRun(t, s, "run-1", t0)
	if run.ID == 0 || run.Status != model.RunRunning {
		t.Fatalf("BeginRun set ID=%d Status=%s", run.ID, run.Status)
	}

	done := t0.Add(time.Minute)
	run.Status = model.RunCompleted
	run.CompletedAt = &done
	run.Counts = model.RunCounts{Found: 3, New: 2, Unchanged: 1}
	run.Anomaly = true
	run.Warnings = []string{"batch smaller than expected"}
	if err := s.FinishRun(ctx, run); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	got, err := s.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Status != model.RunCompleted || got.Counts.Found != 3 || !got.Anomaly {
		t.Errorf("GetRun = %+v", got)
	}
	if got.Duration() != time.Minute {
		t.Errorf("Duration = %v, want 1m", got.Duration())
	}
	if len(got.Warnings) != 1 || len(got.Errors) != 0 {
		t.Errorf("Warnings = %v, Errors = %v", got.Warnings, got.Errors)
	}

	run.Status = model.RunFailed
	if err := s.FinishRun(ctx, run); !errors.Is(err, model.ErrRunSealed) {
		t.Errorf("second FinishRun error = %v, want ErrRunSealed", err)
	}

	missing := model.ScrapeRun{RunID: "nope", Status: model.RunCompleted}
	if err := s.FinishRun(ctx, missing); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("FinishRun(unknown) error = %v, want ErrNotFound", err)
	}

	beginRun(t, s, "run-2", t0.Add(12*time.Hour))
	runs, err := s.ListRuns(ctx, 10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 || runs[0].RunID != "run-2" {
		t.Errorf("ListRuns order = %v", runs)
	}
}

func TestRecordObservation_UpsertsAndLinksChanges(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run1 := beginRun(t, s, "run-1", t0)
	first := observe(t, s, run1, "r1", model.Fields{Title: "Backend Engineer", SalaryUpper: ptr(int64(200000))}, t0)

	run2 := beginRun(t, s, "run-2", t0.Add(12*time.Hour))
	prev := first.SnapshotID
	change := model.RoleChange{
		Type:           model.ChangeSalaryIncrease,
		Field:          "salary_upper",
		OldValue:       "200000",
		NewValue:       "230000",
		PrevSnapshotID: &prev,
		DetectedAt:     t0.Add(12 * time.Hour),
	}
	second := observe(t, s, run2, "r1", model.Fields{Title: "Backend Engineer", SalaryUpper: ptr(int64(230000))}, t0.Add(12*time.Hour), change)

	if second.RoleID != first.RoleID {
		t.Fatalf("role id changed on upsert: %d -> %d", first.RoleID, second.RoleID)
	}
	if len(second.Changes) != 1 || second.Changes[0].ID == 0 {
		t.Fatalf("Changes = %+v", second.Changes)
	}
	if c := second.Changes[0]; c.SnapshotID == nil || *c.SnapshotID != second.SnapshotID {
		t.Errorf("change SnapshotID = %v, want %d", c.SnapshotID, second.SnapshotID)
	}

	role, err := s.GetRole(ctx, "r1")
	if err != nil {
		t.Fatalf("GetRole: %v", err)
	}
	if !role.FirstSeenAt.Equal(t0) {
		t.Errorf("FirstSeenAt = %v, want %v", role.FirstSeenAt, t0)
	}
	if !role.LastSeenAt.Equal(t0.Add(12 * time.Hour)) {
		t.Errorf("LastSeenAt = %v", role.LastSeenAt)
	}
	if role.Fields.SalaryUpper == nil || *role.Fields.SalaryUpper != 230000 {
		t.Errorf("SalaryUpper = %v, want 230000", role.Fields.SalaryUpper)
	}

	changes, err := s.ListChanges(ctx, model.ChangeQuery{RoleID: role.ID})
	if err != nil {
		t.Fatalf("ListChanges: %v", err)
	}
	if len(changes) != 1 {
		t.Fatalf("got %d changes, want 1", len(changes))
	}
	c := changes[0]
	if c.ExternalID != "r1" || c.Type != model.ChangeSalaryIncrease || c.RunID != run2.ID {
		t.Errorf("change = %+v", c)
	}
	if c.PrevSnapshotID == nil || *c.PrevSnapshotID != first.SnapshotID {
		t.Errorf("PrevSnapshotID = %v, want %d", c.PrevSnapshotID, first.SnapshotID)
	}
}

func TestSnapshots(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	latest, err := s.LatestSnapshot(ctx, 42)
	if err != nil || latest != nil {
		t.Fatalf("LatestSnapshot(unknown) = %v, %v; want nil, nil", latest, err)
	}

	var roleID int64
	for i := 0; i < 5; i++ {
		at := t0.Add(time.Duration(i) * 12 * time.Hour)
		run := beginRun(t, s, "run-"+string(rune('a'+i)), at)
		obs := observe(t, s, run, "r1", model.Fields{TotalInterviewing: ptr(i)}, at)
		roleID = obs.RoleID
	}

	latest, err = s.LatestSnapshot(ctx, roleID)
	if err != nil {
		t.Fatalf("LatestSnapshot: %v", err)
	}
	if latest == nil || *latest.Fields.TotalInterviewing != 4 {
		t.Fatalf("LatestSnapshot = %+v", latest)
	}

	recent, err := s.RecentSnapshots(ctx, roleID, 3)
	if err != nil {
		t.Fatalf("RecentSnapshots: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("got %d snapshots, want 3", len(recent))
	}
	for i, want := range []int{2, 3, 4} {
		if got := *recent[i].Fields.TotalInterviewing; got != want {
			t.Errorf("recent[%d] interviewing = %d, want %d", i, got, want)
		}
	}
}

func TestRecordMiss(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run1 := beginRun(t, s, "run-1", t0)
	obs := observe(t, s, run1, "r1", model.Fields{Title: "Backend Engineer"}, t0)

	run2 := beginRun(t, s, "run-2", t0.Add(12*time.Hour))
	removedAt := t0.Add(12 * time.Hour)
	err := s.RecordMiss(ctx, model.Miss{
		RunID:             run2.ID,
		RoleID:            obs.RoleID,
		Status:            model.StatusRemoved,
		ConsecutiveMisses: 2,
		RemovedAt:         &removedAt,
		Change: &model.RoleChange{
			Type:           model.ChangeDisappeared,
			Field:          "lifecycle_status",
			OldValue:       string(model.StatusMissingPending),
			NewValue:       string(model.StatusRemoved),
			PrevSnapshotID: &obs.SnapshotID,
			DetectedAt:     removedAt,
		},
	})
	if err != nil {
		t.Fatalf("RecordMiss: %v", err)
	}

	role, err := s.GetRole(ctx, "r1")
	if err != nil {
		t.Fatalf("GetRole: %v", err)
	}
	if role.Status != model.StatusRemoved || role.ConsecutiveMisses != 2 || role.RemovedAt == nil {
		t.Errorf("role after miss = %+v", role)
	}

	changes, err := s.ListChanges(ctx, model.ChangeQuery{Types: []model.ChangeType{model.ChangeDisappeared}})
	if err != nil {
		t.Fatalf("ListChanges: %v", err)
	}
	if len(changes) != 1 || changes[0].SnapshotID != nil {
		t.Fatalf("DISAPPEARED changes = %+v, want one without a current snapshot", changes)
	}
	if changes[0].PrevSnapshotID == nil || *changes[0].PrevSnapshotID != obs.SnapshotID {
		t.Errorf("DISAPPEARED prev snapshot = %v, want %d", changes[0].PrevSnapshotID, obs.SnapshotID)
	}

	if err := s.RecordMiss(ctx, model.Miss{RoleID: 999, Status: model.StatusMissingPending}); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("RecordMiss(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestRecordMiss_RejectsUnanchoredChange(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run1 := beginRun(t, s, "run-1", t0)
	obs := observe(t, s, run1, "r1", model.Fields{Title: "Backend Engineer"}, t0)

	run2 := beginRun(t, s, "run-2", t0.Add(12*time.Hour))
	removedAt := t0.Add(12 * time.Hour)
	err := s.RecordMiss(ctx, model.Miss{
		RunID:             run2.ID,
		RoleID:            obs.RoleID,
		Status:            model.StatusRemoved,
		ConsecutiveMisses: 2,
		RemovedAt:         &removedAt,
		Change:            &model.RoleChange{Type: model.ChangeDisappeared, DetectedAt: removedAt},
	})
	if err == nil || !strings.Contains(err.Error(), "references no snapshot") {
		t.Fatalf("RecordMiss error = %v, want unanchored change rejected", err)
	}

	role, err := s.GetRole(ctx, "r1")
	if err != nil {
		t.Fatalf("GetRole: %v", err)
	}
	if role.Status != model.StatusActive {
		t.Errorf("status = %s, want ACTIVE after rolled back miss", role.Status)
	}
}

func TestListRoles_FiltersAndSorts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	run := beginRun(t, s, "run-1", t0)

	assess := func(id string, tier model.Tier, combined *float64) {
		obs := observe(t, s, run, id, model.Fields{Title: id}, t0)
		a := model.Assessment{Tier: tier, Reasons: []string{"because"}, AssessedAt: t0}
		if combined != nil {
			a.Scores = &model.Scores{
				Perspectives: []model.PerspectiveScore{{Name: "engineer", Score: *combined}, {Name: "headhunter", Score: *combined}},
				Combined:     *combined,
				DisplayTier:  model.DisplayWarm,
			}
		}
		if err := s.SaveAssessment(ctx, obs.RoleID, a); err != nil {
			t.Fatalf("SaveAssessment(%s): %v", id, err)
		}
	}
	assess("low", model.TierMaybe, ptr(0.45))
	assess("high", model.TierQualified, ptr(0.9))
	assess("skip", model.TierSkip, nil)

	all, err := s.ListRoles(ctx, model.RoleQuery{})
	if err != nil {
		t.Fatalf("ListRoles: %v", err)
	}
	gotOrder := []string{}
	for _, r := range all {
		gotOrder = append(gotOrder, r.ExternalID)
	}
	if len(gotOrder) != 3 || gotOrder[0] != "high" || gotOrder[1] != "low" || gotOrder[2] != "skip" {
		t.Errorf("default order = %v, want [high low skip]", gotOrder)
	}

	asc, err := s.ListRoles(ctx, model.RoleQuery{Sort: "combined", Ascending: true, Limit: 2})
	if err != nil {
		t.Fatalf("ListRoles ascending: %v", err)
	}
	if len(asc) != 2 || asc[0].ExternalID != "low" || asc[1].ExternalID != "high" {
		t.Errorf("ascending = %v", asc)
	}

	surfaced, err := s.ListRoles(ctx, model.RoleQuery{Tiers: []model.Tier{model.TierQualified, model.TierMaybe}})
	if err != nil {
		t.Fatalf("ListRoles by tier: %v", err)
	}
	if len(surfaced) != 2 {
		t.Errorf("got %d surfaced roles, want 2", len(surfaced))
	}
	if sc := surfaced[0].Assessment.Scores; sc == nil || sc.Combined != 0.9 {
		t.Errorf("scores did not round-trip: %+v", sc)
	}
	if surfaced[0].Assessment.Reasons[0] != "because" {
		t.Errorf("Reasons = %v", surfaced[0].Assessment.Reasons)
	}

	if _, err := s.ListRoles(ctx, model.RoleQuery{Sort: "vibes"}); err == nil {
		t.Error("expected error for unknown sort key")
	}
}

func TestGetRole_NotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetRole(context.Background(), "ghost"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("GetRole error = %v, want ErrNotFound", err)
	}
}

func TestDigestMark(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	at, err := s.DigestMark(ctx, "default")
	if err != nil || !at.IsZero() {
		t.Fatalf("DigestMark before set = %v, %v; want zero time", at, err)
	}
	for _, mark := range []time.Time{t0, t0.Add(time.Hour)} {
		if err := s.SetDigestMark(ctx, "default", mark); err != nil {
			t.Fatalf("SetDigestMark: %v", err)
		}
	}
	at, err = s.DigestMark(ctx, "default")
	if err != nil {
		t.Fatalf("DigestMark: %v", err)
	}
	if !at.Equal(t0.Add(time.Hour)) {
		t.Errorf("DigestMark = %v, want %v", at, t0.Add(time.Hour))
	}
}

func TestRebind(t *testing.T) {
	q := "UPDATE roles SET status = ? WHERE id = ? AND tier IN (?, ?)"
	if got := sqliteDialect.rebind(q); got != q {
		t.Errorf("sqlite rebind changed the query: %q", got)
	}
	want := "UPDATE roles SET status = $1 WHERE id = $2 AND tier IN ($3, $4)"
	if got := postgresDialect.rebind(q); got != want {
		t.Errorf("postgres rebind = %q, want %q", got, want)
	}
}

func TestNullTime_ScanText(t *testing.T) {
	for _, in := range []any{"2026-03-01 05:00:00+00:00", []byte("2026-03-01T05:00:00Z"), t0} {
		var n nullTime
		if err := n.Scan(in); err != nil {
			t.Fatalf("Scan(%v): %v", in, err)
		}
		if !n.Valid || !n.Time.Equal(t0) {
			t.Errorf("Scan(%v) = %v", in, n.Time)
		}
	}
	var n nullTime
	if err := n.Scan(nil); err != nil || n.Valid {
		t.Errorf("Scan(nil) = %+v, %v", n, err)
	}
}
