package store

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"

	"github.com/richroberts-prog/air-demand/internal/model"
)

// Runs only against a disposable database: AIRDEMAND_TEST_POSTGRES_DSN.
func TestPostgresStore_RoundTrip(t *testing.T) {
	dsn := os.Getenv("AIRDEMAND_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("AIRDEMAND_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	s, err := NewPostgresStore(ctx, dsn)
	if err != nil {
		t.Fatalf("NewPostgresStore: %v", err)
	}
	defer s.Close()

	run := model.ScrapeRun{RunID: uuid.NewString(), TriggeredBy: "test", StartedAt: t0}
	if err := s.BeginRun(ctx, &run); err != nil {
		t.Fatalf("BeginRun: %v", err)
	}

	externalID := "pg-" + run.RunID
	obs, err := s.RecordObservation(ctx, model.Observation{
		RunID:    run.ID,
		Role:     model.Role{ExternalID: externalID, Status: model.StatusActive, FirstSeenAt: t0, LastSeenAt: t0},
		Snapshot: model.Snapshot{CapturedAt: t0, ContentHash: "h"},
	})
	if err != nil {
		t.Fatalf("RecordObservation: %v", err)
	}
	if err := s.SaveAssessment(ctx, obs.RoleID, model.Assessment{Tier: model.TierSkip, Reasons: []string{"x"}, AssessedAt: t0}); err != nil {
		t.Fatalf("SaveAssessment: %v", err)
	}

	role, err := s.GetRole(ctx, externalID)
	if err != nil {
		t.Fatalf("GetRole: %v", err)
	}
	if role.Assessment.Tier != model.TierSkip || !role.FirstSeenAt.Equal(t0) {
		t.Errorf("role = %+v", role)
	}

	run.Status = model.RunCompleted
	if err := s.FinishRun(ctx, run); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	if err := s.FinishRun(ctx, run); !errors.Is(err, model.ErrRunSealed) {
		t.Errorf("second FinishRun error = %v, want ErrRunSealed", err)
	}
}
