package engine

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/richroberts-prog/air-demand/internal/model"
)

// TierMove is a role whose gate verdict changed on reassessment.
type TierMove struct {
	ExternalID string
	From       model.Tier
	To         model.Tier
}

// Reassessment summarises one Reassess pass.
type Reassessment struct {
	Assessed int
	Moves    []TierMove
}

// Reassess re-runs the gate, scorer and trend detector over the stored roles
// matching q and saves every result. It writes no snapshots or change events,
// so it is safe to repeat after a rules change. Callers hold the run lock.
func (e *Engine) Reassess(ctx context.Context, q model.RoleQuery) (Reassessment, error) {
	roles, err := e.store.ListRoles(ctx, q)
	if err != nil {
		return Reassessment{}, fmt.Errorf("listing roles: %w", err)
	}

	now := e.now().UTC().Truncate(time.Microsecond)
	tiers := make([]model.Tier, len(roles))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, role := range roles {
		g.Go(func() error {
			a, err := e.assess(gctx, role, now)
			if err != nil {
				return fmt.Errorf("role %s: %w", role.ExternalID, err)
			}
			tiers[i] = a.Tier
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Reassessment{}, err
	}

	res := Reassessment{Assessed: len(roles)}
	for i, role := range roles {
		if role.Assessment.Tier != tiers[i] {
			res.Moves = append(res.Moves, TierMove{ExternalID: role.ExternalID, From: role.Assessment.Tier, To: tiers[i]})
		}
	}
	e.logger.Info("reassessment complete", "assessed", res.Assessed, "moved", len(res.Moves))
	return res, nil
}
