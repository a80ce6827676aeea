// Package digest selects the surfaced roles worth announcing: everything new
// or changed, either in a single run or since the last committed digest.
package digest

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/richroberts-prog/air-demand/internal/model"
)

// DefaultMark names the digest mark used when callers do not pick one.
const DefaultMark = "daily"

// FromRun builds the digest for one ingestion run from its outcomes.
func FromRun(res model.RunResult, tiers []model.Tier) model.Digest {
	d := model.Digest{
		RunID:       res.Run.RunID,
		Since:       res.Run.StartedAt,
		GeneratedAt: res.Run.StartedAt,
	}
	if res.Run.CompletedAt != nil {
		d.GeneratedAt = *res.Run.CompletedAt
	}

	for _, o := range res.Outcomes {
		if !slices.Contains(tiers, o.Assessment.Tier) {
			continue
		}
		entry := model.DigestEntry{
			Role: model.Role{
				ID:         o.RoleID,
				ExternalID: o.ExternalID,
				Fields:     o.Fields,
				Status:     o.Status,
				Assessment: o.Assessment,
			},
			Changes: o.Changes,
		}
		switch o.Classification {
		case model.ClassNew:
			d.New = append(d.New, entry)
		case model.ClassChanged:
			d.Changed = append(d.Changed, entry)
		}
	}
	sortEntries(d.New)
	sortEntries(d.Changed)
	return d
}

// Builder assembles since-last-digest views from the store.
type Builder struct {
	store model.RoleStore
	tiers []model.Tier
	now   func() time.Time
}

func NewBuilder(store model.RoleStore, tiers []model.Tier) *Builder {
	return &Builder{store: store, tiers: tiers, now: time.Now}
}

// SinceMark builds the digest of roles first seen or changed after the named
// mark. A mark that was never committed yields every surfaced role as new.
func (b *Builder) SinceMark(ctx context.Context, mark string) (model.Digest, error) {
	since, err := b.store.DigestMark(ctx, mark)
	if err != nil {
		return model.Digest{}, fmt.Errorf("reading digest mark %s: %w", mark, err)
	}
	return b.Since(ctx, since)
}

// Since builds the digest of roles first seen or changed after since.
func (b *Builder) Since(ctx context.Context, since time.Time) (model.Digest, error) {
	d := model.Digest{Since: since, GeneratedAt: b.now().UTC()}

	roles, err := b.store.ListRoles(ctx, model.RoleQuery{
		Tiers:     b.tiers,
		Statuses:  []model.LifecycleStatus{model.StatusActive},
		SeenSince: since,
	})
	if err != nil {
		return model.Digest{}, fmt.Errorf("building digest: %w", err)
	}
	if len(roles) == 0 {
		return d, nil
	}

	changes, err := b.store.ListChanges(ctx, model.ChangeQuery{Since: since})
	if err != nil {
		return model.Digest{}, fmt.Errorf("building digest: %w", err)
	}
	byRole := make(map[int64][]model.RoleChange)
	for _, c := range changes {
		byRole[c.RoleID] = append(byRole[c.RoleID], c)
	}

	for _, r := range roles {
		switch {
		case since.IsZero() || r.FirstSeenAt.After(since):
			d.New = append(d.New, model.DigestEntry{Role: r})
		case len(byRole[r.ID]) > 0:
			d.Changed = append(d.Changed, model.DigestEntry{Role: r, Changes: byRole[r.ID]})
		}
	}
	sortEntries(d.New)
	sortEntries(d.Changed)
	return d, nil
}

// Commit advances the named mark to when d was generated, so the next
// SinceMark starts where d ended.
func (b *Builder) Commit(ctx context.Context, mark string, d model.Digest) error {
	if err := b.store.SetDigestMark(ctx, mark, d.GeneratedAt); err != nil {
		return fmt.Errorf("committing digest mark %s: %w", mark, err)
	}
	return nil
}

// sortEntries orders by combined score descending, unscored last.
func sortEntries(entries []model.DigestEntry) {
	slices.SortStableFunc(entries, func(a, b model.DigestEntry) int {
		as, bs := a.Role.Assessment.Scores, b.Role.Assessment.Scores
		switch {
		case as == nil && bs == nil:
		case as == nil:
			return 1
		case bs == nil:
			return -1
		default:
			if c := cmp.Compare(bs.Combined, as.Combined); c != 0 {
				return c
			}
		}
		return cmp.Compare(a.Role.ExternalID, b.Role.ExternalID)
	})
}
