package api

import (
	"time"

	"github.com/richroberts-prog/air-demand/internal/model"
)

type roleResponse struct {
	ExternalID        string                `json:"external_id"`
	Title             string                `json:"title"`
	Company           string                `json:"company"`
	Status            model.LifecycleStatus `json:"status"`
	ConsecutiveMisses int                   `json:"consecutive_misses"`
	FirstSeenAt       time.Time             `json:"first_seen_at"`
	LastSeenAt        time.Time             `json:"last_seen_at"`
	RemovedAt         *time.Time            `json:"removed_at,omitempty"`
	Tier              model.Tier            `json:"tier"`
	Reasons           []string              `json:"reasons"`
	Scores            *model.Scores         `json:"scores,omitempty"`
	Trend             model.TrendLabel      `json:"trend,omitempty"`
	AssessedAt        time.Time             `json:"assessed_at"`
	Fields            model.Fields          `json:"fields"`
}

func toRole(r model.Role) roleResponse {
	return roleResponse{
		ExternalID:        r.ExternalID,
		Title:             r.Fields.Title,
		Company:           r.Fields.Company.Name,
		Status:            r.Status,
		ConsecutiveMisses: r.ConsecutiveMisses,
		FirstSeenAt:       r.FirstSeenAt,
		LastSeenAt:        r.LastSeenAt,
		RemovedAt:         r.RemovedAt,
		Tier:              r.Assessment.Tier,
		Reasons:           r.Assessment.Reasons,
		Scores:            r.Assessment.Scores,
		Trend:             r.Assessment.Trend,
		AssessedAt:        r.Assessment.AssessedAt,
		Fields:            r.Fields,
	}
}

func toRoles(roles []model.Role) []roleResponse {
	out := make([]roleResponse, 0, len(roles))
	for _, r := range roles {
		out = append(out, toRole(r))
	}
	return out
}

type changeResponse struct {
	ExternalID string           `json:"external_id"`
	Type       model.ChangeType `json:"type"`
	Field      string           `json:"field"`
	OldValue   string           `json:"old_value"`
	NewValue   string           `json:"new_value"`
	DetectedAt time.Time        `json:"detected_at"`
}

func toChanges(changes []model.RoleChange) []changeResponse {
	out := make([]changeResponse, 0, len(changes))
	for _, c := range changes {
		out = append(out, changeResponse{
			ExternalID: c.ExternalID,
			Type:       c.Type,
			Field:      c.Field,
			OldValue:   c.OldValue,
			NewValue:   c.NewValue,
			DetectedAt: c.DetectedAt,
		})
	}
	return out
}

type snapshotResponse struct {
	CapturedAt  time.Time    `json:"captured_at"`
	ContentHash string       `json:"content_hash"`
	Fields      model.Fields `json:"fields"`
}

type roleDetailResponse struct {
	roleResponse
	Changes   []changeResponse   `json:"changes"`
	Snapshots []snapshotResponse `json:"snapshots"`
}

type runResponse struct {
	RunID       string          `json:"run_id"`
	Status      model.RunStatus `json:"status"`
	TriggeredBy string          `json:"triggered_by"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	DurationMS  int64           `json:"duration_ms"`
	Counts      model.RunCounts `json:"counts"`
	Anomaly     bool            `json:"anomaly"`
	Errors      []string        `json:"errors"`
	Warnings    []string        `json:"warnings"`
}

func toRun(r model.ScrapeRun) runResponse {
	return runResponse{
		RunID:       r.RunID,
		Status:      r.Status,
		TriggeredBy: r.TriggeredBy,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
		DurationMS:  r.Duration().Milliseconds(),
		Counts:      r.Counts,
		Anomaly:     r.Anomaly,
		Errors:      nonNil(r.Errors),
		Warnings:    nonNil(r.Warnings),
	}
}

type digestEntryResponse struct {
	roleResponse
	Changes []changeResponse `json:"changes,omitempty"`
}

type digestResponse struct {
	Since       time.Time             `json:"since"`
	GeneratedAt time.Time             `json:"generated_at"`
	New         []digestEntryResponse `json:"new"`
	Changed     []digestEntryResponse `json:"changed"`
}

func toDigest(d model.Digest) digestResponse {
	conv := func(entries []model.DigestEntry) []digestEntryResponse {
		out := make([]digestEntryResponse, 0, len(entries))
		for _, e := range entries {
			var changes []changeResponse
			if len(e.Changes) > 0 {
				changes = toChanges(e.Changes)
			}
			out = append(out, digestEntryResponse{roleResponse: toRole(e.Role), Changes: changes})
		}
		return out
	}
	return digestResponse{
		Since:       d.Since,
		GeneratedAt: d.GeneratedAt,
		New:         conv(d.New),
		Changed:     conv(d.Changed),
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
