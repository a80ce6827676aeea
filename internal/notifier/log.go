package notifier

import (
	"log/slog"

	"github.com/richroberts-prog/air-demand/internal/model"
)

// Ensure LogNotifier implements model.Notifier.
var _ model.Notifier = (*LogNotifier)(nil)

// LogNotifier writes digest entries to the given logger as structured messages.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier returns a notifier that logs each digest entry via slog.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs one line per new or changed role. Returns nil (stdout logging does not fail).
func (n *LogNotifier) Notify(d model.Digest) error {
	for _, e := range d.New {
		n.logger.Info("new role", entryArgs(d, e)...)
	}
	for _, e := range d.Changed {
		args := append(entryArgs(d, e), "changes", len(e.Changes))
		n.logger.Info("changed role", args...)
	}
	return nil
}

func entryArgs(d model.Digest, e model.DigestEntry) []any {
	r := e.Role
	args := []any{
		"external_id", r.ExternalID,
		"title", r.Fields.Title,
		"company", r.Fields.Company.Name,
		"tier", r.Assessment.Tier,
	}
	if d.RunID != "" {
		args = append(args, "run_id", d.RunID)
	}
	if s := r.Assessment.Scores; s != nil {
		args = append(args, "combined", s.Combined, "display_tier", s.DisplayTier)
	}
	if r.Assessment.Trend != model.TrendNone {
		args = append(args, "trend", r.Assessment.Trend)
	}
	return args
}
