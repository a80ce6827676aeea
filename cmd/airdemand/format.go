package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/richroberts-prog/air-demand/internal/lifecycle"
	"github.com/richroberts-prog/air-demand/internal/model"
)

// splitList parses a comma-separated flag value, dropping blanks.
func splitList[T ~string](s string, normalize func(string) string) []T {
	var out []T
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, T(normalize(part)))
	}
	return out
}

// parseStatuses parses a --status flag, rejecting anything outside the
// lifecycle graph.
func parseStatuses(s string) ([]model.LifecycleStatus, error) {
	var out []model.LifecycleStatus
	for _, raw := range splitList[model.LifecycleStatus](s, strings.ToUpper) {
		st, err := lifecycle.ParseStatus(string(raw))
		if err != nil {
			return nil, fmt.Errorf("invalid --status: %w", err)
		}
		out = append(out, st)
	}
	return out, nil
}

// parseSince accepts an RFC3339 timestamp or a duration back from now.
func parseSince(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --since %q: want RFC3339 or a duration like 24h", s)
	}
	return now.Add(-d), nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}
