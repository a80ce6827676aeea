// Package trend labels a role's interview momentum from its snapshot history.
package trend

import (
	"sort"
	"time"

	"github.com/richroberts-prog/air-demand/internal/config"
	"github.com/richroberts-prog/air-demand/internal/model"
)

// Detector classifies snapshot series as surging, stalled or hired.
type Detector struct {
	cfg config.TrendConfig
}

// NewDetector returns a detector for the configured window.
func NewDetector(cfg config.TrendConfig) *Detector {
	return &Detector{cfg: cfg}
}

// Window is the number of most recent snapshots Detect looks at.
func (d *Detector) Window() int {
	return d.cfg.Window
}

// Detect returns the momentum label for history, which may arrive in any
// order. hired beats surging, which beats stalled. Roles with fewer than
// MinHistory snapshots get no label.
func (d *Detector) Detect(history []model.Snapshot, status model.LifecycleStatus, postedAt, now time.Time) model.TrendLabel {
	if len(history) < d.cfg.MinHistory {
		return model.TrendNone
	}

	series := make([]model.Snapshot, len(history))
	copy(series, history)
	sort.Slice(series, func(i, j int) bool {
		if series[i].CapturedAt.Equal(series[j].CapturedAt) {
			return series[i].ID < series[j].ID
		}
		return series[i].CapturedAt.Before(series[j].CapturedAt)
	})
	if len(series) > d.cfg.Window {
		series = series[len(series)-d.cfg.Window:]
	}

	prev, last := series[len(series)-2].Fields.TotalHired, series[len(series)-1].Fields.TotalHired
	if prev != nil && last != nil && *last > *prev {
		return model.TrendHired
	}

	interviewing := counter(series, func(f model.Fields) *int { return f.TotalInterviewing })
	if len(interviewing) < 2 {
		return model.TrendNone
	}
	delta := interviewing[len(interviewing)-1] - interviewing[0]
	if delta > 0 && delta >= d.cfg.SurgeDeltaMin {
		return model.TrendSurging
	}

	if len(series) == d.cfg.Window && len(interviewing) == len(series) && flat(interviewing) &&
		status == model.StatusActive && now.Sub(postedAt) > d.cfg.RecentPostingAge {
		return model.TrendStalled
	}
	return model.TrendNone
}

// counter extracts the non-null values of one activity counter, oldest first.
func counter(series []model.Snapshot, get func(model.Fields) *int) []int {
	out := make([]int, 0, len(series))
	for _, s := range series {
		if v := get(s.Fields); v != nil {
			out = append(out, *v)
		}
	}
	return out
}

func flat(values []int) bool {
	for _, v := range values[1:] {
		if v != values[0] {
			return false
		}
	}
	return true
}
