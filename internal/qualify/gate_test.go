package qualify

import (
	"reflect"
	"strings"
	"testing"

	"github.com/richroberts-prog/air-demand/internal/config"
	"github.com/richroberts-prog/air-demand/internal/model"
)

func ptr[T any](v T) *T { return &v }

func newTestGate() *Gate {
	cfg := config.Default()
	return NewGate(cfg.Qualification, cfg.Investors)
}

// passing returns fields that clear every hard filter and carry no quality signals.
func passing() model.Fields {
	return model.Fields{
		Title:       "Senior Backend Engineer",
		Company:     model.Company{Name: "Acme"},
		SalaryUpper: ptr(int64(250000)),
		PercentFee:  ptr(15.0),
		Locations:   []string{"London"},
		RoleTypes:   []string{"backend_engineer"},
		Status:      "ACTIVE",
	}
}

// withAllSignals adds all eight quality signals to f.
func withAllSignals(f model.Fields) model.Fields {
	f.Investors = []string{"Sequoia Capital"}
	f.Company.FundingAmount = "$20M"
	f.Company.FundingStage = "Series A"
	f.Company.Size = ptr(50)
	f.ManagerRating = ptr(4.5)
	f.ResponsivenessDays = ptr(1.0)
	f.InterviewStages = ptr(4)
	f.Highlights = model.Highlights{Badges: []string{"NO_FINAL_ROUNDS"}}
	return f
}

func TestGate_HardFilters(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*model.Fields)
		status     model.LifecycleStatus
		wantReason string
	}{
		{
			name:       "salary below floor",
			mutate:     func(f *model.Fields) { f.SalaryUpper = ptr(int64(150000)) },
			wantReason: "compensation floor",
		},
		{
			name:       "salary missing",
			mutate:     func(f *model.Fields) { f.SalaryUpper = nil },
			wantReason: "compensation floor",
		},
		{
			name:       "location outside geography",
			mutate:     func(f *model.Fields) { f.Locations = []string{"Berlin"} },
			wantReason: "outside the allowed geographies",
		},
		{
			name:       "no location",
			mutate:     func(f *model.Fields) { f.Locations = nil },
			wantReason: "no location",
		},
		{
			name: "low confidence enrichment location ignored",
			mutate: func(f *model.Fields) {
				f.Locations = []string{"Unknown"}
				f.Enrichment = &model.Enrichment{Location: "London", LocationConfidence: "low"}
			},
			wantReason: "outside the allowed geographies",
		},
		{
			name:       "fee below floor",
			mutate:     func(f *model.Fields) { f.PercentFee = ptr(10.0) },
			wantReason: "commission floor",
		},
		{
			name:       "excluded category",
			mutate:     func(f *model.Fields) { f.RoleTypes = []string{"backend_engineer", "mobile_engineer"} },
			wantReason: "excluded",
		},
		{
			name:       "category not allowed",
			mutate:     func(f *model.Fields) { f.RoleTypes = []string{"product_designer"} },
			wantReason: "not in the allowed set",
		},
		{
			name:       "listing paused",
			mutate:     func(f *model.Fields) { f.Status = "PAUSED" },
			wantReason: "not open",
		},
		{
			name:       "not accepting recruiters",
			mutate:     func(f *model.Fields) { f.NotAcceptingRecruiters = true },
			wantReason: "not accepting recruiters",
		},
		{
			name:       "missing pending",
			status:     model.StatusMissingPending,
			wantReason: "not ACTIVE",
		},
		{
			name:       "removed",
			status:     model.StatusRemoved,
			wantReason: "not ACTIVE",
		},
	}
	g := newTestGate()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := withAllSignals(passing())
			if tt.mutate != nil {
				tt.mutate(&f)
			}
			status := tt.status
			if status == "" {
				status = model.StatusActive
			}
			got := g.Evaluate(f, status)
			if got.Tier != model.TierSkip {
				t.Fatalf("Tier = %s, want SKIP", got.Tier)
			}
			if len(got.Reasons) != 1 || !strings.Contains(got.Reasons[0], tt.wantReason) {
				t.Errorf("Reasons = %v, want one reason containing %q", got.Reasons, tt.wantReason)
			}
		})
	}
}

func TestGate_GeographyAlternatives(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.Fields)
	}{
		{"city with region", func(f *model.Fields) { f.Locations = []string{"New York, NY"} }},
		{"remote role", func(f *model.Fields) {
			f.Locations = []string{"Berlin"}
			f.WorkplaceType = "Remote"
		}},
		{"high confidence enrichment", func(f *model.Fields) {
			f.Locations = nil
			f.Enrichment = &model.Enrichment{Location: "London", LocationConfidence: "high"}
		}},
	}
	g := newTestGate()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := withAllSignals(passing())
			tt.mutate(&f)
			if got := g.Evaluate(f, model.StatusActive); got.Tier != model.TierQualified {
				t.Errorf("Tier = %s (%v), want QUALIFIED", got.Tier, got.Reasons)
			}
		})
	}
}

func TestGate_SignalCounting(t *testing.T) {
	g := newTestGate()

	all := g.Evaluate(withAllSignals(passing()), model.StatusActive)
	if all.Tier != model.TierQualified || all.Signals != 8 {
		t.Fatalf("all signals: Tier = %s, Signals = %d", all.Tier, all.Signals)
	}
	if all.Reasons[0] != "8 of 8 quality signals" {
		t.Errorf("summary = %q", all.Reasons[0])
	}
	if len(all.Reasons) != 9 {
		t.Errorf("got %d reasons, want summary plus 8 signals", len(all.Reasons))
	}

	three := passing()
	three.ManagerRating = ptr(4.8)
	three.InterviewStages = ptr(3)
	three.Highlights.SellingPoints = "Profitable, 40% YoY growth"
	got := g.Evaluate(three, model.StatusActive)
	if got.Tier != model.TierQualified || got.Signals != 3 {
		t.Errorf("three signals: Tier = %s, Signals = %d", got.Tier, got.Signals)
	}

	none := g.Evaluate(passing(), model.StatusActive)
	if none.Tier != model.TierMaybe || none.Signals != 0 {
		t.Errorf("no signals: Tier = %s, Signals = %d, want MAYBE with 0", none.Tier, none.Signals)
	}
}

func TestGate_MaybeFloor(t *testing.T) {
	cfg := config.Default()
	cfg.Qualification.MaybeMinSignals = 2
	g := NewGate(cfg.Qualification, cfg.Investors)

	f := passing()
	f.ManagerRating = ptr(4.5)
	if got := g.Evaluate(f, model.StatusActive); got.Tier != model.TierSkip {
		t.Errorf("one signal: Tier = %s, want SKIP", got.Tier)
	}

	f.InterviewStages = ptr(5)
	if got := g.Evaluate(f, model.StatusActive); got.Tier != model.TierMaybe {
		t.Errorf("two signals: Tier = %s, want MAYBE", got.Tier)
	}
}

func TestGate_SignalEdges(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.Fields)
		want   int
	}{
		{"tier-2 investor is not a signal", func(f *model.Fields) { f.Investors = []string{"Spark Capital"} }, 0},
		{"enrichment investor counts", func(f *model.Fields) {
			f.Enrichment = &model.Enrichment{Investors: []string{"Andreessen Horowitz"}}
		}, 1},
		{"funding below minimum", func(f *model.Fields) { f.Company.FundingAmount = "$2M" }, 0},
		{"unparseable funding", func(f *model.Fields) { f.Company.FundingAmount = "undisclosed" }, 0},
		{"stage outside set", func(f *model.Fields) { f.Company.FundingStage = "PUBLIC" }, 0},
		{"enrichment stage counts", func(f *model.Fields) {
			f.Enrichment = &model.Enrichment{FundingStage: "SERIES_B"}
		}, 1},
		{"company too large", func(f *model.Fields) { f.Company.Size = ptr(5000) }, 0},
		{"slow response", func(f *model.Fields) { f.ResponsivenessDays = ptr(3.5) }, 0},
		{"too many stages", func(f *model.Fields) { f.InterviewStages = ptr(7) }, 0},
	}
	g := newTestGate()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := passing()
			tt.mutate(&f)
			if got := g.Evaluate(f, model.StatusActive); got.Signals != tt.want {
				t.Errorf("Signals = %d, want %d (%v)", got.Signals, tt.want, got.Reasons)
			}
		})
	}
}

func TestGate_Deterministic(t *testing.T) {
	g := newTestGate()
	f := withAllSignals(passing())
	first := g.Evaluate(f, model.StatusActive)
	for i := 0; i < 10; i++ {
		if got := g.Evaluate(f, model.StatusActive); !reflect.DeepEqual(got, first) {
			t.Fatalf("Evaluate is not deterministic: %+v vs %+v", got, first)
		}
	}
}
