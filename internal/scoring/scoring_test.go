package scoring

import (
	"math"
	"strings"
	"testing"

	"github.com/richroberts-prog/air-demand/internal/config"
	"github.com/richroberts-prog/air-demand/internal/model"
)

func ptr[T any](v T) *T { return &v }

func newTestScorer(t *testing.T) *Scorer {
	t.Helper()
	cfg := config.Default()
	s, err := NewScorer(cfg.Scoring, cfg.Investors, cfg.Qualification.Locations)
	if err != nil {
		t.Fatalf("NewScorer: %v", err)
	}
	return s
}

func strongRole() model.Fields {
	return model.Fields{
		Title: "Staff Backend Engineer",
		Company: model.Company{
			Name:          "Acme",
			Size:          ptr(60),
			FundingAmount: "$40M",
			FundingStage:  "SERIES_B",
			Industries:    []string{"AI"},
		},
		SalaryUpper:        ptr(int64(320000)),
		PercentFee:         ptr(20.0),
		Locations:          []string{"New York, NY"},
		RoleTypes:          []string{"backend_engineer"},
		Skills:             []string{"Go", "Kubernetes", "TypeScript"},
		HiringCount:        ptr(3),
		ApprovedRecruiters: ptr(0),
		TotalInterviewing:  ptr(3),
		TotalHired:         ptr(2),
		Investors:          []string{"Sequoia Capital", "Accel"},
		ManagerRating:      ptr(4.9),
		ResponsivenessDays: ptr(0.2),
		InterviewStages:    ptr(3),
		Highlights:         model.Highlights{Badges: []string{"NO_FINAL_ROUNDS", "TRUSTED_CLIENT", "ROLE_BONUS"}},
	}
}

func weakRole() model.Fields {
	return model.Fields{
		Title:              "Junior Engineer",
		Company:            model.Company{Name: "Slowco", Size: ptr(5000), FundingAmount: "$500K", Industries: []string{"retail"}},
		SalaryUpper:        ptr(int64(120000)),
		PercentFee:         ptr(8.0),
		Locations:          []string{"Berlin"},
		RoleTypes:          []string{"qa_engineer"},
		Skills:             []string{"COBOL"},
		ApprovedRecruiters: ptr(25),
		TotalInterviewing:  ptr(30),
		ManagerRating:      ptr(2.0),
		ResponsivenessDays: ptr(9.0),
		InterviewStages:    ptr(10),
		Investors:          []string{"Unknown Angels"},
		Highlights:         model.Highlights{Badges: []string{"SOMETHING_ELSE"}},
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		v       *float64
		inverse bool
		want    float64
	}{
		{"missing is neutral", nil, false, 0.5},
		{"at min", ptr(10.0), false, 0},
		{"at max", ptr(20.0), false, 1},
		{"midpoint", ptr(15.0), false, 0.5},
		{"clipped above", ptr(50.0), false, 1},
		{"clipped below", ptr(-5.0), false, 0},
		{"inverse", ptr(12.5), true, 0.75},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := normalize(tt.v, 10, 20, tt.inverse); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("normalize() = %v, want %v", got, tt.want)
			}
		})
	}
	if got := normalize(ptr(3.0), 5, 5, false); got != 0.5 {
		t.Errorf("degenerate range = %v, want 0.5", got)
	}
}

func TestScore_RangeInvariant(t *testing.T) {
	s := newTestScorer(t)
	extreme := strongRole()
	extreme.SalaryUpper = ptr(int64(50_000_000))
	extreme.PercentFee = ptr(100.0)
	extreme.HiringCount = ptr(1000)
	extreme.Company.FundingAmount = "$900B"

	for name, f := range map[string]model.Fields{
		"strong":  strongRole(),
		"weak":    weakRole(),
		"empty":   {},
		"extreme": extreme,
	} {
		got := s.Score(f)
		if got.Combined < 0 || got.Combined > 1 {
			t.Errorf("%s: Combined = %v out of range", name, got.Combined)
		}
		if len(got.Perspectives) != 2 {
			t.Fatalf("%s: got %d perspectives, want 2", name, len(got.Perspectives))
		}
		for _, p := range got.Perspectives {
			if p.Score < 0 || p.Score > 1 {
				t.Errorf("%s: %s score = %v out of range", name, p.Name, p.Score)
			}
			for sig, v := range p.Breakdown {
				if v < 0 || v > 1 {
					t.Errorf("%s: %s.%s = %v out of range", name, p.Name, sig, v)
				}
			}
		}
	}
}

func TestScore_CombinedIsMean(t *testing.T) {
	s := newTestScorer(t)
	got := s.Score(strongRole())
	eng, ok := got.Perspective(PerspectiveEngineer)
	if !ok {
		t.Fatal("engineer perspective missing")
	}
	hh, ok := got.Perspective(PerspectiveHeadhunter)
	if !ok {
		t.Fatal("headhunter perspective missing")
	}
	want := math.Round((eng.Score+hh.Score)/2*100) / 100
	if math.Abs(got.Combined-want) > 1e-9 {
		t.Errorf("Combined = %v, want mean %v", got.Combined, want)
	}
}

func TestScore_Ordering(t *testing.T) {
	s := newTestScorer(t)
	strong := s.Score(strongRole())
	weak := s.Score(weakRole())
	if strong.Combined <= weak.Combined {
		t.Errorf("strong combined %v should exceed weak %v", strong.Combined, weak.Combined)
	}
	if strong.DisplayTier != model.DisplayHot {
		t.Errorf("strong DisplayTier = %s, want hot (combined %v)", strong.DisplayTier, strong.Combined)
	}
	if weak.DisplayTier != model.DisplayCold {
		t.Errorf("weak DisplayTier = %s, want cold (combined %v)", weak.DisplayTier, weak.Combined)
	}

	low := strongRole()
	low.SalaryUpper = ptr(int64(160000))
	lowEng, _ := s.Score(low).Perspective(PerspectiveEngineer)
	highEng, _ := strong.Perspective(PerspectiveEngineer)
	if lowEng.Score >= highEng.Score {
		t.Errorf("lower salary engineer score %v should be below %v", lowEng.Score, highEng.Score)
	}
}

func TestScore_MissingDataIsNeutral(t *testing.T) {
	s := newTestScorer(t)
	got := s.Score(model.Fields{})
	eng, _ := got.Perspective(PerspectiveEngineer)
	if eng.Breakdown["compensation"] != 0.5 {
		t.Errorf("compensation with no salary = %v, want 0.5", eng.Breakdown["compensation"])
	}
	hh, _ := got.Perspective(PerspectiveHeadhunter)
	if hh.Breakdown["candidate_fit"] != 0.5 {
		t.Errorf("candidate_fit with no data = %v, want 0.5", hh.Breakdown["candidate_fit"])
	}
	if got.DisplayTier != model.DisplayLukewarm {
		t.Errorf("DisplayTier = %s (combined %v), want lukewarm", got.DisplayTier, got.Combined)
	}
}

func TestDisplayTier(t *testing.T) {
	s := newTestScorer(t)
	tests := []struct {
		combined float64
		want     model.DisplayTier
	}{
		{1.0, model.DisplayHot},
		{0.80, model.DisplayHot},
		{0.79, model.DisplayWarm},
		{0.60, model.DisplayWarm},
		{0.40, model.DisplayLukewarm},
		{0.39, model.DisplayCold},
		{0, model.DisplayCold},
	}
	for _, tt := range tests {
		if got := s.displayTier(tt.combined); got != tt.want {
			t.Errorf("displayTier(%v) = %s, want %s", tt.combined, got, tt.want)
		}
	}
}

func TestScore_Signals(t *testing.T) {
	s := newTestScorer(t)
	got := s.Score(strongRole())
	if len(got.Signals) != maxSignals {
		t.Fatalf("got %d signals, want %d: %v", len(got.Signals), maxSignals, got.Signals)
	}
	if got.Signals[0] != "$320,000 salary" {
		t.Errorf("first signal = %q", got.Signals[0])
	}
	if !strings.HasPrefix(got.Signals[1], "tier-1 VC: Sequoia") {
		t.Errorf("second signal = %q", got.Signals[1])
	}
	if got := s.Score(model.Fields{}).Signals; len(got) != 0 {
		t.Errorf("empty role signals = %v, want none", got)
	}
}

func TestScore_SignalCutoffsFromConfig(t *testing.T) {
	role := model.Fields{
		SalaryUpper:        ptr(int64(200000)),
		PercentFee:         ptr(15.0),
		ManagerRating:      ptr(4.6),
		ResponsivenessDays: ptr(1.5),
		InterviewStages:    ptr(5),
	}
	tests := []struct {
		name   string
		mutate func(*config.SignalCutoffs)
		want   []string
	}{
		{"defaults", func(*config.SignalCutoffs) {}, []string{"4.6/5 manager rating"}},
		{"lower commission cutoff", func(c *config.SignalCutoffs) { c.CommissionMin = 25_000 },
			[]string{"$30,000 expected commission", "4.6/5 manager rating"}},
		{"stricter rating", func(c *config.SignalCutoffs) { c.ManagerRatingMin = 4.8 }, nil},
		{"slower response allowed", func(c *config.SignalCutoffs) { c.ResponseDaysBelow = 2 },
			[]string{"4.6/5 manager rating", "responds within 2 days"}},
		{"more stages allowed", func(c *config.SignalCutoffs) { c.InterviewStagesMax = 5 },
			[]string{"4.6/5 manager rating", "5 interview rounds"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg.Scoring.Signals)
			s, err := NewScorer(cfg.Scoring, cfg.Investors, cfg.Qualification.Locations)
			if err != nil {
				t.Fatalf("NewScorer: %v", err)
			}
			got := s.Score(role).Signals
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("signals = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestScore_Excitement(t *testing.T) {
	s := newTestScorer(t)
	tests := []struct {
		name       string
		fields     model.Fields
		want       float64
		wantSignal string
	}{
		{"hot company", model.Fields{Company: model.Company{Name: "Anthropic"}}, 0.95, "known hot company: Anthropic"},
		{"two tier-1 backers, AI, well funded", strongRole(), 0.75, "tier-1 VC: Sequoia Capital"},
		{"unknown backers, small raise", weakRole(), 0, ""},
		{"angel backer, fintech", model.Fields{
			Title:     "Principal Engineer",
			Company:   model.Company{Name: "Quietco", Size: ptr(500), FundingAmount: "$12M", Industries: []string{"fintech"}},
			Investors: []string{"Elad Gil"},
		}, 0.32, "hot industry: fintech"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Score(tt.fields).Excitement
			if math.Abs(got.Score-tt.want) > 1e-9 {
				t.Errorf("excitement = %v (%v), want %v", got.Score, got.Signals, tt.want)
			}
			if tt.wantSignal == "" {
				if len(got.Signals) != 0 {
					t.Errorf("signals = %v, want none", got.Signals)
				}
				return
			}
			found := false
			for _, sig := range got.Signals {
				found = found || sig == tt.wantSignal
			}
			if !found {
				t.Errorf("signals = %v, want %q", got.Signals, tt.wantSignal)
			}
		})
	}
}

func TestScore_ExcitementDoesNotMoveCombined(t *testing.T) {
	s := newTestScorer(t)
	plain := strongRole()
	hot := strongRole()
	hot.Company.Name = "Stripe"
	a, b := s.Score(plain), s.Score(hot)
	if a.Excitement.Score == b.Excitement.Score {
		t.Fatalf("excitement unchanged by hot company: %v", a.Excitement)
	}
	if a.Combined != b.Combined {
		t.Errorf("combined moved with excitement: %v vs %v", a.Combined, b.Combined)
	}
}

func TestNewScorer_RejectsUnknownNames(t *testing.T) {
	cfg := config.Default()

	cfg.Scoring.Weights["recruiter"] = map[string]float64{"compensation": 1}
	if _, err := NewScorer(cfg.Scoring, cfg.Investors, nil); err == nil {
		t.Error("expected error for unknown perspective")
	}

	cfg = config.Default()
	cfg.Scoring.Weights["engineer"]["vibes"] = 0
	if _, err := NewScorer(cfg.Scoring, cfg.Investors, nil); err == nil {
		t.Error("expected error for unknown sub-signal")
	}
}

func TestFormatThousands(t *testing.T) {
	tests := map[int64]string{0: "0", 999: "999", 1000: "1,000", 320000: "320,000", 1234567: "1,234,567", -4500: "-4,500"}
	for in, want := range tests {
		if got := formatThousands(in); got != want {
			t.Errorf("formatThousands(%d) = %q, want %q", in, got, want)
		}
	}
}
