// Package scoring computes the engineer and headhunter perspective scores for
// surfaced roles, maps their mean onto a display tier, and rates company
// excitement alongside.
package scoring

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/richroberts-prog/air-demand/internal/config"
	"github.com/richroberts-prog/air-demand/internal/market"
	"github.com/richroberts-prog/air-demand/internal/model"
)

const (
	PerspectiveEngineer   = "engineer"
	PerspectiveHeadhunter = "headhunter"
)

const maxSignals = 5

// knownSignals lists the sub-signals each perspective can weight.
var knownSignals = map[string][]string{
	PerspectiveEngineer:   {"compensation", "company_quality", "role_impact", "process_quality", "tech_modernity"},
	PerspectiveHeadhunter: {"placement_probability", "commission_value", "competition", "candidate_fit"},
}

var stageScores = map[string]float64{
	"PRE_SEED":        0.5,
	"SEED":            0.6,
	"SERIES_A":        1.0,
	"SERIES_B":        0.95,
	"SERIES_C":        0.85,
	"SERIES_D":        0.75,
	"SERIES_D_PLUS":   0.7,
	"SERIES_E":        0.65,
	"POST_IPO_EQUITY": 0.5,
}

var badgeWeights = []struct {
	badge  string
	weight float64
	signal string
}{
	{"NO_FINAL_ROUNDS", 0.30, "no final rounds required"},
	{"TRUSTED_CLIENT", 0.25, "trusted client"},
	{"RESPONSIVE", 0.20, ""},
	{"HIRING_MULTIPLE", 0.15, "hiring multiple"},
}

// Scorer is safe for concurrent use; it holds only read-only lookups.
type Scorer struct {
	cfg           config.ScoringConfig
	investors     *market.InvestorTiers
	locations     map[string]bool
	modernTech    map[string]bool
	hotIndustries map[string]bool
	aiIndustries  map[string]bool
	hotCompanies  map[string]bool
	commonRoles   map[string]bool
	perspectives  []string
}

// NewScorer validates that every weighted sub-signal is one the scorer knows.
// locations is the qualification geography list, used for candidate fit.
func NewScorer(cfg config.ScoringConfig, investors config.InvestorConfig, locations []string) (*Scorer, error) {
	perspectives := make([]string, 0, len(cfg.Weights))
	for name, weights := range cfg.Weights {
		known, ok := knownSignals[name]
		if !ok {
			return nil, fmt.Errorf("unknown scoring perspective %q", name)
		}
		for signal := range weights {
			if !slices.Contains(known, signal) {
				return nil, fmt.Errorf("unknown %s sub-signal %q", name, signal)
			}
		}
		perspectives = append(perspectives, name)
	}
	if len(perspectives) < 2 {
		return nil, fmt.Errorf("scoring needs at least two perspectives, got %d", len(perspectives))
	}
	sort.Strings(perspectives)

	modern := make(map[string]bool, len(cfg.ModernTech))
	for _, t := range cfg.ModernTech {
		modern[strings.ToLower(strings.TrimSpace(t))] = true
	}

	return &Scorer{
		cfg:           cfg,
		investors:     market.NewInvestorTiers(investors),
		locations:     market.KeySet(locations),
		modernTech:    modern,
		hotIndustries: market.KeySet(cfg.HotIndustries),
		aiIndustries:  market.KeySet(cfg.Excitement.AIIndustries),
		hotCompanies:  market.KeySet(cfg.Excitement.HotCompanies),
		commonRoles:   market.KeySet(cfg.CommonRoleTypes),
		perspectives:  perspectives,
	}, nil
}

// Score computes every configured perspective for f. Each perspective score
// and the combined score lie in [0, 1].
func (s *Scorer) Score(f model.Fields) model.Scores {
	subs := s.subSignals(f)

	out := model.Scores{Perspectives: make([]model.PerspectiveScore, 0, len(s.perspectives))}
	total := 0.0
	for _, name := range s.perspectives {
		breakdown := make(map[string]float64, len(knownSignals[name]))
		score := 0.0
		for _, signal := range knownSignals[name] {
			v := subs[signal]
			breakdown[signal] = round(v, 3)
			score += s.cfg.Weights[name][signal] * v
		}
		score = round(clamp(score), 2)
		out.Perspectives = append(out.Perspectives, model.PerspectiveScore{Name: name, Score: score, Breakdown: breakdown})
		total += score
	}

	out.Combined = round(clamp(total/float64(len(out.Perspectives))), 2)
	out.DisplayTier = s.displayTier(out.Combined)
	out.Signals = s.signals(f)
	out.Excitement = s.excitement(f)
	return out
}

func (s *Scorer) displayTier(combined float64) model.DisplayTier {
	b := s.cfg.Breakpoints
	switch {
	case combined >= b.Hot:
		return model.DisplayHot
	case combined >= b.Warm:
		return model.DisplayWarm
	case combined >= b.Lukewarm:
		return model.DisplayLukewarm
	default:
		return model.DisplayCold
	}
}

func (s *Scorer) subSignals(f model.Fields) map[string]float64 {
	badges := badgeScore(f.Highlights)
	responsiveness := s.norm("responsiveness_days", f.ResponsivenessDays, true)
	headcount := s.norm("headcount", intPtr(f.HiringCount), false)

	return map[string]float64{
		"compensation":    s.norm("salary", int64Ptr(f.SalaryUpper), false),
		"company_quality": (s.investorScore(f) + s.fundingScore(f)) / 2,
		"role_impact":     0.5*seniorityScore(f.Title) + 0.3*headcount + 0.2*sizeBandScore(f.Company.Size),
		"process_quality": 0.4*s.norm("interview_stages", intPtr(f.InterviewStages), true) + 0.3*responsiveness + 0.3*badges,
		"tech_modernity":  0.6*s.techOverlapScore(f.Skills) + 0.4*s.industryScore(f.Company.Industries),

		"placement_probability": 0.4*s.norm("manager_rating", f.ManagerRating, false) + 0.3*responsiveness + 0.3*badges,
		"commission_value":      0.5*s.norm("commission_value", expectedCommission(f), false) + 0.3*headcount + 0.2*bonusScore(f.Highlights),
		"competition":           0.5*s.norm("recruiters", intPtr(f.ApprovedRecruiters), true) + 0.3*s.norm("hired", intPtr(f.TotalHired), false) + 0.2*pipelineScore(f.TotalInterviewing),
		"candidate_fit":         0.5*s.roleTypeFit(f.RoleTypes) + 0.5*s.locationFit(f),
	}
}

// norm scales v into [0, 1] against the named range. Missing values score 0.5.
func (s *Scorer) norm(rangeName string, v *float64, inverse bool) float64 {
	r := s.cfg.Ranges[rangeName]
	return normalize(v, r.Min, r.Max, inverse)
}

func normalize(v *float64, lo, hi float64, inverse bool) float64 {
	if v == nil || hi == lo {
		return 0.5
	}
	n := clamp((*v - lo) / (hi - lo))
	if inverse {
		n = 1 - n
	}
	return n
}

func (s *Scorer) investorScore(f model.Fields) float64 {
	investors := f.AllInvestors()
	if len(investors) == 0 {
		return 0.5
	}
	score := 0.0
	for _, inv := range investors {
		switch {
		case s.investors.Tier(inv) == 1:
			score += 0.30
		case s.investors.Tier(inv) == 2, s.investors.Angel(inv):
			score += 0.15
		}
	}
	return math.Min(score, 1)
}

// fundingScore blends the raised amount on a log scale with the round.
func (s *Scorer) fundingScore(f model.Fields) float64 {
	amount := 0.5
	if raised := market.ParseFundingAmount(f.Company.FundingAmount); raised > 0 {
		r := s.cfg.Ranges["funding"]
		if r.Min > 0 && r.Max > r.Min {
			v := math.Log10(raised)
			amount = normalize(&v, math.Log10(r.Min), math.Log10(r.Max), false)
		}
	}
	stage := 0.5
	if v, ok := stageScores[market.StageKey(f.FundingStage())]; ok {
		stage = v
	}
	return 0.6*amount + 0.4*stage
}

func seniorityScore(title string) float64 {
	t := " " + strings.ToLower(title) + " "
	for _, w := range []string{"head of", " vp ", "principal", "staff", " lead", "founding"} {
		if strings.Contains(t, w) {
			return 1.0
		}
	}
	if strings.Contains(t, "senior") || strings.Contains(t, " sr") {
		return 0.8
	}
	if strings.Contains(t, "junior") || strings.Contains(t, "intern") {
		return 0.3
	}
	return 0.6
}

func leadershipTitle(title string) bool {
	t := " " + strings.ToLower(title) + " "
	for _, w := range []string{"head of", " vp ", "principal", "staff"} {
		if strings.Contains(t, w) {
			return true
		}
	}
	return false
}

func sizeBandScore(size *int) float64 {
	if size == nil {
		return 0.5
	}
	switch n := *size; {
	case n >= 20 && n <= 100:
		return 1.0
	case n >= 10 && n <= 200:
		return 0.8
	default:
		return 0.6
	}
}

func badgeScore(h model.Highlights) float64 {
	if len(h.Badges) == 0 {
		return 0.5
	}
	score := 0.0
	for _, b := range badgeWeights {
		if h.HasBadge(b.badge) {
			score += b.weight
		}
	}
	return math.Min(score, 1)
}

func bonusScore(h model.Highlights) float64 {
	if h.HasBadge("ROLE_BONUS") {
		return 1.0
	}
	return 0.5
}

func pipelineScore(interviewing *int) float64 {
	if interviewing == nil {
		return 0.5
	}
	switch n := *interviewing; {
	case n >= 1 && n <= 5:
		return 1.0
	case n > 10:
		return 0.6
	default:
		return 0.7
	}
}

func expectedCommission(f model.Fields) *float64 {
	if f.SalaryUpper == nil || f.PercentFee == nil {
		return nil
	}
	v := float64(*f.SalaryUpper) * *f.PercentFee / 100
	return &v
}

func (s *Scorer) modernSkills(skills []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, sk := range skills {
		k := strings.ToLower(strings.TrimSpace(sk))
		if s.modernTech[k] && !seen[k] {
			seen[k] = true
			out = append(out, sk)
		}
	}
	return out
}

func (s *Scorer) techOverlapScore(skills []string) float64 {
	if len(skills) == 0 {
		return 0.5
	}
	n := float64(len(s.modernSkills(skills)))
	return s.norm("tech_overlap", &n, false)
}

func (s *Scorer) hotIndustry(industries []string) string {
	for _, ind := range industries {
		if s.hotIndustries[market.Key(ind)] {
			return ind
		}
	}
	return ""
}

func (s *Scorer) industryScore(industries []string) float64 {
	if len(industries) == 0 {
		return 0.5
	}
	if s.hotIndustry(industries) != "" {
		return 1.0
	}
	return 0.3
}

func (s *Scorer) roleTypeFit(roleTypes []string) float64 {
	if len(roleTypes) == 0 {
		return 0.5
	}
	for _, rt := range roleTypes {
		if s.commonRoles[market.Key(rt)] {
			return 1.0
		}
	}
	return 0.3
}

func (s *Scorer) locationFit(f model.Fields) float64 {
	if strings.EqualFold(strings.TrimSpace(f.WorkplaceType), "remote") {
		return 1.0
	}
	if len(f.Locations) == 0 {
		return 0.5
	}
	for _, k := range market.LocationKeys(f.Locations) {
		if s.locations[k] {
			return 0.8
		}
	}
	return 0.3
}

// signals returns up to five human-readable highlights in a fixed priority order.
func (s *Scorer) signals(f model.Fields) []string {
	var out []string
	add := func(sig string) {
		if len(out) < maxSignals {
			out = append(out, sig)
		}
	}

	if f.SalaryUpper != nil && float64(*f.SalaryUpper) >= s.cfg.Ranges["salary"].Max {
		add(fmt.Sprintf("$%s salary", formatThousands(*f.SalaryUpper)))
	}
	for _, inv := range f.AllInvestors() {
		if s.investors.Tier(inv) == 1 {
			add("tier-1 VC: " + inv)
			break
		}
	}
	cut := s.cfg.Signals
	if c := expectedCommission(f); c != nil && *c >= cut.CommissionMin {
		add(fmt.Sprintf("$%s expected commission", formatThousands(int64(math.Round(*c)))))
	}
	for _, b := range badgeWeights {
		if b.signal != "" && f.Highlights.HasBadge(b.badge) {
			add(b.signal)
		}
	}
	if r := f.ManagerRating; r != nil && *r >= cut.ManagerRatingMin {
		add(fmt.Sprintf("%.1f/5 manager rating", *r))
	}
	if d := f.ResponsivenessDays; d != nil && *d < cut.ResponseDaysBelow {
		add(fmt.Sprintf("responds within %s", days(cut.ResponseDaysBelow)))
	}
	if st := f.InterviewStages; st != nil && *st <= cut.InterviewStagesMax {
		add(fmt.Sprintf("%d interview rounds", *st))
	}
	if r := f.ApprovedRecruiters; r != nil && *r == 0 {
		add("no approved recruiters yet")
	}
	if ind := s.hotIndustry(f.Company.Industries); ind != "" {
		add("hot industry: " + ind)
	}
	if modern := s.modernSkills(f.Skills); len(modern) >= 2 {
		add("modern stack: " + strings.Join(modern, ", "))
	}
	return out
}

func days(d float64) string {
	if d == 1 {
		return "a day"
	}
	return strconv.FormatFloat(d, 'f', -1, 64) + " days"
}

// excitement rates company prestige from investors, funding momentum,
// industry, team size and seniority. A listed hot company short-circuits.
func (s *Scorer) excitement(f model.Fields) model.Excitement {
	name := strings.TrimSpace(f.Company.Name)
	if s.hotCompanies[market.Key(name)] {
		return model.Excitement{Score: 0.95, Signals: []string{"known hot company: " + name}}
	}

	var (
		score   float64
		signals []string
		tier1   []string
		backers int
	)
	investors := f.AllInvestors()
	for _, inv := range investors {
		switch {
		case s.investors.Tier(inv) == 1:
			tier1 = append(tier1, inv)
		case s.investors.Tier(inv) == 2, s.investors.Angel(inv):
			backers++
		}
	}
	switch n := len(tier1); {
	case n >= 3:
		score += 0.40
		signals = append(signals, fmt.Sprintf("%d tier-1 investors", n))
	case n == 2:
		score += 0.30
		signals = append(signals, "tier-1 VC: "+tier1[0], "tier-1 VC: "+tier1[1])
	case n == 1:
		score += 0.20
		signals = append(signals, "tier-1 VC: "+tier1[0])
	case len(investors) == 0:
		score += 0.3 * 0.15
	default:
		score += math.Min(float64(backers)*0.15, 1) * 0.15
	}

	raised := market.ParseFundingAmount(f.Company.FundingAmount)
	switch {
	case raised >= 100_000_000:
		score += 0.25
		signals = append(signals, fmt.Sprintf("$%.0fM raised", raised/1_000_000))
	case raised >= 30_000_000:
		score += 0.20
		signals = append(signals, fmt.Sprintf("$%.0fM raised", raised/1_000_000))
	case raised >= 10_000_000:
		score += 0.15
	case raised >= 5_000_000:
		score += 0.10
	}

	if s.anyIndustry(f.Company.Industries, s.aiIndustries) {
		score += 0.15
		signals = append(signals, "AI company")
	} else if ind := s.hotIndustry(f.Company.Industries); ind != "" {
		score += 0.10
		signals = append(signals, "hot industry: "+ind)
	}

	if size := f.Company.Size; size == nil || (*size >= 20 && *size <= 100) {
		score += 0.05
	}
	if leadershipTitle(f.Title) {
		score += 0.05
		signals = append(signals, "senior leadership role")
	}
	return model.Excitement{Score: round(clamp(score), 2), Signals: signals}
}

func (s *Scorer) anyIndustry(industries []string, set map[string]bool) bool {
	for _, ind := range industries {
		if set[market.Key(ind)] {
			return true
		}
	}
	return false
}

func formatThousands(n int64) string {
	if n < 0 {
		return "-" + formatThousands(-n)
	}
	s := strconv.FormatInt(n, 10)
	var b strings.Builder
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	return b.String()
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func intPtr(v *int) *float64 {
	if v == nil {
		return nil
	}
	f := float64(*v)
	return &f
}

func int64Ptr(v *int64) *float64 {
	if v == nil {
		return nil
	}
	f := float64(*v)
	return &f
}
