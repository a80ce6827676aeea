package qualify

import (
	"fmt"
	"strings"

	"github.com/richroberts-prog/air-demand/internal/config"
	"github.com/richroberts-prog/air-demand/internal/market"
	"github.com/richroberts-prog/air-demand/internal/model"
)

// qualitySignalCount is the number of independent signals Evaluate checks.
const qualitySignalCount = 8

// Result is the gate's verdict for one role.
type Result struct {
	Tier    model.Tier
	Reasons []string
	Signals int // quality signals present; zero when a hard filter failed
}

// Gate applies hard filters and then counts quality signals. It holds no
// mutable state, so identical inputs always produce identical results.
type Gate struct {
	cfg          config.QualificationConfig
	locations    map[string]bool
	categories   map[string]bool
	excluded     map[string]bool
	openStatuses map[string]bool
	stages       map[string]bool
	investors    *market.InvestorTiers
}

// NewGate returns a gate for the given rules and investor tiers.
func NewGate(cfg config.QualificationConfig, investors config.InvestorConfig) *Gate {
	stages := make(map[string]bool, len(cfg.FundingStages))
	for _, s := range cfg.FundingStages {
		stages[market.StageKey(s)] = true
	}
	return &Gate{
		cfg:          cfg,
		locations:    market.KeySet(cfg.Locations),
		categories:   market.KeySet(cfg.RoleCategories),
		excluded:     market.KeySet(cfg.ExcludedCategories),
		openStatuses: market.KeySet(cfg.OpenStatuses),
		stages:       stages,
		investors:    market.NewInvestorTiers(investors),
	}
}

// Evaluate returns the tier and reasons for a role's current fields and
// lifecycle status. SKIP carries the first failing hard filter; QUALIFIED and
// MAYBE carry a signal summary followed by each signal found.
func (g *Gate) Evaluate(f model.Fields, status model.LifecycleStatus) Result {
	if reason, ok := g.hardFilters(f, status); !ok {
		return Result{Tier: model.TierSkip, Reasons: []string{reason}}
	}

	signals := g.qualitySignals(f)
	n := len(signals)
	reasons := make([]string, 0, n+1)
	reasons = append(reasons, fmt.Sprintf("%d of %d quality signals", n, qualitySignalCount))
	reasons = append(reasons, signals...)

	switch {
	case n >= g.cfg.SignalThreshold:
		return Result{Tier: model.TierQualified, Reasons: reasons, Signals: n}
	case n >= g.cfg.MaybeMinSignals:
		return Result{Tier: model.TierMaybe, Reasons: reasons, Signals: n}
	default:
		return Result{
			Tier:    model.TierSkip,
			Reasons: []string{fmt.Sprintf("only %d quality signals, need at least %d", n, g.cfg.MaybeMinSignals)},
			Signals: n,
		}
	}
}

// hardFilters short-circuits on the first failure.
func (g *Gate) hardFilters(f model.Fields, status model.LifecycleStatus) (string, bool) {
	if !g.geographyAllowed(f) {
		if len(f.Locations) == 0 {
			return "no location listed and role is not remote", false
		}
		return fmt.Sprintf("location %s is outside the allowed geographies", strings.Join(f.Locations, ", ")), false
	}

	if f.SalaryUpper == nil {
		return fmt.Sprintf("salary upper bound missing, compensation floor is %d", g.cfg.SalaryFloor), false
	}
	if *f.SalaryUpper < g.cfg.SalaryFloor {
		return fmt.Sprintf("salary upper bound %d is below the compensation floor %d", *f.SalaryUpper, g.cfg.SalaryFloor), false
	}

	if f.PercentFee == nil {
		return fmt.Sprintf("fee missing, commission floor is %.1f%%", g.cfg.CommissionFloor), false
	}
	if *f.PercentFee < g.cfg.CommissionFloor {
		return fmt.Sprintf("fee %.1f%% is below the commission floor %.1f%%", *f.PercentFee, g.cfg.CommissionFloor), false
	}

	if reason, ok := g.categoryAllowed(f.RoleTypes); !ok {
		return reason, false
	}

	if f.Status != "" && !g.openStatuses[market.Key(f.Status)] {
		return fmt.Sprintf("listing status %s is not open", f.Status), false
	}
	if f.NotAcceptingRecruiters {
		return "listing is not accepting recruiters", false
	}

	if status != model.StatusActive {
		return fmt.Sprintf("lifecycle status %s is not ACTIVE", status), false
	}
	return "", true
}

func (g *Gate) geographyAllowed(f model.Fields) bool {
	if g.cfg.AllowRemote && strings.EqualFold(strings.TrimSpace(f.WorkplaceType), "remote") {
		return true
	}
	locations := f.Locations
	if e := f.Enrichment; e != nil && e.Location != "" && strings.EqualFold(e.LocationConfidence, "high") {
		locations = append(append([]string{}, locations...), e.Location)
	}
	for _, k := range market.LocationKeys(locations) {
		if g.locations[k] {
			return true
		}
	}
	return false
}

func (g *Gate) categoryAllowed(roleTypes []string) (string, bool) {
	allowed := false
	for _, rt := range roleTypes {
		k := market.Key(rt)
		if g.excluded[k] {
			return fmt.Sprintf("role category %s is excluded", rt), false
		}
		if g.categories[k] {
			allowed = true
		}
	}
	if !allowed {
		if len(roleTypes) == 0 {
			return "no role category listed", false
		}
		return fmt.Sprintf("role category %s is not in the allowed set", strings.Join(roleTypes, ", ")), false
	}
	return "", true
}

// qualitySignals returns a description for each signal present, in a fixed order.
func (g *Gate) qualitySignals(f model.Fields) []string {
	var out []string

	for _, inv := range f.AllInvestors() {
		if g.investors.Tier(inv) == 1 {
			out = append(out, "tier-1 investor: "+inv)
			break
		}
	}

	if amount := market.ParseFundingAmount(f.Company.FundingAmount); amount >= g.cfg.FundingMin && amount > 0 {
		out = append(out, fmt.Sprintf("raised %s", f.Company.FundingAmount))
	}

	if stage := f.FundingStage(); stage != "" && g.stages[market.StageKey(stage)] {
		out = append(out, "funding stage "+market.StageKey(stage))
	}

	if size := f.Company.Size; size != nil && *size >= g.cfg.CompanySizeMin && *size <= g.cfg.CompanySizeMax {
		out = append(out, fmt.Sprintf("company size %d in sweet spot", *size))
	}

	if r := f.ManagerRating; r != nil && *r >= g.cfg.ManagerRatingMin {
		out = append(out, fmt.Sprintf("manager rating %.1f/5", *r))
	}

	if d := f.ResponsivenessDays; d != nil && *d <= g.cfg.FastResponseDays {
		out = append(out, fmt.Sprintf("responds in %.1f days", *d))
	}

	if s := f.InterviewStages; s != nil && *s <= g.cfg.InterviewStagesMax {
		out = append(out, fmt.Sprintf("%d interview stages", *s))
	}

	if f.Highlights.Present() {
		if len(f.Highlights.Badges) > 0 {
			out = append(out, "highlights: "+strings.Join(f.Highlights.Badges, ", "))
		} else {
			out = append(out, "has highlights")
		}
	}

	return out
}
