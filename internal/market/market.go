// Package market holds the vocabulary shared by qualification and scoring:
// funding amounts, investor tiers and location keys.
package market

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/richroberts-prog/air-demand/internal/config"
)

// ParseFundingAmount converts strings such as "$16.25M", "100M", "$1.5B" or
// "750K" to dollars. Unparseable or empty input returns 0.
func ParseFundingAmount(s string) float64 {
	cleaned := strings.ToUpper(strings.TrimSpace(strings.NewReplacer("$", "", ",", "").Replace(s)))
	if cleaned == "" {
		return 0
	}
	multiplier := 1.0
	switch {
	case strings.HasSuffix(cleaned, "B"):
		multiplier = 1_000_000_000
	case strings.HasSuffix(cleaned, "M"):
		multiplier = 1_000_000
	case strings.HasSuffix(cleaned, "K"):
		multiplier = 1_000
	}
	if multiplier != 1 {
		cleaned = strings.TrimSpace(cleaned[:len(cleaned)-1])
	}
	n, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n * multiplier
}

// Key lowercases s and joins words with underscores: "New York" -> "new_york".
func Key(s string) string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return unicode.IsSpace(r) || r == '-' || r == '_'
	})
	return strings.Join(fields, "_")
}

// StageKey normalises a funding round: "Series A" -> "SERIES_A".
func StageKey(s string) string {
	return strings.ToUpper(Key(s))
}

// LocationKeys expands each location into its key and the keys of its comma
// separated parts, so "New York, NY" yields new_york_ny, new_york and ny.
func LocationKeys(locations []string) []string {
	var keys []string
	for _, loc := range locations {
		if k := Key(strings.ReplaceAll(loc, ",", " ")); k != "" {
			keys = append(keys, k)
		}
		if strings.Contains(loc, ",") {
			for _, part := range strings.Split(loc, ",") {
				if k := Key(part); k != "" {
					keys = append(keys, k)
				}
			}
		}
	}
	return keys
}

// KeySet builds a lookup of normalised keys.
func KeySet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		if k := Key(v); k != "" {
			set[k] = true
		}
	}
	return set
}

// InvestorTiers classifies investor names against configured tier lists.
type InvestorTiers struct {
	tier1  []string
	tier2  []string
	angels []string
}

// NewInvestorTiers normalises the configured lists once.
func NewInvestorTiers(cfg config.InvestorConfig) *InvestorTiers {
	return &InvestorTiers{
		tier1:  normaliseAll(cfg.Tier1),
		tier2:  normaliseAll(cfg.Tier2),
		angels: normaliseAll(cfg.Angels),
	}
}

// Angel reports whether name is a listed individual angel.
func (t *InvestorTiers) Angel(name string) bool {
	return matchAny(" "+normaliseName(name)+" ", t.angels)
}

// Tier returns 1 or 2 for a listed investor and 0 otherwise. Matching is on
// whole words, so "Sequoia Capital China" matches "sequoia" but "Linear" does
// not match "nea".
func (t *InvestorTiers) Tier(name string) int {
	padded := " " + normaliseName(name) + " "
	switch {
	case matchAny(padded, t.tier1):
		return 1
	case matchAny(padded, t.tier2):
		return 2
	}
	return 0
}

func matchAny(padded string, names []string) bool {
	for _, canon := range names {
		if strings.Contains(padded, " "+canon+" ") {
			return true
		}
	}
	return false
}

func normaliseAll(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if c := normaliseName(n); c != "" {
			out = append(out, c)
		}
	}
	return out
}

func normaliseName(s string) string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return strings.Join(fields, " ")
}
