// Package diff compares a listing's freshly observed fields against its last
// snapshot and classifies every difference.
package diff

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/richroberts-prog/air-demand/internal/model"
)

// FieldChange is one classified difference between two observations.
type FieldChange struct {
	Type     model.ChangeType
	Field    string
	OldValue string
	NewValue string
}

// numericField is a tracked counter or amount. Direction decides the change type.
type numericField struct {
	name     string
	get      func(model.Fields) *float64
	increase model.ChangeType
	decrease model.ChangeType
}

// setField is compared as an unordered, case-insensitive set.
type setField struct {
	name   string
	get    func(model.Fields) []string
	change model.ChangeType
}

type textField struct {
	name   string
	get    func(model.Fields) string
	change model.ChangeType
}

var numericFields = []numericField{
	{"approved_recruiters_count", func(f model.Fields) *float64 { return intValue(f.ApprovedRecruiters) }, model.ChangeCompetition, model.ChangeCompetition},
	{"hiring_count", func(f model.Fields) *float64 { return intValue(f.HiringCount) }, model.ChangeHeadcount, model.ChangeHeadcount},
	{"percent_fee", func(f model.Fields) *float64 { return f.PercentFee }, model.ChangeFeeIncrease, model.ChangeFeeDecrease},
	{"salary_lower", func(f model.Fields) *float64 { return int64Value(f.SalaryLower) }, model.ChangeSalaryIncrease, model.ChangeSalaryDecrease},
	{"salary_upper", func(f model.Fields) *float64 { return int64Value(f.SalaryUpper) }, model.ChangeSalaryIncrease, model.ChangeSalaryDecrease},
	{"total_hired", func(f model.Fields) *float64 { return intValue(f.TotalHired) }, model.ChangeHiringIncrease, model.ChangeHiringDecrease},
	{"total_interviewing", func(f model.Fields) *float64 { return intValue(f.TotalInterviewing) }, model.ChangeInterviewIncrease, model.ChangeInterviewDecrease},
}

var setFields = []setField{
	{"investors", func(f model.Fields) []string { return f.Investors }, model.ChangeInvestors},
	{"locations", func(f model.Fields) []string { return f.Locations }, model.ChangeLocation},
	{"role_types", func(f model.Fields) []string { return f.RoleTypes }, model.ChangeCategory},
	{"skills", func(f model.Fields) []string { return f.Skills }, model.ChangeSkills},
}

var textFields = []textField{
	{"status", func(f model.Fields) string { return f.Status }, model.ChangeStatus},
	{"title", func(f model.Fields) string { return f.Title }, model.ChangeTitle},
	{"workplace_type", func(f model.Fields) string { return f.WorkplaceType }, model.ChangeWorkplace},
}

// Compare returns every tracked field that differs between prev and next,
// ordered by field name. A nil result means the observations are equivalent.
func Compare(prev, next model.Fields) []FieldChange {
	var changes []FieldChange

	for _, nf := range numericFields {
		oldV, newV := nf.get(prev), nf.get(next)
		if equalNumbers(oldV, newV) {
			continue
		}
		typ := nf.increase
		// Null to value counts as an increase, value to null as a decrease.
		if newV == nil || (oldV != nil && *newV < *oldV) {
			typ = nf.decrease
		}
		changes = append(changes, FieldChange{
			Type:     typ,
			Field:    nf.name,
			OldValue: formatNumber(oldV),
			NewValue: formatNumber(newV),
		})
	}

	for _, sf := range setFields {
		oldSet, newSet := canonicalSet(sf.get(prev)), canonicalSet(sf.get(next))
		if equalSets(oldSet, newSet) {
			continue
		}
		changes = append(changes, FieldChange{
			Type:     sf.change,
			Field:    sf.name,
			OldValue: strings.Join(oldSet, ", "),
			NewValue: strings.Join(newSet, ", "),
		})
	}

	for _, tf := range textFields {
		oldV, newV := strings.TrimSpace(tf.get(prev)), strings.TrimSpace(tf.get(next))
		if oldV == newV {
			continue
		}
		changes = append(changes, FieldChange{
			Type:     tf.change,
			Field:    tf.name,
			OldValue: oldV,
			NewValue: newV,
		})
	}

	sort.SliceStable(changes, func(i, j int) bool { return changes[i].Field < changes[j].Field })
	return changes
}

// Hash returns a stable content hash over the tracked fields. Reordering a set
// field does not change the hash.
func Hash(f model.Fields) string {
	canon := make(map[string]any, len(numericFields)+len(setFields)+len(textFields))
	for _, nf := range numericFields {
		if v := nf.get(f); v != nil {
			canon[nf.name] = *v
		}
	}
	for _, sf := range setFields {
		canon[sf.name] = canonicalSet(sf.get(f))
	}
	for _, tf := range textFields {
		canon[tf.name] = strings.TrimSpace(tf.get(f))
	}
	// encoding/json sorts map keys, which makes the encoding canonical.
	data, _ := json.Marshal(canon)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func intValue(v *int) *float64 {
	if v == nil {
		return nil
	}
	f := float64(*v)
	return &f
}

func int64Value(v *int64) *float64 {
	if v == nil {
		return nil
	}
	f := float64(*v)
	return &f
}

func equalNumbers(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func formatNumber(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// canonicalSet lowercases, trims, dedups and sorts.
func canonicalSet(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func equalSets(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
