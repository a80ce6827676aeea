package diff

import (
	"testing"

	"github.com/richroberts-prog/air-demand/internal/model"
)

func i64(v int64) *int64     { return &v }
func intp(v int) *int        { return &v }
func f64(v float64) *float64 { return &v }

func baseFields() model.Fields {
	return model.Fields{
		Title:             "Senior Backend Engineer",
		Company:           model.Company{Name: "Acme"},
		SalaryLower:       i64(180000),
		SalaryUpper:       i64(220000),
		PercentFee:        f64(15),
		Locations:         []string{"new_york", "london"},
		WorkplaceType:     "HYBRID",
		RoleTypes:         []string{"backend_engineer"},
		Skills:            []string{"Go", "Postgres", "Kubernetes"},
		HiringCount:       intp(1),
		TotalInterviewing: intp(2),
		TotalHired:        intp(0),
		Status:            "ACTIVE",
	}
}

func TestCompare_IdenticalProducesNoChanges(t *testing.T) {
	if got := Compare(baseFields(), baseFields()); len(got) != 0 {
		t.Fatalf("Compare(identical) = %+v, want none", got)
	}
}

func TestCompare_SetsAreUnordered(t *testing.T) {
	next := baseFields()
	next.Skills = []string{"kubernetes", "go", " Postgres", "Go"}
	next.Locations = []string{"london", "new_york"}
	if got := Compare(baseFields(), next); len(got) != 0 {
		t.Fatalf("Compare(reordered sets) = %+v, want none", got)
	}
}

func TestCompare_ClassifiesNumericChanges(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.Fields)
		want   model.ChangeType
		field  string
		oldVal string
		newVal string
	}{
		{"salary increase", func(f *model.Fields) { f.SalaryUpper = i64(240000) }, model.ChangeSalaryIncrease, "salary_upper", "220000", "240000"},
		{"salary decrease", func(f *model.Fields) { f.SalaryLower = i64(150000) }, model.ChangeSalaryDecrease, "salary_lower", "180000", "150000"},
		{"fee increase", func(f *model.Fields) { f.PercentFee = f64(17.5) }, model.ChangeFeeIncrease, "percent_fee", "15", "17.5"},
		{"fee removed", func(f *model.Fields) { f.PercentFee = nil }, model.ChangeFeeDecrease, "percent_fee", "15", ""},
		{"interviews up", func(f *model.Fields) { f.TotalInterviewing = intp(5) }, model.ChangeInterviewIncrease, "total_interviewing", "2", "5"},
		{"interviews down", func(f *model.Fields) { f.TotalInterviewing = intp(0) }, model.ChangeInterviewDecrease, "total_interviewing", "2", "0"},
		{"hire", func(f *model.Fields) { f.TotalHired = intp(1) }, model.ChangeHiringIncrease, "total_hired", "0", "1"},
		{"headcount", func(f *model.Fields) { f.HiringCount = intp(3) }, model.ChangeHeadcount, "hiring_count", "1", "3"},
		{"recruiters from null", func(f *model.Fields) { f.ApprovedRecruiters = intp(4) }, model.ChangeCompetition, "approved_recruiters_count", "", "4"},
		{"status", func(f *model.Fields) { f.Status = "PAUSED" }, model.ChangeStatus, "status", "ACTIVE", "PAUSED"},
		{"title", func(f *model.Fields) { f.Title = "Staff Backend Engineer" }, model.ChangeTitle, "title", "Senior Backend Engineer", "Staff Backend Engineer"},
		{"location", func(f *model.Fields) { f.Locations = []string{"london"} }, model.ChangeLocation, "locations", "london, new_york", "london"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := baseFields()
			tt.mutate(&next)
			got := Compare(baseFields(), next)
			if len(got) != 1 {
				t.Fatalf("Compare() = %+v, want exactly one change", got)
			}
			c := got[0]
			if c.Type != tt.want || c.Field != tt.field || c.OldValue != tt.oldVal || c.NewValue != tt.newVal {
				t.Errorf("change = %+v, want %s %s %q -> %q", c, tt.want, tt.field, tt.oldVal, tt.newVal)
			}
		})
	}
}

func TestCompare_OrderedByField(t *testing.T) {
	next := baseFields()
	next.Title = "Lead Engineer"
	next.SalaryUpper = i64(250000)
	next.Skills = append(next.Skills, "Rust")

	got := Compare(baseFields(), next)
	want := []string{"salary_upper", "skills", "title"}
	if len(got) != len(want) {
		t.Fatalf("Compare() = %+v, want %d changes", got, len(want))
	}
	for i, field := range want {
		if got[i].Field != field {
			t.Errorf("changes[%d].Field = %q, want %q", i, got[i].Field, field)
		}
	}
}

func TestHash_StableUnderReordering(t *testing.T) {
	a := baseFields()
	b := baseFields()
	b.Skills = []string{"Kubernetes", "Postgres", "Go"}
	if Hash(a) != Hash(b) {
		t.Error("Hash changed when a set field was reordered")
	}
	b.SalaryUpper = i64(230000)
	if Hash(a) == Hash(b) {
		t.Error("Hash did not change when salary changed")
	}
}

func TestHash_IgnoresUntrackedFields(t *testing.T) {
	a := baseFields()
	b := baseFields()
	b.Highlights.CompanyTip = "Founders are ex-Stripe"
	if Hash(a) != Hash(b) {
		t.Error("Hash changed for an untracked field")
	}
}
