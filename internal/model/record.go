package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// SourceID is the scraper's stable identifier for a listing. The export emits
// it as either a JSON string or a number.
type SourceID string

func (id *SourceID) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = SourceID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = SourceID(n.String())
	return nil
}

// RawRecord is one listing as produced by the scraper export.
type RawRecord struct {
	ID SourceID `json:"id"`
	Fields
}

// Fields are the externally observed attributes of a listing. A snapshot
// stores a full copy of them.
type Fields struct {
	Title                  string      `json:"title"`
	Company                Company     `json:"company"`
	SalaryLower            *int64      `json:"salary_lower,omitempty"`
	SalaryUpper            *int64      `json:"salary_upper,omitempty"`
	PercentFee             *float64    `json:"percent_fee,omitempty"`
	Locations              []string    `json:"locations,omitempty"`
	WorkplaceType          string      `json:"workplace_type,omitempty"`
	RoleTypes              []string    `json:"role_types,omitempty"`
	Skills                 []string    `json:"skills,omitempty"`
	HiringCount            *int        `json:"hiring_count,omitempty"`
	ApprovedRecruiters     *int        `json:"approved_recruiters_count,omitempty"`
	TotalInterviewing      *int        `json:"total_interviewing,omitempty"`
	TotalHired             *int        `json:"total_hired,omitempty"`
	Status                 string      `json:"status,omitempty"` // listing status at the source, e.g. ACTIVE or PAUSED
	NotAcceptingRecruiters bool        `json:"not_accepting_recruiters,omitempty"`
	Investors              []string    `json:"investors,omitempty"`
	ManagerRating          *float64    `json:"manager_rating,omitempty"`
	ResponsivenessDays     *float64    `json:"responsiveness_days,omitempty"`
	InterviewStages        *int        `json:"interview_stages,omitempty"`
	PostedAt               *time.Time  `json:"posted_at,omitempty"`
	Highlights             Highlights  `json:"highlights"`
	Enrichment             *Enrichment `json:"enrichment,omitempty"`
}

// AllInvestors merges scraped and enrichment-extracted investor names.
func (f Fields) AllInvestors() []string {
	if f.Enrichment == nil || len(f.Enrichment.Investors) == 0 {
		return f.Investors
	}
	seen := make(map[string]bool, len(f.Investors))
	out := make([]string, 0, len(f.Investors)+len(f.Enrichment.Investors))
	for _, inv := range append(append([]string{}, f.Investors...), f.Enrichment.Investors...) {
		key := strings.ToLower(strings.TrimSpace(inv))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, inv)
	}
	return out
}

// FundingStage prefers the scraped company round over the enrichment guess.
func (f Fields) FundingStage() string {
	if f.Company.FundingStage != "" {
		return f.Company.FundingStage
	}
	if f.Enrichment != nil {
		return f.Enrichment.FundingStage
	}
	return ""
}

// Company describes the hiring company.
type Company struct {
	Name          string   `json:"name"`
	Size          *int     `json:"size,omitempty"`
	FundingAmount string   `json:"funding_amount,omitempty"` // e.g. "$16.25M"
	FundingStage  string   `json:"funding_stage,omitempty"`  // e.g. SERIES_A
	Industries    []string `json:"industries,omitempty"`
}

// Highlights are the free-text selling points and badges attached to a
// listing. Unknown keys land in Extras.
type Highlights struct {
	Badges        []string                   `json:"badges,omitempty"`
	CompanyTip    string                     `json:"company_tip,omitempty"`
	SellingPoints string                     `json:"selling_points,omitempty"`
	Extras        map[string]json.RawMessage `json:"-"`
}

var highlightKeys = []string{"badges", "company_tip", "selling_points"}

func (h *Highlights) UnmarshalJSON(b []byte) error {
	type plain Highlights
	var p plain
	extras, err := decodeOpen(b, &p, highlightKeys)
	if err != nil {
		return err
	}
	*h = Highlights(p)
	h.Extras = extras
	return nil
}

func (h Highlights) MarshalJSON() ([]byte, error) {
	type plain Highlights
	return encodeOpen(plain(h), h.Extras)
}

// HasBadge reports whether the listing carries the named badge.
func (h Highlights) HasBadge(name string) bool {
	for _, b := range h.Badges {
		if strings.EqualFold(b, name) {
			return true
		}
	}
	return false
}

// Present reports whether any highlight content exists.
func (h Highlights) Present() bool {
	return len(h.Badges) > 0 || h.CompanyTip != "" || h.SellingPoints != ""
}

// Enrichment records outputs of the external enrichment collaborator.
// Unknown keys land in Extras.
type Enrichment struct {
	Investors          []string                   `json:"investors,omitempty"`
	FundingStage       string                     `json:"funding_stage,omitempty"`
	Location           string                     `json:"location,omitempty"`
	LocationConfidence string                     `json:"location_confidence,omitempty"` // high, medium, low
	PositiveSignals    []string                   `json:"positive_signals,omitempty"`
	NegativeSignals    []string                   `json:"negative_signals,omitempty"`
	Extras             map[string]json.RawMessage `json:"-"`
}

var enrichmentKeys = []string{
	"investors", "funding_stage", "location", "location_confidence", "positive_signals", "negative_signals",
}

func (e *Enrichment) UnmarshalJSON(b []byte) error {
	type plain Enrichment
	var p plain
	extras, err := decodeOpen(b, &p, enrichmentKeys)
	if err != nil {
		return err
	}
	*e = Enrichment(p)
	e.Extras = extras
	return nil
}

func (e Enrichment) MarshalJSON() ([]byte, error) {
	type plain Enrichment
	return encodeOpen(plain(e), e.Extras)
}

// decodeOpen fills known from an object and returns every key it does not
// declare, so open-ended scraper objects survive a snapshot round trip.
func decodeOpen(b []byte, known any, keys []string) (map[string]json.RawMessage, error) {
	if err := json.Unmarshal(b, known); err != nil {
		return nil, err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(b, &all); err != nil {
		return nil, err
	}
	for _, k := range keys {
		delete(all, k)
	}
	if len(all) == 0 {
		return nil, nil
	}
	return all, nil
}

// encodeOpen flattens extras back beside the known keys. A declared key
// always wins over an extra of the same name.
func encodeOpen(known any, extras map[string]json.RawMessage) ([]byte, error) {
	b, err := json.Marshal(known)
	if err != nil || len(extras) == 0 {
		return b, err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(b, &all); err != nil {
		return nil, err
	}
	for k, v := range extras {
		if _, ok := all[k]; !ok {
			all[k] = v
		}
	}
	return json.Marshal(all)
}

// RecordError describes a batch element that could not be ingested.
type RecordError struct {
	Index      int
	ExternalID string
	Message    string
}

func (e RecordError) String() string {
	if e.ExternalID != "" {
		return fmt.Sprintf("record %d (%s): %s", e.Index, e.ExternalID, e.Message)
	}
	return fmt.Sprintf("record %d: %s", e.Index, e.Message)
}

// Batch is one decoded scraper export.
type Batch struct {
	Records  []RawRecord
	Rejected []RecordError
}

// Size is the number of elements the export contained, valid or not.
func (b Batch) Size() int {
	return len(b.Records) + len(b.Rejected)
}

// ChangeType classifies a detected field transition.
type ChangeType string

const (
	ChangeSalaryIncrease    ChangeType = "SALARY_INCREASE"
	ChangeSalaryDecrease    ChangeType = "SALARY_DECREASE"
	ChangeFeeIncrease       ChangeType = "FEE_INCREASE"
	ChangeFeeDecrease       ChangeType = "FEE_DECREASE"
	ChangeHeadcount         ChangeType = "HEADCOUNT_CHANGE"
	ChangeCompetition       ChangeType = "COMPETITION_CHANGE"
	ChangeInterviewIncrease ChangeType = "INTERVIEW_INCREASE"
	ChangeInterviewDecrease ChangeType = "INTERVIEW_DECREASE"
	ChangeHiringIncrease    ChangeType = "HIRING_INCREASE"
	ChangeHiringDecrease    ChangeType = "HIRING_DECREASE"
	ChangeTitle             ChangeType = "TITLE_CHANGE"
	ChangeWorkplace         ChangeType = "WORKPLACE_CHANGE"
	ChangeStatus            ChangeType = "STATUS_CHANGE"
	ChangeLocation          ChangeType = "LOCATION_CHANGE"
	ChangeCategory          ChangeType = "CATEGORY_CHANGE"
	ChangeSkills            ChangeType = "SKILLS_CHANGE"
	ChangeInvestors         ChangeType = "INVESTOR_CHANGE"
	ChangeReappeared        ChangeType = "REAPPEARED"
	ChangeDisappeared       ChangeType = "DISAPPEARED"
)

// RunStatus is the lifecycle of a scrape run row.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// RunCounts are the audit counters of one run.
type RunCounts struct {
	Found       int `json:"found"`
	New         int `json:"new"`
	Updated     int `json:"updated"`
	Changed     int `json:"changed"`
	Unchanged   int `json:"unchanged"`
	Qualified   int `json:"qualified"`
	Missing     int `json:"missing"`
	Disappeared int `json:"disappeared"`
	Reappeared  int `json:"reappeared"`
	Rejected    int `json:"rejected"`
}

// ScrapeRun is one batch ingestion execution. It is finalised exactly once.
type ScrapeRun struct {
	ID          int64
	RunID       string
	Status      RunStatus
	TriggeredBy string
	StartedAt   time.Time
	CompletedAt *time.Time
	Counts      RunCounts
	Anomaly     bool
	Errors      []string
	Warnings    []string
}

// Duration is the wall time of a finished run, zero while running.
func (r ScrapeRun) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}
