package model

import (
	"context"
	"time"
)

// LifecycleStatus is where a role sits in the presence state machine.
type LifecycleStatus string

const (
	StatusActive         LifecycleStatus = "ACTIVE"
	StatusMissingPending LifecycleStatus = "MISSING_PENDING"
	StatusRemoved        LifecycleStatus = "REMOVED"
	StatusReappeared     LifecycleStatus = "REAPPEARED" // reported on the run a role returns, never stored
)

// Tracked reports whether a role in this status is still expected in each batch.
func (s LifecycleStatus) Tracked() bool {
	return s == StatusActive || s == StatusMissingPending
}

// Tier is the qualification gate's verdict.
type Tier string

const (
	TierQualified Tier = "QUALIFIED"
	TierMaybe     Tier = "MAYBE"
	TierSkip      Tier = "SKIP"
)

// Surfaced reports whether roles of this tier appear in digests and get scored.
func (t Tier) Surfaced() bool {
	return t == TierQualified || t == TierMaybe
}

// DisplayTier is a presentation bucket for the combined score.
type DisplayTier string

const (
	DisplayHot      DisplayTier = "hot"
	DisplayWarm     DisplayTier = "warm"
	DisplayLukewarm DisplayTier = "lukewarm"
	DisplayCold     DisplayTier = "cold"
)

// TrendLabel classifies a role's interview momentum.
type TrendLabel string

const (
	TrendNone    TrendLabel = ""
	TrendSurging TrendLabel = "surging"
	TrendStalled TrendLabel = "stalled"
	TrendHired   TrendLabel = "hired"
)

// Classification is the diff verdict for one role in one run.
type Classification string

const (
	ClassNew       Classification = "NEW"
	ClassUnchanged Classification = "UNCHANGED"
	ClassChanged   Classification = "CHANGED"
	ClassMissing   Classification = "MISSING"
)

// Role is the current-state row for one externally tracked listing.
type Role struct {
	ID                int64
	ExternalID        string
	Fields            Fields
	Status            LifecycleStatus
	ConsecutiveMisses int
	FirstSeenAt       time.Time
	LastSeenAt        time.Time
	RemovedAt         *time.Time // set when the role crossed into REMOVED
	Assessment        Assessment
}

// PostedAt returns the source posting time, falling back to when we first saw the role.
func (r Role) PostedAt() time.Time {
	if r.Fields.PostedAt != nil {
		return *r.Fields.PostedAt
	}
	return r.FirstSeenAt
}

// Assessment is the gate, scoring and trend output attached to a role.
type Assessment struct {
	Tier       Tier       `json:"tier"`
	Reasons    []string   `json:"reasons"`
	Scores     *Scores    `json:"scores,omitempty"` // nil for SKIP
	Trend      TrendLabel `json:"trend,omitempty"`
	AssessedAt time.Time  `json:"assessed_at"`
}

// Scores holds every perspective score and their mean.
type Scores struct {
	Perspectives []PerspectiveScore `json:"perspectives"`
	Combined     float64            `json:"combined"`
	DisplayTier  DisplayTier        `json:"display_tier"`
	Signals      []string           `json:"signals,omitempty"`
	Excitement   Excitement         `json:"excitement"`
}

// Excitement rates how prestigious the hiring company looks. It is reported
// beside the perspectives and does not feed Combined.
type Excitement struct {
	Score   float64  `json:"score"`
	Signals []string `json:"signals,omitempty"`
}

// Perspective returns the named perspective score and whether it was computed.
func (s Scores) Perspective(name string) (PerspectiveScore, bool) {
	for _, p := range s.Perspectives {
		if p.Name == name {
			return p, true
		}
	}
	return PerspectiveScore{}, false
}

// PerspectiveScore is one stakeholder's weighted evaluation.
type PerspectiveScore struct {
	Name      string             `json:"name"`
	Score     float64            `json:"score"`
	Breakdown map[string]float64 `json:"breakdown"`
}

// Snapshot is an append-only capture of a role's observed fields at one run.
type Snapshot struct {
	ID          int64
	RoleID      int64
	RunID       int64
	CapturedAt  time.Time
	ContentHash string
	Fields      Fields
}

// RoleChange is one field-level transition between two adjacent snapshots of a role.
// SnapshotID is nil when the role was absent from the run that detected the change.
type RoleChange struct {
	ID             int64
	RoleID         int64
	RunID          int64
	ExternalID     string // populated on reads
	Type           ChangeType
	Field          string
	OldValue       string
	NewValue       string
	PrevSnapshotID *int64
	SnapshotID     *int64
	DetectedAt     time.Time
}

// Observation is everything written for one role present in a batch.
type Observation struct {
	RunID    int64
	Role     Role
	Snapshot Snapshot
	Changes  []RoleChange
}

// Observed carries the identifiers assigned while recording an Observation.
type Observed struct {
	RoleID     int64
	SnapshotID int64
	Changes    []RoleChange
}

// Miss is the state written for a tracked role absent from a batch.
type Miss struct {
	RunID             int64
	RoleID            int64
	Status            LifecycleStatus
	ConsecutiveMisses int
	RemovedAt         *time.Time
	Change            *RoleChange
}

// RoleOutcome is the per-role result of one ingestion run.
type RoleOutcome struct {
	ExternalID     string
	RoleID         int64
	Fields         Fields
	Classification Classification
	Status         LifecycleStatus
	Assessment     Assessment
	Changes        []RoleChange
}

// RunResult is returned by an ingestion run.
type RunResult struct {
	Run      ScrapeRun
	Outcomes []RoleOutcome
}

// RoleQuery filters and orders the current-state table.
type RoleQuery struct {
	Tiers        []Tier
	Statuses     []LifecycleStatus
	Trends       []TrendLabel
	DisplayTiers []DisplayTier
	SeenSince    time.Time
	Sort         string // combined, engineer, headhunter, first_seen, last_seen, salary
	Ascending    bool
	Limit        int
}

// ChangeQuery filters the change log.
type ChangeQuery struct {
	Since  time.Time
	RoleID int64
	RunID  int64
	Types  []ChangeType
	Limit  int
}

// DigestEntry is one role surfaced to digest consumers.
type DigestEntry struct {
	Role    Role
	Changes []RoleChange
}

// Digest groups surfaced roles into new and changed views.
type Digest struct {
	RunID       string // empty for a since-last-digest view
	Since       time.Time
	GeneratedAt time.Time
	New         []DigestEntry
	Changed     []DigestEntry
}

// Empty reports whether the digest has nothing to announce.
func (d Digest) Empty() bool {
	return len(d.New) == 0 && len(d.Changed) == 0
}

// BatchSource fetches a raw batch from the scraper export.
type BatchSource interface {
	FetchBatch(ctx context.Context) (Batch, error)
}

// RoleStore persists roles, snapshots, change events and scrape runs.
type RoleStore interface {
	LoadRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, externalID string) (Role, error)
	ListRoles(ctx context.Context, q RoleQuery) ([]Role, error)

	LatestSnapshot(ctx context.Context, roleID int64) (*Snapshot, error)
	RecentSnapshots(ctx context.Context, roleID int64, limit int) ([]Snapshot, error)
	RecordObservation(ctx context.Context, obs Observation) (Observed, error)
	RecordMiss(ctx context.Context, m Miss) error
	SaveAssessment(ctx context.Context, roleID int64, a Assessment) error
	ListChanges(ctx context.Context, q ChangeQuery) ([]RoleChange, error)

	BeginRun(ctx context.Context, run *ScrapeRun) error
	FinishRun(ctx context.Context, run ScrapeRun) error
	ListRuns(ctx context.Context, limit int) ([]ScrapeRun, error)
	GetRun(ctx context.Context, runID string) (ScrapeRun, error)

	DigestMark(ctx context.Context, name string) (time.Time, error)
	SetDigestMark(ctx context.Context, name string, at time.Time) error

	Close() error
}

// Locker serialises ingestion runs. Acquire returns model.ErrRunInProgress when
// another run holds the lock.
type Locker interface {
	Acquire(ctx context.Context) (release func(), err error)
}

// Notifier announces surfaced roles after a run.
type Notifier interface {
	Notify(d Digest) error
}
