package config

import (
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/richroberts-prog/air-demand/internal/model"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the air-demand engine and its callers.
// It is built once at startup and treated as read-only afterwards.
type Config struct {
	Store         StoreConfig
	Lock          LockConfig
	Source        SourceConfig
	Schedule      ScheduleConfig
	Notification  NotificationConfig
	Digest        DigestConfig
	Server        ServerConfig
	Engine        EngineConfig
	Investors     InvestorConfig
	Qualification QualificationConfig
	Lifecycle     LifecycleConfig
	Trend         TrendConfig
	Scoring       ScoringConfig
}

// StoreConfig selects the entity store backend.
type StoreConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "postgres"
	Path   string `yaml:"path"`   // sqlite file
	DSN    string `yaml:"dsn"`    // postgres connection string
}

// LockConfig selects how concurrent ingestion runs are excluded.
type LockConfig struct {
	Backend  string // "file" or "redis"
	Path     string
	RedisURL string
	Key      string
	TTL      time.Duration
}

// SourceConfig describes where scraper exports are read from.
type SourceConfig struct {
	Type       string // "file" or "http"
	Path       string
	URL        string
	Timeout    time.Duration
	Retries    int
	RetryDelay time.Duration
	MinDelay   time.Duration // minimum gap between fetches
}

// ScheduleConfig controls the ingestion cron.
type ScheduleConfig struct {
	Hours      []int
	Timezone   string
	Location   *time.Location
	RunOnStart bool
}

// CronSpec renders the schedule as a five-field cron expression.
func (s ScheduleConfig) CronSpec() string {
	hours := make([]string, len(s.Hours))
	for i, h := range s.Hours {
		hours[i] = strconv.Itoa(h)
	}
	return "0 " + strings.Join(hours, ",") + " * * *"
}

// NotificationConfig controls which notifier is used and its settings.
type NotificationConfig struct {
	Type       string `yaml:"type"`        // "log" or "slack"
	WebhookURL string `yaml:"webhook_url"` // required if type is "slack"
}

// DigestConfig controls which tiers digest views include.
type DigestConfig struct {
	Tiers []model.Tier
}

// ServerConfig controls the read API.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// EngineConfig tunes a single ingestion run.
type EngineConfig struct {
	Workers       int     `yaml:"workers"`
	MinBatchRatio float64 `yaml:"min_batch_ratio"` // below this share of tracked roles a batch is an anomaly
}

// InvestorConfig lists investor names by tier, matched case-insensitively on whole words.
type InvestorConfig struct {
	Tier1  []string `yaml:"tier1"`
	Tier2  []string `yaml:"tier2"`
	Angels []string `yaml:"angels"` // notable individual angels, scored like tier 2
}

// QualificationConfig holds the gate's hard filters and quality-signal rules.
type QualificationConfig struct {
	Locations          []string `yaml:"locations"`
	AllowRemote        bool     `yaml:"allow_remote"`
	SalaryFloor        int64    `yaml:"salary_floor"`
	CommissionFloor    float64  `yaml:"commission_floor"`
	RoleCategories     []string `yaml:"role_categories"`
	ExcludedCategories []string `yaml:"excluded_categories"`
	OpenStatuses       []string `yaml:"open_statuses"`
	SignalThreshold    int      `yaml:"signal_threshold"`
	MaybeMinSignals    int      `yaml:"maybe_min_signals"`
	FundingMin         float64  `yaml:"funding_min"`
	FundingStages      []string `yaml:"funding_stages"`
	CompanySizeMin     int      `yaml:"company_size_min"`
	CompanySizeMax     int      `yaml:"company_size_max"`
	ManagerRatingMin   float64  `yaml:"manager_rating_min"`
	FastResponseDays   float64  `yaml:"fast_response_days"`
	InterviewStagesMax int      `yaml:"interview_stages_max"`
}

// LifecycleConfig tunes the presence state machine.
type LifecycleConfig struct {
	DisappearanceThreshold int `yaml:"disappearance_threshold"`
}

// TrendConfig tunes the momentum detector.
type TrendConfig struct {
	Window           int
	MinHistory       int
	SurgeDeltaMin    int
	RecentPostingAge time.Duration
}

// Range is a normalisation interval; values at Min score 0 and at Max score 1.
type Range struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// ScoringConfig holds perspective weights, normalisation ranges and display breakpoints.
type ScoringConfig struct {
	Weights         map[string]map[string]float64 `yaml:"weights"`
	Ranges          map[string]Range              `yaml:"ranges"`
	Breakpoints     Breakpoints                   `yaml:"breakpoints"`
	Signals         SignalCutoffs                 `yaml:"signals"`
	Excitement      ExcitementConfig              `yaml:"excitement"`
	ModernTech      []string                      `yaml:"modern_tech"`
	HotIndustries   []string                      `yaml:"hot_industries"`
	CommonRoleTypes []string                      `yaml:"common_role_types"`
}

// SignalCutoffs decide when a raw value earns a human-readable signal.
type SignalCutoffs struct {
	CommissionMin      float64 `yaml:"commission_min"` // expected placement fee in USD
	ManagerRatingMin   float64 `yaml:"manager_rating_min"`
	ResponseDaysBelow  float64 `yaml:"response_days_below"`
	InterviewStagesMax int     `yaml:"interview_stages_max"`
}

// ExcitementConfig feeds the deterministic company excitement score.
type ExcitementConfig struct {
	HotCompanies []string `yaml:"hot_companies"` // scored near the top outright
	AIIndustries []string `yaml:"ai_industries"` // outrank the other hot industries
}

// Breakpoints map the combined score onto display tiers.
type Breakpoints struct {
	Hot      float64 `yaml:"hot"`
	Warm     float64 `yaml:"warm"`
	Lukewarm float64 `yaml:"lukewarm"`
}

// rawConfig is used for YAML unmarshaling (snake_case fields and duration as string).
type rawConfig struct {
	Store         StoreConfig         `yaml:"store"`
	Lock          rawLockConfig       `yaml:"lock"`
	Source        rawSourceConfig     `yaml:"source"`
	Schedule      rawScheduleConfig   `yaml:"schedule"`
	Notification  NotificationConfig  `yaml:"notification"`
	Digest        rawDigestConfig     `yaml:"digest"`
	Server        ServerConfig        `yaml:"server"`
	Engine        EngineConfig        `yaml:"engine"`
	Investors     InvestorConfig      `yaml:"investors"`
	Qualification QualificationConfig `yaml:"qualification"`
	Lifecycle     LifecycleConfig     `yaml:"lifecycle"`
	Trend         rawTrendConfig      `yaml:"trend"`
	Scoring       ScoringConfig       `yaml:"scoring"`
}

type rawLockConfig struct {
	Backend  string `yaml:"backend"`
	Path     string `yaml:"path"`
	RedisURL string `yaml:"redis_url"`
	Key      string `yaml:"key"`
	TTL      string `yaml:"ttl"`
}

type rawSourceConfig struct {
	Type       string `yaml:"type"`
	Path       string `yaml:"path"`
	URL        string `yaml:"url"`
	Timeout    string `yaml:"timeout"`
	Retries    int    `yaml:"retries"`
	RetryDelay string `yaml:"retry_delay"`
	MinDelay   string `yaml:"min_delay"`
}

type rawScheduleConfig struct {
	Hours      string `yaml:"hours"` // comma separated, e.g. "5,17"
	Timezone   string `yaml:"timezone"`
	RunOnStart bool   `yaml:"run_on_start"`
}

type rawDigestConfig struct {
	Tiers []string `yaml:"tiers"`
}

type rawTrendConfig struct {
	Window           int    `yaml:"window"`
	MinHistory       int    `yaml:"min_history"`
	SurgeDeltaMin    int    `yaml:"surge_delta_min"`
	RecentPostingAge string `yaml:"recent_posting_age"`
}

// Load reads and parses the YAML config file at path, validates it, and returns Config.
// Keys absent from the file keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	raw := defaultRaw()
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg, err := fromRaw(raw)
	if err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg, err := fromRaw(defaultRaw())
	if err != nil {
		panic(fmt.Sprintf("default config: %v", err))
	}
	return cfg
}

func fromRaw(raw rawConfig) (*Config, error) {
	lockTTL, err := parseDuration("lock.ttl", raw.Lock.TTL)
	if err != nil {
		return nil, err
	}
	timeout, err := parseDuration("source.timeout", raw.Source.Timeout)
	if err != nil {
		return nil, err
	}
	retryDelay, err := parseDuration("source.retry_delay", raw.Source.RetryDelay)
	if err != nil {
		return nil, err
	}
	minDelay, err := parseDuration("source.min_delay", raw.Source.MinDelay)
	if err != nil {
		return nil, err
	}
	postingAge, err := parseDuration("trend.recent_posting_age", raw.Trend.RecentPostingAge)
	if err != nil {
		return nil, err
	}

	hours, err := parseHours(raw.Schedule.Hours)
	if err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(raw.Schedule.Timezone)
	if err != nil {
		return nil, fmt.Errorf("parse schedule.timezone %q: %w", raw.Schedule.Timezone, err)
	}

	tiers := make([]model.Tier, 0, len(raw.Digest.Tiers))
	for _, t := range raw.Digest.Tiers {
		tiers = append(tiers, model.Tier(strings.ToUpper(strings.TrimSpace(t))))
	}

	return &Config{
		Store: raw.Store,
		Lock: LockConfig{
			Backend:  raw.Lock.Backend,
			Path:     raw.Lock.Path,
			RedisURL: raw.Lock.RedisURL,
			Key:      raw.Lock.Key,
			TTL:      lockTTL,
		},
		Source: SourceConfig{
			Type:       raw.Source.Type,
			Path:       raw.Source.Path,
			URL:        raw.Source.URL,
			Timeout:    timeout,
			Retries:    raw.Source.Retries,
			RetryDelay: retryDelay,
			MinDelay:   minDelay,
		},
		Schedule: ScheduleConfig{
			Hours:      hours,
			Timezone:   raw.Schedule.Timezone,
			Location:   loc,
			RunOnStart: raw.Schedule.RunOnStart,
		},
		Notification:  raw.Notification,
		Digest:        DigestConfig{Tiers: tiers},
		Server:        raw.Server,
		Engine:        raw.Engine,
		Investors:     raw.Investors,
		Qualification: raw.Qualification,
		Lifecycle:     raw.Lifecycle,
		Trend: TrendConfig{
			Window:           raw.Trend.Window,
			MinHistory:       raw.Trend.MinHistory,
			SurgeDeltaMin:    raw.Trend.SurgeDeltaMin,
			RecentPostingAge: postingAge,
		},
		Scoring: raw.Scoring,
	}, nil
}

func parseDuration(key, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s %q: %w", key, value, err)
	}
	return d, nil
}

func parseHours(value string) ([]int, error) {
	var hours []int
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		h, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("parse schedule.hours %q: %w", value, err)
		}
		if h < 0 || h > 23 {
			return nil, fmt.Errorf("schedule.hours entries must be 0-23, got %d", h)
		}
		hours = append(hours, h)
	}
	sort.Ints(hours)
	return hours, nil
}

func validate(cfg *Config) error {
	switch cfg.Store.Driver {
	case "sqlite":
		if cfg.Store.Path == "" {
			return fmt.Errorf("store.path is required for the sqlite driver")
		}
	case "postgres":
		if cfg.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("store.driver must be \"sqlite\" or \"postgres\", got %q", cfg.Store.Driver)
	}

	switch cfg.Lock.Backend {
	case "file":
		if cfg.Lock.Path == "" {
			return fmt.Errorf("lock.path is required for the file backend")
		}
	case "redis":
		if cfg.Lock.RedisURL == "" {
			return fmt.Errorf("lock.redis_url is required for the redis backend")
		}
	default:
		return fmt.Errorf("lock.backend must be \"file\" or \"redis\", got %q", cfg.Lock.Backend)
	}
	if cfg.Lock.TTL <= 0 {
		return fmt.Errorf("lock.ttl must be positive, got %v", cfg.Lock.TTL)
	}

	switch cfg.Source.Type {
	case "file":
		if cfg.Source.Path == "" {
			return fmt.Errorf("source.path is required for the file source")
		}
	case "http":
		if cfg.Source.URL == "" {
			return fmt.Errorf("source.url is required for the http source")
		}
	default:
		return fmt.Errorf("source.type must be \"file\" or \"http\", got %q", cfg.Source.Type)
	}
	if cfg.Source.Retries < 0 {
		return fmt.Errorf("source.retries must not be negative, got %d", cfg.Source.Retries)
	}

	if len(cfg.Schedule.Hours) == 0 {
		return fmt.Errorf("schedule.hours must list at least one hour")
	}

	if cfg.Notification.Type == "slack" {
		if !strings.HasPrefix(cfg.Notification.WebhookURL, "https://hooks.slack.com/") {
			return fmt.Errorf("notification.webhook_url must start with https://hooks.slack.com/")
		}
	}

	for _, t := range cfg.Digest.Tiers {
		if t != model.TierQualified && t != model.TierMaybe && t != model.TierSkip {
			return fmt.Errorf("digest.tiers: unknown tier %q", t)
		}
	}

	if cfg.Engine.Workers < 1 {
		return fmt.Errorf("engine.workers must be at least 1, got %d", cfg.Engine.Workers)
	}
	if cfg.Engine.MinBatchRatio < 0 || cfg.Engine.MinBatchRatio > 1 {
		return fmt.Errorf("engine.min_batch_ratio must be between 0 and 1, got %v", cfg.Engine.MinBatchRatio)
	}

	q := cfg.Qualification
	if len(q.Locations) == 0 && !q.AllowRemote {
		return fmt.Errorf("qualification.locations is empty and remote roles are not allowed; nothing can qualify")
	}
	if q.SalaryFloor < 0 || q.CommissionFloor < 0 {
		return fmt.Errorf("qualification floors must not be negative")
	}
	if q.SignalThreshold < 1 {
		return fmt.Errorf("qualification.signal_threshold must be at least 1, got %d", q.SignalThreshold)
	}
	if q.MaybeMinSignals < 0 || q.MaybeMinSignals > q.SignalThreshold {
		return fmt.Errorf("qualification.maybe_min_signals must be between 0 and signal_threshold, got %d", q.MaybeMinSignals)
	}
	if q.CompanySizeMin > q.CompanySizeMax {
		return fmt.Errorf("qualification.company_size_min must not exceed company_size_max")
	}

	if cfg.Lifecycle.DisappearanceThreshold < 1 {
		return fmt.Errorf("lifecycle.disappearance_threshold must be at least 1, got %d", cfg.Lifecycle.DisappearanceThreshold)
	}

	tr := cfg.Trend
	if tr.Window < 2 {
		return fmt.Errorf("trend.window must be at least 2, got %d", tr.Window)
	}
	if tr.MinHistory < 2 || tr.MinHistory > tr.Window {
		return fmt.Errorf("trend.min_history must be between 2 and trend.window, got %d", tr.MinHistory)
	}
	if tr.SurgeDeltaMin < 1 {
		return fmt.Errorf("trend.surge_delta_min must be at least 1, got %d", tr.SurgeDeltaMin)
	}

	return validateScoring(cfg.Scoring)
}

func validateScoring(s ScoringConfig) error {
	if len(s.Weights) < 2 {
		return fmt.Errorf("scoring.weights must define at least two perspectives")
	}
	for name, weights := range s.Weights {
		sum := 0.0
		for signal, w := range weights {
			if w < 0 {
				return fmt.Errorf("scoring.weights.%s.%s must not be negative", name, signal)
			}
			sum += w
		}
		if math.Abs(sum-1.0) > 1e-6 {
			return fmt.Errorf("scoring.weights.%s must sum to 1.0, got %.4f", name, sum)
		}
	}
	for name, r := range s.Ranges {
		if r.Max <= r.Min {
			return fmt.Errorf("scoring.ranges.%s: max must exceed min", name)
		}
	}
	b := s.Breakpoints
	if !(b.Hot > b.Warm && b.Warm > b.Lukewarm && b.Lukewarm > 0 && b.Hot <= 1) {
		return fmt.Errorf("scoring.breakpoints must satisfy 1 >= hot > warm > lukewarm > 0")
	}
	sig := s.Signals
	if sig.CommissionMin <= 0 || sig.ManagerRatingMin <= 0 || sig.ResponseDaysBelow <= 0 || sig.InterviewStagesMax < 1 {
		return fmt.Errorf("scoring.signals cutoffs must be positive")
	}
	return nil
}
