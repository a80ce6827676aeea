package config

// defaultRaw returns the built-in settings. Load unmarshals the YAML file over
// them, so any key the file omits keeps its default.
func defaultRaw() rawConfig {
	return rawConfig{
		Store: StoreConfig{Driver: "sqlite", Path: "airdemand.db"},
		Lock: rawLockConfig{
			Backend: "file",
			Path:    "airdemand.lock",
			Key:     "airdemand:ingest-lock",
			TTL:     "2h",
		},
		Source: rawSourceConfig{
			Type:       "file",
			Path:       "roles.json",
			Timeout:    "30s",
			Retries:    2,
			RetryDelay: "5s",
			MinDelay:   "1m",
		},
		Schedule: rawScheduleConfig{
			Hours:    "5,17",
			Timezone: "Europe/London",
		},
		Notification: NotificationConfig{Type: "log"},
		Digest:       rawDigestConfig{Tiers: []string{"QUALIFIED", "MAYBE"}},
		Server:       ServerConfig{Addr: ":8080"},
		Engine:       EngineConfig{Workers: 4, MinBatchRatio: 0.5},
		Investors: InvestorConfig{
			Tier1: []string{
				"sequoia", "a16z", "andreessen horowitz", "benchmark", "greylock", "accel",
				"general catalyst", "lightspeed", "khosla", "founders fund", "kleiner perkins",
				"y combinator", "yc", "index ventures", "gv", "google ventures", "tiger global",
				"coatue", "thrive capital", "bessemer", "insight partners", "craft ventures",
				"redpoint", "nea", "new enterprise associates", "battery ventures",
			},
			Tier2: []string{
				"spark capital", "ivp", "menlo ventures", "felicis", "bain capital ventures",
				"initialized capital", "floodgate", "first round", "union square ventures",
				"lux capital", "ribbit capital", "greenoaks", "8vc", "sv angel",
			},
			Angels: []string{
				"elad gil", "nat friedman", "daniel gross", "max levchin", "aaron levie",
				"jack altman", "gokul rajaram", "paul buchheit", "naval ravikant", "lachy groom",
			},
		},
		Qualification: QualificationConfig{
			Locations: []string{
				"new_york", "new_york_city", "nyc", "manhattan", "brooklyn", "queens",
				"jersey_city", "hoboken", "london", "greater_london", "city_of_london",
				"uk", "united_kingdom",
			},
			AllowRemote:     true,
			SalaryFloor:     200000,
			CommissionFloor: 14,
			RoleCategories: []string{
				"backend_engineer", "full_stack_engineer", "embedded_firmware_engineer",
				"electrical_engineer", "mechanical_engineer",
				"forward_deployed_engineer_solutions_support",
			},
			ExcludedCategories: []string{"mobile_engineer", "ios_engineer", "android_engineer"},
			OpenStatuses:       []string{"ACTIVE"},
			SignalThreshold:    3,
			MaybeMinSignals:    0,
			FundingMin:         5_000_000,
			FundingStages: []string{
				"SEED", "SERIES_A", "SERIES_B", "SERIES_C", "SERIES_D", "SERIES_E",
			},
			CompanySizeMin:     10,
			CompanySizeMax:     500,
			ManagerRatingMin:   4.0,
			FastResponseDays:   3,
			InterviewStagesMax: 6,
		},
		Lifecycle: LifecycleConfig{DisappearanceThreshold: 2},
		Trend: rawTrendConfig{
			Window:           7,
			MinHistory:       3,
			SurgeDeltaMin:    2,
			RecentPostingAge: "72h",
		},
		Scoring: ScoringConfig{
			Weights: map[string]map[string]float64{
				"engineer": {
					"compensation":    0.30,
					"company_quality": 0.25,
					"role_impact":     0.20,
					"process_quality": 0.15,
					"tech_modernity":  0.10,
				},
				"headhunter": {
					"placement_probability": 0.35,
					"commission_value":      0.30,
					"competition":           0.20,
					"candidate_fit":         0.15,
				},
			},
			Ranges: map[string]Range{
				"salary":              {Min: 150_000, Max: 300_000},
				"fee":                 {Min: 10, Max: 20},
				"commission_value":    {Min: 0, Max: 60_000},
				"funding":             {Min: 1_000_000, Max: 100_000_000}, // normalised on a log scale
				"headcount":           {Min: 0, Max: 3},
				"recruiters":          {Min: 0, Max: 10},
				"interview_stages":    {Min: 3, Max: 8},
				"responsiveness_days": {Min: 0, Max: 5},
				"manager_rating":      {Min: 3, Max: 5},
				"tech_overlap":        {Min: 0, Max: 3},
				"hired":               {Min: 0, Max: 2},
			},
			Breakpoints: Breakpoints{Hot: 0.80, Warm: 0.60, Lukewarm: 0.40},
			Signals: SignalCutoffs{
				CommissionMin:      40_000,
				ManagerRatingMin:   4.5,
				ResponseDaysBelow:  1,
				InterviewStagesMax: 4,
			},
			Excitement: ExcitementConfig{
				HotCompanies: []string{
					"anthropic", "openai", "stripe", "figma", "notion", "linear", "vercel", "supabase",
					"ramp", "mercury", "plaid", "retool", "databricks", "snowflake", "datadog", "cloudflare",
				},
				AIIndustries: []string{"ai", "artificial_intelligence", "machine_learning"},
			},
			ModernTech: []string{
				"react", "typescript", "python", "go", "golang", "rust", "kubernetes", "graphql", "next.js",
			},
			HotIndustries: []string{"ai", "fintech", "developer_tools", "devtools", "cybersecurity"},
			CommonRoleTypes: []string{
				"full_stack_engineer", "backend_engineer", "frontend_engineer", "data_engineer",
			},
		},
	}
}
