package store

import (
	"strconv"
	"strings"
)

// dialect captures the few places SQLite and Postgres disagree.
type dialect struct {
	name     string
	numbered bool // $1 placeholders instead of ?
	types    *strings.Replacer
}

var (
	sqliteDialect = dialect{
		name: "sqlite",
		types: strings.NewReplacer(
			"{{id}}", "INTEGER PRIMARY KEY AUTOINCREMENT",
			"{{json}}", "TEXT",
			"{{time}}", "DATETIME",
			"{{real}}", "REAL",
		),
	}
	postgresDialect = dialect{
		name:     "postgres",
		numbered: true,
		types: strings.NewReplacer(
			"{{id}}", "BIGSERIAL PRIMARY KEY",
			"{{json}}", "JSONB",
			"{{time}}", "TIMESTAMPTZ",
			"{{real}}", "DOUBLE PRECISION",
		),
	}
)

// rebind rewrites ? placeholders for dialects that number them.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (d dialect) schema() []string {
	out := make([]string, len(schemaStatements))
	for i, stmt := range schemaStatements {
		out[i] = d.types.Replace(stmt)
	}
	return out
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS scrape_runs (
		id           {{id}},
		run_id       TEXT NOT NULL UNIQUE,
		status       TEXT NOT NULL,
		triggered_by TEXT NOT NULL DEFAULT '',
		started_at   {{time}} NOT NULL,
		completed_at {{time}},
		counts       {{json}} NOT NULL DEFAULT '{}',
		anomaly      BOOLEAN NOT NULL DEFAULT FALSE,
		errors       {{json}} NOT NULL DEFAULT '[]',
		warnings     {{json}} NOT NULL DEFAULT '[]'
	)`,
	`CREATE TABLE IF NOT EXISTS roles (
		id                 {{id}},
		external_id        TEXT NOT NULL UNIQUE,
		title              TEXT NOT NULL DEFAULT '',
		company            TEXT NOT NULL DEFAULT '',
		salary_upper       BIGINT,
		fields             {{json}} NOT NULL,
		status             TEXT NOT NULL,
		consecutive_misses INTEGER NOT NULL DEFAULT 0,
		first_seen_at      {{time}} NOT NULL,
		last_seen_at       {{time}} NOT NULL,
		removed_at         {{time}},
		tier               TEXT NOT NULL DEFAULT 'SKIP',
		reasons            {{json}} NOT NULL DEFAULT '[]',
		scores             {{json}},
		combined_score     {{real}},
		engineer_score     {{real}},
		headhunter_score   {{real}},
		display_tier       TEXT NOT NULL DEFAULT '',
		trend              TEXT NOT NULL DEFAULT '',
		assessed_at        {{time}}
	)`,
	`CREATE INDEX IF NOT EXISTS idx_roles_status ON roles (status)`,
	`CREATE TABLE IF NOT EXISTS snapshots (
		id           {{id}},
		role_id      BIGINT NOT NULL REFERENCES roles (id),
		run_id       BIGINT NOT NULL REFERENCES scrape_runs (id),
		captured_at  {{time}} NOT NULL,
		content_hash TEXT NOT NULL,
		fields       {{json}} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_snapshots_role ON snapshots (role_id, id)`,
	`CREATE TABLE IF NOT EXISTS role_changes (
		id               {{id}},
		role_id          BIGINT NOT NULL REFERENCES roles (id),
		run_id           BIGINT NOT NULL REFERENCES scrape_runs (id),
		change_type      TEXT NOT NULL,
		field            TEXT NOT NULL,
		old_value        TEXT NOT NULL DEFAULT '',
		new_value        TEXT NOT NULL DEFAULT '',
		prev_snapshot_id BIGINT REFERENCES snapshots (id),
		snapshot_id      BIGINT REFERENCES snapshots (id),
		detected_at      {{time}} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_role_changes_detected ON role_changes (detected_at)`,
	`CREATE INDEX IF NOT EXISTS idx_role_changes_role ON role_changes (role_id)`,
	`CREATE TABLE IF NOT EXISTS digest_marks (
		name      TEXT PRIMARY KEY,
		marked_at {{time}} NOT NULL
	)`,
}
