// Package store persists roles, their snapshots and change events, and scrape
// run audit rows in SQLite or Postgres.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/richroberts-prog/air-demand/internal/config"
	"github.com/richroberts-prog/air-demand/internal/model"
)

// SQLStore implements model.RoleStore over database/sql.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	onClose func()
}

var _ model.RoleStore = (*SQLStore)(nil)

func newSQLStore(ctx context.Context, db *sql.DB, d dialect) (*SQLStore, error) {
	for _, stmt := range d.schema() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("creating %s schema: %w", d.name, err)
		}
	}
	return &SQLStore{db: db, dialect: d}, nil
}

// Close closes the underlying database connection.
func (s *SQLStore) Close() error {
	err := s.db.Close()
	if s.onClose != nil {
		s.onClose()
	}
	return err
}

func (s *SQLStore) q(query string) string {
	return s.dialect.rebind(query)
}

const roleColumns = `id, external_id, fields, status, consecutive_misses, first_seen_at,
	last_seen_at, removed_at, tier, reasons, scores, trend, assessed_at`

func scanRole(row rowScanner) (model.Role, error) {
	var (
		r                 model.Role
		fields, reasons   []byte
		scores            []byte
		status, tier      string
		trend             string
		first, last       nullTime
		removed, assessed nullTime
	)
	err := row.Scan(&r.ID, &r.ExternalID, &fields, &status, &r.ConsecutiveMisses, &first,
		&last, &removed, &tier, &reasons, &scores, &trend, &assessed)
	if err != nil {
		return model.Role{}, err
	}
	if err := fromJSON(fields, &r.Fields); err != nil {
		return model.Role{}, fmt.Errorf("decoding fields of role %s: %w", r.ExternalID, err)
	}
	if err := fromJSON(reasons, &r.Assessment.Reasons); err != nil {
		return model.Role{}, fmt.Errorf("decoding reasons of role %s: %w", r.ExternalID, err)
	}
	if len(scores) > 0 && string(scores) != "null" {
		var sc model.Scores
		if err := fromJSON(scores, &sc); err != nil {
			return model.Role{}, fmt.Errorf("decoding scores of role %s: %w", r.ExternalID, err)
		}
		r.Assessment.Scores = &sc
	}
	r.Status = model.LifecycleStatus(status)
	r.Assessment.Tier = model.Tier(tier)
	r.Assessment.Trend = model.TrendLabel(trend)
	r.FirstSeenAt = first.Time
	r.LastSeenAt = last.Time
	r.RemovedAt = removed.ptr()
	r.Assessment.AssessedAt = assessed.Time
	return r, nil
}

// LoadRoles returns every role ordered by id.
func (s *SQLStore) LoadRoles(ctx context.Context) ([]model.Role, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+roleColumns+" FROM roles ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("loading roles: %w", err)
	}
	return collectRoles(rows)
}

// GetRole looks a role up by its external id.
func (s *SQLStore) GetRole(ctx context.Context, externalID string) (model.Role, error) {
	row := s.db.QueryRowContext(ctx, s.q("SELECT "+roleColumns+" FROM roles WHERE external_id = ?"), externalID)
	r, err := scanRole(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Role{}, fmt.Errorf("role %s: %w", externalID, model.ErrNotFound)
	}
	if err != nil {
		return model.Role{}, fmt.Errorf("getting role %s: %w", externalID, err)
	}
	return r, nil
}

var sortColumns = map[string]string{
	"":           "combined_score",
	"combined":   "combined_score",
	"engineer":   "engineer_score",
	"headhunter": "headhunter_score",
	"first_seen": "first_seen_at",
	"last_seen":  "last_seen_at",
	"salary":     "salary_upper",
}

// ValidSort reports whether ListRoles accepts the sort key.
func ValidSort(key string) bool {
	_, ok := sortColumns[key]
	return ok
}

// ListRoles filters the current-state table. Rows lacking the sort value come last.
func (s *SQLStore) ListRoles(ctx context.Context, q model.RoleQuery) ([]model.Role, error) {
	col, ok := sortColumns[q.Sort]
	if !ok {
		return nil, fmt.Errorf("unknown sort key %q", q.Sort)
	}

	var (
		where []string
		args  []any
	)
	where, args = appendIn(where, args, "tier", q.Tiers)
	where, args = appendIn(where, args, "status", q.Statuses)
	where, args = appendIn(where, args, "trend", q.Trends)
	where, args = appendIn(where, args, "display_tier", q.DisplayTiers)
	if !q.SeenSince.IsZero() {
		where = append(where, "last_seen_at >= ?")
		args = append(args, dbTime(q.SeenSince))
	}

	var b strings.Builder
	b.WriteString("SELECT " + roleColumns + " FROM roles")
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	dir := "DESC"
	if q.Ascending {
		dir = "ASC"
	}
	fmt.Fprintf(&b, " ORDER BY CASE WHEN %s IS NULL THEN 1 ELSE 0 END, %s %s, id", col, col, dir)
	if q.Limit > 0 {
		b.WriteString(" LIMIT ?")
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, s.q(b.String()), args...)
	if err != nil {
		return nil, fmt.Errorf("listing roles: %w", err)
	}
	return collectRoles(rows)
}

func appendIn[T ~string](where []string, args []any, column string, values []T) ([]string, []any) {
	if len(values) == 0 {
		return where, args
	}
	marks := make([]string, len(values))
	for i, v := range values {
		marks[i] = "?"
		args = append(args, string(v))
	}
	return append(where, column+" IN ("+strings.Join(marks, ", ")+")"), args
}

func collectRoles(rows *sql.Rows) ([]model.Role, error) {
	defer rows.Close()
	var out []model.Role
	for rows.Next() {
		r, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning role: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating roles: %w", err)
	}
	return out, nil
}

const snapshotColumns = `id, role_id, run_id, captured_at, content_hash, fields`

func scanSnapshot(row rowScanner) (model.Snapshot, error) {
	var (
		snap     model.Snapshot
		captured nullTime
		fields   []byte
	)
	if err := row.Scan(&snap.ID, &snap.RoleID, &snap.RunID, &captured, &snap.ContentHash, &fields); err != nil {
		return model.Snapshot{}, err
	}
	if err := fromJSON(fields, &snap.Fields); err != nil {
		return model.Snapshot{}, fmt.Errorf("decoding snapshot %d: %w", snap.ID, err)
	}
	snap.CapturedAt = captured.Time
	return snap, nil
}

// LatestSnapshot returns the newest snapshot of a role, or nil if it has none.
func (s *SQLStore) LatestSnapshot(ctx context.Context, roleID int64) (*model.Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		s.q("SELECT "+snapshotColumns+" FROM snapshots WHERE role_id = ? ORDER BY id DESC LIMIT 1"), roleID)
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest snapshot of role %d: %w", roleID, err)
	}
	return &snap, nil
}

// RecentSnapshots returns up to limit of a role's newest snapshots, oldest first.
func (s *SQLStore) RecentSnapshots(ctx context.Context, roleID int64, limit int) ([]model.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		s.q("SELECT "+snapshotColumns+" FROM snapshots WHERE role_id = ? ORDER BY id DESC LIMIT ?"), roleID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent snapshots of role %d: %w", roleID, err)
	}
	defer rows.Close()

	var out []model.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating snapshots: %w", err)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// RecordObservation writes the role's new current state, its snapshot and the
// detected changes in one transaction. Changes are linked to the new snapshot.
func (s *SQLStore) RecordObservation(ctx context.Context, obs model.Observation) (model.Observed, error) {
	fields, err := toJSON(obs.Role.Fields)
	if err != nil {
		return model.Observed{}, fmt.Errorf("encoding fields of role %s: %w", obs.Role.ExternalID, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Observed{}, fmt.Errorf("beginning observation tx: %w", err)
	}
	defer tx.Rollback()

	var out model.Observed
	err = tx.QueryRowContext(ctx, s.q(`INSERT INTO roles
		(external_id, title, company, salary_upper, fields, status, consecutive_misses,
		 first_seen_at, last_seen_at, removed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (external_id) DO UPDATE SET
			title = excluded.title,
			company = excluded.company,
			salary_upper = excluded.salary_upper,
			fields = excluded.fields,
			status = excluded.status,
			consecutive_misses = excluded.consecutive_misses,
			last_seen_at = excluded.last_seen_at,
			removed_at = excluded.removed_at
		RETURNING id`),
		obs.Role.ExternalID, obs.Role.Fields.Title, obs.Role.Fields.Company.Name,
		nullInt64(obs.Role.Fields.SalaryUpper), fields, string(obs.Role.Status),
		obs.Role.ConsecutiveMisses, dbTime(obs.Role.FirstSeenAt), dbTime(obs.Role.LastSeenAt),
		dbTimePtr(obs.Role.RemovedAt),
	).Scan(&out.RoleID)
	if err != nil {
		return model.Observed{}, fmt.Errorf("upserting role %s: %w", obs.Role.ExternalID, err)
	}

	snapFields, err := toJSON(obs.Snapshot.Fields)
	if err != nil {
		return model.Observed{}, fmt.Errorf("encoding snapshot of role %s: %w", obs.Role.ExternalID, err)
	}
	err = tx.QueryRowContext(ctx, s.q(`INSERT INTO snapshots
		(role_id, run_id, captured_at, content_hash, fields) VALUES (?, ?, ?, ?, ?) RETURNING id`),
		out.RoleID, obs.RunID, dbTime(obs.Snapshot.CapturedAt), obs.Snapshot.ContentHash, snapFields,
	).Scan(&out.SnapshotID)
	if err != nil {
		return model.Observed{}, fmt.Errorf("inserting snapshot of role %s: %w", obs.Role.ExternalID, err)
	}

	for _, c := range obs.Changes {
		c.RoleID = out.RoleID
		c.RunID = obs.RunID
		c.ExternalID = obs.Role.ExternalID
		snapID := out.SnapshotID
		c.SnapshotID = &snapID
		if err := s.insertChange(ctx, tx, &c); err != nil {
			return model.Observed{}, err
		}
		out.Changes = append(out.Changes, c)
	}

	if err := tx.Commit(); err != nil {
		return model.Observed{}, fmt.Errorf("committing observation of role %s: %w", obs.Role.ExternalID, err)
	}
	return out, nil
}

// insertChange requires at least one snapshot reference: two adjacent
// snapshots, or the last snapshot of a role absent from the run.
func (s *SQLStore) insertChange(ctx context.Context, tx *sql.Tx, c *model.RoleChange) error {
	if c.PrevSnapshotID == nil && c.SnapshotID == nil {
		return fmt.Errorf("%s change for role %d references no snapshot", c.Type, c.RoleID)
	}
	err := tx.QueryRowContext(ctx, s.q(`INSERT INTO role_changes
		(role_id, run_id, change_type, field, old_value, new_value, prev_snapshot_id, snapshot_id, detected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		c.RoleID, c.RunID, string(c.Type), c.Field, c.OldValue, c.NewValue,
		nullInt64(c.PrevSnapshotID), nullInt64(c.SnapshotID), dbTime(c.DetectedAt),
	).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("inserting %s change for role %d: %w", c.Type, c.RoleID, err)
	}
	return nil
}

// RecordMiss advances a role that was absent from a batch, plus its
// DISAPPEARED event when the miss crossed the threshold.
func (s *SQLStore) RecordMiss(ctx context.Context, m model.Miss) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning miss tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		s.q("UPDATE roles SET status = ?, consecutive_misses = ?, removed_at = ? WHERE id = ?"),
		string(m.Status), m.ConsecutiveMisses, dbTimePtr(m.RemovedAt), m.RoleID)
	if err != nil {
		return fmt.Errorf("recording miss for role %d: %w", m.RoleID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("recording miss for role %d: %w", m.RoleID, model.ErrNotFound)
	}

	if m.Change != nil {
		c := *m.Change
		c.RoleID = m.RoleID
		c.RunID = m.RunID
		if err := s.insertChange(ctx, tx, &c); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing miss for role %d: %w", m.RoleID, err)
	}
	return nil
}

// SaveAssessment replaces the gate, score and trend columns of a role.
func (s *SQLStore) SaveAssessment(ctx context.Context, roleID int64, a model.Assessment) error {
	reasons, err := toJSON(a.Reasons)
	if err != nil {
		return fmt.Errorf("encoding reasons: %w", err)
	}

	var (
		scores                         sql.NullString
		combined, engineer, headhunter sql.NullFloat64
		display                        string
	)
	if a.Scores != nil {
		enc, err := toJSON(a.Scores)
		if err != nil {
			return fmt.Errorf("encoding scores: %w", err)
		}
		scores = sql.NullString{String: enc, Valid: true}
		combined = nullFloat(a.Scores.Combined, true)
		if p, ok := a.Scores.Perspective("engineer"); ok {
			engineer = nullFloat(p.Score, true)
		}
		if p, ok := a.Scores.Perspective("headhunter"); ok {
			headhunter = nullFloat(p.Score, true)
		}
		display = string(a.Scores.DisplayTier)
	}

	res, err := s.db.ExecContext(ctx, s.q(`UPDATE roles SET
		tier = ?, reasons = ?, scores = ?, combined_score = ?, engineer_score = ?,
		headhunter_score = ?, display_tier = ?, trend = ?, assessed_at = ?
		WHERE id = ?`),
		string(a.Tier), reasons, scores, combined, engineer, headhunter, display,
		string(a.Trend), dbTime(a.AssessedAt), roleID)
	if err != nil {
		return fmt.Errorf("saving assessment for role %d: %w", roleID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("saving assessment for role %d: %w", roleID, model.ErrNotFound)
	}
	return nil
}

// ListChanges returns change events newest first.
func (s *SQLStore) ListChanges(ctx context.Context, q model.ChangeQuery) ([]model.RoleChange, error) {
	var (
		where []string
		args  []any
	)
	if !q.Since.IsZero() {
		where = append(where, "c.detected_at > ?")
		args = append(args, dbTime(q.Since))
	}
	if q.RoleID != 0 {
		where = append(where, "c.role_id = ?")
		args = append(args, q.RoleID)
	}
	if q.RunID != 0 {
		where = append(where, "c.run_id = ?")
		args = append(args, q.RunID)
	}
	where, args = appendIn(where, args, "c.change_type", q.Types)

	var b strings.Builder
	b.WriteString(`SELECT c.id, c.role_id, c.run_id, r.external_id, c.change_type, c.field,
		c.old_value, c.new_value, c.prev_snapshot_id, c.snapshot_id, c.detected_at
		FROM role_changes c JOIN roles r ON r.id = c.role_id`)
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY c.detected_at DESC, c.id DESC")
	if q.Limit > 0 {
		b.WriteString(" LIMIT ?")
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, s.q(b.String()), args...)
	if err != nil {
		return nil, fmt.Errorf("listing changes: %w", err)
	}
	defer rows.Close()

	var out []model.RoleChange
	for rows.Next() {
		var (
			c          model.RoleChange
			changeType string
			prev, snap sql.NullInt64
			detected   nullTime
		)
		if err := rows.Scan(&c.ID, &c.RoleID, &c.RunID, &c.ExternalID, &changeType, &c.Field,
			&c.OldValue, &c.NewValue, &prev, &snap, &detected); err != nil {
			return nil, fmt.Errorf("scanning change: %w", err)
		}
		c.Type = model.ChangeType(changeType)
		c.PrevSnapshotID = int64Ptr(prev)
		c.SnapshotID = int64Ptr(snap)
		c.DetectedAt = detected.Time
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating changes: %w", err)
	}
	return out, nil
}

// BeginRun inserts a running scrape run and sets run.ID.
func (s *SQLStore) BeginRun(ctx context.Context, run *model.ScrapeRun) error {
	run.Status = model.RunRunning
	err := s.db.QueryRowContext(ctx, s.q(`INSERT INTO scrape_runs
		(run_id, status, triggered_by, started_at) VALUES (?, ?, ?, ?) RETURNING id`),
		run.RunID, string(run.Status), run.TriggeredBy, dbTime(run.StartedAt),
	).Scan(&run.ID)
	if err != nil {
		return fmt.Errorf("beginning run %s: %w", run.RunID, err)
	}
	return nil
}

// FinishRun seals a run with its final status and counts. A run can be sealed
// once; later calls return model.ErrRunSealed.
func (s *SQLStore) FinishRun(ctx context.Context, run model.ScrapeRun) error {
	if run.Status != model.RunCompleted && run.Status != model.RunFailed {
		return fmt.Errorf("finishing run %s with status %q", run.RunID, run.Status)
	}
	counts, err := toJSON(run.Counts)
	if err != nil {
		return fmt.Errorf("encoding counts: %w", err)
	}
	errs, err := toJSON(run.Errors)
	if err != nil {
		return fmt.Errorf("encoding errors: %w", err)
	}
	warnings, err := toJSON(run.Warnings)
	if err != nil {
		return fmt.Errorf("encoding warnings: %w", err)
	}

	completed := time.Now()
	if run.CompletedAt != nil {
		completed = *run.CompletedAt
	}
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE scrape_runs SET
		status = ?, completed_at = ?, counts = ?, anomaly = ?, errors = ?, warnings = ?
		WHERE run_id = ? AND status = ?`),
		string(run.Status), dbTime(completed), counts, run.Anomaly, errs, warnings,
		run.RunID, string(model.RunRunning))
	if err != nil {
		return fmt.Errorf("finishing run %s: %w", run.RunID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finishing run %s: %w", run.RunID, err)
	}
	if n == 0 {
		if _, err := s.GetRun(ctx, run.RunID); err != nil {
			return err
		}
		return fmt.Errorf("run %s: %w", run.RunID, model.ErrRunSealed)
	}
	return nil
}

const runColumns = `id, run_id, status, triggered_by, started_at, completed_at, counts, anomaly, errors, warnings`

func scanRun(row rowScanner) (model.ScrapeRun, error) {
	var (
		run                    model.ScrapeRun
		status                 string
		started, completed     nullTime
		counts, errs, warnings []byte
	)
	if err := row.Scan(&run.ID, &run.RunID, &status, &run.TriggeredBy, &started, &completed,
		&counts, &run.Anomaly, &errs, &warnings); err != nil {
		return model.ScrapeRun{}, err
	}
	if err := fromJSON(counts, &run.Counts); err != nil {
		return model.ScrapeRun{}, fmt.Errorf("decoding counts of run %s: %w", run.RunID, err)
	}
	if err := fromJSON(errs, &run.Errors); err != nil {
		return model.ScrapeRun{}, fmt.Errorf("decoding errors of run %s: %w", run.RunID, err)
	}
	if err := fromJSON(warnings, &run.Warnings); err != nil {
		return model.ScrapeRun{}, fmt.Errorf("decoding warnings of run %s: %w", run.RunID, err)
	}
	run.Status = model.RunStatus(status)
	run.StartedAt = started.Time
	run.CompletedAt = completed.ptr()
	return run, nil
}

// ListRuns returns the most recent runs first.
func (s *SQLStore) ListRuns(ctx context.Context, limit int) ([]model.ScrapeRun, error) {
	query := "SELECT " + runColumns + " FROM scrape_runs ORDER BY id DESC"
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var out []model.ScrapeRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}
	return out, nil
}

// GetRun looks a run up by its public run id.
func (s *SQLStore) GetRun(ctx context.Context, runID string) (model.ScrapeRun, error) {
	row := s.db.QueryRowContext(ctx, s.q("SELECT "+runColumns+" FROM scrape_runs WHERE run_id = ?"), runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ScrapeRun{}, fmt.Errorf("run %s: %w", runID, model.ErrNotFound)
	}
	if err != nil {
		return model.ScrapeRun{}, fmt.Errorf("getting run %s: %w", runID, err)
	}
	return run, nil
}

// DigestMark returns when the named digest was last committed, or the zero
// time if it never was.
func (s *SQLStore) DigestMark(ctx context.Context, name string) (time.Time, error) {
	var at nullTime
	err := s.db.QueryRowContext(ctx, s.q("SELECT marked_at FROM digest_marks WHERE name = ?"), name).Scan(&at)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("reading digest mark %s: %w", name, err)
	}
	return at.Time, nil
}

// SetDigestMark records that the named digest was committed at the given time.
func (s *SQLStore) SetDigestMark(ctx context.Context, name string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO digest_marks (name, marked_at) VALUES (?, ?)
		ON CONFLICT (name) DO UPDATE SET marked_at = excluded.marked_at`), name, dbTime(at))
	if err != nil {
		return fmt.Errorf("setting digest mark %s: %w", name, err)
	}
	return nil
}

// Open returns the store selected by cfg.
func Open(ctx context.Context, cfg config.StoreConfig) (*SQLStore, error) {
	switch cfg.Driver {
	case "sqlite":
		return NewSQLiteStore(cfg.Path)
	case "postgres":
		return NewPostgresStore(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
