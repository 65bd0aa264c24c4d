package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const timeLayout = "2006-01-02 15:04:05"

type DB struct {
	sql *sql.DB
}

func Open(path string) (*DB, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	// Ensure schema exists for convenience.
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS diff_events (
  id            INTEGER PRIMARY KEY,
  occurred_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  run_id        TEXT NOT NULL,
  location      TEXT NOT NULL,
  current_path  TEXT NOT NULL,
  diff_path     TEXT,
  status        TEXT NOT NULL CHECK (status IN ('changed','unchanged','failed')),
  stage         TEXT,
  error         TEXT,
  pages         INTEGER NOT NULL DEFAULT 0,
  dropped       INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_events_time ON diff_events(occurred_at);
CREATE INDEX IF NOT EXISTS idx_events_location ON diff_events(location, occurred_at);
    `); err != nil {
		return nil, err
	}
	return &DB{sql: db}, nil
}

func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

// LogOutcomes records the outcomes of one cycle in a single transaction.
func (d *DB) LogOutcomes(ctx context.Context, outcomes []Outcome) (err error) {
	if len(outcomes) == 0 {
		return nil
	}
	tx, err := d.sql.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	for _, o := range outcomes {
		at := o.OccurredAt
		if at.IsZero() {
			at = now
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO diff_events(occurred_at, run_id, location, current_path, diff_path, status, stage, error, pages, dropped) VALUES(?,?,?,?,?,?,?,?,?,?)`,
			at.UTC().Format(timeLayout), o.RunID, o.Location, o.CurrentPath, nullIfEmpty(o.DiffPath), o.Status, nullIfEmpty(o.Stage), nullIfEmpty(o.Error), o.Pages, o.Dropped)
		if err != nil {
			return fmt.Errorf("could not record %s: %w", o.CurrentPath, err)
		}
	}
	return tx.Commit()
}

// ListOptions controls selection when listing outcomes.
type ListOptions struct {
	Location string
	Status   string
	Since    time.Time
	Limit    int
}

// ListOutcomes returns recorded outcomes, most recent first.
func (d *DB) ListOutcomes(ctx context.Context, opts ListOptions) ([]Outcome, error) {
	where := "WHERE 1=1"
	args := []interface{}{}
	if opts.Location != "" {
		where += " AND location = ?"
		args = append(args, opts.Location)
	}
	if opts.Status != "" && opts.Status != "all" {
		where += " AND status = ?"
		args = append(args, opts.Status)
	}
	if !opts.Since.IsZero() {
		where += " AND occurred_at >= ?"
		args = append(args, opts.Since.UTC().Format(timeLayout))
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)

	q := "SELECT occurred_at, run_id, location, current_path, diff_path, status, stage, error, pages, dropped FROM diff_events " + where + " ORDER BY occurred_at DESC, id DESC LIMIT ?"
	rows, err := d.sql.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Outcome{}
	for rows.Next() {
		var (
			o                        Outcome
			occurredAt               string
			diffPath, stage, errText sql.NullString
		)
		if err := rows.Scan(&occurredAt, &o.RunID, &o.Location, &o.CurrentPath, &diffPath, &o.Status, &stage, &errText, &o.Pages, &o.Dropped); err != nil {
			return nil, err
		}
		o.OccurredAt = parseTimestamp(occurredAt)
		o.DiffPath = diffPath.String
		o.Stage = stage.String
		o.Error = errText.String
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (d *DB) GetStats(ctx context.Context) ([]LocationStats, error) {
	query := `
		SELECT
			location,
			SUM(CASE WHEN status = 'changed' THEN 1 ELSE 0 END),
			SUM(CASE WHEN status = 'unchanged' THEN 1 ELSE 0 END),
			SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END),
			MAX(occurred_at)
		FROM
			diff_events
		GROUP BY
			location
		ORDER BY
			location;
	`
	rows, err := d.sql.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []LocationStats
	for rows.Next() {
		var s LocationStats
		var last string
		if err := rows.Scan(&s.Location, &s.Changed, &s.Unchanged, &s.Failed, &last); err != nil {
			return nil, err
		}
		s.LastSeen = parseTimestamp(last)
		stats = append(stats, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return stats, nil
}

// parseTimestamp reads both our own layout and SQLite CURRENT_TIMESTAMP
// values; RFC3339 is accepted for rows written by hand.
func parseTimestamp(s string) time.Time {
	if t, err := time.Parse(timeLayout, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Time{}
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
