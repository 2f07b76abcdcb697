package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// Pragmas are per connection; one connection keeps them applied and
	// serializes writers.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS decisions (
	id          TEXT PRIMARY KEY,
	event_id    TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL,
	final_score REAL,
	details     TEXT NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	duration_ms INTEGER NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_decisions_status ON decisions(status);
CREATE INDEX IF NOT EXISTS idx_decisions_event_id ON decisions(event_id);
CREATE INDEX IF NOT EXISTS idx_decisions_created_at ON decisions(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) RecordDecision(ctx context.Context, d *Decision) error {
	if err := prepare(d); err != nil {
		return err
	}
	detailsJSON, err := json.Marshal(detailsOf(d))
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal details")
	}

	var score sql.NullFloat64
	if d.FinalScore != nil {
		score = sql.NullFloat64{Float64: *d.FinalScore, Valid: true}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO decisions (id, event_id, status, final_score, details, error, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.EventID, string(d.Status), score, string(detailsJSON), d.Error, d.DurationMS, d.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert decision %s", d.ID)
}

const sqliteSelect = `SELECT id, event_id, status, final_score, details, error, duration_ms, created_at FROM decisions`

func (s *SQLiteStore) GetDecision(ctx context.Context, id string) (*Decision, error) {
	row := s.db.QueryRowContext(ctx, sqliteSelect+` WHERE id = ?`, id)
	d, err := scanDecision(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get decision %s", id)
	}
	return d, err
}

func (s *SQLiteStore) ListDecisions(ctx context.Context, filter DecisionFilter) ([]Decision, error) {
	query := sqliteSelect + ` WHERE 1=1`
	args := []any{}

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.EventID != "" {
		query += ` AND event_id = ?`
		args = append(args, filter.EventID)
	}
	if !filter.CreatedAfter.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, filter.CreatedAfter.UTC())
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, listLimit(filter.Limit))
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list decisions")
	}
	defer rows.Close() //nolint:errcheck

	var out []Decision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list decisions iterate")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanDecision(row scannable) (*Decision, error) {
	var d Decision
	var status, detailsJSON string
	var score sql.NullFloat64

	err := row.Scan(&d.ID, &d.EventID, &status, &score, &detailsJSON, &d.Error, &d.DurationMS, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan decision")
	}

	d.Status = DecisionStatus(status)
	if score.Valid {
		v := score.Float64
		d.FinalScore = &v
	}
	var dt details
	if err := json.Unmarshal([]byte(detailsJSON), &dt); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal details")
	}
	dt.apply(&d)
	return &d, nil
}
