package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
)

// Pool is the subset of pgxpool.Pool used by PostgresStore.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const (
	insertDecisionSQL = `INSERT INTO decisions (id, event_id, status, final_score, details, error, duration_ms, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	selectDecisionSQL = `SELECT id, event_id, status, final_score, details, error, duration_ms, created_at FROM decisions`
)

// preparedStatements lists queries to prepare on each new connection.
var preparedStatements = map[string]string{
	"insert_decision": insertDecisionSQL,
	"get_decision":    selectDecisionSQL + ` WHERE id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS decisions (
	id          TEXT PRIMARY KEY,
	event_id    TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL,
	final_score DOUBLE PRECISION,
	details     JSONB NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	duration_ms BIGINT NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_decisions_status ON decisions(status);
CREATE INDEX IF NOT EXISTS idx_decisions_event_id ON decisions(event_id);
CREATE INDEX IF NOT EXISTS idx_decisions_created_at ON decisions(created_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) RecordDecision(ctx context.Context, d *Decision) error {
	if err := prepare(d); err != nil {
		return err
	}
	detailsJSON, err := json.Marshal(detailsOf(d))
	if err != nil {
		return eris.Wrap(err, "postgres: marshal details")
	}

	_, err = s.pool.Exec(ctx, insertDecisionSQL,
		d.ID, d.EventID, string(d.Status), d.FinalScore, detailsJSON, d.Error, d.DurationMS, d.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert decision %s", d.ID)
}

func (s *PostgresStore) GetDecision(ctx context.Context, id string) (*Decision, error) {
	d, err := scanPgDecision(s.pool.QueryRow(ctx, selectDecisionSQL+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get decision %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get decision %s", id)
	}
	return d, nil
}

func (s *PostgresStore) ListDecisions(ctx context.Context, filter DecisionFilter) ([]Decision, error) {
	query := selectDecisionSQL + ` WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.EventID != "" {
		query += fmt.Sprintf(` AND event_id = $%d`, argIdx)
		args = append(args, filter.EventID)
		argIdx++
	}
	if !filter.CreatedAfter.IsZero() {
		query += fmt.Sprintf(` AND created_at >= $%d`, argIdx)
		args = append(args, filter.CreatedAfter)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter.Limit))
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list decisions")
	}
	defer rows.Close()

	var out []Decision
	for rows.Next() {
		d, err := scanPgDecision(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan decision")
		}
		out = append(out, *d)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list decisions iterate")
}

func scanPgDecision(row pgx.Row) (*Decision, error) {
	var d Decision
	var status string
	var detailsJSON []byte

	if err := row.Scan(&d.ID, &d.EventID, &status, &d.FinalScore, &detailsJSON, &d.Error, &d.DurationMS, &d.CreatedAt); err != nil {
		return nil, err
	}
	d.Status = DecisionStatus(status)

	var dt details
	if err := json.Unmarshal(detailsJSON, &dt); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal details")
	}
	dt.apply(&d)
	return &d, nil
}
