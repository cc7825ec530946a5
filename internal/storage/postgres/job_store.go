// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/sitesnap/internal/job"
)

const defaultTable = "snapshot_jobs"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for job rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Begin(context.Context) (pgx.Tx, error)
	Ping(context.Context) error
	Close()
}

// JobStore keeps one JSONB row per job.
type JobStore struct {
	pool  pool
	table string
	now   func() time.Time
}

// NewJobStore connects to Postgres using cfg.
func NewJobStore(ctx context.Context, cfg Config) (*JobStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewJobStoreWithPool(p, cfg.Table)
	if err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewJobStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewJobStoreWithPool(p pool, table string) (*JobStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &JobStore{pool: p, table: table, now: time.Now}, nil
}

// Close releases the underlying pool resources.
func (s *JobStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks the database is reachable.
func (s *JobStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// EnsureSchema creates the jobs table when missing.
func (s *JobStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	job_id text PRIMARY KEY,
	record jsonb NOT NULL,
	updated_at timestamptz NOT NULL DEFAULT now()
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create jobs table: %w", err)
	}
	return nil
}

// Create inserts a new record.
func (s *JobStore) Create(ctx context.Context, rec job.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	query := fmt.Sprintf(`INSERT INTO %s (job_id, record, updated_at) VALUES ($1, $2, $3) ON CONFLICT (job_id) DO NOTHING`, s.table)
	tag, err := s.pool.Exec(ctx, query, rec.ID, data, s.now().UTC())
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("create %s: %w", rec.ID, job.ErrExists)
	}
	return nil
}

// Get loads a record.
func (s *JobStore) Get(ctx context.Context, id string) (job.Record, error) {
	query := fmt.Sprintf(`SELECT record FROM %s WHERE job_id = $1`, s.table)
	return scanRecord(s.pool.QueryRow(ctx, query, id), id)
}

// Update locks the row, applies fn and writes the result in one transaction.
func (s *JobStore) Update(ctx context.Context, id string, fn job.UpdateFunc) (job.Record, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return job.Record{}, fmt.Errorf("begin update: %w", err)
	}

	query := fmt.Sprintf(`SELECT record FROM %s WHERE job_id = $1 FOR UPDATE`, s.table)
	rec, err := scanRecord(tx.QueryRow(ctx, query, id), id)
	if err != nil {
		return job.Record{}, rollback(ctx, tx, err)
	}
	before := rec.Clone()
	if err := fn(&rec); err != nil {
		return before, rollback(ctx, tx, err)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return job.Record{}, rollback(ctx, tx, fmt.Errorf("marshal job: %w", err))
	}
	update := fmt.Sprintf(`UPDATE %s SET record = $2, updated_at = $3 WHERE job_id = $1`, s.table)
	if _, err := tx.Exec(ctx, update, id, data, s.now().UTC()); err != nil {
		return job.Record{}, rollback(ctx, tx, fmt.Errorf("update job: %w", err))
	}
	if err := tx.Commit(ctx); err != nil {
		return job.Record{}, fmt.Errorf("commit update: %w", err)
	}
	return rec, nil
}

func scanRecord(row pgx.Row, id string) (job.Record, error) {
	var data []byte
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return job.Record{}, fmt.Errorf("get %s: %w", id, job.ErrNotFound)
		}
		return job.Record{}, fmt.Errorf("select job: %w", err)
	}
	var rec job.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return job.Record{}, fmt.Errorf("decode job: %w", err)
	}
	return rec, nil
}

func rollback(ctx context.Context, tx pgx.Tx, cause error) error {
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return errors.Join(cause, fmt.Errorf("rollback: %w", err))
	}
	return cause
}
