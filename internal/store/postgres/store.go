// Package postgres provides Postgres-backed persistence for jobs and runs.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jobscout/jobscout/internal/scout"
)

const uniqueViolationCode = "23505"

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type dbPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// NewPool builds a pgx pool from the config.
func NewPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
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
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pool, nil
}

// JobStore writes deduplicated jobs into Postgres. The jobs table carries a
// unique index on link; a violation is surfaced as scout.ErrDuplicateLink.
//
//	CREATE TABLE jobs (
//		id TEXT PRIMARY KEY,
//		run_id TEXT NOT NULL,
//		title TEXT NOT NULL,
//		company TEXT NOT NULL,
//		company_url TEXT,
//		link TEXT NOT NULL UNIQUE,
//		location TEXT,
//		description TEXT,
//		job_type TEXT,
//		salary_range TEXT,
//		source_id TEXT NOT NULL,
//		posted_at TIMESTAMPTZ,
//		saved_at TIMESTAMPTZ NOT NULL
//	);
type JobStore struct {
	pool dbPool
}

// NewJobStore constructs a JobStore over an existing pool.
func NewJobStore(pool dbPool) (*JobStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &JobStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *JobStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Exists reports whether the canonical link is already persisted.
func (s *JobStore) Exists(ctx context.Context, link string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM jobs WHERE link = $1)`, link,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check link exists: %w", err)
	}
	return exists, nil
}

// Insert persists the job. The unique index on link is the dedup
// authority; a conflicting concurrent insert loses with ErrDuplicateLink.
func (s *JobStore) Insert(ctx context.Context, job scout.PersistedJob) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO jobs (
	id, run_id, title, company, company_url, link,
	location, description, job_type, salary_range, source_id,
	posted_at, saved_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		job.ID,
		job.RunID,
		job.Title,
		job.Company,
		job.CompanyURL,
		job.Link,
		job.Location,
		job.Description,
		string(job.JobType),
		job.SalaryRange,
		job.SourceID,
		job.PostedAt,
		job.SavedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return scout.ErrDuplicateLink
		}
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// RunStore persists run lifecycle records.
//
//	CREATE TABLE runs (
//		id TEXT PRIMARY KEY,
//		status TEXT NOT NULL,
//		spec JSONB NOT NULL,
//		error_text TEXT,
//		counters JSONB NOT NULL,
//		submitted_at TIMESTAMPTZ NOT NULL,
//		started_at TIMESTAMPTZ,
//		finished_at TIMESTAMPTZ
//	);
type RunStore struct {
	pool dbPool
}

// NewRunStore constructs a RunStore over an existing pool.
func NewRunStore(pool dbPool) (*RunStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &RunStore{pool: pool}, nil
}

// Create inserts a new run record.
func (s *RunStore) Create(ctx context.Context, run scout.Run) error {
	specJSON, err := json.Marshal(run.Spec)
	if err != nil {
		return fmt.Errorf("marshal spec: %w", err)
	}
	countersJSON, err := json.Marshal(run.Counters)
	if err != nil {
		return fmt.Errorf("marshal counters: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO runs (id, status, spec, error_text, counters, submitted_at)
VALUES ($1,$2,$3,$4,$5,$6)`,
		run.ID,
		string(run.Status),
		specJSON,
		run.ErrorText,
		countersJSON,
		run.Submitted,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// Get fetches a full run record.
func (s *RunStore) Get(ctx context.Context, runID string) (scout.Run, error) {
	var (
		run          scout.Run
		status       string
		specJSON     []byte
		countersJSON []byte
	)
	err := s.pool.QueryRow(ctx, `
SELECT id, status, spec, COALESCE(error_text, ''), counters, submitted_at, started_at, finished_at
FROM runs WHERE id = $1`, runID,
	).Scan(&run.ID, &status, &specJSON, &run.ErrorText, &countersJSON, &run.Submitted, &run.Started, &run.Finished)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return scout.Run{}, scout.ErrRunNotFound
		}
		return scout.Run{}, fmt.Errorf("select run: %w", err)
	}
	run.Status = scout.RunStatus(status)
	if err := json.Unmarshal(specJSON, &run.Spec); err != nil {
		return scout.Run{}, fmt.Errorf("unmarshal spec: %w", err)
	}
	if err := json.Unmarshal(countersJSON, &run.Counters); err != nil {
		return scout.Run{}, fmt.Errorf("unmarshal counters: %w", err)
	}
	return run, nil
}

// GetStatus returns only the run's status. scout.ErrRunNotFound signals a
// vanished record, which the coordinator treats as cancellation.
func (s *RunStore) GetStatus(ctx context.Context, runID string) (scout.RunStatus, error) {
	var status string
	err := s.pool.QueryRow(ctx, `SELECT status FROM runs WHERE id = $1`, runID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", scout.ErrRunNotFound
		}
		return "", fmt.Errorf("select run status: %w", err)
	}
	return scout.RunStatus(status), nil
}

// Update writes status, error text and counters. Terminal states are
// sticky so an operator cancellation cannot be overwritten by a slower
// coordinator finalization; a repeated write of the same terminal status
// still lands its counters so the final statistics survive. Stored error
// text is kept when the repeated write carries none.
func (s *RunStore) Update(
	ctx context.Context,
	runID string,
	status scout.RunStatus,
	errText string,
	counters scout.RunCounters,
) error {
	countersJSON, err := json.Marshal(counters)
	if err != nil {
		return fmt.Errorf("marshal counters: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
UPDATE runs SET
	status = $2,
	error_text = CASE WHEN status = $2 AND $3 = '' THEN error_text ELSE $3 END,
	counters = $4,
	started_at = CASE WHEN $2 = 'running' AND started_at IS NULL THEN NOW() ELSE started_at END,
	finished_at = CASE WHEN $2 IN ('completed','failed','cancelled') AND finished_at IS NULL THEN NOW() ELSE finished_at END
WHERE id = $1 AND (status NOT IN ('completed','failed','cancelled') OR status = $2)`,
		runID,
		string(status),
		errText,
		countersJSON,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either already terminal (no-op) or the record is gone.
		var exists bool
		if scanErr := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM runs WHERE id = $1)`, runID,
		).Scan(&exists); scanErr != nil {
			return fmt.Errorf("verify run exists: %w", scanErr)
		}
		if !exists {
			return scout.ErrRunNotFound
		}
	}
	return nil
}
