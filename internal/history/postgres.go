// Package history persists finished load-run summaries to Postgres so
// runs can be compared over time. It is optional: nothing opens a
// connection unless history.dsn is configured.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq" // PostgreSQL driver
)

// ErrNotFound is returned when a run id has no row.
var ErrNotFound = errors.New("run not found")

// Run is one finished load run.
type Run struct {
	ID            string    `json:"id"`
	Profile       string    `json:"profile"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	Users         int       `json:"users"`
	TotalRequests int64     `json:"total_requests"`
	TotalFailures int64     `json:"total_failures"`
	FailureRate   float64   `json:"failure_rate"`
	P95ResponseMS float64   `json:"p95_response_ms"`
	TotalRPS      float64   `json:"total_rps"`
	Notes         string    `json:"notes"`
}

// Store wraps the load_runs table.
type Store struct {
	db *sql.DB
}

// Open connects to Postgres and ensures the schema exists.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := NewStore(db)
	if err := s.CreateTables(ctx); err != nil {
		db.Close() //nolint:errcheck
		return nil, err
	}
	return s, nil
}

// NewStore wraps an existing connection. Used by tests.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateTables creates the load_runs table. Idempotent.
func (s *Store) CreateTables(ctx context.Context) error {
	query := `CREATE TABLE IF NOT EXISTS load_runs (
		id UUID PRIMARY KEY,
		profile VARCHAR(32) NOT NULL,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP NOT NULL,
		users INTEGER NOT NULL,
		total_requests BIGINT NOT NULL,
		total_failures BIGINT NOT NULL,
		failure_rate DOUBLE PRECISION NOT NULL,
		p95_response_ms DOUBLE PRECISION NOT NULL,
		total_rps DOUBLE PRECISION NOT NULL,
		notes TEXT NOT NULL DEFAULT ''
	)`

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	return nil
}

// SaveRun inserts one finished run. A missing ID gets a fresh UUID,
// written back into run.
func (s *Store) SaveRun(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}

	query := `INSERT INTO load_runs
		(id, profile, started_at, finished_at, users, total_requests,
		 total_failures, failure_rate, p95_response_ms, total_rps, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := s.db.ExecContext(ctx, query,
		run.ID, run.Profile, run.StartedAt, run.FinishedAt, run.Users,
		run.TotalRequests, run.TotalFailures, run.FailureRate,
		run.P95ResponseMS, run.TotalRPS, run.Notes)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

const runColumns = `id, profile, started_at, finished_at, users, total_requests,
	total_failures, failure_rate, p95_response_ms, total_rps, notes`

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM load_runs ORDER BY started_at DESC LIMIT $1`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var runs []Run
	for rows.Next() {
		var r Run
		if err := scanRun(rows.Scan, &r); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// GetRun fetches one run by id.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	query := `SELECT ` + runColumns + ` FROM load_runs WHERE id = $1`

	var r Run
	err := scanRun(s.db.QueryRowContext(ctx, query, id).Scan, &r)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}
	return &r, nil
}

func scanRun(scan func(...any) error, r *Run) error {
	return scan(
		&r.ID, &r.Profile, &r.StartedAt, &r.FinishedAt, &r.Users,
		&r.TotalRequests, &r.TotalFailures, &r.FailureRate,
		&r.P95ResponseMS, &r.TotalRPS, &r.Notes,
	)
}
