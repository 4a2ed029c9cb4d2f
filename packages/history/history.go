// Package history persists run summaries and per-test outcomes to a local
// SQLite database so past runs can be listed and compared.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	// SQLite driver
	_ "github.com/mattn/go-sqlite3"

	"github.com/velocitest/velocitest/packages/result"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	started_at TEXT NOT NULL,
	wall_ms INTEGER NOT NULL,
	total INTEGER NOT NULL,
	passed INTEGER NOT NULL,
	failed INTEGER NOT NULL,
	skipped INTEGER NOT NULL,
	xfailed INTEGER NOT NULL,
	xpassed INTEGER NOT NULL,
	errors INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS run_tests (
	run_id TEXT NOT NULL REFERENCES runs(id),
	test_id TEXT NOT NULL,
	outcome TEXT NOT NULL,
	duration_ms REAL NOT NULL,
	detail TEXT,
	PRIMARY KEY (run_id, test_id)
);
`

// Run is one stored run summary.
type Run struct {
	ID        string
	StartedAt time.Time
	Wall      time.Duration
	Counts    result.Counts
}

// Store is a run history database.
type Store struct {
	db      *sql.DB
	timeout time.Duration
}

// Open opens (creating if needed) the history database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize history schema: %w", err)
	}

	return &Store{db: db, timeout: 30 * time.Second}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// RecordRun stores one finished run and its per-test results, returning the
// minted run ID.
func (s *Store) RecordRun(sum result.Summary, results []*result.TestResult) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	runID := uuid.NewString()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, wall_ms, total, passed, failed, skipped, xfailed, xpassed, errors)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, time.Now().Format(time.RFC3339), sum.Wall.Milliseconds(),
		sum.Counts.Total, sum.Counts.Passed, sum.Counts.Failed, sum.Counts.Skipped,
		sum.Counts.XFailed, sum.Counts.XPassed, sum.Counts.Errors)
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO run_tests (run_id, test_id, outcome, duration_ms, detail)
		 VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, res := range results {
		_, err := stmt.ExecContext(ctx, runID, res.TestID, res.Outcome.String(),
			float64(res.Duration.Microseconds())/1000.0, res.Detail)
		if err != nil {
			return "", fmt.Errorf("failed to insert result for %s: %w", res.TestID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit run: %w", err)
	}
	return runID, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(limit int) ([]Run, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, wall_ms, total, passed, failed, skipped, xfailed, xpassed, errors
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started string
		var wallMs int64
		if err := rows.Scan(&r.ID, &started, &wallMs, &r.Counts.Total, &r.Counts.Passed,
			&r.Counts.Failed, &r.Counts.Skipped, &r.Counts.XFailed, &r.Counts.XPassed,
			&r.Counts.Errors); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.StartedAt, _ = time.Parse(time.RFC3339, started)
		r.Wall = time.Duration(wallMs) * time.Millisecond
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return runs, nil
}

// FailuresFor returns the test IDs that failed or errored in a run.
func (s *Store) FailuresFor(runID string) ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT test_id FROM run_tests
		 WHERE run_id = ? AND outcome IN ('failed', 'error')
		 ORDER BY test_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query failures: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan test id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// LastRun returns the most recent run, or ok=false when the history is empty.
func (s *Store) LastRun() (Run, bool, error) {
	runs, err := s.ListRuns(1)
	if err != nil || len(runs) == 0 {
		return Run{}, false, err
	}
	return runs[0], true, nil
}
