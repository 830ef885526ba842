package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a durable Store backed by a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteStore opens (or creates) the database at path and applies the
// schema. Use ":memory:" for a throwaway database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}

	// A single connection serializes writers and keeps ":memory:" databases
	// alive across calls.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate journal database: %w", err)
	}

	return s, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		agent TEXT NOT NULL,
		final_agent TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		failed_branch TEXT NOT NULL DEFAULT '',
		entries INTEGER NOT NULL DEFAULT 0,
		started_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS entries (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL REFERENCES runs(id),
		seq INTEGER NOT NULL,
		branch TEXT NOT NULL DEFAULT '',
		kind TEXT NOT NULL,
		agent TEXT NOT NULL,
		detail TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		duration_ns INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		UNIQUE(run_id, seq)
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_entries_run ON entries(run_id);
	`

	_, err := s.db.Exec(schema)

	return err
}

// Append stores e and updates the run summary in one transaction.
func (s *SQLiteStore) Append(ctx context.Context, e Entry) error {
	if e.RunID == "" {
		return fmt.Errorf("entry %s has no run id", e.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	run, err := scanRun(tx.QueryRowContext(ctx, selectRun+` WHERE id = ?`, e.RunID))
	if err != nil && !errors.Is(err, ErrRunNotFound) {
		return err
	}

	run = apply(run, e)
	e.Seq = run.Entries

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (id, agent, final_agent, status, error, failed_branch, entries, started_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   final_agent = excluded.final_agent,
		   status = excluded.status,
		   error = excluded.error,
		   failed_branch = excluded.failed_branch,
		   entries = excluded.entries,
		   updated_at = excluded.updated_at`,
		run.ID, run.Agent, run.FinalAgent, string(run.Status), run.Error, run.FailedBranch, run.Entries,
		run.StartedAt.UnixNano(), run.UpdatedAt.UnixNano(),
	); err != nil {
		return fmt.Errorf("failed to upsert run %s: %w", run.ID, err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO entries (id, run_id, seq, branch, kind, agent, detail, status, error, duration_ns, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.RunID, e.Seq, e.Branch, string(e.Kind), e.Agent, e.Detail, string(e.Status), e.Error,
		int64(e.Duration), e.Time.UnixNano(),
	); err != nil {
		return fmt.Errorf("failed to insert entry %s: %w", e.ID, err)
	}

	return tx.Commit()
}

const selectRun = `SELECT id, agent, final_agent, status, error, failed_branch, entries, started_at, updated_at FROM runs`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		run                  Run
		status               string
		startedAt, updatedAt int64
	)

	err := row.Scan(&run.ID, &run.Agent, &run.FinalAgent, &status, &run.Error, &run.FailedBranch, &run.Entries, &startedAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	run.Status = Status(status)
	run.StartedAt = time.Unix(0, startedAt)
	run.UpdatedAt = time.Unix(0, updatedAt)

	return &run, nil
}

// Run returns the summary of runID.
func (s *SQLiteStore) Run(ctx context.Context, runID string) (*Run, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx, selectRun+` WHERE id = ?`, runID))
	if errors.Is(err, ErrRunNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	return run, err
}

// Entries returns the entries of runID in sequence order.
func (s *SQLiteStore) Entries(ctx context.Context, runID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, seq, branch, kind, agent, detail, status, error, duration_ns, created_at
		 FROM entries WHERE run_id = ? ORDER BY seq`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry

	for rows.Next() {
		var (
			e                 Entry
			kind, status      string
			duration, created int64
		)

		if err := rows.Scan(&e.ID, &e.RunID, &e.Seq, &e.Branch, &kind, &e.Agent, &e.Detail, &status, &e.Error, &duration, &created); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}

		e.Kind = Kind(kind)
		e.Status = Status(status)
		e.Duration = time.Duration(duration)
		e.Time = time.Unix(0, created)
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	return entries, nil
}

// Runs returns run summaries, newest first.
func (s *SQLiteStore) Runs(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = -1 // no limit in SQLite
	}

	rows, err := s.db.QueryContext(ctx, selectRun+` ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run

	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}

		runs = append(runs, run)
	}

	return runs, rows.Err()
}

var _ Store = (*SQLiteStore)(nil)
