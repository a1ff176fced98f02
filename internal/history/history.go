package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tys-asm/asmctl/internal/core"
)

// Entry is one journaled operation
type Entry struct {
	OperationID string
	Kind        string
	Backend     string
	Target      string
	Privileged  bool
	SubmittedAt time.Time
	Status      string // empty while the operation is in flight
	ExitCode    int
	Detail      string
	FinishedAt  *time.Time
}

// Store journals every accepted operation and its terminal result, so
// all system-mutating actions leave an audit trail behind one entry
// point. The queue is the only writer.
type Store struct {
	write *sql.DB
	read  *sql.DB
}

// Open creates (or opens) the journal database
func Open(ctx context.Context, dbPath string) (*Store, error) {
	connStr := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", dbPath)

	// Write pool: MUST be 1 connection only
	write, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open write connection: %w", err)
	}
	write.SetMaxOpenConns(1)
	write.SetMaxIdleConns(1)
	write.SetConnMaxIdleTime(time.Minute)

	read, err := sql.Open("sqlite", connStr)
	if err != nil {
		write.Close()
		return nil, fmt.Errorf("open read connection: %w", err)
	}
	read.SetMaxOpenConns(4)
	read.SetMaxIdleConns(2)
	read.SetConnMaxIdleTime(time.Minute)

	s := &Store{write: write, read: read}
	if err := s.initSchema(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

// Close closes both connection pools
func (s *Store) Close() error {
	writeErr := s.write.Close()
	readErr := s.read.Close()
	if writeErr != nil {
		return writeErr
	}
	return readErr
}

func (s *Store) initSchema(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS operations (
    operation_id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    backend TEXT NOT NULL,
    target TEXT NOT NULL,
    privileged INTEGER NOT NULL,
    submitted_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    status TEXT,
    exit_code INTEGER,
    detail TEXT,
    finished_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_operations_submitted ON operations(submitted_at);
	`

	if _, err := s.write.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Record journals an accepted operation
func (s *Store) Record(ctx context.Context, id string, desc core.Descriptor) error {
	query := `
INSERT INTO operations (operation_id, kind, backend, target, privileged, submitted_at)
VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := s.write.ExecContext(ctx, query,
		id, string(desc.Kind), string(desc.Backend), desc.Target, desc.Privileged, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert operation: %w", err)
	}
	return nil
}

// Finish journals the terminal result of an operation
func (s *Store) Finish(ctx context.Context, res core.Result) error {
	query := `
UPDATE operations SET status = ?, exit_code = ?, detail = ?, finished_at = ?
WHERE operation_id = ?
	`
	_, err := s.write.ExecContext(ctx, query,
		string(res.Status), res.ExitCode, res.Detail, time.Now().UTC(), res.OperationID)
	if err != nil {
		return fmt.Errorf("update operation: %w", err)
	}
	return nil
}

// List returns the most recent entries, newest first
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
SELECT operation_id, kind, backend, target, privileged, submitted_at,
       COALESCE(status, ''), COALESCE(exit_code, 0), COALESCE(detail, ''), finished_at
FROM operations ORDER BY submitted_at DESC LIMIT ?
	`

	rows, err := s.read.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query operations: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.OperationID, &e.Kind, &e.Backend, &e.Target, &e.Privileged,
			&e.SubmittedAt, &e.Status, &e.ExitCode, &e.Detail, &e.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan operation: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
