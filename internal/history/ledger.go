// Package history records every file import in a local SQLite ledger so
// operators can see what was uploaded where, and what failed.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// Import statuses.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
)

// ErrNotFound is returned by Finish for an unknown entry id.
var ErrNotFound = errors.New("history: entry not found")

// Entry is one file import.
type Entry struct {
	ID         int64
	RunID      uuid.UUID
	TableID    string
	File       string
	Status     string
	Rows       int64
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time // zero while running
}

// Duration is how long the import ran, or zero while running.
func (e *Entry) Duration() time.Duration {
	if e.FinishedAt.IsZero() {
		return 0
	}

	return e.FinishedAt.Sub(e.StartedAt)
}

// Ledger is the SQLite-backed import history. One connection serializes
// writers.
type Ledger struct {
	db      *sql.DB
	path    string
	logger  *slog.Logger
	nowFunc func() time.Time
}

// Open opens (creating if needed) the ledger at path and migrates it.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Ledger, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("history: creating %s: %w", filepath.Dir(path), err)
	}

	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)",
		path,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("history: opening %s: %w", path, err)
	}

	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("import history opened", slog.String("path", path))

	return &Ledger{db: db, path: path, logger: logger, nowFunc: time.Now}, nil
}

// Path returns the database file.
func (l *Ledger) Path() string {
	return l.path
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Begin records the start of one file import and returns its entry id.
func (l *Ledger) Begin(ctx context.Context, runID uuid.UUID, tableID, file string) (int64, error) {
	res, err := l.db.ExecContext(ctx,
		`INSERT INTO imports (run_id, table_id, file, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		runID.String(), tableID, file, StatusRunning, l.nowFunc().UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("history: recording import start: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("history: reading entry id: %w", err)
	}

	return id, nil
}

// Finish closes entry id as succeeded with rows, or as failed when
// importErr is non-nil.
func (l *Ledger) Finish(ctx context.Context, id, rows int64, importErr error) error {
	status, msg := StatusSucceeded, ""
	if importErr != nil {
		status, msg = StatusFailed, importErr.Error()
	}

	res, err := l.db.ExecContext(ctx,
		`UPDATE imports SET status = ?, rows_received = ?, error = ?, finished_at = ? WHERE id = ?`,
		status, rows, msg, l.nowFunc().UnixNano(), id,
	)
	if err != nil {
		return fmt.Errorf("history: recording import result: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("history: recording import result: %w", err)
	}

	if n == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}

	return nil
}

// Skip records a file that was never attempted because an earlier file in
// the same run failed.
func (l *Ledger) Skip(ctx context.Context, runID uuid.UUID, tableID, file string) error {
	now := l.nowFunc().UnixNano()

	_, err := l.db.ExecContext(ctx,
		`INSERT INTO imports (run_id, table_id, file, status, started_at, finished_at) VALUES (?, ?, ?, ?, ?, ?)`,
		runID.String(), tableID, file, StatusSkipped, now, now,
	)
	if err != nil {
		return fmt.Errorf("history: recording skipped import: %w", err)
	}

	return nil
}

const selectEntries = `SELECT id, run_id, table_id, file, status, rows_received, error, started_at, finished_at FROM imports`

// Recent returns up to limit entries, newest first. limit <= 0 means all.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = -1
	}

	return l.query(ctx, selectEntries+` ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
}

// Run returns the entries of one run in file order.
func (l *Ledger) Run(ctx context.Context, runID uuid.UUID) ([]Entry, error) {
	return l.query(ctx, selectEntries+` WHERE run_id = ? ORDER BY id`, runID.String())
}

func (l *Ledger) query(ctx context.Context, q string, args ...any) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("history: querying imports: %w", err)
	}
	defer rows.Close()

	var out []Entry

	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}

		out = append(out, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterating imports: %w", err)
	}

	return out, nil
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var (
		e        Entry
		runID    string
		started  int64
		finished sql.NullInt64
	)

	if err := rows.Scan(&e.ID, &runID, &e.TableID, &e.File, &e.Status, &e.Rows, &e.Error, &started, &finished); err != nil {
		return Entry{}, fmt.Errorf("history: scanning import: %w", err)
	}

	id, err := uuid.Parse(runID)
	if err != nil {
		return Entry{}, fmt.Errorf("history: entry %d has invalid run id %q: %w", e.ID, runID, err)
	}

	e.RunID = id
	e.StartedAt = time.Unix(0, started)

	if finished.Valid {
		e.FinishedAt = time.Unix(0, finished.Int64)
	}

	return e, nil
}
