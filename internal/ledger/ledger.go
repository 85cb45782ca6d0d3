// Package ledger owns the sync state database: the settings store, the
// per-book last-synced digest map and the append-only run history. Every
// operation is a single statement; nothing here assumes cross-call atomicity.
// The single-flight run lock lives in the coordinator, not in storage.
package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/shelfmark/shelfsync/internal/db"
)

const schema = `
CREATE TABLE IF NOT EXISTS sync_settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS synced_books (
    book_id INTEGER PRIMARY KEY,
    file_digest TEXT NOT NULL,
    synced_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sync_runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    started_at TEXT NOT NULL,
    completed_at TEXT,
    mode TEXT NOT NULL,
    processed INTEGER NOT NULL DEFAULT 0,
    succeeded INTEGER NOT NULL DEFAULT 0,
    failed INTEGER NOT NULL DEFAULT 0,
    skipped INTEGER NOT NULL DEFAULT 0,
    message TEXT
);
`

// Run is one row of the run history. CompletedAt and Message stay NULL until
// the run is finished.
type Run struct {
	ID          int64   `db:"id" json:"id"`
	StartedAt   string  `db:"started_at" json:"started_at"`
	CompletedAt *string `db:"completed_at" json:"completed_at"`
	Mode        string  `db:"mode" json:"mode"`
	Processed   int     `db:"processed" json:"processed"`
	Succeeded   int     `db:"succeeded" json:"succeeded"`
	Failed      int     `db:"failed" json:"failed"`
	Skipped     int     `db:"skipped" json:"skipped"`
	Message     *string `db:"message" json:"message"`
}

// Store is the persisted sync state. Safe for concurrent use; all methods
// are individually transactional.
type Store struct {
	db       *sqlx.DB
	defaults Defaults
}

// Open creates or opens the state database at path. Use ":memory:" in tests.
func Open(path string) (*Store, error) {
	d, err := db.NewSqliteDB(db.WithPath(path))
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}

	if _, err := d.Exec(schema); err != nil {
		d.Close()
		return nil, fmt.Errorf("init state schema: %w", err)
	}

	return &Store{db: d}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func utcNow() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// SyncedDigest returns the last successfully uploaded digest for a book, or
// "" when the book was never synced.
func (s *Store) SyncedDigest(bookID int64) (string, error) {
	var digest string
	err := s.db.Get(&digest, `SELECT file_digest FROM synced_books WHERE book_id = ?`, bookID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query synced digest: %w", err)
	}
	return digest, nil
}

// UpsertSyncedDigest records a successful upload: digest and synced-at are
// set for the book, inserting or overwriting as needed. Entries are never
// deleted; stale rows for removed books simply never match again.
func (s *Store) UpsertSyncedDigest(bookID int64, digest string) error {
	_, err := s.db.Exec(`
		INSERT INTO synced_books (book_id, file_digest, synced_at)
		VALUES (?, ?, ?)
		ON CONFLICT(book_id) DO UPDATE SET
		    file_digest = excluded.file_digest,
		    synced_at = excluded.synced_at`,
		bookID, digest, utcNow())
	if err != nil {
		return fmt.Errorf("upsert synced digest: %w", err)
	}
	return nil
}

// StartRun appends a run record with only started-at and mode populated.
func (s *Store) StartRun(mode Mode) (int64, error) {
	res, err := s.db.Exec(`INSERT INTO sync_runs (started_at, mode) VALUES (?, ?)`, utcNow(), string(mode))
	if err != nil {
		return 0, fmt.Errorf("start run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("start run id: %w", err)
	}
	return id, nil
}

// FinishRun fills the completed fields of a run exactly once. An empty
// message is stored as NULL.
func (s *Store) FinishRun(runID int64, processed, succeeded, failed, skipped int, message string) error {
	msg := sql.NullString{String: message, Valid: message != ""}
	_, err := s.db.Exec(`
		UPDATE sync_runs
		SET completed_at = ?, processed = ?, succeeded = ?, failed = ?, skipped = ?, message = ?
		WHERE id = ?`,
		utcNow(), processed, succeeded, failed, skipped, msg, runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// LastRun returns the most recent run by id, or nil when no run exists.
func (s *Store) LastRun() (*Run, error) {
	var run Run
	err := s.db.Get(&run, `
		SELECT id, started_at, completed_at, mode, processed, succeeded, failed, skipped, message
		FROM sync_runs ORDER BY id DESC LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query last run: %w", err)
	}
	return &run, nil
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(limit int) ([]Run, error) {
	var runs []Run
	err := s.db.Select(&runs, `
		SELECT id, started_at, completed_at, mode, processed, succeeded, failed, skipped, message
		FROM sync_runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent runs: %w", err)
	}
	return runs, nil
}
