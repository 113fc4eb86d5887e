package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/waterdesk/outbox"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - outbox + outbox_failures
const currentSchemaVersion = 1

const timeLayout = time.RFC3339Nano

// Store is a SQLite-backed outbox.Store.
type Store struct {
	path string
	cfg  Config

	mu     sync.Mutex
	db     *sql.DB
	closed bool
}

var (
	_ outbox.Store           = (*Store)(nil)
	_ outbox.PendingCounter  = (*Store)(nil)
	_ outbox.FailureRecorder = (*Store)(nil)
)

// New returns a Store for the database at path. Nothing is opened until first use.
func New(path string, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, ErrPathRequired
	}

	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Store{path: path, cfg: cfg.withDefaults()}, nil
}

// Open returns a Store and opens the database immediately.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	s, err := New(path, opts...)
	if err != nil {
		return nil, err
	}
	if _, err := s.open(ctx); err != nil {
		return nil, err
	}

	return s, nil
}

// Close releases the database handle. A closed Store cannot be reopened.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil

	return err
}

// open returns the cached handle, creating the database and schema on first use.
// A failed open is not cached, so a later call retries.
func (s *Store) open(ctx context.Context) (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	if s.db != nil {
		return s.db, nil
	}

	db, err := sql.Open("sqlite3", s.path)
	if err != nil {
		return nil, outbox.StorageError("outbox sqlite: open", err)
	}

	// One connection: SQLite has a single writer and the pragmas are per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()

		return nil, outbox.StorageError("outbox sqlite: connect", err)
	}
	if err := applyPragmas(ctx, db, s.cfg.BusyTimeout); err != nil {
		db.Close()

		return nil, outbox.StorageError("outbox sqlite: pragmas", err)
	}
	if err := applySchema(ctx, db); err != nil {
		db.Close()

		return nil, outbox.StorageError("outbox sqlite: schema", err)
	}

	s.db = db

	return db, nil
}

func applyPragmas(ctx context.Context, db *sql.DB, busyTimeout time.Duration) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeout.Milliseconds()),
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

func applySchema(ctx context.Context, db *sql.DB) error {
	var version int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version >= currentSchemaVersion {
		return nil
	}

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// Insert implements outbox.Store.
func (s *Store) Insert(ctx context.Context, entry outbox.Entry) (int64, error) {
	db, err := s.open(ctx)
	if err != nil {
		return 0, err
	}

	key := entry.Key
	if key == "" {
		key = uuid.NewString()
	}
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.cfg.Clock.Now()
	}

	res, err := db.ExecContext(ctx,
		`INSERT INTO outbox (idem_key, payload, created_at) VALUES (?, ?, ?)`,
		key,
		[]byte(entry.Payload),
		createdAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("outbox sqlite: insert failed: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("outbox sqlite: last insert id: %w", err)
	}

	return id, nil
}

// ListAll implements outbox.Store.
func (s *Store) ListAll(ctx context.Context) ([]outbox.Entry, error) {
	db, err := s.open(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT o.id, o.idem_key, o.payload, o.created_at,
			COALESCE(f.attempts, 0), COALESCE(f.last_error, '')
		FROM outbox o
		LEFT JOIN outbox_failures f ON f.entry_id = o.id
		ORDER BY o.id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("outbox sqlite: select failed: %w", err)
	}
	defer rows.Close()

	entries := make([]outbox.Entry, 0)
	for rows.Next() {
		var (
			entry     outbox.Entry
			payload   []byte
			createdAt string
		)
		if err := rows.Scan(&entry.ID, &entry.Key, &payload, &createdAt, &entry.Attempts, &entry.LastError); err != nil {
			return nil, fmt.Errorf("outbox sqlite: scan failed: %w", err)
		}
		entry.Payload = payload
		entry.CreatedAt, err = time.Parse(timeLayout, createdAt)
		if err != nil {
			return nil, fmt.Errorf("outbox sqlite: entry %d has bad created_at %q: %w", entry.ID, createdAt, err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("outbox sqlite: rows failed: %w", err)
	}

	return entries, nil
}

// DeleteByID implements outbox.Store.
func (s *Store) DeleteByID(ctx context.Context, id int64) error {
	db, err := s.open(ctx)
	if err != nil {
		return err
	}

	if _, err := db.ExecContext(ctx, `DELETE FROM outbox WHERE id = ?`, id); err != nil {
		return fmt.Errorf("outbox sqlite: delete failed: %w", err)
	}

	return nil
}

// Clear implements outbox.Store.
func (s *Store) Clear(ctx context.Context) error {
	db, err := s.open(ctx)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("outbox sqlite: begin tx failed: %w", err)
	}
	for _, stmt := range []string{`DELETE FROM outbox_failures`, `DELETE FROM outbox`} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()

			return fmt.Errorf("outbox sqlite: clear failed: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("outbox sqlite: commit failed: %w", err)
	}

	return nil
}

// PendingCount implements outbox.PendingCounter.
func (s *Store) PendingCount(ctx context.Context) (int, error) {
	db, err := s.open(ctx)
	if err != nil {
		return 0, err
	}

	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox`).Scan(&count); err != nil {
		return 0, fmt.Errorf("outbox sqlite: pending count failed: %w", err)
	}

	return count, nil
}

// RecordFailure implements outbox.FailureRecorder. Unknown ids are ignored.
func (s *Store) RecordFailure(ctx context.Context, id int64, failure error) error {
	db, err := s.open(ctx)
	if err != nil {
		return err
	}

	msg := ""
	if failure != nil {
		msg = failure.Error()
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO outbox_failures (entry_id, attempts, last_error, updated_at)
		SELECT ?, 1, ?, ? WHERE EXISTS (SELECT 1 FROM outbox WHERE id = ?)
		ON CONFLICT(entry_id) DO UPDATE SET
			attempts = attempts + 1,
			last_error = excluded.last_error,
			updated_at = excluded.updated_at
	`, id, msg, s.cfg.Clock.Now().UTC().Format(timeLayout), id)
	if err != nil {
		return fmt.Errorf("outbox sqlite: record failure: %w", err)
	}

	return nil
}
