package mysql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"time"
	"unicode/utf8"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"github.com/waterdesk/outbox"
)

const maxErrorLen = 1024

// Executor allows inserting within an existing transaction.
type Executor interface {
	// ExecContext executes a statement with the provided context.
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Store implements a MySQL-backed outbox.Store.
type Store struct {
	db      *sql.DB
	owned   bool
	cfg     Config
	queries queries
	table   string
}

var (
	_ outbox.Store           = (*Store)(nil)
	_ outbox.PendingCounter  = (*Store)(nil)
	_ outbox.FailureRecorder = (*Store)(nil)
)

// NewStore constructs a MySQL store on an existing pool. The caller owns db.
func NewStore(db *sql.DB, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, ErrDBRequired
	}

	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults()

	table, err := sanitizeTableName(cfg.Table)
	if err != nil {
		return nil, err
	}

	return &Store{
		db:      db,
		cfg:     cfg,
		queries: newQueries(table),
		table:   table,
	}, nil
}

// MustNewStore constructs a MySQL store or panics on error.
func MustNewStore(db *sql.DB, opts ...Option) *Store {
	store, err := NewStore(db, opts...)
	if err != nil {
		panic(err)
	}

	return store
}

// Open builds a pool from dsn without connecting; the first operation dials.
// parseTime is forced on and times are read in UTC. Close releases the pool.
func Open(dsn string, opts ...Option) (*Store, error) {
	if dsn == "" {
		return nil, ErrDSNRequired
	}

	dcfg, err := mysqldriver.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("outbox mysql: parse dsn: %w", err)
	}
	dcfg.ParseTime = true
	dcfg.Loc = time.UTC

	connector, err := mysqldriver.NewConnector(dcfg)
	if err != nil {
		return nil, fmt.Errorf("outbox mysql: connector: %w", err)
	}

	store, err := NewStore(sql.OpenDB(connector), opts...)
	if err != nil {
		return nil, err
	}
	store.owned = true

	return store, nil
}

// Close closes the pool when the Store opened it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}

	return s.db.Close()
}

// Migrate creates the entry and failures tables when they are missing.
func (s *Store) Migrate(ctx context.Context) error {
	stmts, err := SchemaStatements(s.table, s.cfg.Binary)
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return wrapError("outbox mysql: migrate failed", err)
		}
	}

	return nil
}

// Insert implements outbox.Store.
func (s *Store) Insert(ctx context.Context, entry outbox.Entry) (int64, error) {
	return s.InsertTx(ctx, s.db, entry)
}

// InsertTx inserts an entry using the provided executor, typically the caller's transaction.
func (s *Store) InsertTx(ctx context.Context, exec Executor, entry outbox.Entry) (int64, error) {
	if exec == nil {
		return 0, ErrExecutorRequired
	}

	key := entry.Key
	if key == "" {
		var err error
		key, err = s.cfg.KeyGenerator()
		if err != nil {
			return 0, fmt.Errorf("outbox mysql: generate key failed: %w", err)
		}
	}
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.cfg.Clock.Now()
	}

	res, err := exec.ExecContext(ctx, s.queries.insert, key, []byte(entry.Payload), createdAt.UTC())
	if err != nil {
		return 0, wrapError("outbox mysql: insert failed", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("outbox mysql: last insert id: %w", err)
	}

	return id, nil
}

// ListAll implements outbox.Store.
func (s *Store) ListAll(ctx context.Context) ([]outbox.Entry, error) {
	rows, err := s.db.QueryContext(ctx, s.queries.selectAll)
	if err != nil {
		return nil, wrapError("outbox mysql: select failed", err)
	}
	defer rows.Close()

	entries := make([]outbox.Entry, 0)
	for rows.Next() {
		var (
			entry   outbox.Entry
			payload []byte
		)
		if err := rows.Scan(&entry.ID, &entry.Key, &payload, &entry.CreatedAt, &entry.Attempts, &entry.LastError); err != nil {
			return nil, fmt.Errorf("outbox mysql: scan failed: %w", err)
		}
		entry.Payload = payload
		entry.CreatedAt = entry.CreatedAt.UTC()
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapError("outbox mysql: rows failed", err)
	}

	return entries, nil
}

// DeleteByID implements outbox.Store.
func (s *Store) DeleteByID(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, s.queries.deleteOne, id); err != nil {
		return wrapError("outbox mysql: delete failed", err)
	}

	return nil
}

// Clear implements outbox.Store. It uses DELETE rather than TRUNCATE so the
// AUTO_INCREMENT counter keeps advancing.
func (s *Store) Clear(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapError("outbox mysql: begin tx failed", err)
	}

	for _, stmt := range []string{s.queries.clearFailures, s.queries.clearEntries} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			rollbackErr := tx.Rollback()

			return errors.Join(wrapError("outbox mysql: clear failed", err), rollbackErr)
		}
	}
	if err := tx.Commit(); err != nil {
		return wrapError("outbox mysql: commit failed", err)
	}

	return nil
}

// PendingCount returns the number of queued rows.
func (s *Store) PendingCount(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, s.queries.countPending).Scan(&count); err != nil {
		return 0, wrapError("outbox mysql: pending count failed", err)
	}

	return count, nil
}

// RecordFailure implements outbox.FailureRecorder. Unknown ids are ignored.
func (s *Store) RecordFailure(ctx context.Context, id int64, failure error) error {
	if _, err := s.db.ExecContext(ctx, s.queries.recordFailure, truncateError(failure), id); err != nil {
		return wrapError("outbox mysql: record failure failed", err)
	}

	return nil
}

// wrapError marks connection-level failures as outbox.ErrStorageUnavailable.
func wrapError(op string, err error) error {
	if isUnavailable(err) {
		return outbox.StorageError(op, err)
	}

	return fmt.Errorf("%s: %w", op, err)
}

func isUnavailable(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysqldriver.ErrInvalidConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}

	var netErr net.Error

	return errors.As(err, &netErr)
}

func randomKey() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}

	return id.String(), nil
}

func truncateError(err error) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	if utf8.RuneCountInString(msg) <= maxErrorLen {
		return msg
	}

	return string([]rune(msg)[:maxErrorLen])
}
