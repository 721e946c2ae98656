/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  One Store value implements every persistence interface of the leave
  service, so cmd/server wires a single database into all components.

INTERFACES IMPLEMENTED:
  ledger.Store            ledger.go      append-only transactions
  leave.Directory         employees.go   employees and balance caches
  leave.AttendanceSource  attendance.go  present days per payroll cycle
  leave.RunRecorder       runs.go        batch run history
  leave.CompOffStore      ccl.go         expiry sweep over CCL grants
  ccl.GrantStore          ccl.go         CCL workflow grants
  ccl.Calendar            attendance.go  holidays, punches, on-duty
  settings.Repository     settings.go    cascade layers
  factory.LayerWriter     settings.go    settings seeding

APPEND-ONLY ENFORCEMENT:
  - No UPDATE statements on ledger_transactions
  - No DELETE statements on ledger_transactions
  - Corrections are ADJUSTMENT entries
  - idempotency_key is UNIQUE; a second insert with the same key fails with
    ledger.ErrDuplicateIdempotencyKey

CONCURRENCY:
  Writes take the Store's mutex and run inside a SQL transaction. Balance
  cache increments read and write the row in the same transaction, so an
  accrual and a CCL approval never lose each other's update.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:

	store, err := sqlite.New("./data/leave.db")
	if err != nil {
	    log.Fatal(err)
	}
	defer store.Close()

	l := ledger.New(store)

MIGRATION:
  Schema is auto-migrated on New(). CREATE statements are idempotent.

SEE ALSO:
  - ledger/store.go:        Store interface
  - ledger/store/memory.go: in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db  *sql.DB
	mu  sync.RWMutex
	now func() time.Time
}

// New opens the database at dbPath and migrates it.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Each connection to :memory: is a separate empty database.
		db.SetMaxOpenConns(1)
	}

	store := Open(db)
	if err := store.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Open wraps an existing connection without migrating it.
func Open(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate creates the schema.
func (s *Store) Migrate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// =============================================================================
// HELPERS
// =============================================================================

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// inTx runs fn inside a SQL transaction under the write lock.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(sqlTx); err != nil {
		return err
	}
	return sqlTx.Commit()
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func isUniqueConstraintError(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
