/*
Package sqlite provides a SQLite-backed implementation of generic.Gateway.

PURPOSE:
  Persists the reconciled school records (grades, tahfidz grades, payments,
  attendance, permission requests) and the student roster read by payment
  generation. Also the store behind local development and the CLI.

INTERFACES IMPLEMENTED:
  generic.Gateway: insert / update / delete / upsertOnConflict / select

ATOMICITY:
  - Insert():           one BEGIN ... COMMIT around every row
  - Update(), Delete(): one statement
  - UpsertOnConflict(): one BEGIN ... COMMIT around every
                        INSERT ... ON CONFLICT DO UPDATE

KEY TABLES:
  students:            Roster (class, status)
  grades:              One row per student, subject and term
  tahfidz_grades:      One row per student, program and term
  payments:            One row per student, category and billing month
  attendance_records:  One row per student and day
  permission_requests: Leave requests with their approval status

INDEXES:
  Every reconciled table carries a UNIQUE index on its natural key. The
  upsert path depends on it; on the matched path it turns a racing
  duplicate insert into a BulkInsertError instead of a second row.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency.
  An in-memory database is pinned to one connection so every query sees
  the same schema.

USAGE:
  store, err := sqlite.New("./data/records.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  rec := generic.NewReconciler(store, marker, generic.SystemClock, logger)

SEE ALSO:
  - generic/store.go: Gateway contract
  - store/sqlstmt: Statement builder shared with the postgres store
  - generic/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/mattn/go-sqlite3"

	"github.com/warp/records-engine/generic"
	"github.com/warp/records-engine/store/sqlstmt"
)

// Store implements generic.Gateway using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ generic.Gateway = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// tables lists every table the gateway accepts.
var tables = map[string]bool{
	"students":            true,
	"grades":              true,
	"tahfidz_grades":      true,
	"payments":            true,
	"attendance_records":  true,
	"permission_requests": true,
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Roster
	CREATE TABLE IF NOT EXISTS students (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		class_id TEXT,
		status TEXT NOT NULL DEFAULT 'active',
		created_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_students_class
		ON students(class_id, status);

	-- Subject grades
	CREATE TABLE IF NOT EXISTS grades (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL,
		subject_id TEXT NOT NULL,
		semester TEXT NOT NULL,
		academic_year TEXT NOT NULL,
		score TEXT,
		notes TEXT,
		created_by TEXT,
		created_at TEXT,
		updated_at TEXT
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_grades_natural
		ON grades(student_id, subject_id, semester, academic_year);

	-- Tahfidz (memorization) grades
	CREATE TABLE IF NOT EXISTS tahfidz_grades (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL,
		program TEXT NOT NULL,
		semester TEXT NOT NULL,
		academic_year TEXT NOT NULL,
		score TEXT,
		juz INTEGER,
		surah TEXT,
		predicate TEXT,
		notes TEXT,
		created_by TEXT,
		created_at TEXT,
		updated_at TEXT
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_tahfidz_natural
		ON tahfidz_grades(student_id, program, semester, academic_year);

	-- Payments
	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL,
		category TEXT NOT NULL,
		month INTEGER NOT NULL,
		year INTEGER NOT NULL,
		amount TEXT NOT NULL,
		paid_amount TEXT,
		status TEXT NOT NULL DEFAULT 'unpaid',
		paid_at TEXT,
		notes TEXT,
		created_by TEXT,
		created_at TEXT,
		updated_at TEXT
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_payments_natural
		ON payments(student_id, category, month, year);
	CREATE INDEX IF NOT EXISTS idx_payments_status
		ON payments(status);

	-- Attendance: conflict key is exactly (student_id, date)
	CREATE TABLE IF NOT EXISTS attendance_records (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL,
		date TEXT NOT NULL,
		status TEXT NOT NULL,
		notes TEXT,
		created_by TEXT,
		created_at TEXT,
		updated_at TEXT,
		UNIQUE(student_id, date)
	);

	CREATE INDEX IF NOT EXISTS idx_attendance_date
		ON attendance_records(date);

	-- Leave permission requests (approval workflow)
	CREATE TABLE IF NOT EXISTS permission_requests (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		reason TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		approved_by TEXT,
		approved_at TEXT,
		rejection_reason TEXT,
		notes TEXT,
		created_by TEXT,
		created_at TEXT,
		updated_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_permissions_student
		ON permission_requests(student_id);
	CREATE INDEX IF NOT EXISTS idx_permissions_status
		ON permission_requests(status);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// GATEWAY (generic.Gateway interface)
// =============================================================================

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Insert adds all rows in one transaction.
func (s *Store) Insert(ctx context.Context, table string, rows []generic.Row) ([]generic.RecordID, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	staged := make([]generic.Row, len(rows))
	for i, r := range rows {
		staged[i] = sqlstmt.WithID(r)
	}
	cols := sqlstmt.Columns(staged)

	ids := make([]generic.RecordID, 0, len(staged))
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, r := range staged {
			st, err := sqlstmt.InsertRow(sqlstmt.SQLite, table, cols, r)
			if err != nil {
				return err
			}
			if err := exec(ctx, tx, st); err != nil {
				return fmt.Errorf("failed to insert into %s: %w", table, err)
			}
			ids = append(ids, r.ID())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Update patches every row matching key.
func (s *Store) Update(ctx context.Context, table string, patch generic.Row, key generic.Key) (int64, error) {
	if err := checkTable(table); err != nil {
		return 0, err
	}
	st, err := sqlstmt.Update(sqlstmt.SQLite, table, patch, key)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, st.SQL, st.Args...)
	if err != nil {
		return 0, fmt.Errorf("failed to update %s: %w", table, classify(err))
	}
	return res.RowsAffected()
}

// Delete removes every row matching key.
func (s *Store) Delete(ctx context.Context, table string, key generic.Key) (int64, error) {
	if err := checkTable(table); err != nil {
		return 0, err
	}
	st, err := sqlstmt.Delete(sqlstmt.SQLite, table, key)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, st.SQL, st.Args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete from %s: %w", table, err)
	}
	return res.RowsAffected()
}

// UpsertOnConflict writes all rows in one transaction; rows colliding on
// conflictKey replace the existing row's non-key columns.
func (s *Store) UpsertOnConflict(ctx context.Context, table string, rows []generic.Row, conflictKey []string) error {
	if err := checkTable(table); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	staged := make([]generic.Row, len(rows))
	for i, r := range rows {
		staged[i] = sqlstmt.WithID(r)
	}
	cols := sqlstmt.Columns(staged)

	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, r := range staged {
			st, err := sqlstmt.UpsertRow(sqlstmt.SQLite, table, cols, r, conflictKey)
			if err != nil {
				return err
			}
			if err := exec(ctx, tx, st); err != nil {
				return fmt.Errorf("failed to upsert into %s: %w", table, err)
			}
		}
		return nil
	})
}

// Select returns matching rows in insertion order.
func (s *Store) Select(ctx context.Context, table string, key generic.Key) ([]generic.Row, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	st, err := sqlstmt.Select(sqlstmt.SQLite, table, key)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, st.SQL, st.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	return scanRows(rows)
}

// Reset removes all data (for testing).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func exec(ctx context.Context, db execer, st sqlstmt.Statement) error {
	_, err := db.ExecContext(ctx, st.SQL, st.Args...)
	return classify(err)
}

func scanRows(rows *sql.Rows) ([]generic.Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []generic.Row
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(generic.Row, len(cols))
		for i, c := range cols {
			if b, ok := values[i].([]byte); ok {
				row[c] = string(b)
				continue
			}
			row[c] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func checkTable(table string) error {
	if !tables[table] {
		return fmt.Errorf("%w: %s", generic.ErrUnknownTable, table)
	}
	return nil
}

// classify maps unique and primary key violations onto generic.ErrConflict.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if isUniqueConstraintError(err) {
		return fmt.Errorf("%w: %v", generic.ErrConflict, err)
	}
	return err
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
