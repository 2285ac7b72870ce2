/*
Package postgres provides a PostgreSQL-backed implementation of generic.Gateway.

PURPOSE:
  The hosted relational store. Same contract and schema as the SQLite
  store, with the dialect differences handled by store/sqlstmt.

ATOMICITY:
  - Insert():           one pgx.Batch of single-row INSERTs inside BEGIN/COMMIT
  - Update(), Delete(): one statement
  - UpsertOnConflict(): one pgx.Batch of INSERT ... ON CONFLICT inside BEGIN/COMMIT

CONCURRENCY:
  pgxpool.Pool is safe for concurrent use; no process-level lock is held.
  The permission workflow relies on the guarded UPDATE ... WHERE status =
  'pending' for correctness, which PostgreSQL serialises per row.

SEE ALSO:
  - store/sqlite/sqlite.go: Same gateway on SQLite
  - store/sqlstmt: Statement builder
*/
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/warp/records-engine/generic"
	"github.com/warp/records-engine/store/sqlstmt"
)

// Store implements generic.Gateway over a pgx connection pool.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ generic.Gateway = (*Store)(nil)

// New opens a pool, verifies connectivity and creates the schema.
func New(ctx context.Context, connStr string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	config, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	s := &Store{pool: pool, logger: logger}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	logger.Info("database connection pool established",
		"max_conns", config.MaxConns,
		"min_conns", config.MinConns,
	)
	return s, nil
}

// Close shuts down the connection pool.
func (s *Store) Close() {
	s.pool.Close()
	s.logger.Info("database connection pool closed")
}

// HealthCheck verifies database connectivity.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Reset removes all data (for demos and tests).
func (s *Store) Reset(ctx context.Context) error {
	names := make([]string, 0, len(tables))
	for t := range tables {
		names = append(names, t)
	}
	sort.Strings(names)
	_, err := s.pool.Exec(ctx, "TRUNCATE "+strings.Join(names, ", "))
	return err
}

var tables = map[string]bool{
	"students":            true,
	"grades":              true,
	"tahfidz_grades":      true,
	"payments":            true,
	"attendance_records":  true,
	"permission_requests": true,
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS students (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		class_id TEXT,
		status TEXT NOT NULL DEFAULT 'active',
		created_at TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_students_class ON students(class_id, status)`,

	`CREATE TABLE IF NOT EXISTS grades (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL,
		subject_id TEXT NOT NULL,
		semester TEXT NOT NULL,
		academic_year TEXT NOT NULL,
		score NUMERIC(5,2),
		notes TEXT,
		created_by TEXT,
		created_at TEXT,
		updated_at TEXT
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_grades_natural
		ON grades(student_id, subject_id, semester, academic_year)`,

	`CREATE TABLE IF NOT EXISTS tahfidz_grades (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL,
		program TEXT NOT NULL,
		semester TEXT NOT NULL,
		academic_year TEXT NOT NULL,
		score NUMERIC(5,2),
		juz INTEGER,
		surah TEXT,
		predicate TEXT,
		notes TEXT,
		created_by TEXT,
		created_at TEXT,
		updated_at TEXT
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_tahfidz_natural
		ON tahfidz_grades(student_id, program, semester, academic_year)`,

	`CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL,
		category TEXT NOT NULL,
		month INTEGER NOT NULL,
		year INTEGER NOT NULL,
		amount NUMERIC(14,2) NOT NULL,
		paid_amount NUMERIC(14,2),
		status TEXT NOT NULL DEFAULT 'unpaid',
		paid_at TEXT,
		notes TEXT,
		created_by TEXT,
		created_at TEXT,
		updated_at TEXT
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_payments_natural
		ON payments(student_id, category, month, year)`,
	`CREATE INDEX IF NOT EXISTS idx_payments_status ON payments(status)`,

	`CREATE TABLE IF NOT EXISTS attendance_records (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL,
		date TEXT NOT NULL,
		status TEXT NOT NULL,
		notes TEXT,
		created_by TEXT,
		created_at TEXT,
		updated_at TEXT,
		UNIQUE(student_id, date)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_attendance_date ON attendance_records(date)`,

	`CREATE TABLE IF NOT EXISTS permission_requests (
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
	)`,
	`CREATE INDEX IF NOT EXISTS idx_permissions_student ON permission_requests(student_id)`,
	`CREATE INDEX IF NOT EXISTS idx_permissions_status ON permission_requests(status)`,
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// GATEWAY (generic.Gateway interface)
// =============================================================================

// Insert queues every row in one batch inside a transaction.
func (s *Store) Insert(ctx context.Context, table string, rows []generic.Row) ([]generic.RecordID, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	staged := make([]generic.Row, len(rows))
	for i, r := range rows {
		staged[i] = sqlstmt.WithID(r)
	}
	cols := sqlstmt.Columns(staged)

	batch := &pgx.Batch{}
	ids := make([]generic.RecordID, 0, len(staged))
	for _, r := range staged {
		st, err := sqlstmt.InsertRow(sqlstmt.Postgres, table, cols, r)
		if err != nil {
			return nil, err
		}
		batch.Queue(st.SQL, st.Args...)
		ids = append(ids, r.ID())
	}

	if err := s.sendBatch(ctx, batch); err != nil {
		return nil, fmt.Errorf("inserting into %s: %w", table, err)
	}
	s.logger.Debug("batch insert complete", "table", table, "rows", len(ids))
	return ids, nil
}

// Update patches every row matching key.
func (s *Store) Update(ctx context.Context, table string, patch generic.Row, key generic.Key) (int64, error) {
	if err := checkTable(table); err != nil {
		return 0, err
	}
	st, err := sqlstmt.Update(sqlstmt.Postgres, table, patch, key)
	if err != nil {
		return 0, err
	}
	tag, err := s.pool.Exec(ctx, st.SQL, st.Args...)
	if err != nil {
		return 0, fmt.Errorf("updating %s: %w", table, classify(err))
	}
	return tag.RowsAffected(), nil
}

// Delete removes every row matching key.
func (s *Store) Delete(ctx context.Context, table string, key generic.Key) (int64, error) {
	if err := checkTable(table); err != nil {
		return 0, err
	}
	st, err := sqlstmt.Delete(sqlstmt.Postgres, table, key)
	if err != nil {
		return 0, err
	}
	tag, err := s.pool.Exec(ctx, st.SQL, st.Args...)
	if err != nil {
		return 0, fmt.Errorf("deleting from %s: %w", table, err)
	}
	return tag.RowsAffected(), nil
}

// UpsertOnConflict queues one INSERT ... ON CONFLICT per row in a single
// transaction.
func (s *Store) UpsertOnConflict(ctx context.Context, table string, rows []generic.Row, conflictKey []string) error {
	if err := checkTable(table); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	staged := make([]generic.Row, len(rows))
	for i, r := range rows {
		staged[i] = sqlstmt.WithID(r)
	}
	cols := sqlstmt.Columns(staged)

	batch := &pgx.Batch{}
	for _, r := range staged {
		st, err := sqlstmt.UpsertRow(sqlstmt.Postgres, table, cols, r, conflictKey)
		if err != nil {
			return err
		}
		batch.Queue(st.SQL, st.Args...)
	}

	if err := s.sendBatch(ctx, batch); err != nil {
		return fmt.Errorf("upserting into %s: %w", table, err)
	}
	return nil
}

// Select returns matching rows ordered by id.
func (s *Store) Select(ctx context.Context, table string, key generic.Key) ([]generic.Row, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	st, err := sqlstmt.Select(sqlstmt.Postgres, table, key)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, st.SQL, st.Args...)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", table, err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var out []generic.Row
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", table, err)
		}
		row := make(generic.Row, len(fields))
		for i, fd := range fields {
			row[fd.Name] = normalize(values[i])
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Store) sendBatch(ctx context.Context, batch *pgx.Batch) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	results := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("row %d: %w", i+1, classify(err))
		}
	}
	if err := results.Close(); err != nil {
		return classify(err)
	}
	return tx.Commit(ctx)
}

// normalize maps pgx's decoded values onto the types the core compares.
func normalize(v any) any {
	switch x := v.(type) {
	case pgtype.Numeric:
		if !x.Valid {
			return nil
		}
		raw, err := x.Value()
		if err != nil || raw == nil {
			return nil
		}
		d, err := decimal.NewFromString(fmt.Sprint(raw))
		if err != nil {
			return nil
		}
		return d
	case int32:
		return int64(x)
	case int16:
		return int64(x)
	default:
		return v
	}
}

func checkTable(table string) error {
	if !tables[table] {
		return fmt.Errorf("%w: %s", generic.ErrUnknownTable, table)
	}
	return nil
}

// classify maps unique_violation (23505) onto generic.ErrConflict.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", generic.ErrConflict, pgErr.ConstraintName)
	}
	return err
}
