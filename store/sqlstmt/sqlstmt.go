/*
Package sqlstmt builds the SQL issued by the relational gateways.

PURPOSE:
  The Gateway contract is row oriented (table + column map), so every
  statement is assembled at runtime. This package owns that assembly for
  both SQL stores so the quoting rules live in one place.

SAFETY:
  Values are always bound as parameters. Table and column names cannot be,
  so every identifier is checked against a strict pattern before it is
  written into a statement; anything else is rejected with an error.

DIALECTS:
  SQLite:   ? placeholders, excluded.col in upserts
  Postgres: $1..$n placeholders, EXCLUDED.col in upserts

SEE ALSO:
  - store/sqlite/sqlite.go:     SQLite gateway
  - store/postgres/postgres.go: PostgreSQL gateway
*/
package sqlstmt

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/records-engine/generic"
)

type Dialect int

const (
	SQLite Dialect = iota
	Postgres
)

func (d Dialect) String() string {
	if d == Postgres {
		return "postgres"
	}
	return "sqlite"
}

// Statement is a query with its bound arguments.
type Statement struct {
	SQL  string
	Args []any
}

var identPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// Ident validates a table or column name.
func Ident(name string) error {
	if !identPattern.MatchString(name) {
		return fmt.Errorf("invalid identifier %q", name)
	}
	return nil
}

func idents(names []string) error {
	for _, n := range names {
		if err := Ident(n); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// BUILDER - placeholder numbering per statement
// =============================================================================

type builder struct {
	dialect Dialect
	sb      strings.Builder
	args    []any
}

func (b *builder) bind(v any) string {
	b.args = append(b.args, Arg(v))
	if b.dialect == Postgres {
		return "$" + strconv.Itoa(len(b.args))
	}
	return "?"
}

func (b *builder) where(key generic.Key) {
	if len(key) == 0 {
		return
	}
	cols := sortedKeys(key)
	b.sb.WriteString(" WHERE ")
	for i, c := range cols {
		if i > 0 {
			b.sb.WriteString(" AND ")
		}
		if key[c] == nil {
			b.sb.WriteString(c + " IS NULL")
			continue
		}
		b.sb.WriteString(c + " = " + b.bind(key[c]))
	}
}

func (b *builder) statement() Statement {
	return Statement{SQL: b.sb.String(), Args: b.args}
}

// =============================================================================
// STATEMENTS
// =============================================================================

// Columns returns the sorted union of the columns used by rows. A row
// missing one of them is written with NULL in that column.
func Columns(rows []generic.Row) []string {
	return generic.UnionColumns(rows)
}

// InsertRow builds a single-row INSERT over cols.
func InsertRow(d Dialect, table string, cols []string, row generic.Row) (Statement, error) {
	if err := Ident(table); err != nil {
		return Statement{}, err
	}
	if err := idents(cols); err != nil {
		return Statement{}, err
	}
	b := &builder{dialect: d}
	b.sb.WriteString("INSERT INTO " + table + " (" + strings.Join(cols, ", ") + ") VALUES (")
	for i, c := range cols {
		if i > 0 {
			b.sb.WriteString(", ")
		}
		b.sb.WriteString(b.bind(row[c]))
	}
	b.sb.WriteString(")")
	return b.statement(), nil
}

// UpsertRow builds a single-row INSERT ... ON CONFLICT over cols. Columns
// in conflictKey, plus id and the creation stamps, are never overwritten.
func UpsertRow(d Dialect, table string, cols []string, row generic.Row, conflictKey []string) (Statement, error) {
	if len(conflictKey) == 0 {
		return Statement{}, fmt.Errorf("upsert into %s without a conflict key", table)
	}
	if err := idents(conflictKey); err != nil {
		return Statement{}, err
	}
	st, err := InsertRow(d, table, cols, row)
	if err != nil {
		return Statement{}, err
	}

	excluded := "excluded"
	if d == Postgres {
		excluded = "EXCLUDED"
	}

	var sb strings.Builder
	sb.WriteString(st.SQL)
	sb.WriteString(" ON CONFLICT (" + strings.Join(conflictKey, ", ") + ")")
	replace := generic.ReplaceColumns(cols, conflictKey)
	if len(replace) == 0 {
		sb.WriteString(" DO NOTHING")
		return Statement{SQL: sb.String(), Args: st.Args}, nil
	}
	sb.WriteString(" DO UPDATE SET ")
	for i, c := range replace {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(c + " = " + excluded + "." + c)
	}
	return Statement{SQL: sb.String(), Args: st.Args}, nil
}

// Update builds UPDATE table SET ... WHERE key. An empty key is refused so
// a missing id never rewrites a whole table.
func Update(d Dialect, table string, patch generic.Row, key generic.Key) (Statement, error) {
	if err := Ident(table); err != nil {
		return Statement{}, err
	}
	if len(patch) == 0 {
		return Statement{}, fmt.Errorf("update of %s with an empty patch", table)
	}
	if len(key) == 0 {
		return Statement{}, fmt.Errorf("update of %s without a key", table)
	}
	cols := sortedKeys(patch)
	if err := idents(cols); err != nil {
		return Statement{}, err
	}
	if err := idents(sortedKeys(key)); err != nil {
		return Statement{}, err
	}

	b := &builder{dialect: d}
	b.sb.WriteString("UPDATE " + table + " SET ")
	for i, c := range cols {
		if i > 0 {
			b.sb.WriteString(", ")
		}
		b.sb.WriteString(c + " = " + b.bind(patch[c]))
	}
	b.where(key)
	return b.statement(), nil
}

// Delete builds DELETE FROM table WHERE key. An empty key is refused.
func Delete(d Dialect, table string, key generic.Key) (Statement, error) {
	if err := Ident(table); err != nil {
		return Statement{}, err
	}
	if len(key) == 0 {
		return Statement{}, fmt.Errorf("delete from %s without a key", table)
	}
	if err := idents(sortedKeys(key)); err != nil {
		return Statement{}, err
	}
	b := &builder{dialect: d}
	b.sb.WriteString("DELETE FROM " + table)
	b.where(key)
	return b.statement(), nil
}

// Select builds SELECT * FROM table WHERE key in insertion order. SQLite
// orders by rowid; Postgres by id, which is time-ordered (uuid v7).
func Select(d Dialect, table string, key generic.Key) (Statement, error) {
	if err := Ident(table); err != nil {
		return Statement{}, err
	}
	if err := idents(sortedKeys(key)); err != nil {
		return Statement{}, err
	}
	b := &builder{dialect: d}
	b.sb.WriteString("SELECT * FROM " + table)
	b.where(key)
	if d == Postgres {
		b.sb.WriteString(" ORDER BY id")
	} else {
		b.sb.WriteString(" ORDER BY rowid")
	}
	return b.statement(), nil
}

// =============================================================================
// VALUES
// =============================================================================

// Arg converts a row value into something every driver binds the same way.
// Decimals travel as strings so no precision is lost on the way in.
func Arg(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case decimal.Decimal:
		return x.String()
	case *decimal.Decimal:
		if x == nil {
			return nil
		}
		return x.String()
	case time.Time:
		return generic.Timestamp(x)
	case generic.Date:
		return x.String()
	case generic.RecordID:
		return string(x)
	case generic.StudentID:
		return string(x)
	case generic.ActorID:
		return string(x)
	case generic.PermissionStatus:
		return string(x)
	case *string:
		if x == nil {
			return nil
		}
		return *x
	default:
		return v
	}
}

// WithID returns a copy of row carrying an id, assigning a new one if absent.
func WithID(row generic.Row) generic.Row {
	out := row.Clone()
	if out.ID() == "" {
		out[generic.ColumnID] = string(generic.NewRecordID())
	}
	return out
}

func sortedKeys[M ~map[string]any](m M) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
