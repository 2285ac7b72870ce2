/*
Package generic provides the bulk reconciliation core.

PURPOSE:
  Several record-keeping features accept a batch of client entries for one
  cohort (a subject/term, a date, a billing month) and must merge them
  against rows that already exist. This package holds the domain-agnostic
  pieces of that work: matching entries to create/update sets, executing the
  writes against a row gateway, conflict-key upserts, the permission status
  workflow and the mapping from writes to stale cached views.

KEY CONCEPTS IN THIS FILE (types.go):
  - Row / Key:    Column-keyed values exchanged with the Gateway
  - Cohort:       The grouping key shared by every entry of one submission
  - BatchEntry:   One client entry (target student + payload)
  - CohortBatch:  A whole submission (entries + cohort + actor)
  - EntitySpec:   How an entity maps onto a table and which strategy it uses

DESIGN PRINCIPLES:
  1. The core never caches rows across requests; the Gateway owns them.
  2. Domain packages (academic, finance, attendance, permission) only build
     payload rows and an EntitySpec; the write algorithm lives here.
  3. Scores and amounts travel as decimal.Decimal, never float64.

SEE ALSO:
  - matcher.go: RecordMatcher (create vs update routing)
  - writer.go: WriteCoordinator (bulk insert + ordered updates)
  - reconciler.go: End-to-end flow for one submission
*/
package generic

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

// RecordID is the store-assigned identifier of a persisted row.
type RecordID string

// StudentID references a student on the roster.
type StudentID string

// ActorID identifies the user performing a write. Empty means unknown.
type ActorID string

// NewRecordID returns a time-ordered (v7) uuid string.
func NewRecordID() RecordID {
	id, err := uuid.NewV7()
	if err != nil {
		return RecordID(uuid.NewString())
	}
	return RecordID(id.String())
}

// =============================================================================
// ENTITY TYPES
// =============================================================================

type EntityType string

const (
	EntityGrade        EntityType = "grade"
	EntityTahfidzGrade EntityType = "tahfidz_grade"
	EntityPayment      EntityType = "payment"
	EntityAttendance   EntityType = "attendance"
	EntityPermission   EntityType = "permission"
)

// Common column names shared by every reconciled table.
const (
	ColumnID        = "id"
	ColumnNotes     = "notes"
	ColumnCreatedBy = "created_by"
	ColumnCreatedAt = "created_at"
	ColumnUpdatedAt = "updated_at"
)

// =============================================================================
// ROWS
// =============================================================================

// Row is one record as the Gateway sees it: column name to value.
type Row map[string]any

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// With returns a copy of r with the columns of other laid on top.
func (r Row) With(other Row) Row {
	out := r.Clone()
	for k, v := range other {
		out[k] = v
	}
	return out
}

// ID returns the row's id column, or "" when absent.
func (r Row) ID() RecordID {
	return RecordID(AsString(r[ColumnID]))
}

// Key selects rows by column equality. All columns must match.
type Key map[string]any

// ByID selects a single row by its id.
func ByID(id RecordID) Key {
	return Key{ColumnID: string(id)}
}

// Matches reports whether row satisfies every column of the key.
func (k Key) Matches(row Row) bool {
	for col, want := range k {
		if !SameValue(row[col], want) {
			return false
		}
	}
	return true
}

// =============================================================================
// COHORT - The grouping key of one submission
// =============================================================================

// Cohort is the grouping key shared by all entries of a batch.
// Concrete cohorts live next to the domain that uses them.
type Cohort interface {
	// Columns returns the columns stamped onto every created row.
	Columns() Row

	// Validate rejects a cohort with missing required fields.
	Validate() error

	String() string
}

// =============================================================================
// BATCH - One client submission
// =============================================================================

// BatchEntry is one client-submitted entry. ExistingRecordID is the
// client's claim that a row already exists; no lookup verifies it.
type BatchEntry struct {
	TargetID         StudentID
	ExistingRecordID RecordID
	Payload          Row
	Notes            *string
}

// IsUpdate reports whether the client marked this entry as pre-existing.
func (e BatchEntry) IsUpdate() bool {
	return e.ExistingRecordID != ""
}

// CohortBatch is a transient request: it is never persisted.
type CohortBatch struct {
	Entries []BatchEntry
	Cohort  Cohort
	ActorID ActorID
}

// Targets returns the target ids in submission order.
func (b CohortBatch) Targets() []StudentID {
	out := make([]StudentID, 0, len(b.Entries))
	for _, e := range b.Entries {
		out = append(out, e.TargetID)
	}
	return out
}

// =============================================================================
// ENTITY SPEC - How an entity is reconciled
// =============================================================================

// Strategy selects how a batch is written.
type Strategy string

const (
	// StrategyMatched routes entries by ExistingRecordID: one bulk insert
	// plus ordered single-row updates.
	StrategyMatched Strategy = "matched"

	// StrategyUpsert submits every entry as one atomic upsert keyed on
	// the entity's natural key.
	StrategyUpsert Strategy = "upsert"
)

// EntitySpec describes how one entity type maps onto the Gateway.
type EntitySpec struct {
	Entity       EntityType
	Table        string
	TargetColumn string
	Strategy     Strategy

	// ConflictKey is the natural key enforced by the store.
	// Required when Strategy is StrategyUpsert.
	ConflictKey []string

	// Optional lists nullable payload columns. An upserted row that
	// leaves one out replaces the stored value with NULL. notes is
	// always optional.
	Optional []string

	// ValidateEntry checks one entry's payload. Optional.
	ValidateEntry func(BatchEntry) error
}

// OptionalColumns returns notes plus the spec's own optional columns.
func (s EntitySpec) OptionalColumns() []string {
	return append([]string{ColumnNotes}, s.Optional...)
}

// =============================================================================
// WRITE PLAN - Output of the matcher
// =============================================================================

// UpdateCommand is a single-row update produced by the matcher.
type UpdateCommand struct {
	ID       RecordID
	TargetID StudentID
	Patch    Row
}

// WritePlan holds the create-set and the ordered update-set of one batch.
type WritePlan struct {
	Creates []Row
	Updates []UpdateCommand
}

// Empty reports whether the plan writes nothing.
func (p WritePlan) Empty() bool {
	return len(p.Creates) == 0 && len(p.Updates) == 0
}

// =============================================================================
// VALUE HELPERS
// =============================================================================

// Timestamp formats t the way every store persists it.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// Score is a convenience for building decimal payload values in tests and presets.
func Score(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}
