/*
errors.go - Centralized error types for the reconciliation core

PURPOSE:
  All error types in one place for consistency and discoverability.
  Domain packages and the API map these onto user-facing messages.

ERROR CATEGORIES:
  1. ValidationError       - rejected before any write, no partial effect
  2. BulkInsertError       - insert phase rejected; updates still attempted
  3. SequentialUpdateError - one update failed; later updates not attempted,
                             earlier updates retained (no rollback)
  4. TransitionError       - status workflow called on a finalized record
  5. UpsertError           - conflict-key write failed; whole batch rejected

RETRY SAFETY:
  Updates are idempotent by id, inserts are not. A batch whose only failure
  happened in the update phase can be resubmitted as-is; a failed insert
  phase can duplicate rows on retry unless the store enforces a natural key.

SEE ALSO:
  - writer.go: Produces BulkInsertError and SequentialUpdateError
  - workflow.go: Produces TransitionError
  - api/handlers.go: Maps errors to HTTP status codes
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrValidation = errors.New("validation failed")

	ErrBulkInsert = errors.New("bulk insert failed")

	ErrSequentialUpdate = errors.New("sequential update failed")

	// ErrInvalidTransition is returned when a status transition is attempted
	// on a record that is no longer pending.
	ErrInvalidTransition = errors.New("invalid transition: record already finalized")

	ErrUpsert = errors.New("upsert failed")

	// ErrRecordNotFound is returned when an id does not match any row.
	ErrRecordNotFound = errors.New("record not found")

	// ErrConflict is returned by stores when a unique key is violated.
	ErrConflict = errors.New("unique key conflict")

	// ErrUnknownTable is returned by stores for tables outside their schema.
	ErrUnknownTable = errors.New("unknown table")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError describes the first problem found in a submission.
// Index is the 0-based entry position, or -1 for batch-level problems.
type ValidationError struct {
	Field   string
	Index   int
	Message string
}

func (e *ValidationError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("validation failed: entry %d: %s: %s", e.Index+1, e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func Invalid(field, message string) *ValidationError {
	return &ValidationError{Field: field, Index: -1, Message: message}
}

func InvalidEntry(index int, field, message string) *ValidationError {
	return &ValidationError{Field: field, Index: index, Message: message}
}

// BulkInsertError means the store rejected the whole create-set.
type BulkInsertError struct {
	Table string
	Rows  int
	Err   error
}

func (e *BulkInsertError) Error() string {
	return fmt.Sprintf("bulk insert of %d rows into %s failed: %v", e.Rows, e.Table, e.Err)
}

func (e *BulkInsertError) Unwrap() []error {
	return []error{ErrBulkInsert, e.Err}
}

// SequentialUpdateError reports the update that stopped the loop.
// Position is 1-based in submission order.
type SequentialUpdateError struct {
	Table     string
	ID        RecordID
	Position  int
	Applied   int
	Remaining int
	Err       error
}

func (e *SequentialUpdateError) Error() string {
	return fmt.Sprintf("update %d (%s) on %s failed after %d applied, %d not attempted: %v",
		e.Position, e.ID, e.Table, e.Applied, e.Remaining, e.Err)
}

func (e *SequentialUpdateError) Unwrap() []error {
	return []error{ErrSequentialUpdate, e.Err}
}

// TransitionError is returned when the workflow refuses a transition.
type TransitionError struct {
	ID      RecordID
	Current PermissionStatus
	Target  PermissionStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%v (id %s is %s, requested %s)", ErrInvalidTransition, e.ID, e.Current, e.Target)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// UpsertError means the atomic conflict-key write was rejected as a whole.
type UpsertError struct {
	Table       string
	ConflictKey []string
	Rows        int
	Err         error
}

func (e *UpsertError) Error() string {
	return fmt.Sprintf("upsert of %d rows into %s on %v failed: %v", e.Rows, e.Table, e.ConflictKey, e.Err)
}

func (e *UpsertError) Unwrap() []error {
	return []error{ErrUpsert, e.Err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidTransition)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRecordNotFound)
}

// IsRetrySafe reports whether resubmitting the same batch cannot duplicate
// rows: true for update-phase and upsert failures, false once the insert
// phase is involved.
func IsRetrySafe(err error) bool {
	if err == nil || errors.Is(err, ErrBulkInsert) {
		return false
	}
	return errors.Is(err, ErrSequentialUpdate) || errors.Is(err, ErrUpsert)
}
