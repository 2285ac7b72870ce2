/*
store.go - Persistence gateway contract

PURPOSE:
  Defines the interface between the reconciliation core and the relational
  store. The gateway is row oriented: the core hands it tables, rows and
  equality keys, and each call is its own atomic unit. There is NO
  transaction spanning two calls; the core is written around that.

KEY INTERFACES:
  Gateway:    insert / update / delete / upsertOnConflict / select
  StaleMarker: receives the cached views made stale by a write

ATOMICITY PER CALL:
  - Insert():           all rows or none
  - Update():           one patch applied to every row matching the key
  - UpsertOnConflict(): all rows or none; rows matching conflictKey are
                        replaced, others inserted

IMPLEMENTATIONS:
  - generic/store/memory.go: In-memory, with fault injection for tests
  - store/sqlite/sqlite.go:  SQLite (database/sql + go-sqlite3)
  - store/postgres/postgres.go: Hosted PostgreSQL (pgx)

SEE ALSO:
  - writer.go: Uses Insert and Update
  - upsert.go: Uses UpsertOnConflict
  - invalidation.go: Produces targets for StaleMarker
*/
package generic

import "context"

// =============================================================================
// GATEWAY - Row-level persistence
// =============================================================================

// Gateway is the row-oriented persistence API of the relational store.
type Gateway interface {
	// Insert writes all rows atomically and returns their ids in order.
	// Rows without an id get one assigned by the store.
	Insert(ctx context.Context, table string, rows []Row) ([]RecordID, error)

	// Update applies patch to every row matching key and returns the
	// number of rows changed.
	Update(ctx context.Context, table string, patch Row, key Key) (int64, error)

	// Delete removes every row matching key.
	Delete(ctx context.Context, table string, key Key) (int64, error)

	// UpsertOnConflict writes rows atomically. A row whose conflictKey
	// columns match an existing row replaces that row's non-key columns
	// (id, created_by and created_at are preserved); other rows are inserted.
	// The replaced columns are the union over the batch: a column some row
	// carries is set to NULL in a row that lacks it, a column no row carries
	// is left alone.
	UpsertOnConflict(ctx context.Context, table string, rows []Row, conflictKey []string) error

	// Select returns rows matching key in insertion order.
	Select(ctx context.Context, table string, key Key) ([]Row, error)
}

// =============================================================================
// STALE MARKER - Cached view invalidation sink
// =============================================================================

// StaleMarker marks cached views stale so the next read refetches them.
// Nothing is pushed to readers; only the stale signal is recorded.
type StaleMarker interface {
	MarkStale(ctx context.Context, targets []InvalidationTarget) error
}

// preservedOnReplace lists columns an upsert never overwrites.
var preservedOnReplace = map[string]bool{
	ColumnID:        true,
	ColumnCreatedBy: true,
	ColumnCreatedAt: true,
}

// ReplaceColumns returns the columns an upsert overwrites on conflict:
// every column in cols except the conflict key and the preserved columns.
func ReplaceColumns(cols []string, conflictKey []string) []string {
	inKey := make(map[string]bool, len(conflictKey))
	for _, c := range conflictKey {
		inKey[c] = true
	}
	var out []string
	for _, c := range cols {
		if inKey[c] || preservedOnReplace[c] {
			continue
		}
		out = append(out, c)
	}
	return out
}
