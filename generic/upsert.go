package generic

import (
	"context"
	"log/slog"
	"sort"
	"strings"
)

// =============================================================================
// CONFLICT UPSERT COORDINATOR
// =============================================================================

// ConflictUpsertCoordinator writes a batch as one atomic upsert keyed on a
// natural key the store enforces. Unlike the matched path it is race-safe
// and all-or-nothing, so it is preferred wherever the entity has such a key.
type ConflictUpsertCoordinator struct {
	Gateway Gateway
	Logger  *slog.Logger
}

func NewConflictUpsertCoordinator(gw Gateway, logger *slog.Logger) *ConflictUpsertCoordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConflictUpsertCoordinator{Gateway: gw, Logger: logger}
}

// Upsert submits rows in a single call and returns how many rows were sent.
// Rows repeating a conflict key within the same call are collapsed, the
// later row winning, because one SQL upsert cannot touch a row twice.
// Every row is sent with the same columns, a missing one as nil.
func (uc *ConflictUpsertCoordinator) Upsert(ctx context.Context, table string, rows []Row, conflictKey []string) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if len(conflictKey) == 0 {
		return 0, &UpsertError{Table: table, Rows: len(rows), Err: Invalid("conflict_key", "conflict key is required")}
	}

	collapsed := CollapseByKey(rows, conflictKey)
	collapsed = CompleteRows(collapsed, UnionColumns(collapsed))
	if err := uc.Gateway.UpsertOnConflict(ctx, table, collapsed, conflictKey); err != nil {
		uc.Logger.Warn("upsert_failed", "table", table, "rows", len(collapsed), "conflict_key", conflictKey, "error", err)
		return 0, &UpsertError{Table: table, ConflictKey: conflictKey, Rows: len(collapsed), Err: err}
	}
	return len(collapsed), nil
}

// CollapseByKey keeps the last row for each conflict-key tuple while
// preserving the position of that tuple's first appearance.
func CollapseByKey(rows []Row, conflictKey []string) []Row {
	index := make(map[string]int, len(rows))
	out := make([]Row, 0, len(rows))
	for _, row := range rows {
		k := keyString(row, conflictKey)
		if at, seen := index[k]; seen {
			out[at] = row
			continue
		}
		index[k] = len(out)
		out = append(out, row)
	}
	return out
}

func keyString(row Row, cols []string) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = AsString(row[c])
	}
	return strings.Join(parts, "\x1f")
}

// UnionColumns returns the sorted union of the columns used by rows.
func UnionColumns(rows []Row) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range rows {
		for c := range r {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	sort.Strings(out)
	return out
}

// CompleteRows returns copies of rows in which every column of cols is
// present, nil where the row left it out.
func CompleteRows(rows []Row, cols []string) []Row {
	out := make([]Row, len(rows))
	for i, r := range rows {
		c := r.Clone()
		for _, col := range cols {
			if _, ok := c[col]; !ok {
				c[col] = nil
			}
		}
		out[i] = c
	}
	return out
}
