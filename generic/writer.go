/*
writer.go - Executes a matched write plan against the Gateway

PURPOSE:
  Runs the create-set as one bulk insert, then the update-set as ordered
  single-row updates, and reduces every step into a Result so the caller
  sees exactly what was written.

ALGORITHM:
  1. Creates non-empty: exactly one Insert of all rows. A failure is
     captured as BulkInsertError; the update phase still runs.
  2. Updates: one Update per command, in submission order. The first
     failure stops the loop. Commands after it are reported NotAttempted;
     commands before it stay written (no compensating rollback).
  3. Both phases failed: the insert error is returned.

GUARANTEES:
  Insert-phase rows are all-or-nothing at the store. Update-phase rows are
  written one at a time, so a failure leaves a mixed state that a retry of
  the same batch re-attempts correctly (updates are idempotent by id).

SEE ALSO:
  - matcher.go: Produces the WritePlan
  - errors.go: BulkInsertError, SequentialUpdateError
*/
package generic

import (
	"context"
	"fmt"
	"log/slog"
)

// =============================================================================
// RESULT - What one execution actually did
// =============================================================================

// FailedUpdate identifies the update that stopped the loop.
type FailedUpdate struct {
	ID       RecordID
	TargetID StudentID
	Position int // 1-based
	Err      error
}

// Result accumulates the outcome of a plan, including on failure.
type Result struct {
	Inserted     int
	Updated      int
	InsertedIDs  []RecordID
	Succeeded    []RecordID
	Failed       *FailedUpdate
	NotAttempted []RecordID

	// Touched lists the targets whose rows were written, in write order.
	Touched []StudentID
}

// =============================================================================
// WRITE COORDINATOR
// =============================================================================

type WriteCoordinator struct {
	Gateway Gateway
	Logger  *slog.Logger
}

func NewWriteCoordinator(gw Gateway, logger *slog.Logger) *WriteCoordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &WriteCoordinator{Gateway: gw, Logger: logger}
}

// Execute writes plan into table. The Result is meaningful even when an
// error is returned.
func (wc *WriteCoordinator) Execute(ctx context.Context, table, targetColumn string, plan WritePlan) (Result, error) {
	var (
		res       Result
		insertErr error
		updateErr error
	)

	if len(plan.Creates) > 0 {
		ids, err := wc.Gateway.Insert(ctx, table, plan.Creates)
		if err != nil {
			insertErr = &BulkInsertError{Table: table, Rows: len(plan.Creates), Err: err}
			wc.Logger.Warn("bulk_insert_failed", "table", table, "rows", len(plan.Creates), "error", err)
		} else {
			res.Inserted = len(ids)
			res.InsertedIDs = ids
			for _, row := range plan.Creates {
				res.Touched = append(res.Touched, StudentID(AsString(row[targetColumn])))
			}
		}
	}

	for i, cmd := range plan.Updates {
		n, err := wc.Gateway.Update(ctx, table, cmd.Patch, ByID(cmd.ID))
		if err == nil && n == 0 {
			err = fmt.Errorf("%w: %s", ErrRecordNotFound, cmd.ID)
		}
		if err != nil {
			res.Failed = &FailedUpdate{ID: cmd.ID, TargetID: cmd.TargetID, Position: i + 1, Err: err}
			for _, rest := range plan.Updates[i+1:] {
				res.NotAttempted = append(res.NotAttempted, rest.ID)
			}
			updateErr = &SequentialUpdateError{
				Table:     table,
				ID:        cmd.ID,
				Position:  i + 1,
				Applied:   res.Updated,
				Remaining: len(res.NotAttempted),
				Err:       err,
			}
			wc.Logger.Warn("update_failed",
				"table", table,
				"id", cmd.ID,
				"position", i+1,
				"applied", res.Updated,
				"not_attempted", len(res.NotAttempted),
				"error", err,
			)
			break
		}
		res.Updated++
		res.Succeeded = append(res.Succeeded, cmd.ID)
		res.Touched = append(res.Touched, cmd.TargetID)
	}

	if insertErr != nil {
		return res, insertErr
	}
	if updateErr != nil {
		return res, updateErr
	}
	return res, nil
}
