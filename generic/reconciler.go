/*
reconciler.go - End-to-end flow for one batch submission

PURPOSE:
  Wires the pieces of the core into the single path every batch feature
  takes:

    validate ──▶ matched:  RecordMatcher ──▶ WriteCoordinator ─┐
             └─▶ upsert:   ConflictUpsertCoordinator ──────────┤
                                                               ▼
                                          InvalidationCoordinator ──▶ Outcome

  Invalidation runs even when the write partly failed, because partial
  writes are retained and the views they feed are stale all the same.

SEE ALSO:
  - academic/, finance/, attendance/: Build EntitySpecs and batches
*/
package generic

import (
	"context"
	"log/slog"
)

// Outcome is what the caller reports back to the user.
type Outcome struct {
	Entity      EntityType
	Strategy    Strategy
	Inserted    int
	Updated     int
	Upserted    int
	Result      Result
	Invalidated []InvalidationTarget
}

type Reconciler struct {
	Matcher     *RecordMatcher
	Writer      *WriteCoordinator
	Upserter    *ConflictUpsertCoordinator
	Invalidator *InvalidationCoordinator
	Logger      *slog.Logger
}

// NewReconciler builds the default pipeline over a gateway and marker.
func NewReconciler(gw Gateway, marker StaleMarker, clock Clock, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		Matcher:     NewRecordMatcher(clock),
		Writer:      NewWriteCoordinator(gw, logger),
		Upserter:    NewConflictUpsertCoordinator(gw, logger),
		Invalidator: NewInvalidationCoordinator(marker, logger),
		Logger:      logger,
	}
}

// Reconcile validates, writes and invalidates one batch.
func (r *Reconciler) Reconcile(ctx context.Context, spec EntitySpec, batch CohortBatch) (Outcome, error) {
	out := Outcome{Entity: spec.Entity, Strategy: spec.Strategy}
	if out.Strategy == "" {
		out.Strategy = StrategyMatched
		spec.Strategy = StrategyMatched
	}

	if err := ValidateBatch(spec, batch); err != nil {
		return out, err
	}

	var (
		touched []StudentID
		err     error
	)
	switch spec.Strategy {
	case StrategyUpsert:
		touched, err = r.upsert(ctx, spec, batch, &out)
	default:
		touched, err = r.matched(ctx, spec, batch, &out)
	}

	out.Invalidated = r.Invalidator.Invalidate(ctx, spec.Entity, touched)

	r.Logger.Info("batch_reconciled",
		"entity", spec.Entity,
		"strategy", out.Strategy,
		"cohort", batch.Cohort.String(),
		"entries", len(batch.Entries),
		"inserted", out.Inserted,
		"updated", out.Updated,
		"upserted", out.Upserted,
		"actor", batch.ActorID,
		"failed", err != nil,
	)
	return out, err
}

func (r *Reconciler) matched(ctx context.Context, spec EntitySpec, batch CohortBatch, out *Outcome) ([]StudentID, error) {
	plan := r.Matcher.Partition(spec, batch)
	res, err := r.Writer.Execute(ctx, spec.Table, spec.TargetColumn, plan)
	out.Result = res
	out.Inserted = res.Inserted
	out.Updated = res.Updated
	return res.Touched, err
}

// upsert sends every entry as a full row; the natural key, not the
// client's ExistingRecordID, decides create versus replace. Optional
// columns the entry left out are sent as nil so the replace clears them.
func (r *Reconciler) upsert(ctx context.Context, spec EntitySpec, batch CohortBatch, out *Outcome) ([]StudentID, error) {
	plan := r.Matcher.Partition(spec, CohortBatch{
		Entries: asCreates(batch.Entries),
		Cohort:  batch.Cohort,
		ActorID: batch.ActorID,
	})
	rows := CompleteRows(plan.Creates, spec.OptionalColumns())
	n, err := r.Upserter.Upsert(ctx, spec.Table, rows, spec.ConflictKey)
	if err != nil {
		return nil, err
	}
	out.Upserted = n
	return batch.Targets(), nil
}

func asCreates(entries []BatchEntry) []BatchEntry {
	out := make([]BatchEntry, len(entries))
	for i, e := range entries {
		e.ExistingRecordID = ""
		out[i] = e
	}
	return out
}
