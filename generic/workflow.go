/*
workflow.go - Leave permission status lifecycle

PURPOSE:
  Governs the permission request state machine:

      ┌─────────┐   approve   ┌──────────┐
      │ pending │ ──────────▶ │ approved │  (terminal)
      │         │   reject    ┌──────────┐
      │         │ ──────────▶ │ rejected │  (terminal)
      └─────────┘             └──────────┘

  A transition is valid only from pending. It stamps approved_by with the
  actor and approved_at with the clock. Nothing leaves a terminal state; an
  attempt returns TransitionError and the row is left untouched.

GUARD:
  The update is keyed on {id, status = pending}, so two concurrent
  transitions cannot both win: the loser matches zero rows and gets a
  TransitionError carrying the status the winner wrote.

SEE ALSO:
  - permission/service.go: Creates requests and calls Transition
  - errors.go: TransitionError
*/
package generic

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// =============================================================================
// PERMISSION STATUS - tagged enum
// =============================================================================

type PermissionStatus string

const (
	StatusPending  PermissionStatus = "pending"
	StatusApproved PermissionStatus = "approved"
	StatusRejected PermissionStatus = "rejected"
)

// ParsePermissionStatus rejects anything outside the three known states.
func ParsePermissionStatus(s string) (PermissionStatus, error) {
	switch PermissionStatus(s) {
	case StatusPending, StatusApproved, StatusRejected:
		return PermissionStatus(s), nil
	}
	return "", Invalid("status", fmt.Sprintf("unknown permission status %q", s))
}

// Terminal reports whether no transition leaves this state.
func (s PermissionStatus) Terminal() bool {
	switch s {
	case StatusApproved, StatusRejected:
		return true
	case StatusPending:
		return false
	}
	return false
}

// Permission request columns touched by the workflow.
const (
	ColumnStatus          = "status"
	ColumnApprovedBy      = "approved_by"
	ColumnApprovedAt      = "approved_at"
	ColumnRejectionReason = "rejection_reason"
)

// =============================================================================
// STATUS WORKFLOW
// =============================================================================

// Transitioned describes an applied transition.
type Transitioned struct {
	ID         RecordID
	TargetID   StudentID
	Status     PermissionStatus
	ApprovedBy ActorID
	ApprovedAt time.Time
}

type StatusWorkflow struct {
	Gateway      Gateway
	Table        string
	TargetColumn string
	Clock        Clock
	Logger       *slog.Logger
}

func NewStatusWorkflow(gw Gateway, table, targetColumn string, clock Clock, logger *slog.Logger) *StatusWorkflow {
	if clock == nil {
		clock = SystemClock
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StatusWorkflow{Gateway: gw, Table: table, TargetColumn: targetColumn, Clock: clock, Logger: logger}
}

// Transition moves a pending record to approved or rejected. reason is
// stored only for rejections and may be empty.
func (w *StatusWorkflow) Transition(ctx context.Context, id RecordID, target PermissionStatus, actor ActorID, reason string) (Transitioned, error) {
	switch target {
	case StatusApproved, StatusRejected:
	case StatusPending:
		return Transitioned{}, Invalid("status", "cannot transition back to pending")
	default:
		return Transitioned{}, Invalid("status", fmt.Sprintf("unknown permission status %q", target))
	}

	row, err := w.load(ctx, id)
	if err != nil {
		return Transitioned{}, err
	}

	current, err := ParsePermissionStatus(AsString(row[ColumnStatus]))
	if err != nil {
		return Transitioned{}, fmt.Errorf("permission %s has corrupt status: %w", id, err)
	}
	switch current {
	case StatusPending:
	case StatusApproved, StatusRejected:
		return Transitioned{}, &TransitionError{ID: id, Current: current, Target: target}
	}

	now := w.Clock().UTC()
	patch := Row{
		ColumnStatus:     string(target),
		ColumnApprovedBy: actorValue(actor),
		ColumnApprovedAt: Timestamp(now),
		ColumnUpdatedAt:  Timestamp(now),
	}
	if target == StatusRejected && reason != "" {
		patch[ColumnRejectionReason] = reason
	}

	n, err := w.Gateway.Update(ctx, w.Table, patch, Key{
		ColumnID:     string(id),
		ColumnStatus: string(StatusPending),
	})
	if err != nil {
		return Transitioned{}, fmt.Errorf("failed to transition permission %s: %w", id, err)
	}
	if n == 0 {
		// Finalized between the read and the guarded update.
		latest, err := w.load(ctx, id)
		if err != nil {
			return Transitioned{}, err
		}
		return Transitioned{}, &TransitionError{
			ID:      id,
			Current: PermissionStatus(AsString(latest[ColumnStatus])),
			Target:  target,
		}
	}

	w.Logger.Info("transition_applied", "table", w.Table, "id", id, "status", target, "actor", actor)

	return Transitioned{
		ID:         id,
		TargetID:   StudentID(AsString(row[w.TargetColumn])),
		Status:     target,
		ApprovedBy: actor,
		ApprovedAt: now,
	}, nil
}

func (w *StatusWorkflow) load(ctx context.Context, id RecordID) (Row, error) {
	rows, err := w.Gateway.Select(ctx, w.Table, ByID(id))
	if err != nil {
		return nil, fmt.Errorf("failed to load permission %s: %w", id, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: permission %s", ErrRecordNotFound, id)
	}
	return rows[0], nil
}
