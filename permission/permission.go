/*
Package permission manages student leave requests.

PURPOSE:
  A guardian or teacher files a leave request for a date range; an
  administrator approves or rejects it exactly once. The lifecycle itself
  is generic.StatusWorkflow; this package creates requests, reads them
  back and keeps the permission views fresh.

FLOW:
  Create  ──▶ pending ──Approve──▶ approved
                     └──Reject───▶ rejected (with optional reason)

SEE ALSO:
  - generic/workflow.go: Transition guard
  - api/handlers.go: HTTP endpoints
*/
package permission

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/warp/records-engine/generic"
)

const TablePermissions = "permission_requests"

// MaxReasonLength bounds the request and rejection reasons.
const MaxReasonLength = generic.MaxNotesLength

// Request is a new leave request.
type Request struct {
	StudentID generic.StudentID
	StartDate generic.Date
	EndDate   generic.Date
	Reason    string
	Actor     generic.ActorID
}

func (r Request) Validate() error {
	if strings.TrimSpace(string(r.StudentID)) == "" {
		return generic.Invalid("student_id", "student is required")
	}
	if r.StartDate.IsZero() {
		return generic.Invalid("start_date", "start date is required")
	}
	if r.EndDate.IsZero() {
		return generic.Invalid("end_date", "end date is required")
	}
	if r.EndDate.Before(r.StartDate) {
		return generic.Invalid("end_date", "end date is before start date")
	}
	if strings.TrimSpace(r.Reason) == "" {
		return generic.Invalid("reason", "reason is required")
	}
	if utf8.RuneCountInString(r.Reason) > MaxReasonLength {
		return generic.Invalid("reason", fmt.Sprintf("reason exceeds %d characters", MaxReasonLength))
	}
	return nil
}

// Permission is a stored leave request.
type Permission struct {
	ID              generic.RecordID         `json:"id"`
	StudentID       generic.StudentID        `json:"student_id"`
	StartDate       string                   `json:"start_date"`
	EndDate         string                   `json:"end_date"`
	Reason          string                   `json:"reason"`
	Status          generic.PermissionStatus `json:"status"`
	ApprovedBy      string                   `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time               `json:"approved_at,omitempty"`
	RejectionReason string                   `json:"rejection_reason,omitempty"`
	CreatedBy       string                   `json:"created_by,omitempty"`
}

func fromRow(r generic.Row) Permission {
	return Permission{
		ID:              r.ID(),
		StudentID:       generic.StudentID(generic.AsString(r["student_id"])),
		StartDate:       generic.AsString(r["start_date"]),
		EndDate:         generic.AsString(r["end_date"]),
		Reason:          generic.AsString(r["reason"]),
		Status:          generic.PermissionStatus(generic.AsString(r[generic.ColumnStatus])),
		ApprovedBy:      generic.AsString(r[generic.ColumnApprovedBy]),
		ApprovedAt:      generic.AsTime(r[generic.ColumnApprovedAt]),
		RejectionReason: generic.AsString(r[generic.ColumnRejectionReason]),
		CreatedBy:       generic.AsString(r[generic.ColumnCreatedBy]),
	}
}

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	Gateway     generic.Gateway
	Workflow    *generic.StatusWorkflow
	Invalidator *generic.InvalidationCoordinator
	Clock       generic.Clock
	Logger      *slog.Logger
}

func NewService(gw generic.Gateway, marker generic.StaleMarker, clock generic.Clock, logger *slog.Logger) *Service {
	if clock == nil {
		clock = generic.SystemClock
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		Gateway:     gw,
		Workflow:    generic.NewStatusWorkflow(gw, TablePermissions, "student_id", clock, logger),
		Invalidator: generic.NewInvalidationCoordinator(marker, logger),
		Clock:       clock,
		Logger:      logger,
	}
}

// Create files a pending request.
func (s *Service) Create(ctx context.Context, req Request) (Permission, error) {
	if err := req.Validate(); err != nil {
		return Permission{}, err
	}

	now := generic.Timestamp(s.Clock())
	row := generic.Row{
		"student_id":            string(req.StudentID),
		"start_date":            req.StartDate.String(),
		"end_date":              req.EndDate.String(),
		"reason":                req.Reason,
		generic.ColumnStatus:    string(generic.StatusPending),
		generic.ColumnCreatedBy: nil,
		generic.ColumnCreatedAt: now,
		generic.ColumnUpdatedAt: now,
	}
	if req.Actor != "" {
		row[generic.ColumnCreatedBy] = string(req.Actor)
	}

	ids, err := s.Gateway.Insert(ctx, TablePermissions, []generic.Row{row})
	if err != nil {
		return Permission{}, fmt.Errorf("failed to create permission: %w", err)
	}
	row[generic.ColumnID] = string(ids[0])

	s.Invalidator.Invalidate(ctx, generic.EntityPermission, []generic.StudentID{req.StudentID})
	s.Logger.Info("permission_created", "id", ids[0], "student", req.StudentID, "actor", req.Actor)
	return fromRow(row), nil
}

// Approve finalizes a pending request as approved.
func (s *Service) Approve(ctx context.Context, id generic.RecordID, actor generic.ActorID) (generic.Transitioned, error) {
	return s.transition(ctx, id, generic.StatusApproved, actor, "")
}

// Reject finalizes a pending request as rejected. reason may be empty.
func (s *Service) Reject(ctx context.Context, id generic.RecordID, actor generic.ActorID, reason string) (generic.Transitioned, error) {
	if utf8.RuneCountInString(reason) > MaxReasonLength {
		return generic.Transitioned{}, generic.Invalid("rejection_reason",
			fmt.Sprintf("reason exceeds %d characters", MaxReasonLength))
	}
	return s.transition(ctx, id, generic.StatusRejected, actor, reason)
}

func (s *Service) transition(ctx context.Context, id generic.RecordID, target generic.PermissionStatus, actor generic.ActorID, reason string) (generic.Transitioned, error) {
	t, err := s.Workflow.Transition(ctx, id, target, actor, reason)
	if err != nil {
		return t, err
	}
	s.Invalidator.Invalidate(ctx, generic.EntityPermission, []generic.StudentID{t.TargetID})
	return t, nil
}

// Get loads one request.
func (s *Service) Get(ctx context.Context, id generic.RecordID) (Permission, error) {
	rows, err := s.Gateway.Select(ctx, TablePermissions, generic.ByID(id))
	if err != nil {
		return Permission{}, err
	}
	if len(rows) == 0 {
		return Permission{}, fmt.Errorf("%w: permission %s", generic.ErrRecordNotFound, id)
	}
	return fromRow(rows[0]), nil
}

// ListPending returns every request awaiting a decision, oldest first.
func (s *Service) ListPending(ctx context.Context) ([]Permission, error) {
	return s.list(ctx, generic.Key{generic.ColumnStatus: string(generic.StatusPending)})
}

// ForStudent returns every request of one student.
func (s *Service) ForStudent(ctx context.Context, student generic.StudentID) ([]Permission, error) {
	return s.list(ctx, generic.Key{"student_id": string(student)})
}

func (s *Service) list(ctx context.Context, key generic.Key) ([]Permission, error) {
	rows, err := s.Gateway.Select(ctx, TablePermissions, key)
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	out := make([]Permission, 0, len(rows))
	for _, r := range rows {
		out = append(out, fromRow(r))
	}
	return out, nil
}
