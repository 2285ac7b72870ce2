// Package roster maintains the student list that bill generation and the
// batch sheets refer to. Imports are idempotent: a student is keyed by id
// and re-importing replaces name, class and status.
package roster

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/warp/records-engine/generic"
)

const Table = "students"

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Student is one roster entry.
type Student struct {
	ID      generic.StudentID `json:"id" yaml:"id"`
	Name    string            `json:"name" yaml:"name"`
	ClassID string            `json:"class_id" yaml:"class_id"`
	Status  Status            `json:"status,omitempty" yaml:"status,omitempty"`
}

func (s Student) row(now string) generic.Row {
	status := s.Status
	if status == "" {
		status = StatusActive
	}
	return generic.Row{
		generic.ColumnID:        string(s.ID),
		"name":                  s.Name,
		"class_id":              s.ClassID,
		generic.ColumnStatus:    string(status),
		generic.ColumnCreatedAt: now,
	}
}

func fromRow(r generic.Row) Student {
	return Student{
		ID:      generic.StudentID(r.ID()),
		Name:    generic.AsString(r["name"]),
		ClassID: generic.AsString(r["class_id"]),
		Status:  Status(generic.AsString(r[generic.ColumnStatus])),
	}
}

// Validate checks a whole import before anything is written.
func Validate(students []Student) error {
	if len(students) == 0 {
		return generic.Invalid("students", "at least one student is required")
	}
	seen := make(map[generic.StudentID]bool, len(students))
	for i, s := range students {
		if strings.TrimSpace(string(s.ID)) == "" {
			return generic.InvalidEntry(i, "id", "student id is required")
		}
		if seen[s.ID] {
			return generic.InvalidEntry(i, "id", fmt.Sprintf("duplicate student %s", s.ID))
		}
		seen[s.ID] = true
		if strings.TrimSpace(s.Name) == "" {
			return generic.InvalidEntry(i, "name", "name is required")
		}
		switch s.Status {
		case "", StatusActive, StatusInactive:
		default:
			return generic.InvalidEntry(i, "status", fmt.Sprintf("unknown status %q", s.Status))
		}
	}
	return nil
}

type Service struct {
	Gateway generic.Gateway
	Clock   generic.Clock
	Logger  *slog.Logger
}

func NewService(gw generic.Gateway, clock generic.Clock, logger *slog.Logger) *Service {
	if clock == nil {
		clock = generic.SystemClock
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{Gateway: gw, Clock: clock, Logger: logger}
}

// Import inserts or replaces students in one atomic upsert keyed on id.
func (s *Service) Import(ctx context.Context, students []Student) (int, error) {
	if err := Validate(students); err != nil {
		return 0, err
	}
	now := generic.Timestamp(s.Clock())
	rows := make([]generic.Row, len(students))
	for i, st := range students {
		rows[i] = st.row(now)
	}
	if err := s.Gateway.UpsertOnConflict(ctx, Table, rows, []string{generic.ColumnID}); err != nil {
		return 0, &generic.UpsertError{Table: Table, ConflictKey: []string{generic.ColumnID}, Rows: len(rows), Err: err}
	}
	s.Logger.Info("roster_imported", "students", len(rows))
	return len(rows), nil
}

// List returns the students of a class, or everyone for an empty classID.
func (s *Service) List(ctx context.Context, classID string) ([]Student, error) {
	key := generic.Key{}
	if classID != "" {
		key["class_id"] = classID
	}
	rows, err := s.Gateway.Select(ctx, Table, key)
	if err != nil {
		return nil, fmt.Errorf("failed to list students: %w", err)
	}
	out := make([]Student, 0, len(rows))
	for _, r := range rows {
		out = append(out, fromRow(r))
	}
	return out, nil
}
