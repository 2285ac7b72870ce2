// Package attendance records daily attendance for a class. A day's sheet
// is always written as one atomic upsert keyed on (student_id, date), so
// re-submitting a day replaces that day's statuses instead of adding rows.
package attendance

import (
	"context"

	"github.com/warp/records-engine/generic"
)

const TableAttendance = "attendance_records"

// ConflictKey is the natural key of an attendance row.
var ConflictKey = []string{"student_id", "date"}

type Status string

const (
	StatusPresent Status = "present"
	StatusSick    Status = "sick"
	StatusExcused Status = "excused"
	StatusAbsent  Status = "absent"
)

// Entry is one student's status for the day.
type Entry struct {
	StudentID generic.StudentID `json:"student_id" yaml:"student_id"`
	Status    Status            `json:"status" yaml:"status"`
	Notes     *string           `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// Sheet is one day of attendance.
type Sheet struct {
	Date    generic.Date
	Entries []Entry
	Actor   generic.ActorID
}

func (s Sheet) Batch() generic.CohortBatch {
	entries := make([]generic.BatchEntry, len(s.Entries))
	for i, e := range s.Entries {
		entries[i] = generic.BatchEntry{
			TargetID: e.StudentID,
			Payload:  generic.Row{"status": string(e.Status)},
			Notes:    e.Notes,
		}
	}
	return generic.CohortBatch{
		Entries: entries,
		Cohort:  generic.DayCohort{Date: s.Date},
		ActorID: s.Actor,
	}
}

// Spec describes attendance; the strategy is fixed to upsert.
func Spec() generic.EntitySpec {
	return generic.EntitySpec{
		Entity:       generic.EntityAttendance,
		Table:        TableAttendance,
		TargetColumn: "student_id",
		Strategy:     generic.StrategyUpsert,
		ConflictKey:  ConflictKey,
		ValidateEntry: func(e generic.BatchEntry) error {
			return generic.RequireOneOf(e.Payload, "status",
				string(StatusPresent), string(StatusSick), string(StatusExcused), string(StatusAbsent))
		},
	}
}

type Service struct {
	Reconciler *generic.Reconciler
}

func NewService(rec *generic.Reconciler) *Service {
	return &Service{Reconciler: rec}
}

// Record upserts a day's sheet.
func (s *Service) Record(ctx context.Context, sheet Sheet) (generic.Outcome, error) {
	return s.Reconciler.Reconcile(ctx, Spec(), sheet.Batch())
}
