/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
  Provides pre-built scenarios that populate the store with realistic
  school data. Every scenario goes through the same services the API
  uses, so a loaded scenario also leaves the matching views stale.

AVAILABLE SCENARIOS:
  class-roster:    Two classes, one inactive student
  grade-sheet:     Roster + a Math sheet and a tahfidz sheet
  billing-month:   Roster + this month's bills, one settled in full
  leave-requests:  Roster + pending and decided leave requests
  attendance-day:  Roster + today's attendance

HOW SCENARIOS WORK:
  1. Reset the store (clear all data)
  2. Import the roster
  3. Submit sheets / file requests through the services

NOTE:
  Scenarios reset the store. Only use in development/demo environments.

SEE ALSO:
  - api/scenarios.go: HTTP handlers
  - cmd/recordsctl: "scenario" command
*/
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/records-engine/academic"
	"github.com/warp/records-engine/attendance"
	"github.com/warp/records-engine/finance"
	"github.com/warp/records-engine/generic"
	"github.com/warp/records-engine/permission"
	"github.com/warp/records-engine/roster"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

// Scenario describes a loadable demo data set.
type Scenario struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

var scenarios = []Scenario{
	{ID: "class-roster", Name: "Class Roster", Description: "Classes 7A and 7B with one inactive student", Category: "roster"},
	{ID: "grade-sheet", Name: "Grade Sheet", Description: "Math semester 1 grades and a Juz Amma tahfidz evaluation", Category: "academic"},
	{ID: "billing-month", Name: "Billing Month", Description: "This month's tuition bills for 7A, one already paid", Category: "finance"},
	{ID: "leave-requests", Name: "Leave Requests", Description: "Two pending requests and one approved", Category: "permission"},
	{ID: "attendance-day", Name: "Attendance Day", Description: "Today's attendance for class 7A", Category: "attendance"},
}

// ErrUnknownScenario is returned for a scenario id not in Scenarios().
var ErrUnknownScenario = errors.New("unknown scenario")

// Scenarios lists the available demo scenarios.
func Scenarios() []Scenario {
	return append([]Scenario(nil), scenarios...)
}

// LoadScenario resets the store and loads one scenario.
func (a *App) LoadScenario(ctx context.Context, id string) error {
	loaders := map[string]func(context.Context) error{
		"class-roster":   a.loadRoster,
		"grade-sheet":    a.loadGradeSheet,
		"billing-month":  a.loadBillingMonth,
		"leave-requests": a.loadLeaveRequests,
		"attendance-day": a.loadAttendanceDay,
	}
	load, ok := loaders[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownScenario, id)
	}
	if err := a.Reset(ctx); err != nil {
		return err
	}
	if err := load(ctx); err != nil {
		return fmt.Errorf("failed to load scenario %s: %w", id, err)
	}
	a.Logger.Info("scenario_loaded", "scenario", id)
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

const demoActor generic.ActorID = "demo"

var demoStudents = []roster.Student{
	{ID: "s1", Name: "Aisyah Putri", ClassID: "7A"},
	{ID: "s2", Name: "Bima Pratama", ClassID: "7A"},
	{ID: "s3", Name: "Citra Lestari", ClassID: "7A"},
	{ID: "s4", Name: "Dimas Saputra", ClassID: "7A", Status: roster.StatusInactive},
	{ID: "s5", Name: "Eka Wulandari", ClassID: "7B"},
}

func (a *App) loadRoster(ctx context.Context) error {
	_, err := a.Roster.Import(ctx, demoStudents)
	return err
}

func (a *App) loadGradeSheet(ctx context.Context) error {
	if err := a.loadRoster(ctx); err != nil {
		return err
	}

	_, err := a.Academic.SubmitGrades(ctx, academic.GradeSheet{
		Term: generic.SubjectTerm{SubjectID: "Math", Semester: "1", AcademicYear: "2024"},
		Entries: []academic.GradeEntry{
			{StudentID: "s1", Score: decimal.NewFromInt(92)},
			{StudentID: "s2", Score: decimal.RequireFromString("78.5")},
			{StudentID: "s3", Score: decimal.NewFromInt(65), Notes: strPtr("remedial scheduled")},
		},
		Actor: demoActor,
	})
	if err != nil {
		return err
	}

	_, err = a.Academic.SubmitTahfidz(ctx, academic.TahfidzSheet{
		Term: academic.ProgramTerm{Program: "Juz Amma", Semester: "1", AcademicYear: "2024"},
		Entries: []academic.TahfidzEntry{
			{StudentID: "s1", Score: decimal.NewFromInt(95), Juz: 30, Surah: "An-Naba"},
			{StudentID: "s2", Score: decimal.NewFromInt(84), Juz: 30, Surah: "An-Nazi'at"},
			{StudentID: "s3", Score: decimal.NewFromInt(71), Juz: 30, Surah: "Abasa"},
		},
		Actor: demoActor,
	})
	return err
}

func (a *App) loadBillingMonth(ctx context.Context) error {
	if err := a.loadRoster(ctx); err != nil {
		return err
	}

	today := generic.Today(a.Finance.Clock)
	period := generic.BillingPeriod{Category: "spp", Month: int(today.Month()), Year: today.Year()}
	amount := decimal.NewFromInt(150000)

	if _, err := a.Finance.GeneratePayments(ctx, finance.GenerateRequest{
		ClassID: "7A",
		Period:  period,
		Amount:  amount,
		Actor:   demoActor,
	}); err != nil {
		return err
	}

	// Settle s1's bill through the matched update path.
	bills, err := a.Gateway.Select(ctx, finance.TablePayments, generic.Key{"student_id": "s1", "category": "spp"})
	if err != nil {
		return err
	}
	if len(bills) == 0 {
		return fmt.Errorf("generated bill for s1 not found")
	}
	_, err = a.Finance.SubmitPayments(ctx, finance.PaymentSheet{
		Period: period,
		Entries: []finance.PaymentEntry{{
			StudentID:        "s1",
			ExistingRecordID: bills[0].ID(),
			Amount:           amount,
			PaidAmount:       &amount,
		}},
		Actor: demoActor,
	})
	return err
}

func (a *App) loadLeaveRequests(ctx context.Context) error {
	if err := a.loadRoster(ctx); err != nil {
		return err
	}

	today := generic.Today(a.Permission.Clock)
	requests := []permission.Request{
		{StudentID: "s1", StartDate: today.AddDays(1), EndDate: today.AddDays(2), Reason: "Family event", Actor: "guardian-s1"},
		{StudentID: "s2", StartDate: today, EndDate: today, Reason: "Fever", Actor: "guardian-s2"},
		{StudentID: "s3", StartDate: today.AddDays(3), EndDate: today.AddDays(3), Reason: "Regional competition", Actor: "teacher-7a"},
	}
	var created []permission.Permission
	for _, req := range requests {
		p, err := a.Permission.Create(ctx, req)
		if err != nil {
			return err
		}
		created = append(created, p)
	}

	_, err := a.Permission.Approve(ctx, created[2].ID, "principal")
	return err
}

func (a *App) loadAttendanceDay(ctx context.Context) error {
	if err := a.loadRoster(ctx); err != nil {
		return err
	}

	_, err := a.Attendance.Record(ctx, attendance.Sheet{
		Date: generic.Today(a.Permission.Clock),
		Entries: []attendance.Entry{
			{StudentID: "s1", Status: attendance.StatusPresent},
			{StudentID: "s2", Status: attendance.StatusSick, Notes: strPtr("doctor's note received")},
			{StudentID: "s3", Status: attendance.StatusPresent},
		},
		Actor: demoActor,
	})
	return err
}

func strPtr(s string) *string {
	return &s
}
