/*
Package academic reconciles teacher-entered grade sheets.

PURPOSE:
  Turns a subject grade sheet or a tahfidz (Quran memorization) evaluation
  sheet into a generic.CohortBatch and runs it through the reconciler.
  The write algorithm lives in generic/; this package only decides what a
  row looks like and what counts as a valid score.

ENTITIES:
  grades:         one row per student, subject and term; score 0-100
  tahfidz_grades: one row per student, program and term; score 0-100,
                  juz reached (1-30), surah, and a predicate derived
                  from the score

PREDICATES (tahfidz):
  score >= 90  Mumtaz
  score >= 80  Jayyid Jiddan
  score >= 70  Jayyid
  score >= 60  Maqbul
  otherwise    Dhaif

SEE ALSO:
  - service.go: Submission entry points
  - generic/reconciler.go: The shared pipeline
*/
package academic

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/warp/records-engine/generic"
)

// Table names.
const (
	TableGrades        = "grades"
	TableTahfidzGrades = "tahfidz_grades"
)

var (
	minScore = decimal.Zero
	maxScore = decimal.NewFromInt(100)
)

// =============================================================================
// PROGRAM TERM - memorization program + semester + academic year
// =============================================================================

// ProgramTerm is the cohort of a tahfidz sheet.
type ProgramTerm struct {
	Program      string
	Semester     string
	AcademicYear string
}

func (c ProgramTerm) Columns() generic.Row {
	return generic.Row{
		"program":       c.Program,
		"semester":      c.Semester,
		"academic_year": c.AcademicYear,
	}
}

func (c ProgramTerm) Validate() error {
	if strings.TrimSpace(c.Program) == "" {
		return generic.Invalid("program", "tahfidz program is required")
	}
	return generic.ValidateTerm(c.Semester, c.AcademicYear)
}

func (c ProgramTerm) String() string {
	return fmt.Sprintf("%s/%s/%s", c.Program, c.Semester, c.AcademicYear)
}

// =============================================================================
// ENTRIES
// =============================================================================

// GradeEntry is one line of a subject grade sheet.
type GradeEntry struct {
	StudentID        generic.StudentID `json:"student_id" yaml:"student_id"`
	ExistingRecordID generic.RecordID  `json:"existing_record_id,omitempty" yaml:"existing_record_id,omitempty"`
	Score            decimal.Decimal   `json:"score" yaml:"score"`
	Notes            *string           `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// GradeSheet is a subject grade submission.
type GradeSheet struct {
	Term    generic.SubjectTerm
	Entries []GradeEntry
	Actor   generic.ActorID
}

// Batch converts the sheet into the core's batch form.
func (s GradeSheet) Batch() generic.CohortBatch {
	entries := make([]generic.BatchEntry, len(s.Entries))
	for i, e := range s.Entries {
		entries[i] = generic.BatchEntry{
			TargetID:         e.StudentID,
			ExistingRecordID: e.ExistingRecordID,
			Payload:          generic.Row{"score": e.Score},
			Notes:            e.Notes,
		}
	}
	return generic.CohortBatch{Entries: entries, Cohort: s.Term, ActorID: s.Actor}
}

// TahfidzEntry is one line of a tahfidz evaluation sheet. Juz 0 means
// not recorded.
type TahfidzEntry struct {
	StudentID        generic.StudentID `json:"student_id" yaml:"student_id"`
	ExistingRecordID generic.RecordID  `json:"existing_record_id,omitempty" yaml:"existing_record_id,omitempty"`
	Score            decimal.Decimal   `json:"score" yaml:"score"`
	Juz              int               `json:"juz,omitempty" yaml:"juz,omitempty"`
	Surah            string            `json:"surah,omitempty" yaml:"surah,omitempty"`
	Notes            *string           `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// TahfidzSheet is a tahfidz evaluation submission.
type TahfidzSheet struct {
	Term    ProgramTerm
	Entries []TahfidzEntry
	Actor   generic.ActorID
}

func (s TahfidzSheet) Batch() generic.CohortBatch {
	entries := make([]generic.BatchEntry, len(s.Entries))
	for i, e := range s.Entries {
		payload := generic.Row{
			"score":     e.Score,
			"predicate": Predicate(e.Score),
			"juz":       nil,
			"surah":     nil,
		}
		if e.Juz != 0 {
			payload["juz"] = e.Juz
		}
		if e.Surah != "" {
			payload["surah"] = e.Surah
		}
		entries[i] = generic.BatchEntry{
			TargetID:         e.StudentID,
			ExistingRecordID: e.ExistingRecordID,
			Payload:          payload,
			Notes:            e.Notes,
		}
	}
	return generic.CohortBatch{Entries: entries, Cohort: s.Term, ActorID: s.Actor}
}

// =============================================================================
// PREDICATES
// =============================================================================

type band struct {
	min   decimal.Decimal
	label string
}

var predicateBands = []band{
	{decimal.NewFromInt(90), "Mumtaz"},
	{decimal.NewFromInt(80), "Jayyid Jiddan"},
	{decimal.NewFromInt(70), "Jayyid"},
	{decimal.NewFromInt(60), "Maqbul"},
}

// Predicate maps a tahfidz score onto its qualitative grade.
func Predicate(score decimal.Decimal) string {
	for _, b := range predicateBands {
		if score.GreaterThanOrEqual(b.min) {
			return b.label
		}
	}
	return "Dhaif"
}

// =============================================================================
// ENTITY SPECS
// =============================================================================

// GradeSpec describes subject grades. strategy may be empty (matched).
func GradeSpec(strategy generic.Strategy) generic.EntitySpec {
	return generic.EntitySpec{
		Entity:       generic.EntityGrade,
		Table:        TableGrades,
		TargetColumn: "student_id",
		Strategy:     strategy,
		ConflictKey:  []string{"student_id", "subject_id", "semester", "academic_year"},
		ValidateEntry: func(e generic.BatchEntry) error {
			return generic.RequireDecimalRange(e.Payload, "score", minScore, maxScore)
		},
	}
}

// TahfidzSpec describes tahfidz grades.
func TahfidzSpec(strategy generic.Strategy) generic.EntitySpec {
	return generic.EntitySpec{
		Entity:       generic.EntityTahfidzGrade,
		Table:        TableTahfidzGrades,
		TargetColumn: "student_id",
		Strategy:     strategy,
		ConflictKey:  []string{"student_id", "program", "semester", "academic_year"},
		Optional:     []string{"juz", "surah"},
		ValidateEntry: func(e generic.BatchEntry) error {
			if err := generic.RequireDecimalRange(e.Payload, "score", minScore, maxScore); err != nil {
				return err
			}
			if juz, ok := e.Payload["juz"].(int); ok && (juz < 1 || juz > 30) {
				return generic.Invalid("juz", "juz must be between 1 and 30")
			}
			return nil
		},
	}
}
