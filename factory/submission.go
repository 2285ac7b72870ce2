/*
Package factory converts submission documents into typed domain sheets.

PURPOSE:
  Every batch feature shares one document shape, whether it arrives as an
  HTTP JSON body or as a YAML/JSON file handed to the CLI. The factory
  decodes it, checks the cohort fields that belong to the entity, and
  produces the sheet the domain service expects.

DOCUMENT SCHEMA (JSON or YAML):
  {
    "entity": "grade",                 // grade | tahfidz_grade | payment | attendance
    "actor": "teacher-1",              // optional; the API overrides it
    "cohort": {
      "subject_id": "Math",            // grade
      "program": "Juz Amma",           // tahfidz_grade
      "semester": "1",                 // grade, tahfidz_grade
      "academic_year": "2024",         // grade, tahfidz_grade
      "date": "2024-08-12",            // attendance
      "category": "spp",               // payment
      "month": 8, "year": 2024         // payment
    },
    "entries": [
      {"target_id": "s1", "score": 90},
      {"target_id": "s2", "existing_record_id": "g77", "score": 75, "notes": "remedial"}
    ]
  }

  Entry value fields by entity:
    grade:         score
    tahfidz_grade: score, juz, surah
    payment:       amount, paid_amount, status
    attendance:    status

USAGE:
  f := factory.NewSubmissionFactory()
  sub, err := f.Parse(data, factory.FormatYAML)
  out, err := sub.Submit(ctx, services)

SEE ALSO:
  - academic/, finance/, attendance/: The sheets produced here
  - api/handlers.go, cmd/recordsctl: Callers
*/
package factory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/warp/records-engine/academic"
	"github.com/warp/records-engine/attendance"
	"github.com/warp/records-engine/finance"
	"github.com/warp/records-engine/generic"
)

// =============================================================================
// DOCUMENT SCHEMA TYPES
// =============================================================================

// SubmissionDoc is the wire representation of a batch submission.
type SubmissionDoc struct {
	Entity  string     `json:"entity,omitempty" yaml:"entity,omitempty"`
	Actor   string     `json:"actor,omitempty" yaml:"actor,omitempty"`
	Cohort  CohortDoc  `json:"cohort" yaml:"cohort"`
	Entries []EntryDoc `json:"entries" yaml:"entries"`
}

// CohortDoc carries the union of every entity's cohort fields.
type CohortDoc struct {
	SubjectID    string `json:"subject_id,omitempty" yaml:"subject_id,omitempty"`
	Program      string `json:"program,omitempty" yaml:"program,omitempty"`
	Semester     string `json:"semester,omitempty" yaml:"semester,omitempty"`
	AcademicYear string `json:"academic_year,omitempty" yaml:"academic_year,omitempty"`
	Date         string `json:"date,omitempty" yaml:"date,omitempty"`
	Category     string `json:"category,omitempty" yaml:"category,omitempty"`
	Month        int    `json:"month,omitempty" yaml:"month,omitempty"`
	Year         int    `json:"year,omitempty" yaml:"year,omitempty"`
}

// EntryDoc carries the union of every entity's entry fields.
type EntryDoc struct {
	TargetID         string           `json:"target_id" yaml:"target_id"`
	ExistingRecordID string           `json:"existing_record_id,omitempty" yaml:"existing_record_id,omitempty"`
	Notes            *string          `json:"notes,omitempty" yaml:"notes,omitempty"`
	Score            *decimal.Decimal `json:"score,omitempty" yaml:"score,omitempty"`
	Juz              int              `json:"juz,omitempty" yaml:"juz,omitempty"`
	Surah            string           `json:"surah,omitempty" yaml:"surah,omitempty"`
	Amount           *decimal.Decimal `json:"amount,omitempty" yaml:"amount,omitempty"`
	PaidAmount       *decimal.Decimal `json:"paid_amount,omitempty" yaml:"paid_amount,omitempty"`
	Status           string           `json:"status,omitempty" yaml:"status,omitempty"`
}

// Format is the encoding of a submission document.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFor picks the format from a file name; anything but .yaml/.yml is JSON.
func FormatFor(filename string) Format {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatJSON
}

// =============================================================================
// SUBMISSION
// =============================================================================

// Submission is a parsed document. Exactly one sheet is set, matching Entity.
type Submission struct {
	Entity     generic.EntityType
	Grades     *academic.GradeSheet
	Tahfidz    *academic.TahfidzSheet
	Payments   *finance.PaymentSheet
	Attendance *attendance.Sheet
}

// Services are the domain services a submission can be routed to.
type Services struct {
	Academic   *academic.Service
	Finance    *finance.Service
	Attendance *attendance.Service
}

// WithActor stamps actor onto the sheet, replacing any document value.
func (s *Submission) WithActor(actor generic.ActorID) *Submission {
	switch {
	case s.Grades != nil:
		s.Grades.Actor = actor
	case s.Tahfidz != nil:
		s.Tahfidz.Actor = actor
	case s.Payments != nil:
		s.Payments.Actor = actor
	case s.Attendance != nil:
		s.Attendance.Actor = actor
	}
	return s
}

// Submit routes the sheet to its service.
func (s *Submission) Submit(ctx context.Context, svc Services) (generic.Outcome, error) {
	switch {
	case s.Grades != nil && svc.Academic != nil:
		return svc.Academic.SubmitGrades(ctx, *s.Grades)
	case s.Tahfidz != nil && svc.Academic != nil:
		return svc.Academic.SubmitTahfidz(ctx, *s.Tahfidz)
	case s.Payments != nil && svc.Finance != nil:
		return svc.Finance.SubmitPayments(ctx, *s.Payments)
	case s.Attendance != nil && svc.Attendance != nil:
		return svc.Attendance.Record(ctx, *s.Attendance)
	}
	return generic.Outcome{}, fmt.Errorf("no service configured for %s", s.Entity)
}

// =============================================================================
// SUBMISSION FACTORY
// =============================================================================

// SubmissionFactory converts documents into submissions.
type SubmissionFactory struct{}

// NewSubmissionFactory creates a new submission factory.
func NewSubmissionFactory() *SubmissionFactory {
	return &SubmissionFactory{}
}

// Parse decodes a document whose entity is named inside it.
func (f *SubmissionFactory) Parse(data []byte, format Format) (*Submission, error) {
	doc, err := f.Decode(data, format)
	if err != nil {
		return nil, err
	}
	return f.Build(generic.EntityType(doc.Entity), doc)
}

// ParseFor decodes a document for a known entity, e.g. from the route of
// an HTTP request. An entity named in the document must agree.
func (f *SubmissionFactory) ParseFor(entity generic.EntityType, data []byte, format Format) (*Submission, error) {
	doc, err := f.Decode(data, format)
	if err != nil {
		return nil, err
	}
	if doc.Entity != "" && generic.EntityType(doc.Entity) != entity {
		return nil, generic.Invalid("entity", fmt.Sprintf("document is for %s, not %s", doc.Entity, entity))
	}
	return f.Build(entity, doc)
}

// Decode unmarshals a document without interpreting it.
func (f *SubmissionFactory) Decode(data []byte, format Format) (SubmissionDoc, error) {
	var doc SubmissionDoc
	var err error
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, &doc)
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		err = dec.Decode(&doc)
	}
	if err != nil {
		return doc, generic.Invalid("document", fmt.Sprintf("malformed %s: %v", format, err))
	}
	return doc, nil
}

// Build converts a decoded document into the sheet for entity.
func (f *SubmissionFactory) Build(entity generic.EntityType, doc SubmissionDoc) (*Submission, error) {
	actor := generic.ActorID(doc.Actor)
	sub := &Submission{Entity: entity}

	switch entity {
	case generic.EntityGrade:
		sheet := academic.GradeSheet{
			Term: generic.SubjectTerm{
				SubjectID:    doc.Cohort.SubjectID,
				Semester:     doc.Cohort.Semester,
				AcademicYear: doc.Cohort.AcademicYear,
			},
			Actor: actor,
		}
		for i, e := range doc.Entries {
			if e.Score == nil {
				return nil, generic.InvalidEntry(i, "score", "value is required")
			}
			sheet.Entries = append(sheet.Entries, academic.GradeEntry{
				StudentID:        generic.StudentID(e.TargetID),
				ExistingRecordID: generic.RecordID(e.ExistingRecordID),
				Score:            *e.Score,
				Notes:            e.Notes,
			})
		}
		sub.Grades = &sheet

	case generic.EntityTahfidzGrade:
		sheet := academic.TahfidzSheet{
			Term: academic.ProgramTerm{
				Program:      doc.Cohort.Program,
				Semester:     doc.Cohort.Semester,
				AcademicYear: doc.Cohort.AcademicYear,
			},
			Actor: actor,
		}
		for i, e := range doc.Entries {
			if e.Score == nil {
				return nil, generic.InvalidEntry(i, "score", "value is required")
			}
			sheet.Entries = append(sheet.Entries, academic.TahfidzEntry{
				StudentID:        generic.StudentID(e.TargetID),
				ExistingRecordID: generic.RecordID(e.ExistingRecordID),
				Score:            *e.Score,
				Juz:              e.Juz,
				Surah:            e.Surah,
				Notes:            e.Notes,
			})
		}
		sub.Tahfidz = &sheet

	case generic.EntityPayment:
		sheet := finance.PaymentSheet{
			Period: generic.BillingPeriod{
				Category: doc.Cohort.Category,
				Month:    doc.Cohort.Month,
				Year:     doc.Cohort.Year,
			},
			Actor: actor,
		}
		for i, e := range doc.Entries {
			if e.Amount == nil {
				return nil, generic.InvalidEntry(i, "amount", "value is required")
			}
			sheet.Entries = append(sheet.Entries, finance.PaymentEntry{
				StudentID:        generic.StudentID(e.TargetID),
				ExistingRecordID: generic.RecordID(e.ExistingRecordID),
				Amount:           *e.Amount,
				PaidAmount:       e.PaidAmount,
				Status:           finance.PaymentStatus(e.Status),
				Notes:            e.Notes,
			})
		}
		sub.Payments = &sheet

	case generic.EntityAttendance:
		sheet := attendance.Sheet{Actor: actor}
		if doc.Cohort.Date != "" {
			d, err := generic.ParseDate(doc.Cohort.Date)
			if err != nil {
				return nil, generic.Invalid("date", "date must be formatted YYYY-MM-DD")
			}
			sheet.Date = d
		}
		for _, e := range doc.Entries {
			sheet.Entries = append(sheet.Entries, attendance.Entry{
				StudentID: generic.StudentID(e.TargetID),
				Status:    attendance.Status(e.Status),
				Notes:     e.Notes,
			})
		}
		sub.Attendance = &sheet

	default:
		return nil, generic.Invalid("entity", fmt.Sprintf("unknown entity %q", entity))
	}

	return sub, nil
}
