package factory_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/records-engine/academic"
	"github.com/warp/records-engine/attendance"
	"github.com/warp/records-engine/factory"
	"github.com/warp/records-engine/finance"
	"github.com/warp/records-engine/generic"
	"github.com/warp/records-engine/generic/store"
)

const gradeJSON = `{
  "entity": "grade",
  "actor": "teacher-1",
  "cohort": {"subject_id": "Math", "semester": "1", "academic_year": "2024"},
  "entries": [
    {"target_id": "s1", "score": 90},
    {"target_id": "s2", "existing_record_id": "g77", "score": "75.5", "notes": "remedial"}
  ]
}`

const attendanceYAML = `
entity: attendance
cohort:
  date: "2024-08-12"
entries:
  - target_id: s1
    status: present
  - target_id: s2
    status: sick
    notes: flu
`

const paymentYAML = `
entity: payment
cohort:
  category: spp
  month: 8
  year: 2024
entries:
  - target_id: s1
    amount: 150000
    paid_amount: 50000
`

func TestParse_GradeJSON(t *testing.T) {
	sub, err := factory.NewSubmissionFactory().Parse([]byte(gradeJSON), factory.FormatJSON)

	require.NoError(t, err)
	require.NotNil(t, sub.Grades)
	assert.Equal(t, generic.EntityGrade, sub.Entity)
	assert.Equal(t, "Math", sub.Grades.Term.SubjectID)
	assert.Equal(t, generic.ActorID("teacher-1"), sub.Grades.Actor)
	require.Len(t, sub.Grades.Entries, 2)
	assert.True(t, sub.Grades.Entries[1].Score.Equal(decimal.NewFromFloat(75.5)))
	assert.Equal(t, generic.RecordID("g77"), sub.Grades.Entries[1].ExistingRecordID)
	require.NotNil(t, sub.Grades.Entries[1].Notes)
	assert.Equal(t, "remedial", *sub.Grades.Entries[1].Notes)
}

func TestParse_AttendanceYAML(t *testing.T) {
	sub, err := factory.NewSubmissionFactory().Parse([]byte(attendanceYAML), factory.FormatYAML)

	require.NoError(t, err)
	require.NotNil(t, sub.Attendance)
	assert.Equal(t, "2024-08-12", sub.Attendance.Date.String())
	assert.Equal(t, attendance.StatusSick, sub.Attendance.Entries[1].Status)
}

func TestParse_PaymentYAMLDecimals(t *testing.T) {
	sub, err := factory.NewSubmissionFactory().Parse([]byte(paymentYAML), factory.FormatYAML)

	require.NoError(t, err)
	require.NotNil(t, sub.Payments)
	assert.Equal(t, 8, sub.Payments.Period.Month)
	e := sub.Payments.Entries[0]
	assert.True(t, e.Amount.Equal(decimal.NewFromInt(150000)))
	require.NotNil(t, e.PaidAmount)
	assert.True(t, e.PaidAmount.Equal(decimal.NewFromInt(50000)))
}

func TestParseFor_EntityMismatch(t *testing.T) {
	_, err := factory.NewSubmissionFactory().ParseFor(generic.EntityPayment, []byte(gradeJSON), factory.FormatJSON)
	assert.ErrorIs(t, err, generic.ErrValidation)
}

func TestParse_Errors(t *testing.T) {
	f := factory.NewSubmissionFactory()

	tests := []struct {
		name   string
		doc    string
		format factory.Format
		field  string
	}{
		{"malformed json", `{"entity":`, factory.FormatJSON, "document"},
		{"unknown entity", `{"entity": "homework", "entries": []}`, factory.FormatJSON, "entity"},
		{"missing score", `{"entity": "grade", "entries": [{"target_id": "s1"}]}`, factory.FormatJSON, "score"},
		{"bad date", "entity: attendance\ncohort:\n  date: 12/08/2024\n", factory.FormatYAML, "date"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.Parse([]byte(tt.doc), tt.format)
			var ve *generic.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestFormatFor(t *testing.T) {
	assert.Equal(t, factory.FormatYAML, factory.FormatFor("batch.YAML"))
	assert.Equal(t, factory.FormatYAML, factory.FormatFor("batch.yml"))
	assert.Equal(t, factory.FormatJSON, factory.FormatFor("batch.json"))
	assert.Equal(t, factory.FormatJSON, factory.FormatFor("-"))
}

func TestSubmit_RoutesToService(t *testing.T) {
	mem := store.NewMemory()
	rec := generic.NewReconciler(mem, nil, nil, nil)
	svc := factory.Services{
		Academic:   academic.NewService(rec),
		Finance:    finance.NewService(rec, mem, nil, nil),
		Attendance: attendance.NewService(rec),
	}

	sub, err := factory.NewSubmissionFactory().Parse([]byte(attendanceYAML), factory.FormatYAML)
	require.NoError(t, err)

	out, err := sub.WithActor("teacher-9").Submit(context.Background(), svc)

	require.NoError(t, err)
	assert.Equal(t, 2, out.Upserted)
	rows, _ := mem.Select(context.Background(), attendance.TableAttendance, generic.Key{"student_id": "s2"})
	require.Len(t, rows, 1)
	assert.Equal(t, "teacher-9", rows[0]["created_by"])
	assert.Equal(t, "flu", rows[0]["notes"])
}

func TestSubmit_NoService(t *testing.T) {
	sub, err := factory.NewSubmissionFactory().Parse([]byte(gradeJSON), factory.FormatJSON)
	require.NoError(t, err)

	_, err = sub.Submit(context.Background(), factory.Services{})
	assert.Error(t, err)
}
