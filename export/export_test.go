package export_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/warp/records-engine/academic"
	"github.com/warp/records-engine/export"
	"github.com/warp/records-engine/finance"
	"github.com/warp/records-engine/generic"
	"github.com/warp/records-engine/generic/store"
)

func golden(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func csvOf(t *testing.T, table export.Table) []byte {
	var buf bytes.Buffer
	require.NoError(t, export.WriteCSV(&buf, table))
	return buf.Bytes()
}

func TestExport_PaymentsIndonesian(t *testing.T) {
	// GIVEN: One settled and one partly paid bill
	mem := store.NewMemory()
	mem.Seed(finance.TablePayments,
		generic.Row{
			"student_id": "s1", "category": "spp", "month": int64(8), "year": int64(2024),
			"amount": "150000", "paid_amount": "150000", "status": "paid",
			"paid_at": "2024-08-12T09:30:00Z", "notes": nil,
		},
		generic.Row{
			"student_id": "s2", "category": "spp", "month": int64(8), "year": int64(2024),
			"amount": decimal.NewFromInt(150000), "paid_amount": "50000", "status": "partial",
			"paid_at": nil, "notes": "cicilan, bulan depan",
		},
	)

	// WHEN: Exported for an Indonesian reader
	table, err := export.NewService(mem).Export(context.Background(), generic.EntityPayment, nil, language.Indonesian)

	// THEN: Headers and statuses are translated, amounts print exactly
	require.NoError(t, err)
	golden(t).Assert(t, "payments_id", csvOf(t, table))
}

func TestExport_GradesEnglish(t *testing.T) {
	mem := store.NewMemory()
	term := generic.Row{"subject_id": "Math", "semester": "1", "academic_year": "2024"}
	mem.Seed(academic.TableGrades,
		term.With(generic.Row{"student_id": "s1", "score": "90"}),
		term.With(generic.Row{"student_id": "s2", "score": decimal.RequireFromString("75.50"), "notes": "remedial"}),
	)

	table, err := export.NewService(mem).Export(context.Background(), generic.EntityGrade, nil, language.English)

	require.NoError(t, err)
	golden(t).Assert(t, "grades_en", csvOf(t, table))
}

func TestExport_FiltersByKey(t *testing.T) {
	mem := store.NewMemory()
	mem.Seed(academic.TableGrades,
		generic.Row{"student_id": "s1", "subject_id": "Math", "score": "90"},
		generic.Row{"student_id": "s1", "subject_id": "Art", "score": "80"},
	)

	table, err := export.NewService(mem).Export(context.Background(), generic.EntityGrade,
		generic.Key{"subject_id": "Art"}, language.English)

	require.NoError(t, err)
	require.Len(t, table.Rows, 1)
	assert.Equal(t, "Art", table.Rows[0][1])
}

func TestTransform_UnknownEntity(t *testing.T) {
	_, err := export.Transform("homework", nil, language.English)
	assert.ErrorIs(t, err, generic.ErrValidation)

	_, err = export.NewService(store.NewMemory()).Export(context.Background(), "homework", nil, language.English)
	assert.ErrorIs(t, err, generic.ErrValidation)
}

func TestTransform_UnknownStatusPrintsAsStored(t *testing.T) {
	table, err := export.Transform(generic.EntityAttendance,
		[]generic.Row{{"student_id": "s1", "date": "2024-08-12", "status": "late"}}, language.Indonesian)

	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "2024-08-12", "late", ""}, table.Rows[0])
}

func TestNegotiate(t *testing.T) {
	tests := []struct {
		header string
		want   language.Tag
	}{
		{"id-ID,id;q=0.9,en;q=0.8", language.Indonesian},
		{"en-GB", language.English},
		{"fr-FR", language.English},
		{"", language.English},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			assert.Equal(t, tt.want, export.Negotiate(tt.header, language.English))
		})
	}

	assert.Equal(t, language.Indonesian, export.Negotiate("", language.Indonesian))
	assert.Equal(t, language.Indonesian, export.Parse("id"))
}

func TestPrinter_Translates(t *testing.T) {
	en := export.Printer(language.English)
	id := export.Printer(language.Indonesian)

	assert.Equal(t, "Saved 2 new and 3 updated records.", en.Sprintf(export.MsgBatchSaved, 2, 3))
	assert.Equal(t, "2 data baru dan 3 data diperbarui tersimpan.", id.Sprintf(export.MsgBatchSaved, 2, 3))
	assert.Equal(t, "Data tidak ditemukan", id.Sprintf(export.MsgNotFound))
	assert.Equal(t, "Disetujui", export.Status("approved", language.Indonesian))
}

func TestFilter(t *testing.T) {
	// GIVEN/WHEN: Payment filters with numeric and text columns
	key, err := export.Filter(generic.EntityPayment, map[string]string{"month": "8", "category": "spp"})

	// THEN: Numeric columns become integers
	require.NoError(t, err)
	assert.Equal(t, generic.Key{"month": int64(8), "category": "spp"}, key)

	tests := []struct {
		name   string
		entity generic.EntityType
		params map[string]string
		field  string
	}{
		{"unexported column", generic.EntityGrade, map[string]string{"created_by": "x"}, "created_by"},
		{"bad number", generic.EntityPayment, map[string]string{"year": "2024a"}, "year"},
		{"unknown entity", "homework", nil, "entity"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := export.Filter(tt.entity, tt.params)
			var ve *generic.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}
