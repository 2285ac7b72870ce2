package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/records-engine/generic"
	memstore "github.com/warp/records-engine/generic/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func gradeRow(student string, score float64) generic.Row {
	return generic.Row{
		"student_id":    student,
		"subject_id":    "Math",
		"semester":      "1",
		"academic_year": "2024",
		"score":         generic.Score(score),
	}
}

func TestStore_InsertAndSelect(t *testing.T) {
	// GIVEN: An empty store
	store := newTestStore(t)
	ctx := context.Background()

	// WHEN: Inserting two grades
	ids, err := store.Insert(ctx, "grades", []generic.Row{gradeRow("s1", 90), gradeRow("s2", 72.5)})

	// THEN: Ids are assigned and rows read back in order
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.NotEqual(t, ids[0], ids[1])

	rows, err := store.Select(ctx, "grades", generic.Key{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, ids[0], rows[0].ID())
	assert.Equal(t, "s1", rows[0]["student_id"])
	assert.True(t, generic.AsDecimal(rows[1]["score"]).Equal(generic.Score(72.5)))
	assert.Nil(t, rows[0]["notes"])
}

func TestStore_InsertIsAllOrNothing(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Second and third rows collide on the natural key.
	_, err := store.Insert(ctx, "grades", []generic.Row{gradeRow("s1", 1), gradeRow("s2", 2), gradeRow("s2", 3)})

	require.Error(t, err)
	assert.True(t, errors.Is(err, generic.ErrConflict))
	rows, err := store.Select(ctx, "grades", generic.Key{})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestStore_UpdateByKey(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ids, err := store.Insert(ctx, "grades", []generic.Row{gradeRow("s1", 50)})
	require.NoError(t, err)

	n, err := store.Update(ctx, "grades", generic.Row{"score": generic.Score(75)}, generic.ByID(ids[0]))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = store.Update(ctx, "grades", generic.Row{"score": generic.Score(1)}, generic.ByID("missing"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	rows, _ := store.Select(ctx, "grades", generic.ByID(ids[0]))
	require.Len(t, rows, 1)
	assert.Equal(t, "75", rows[0]["score"])
}

func TestStore_UpsertAttendance(t *testing.T) {
	// GIVEN: An attendance row for s1 on a day
	store := newTestStore(t)
	ctx := context.Background()
	key := []string{"student_id", "date"}

	first := generic.Row{"student_id": "s1", "date": "2024-08-12", "status": "present", "created_by": "t1"}
	require.NoError(t, store.UpsertOnConflict(ctx, "attendance_records", []generic.Row{first}, key))
	before, _ := store.Select(ctx, "attendance_records", generic.Key{})
	require.Len(t, before, 1)

	// WHEN: Upserting the same key with a new status, plus a new student
	second := generic.Row{"student_id": "s1", "date": "2024-08-12", "status": "sick", "created_by": "t2"}
	other := generic.Row{"student_id": "s2", "date": "2024-08-12", "status": "absent"}
	require.NoError(t, store.UpsertOnConflict(ctx, "attendance_records", []generic.Row{second, other}, key))

	// THEN: One row per student, s1 replaced in place
	rows, err := store.Select(ctx, "attendance_records", generic.Key{"student_id": "s1"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "sick", rows[0]["status"])
	assert.Equal(t, before[0].ID(), rows[0].ID())
	assert.Equal(t, "t1", rows[0]["created_by"])

	all, _ := store.Select(ctx, "attendance_records", generic.Key{})
	assert.Len(t, all, 2)
}

func TestStore_GuardedStatusUpdate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ids, err := store.Insert(ctx, "permission_requests", []generic.Row{{
		"student_id": "s1", "start_date": "2024-08-12", "end_date": "2024-08-13", "status": "pending",
	}})
	require.NoError(t, err)

	wf := generic.NewStatusWorkflow(store, "permission_requests", "student_id",
		generic.FixedClock(time.Date(2024, 8, 12, 10, 0, 0, 0, time.UTC)), nil)

	got, err := wf.Transition(ctx, ids[0], generic.StatusApproved, "admin", "")
	require.NoError(t, err)
	assert.Equal(t, generic.StudentID("s1"), got.TargetID)

	_, err = wf.Transition(ctx, ids[0], generic.StatusRejected, "admin", "late")
	assert.ErrorIs(t, err, generic.ErrInvalidTransition)

	rows, _ := store.Select(ctx, "permission_requests", generic.ByID(ids[0]))
	assert.Equal(t, "approved", rows[0]["status"])
	assert.Equal(t, "2024-08-12T10:00:00Z", rows[0]["approved_at"])
	assert.Nil(t, rows[0]["rejection_reason"])
}

func TestStore_DeleteAndReset(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	_, err := store.Insert(ctx, "students", []generic.Row{
		{"name": "Aisyah", "class_id": "7A", "status": "active"},
		{"name": "Bima", "class_id": "7B", "status": "active"},
	})
	require.NoError(t, err)

	n, err := store.Delete(ctx, "students", generic.Key{"class_id": "7B"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, store.Reset(ctx))
	rows, _ := store.Select(ctx, "students", generic.Key{})
	assert.Empty(t, rows)
}

func TestStore_UnknownTable(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Insert(context.Background(), "sqlite_master", []generic.Row{{"name": "x"}})
	assert.ErrorIs(t, err, generic.ErrUnknownTable)
}

func TestStore_ReconcileEndToEnd(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ids, err := store.Insert(ctx, "grades", []generic.Row{gradeRow("s2", 60)})
	require.NoError(t, err)

	rec := generic.NewReconciler(store, nil, nil, nil)
	spec := generic.EntitySpec{Entity: generic.EntityGrade, Table: "grades", TargetColumn: "student_id"}
	out, err := rec.Reconcile(ctx, spec, generic.CohortBatch{
		Entries: []generic.BatchEntry{
			{TargetID: "s1", Payload: generic.Row{"score": generic.Score(90)}},
			{TargetID: "s2", ExistingRecordID: ids[0], Payload: generic.Row{"score": generic.Score(75)}},
		},
		Cohort: generic.SubjectTerm{SubjectID: "Math", Semester: "1", AcademicYear: "2024"},
	})

	require.NoError(t, err)
	assert.Equal(t, 1, out.Inserted)
	assert.Equal(t, 1, out.Updated)
	rows, _ := store.Select(ctx, "grades", generic.Key{"student_id": "s1"})
	require.Len(t, rows, 1)
	assert.Nil(t, rows[0]["created_by"], "unknown actor is stored as NULL")
}

func TestStore_UpsertReplaceMatchesMemory(t *testing.T) {
	key := []string{"student_id", "date"}
	day := "2024-08-12"
	late := generic.Row{"date": day, "status": "present", "notes": "late"}

	tests := []struct {
		name   string
		upsert []generic.Row
		want   map[string]any // student -> notes
	}{
		{
			name:   "no row carries notes",
			upsert: []generic.Row{{"student_id": "s1", "date": day, "status": "sick"}},
			want:   map[string]any{"s1": "late", "s2": "late"},
		},
		{
			name: "a sibling carries notes",
			upsert: []generic.Row{
				{"student_id": "s2", "date": day, "status": "sick"},
				{"student_id": "s3", "date": day, "status": "absent", "notes": "flu"},
			},
			want: map[string]any{"s1": "late", "s2": nil, "s3": "flu"},
		},
		{
			name:   "explicit nil",
			upsert: []generic.Row{{"student_id": "s1", "date": day, "status": "present", "notes": nil}},
			want:   map[string]any{"s1": nil, "s2": "late"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gateways := map[string]generic.Gateway{
				"sqlite": newTestStore(t),
				"memory": memstore.NewMemory(),
			}
			for name, gw := range gateways {
				// GIVEN: s1 and s2 recorded late
				ctx := context.Background()
				seed := []generic.Row{late.With(generic.Row{"student_id": "s1"}), late.With(generic.Row{"student_id": "s2"})}
				require.NoError(t, gw.UpsertOnConflict(ctx, "attendance_records", seed, key), name)

				// WHEN: The batch is upserted
				require.NoError(t, gw.UpsertOnConflict(ctx, "attendance_records", tt.upsert, key), name)

				// THEN: Both gateways hold the same notes
				for student, notes := range tt.want {
					rows, err := gw.Select(ctx, "attendance_records", generic.Key{"student_id": student})
					require.NoError(t, err, name)
					require.Len(t, rows, 1, "%s %s", name, student)
					assert.Equal(t, notes, rows[0]["notes"], "%s %s", name, student)
				}
			}
		})
	}
}
