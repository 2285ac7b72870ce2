package generic_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/records-engine/generic"
)

func TestPartition_RoutesByExistingRecordID(t *testing.T) {
	notes := "remedial"
	batch := generic.CohortBatch{
		Entries: []generic.BatchEntry{
			scoreEntry("s1", "", 90),
			scoreEntry("s2", "g77", 75),
			{TargetID: "s3", Payload: generic.Row{"score": generic.Score(60)}, Notes: &notes},
		},
		Cohort:  mathTerm(),
		ActorID: "teacher-1",
	}

	plan := generic.NewRecordMatcher(generic.FixedClock(fixedNow)).Partition(gradeSpec(), batch)

	require.Len(t, plan.Creates, 2)
	require.Len(t, plan.Updates, 1)

	first := plan.Creates[0]
	assert.Equal(t, "s1", first["student_id"])
	assert.Equal(t, "Math", first["subject_id"])
	assert.Equal(t, "1", first["semester"])
	assert.Equal(t, "2024", first["academic_year"])
	assert.Equal(t, "teacher-1", first["created_by"])
	assert.Equal(t, "2024-08-12T09:30:00Z", first["created_at"])
	_, hasID := first["id"]
	assert.False(t, hasID, "ids are assigned by the store")

	assert.Equal(t, "remedial", plan.Creates[1]["notes"])

	upd := plan.Updates[0]
	assert.Equal(t, generic.RecordID("g77"), upd.ID)
	assert.Equal(t, generic.StudentID("s2"), upd.TargetID)
	assert.Contains(t, upd.Patch, "score")
	assert.NotContains(t, upd.Patch, "subject_id", "updates carry only the mutable fields")
	assert.NotContains(t, upd.Patch, "created_by")
}

func TestPartition_UnknownActorIsNull(t *testing.T) {
	batch := generic.CohortBatch{
		Entries: []generic.BatchEntry{scoreEntry("s1", "", 90)},
		Cohort:  mathTerm(),
	}

	plan := generic.NewRecordMatcher(nil).Partition(gradeSpec(), batch)

	require.Len(t, plan.Creates, 1)
	v, ok := plan.Creates[0]["created_by"]
	assert.True(t, ok)
	assert.Nil(t, v)
}

func TestPartition_DoesNotMutatePayload(t *testing.T) {
	payload := generic.Row{"score": generic.Score(10)}
	batch := generic.CohortBatch{
		Entries: []generic.BatchEntry{{TargetID: "s1", Payload: payload}},
		Cohort:  mathTerm(),
	}

	generic.NewRecordMatcher(nil).Partition(gradeSpec(), batch)

	assert.Len(t, payload, 1)
}
