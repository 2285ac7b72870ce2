package generic

// =============================================================================
// RECORD MATCHER - create vs update routing
// =============================================================================

// RecordMatcher partitions a batch into a create-set and an update-set
// using the entry-local ExistingRecordID marker. It never reads the store:
// the client is trusted to report which entries already exist.
type RecordMatcher struct {
	Clock Clock
}

func NewRecordMatcher(clock Clock) *RecordMatcher {
	if clock == nil {
		clock = SystemClock
	}
	return &RecordMatcher{Clock: clock}
}

// Partition routes every entry, preserving submission order in both sets.
//
// Update patches carry only the payload, notes and updated_at. Created rows
// additionally carry the cohort columns, the target column and the actor as
// created_by (NULL when the actor is unknown). Ids are left to the store.
func (m *RecordMatcher) Partition(spec EntitySpec, batch CohortBatch) WritePlan {
	now := Timestamp(m.Clock())
	var plan WritePlan

	for _, e := range batch.Entries {
		patch := e.Payload.Clone()
		if e.Notes != nil {
			patch[ColumnNotes] = *e.Notes
		}
		patch[ColumnUpdatedAt] = now

		if e.IsUpdate() {
			plan.Updates = append(plan.Updates, UpdateCommand{
				ID:       e.ExistingRecordID,
				TargetID: e.TargetID,
				Patch:    patch,
			})
			continue
		}

		row := patch.With(batch.Cohort.Columns())
		row[spec.TargetColumn] = string(e.TargetID)
		row[ColumnCreatedBy] = actorValue(batch.ActorID)
		row[ColumnCreatedAt] = now
		plan.Creates = append(plan.Creates, row)
	}
	return plan
}

// actorValue maps an unknown actor to NULL.
func actorValue(actor ActorID) any {
	if actor == "" {
		return nil
	}
	return string(actor)
}
