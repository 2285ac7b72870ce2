package generic

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// MaxNotesLength bounds the free-text notes attached to an entry.
const MaxNotesLength = 500

// ValidateBatch runs the checks shared by every batch feature. It returns
// the first problem found; nothing has been written when it fails.
//
// An empty ActorID is accepted: identity lookup may fail and rows are then
// stamped with a NULL creator.
func ValidateBatch(spec EntitySpec, batch CohortBatch) error {
	if len(batch.Entries) == 0 {
		return Invalid("entries", "batch has no entries")
	}
	if batch.Cohort == nil {
		return Invalid("cohort", "cohort is required")
	}
	if err := batch.Cohort.Validate(); err != nil {
		return err
	}
	if spec.Strategy == StrategyUpsert && len(spec.ConflictKey) == 0 {
		return fmt.Errorf("entity %s: upsert strategy without a conflict key", spec.Entity)
	}

	seen := make(map[StudentID]int, len(batch.Entries))
	for i, e := range batch.Entries {
		if strings.TrimSpace(string(e.TargetID)) == "" {
			return InvalidEntry(i, "target_id", "student is required")
		}
		if first, dup := seen[e.TargetID]; dup {
			return InvalidEntry(i, "target_id",
				fmt.Sprintf("student %s already appears in entry %d", e.TargetID, first+1))
		}
		seen[e.TargetID] = i

		if e.Notes != nil && utf8.RuneCountInString(*e.Notes) > MaxNotesLength {
			return InvalidEntry(i, "notes", fmt.Sprintf("notes exceed %d characters", MaxNotesLength))
		}
		if spec.ValidateEntry != nil {
			if err := spec.ValidateEntry(e); err != nil {
				return atEntry(i, err)
			}
		}
	}
	return nil
}

// atEntry stamps the entry index onto a payload validator's error.
func atEntry(i int, err error) error {
	var ve *ValidationError
	if errors.As(err, &ve) {
		stamped := *ve
		stamped.Index = i
		return &stamped
	}
	return InvalidEntry(i, "payload", err.Error())
}

// =============================================================================
// PAYLOAD VALIDATORS - building blocks for EntitySpec.ValidateEntry
// =============================================================================

// RequireDecimalRange checks that column holds a decimal within [min, max].
func RequireDecimalRange(row Row, column string, min, max decimal.Decimal) error {
	v, ok := row[column]
	if !ok || v == nil {
		return Invalid(column, "value is required")
	}
	d, ok := v.(decimal.Decimal)
	if !ok {
		return Invalid(column, "value must be a number")
	}
	if d.LessThan(min) || d.GreaterThan(max) {
		return Invalid(column, fmt.Sprintf("value must be between %s and %s", min, max))
	}
	return nil
}

// RequireOneOf checks that column holds one of the allowed strings.
func RequireOneOf(row Row, column string, allowed ...string) error {
	s := AsString(row[column])
	for _, a := range allowed {
		if s == a {
			return nil
		}
	}
	return Invalid(column, fmt.Sprintf("must be one of %s", strings.Join(allowed, ", ")))
}
