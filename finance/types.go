/*
Package finance reconciles student billing.

PURPOSE:
  Bulk payment entry for a billing period (category + month + year), and
  bulk generation of the period's bills for a class roster.

PAYMENT STATUS:
  unpaid:  nothing received; paid_amount is 0
  partial: 0 < paid_amount < amount
  paid:    paid_amount == amount; paid_at is stamped

  A submitted status must agree with the amounts. When the status is left
  empty it is derived from them.

GENERATION:
  GeneratePayments reads the active students of a class and the payments
  already recorded for the period, and inserts an unpaid bill for every
  student not yet billed. Re-running it for the same period is a no-op.

SEE ALSO:
  - service.go: Submission and generation
  - scheduler.go: Monthly generation in the background
*/
package finance

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/records-engine/generic"
	"github.com/warp/records-engine/roster"
)

const (
	TablePayments = "payments"
	TableStudents = roster.Table
)

// =============================================================================
// PAYMENT STATUS
// =============================================================================

type PaymentStatus string

const (
	StatusUnpaid  PaymentStatus = "unpaid"
	StatusPartial PaymentStatus = "partial"
	StatusPaid    PaymentStatus = "paid"
)

// DeriveStatus computes the status implied by the amounts.
func DeriveStatus(amount, paid decimal.Decimal) PaymentStatus {
	switch {
	case paid.LessThanOrEqual(decimal.Zero):
		return StatusUnpaid
	case paid.LessThan(amount):
		return StatusPartial
	default:
		return StatusPaid
	}
}

// =============================================================================
// ENTRIES
// =============================================================================

// PaymentEntry is one line of a bulk payment form. PaidAmount nil means
// nothing received.
type PaymentEntry struct {
	StudentID        generic.StudentID `json:"student_id" yaml:"student_id"`
	ExistingRecordID generic.RecordID  `json:"existing_record_id,omitempty" yaml:"existing_record_id,omitempty"`
	Amount           decimal.Decimal   `json:"amount" yaml:"amount"`
	PaidAmount       *decimal.Decimal  `json:"paid_amount,omitempty" yaml:"paid_amount,omitempty"`
	Status           PaymentStatus     `json:"status,omitempty" yaml:"status,omitempty"`
	Notes            *string           `json:"notes,omitempty" yaml:"notes,omitempty"`
}

func (e PaymentEntry) paid() decimal.Decimal {
	if e.PaidAmount == nil {
		return decimal.Zero
	}
	return *e.PaidAmount
}

// resolvedStatus returns the submitted status, or the derived one.
func (e PaymentEntry) resolvedStatus() PaymentStatus {
	if e.Status != "" {
		return e.Status
	}
	return DeriveStatus(e.Amount, e.paid())
}

// PaymentSheet is a bulk payment submission for one billing period.
type PaymentSheet struct {
	Period  generic.BillingPeriod
	Entries []PaymentEntry
	Actor   generic.ActorID
}

// Batch converts the sheet; now stamps paid_at on settled entries and
// every other entry clears it.
func (s PaymentSheet) Batch(now string) generic.CohortBatch {
	entries := make([]generic.BatchEntry, len(s.Entries))
	for i, e := range s.Entries {
		status := e.resolvedStatus()
		payload := generic.Row{
			"amount":      e.Amount,
			"paid_amount": e.paid(),
			"status":      string(status),
			"paid_at":     nil,
		}
		if status == StatusPaid {
			payload["paid_at"] = now
		}
		entries[i] = generic.BatchEntry{
			TargetID:         e.StudentID,
			ExistingRecordID: e.ExistingRecordID,
			Payload:          payload,
			Notes:            e.Notes,
		}
	}
	return generic.CohortBatch{Entries: entries, Cohort: s.Period, ActorID: s.Actor}
}

// =============================================================================
// ENTITY SPEC
// =============================================================================

// PaymentSpec describes payments. strategy may be empty (matched).
func PaymentSpec(strategy generic.Strategy) generic.EntitySpec {
	return generic.EntitySpec{
		Entity:        generic.EntityPayment,
		Table:         TablePayments,
		TargetColumn:  "student_id",
		Strategy:      strategy,
		ConflictKey:   []string{"student_id", "category", "month", "year"},
		Optional:      []string{"paid_at"},
		ValidateEntry: validatePayment,
	}
}

func validatePayment(e generic.BatchEntry) error {
	amount := generic.AsDecimal(e.Payload["amount"])
	paid := generic.AsDecimal(e.Payload["paid_amount"])

	if amount.IsNegative() {
		return generic.Invalid("amount", "amount cannot be negative")
	}
	if paid.IsNegative() {
		return generic.Invalid("paid_amount", "paid amount cannot be negative")
	}
	if paid.GreaterThan(amount) {
		return generic.Invalid("paid_amount", "paid amount exceeds the amount due")
	}
	if err := generic.RequireOneOf(e.Payload, "status",
		string(StatusUnpaid), string(StatusPartial), string(StatusPaid)); err != nil {
		return err
	}

	status := PaymentStatus(generic.AsString(e.Payload["status"]))
	if want := DeriveStatus(amount, paid); status != want {
		return generic.Invalid("status",
			fmt.Sprintf("status %s does not match paid amount %s of %s", status, paid, amount))
	}
	return nil
}
