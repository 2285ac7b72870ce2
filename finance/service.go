package finance

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/warp/records-engine/generic"
)

// Service handles bulk payment entry and generation.
type Service struct {
	Reconciler *generic.Reconciler
	Gateway    generic.Gateway
	Clock      generic.Clock
	Logger     *slog.Logger

	// Strategy for submitted payment sheets; empty means matched.
	Strategy generic.Strategy
}

func NewService(rec *generic.Reconciler, gw generic.Gateway, clock generic.Clock, logger *slog.Logger) *Service {
	if clock == nil {
		clock = generic.SystemClock
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{Reconciler: rec, Gateway: gw, Clock: clock, Logger: logger}
}

// SubmitPayments reconciles a bulk payment sheet.
func (s *Service) SubmitPayments(ctx context.Context, sheet PaymentSheet) (generic.Outcome, error) {
	now := generic.Timestamp(s.Clock())
	return s.Reconciler.Reconcile(ctx, PaymentSpec(s.Strategy), sheet.Batch(now))
}

// =============================================================================
// GENERATION
// =============================================================================

// GenerateRequest bills every active student of a class for one period.
// An empty ClassID bills the whole active roster.
type GenerateRequest struct {
	ClassID string
	Period  generic.BillingPeriod
	Amount  decimal.Decimal
	Actor   generic.ActorID
}

// GenerateResult reports what generation did.
type GenerateResult struct {
	Outcome generic.Outcome
	Billed  []generic.StudentID
	Skipped int // already billed for the period
}

// GeneratePayments inserts an unpaid bill for every student of the class
// not yet billed for the period.
func (s *Service) GeneratePayments(ctx context.Context, req GenerateRequest) (GenerateResult, error) {
	var res GenerateResult
	if err := req.Period.Validate(); err != nil {
		return res, err
	}
	if !req.Amount.IsPositive() {
		return res, generic.Invalid("amount", "amount must be positive")
	}

	rosterKey := generic.Key{"status": "active"}
	if req.ClassID != "" {
		rosterKey["class_id"] = req.ClassID
	}
	students, err := s.Gateway.Select(ctx, TableStudents, rosterKey)
	if err != nil {
		return res, fmt.Errorf("failed to load roster: %w", err)
	}

	existing, err := s.Gateway.Select(ctx, TablePayments, generic.Key{
		"category": req.Period.Category,
		"month":    req.Period.Month,
		"year":     req.Period.Year,
	})
	if err != nil {
		return res, fmt.Errorf("failed to load existing payments: %w", err)
	}
	billed := make(map[generic.StudentID]bool, len(existing))
	for _, p := range existing {
		billed[generic.StudentID(generic.AsString(p["student_id"]))] = true
	}

	sheet := PaymentSheet{Period: req.Period, Actor: req.Actor}
	for _, st := range students {
		id := st.ID()
		if billed[generic.StudentID(id)] {
			res.Skipped++
			continue
		}
		sheet.Entries = append(sheet.Entries, PaymentEntry{
			StudentID: generic.StudentID(id),
			Amount:    req.Amount,
			Status:    StatusUnpaid,
		})
		res.Billed = append(res.Billed, generic.StudentID(id))
	}

	if len(sheet.Entries) == 0 {
		s.Logger.Info("payments_generation_skipped", "period", req.Period.String(), "class", req.ClassID, "skipped", res.Skipped)
		return res, nil
	}

	res.Outcome, err = s.SubmitPayments(ctx, sheet)
	if err != nil {
		return res, err
	}
	s.Logger.Info("payments_generated",
		"period", req.Period.String(),
		"class", req.ClassID,
		"billed", len(res.Billed),
		"skipped", res.Skipped,
	)
	return res, nil
}
