package academic

import (
	"context"

	"github.com/warp/records-engine/generic"
)

// Service submits grade sheets through the shared reconciler.
type Service struct {
	Reconciler *generic.Reconciler

	// Strategies per entity; empty means matched.
	GradeStrategy   generic.Strategy
	TahfidzStrategy generic.Strategy
}

func NewService(rec *generic.Reconciler) *Service {
	return &Service{Reconciler: rec}
}

// SubmitGrades reconciles a subject grade sheet.
func (s *Service) SubmitGrades(ctx context.Context, sheet GradeSheet) (generic.Outcome, error) {
	return s.Reconciler.Reconcile(ctx, GradeSpec(s.GradeStrategy), sheet.Batch())
}

// SubmitTahfidz reconciles a tahfidz evaluation sheet.
func (s *Service) SubmitTahfidz(ctx context.Context, sheet TahfidzSheet) (generic.Outcome, error) {
	return s.Reconciler.Reconcile(ctx, TahfidzSpec(s.TahfidzStrategy), sheet.Batch())
}
