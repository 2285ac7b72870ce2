package generic

import (
	"context"
	"log/slog"
	"sort"
	"strings"
)

// =============================================================================
// INVALIDATION TARGETS
// =============================================================================

// ViewKey names a cached view path. Per-student views use a {id} segment.
type ViewKey string

const (
	ViewGrades             ViewKey = "/grades"
	ViewTahfidz            ViewKey = "/tahfidz"
	ViewStudentDetail      ViewKey = "/students/{id}"
	ViewPayments           ViewKey = "/payments"
	ViewStudentPayments    ViewKey = "/students/{id}/payments"
	ViewDashboard          ViewKey = "/dashboard"
	ViewAttendance         ViewKey = "/attendance"
	ViewPermissions        ViewKey = "/permissions"
	ViewStudentPermissions ViewKey = "/students/{id}/permissions"
)

// PerStudent reports whether the view is parameterised by a student id.
func (v ViewKey) PerStudent() bool {
	return strings.Contains(string(v), "{id}")
}

// InvalidationTarget is one cached view to mark stale. Param is the
// student id for per-student views and empty otherwise.
type InvalidationTarget struct {
	View  ViewKey
	Param string
}

// String renders the concrete view path, e.g. "/students/s1/payments".
func (t InvalidationTarget) String() string {
	if t.Param == "" {
		return string(t.View)
	}
	return strings.Replace(string(t.View), "{id}", t.Param, 1)
}

// =============================================================================
// INVALIDATION COORDINATOR - declarative entity -> views mapping
// =============================================================================

// viewMap is the single source of truth for which writes stale which views.
// The dashboard appears for payments and permissions because it surfaces
// aggregate counts of both.
var viewMap = map[EntityType][]ViewKey{
	EntityGrade:        {ViewGrades, ViewStudentDetail},
	EntityTahfidzGrade: {ViewTahfidz, ViewStudentDetail},
	EntityPayment:      {ViewPayments, ViewStudentPayments, ViewDashboard},
	EntityAttendance:   {ViewAttendance},
	EntityPermission:   {ViewPermissions, ViewStudentPermissions, ViewDashboard},
}

// ViewsFor returns the views mapped to an entity type.
func ViewsFor(entity EntityType) []ViewKey {
	return append([]ViewKey(nil), viewMap[entity]...)
}

type InvalidationCoordinator struct {
	Marker StaleMarker
	Logger *slog.Logger
}

func NewInvalidationCoordinator(marker StaleMarker, logger *slog.Logger) *InvalidationCoordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &InvalidationCoordinator{Marker: marker, Logger: logger}
}

// Targets computes the stale views for a write touching the given students.
// The result is de-duplicated and sorted by rendered path.
func Targets(entity EntityType, students []StudentID) []InvalidationTarget {
	seen := make(map[string]bool)
	var out []InvalidationTarget
	add := func(t InvalidationTarget) {
		if seen[t.String()] {
			return
		}
		seen[t.String()] = true
		out = append(out, t)
	}

	for _, view := range viewMap[entity] {
		if !view.PerStudent() {
			add(InvalidationTarget{View: view})
			continue
		}
		for _, s := range students {
			if s == "" {
				continue
			}
			add(InvalidationTarget{View: view, Param: string(s)})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Invalidate computes the targets and hands them to the marker. A write
// that touched no student invalidates nothing. A marker failure is logged
// and swallowed.
func (ic *InvalidationCoordinator) Invalidate(ctx context.Context, entity EntityType, students []StudentID) []InvalidationTarget {
	if len(students) == 0 {
		return nil
	}
	targets := Targets(entity, students)
	if len(targets) == 0 || ic.Marker == nil {
		return targets
	}
	if err := ic.Marker.MarkStale(ctx, targets); err != nil {
		ic.Logger.Error("invalidation_failed", "entity", entity, "targets", len(targets), "error", err)
		return targets
	}
	ic.Logger.Debug("views_invalidated", "entity", entity, "targets", len(targets))
	return targets
}
