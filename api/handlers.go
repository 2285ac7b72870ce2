/*
handlers.go - HTTP API handlers for the records engine

PURPOSE:
  Exposes batch record entry, bill generation, leave requests and exports
  via REST API. Handles HTTP request/response, JSON serialization, and
  delegates to the domain services.

ENDPOINTS:
  Batches (body: factory.SubmissionDoc, JSON or YAML):
    POST   /api/grades/batch               Subject grade sheet
    POST   /api/tahfidz-grades/batch       Tahfidz evaluation sheet
    POST   /api/payments/bulk              Payment sheet
    POST   /api/attendance                 Daily attendance (always upsert)

  Payments:
    POST   /api/payments/generate          Bill a class for a month

  Permissions:
    POST   /api/permissions                File a leave request
    GET    /api/permissions?student_id=    Requests of one student
    GET    /api/permissions/pending        Requests awaiting a decision
    GET    /api/permissions/{id}           One request
    POST   /api/permissions/{id}/approve   Approve (pending only)
    POST   /api/permissions/{id}/reject    Reject with optional reason

  Roster (body: list of students, JSON or YAML):
    POST   /api/students/import            Insert or replace students by id
    GET    /api/students?class_id=         Students of a class

  Export and views:
    GET    /api/export/{entity}            CSV, filters as query params
    GET    /api/views/stale                Views awaiting a refresh
    POST   /api/views/clear                Mark a view refreshed
    GET    /api/health                     Store and redis connectivity

REQUEST FLOW:
  1. Resolve actor (Identity) and language (?lang or Accept-Language)
  2. Decode and convert the body
  3. Call the domain service
  4. Serialize a localized response
  5. Map errors onto status codes

ERROR HANDLING:
  - 400: Validation errors, malformed body (nothing was written)
  - 404: Record not found
  - 409: Leave request already decided
  - 500: Write failures; the body carries the counts of writes kept

SEE ALSO:
  - dto.go: Request/response data structures
  - identity.go: Actor resolution
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"

	"github.com/warp/records-engine/app"
	"github.com/warp/records-engine/cache"
	"github.com/warp/records-engine/export"
	"github.com/warp/records-engine/factory"
	"github.com/warp/records-engine/finance"
	"github.com/warp/records-engine/generic"
	"github.com/warp/records-engine/permission"
	"github.com/warp/records-engine/roster"
)

const maxBodyBytes = 1 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Factory    *factory.SubmissionFactory
	Services   factory.Services
	Finance    *finance.Service
	Permission *permission.Service
	Roster     *roster.Service
	Export     *export.Service
	Views      *cache.Memory
	Scenarios  ScenarioLoader
	Health     func(ctx context.Context) error

	Identity     Identity
	RequireActor bool // reject writes without an actor with 401
	Language     language.Tag
	Logger       *slog.Logger

	scenario scenarioState
}

// NewHandler creates a handler over an assembled engine.
func NewHandler(a *app.App, identity Identity) *Handler {
	if identity == nil {
		identity = HeaderIdentity{}
	}
	return &Handler{
		Factory:      a.Factory,
		Services:     a.Services(),
		Finance:      a.Finance,
		Permission:   a.Permission,
		Roster:       a.Roster,
		Export:       a.Export,
		Views:        a.Views,
		Scenarios:    a,
		Health:       a.Health,
		Identity:     identity,
		RequireActor: a.Config.Server.RequireActor,
		Language:     export.Parse(a.Config.Server.Language),
		Logger:       a.Logger,
	}
}

func (h *Handler) lang(r *http.Request) language.Tag {
	if q := r.URL.Query().Get("lang"); q != "" {
		return export.Negotiate(q, h.Language)
	}
	return export.Negotiate(r.Header.Get("Accept-Language"), h.Language)
}

// RequireActorMiddleware enforces RequireActor on mutating requests.
func (h *Handler) RequireActorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.RequireActor && r.Method == http.MethodPost && h.Identity.Actor(r) == "" {
			writeError(w, http.StatusUnauthorized, export.Printer(h.lang(r)).Sprintf(export.MsgUnauthorized), nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// BATCH HANDLERS
// =============================================================================

// SubmitBatch returns the handler for one batch entity.
// POST /api/grades/batch, /api/tahfidz-grades/batch, /api/payments/bulk, /api/attendance
func (h *Handler) SubmitBatch(entity generic.EntityType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := export.Printer(h.lang(r))

		data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			writeError(w, http.StatusBadRequest, p.Sprintf(export.MsgValidationFailed), err)
			return
		}

		sub, err := h.Factory.ParseFor(entity, data, bodyFormat(r))
		if err != nil {
			h.writeDomainError(w, p, nil, err)
			return
		}

		sub.WithActor(h.Identity.Actor(r))
		out, err := sub.Submit(r.Context(), h.Services)
		if err != nil {
			h.writeDomainError(w, p, &out, err)
			return
		}

		msg := p.Sprintf(export.MsgBatchSaved, out.Inserted, out.Updated)
		if out.Strategy == generic.StrategyUpsert {
			msg = p.Sprintf(export.MsgBatchUpserted, out.Upserted)
		}
		writeJSON(w, http.StatusOK, toBatchResponse(out, msg))
	}
}

func bodyFormat(r *http.Request) factory.Format {
	if strings.Contains(r.Header.Get("Content-Type"), "yaml") {
		return factory.FormatYAML
	}
	return factory.FormatJSON
}

// =============================================================================
// PAYMENT GENERATION
// =============================================================================

// GeneratePayments bills every active student of a class for one month.
// POST /api/payments/generate
func (h *Handler) GeneratePayments(w http.ResponseWriter, r *http.Request) {
	p := export.Printer(h.lang(r))

	var req GeneratePaymentsRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, p.Sprintf(export.MsgValidationFailed), err)
		return
	}

	res, err := h.Finance.GeneratePayments(r.Context(), finance.GenerateRequest{
		ClassID: req.ClassID,
		Period: generic.BillingPeriod{
			Category: req.Category,
			Month:    req.Month,
			Year:     req.Year,
		},
		Amount: req.Amount,
		Actor:  h.Identity.Actor(r),
	})
	if err != nil {
		h.writeDomainError(w, p, &res.Outcome, err)
		return
	}

	writeJSON(w, http.StatusOK, GeneratePaymentsResponse{
		BilledCount:  len(res.Billed),
		SkippedCount: res.Skipped,
		Message:      p.Sprintf(export.MsgPaymentsGenerated, len(res.Billed), res.Skipped),
	})
}

// =============================================================================
// PERMISSION HANDLERS
// =============================================================================

// CreatePermission files a pending leave request.
// POST /api/permissions
func (h *Handler) CreatePermission(w http.ResponseWriter, r *http.Request) {
	p := export.Printer(h.lang(r))

	var req CreatePermissionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, p.Sprintf(export.MsgValidationFailed), err)
		return
	}

	start, err := parseOptionalDate("start_date", req.StartDate)
	if err != nil {
		h.writeDomainError(w, p, nil, err)
		return
	}
	end, err := parseOptionalDate("end_date", req.EndDate)
	if err != nil {
		h.writeDomainError(w, p, nil, err)
		return
	}

	perm, err := h.Permission.Create(r.Context(), permission.Request{
		StudentID: generic.StudentID(req.StudentID),
		StartDate: start,
		EndDate:   end,
		Reason:    req.Reason,
		Actor:     h.Identity.Actor(r),
	})
	if err != nil {
		h.writeDomainError(w, p, nil, err)
		return
	}

	writeJSON(w, http.StatusCreated, PermissionResponse{
		Permission: perm,
		Message:    p.Sprintf(export.MsgPermissionCreated),
	})
}

func parseOptionalDate(field, s string) (generic.Date, error) {
	if s == "" {
		return generic.Date{}, nil
	}
	d, err := generic.ParseDate(s)
	if err != nil {
		return generic.Date{}, generic.Invalid(field, "date must be formatted YYYY-MM-DD")
	}
	return d, nil
}

// ListPermissions returns the requests of one student.
// GET /api/permissions?student_id=
func (h *Handler) ListPermissions(w http.ResponseWriter, r *http.Request) {
	p := export.Printer(h.lang(r))

	student := r.URL.Query().Get("student_id")
	if student == "" {
		h.writeDomainError(w, p, nil, generic.Invalid("student_id", "student is required"))
		return
	}
	perms, err := h.Permission.ForStudent(r.Context(), generic.StudentID(student))
	if err != nil {
		h.writeDomainError(w, p, nil, err)
		return
	}
	writeJSON(w, http.StatusOK, PendingPermissionsResponse{Permissions: nonNil(perms)})
}

// ListPendingPermissions returns every request awaiting a decision.
// GET /api/permissions/pending
func (h *Handler) ListPendingPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.Permission.ListPending(r.Context())
	if err != nil {
		h.writeDomainError(w, export.Printer(h.lang(r)), nil, err)
		return
	}
	writeJSON(w, http.StatusOK, PendingPermissionsResponse{Permissions: nonNil(perms)})
}

// GetPermission returns one request.
// GET /api/permissions/{id}
func (h *Handler) GetPermission(w http.ResponseWriter, r *http.Request) {
	perm, err := h.Permission.Get(r.Context(), generic.RecordID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, export.Printer(h.lang(r)), nil, err)
		return
	}
	writeJSON(w, http.StatusOK, perm)
}

// ApprovePermission approves a pending request.
// POST /api/permissions/{id}/approve
func (h *Handler) ApprovePermission(w http.ResponseWriter, r *http.Request) {
	lang := h.lang(r)
	p := export.Printer(lang)
	id := generic.RecordID(chi.URLParam(r, "id"))

	t, err := h.Permission.Approve(r.Context(), id, h.Identity.Actor(r))
	if err != nil {
		h.writeDomainError(w, p, nil, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransitionResponse(t, p, lang))
}

// RejectPermission rejects a pending request. The body is optional.
// POST /api/permissions/{id}/reject
func (h *Handler) RejectPermission(w http.ResponseWriter, r *http.Request) {
	lang := h.lang(r)
	p := export.Printer(lang)
	id := generic.RecordID(chi.URLParam(r, "id"))

	var req RejectPermissionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, p.Sprintf(export.MsgValidationFailed), err)
		return
	}

	t, err := h.Permission.Reject(r.Context(), id, h.Identity.Actor(r), req.Reason)
	if err != nil {
		h.writeDomainError(w, p, nil, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransitionResponse(t, p, lang))
}

func toTransitionResponse(t generic.Transitioned, p *message.Printer, lang language.Tag) TransitionResponse {
	status := strings.ToLower(export.Status(string(t.Status), lang))
	return TransitionResponse{
		ID:         string(t.ID),
		StudentID:  string(t.TargetID),
		Status:     string(t.Status),
		ApprovedBy: string(t.ApprovedBy),
		ApprovedAt: t.ApprovedAt,
		Message:    p.Sprintf(export.MsgPermissionDecided, status),
	}
}

func nonNil(perms []permission.Permission) []permission.Permission {
	if perms == nil {
		return []permission.Permission{}
	}
	return perms
}

// =============================================================================
// ROSTER HANDLERS
// =============================================================================

// ImportStudents inserts or replaces roster entries.
// POST /api/students/import
func (h *Handler) ImportStudents(w http.ResponseWriter, r *http.Request) {
	p := export.Printer(h.lang(r))

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, p.Sprintf(export.MsgValidationFailed), err)
		return
	}
	var students []roster.Student
	if bodyFormat(r) == factory.FormatYAML {
		err = yaml.Unmarshal(data, &students)
	} else {
		err = json.Unmarshal(data, &students)
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, p.Sprintf(export.MsgValidationFailed), err)
		return
	}

	n, err := h.Roster.Import(r.Context(), students)
	if err != nil {
		h.writeDomainError(w, p, nil, err)
		return
	}
	writeJSON(w, http.StatusOK, ImportStudentsResponse{
		ImportedCount: n,
		Message:       p.Sprintf(export.MsgStudentsImported, n),
	})
}

// ListStudents returns the students of a class, or all students.
// GET /api/students?class_id=
func (h *Handler) ListStudents(w http.ResponseWriter, r *http.Request) {
	students, err := h.Roster.List(r.Context(), r.URL.Query().Get("class_id"))
	if err != nil {
		h.writeDomainError(w, export.Printer(h.lang(r)), nil, err)
		return
	}
	if students == nil {
		students = []roster.Student{}
	}
	writeJSON(w, http.StatusOK, StudentsResponse{Students: students})
}

// =============================================================================
// EXPORT AND VIEW HANDLERS
// =============================================================================

// ExportEntity streams an entity as CSV. Query parameters other than lang
// filter on exported columns, e.g. ?subject_id=Math&semester=1.
// GET /api/export/{entity}
func (h *Handler) ExportEntity(w http.ResponseWriter, r *http.Request) {
	lang := h.lang(r)
	p := export.Printer(lang)
	entity := generic.EntityType(chi.URLParam(r, "entity"))

	params := make(map[string]string)
	for name, values := range r.URL.Query() {
		if name != "lang" {
			params[name] = values[0]
		}
	}
	key, err := export.Filter(entity, params)
	if err != nil {
		h.writeDomainError(w, p, nil, err)
		return
	}

	table, err := h.Export.Export(r.Context(), entity, key, lang)
	if err != nil {
		h.writeDomainError(w, p, nil, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.csv"`, entity))
	if err := export.WriteCSV(w, table); err != nil {
		h.Logger.Error("export_write_failed", "entity", entity, "error", err)
	}
}

// ListStaleViews returns the views awaiting a refresh.
// GET /api/views/stale
func (h *Handler) ListStaleViews(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"views": nonNilStrings(h.Views.Stale())})
}

// ClearView marks one view refreshed.
// POST /api/views/clear
func (h *Handler) ClearView(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil || req.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required", err)
		return
	}
	h.Views.Clear(req.Path)
	w.WriteHeader(http.StatusNoContent)
}

// CheckHealth reports store and redis connectivity.
// GET /api/health
func (h *Handler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.Health(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "unhealthy", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps core errors onto status codes. out is the outcome
// of a write that may have partly succeeded, or nil. A batch whose update
// hit a vanished record is a write failure, not a 404.
func (h *Handler) writeDomainError(w http.ResponseWriter, p *message.Printer, out *generic.Outcome, err error) {
	var ve *generic.ValidationError
	switch {
	case errors.As(err, &ve):
		resp := ErrorResponse{Error: p.Sprintf(export.MsgValidationFailed), Details: ve.Message, Field: ve.Field}
		if ve.Index >= 0 {
			n := ve.Index + 1
			resp.Entry = &n
		}
		writeJSON(w, http.StatusBadRequest, resp)

	case out != nil:
		resp := WriteFailureResponse{
			ErrorResponse: ErrorResponse{Error: p.Sprintf(export.MsgWriteFailed), Details: err.Error()},
			InsertedCount: out.Inserted,
			UpdatedCount:  out.Updated,
			RetrySafe:     generic.IsRetrySafe(err),
		}
		if f := out.Result.Failed; f != nil {
			resp.FailedID = string(f.ID)
		}
		for _, id := range out.Result.NotAttempted {
			resp.NotAttempted = append(resp.NotAttempted, string(id))
		}
		h.Logger.Error("batch_write_failed", "entity", out.Entity, "inserted", out.Inserted, "updated", out.Updated, "error", err)
		writeJSON(w, http.StatusInternalServerError, resp)

	case generic.IsNotFound(err):
		writeError(w, http.StatusNotFound, p.Sprintf(export.MsgNotFound), err)

	case errors.Is(err, generic.ErrInvalidTransition):
		writeError(w, http.StatusConflict, p.Sprintf(export.MsgAlreadyDecided), err)

	default:
		h.Logger.Error("request_failed", "error", err)
		writeError(w, http.StatusInternalServerError, p.Sprintf(export.MsgWriteFailed), err)
	}
}
