/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Batch bodies are not
  listed here: they share one document shape owned by factory.SubmissionDoc
  so the CLI and the API accept the same files.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Batches:
    BatchResponse, WriteFailureResponse

  Payments:
    GeneratePaymentsRequest, GeneratePaymentsResponse

  Permissions:
    CreatePermissionRequest, RejectPermissionRequest, TransitionResponse

  Roster and scenarios:
    ImportStudentsResponse, StudentsResponse, LoadScenarioRequest,
    ScenarioResponse

SEE ALSO:
  - handlers.go: Uses these types
  - factory/submission.go: Batch document schema
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/records-engine/generic"
	"github.com/warp/records-engine/permission"
	"github.com/warp/records-engine/roster"
)

// =============================================================================
// BATCHES
// =============================================================================

// BatchResponse reports a successful batch. Upsert batches report the
// number of rows written as upserted_count.
type BatchResponse struct {
	InsertedCount int      `json:"inserted_count"`
	UpdatedCount  int      `json:"updated_count"`
	UpsertedCount int      `json:"upserted_count,omitempty"`
	StaleViews    []string `json:"stale_views,omitempty"`
	Message       string   `json:"message"`
}

// ErrorResponse is the standard error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Field   string `json:"field,omitempty"`
	Entry   *int   `json:"entry,omitempty"` // 1-based
}

// WriteFailureResponse reports a batch that failed while writing. Writes
// that succeeded before the failure are kept and counted here.
type WriteFailureResponse struct {
	ErrorResponse
	InsertedCount int      `json:"inserted_count"`
	UpdatedCount  int      `json:"updated_count"`
	FailedID      string   `json:"failed_id,omitempty"`
	NotAttempted  []string `json:"not_attempted,omitempty"`
	RetrySafe     bool     `json:"retry_safe"`
}

func toBatchResponse(out generic.Outcome, message string) BatchResponse {
	resp := BatchResponse{
		InsertedCount: out.Inserted,
		UpdatedCount:  out.Updated,
		UpsertedCount: out.Upserted,
		Message:       message,
	}
	for _, t := range out.Invalidated {
		resp.StaleViews = append(resp.StaleViews, t.String())
	}
	return resp
}

// =============================================================================
// PAYMENTS
// =============================================================================

// GeneratePaymentsRequest bills a class for one month. An empty class_id
// bills every active student.
type GeneratePaymentsRequest struct {
	ClassID  string          `json:"class_id"`
	Category string          `json:"category"`
	Month    int             `json:"month"`
	Year     int             `json:"year"`
	Amount   decimal.Decimal `json:"amount"`
}

type GeneratePaymentsResponse struct {
	BilledCount  int    `json:"billed_count"`
	SkippedCount int    `json:"skipped_count"`
	Message      string `json:"message"`
}

// =============================================================================
// PERMISSIONS
// =============================================================================

type CreatePermissionRequest struct {
	StudentID string `json:"student_id"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Reason    string `json:"reason"`
}

type RejectPermissionRequest struct {
	Reason string `json:"reason"`
}

type PermissionResponse struct {
	Permission permission.Permission `json:"permission"`
	Message    string                `json:"message"`
}

type PendingPermissionsResponse struct {
	Permissions []permission.Permission `json:"permissions"`
}

type TransitionResponse struct {
	ID         string    `json:"id"`
	StudentID  string    `json:"student_id"`
	Status     string    `json:"status"`
	ApprovedBy string    `json:"approved_by,omitempty"`
	ApprovedAt time.Time `json:"approved_at"`
	Message    string    `json:"message"`
}

// =============================================================================
// ROSTER AND SCENARIO DTOs
// =============================================================================

type ImportStudentsResponse struct {
	ImportedCount int    `json:"imported_count"`
	Message       string `json:"message"`
}

type StudentsResponse struct {
	Students []roster.Student `json:"students"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

type ScenarioResponse struct {
	Status   string `json:"status"`
	Scenario string `json:"scenario"`
	Message  string `json:"message,omitempty"`
}
