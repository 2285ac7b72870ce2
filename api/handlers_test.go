/*
handlers_test.go - HTTP tests for the API handlers

Tests for:
- Batch submission (JSON and YAML bodies, localized messages)
- Validation and write-failure responses
- Leave request lifecycle
- Payment generation, roster import, CSV export
- Identity (header, JWT, RequireActor) and CSRF
- Health and demo scenarios
*/
package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/records-engine/academic"
	"github.com/warp/records-engine/api"
	"github.com/warp/records-engine/app"
	"github.com/warp/records-engine/config"
	"github.com/warp/records-engine/generic"
	"github.com/warp/records-engine/generic/store"
	"github.com/warp/records-engine/store/sqlite"
)

var testNow = time.Date(2024, 8, 12, 9, 0, 0, 0, time.UTC)

type testServer struct {
	app     *app.App
	handler *api.Handler
	router  http.Handler
}

func newTestServer(t *testing.T, gw generic.Gateway, opts api.RouterOptions) *testServer {
	t.Helper()
	if gw == nil {
		s, err := sqlite.New(":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		gw = s
	}
	cfg := config.Defaults()
	a := app.Build(cfg, gw, generic.FixedClock(testNow), nil)
	h := api.NewHandler(a, nil)
	return &testServer{app: a, handler: h, router: api.NewRouter(h, opts)}
}

func (s *testServer) do(t *testing.T, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

const gradeBatch = `{
  "entity": "grade",
  "cohort": {"subject_id": "Math", "semester": "1", "academic_year": "2024"},
  "entries": [
    {"target_id": "s1", "score": 90},
    {"target_id": "s2", "score": "75.5", "notes": "remedial"}
  ]
}`

// =============================================================================
// BATCHES
// =============================================================================

func TestSubmitGrades_InsertsAndReportsStaleViews(t *testing.T) {
	// GIVEN: An empty store
	srv := newTestServer(t, nil, api.RouterOptions{})

	// WHEN: A grade sheet is submitted
	rec := srv.do(t, http.MethodPost, "/api/grades/batch", gradeBatch, map[string]string{"X-Actor-ID": "teacher-1"})

	// THEN: Both rows are created and the grade views are stale
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[api.BatchResponse](t, rec)
	assert.Equal(t, 2, resp.InsertedCount)
	assert.Equal(t, 0, resp.UpdatedCount)
	assert.Equal(t, "Saved 2 new and 0 updated records.", resp.Message)
	assert.Contains(t, resp.StaleViews, "/grades")
	assert.Contains(t, resp.StaleViews, "/students/s1")
	assert.True(t, srv.app.Views.IsStale("/students/s2"))

	rows, err := srv.app.Gateway.Select(context.Background(), academic.TableGrades, generic.Key{"student_id": "s1"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "teacher-1", generic.AsString(rows[0][generic.ColumnCreatedBy]))
}

func TestSubmitGrades_DocumentActorIgnored(t *testing.T) {
	// GIVEN: A sheet naming its own actor, sent without any identity
	srv := newTestServer(t, nil, api.RouterOptions{})
	body := `{
  "entity": "grade",
  "actor": "principal",
  "cohort": {"subject_id": "Math", "semester": "1", "academic_year": "2024"},
  "entries": [{"target_id": "s1", "score": 90}]
}`

	// WHEN: It is submitted
	rec := srv.do(t, http.MethodPost, "/api/grades/batch", body, nil)

	// THEN: The row carries no creator; the body cannot claim one
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rows, err := srv.app.Gateway.Select(context.Background(), academic.TableGrades, generic.Key{"student_id": "s1"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Nil(t, rows[0][generic.ColumnCreatedBy])

	// AND: A resolved identity still wins over the body
	body = strings.Replace(body, `"s1"`, `"s2"`, 1)
	rec = srv.do(t, http.MethodPost, "/api/grades/batch", body, map[string]string{"X-Actor-ID": "teacher-1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rows, err = srv.app.Gateway.Select(context.Background(), academic.TableGrades, generic.Key{"student_id": "s2"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "teacher-1", generic.AsString(rows[0][generic.ColumnCreatedBy]))
}

func TestSubmitGrades_LocalizedMessage(t *testing.T) {
	srv := newTestServer(t, nil, api.RouterOptions{})

	rec := srv.do(t, http.MethodPost, "/api/grades/batch", gradeBatch, map[string]string{"Accept-Language": "id-ID,id;q=0.9"})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "2 data baru dan 0 data diperbarui tersimpan.", decode[api.BatchResponse](t, rec).Message)
}

func TestSubmitGrades_ValidationPointsAtEntry(t *testing.T) {
	// GIVEN: A sheet whose second score is out of range
	srv := newTestServer(t, nil, api.RouterOptions{})
	body := `{"cohort": {"subject_id": "Math", "semester": "1", "academic_year": "2024"},
	  "entries": [{"target_id": "s1", "score": 90}, {"target_id": "s2", "score": 120}]}`

	// WHEN: It is submitted
	rec := srv.do(t, http.MethodPost, "/api/grades/batch", body, nil)

	// THEN: 400 names the field and the 1-based entry, and nothing was written
	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode[api.ErrorResponse](t, rec)
	assert.Equal(t, "score", resp.Field)
	require.NotNil(t, resp.Entry)
	assert.Equal(t, 2, *resp.Entry)

	rows, err := srv.app.Gateway.Select(context.Background(), academic.TableGrades, generic.Key{})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestSubmitBatch_EntityMismatch(t *testing.T) {
	srv := newTestServer(t, nil, api.RouterOptions{})

	rec := srv.do(t, http.MethodPost, "/api/tahfidz-grades/batch", gradeBatch, nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "entity", decode[api.ErrorResponse](t, rec).Field)
}

func TestSubmitAttendance_YAMLUpserts(t *testing.T) {
	// GIVEN: A YAML attendance sheet
	srv := newTestServer(t, nil, api.RouterOptions{})
	body := `
cohort:
  date: "2024-08-12"
entries:
  - target_id: s1
    status: present
  - target_id: s2
    status: sick
`
	headers := map[string]string{"Content-Type": "application/yaml"}

	// WHEN: It is submitted twice
	first := srv.do(t, http.MethodPost, "/api/attendance", body, headers)
	second := srv.do(t, http.MethodPost, "/api/attendance", body, headers)

	// THEN: Each call upserts two rows and the store keeps one per student
	for _, rec := range []*httptest.ResponseRecorder{first, second} {
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		resp := decode[api.BatchResponse](t, rec)
		assert.Equal(t, 2, resp.UpsertedCount)
		assert.Equal(t, "Saved 2 records.", resp.Message)
	}
	rows, err := srv.app.Gateway.Select(context.Background(), "attendance_records", generic.Key{})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestSubmitGrades_WriteFailureReportsKeptWrites(t *testing.T) {
	// GIVEN: Two existing grades, the first of which cannot be updated
	mem := store.NewMemory()
	mem.Seed(academic.TableGrades,
		generic.Row{"id": "g1", "student_id": "s1", "subject_id": "Math", "semester": "1", "academic_year": "2024", "score": "60"},
		generic.Row{"id": "g2", "student_id": "s2", "subject_id": "Math", "semester": "1", "academic_year": "2024", "score": "61"},
	)
	mem.FailUpdate("g1", errors.New("disk full"))
	srv := newTestServer(t, mem, api.RouterOptions{})
	body := `{"cohort": {"subject_id": "Math", "semester": "1", "academic_year": "2024"},
	  "entries": [
	    {"target_id": "s1", "existing_record_id": "g1", "score": 70},
	    {"target_id": "s2", "existing_record_id": "g2", "score": 71}
	  ]}`

	// WHEN: The correction sheet is submitted
	rec := srv.do(t, http.MethodPost, "/api/grades/batch", body, nil)

	// THEN: 500 reports the failing record and what was never attempted
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decode[api.WriteFailureResponse](t, rec)
	assert.Equal(t, "g1", resp.FailedID)
	assert.Equal(t, []string{"g2"}, resp.NotAttempted)
	assert.Equal(t, 0, resp.UpdatedCount)
	assert.True(t, resp.RetrySafe)
	assert.Contains(t, resp.Details, "disk full")
}

// =============================================================================
// PERMISSIONS
// =============================================================================

func TestPermissionLifecycle(t *testing.T) {
	// GIVEN: A filed leave request
	srv := newTestServer(t, nil, api.RouterOptions{})
	rec := srv.do(t, http.MethodPost, "/api/permissions",
		`{"student_id": "s1", "start_date": "2024-08-13", "end_date": "2024-08-14", "reason": "Family event"}`,
		map[string]string{"X-Actor-ID": "guardian-s1"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[api.PermissionResponse](t, rec)
	id := string(created.Permission.ID)
	require.NotEmpty(t, id)

	pending := decode[api.PendingPermissionsResponse](t, srv.do(t, http.MethodGet, "/api/permissions/pending", "", nil))
	require.Len(t, pending.Permissions, 1)

	// WHEN: It is approved
	rec = srv.do(t, http.MethodPost, "/api/permissions/"+id+"/approve", "", map[string]string{"X-Actor-ID": "principal"})

	// THEN: It is approved by the caller and leaves the pending list
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	tr := decode[api.TransitionResponse](t, rec)
	assert.Equal(t, "approved", tr.Status)
	assert.Equal(t, "principal", tr.ApprovedBy)
	assert.Equal(t, "s1", tr.StudentID)
	assert.Equal(t, "Leave request approved.", tr.Message)

	pending = decode[api.PendingPermissionsResponse](t, srv.do(t, http.MethodGet, "/api/permissions/pending", "", nil))
	assert.Empty(t, pending.Permissions)
	assert.True(t, srv.app.Views.IsStale("/students/s1/permissions"))

	// AND: A second decision is a conflict
	rec = srv.do(t, http.MethodPost, "/api/permissions/"+id+"/reject", `{"reason": "late"}`, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRejectPermission_EmptyBody(t *testing.T) {
	srv := newTestServer(t, nil, api.RouterOptions{})
	rec := srv.do(t, http.MethodPost, "/api/permissions",
		`{"student_id": "s2", "start_date": "2024-08-12", "end_date": "2024-08-12", "reason": "Fever"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := string(decode[api.PermissionResponse](t, rec).Permission.ID)

	rec = srv.do(t, http.MethodPost, "/api/permissions/"+id+"/reject", "", nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "rejected", decode[api.TransitionResponse](t, rec).Status)
}

func TestPermission_NotFound(t *testing.T) {
	srv := newTestServer(t, nil, api.RouterOptions{})

	assert.Equal(t, http.StatusNotFound, srv.do(t, http.MethodGet, "/api/permissions/missing", "", nil).Code)
	assert.Equal(t, http.StatusNotFound, srv.do(t, http.MethodPost, "/api/permissions/missing/approve", "", nil).Code)
}

func TestCreatePermission_EndBeforeStart(t *testing.T) {
	srv := newTestServer(t, nil, api.RouterOptions{})

	rec := srv.do(t, http.MethodPost, "/api/permissions",
		`{"student_id": "s1", "start_date": "2024-08-14", "end_date": "2024-08-13", "reason": "x"}`, nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "end_date", decode[api.ErrorResponse](t, rec).Field)
}

// =============================================================================
// ROSTER AND PAYMENTS
// =============================================================================

const rosterYAML = `
- id: s1
  name: Aisyah
  class_id: 7A
- id: s2
  name: Bima
  class_id: 7A
- id: s3
  name: Citra
  class_id: 7A
  status: inactive
`

func TestGeneratePayments_SkipsBilledAndInactive(t *testing.T) {
	// GIVEN: A class of three, one inactive
	srv := newTestServer(t, nil, api.RouterOptions{})
	rec := srv.do(t, http.MethodPost, "/api/students/import", rosterYAML, map[string]string{"Content-Type": "text/yaml"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 3, decode[api.ImportStudentsResponse](t, rec).ImportedCount)

	body := `{"class_id": "7A", "category": "spp", "month": 8, "year": 2024, "amount": "150000"}`

	// WHEN: The month is generated twice
	first := srv.do(t, http.MethodPost, "/api/payments/generate", body, nil)
	second := srv.do(t, http.MethodPost, "/api/payments/generate", body, nil)

	// THEN: Active students are billed once
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	r1 := decode[api.GeneratePaymentsResponse](t, first)
	assert.Equal(t, 2, r1.BilledCount)
	assert.Equal(t, 0, r1.SkippedCount)

	require.Equal(t, http.StatusOK, second.Code, second.Body.String())
	r2 := decode[api.GeneratePaymentsResponse](t, second)
	assert.Equal(t, 0, r2.BilledCount)
	assert.Equal(t, 2, r2.SkippedCount)
}

func TestGeneratePayments_RejectsNonPositiveAmount(t *testing.T) {
	srv := newTestServer(t, nil, api.RouterOptions{})

	rec := srv.do(t, http.MethodPost, "/api/payments/generate",
		`{"class_id": "7A", "category": "spp", "month": 8, "year": 2024, "amount": "0"}`, nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "amount", decode[api.ErrorResponse](t, rec).Field)
}

func TestListStudents_ByClass(t *testing.T) {
	srv := newTestServer(t, nil, api.RouterOptions{})
	rec := srv.do(t, http.MethodPost, "/api/students/import",
		`[{"id": "s1", "name": "Aisyah", "class_id": "7A"}, {"id": "s5", "name": "Eka", "class_id": "7B"}]`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[api.StudentsResponse](t, srv.do(t, http.MethodGet, "/api/students?class_id=7B", "", nil))

	require.Len(t, resp.Students, 1)
	assert.Equal(t, generic.StudentID("s5"), resp.Students[0].ID)
}

// =============================================================================
// EXPORT AND VIEWS
// =============================================================================

func TestExportGrades_CSV(t *testing.T) {
	// GIVEN: A submitted grade sheet
	srv := newTestServer(t, nil, api.RouterOptions{})
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodPost, "/api/grades/batch", gradeBatch, nil).Code)

	// WHEN: The subject is exported
	rec := srv.do(t, http.MethodGet, "/api/export/grade?subject_id=Math&semester=1", "", nil)

	// THEN: A CSV with English headers is returned
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Student,Subject,Semester,Academic Year,Score,Notes", lines[0])
	assert.Contains(t, rec.Body.String(), "75.5")
}

func TestExport_RejectsUnknownFilterAndEntity(t *testing.T) {
	srv := newTestServer(t, nil, api.RouterOptions{})

	rec := srv.do(t, http.MethodGet, "/api/export/grade?password=x", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "password", decode[api.ErrorResponse](t, rec).Field)

	rec = srv.do(t, http.MethodGet, "/api/export/homework", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestViews_ListAndClear(t *testing.T) {
	srv := newTestServer(t, nil, api.RouterOptions{})
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodPost, "/api/grades/batch", gradeBatch, nil).Code)

	rec := srv.do(t, http.MethodPost, "/api/views/clear", `{"path": "/grades"}`, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	views := decode[map[string][]string](t, srv.do(t, http.MethodGet, "/api/views/stale", "", nil))
	assert.NotContains(t, views["views"], "/grades")
	assert.Contains(t, views["views"], "/students/s1")
}

// =============================================================================
// IDENTITY AND PROTECTION
// =============================================================================

func TestJWTIdentity_StampsCreator(t *testing.T) {
	// GIVEN: A handler that trusts HS256 bearer tokens
	secret := []byte("test-secret")
	srv := newTestServer(t, nil, api.RouterOptions{})
	srv.handler.Identity = api.JWTIdentity{Secret: secret}
	token, err := api.SignActor(secret, "teacher-9", jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))})
	require.NoError(t, err)

	// WHEN: A sheet is submitted with the token
	rec := srv.do(t, http.MethodPost, "/api/grades/batch", gradeBatch, map[string]string{"Authorization": "Bearer " + token})

	// THEN: Rows carry the token subject as creator
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rows, err := srv.app.Gateway.Select(context.Background(), academic.TableGrades, generic.Key{"student_id": "s2"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "teacher-9", generic.AsString(rows[0][generic.ColumnCreatedBy]))
}

func TestJWTIdentity_RejectsBadTokens(t *testing.T) {
	secret := []byte("test-secret")
	id := api.JWTIdentity{Secret: secret}
	other, err := api.SignActor([]byte("other-secret"), "mallory", jwt.RegisteredClaims{})
	require.NoError(t, err)
	expired, err := api.SignActor(secret, "teacher-1", jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour))})
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{"no header", ""},
		{"not bearer", "Basic abc"},
		{"wrong secret", "Bearer " + other},
		{"expired", "Bearer " + expired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			assert.Equal(t, generic.ActorID(""), id.Actor(r))
		})
	}
}

func TestHeaderIdentity_CustomHeader(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-User", " wali-7a ")

	assert.Equal(t, generic.ActorID("wali-7a"), api.HeaderIdentity{Header: "X-User"}.Actor(r))
	assert.Equal(t, generic.ActorID(""), api.HeaderIdentity{}.Actor(r))
}

func TestRequireActor(t *testing.T) {
	// GIVEN: Writes require an actor
	srv := newTestServer(t, nil, api.RouterOptions{})
	srv.handler.RequireActor = true

	// WHEN/THEN: An anonymous write is refused; reads and signed writes pass
	rec := srv.do(t, http.MethodPost, "/api/grades/batch", gradeBatch, map[string]string{"Accept-Language": "id"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Silakan masuk terlebih dahulu", decode[api.ErrorResponse](t, rec).Error)

	assert.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, "/api/permissions/pending", "", nil).Code)
	assert.Equal(t, http.StatusOK, srv.do(t, http.MethodPost, "/api/grades/batch", gradeBatch, map[string]string{"X-Actor-ID": "teacher-1"}).Code)
}

func TestCSRF_ExemptsJSONOnly(t *testing.T) {
	srv := newTestServer(t, nil, api.RouterOptions{CSRFKey: []byte("0123456789abcdef0123456789abcdef")})

	rec := srv.do(t, http.MethodPost, "/api/grades/batch", gradeBatch, nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = srv.do(t, http.MethodPost, "/api/students/import", rosterYAML, map[string]string{"Content-Type": "application/yaml"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

// =============================================================================
// SCENARIOS
// =============================================================================

func TestScenarios_NotMountedByDefault(t *testing.T) {
	srv := newTestServer(t, nil, api.RouterOptions{})

	assert.Equal(t, http.StatusNotFound, srv.do(t, http.MethodGet, "/api/scenarios", "", nil).Code)
}

func TestLoadScenario_BillingMonth(t *testing.T) {
	// GIVEN: Demo endpoints and some unrelated data
	srv := newTestServer(t, nil, api.RouterOptions{Scenarios: true})
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodPost, "/api/grades/batch", gradeBatch, nil).Code)

	list := decode[[]app.Scenario](t, srv.do(t, http.MethodGet, "/api/scenarios", "", nil))
	require.NotEmpty(t, list)

	// WHEN: The billing scenario is loaded
	rec := srv.do(t, http.MethodPost, "/api/scenarios/load", `{"scenario_id": "billing-month"}`, nil)

	// THEN: The store holds only the scenario's data
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "loaded", decode[api.ScenarioResponse](t, rec).Status)

	grades, err := srv.app.Gateway.Select(context.Background(), academic.TableGrades, generic.Key{})
	require.NoError(t, err)
	assert.Empty(t, grades)

	csv := srv.do(t, http.MethodGet, "/api/export/payment?month=8&year=2024", "", nil)
	require.Equal(t, http.StatusOK, csv.Code, csv.Body.String())
	lines := strings.Split(strings.TrimSpace(csv.Body.String()), "\n")
	assert.Len(t, lines, 4)
	assert.Contains(t, csv.Body.String(), "s1,spp,8,2024,150000,150000,Paid,")
	assert.Equal(t, 2, strings.Count(csv.Body.String(), ",Unpaid,"))

	current := decode[app.Scenario](t, srv.do(t, http.MethodGet, "/api/scenarios/current", "", nil))
	assert.Equal(t, "billing-month", current.ID)

	// AND: An unknown scenario is a client error
	rec = srv.do(t, http.MethodPost, "/api/scenarios/load", `{"scenario_id": "nope"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// downStore is a store whose connectivity check fails.
type downStore struct{ *store.Memory }

func (downStore) HealthCheck(context.Context) error { return errors.New("connection refused") }

func TestHealth(t *testing.T) {
	// GIVEN: One reachable store and one that is down
	up := newTestServer(t, nil, api.RouterOptions{})
	down := newTestServer(t, downStore{store.NewMemory()}, api.RouterOptions{})

	// WHEN: Health is checked
	okRec := up.do(t, "GET", "/api/health", "", nil)
	badRec := down.do(t, "GET", "/api/health", "", nil)

	// THEN: Only the broken store reports unavailable
	assert.Equal(t, http.StatusOK, okRec.Code)
	assert.Equal(t, http.StatusServiceUnavailable, badRec.Code)
	assert.Contains(t, badRec.Body.String(), "connection refused")
}
