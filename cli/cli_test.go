package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/records-engine/api"
	"github.com/warp/records-engine/app"
	"github.com/warp/records-engine/config"
	"github.com/warp/records-engine/generic"
	"github.com/warp/records-engine/store/sqlite"
)

type harness struct {
	dir string
	db  string
}

func newHarness(t *testing.T) *harness {
	dir := t.TempDir()
	return &harness{dir: dir, db: filepath.Join(dir, "records.db")}
}

// run executes one command against the harness store with a fixed clock.
func (h *harness) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	opts := &RootOptions{
		open: func(_ context.Context, cfg *config.Config, logger *slog.Logger) (*app.App, error) {
			s, err := sqlite.New(cfg.Store.SQLitePath)
			if err != nil {
				return nil, err
			}
			clock := generic.FixedClock(time.Date(2024, 8, 12, 9, 0, 0, 0, time.UTC))
			return app.Build(cfg, s, clock, logger, func() { s.Close() }), nil
		},
	}
	cmd := newRootCommand(opts)
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--config", filepath.Join(h.dir, "none.json"), "--db", h.db}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func (h *harness) write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(h.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestSubmit_YAMLSheet(t *testing.T) {
	// GIVEN: A tahfidz sheet on disk
	h := newHarness(t)
	sheet := h.write(t, "juz-amma.yaml", `
entity: tahfidz_grade
cohort:
  program: Juz Amma
  semester: "1"
  academic_year: "2024"
entries:
  - target_id: s1
    score: 95
    juz: 30
    surah: An-Naba
`)

	// WHEN: It is submitted
	out, err := h.run(t, "submit", "-f", sheet, "--actor", "ustadz-1")

	// THEN: The row is saved and readable through export
	require.NoError(t, err)
	assert.Equal(t, "Saved 1 new and 0 updated records.\n", out)

	csv, err := h.run(t, "export", "tahfidz_grade", "--filter", "program=Juz Amma")
	require.NoError(t, err)
	assert.Contains(t, csv, "s1,Juz Amma,1,2024,30,An-Naba,95,Mumtaz,")
}

func TestSubmit_ValidationError(t *testing.T) {
	h := newHarness(t)
	sheet := h.write(t, "bad.json", `{"entity": "grade", "cohort": {"subject_id": "Math", "semester": "1", "academic_year": "2024"},
	  "entries": [{"target_id": "s1", "score": 101}]}`)

	_, err := h.run(t, "submit", "-f", sheet)

	var ve *generic.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "score", ve.Field)
}

func TestRosterBillingAndExport(t *testing.T) {
	// GIVEN: An imported roster
	h := newHarness(t)
	rosterFile := h.write(t, "7a.yaml", `
- {id: s1, name: Aisyah, class_id: 7A}
- {id: s2, name: Bima, class_id: 7A}
- {id: s3, name: Citra, class_id: 7A, status: inactive}
`)
	out, err := h.run(t, "import-students", "-f", rosterFile)
	require.NoError(t, err)
	assert.Equal(t, "Imported 3 students.\n", out)

	// WHEN: The month is billed, reporting as JSON
	out, err = h.run(t, "generate-payments", "--class", "7A", "--month", "8", "--year", "2024", "--amount", "150000", "--format", "json")
	require.NoError(t, err)

	// THEN: Only active students are billed
	var res struct {
		Billed  []string `json:"billed"`
		Skipped int      `json:"skipped"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.ElementsMatch(t, []string{"s1", "s2"}, res.Billed)

	csv, err := h.run(t, "export", "payment", "--filter", "month=8", "--lang", "id")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(csv), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Siswa,Kategori,Bulan,Tahun,Jumlah,Dibayar,Status,Tanggal Bayar,Catatan", lines[0])
	assert.Equal(t, 2, strings.Count(csv, "Belum Bayar"))
}

func TestExport_BadFilter(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(t, "export", "payment", "--filter", "month")

	assert.ErrorContains(t, err, "want column=value")
}

func TestScenarioAndPermissions(t *testing.T) {
	// GIVEN: The leave-requests demo data
	h := newHarness(t)
	_, err := h.run(t, "scenario", "load", "leave-requests")
	require.NoError(t, err)

	out, err := h.run(t, "permissions", "pending", "--format", "json")
	require.NoError(t, err)
	var pending []struct {
		ID        string `json:"id"`
		StudentID string `json:"student_id"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &pending))
	require.Len(t, pending, 2)

	// WHEN: The first is rejected, twice
	out, err = h.run(t, "permissions", "reject", pending[0].ID, "--reason", "exam week", "--actor", "principal", "--lang", "id")
	require.NoError(t, err)
	assert.Equal(t, "Pengajuan izin ditolak.\n", out)

	_, err = h.run(t, "permissions", "reject", pending[0].ID)

	// THEN: The second decision is refused
	assert.ErrorIs(t, err, generic.ErrInvalidTransition)
}

func TestScenarioList(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "scenario", "list")

	require.NoError(t, err)
	assert.Contains(t, out, "billing-month")
	assert.Contains(t, out, "attendance-day")
}

func TestToken_AcceptedByAPI(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "token", "teacher-1", "--secret", "s3cret")
	require.NoError(t, err)

	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("Authorization", "Bearer "+strings.TrimSpace(out))
	assert.Equal(t, generic.ActorID("teacher-1"), api.JWTIdentity{Secret: []byte("s3cret")}.Actor(r))
}

func TestToken_RequiresSecret(t *testing.T) {
	h := newHarness(t)
	t.Setenv("RECORDS_JWT_SECRET", "")

	_, err := h.run(t, "token", "teacher-1")

	assert.ErrorContains(t, err, "no secret")
}

func TestInvalidFormat(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(t, "scenario", "list", "--format", "xml")

	assert.ErrorContains(t, err, "invalid format")
}
