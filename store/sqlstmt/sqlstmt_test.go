package sqlstmt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/records-engine/generic"
)

func TestInsertRow_Placeholders(t *testing.T) {
	row := generic.Row{"student_id": "s1", "score": generic.Score(90.5)}
	cols := []string{"id", "score", "student_id"}

	lite, err := InsertRow(SQLite, "grades", cols, row)
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO grades (id, score, student_id) VALUES (?, ?, ?)", lite.SQL)
	assert.Equal(t, []any{nil, "90.5", "s1"}, lite.Args)

	pg, err := InsertRow(Postgres, "grades", cols, row)
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO grades (id, score, student_id) VALUES ($1, $2, $3)", pg.SQL)
}

func TestUpsertRow(t *testing.T) {
	row := generic.Row{"id": "a1", "student_id": "s1", "date": "2024-08-12", "status": "sick", "created_by": "t1"}
	cols := Columns([]generic.Row{row})

	st, err := UpsertRow(SQLite, "attendance_records", cols, row, []string{"student_id", "date"})
	require.NoError(t, err)
	assert.Equal(t,
		"INSERT INTO attendance_records (created_by, date, id, status, student_id) VALUES (?, ?, ?, ?, ?)"+
			" ON CONFLICT (student_id, date) DO UPDATE SET status = excluded.status",
		st.SQL)

	pg, err := UpsertRow(Postgres, "attendance_records", cols, row, []string{"student_id", "date"})
	require.NoError(t, err)
	assert.Contains(t, pg.SQL, "status = EXCLUDED.status")
}

func TestUpsertRow_NothingToReplace(t *testing.T) {
	row := generic.Row{"student_id": "s1", "date": "2024-08-12"}
	st, err := UpsertRow(SQLite, "attendance_records", Columns([]generic.Row{row}), row, []string{"student_id", "date"})
	require.NoError(t, err)
	assert.Contains(t, st.SQL, "DO NOTHING")
}

func TestUpdate_KeyWithNull(t *testing.T) {
	st, err := Update(Postgres, "permission_requests",
		generic.Row{"status": generic.StatusApproved, "approved_by": nil},
		generic.Key{"id": "p1", "status": "pending"})

	require.NoError(t, err)
	assert.Equal(t, "UPDATE permission_requests SET approved_by = $1, status = $2 WHERE id = $3 AND status = $4", st.SQL)
	assert.Equal(t, []any{nil, "approved", "p1", "pending"}, st.Args)

	del, err := Delete(SQLite, "grades", generic.Key{"notes": nil})
	require.NoError(t, err)
	assert.Equal(t, "DELETE FROM grades WHERE notes IS NULL", del.SQL)
	assert.Empty(t, del.Args)
}

func TestRejectsUnsafeIdentifiers(t *testing.T) {
	_, err := InsertRow(SQLite, "grades; DROP TABLE students", []string{"id"}, generic.Row{})
	assert.Error(t, err)

	_, err = Update(SQLite, "grades", generic.Row{"score = 0 --": 1}, generic.ByID("g1"))
	assert.Error(t, err)

	_, err = Select(SQLite, "grades", generic.Key{"Student": "s1"})
	assert.Error(t, err)
}

func TestRefusesUnkeyedWrites(t *testing.T) {
	_, err := Update(SQLite, "grades", generic.Row{"score": 1}, nil)
	assert.Error(t, err)

	_, err = Delete(Postgres, "grades", generic.Key{})
	assert.Error(t, err)
}

func TestSelect_Order(t *testing.T) {
	lite, err := Select(SQLite, "students", generic.Key{"class_id": "7A"})
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM students WHERE class_id = ? ORDER BY rowid", lite.SQL)

	pg, err := Select(Postgres, "students", nil)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM students ORDER BY id", pg.SQL)
}
