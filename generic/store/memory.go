// Package store provides Gateway implementations.
package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/warp/records-engine/generic"
)

// =============================================================================
// MEMORY STORE - In-memory Gateway (for testing/dev)
// =============================================================================

// Call records one gateway operation, in order, for assertions.
type Call struct {
	Op    string
	Table string
	Rows  int
}

type Memory struct {
	mu     sync.RWMutex
	tables map[string]*memTable
	calls  []Call

	// Injected faults, consumed on first use.
	insertFaults map[string]error
	upsertFaults map[string]error
	updateFaults map[generic.RecordID]error
}

type memTable struct {
	rows   []generic.Row
	unique [][]string
}

func NewMemory() *Memory {
	return &Memory{
		tables:       make(map[string]*memTable),
		insertFaults: make(map[string]error),
		upsertFaults: make(map[string]error),
		updateFaults: make(map[generic.RecordID]error),
	}
}

// DeclareUnique adds a unique key to a table, like a UNIQUE index.
func (m *Memory) DeclareUnique(table string, cols ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.tableLocked(table)
	t.unique = append(t.unique, cols)
}

// FailInsert makes the next Insert into table fail with err.
func (m *Memory) FailInsert(table string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertFaults[table] = err
}

// FailUpdate makes the next Update touching id fail with err.
func (m *Memory) FailUpdate(id generic.RecordID, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateFaults[id] = err
}

// FailUpsert makes the next UpsertOnConflict into table fail with err.
func (m *Memory) FailUpsert(table string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upsertFaults[table] = err
}

// Calls returns the operations issued so far.
func (m *Memory) Calls() []Call {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Call(nil), m.calls...)
}

// Reset drops every row but keeps declared unique keys.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tables {
		t.rows = nil
	}
	return nil
}

// Seed inserts rows directly, bypassing faults and call tracking.
func (m *Memory) Seed(table string, rows ...generic.Row) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.tableLocked(table)
	for _, r := range rows {
		r = r.Clone()
		if r.ID() == "" {
			r[generic.ColumnID] = string(generic.NewRecordID())
		}
		t.rows = append(t.rows, r)
	}
}

func (m *Memory) tableLocked(name string) *memTable {
	t, ok := m.tables[name]
	if !ok {
		t = &memTable{}
		m.tables[name] = t
	}
	return t
}

// =============================================================================
// GATEWAY
// =============================================================================

// Insert adds all rows or none.
func (m *Memory) Insert(_ context.Context, table string, rows []generic.Row) ([]generic.RecordID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Op: "insert", Table: table, Rows: len(rows)})

	if err, ok := m.insertFaults[table]; ok {
		delete(m.insertFaults, table)
		return nil, err
	}

	t := m.tableLocked(table)
	staged := make([]generic.Row, 0, len(rows))
	for _, r := range rows {
		r = r.Clone()
		if r.ID() == "" {
			r[generic.ColumnID] = string(generic.NewRecordID())
		}
		if err := t.checkUnique(r, t.rows); err != nil {
			return nil, err
		}
		if err := t.checkUnique(r, staged); err != nil {
			return nil, err
		}
		staged = append(staged, r)
	}

	ids := make([]generic.RecordID, len(staged))
	for i, r := range staged {
		ids[i] = r.ID()
	}
	t.rows = append(t.rows, staged...)
	return ids, nil
}

// Update patches every matching row.
func (m *Memory) Update(_ context.Context, table string, patch generic.Row, key generic.Key) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Op: "update", Table: table, Rows: 1})

	if id := generic.RecordID(generic.AsString(key[generic.ColumnID])); id != "" {
		if err, ok := m.updateFaults[id]; ok {
			delete(m.updateFaults, id)
			return 0, err
		}
	}

	t := m.tableLocked(table)
	var n int64
	for i, r := range t.rows {
		if !key.Matches(r) {
			continue
		}
		t.rows[i] = r.With(patch)
		n++
	}
	return n, nil
}

func (m *Memory) Delete(_ context.Context, table string, key generic.Key) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Op: "delete", Table: table})

	t := m.tableLocked(table)
	kept := t.rows[:0]
	var n int64
	for _, r := range t.rows {
		if key.Matches(r) {
			n++
			continue
		}
		kept = append(kept, r)
	}
	t.rows = kept
	return n, nil
}

// UpsertOnConflict stages the whole batch on a copy and swaps it in only
// when every row succeeded. A replaced row takes every non-key column of
// the batch, nil where the incoming row left it out, as the SQL stores do.
func (m *Memory) UpsertOnConflict(_ context.Context, table string, rows []generic.Row, conflictKey []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Op: "upsert", Table: table, Rows: len(rows)})

	if err, ok := m.upsertFaults[table]; ok {
		delete(m.upsertFaults, table)
		return err
	}

	t := m.tableLocked(table)
	staged := make([]generic.Row, len(t.rows))
	for i, r := range t.rows {
		staged[i] = r.Clone()
	}

	replace := generic.ReplaceColumns(generic.UnionColumns(rows), conflictKey)
	for _, incoming := range rows {
		key := make(generic.Key, len(conflictKey))
		for _, c := range conflictKey {
			key[c] = incoming[c]
		}

		replaced := false
		for i, existing := range staged {
			if !key.Matches(existing) {
				continue
			}
			patch := generic.Row{}
			for _, c := range replace {
				patch[c] = incoming[c]
			}
			staged[i] = existing.With(patch)
			replaced = true
			break
		}
		if replaced {
			continue
		}

		r := incoming.Clone()
		if r.ID() == "" {
			r[generic.ColumnID] = string(generic.NewRecordID())
		}
		if err := t.checkUnique(r, staged); err != nil {
			return err
		}
		staged = append(staged, r)
	}

	t.rows = staged
	return nil
}

// Select returns copies of matching rows in insertion order.
func (m *Memory) Select(_ context.Context, table string, key generic.Key) ([]generic.Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tables[table]
	if !ok {
		return nil, nil
	}
	var out []generic.Row
	for _, r := range t.rows {
		if key.Matches(r) {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

// checkUnique rejects r if it collides with any row in against on the id
// or on a declared unique key. As in SQL, a NULL never collides.
func (t *memTable) checkUnique(r generic.Row, against []generic.Row) error {
	keys := append([][]string{{generic.ColumnID}}, t.unique...)
next:
	for _, cols := range keys {
		key := make(generic.Key, len(cols))
		for _, c := range cols {
			if r[c] == nil {
				continue next
			}
			key[c] = r[c]
		}
		for _, other := range against {
			if key.Matches(other) {
				return fmt.Errorf("%w: %v", generic.ErrConflict, cols)
			}
		}
	}
	return nil
}
