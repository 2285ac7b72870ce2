// Package cache holds the sinks that receive stale-view signals from the
// reconciliation core. The serving layer consults them to decide whether a
// cached view must be refetched.
package cache

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/warp/records-engine/generic"
)

// Memory is an in-process stale set keyed by concrete view path.
type Memory struct {
	mu    sync.RWMutex
	stale map[string]time.Time
	clock generic.Clock
}

var _ generic.StaleMarker = (*Memory)(nil)

func NewMemory(clock generic.Clock) *Memory {
	if clock == nil {
		clock = generic.SystemClock
	}
	return &Memory{stale: make(map[string]time.Time), clock: clock}
}

// MarkStale records every target as stale as of now.
func (m *Memory) MarkStale(_ context.Context, targets []generic.InvalidationTarget) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock()
	for _, t := range targets {
		m.stale[t.String()] = now
	}
	return nil
}

// MarkPaths is MarkStale for already rendered paths, used when applying
// events received from another instance.
func (m *Memory) MarkPaths(paths ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock()
	for _, p := range paths {
		m.stale[p] = now
	}
}

// IsStale reports whether path was marked and not cleared since.
func (m *Memory) IsStale(path string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.stale[path]
	return ok
}

// StaleSince returns when path was last marked.
func (m *Memory) StaleSince(path string) (time.Time, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	at, ok := m.stale[path]
	return at, ok
}

// Clear is called by the reader once it has refetched path.
func (m *Memory) Clear(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.stale, path)
}

// Stale lists the stale paths in sorted order.
func (m *Memory) Stale() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.stale))
	for p := range m.stale {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// =============================================================================
// FANOUT
// =============================================================================

// Fanout sends every signal to all markers. Each marker is attempted even
// when an earlier one failed; the failures are joined.
type Fanout []generic.StaleMarker

func (f Fanout) MarkStale(ctx context.Context, targets []generic.InvalidationTarget) error {
	var errs []error
	for _, m := range f {
		if m == nil {
			continue
		}
		if err := m.MarkStale(ctx, targets); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
