// Package memory implements history.Store in memory. It is safe for
// concurrent access and intended for development and testing.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/xraph/architect"
	"github.com/xraph/architect/history"
	"github.com/xraph/architect/id"
)

var _ history.Store = (*Store)(nil)

// Store is an in-memory run journal.
type Store struct {
	mu   sync.RWMutex
	runs map[string]*history.Run
}

// New returns a new empty Store.
func New() *Store {
	return &Store{runs: make(map[string]*history.Run)}
}

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// SaveRun inserts or replaces a run.
func (m *Store) SaveRun(_ context.Context, r *history.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *r
	m.runs[r.ID.String()] = &cp
	return nil
}

// GetRun returns a copy of the run.
func (m *Store) GetRun(_ context.Context, runID id.JobID) (*history.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.runs[runID.String()]
	if !ok {
		return nil, architect.ErrRunNotFound
	}
	cp := *r
	return &cp, nil
}

// ListRuns returns matching runs, newest first.
func (m *Store) ListRuns(_ context.Context, opts history.ListOpts) ([]*history.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*history.Run, 0, len(m.runs))
	for _, r := range m.runs {
		if !opts.Match(r) {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ScheduledAt.Equal(out[j].ScheduledAt) {
			return out[i].ID.String() > out[j].ID.String()
		}
		return out[i].ScheduledAt.After(out[j].ScheduledAt)
	})
	return history.Page(out, opts.Offset, opts.Limit), nil
}

// DeleteRun removes a run.
func (m *Store) DeleteRun(_ context.Context, runID id.JobID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := runID.String()
	if _, ok := m.runs[key]; !ok {
		return architect.ErrRunNotFound
	}
	delete(m.runs, key)
	return nil
}

// Len returns the number of stored runs.
func (m *Store) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.runs)
}
