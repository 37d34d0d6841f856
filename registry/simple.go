package registry

import (
	"context"
	"sort"
	"sync"

	"github.com/xraph/architect/job"
)

var _ job.Registry = (*Simple)(nil)

// Simple maps job names to explicitly registered handlers.
// It is safe for concurrent use.
type Simple struct {
	mu       sync.RWMutex
	handlers map[string]*job.Handler
}

// NewSimple creates an empty registry.
func NewSimple() *Simple {
	return &Simple{handlers: make(map[string]*job.Handler)}
}

// Register adds handlers under their description names, replacing any
// handler already registered under the same name.
func (r *Simple) Register(handlers ...*job.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, h := range handlers {
		r.handlers[h.Name()] = h
	}
}

// Get implements job.Registry.
func (r *Simple) Get(_ context.Context, name string) (*job.Handler, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok, nil
}

// Names returns all registered job names in sorted order.
func (r *Simple) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
