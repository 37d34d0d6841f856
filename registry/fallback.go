package registry

import (
	"context"

	"github.com/xraph/architect/job"
)

var _ job.Registry = (*Fallback)(nil)

// Fallback queries its registries in order and returns the first handler
// found. An error from any registry stops the search.
type Fallback struct {
	registries []job.Registry
}

// NewFallback composes registries in precedence order. Nil entries are
// skipped.
func NewFallback(registries ...job.Registry) *Fallback {
	f := &Fallback{}
	for _, r := range registries {
		if r != nil {
			f.registries = append(f.registries, r)
		}
	}
	return f
}

// Get implements job.Registry.
func (f *Fallback) Get(ctx context.Context, name string) (*job.Handler, bool, error) {
	for _, r := range f.registries {
		h, ok, err := r.Get(ctx, name)
		if err != nil {
			return nil, false, err
		}
		if ok {
			return h, true, nil
		}
	}
	return nil, false, nil
}

// Len returns the number of composed registries.
func (f *Fallback) Len() int { return len(f.registries) }
