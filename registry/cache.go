package registry

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/xraph/architect/job"
)

// Cache memoises builder info and handlers. Entries are populated once and
// never evicted; concurrent lookups of the same key share one resolution.
// Negative results are not cached.
type Cache struct {
	group singleflight.Group

	mu       sync.RWMutex
	infos    map[string]*BuilderInfo
	handlers map[string]*job.Handler
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{
		infos:    make(map[string]*BuilderInfo),
		handlers: make(map[string]*job.Handler),
	}
}

// BuilderInfo returns the cached info for builderName or resolves it.
func (c *Cache) BuilderInfo(ctx context.Context, builderName string, resolve func(context.Context, string) (*BuilderInfo, error)) (*BuilderInfo, error) {
	return getOrCompute(ctx, c, c.infos, "info:"+builderName, builderName, func(ctx context.Context) (*BuilderInfo, error) {
		return resolve(ctx, builderName)
	})
}

// Handler returns the cached handler for key or builds it.
func (c *Cache) Handler(ctx context.Context, key string, build func(context.Context) (*job.Handler, error)) (*job.Handler, error) {
	return getOrCompute(ctx, c, c.handlers, "job:"+key, key, build)
}

// Len returns the number of cached handlers.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.handlers)
}

// getOrCompute shares one computation per key between concurrent callers.
// The computation runs detached from every caller's cancellation, so one
// caller giving up never fails the others; each caller stops waiting when
// its own ctx is done.
func getOrCompute[T any](ctx context.Context, c *Cache, m map[string]*T, flightKey, key string, compute func(context.Context) (*T, error)) (*T, error) {
	c.mu.RLock()
	v, ok := m[key]
	c.mu.RUnlock()
	if ok {
		return v, nil
	}

	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(flightKey, func() (any, error) {
		c.mu.RLock()
		v, ok := m[key]
		c.mu.RUnlock()
		if ok {
			return v, nil
		}

		v, err := compute(shared)
		if err != nil || v == nil {
			return v, err
		}
		c.mu.Lock()
		if existing, ok := m[key]; ok {
			v = existing
		} else {
			m[key] = v
		}
		c.mu.Unlock()
		return v, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		out, _ := res.Val.(*T)
		return out, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
