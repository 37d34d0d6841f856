package registry

import (
	"context"
	"fmt"
	"regexp"

	"github.com/xraph/architect"
	"github.com/xraph/architect/job"
)

var builderNamePattern = regexp.MustCompile(`^[^:{}\s]+:[^:{}\s]+$`)

// IsBuilderName reports whether name has the "scope:name" builder form.
func IsBuilderName(name string) bool {
	return builderNamePattern.MatchString(name)
}

var _ job.Registry = (*Builder)(nil)

// Builder resolves builder identifiers through a Host. The argument schema
// of a builder job is the builder's option schema and its output schema is
// BuilderOutputSchema.
type Builder struct {
	host  Host
	cache *Cache
}

// NewBuilder creates a builder registry. A nil cache gets a private one.
func NewBuilder(host Host, cache *Cache) *Builder {
	if cache == nil {
		cache = NewCache()
	}
	return &Builder{host: host, cache: cache}
}

// Get implements job.Registry.
func (b *Builder) Get(ctx context.Context, name string) (*job.Handler, bool, error) {
	if !IsBuilderName(name) {
		return nil, false, nil
	}
	if b.host == nil {
		return nil, false, architect.ErrNoHost
	}

	h, err := b.cache.Handler(ctx, name, func(ctx context.Context) (*job.Handler, error) {
		info, err := b.Info(ctx, name)
		if err != nil || info == nil {
			return nil, err
		}
		fn, err := b.host.LoadBuilder(ctx, info)
		if err != nil {
			return nil, fmt.Errorf("registry: load builder %q: %w", name, err)
		}
		return job.NewHandler(job.Description{
			Name:     name,
			Argument: info.OptionSchema,
			Output:   BuilderOutputSchema,
			Metadata: map[string]any{job.MetadataBuilderInfo: *info},
		}, fn), nil
	})
	if err != nil {
		return nil, false, err
	}
	return h, h != nil, nil
}

// Info returns the cached builder info for name, or nil if the host does
// not know it.
func (b *Builder) Info(ctx context.Context, name string) (*BuilderInfo, error) {
	if b.host == nil {
		return nil, architect.ErrNoHost
	}
	info, err := b.cache.BuilderInfo(ctx, name, b.host.ResolveBuilder)
	if err != nil {
		return nil, fmt.Errorf("registry: resolve builder %q: %w", name, err)
	}
	return info, nil
}
