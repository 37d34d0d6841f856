package registry

import (
	"context"
	"fmt"
	"maps"

	"github.com/xraph/architect"
	"github.com/xraph/architect/job"
	"github.com/xraph/architect/schema"
)

var _ job.Registry = (*Target)(nil)

// Target resolves "{project:target[:configuration]}" names. The resolved
// job runs the target's builder with the target's base options, overridden
// by the scheduled argument, and its outbound messages are annotated with
// the target.
type Target struct {
	host      Host
	builders  *Builder
	cache     *Cache
	validator *schema.Registry
}

// NewTarget creates a target registry. The cache is shared with builders
// when both are created with the same Cache.
func NewTarget(host Host, builders *Builder, cache *Cache, validator *schema.Registry) *Target {
	if cache == nil {
		cache = NewCache()
	}
	if builders == nil {
		builders = NewBuilder(host, cache)
	}
	if validator == nil {
		validator = schema.NewRegistry()
	}
	return &Target{host: host, builders: builders, cache: cache, validator: validator}
}

// Get implements job.Registry.
func (t *Target) Get(ctx context.Context, name string) (*job.Handler, bool, error) {
	target, ok := job.ParseTarget(name)
	if !ok {
		return nil, false, nil
	}
	if t.host == nil {
		return nil, false, architect.ErrNoHost
	}

	h, err := t.cache.Handler(ctx, name, func(ctx context.Context) (*job.Handler, error) {
		return t.build(ctx, name, target)
	})
	if err != nil {
		return nil, false, err
	}
	return h, h != nil, nil
}

func (t *Target) build(ctx context.Context, name string, target job.Target) (*job.Handler, error) {
	builderName, err := t.host.GetBuilderNameForTarget(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("registry: builder for %s: %w", target, err)
	}
	if builderName == "" {
		return nil, nil
	}

	bh, ok, err := t.builders.Get(ctx, builderName)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %q (target %s)", architect.ErrBuilderNotFound, builderName, target)
	}

	bdesc := bh.Description()
	metadata := make(map[string]any, len(bdesc.Metadata)+2)
	maps.Copy(metadata, bdesc.Metadata)
	metadata[job.MetadataTarget] = target
	metadata["builderName"] = builderName

	desc := job.Description{
		Name: name,
		// Overrides are validated after merging with the base options.
		Argument: map[string]any{"type": []any{"object", "null"}},
		Input:    bdesc.Input,
		Output:   bdesc.Output,
		Channels: bdesc.Channels,
		Metadata: metadata,
	}

	return job.NewHandler(desc, func(ctx context.Context, argument any, jc *job.Context) error {
		base, err := t.host.GetOptionsForTarget(ctx, target)
		if err != nil {
			return err
		}
		options := MergeOptions(base, argument)

		res, err := t.validator.Validate(ctx, bdesc.Argument, options)
		if err != nil {
			return err
		}
		if !res.Success {
			return architect.NewSchemaValidationError(architect.ErrArgumentSchemaValidation, name, res.Errors)
		}
		return bh.Run(ctx, res.Data, jc)
	}), nil
}

// MergeOptions returns base with the keys of overrides applied on top.
// The merge is shallow; overrides that are not objects are ignored.
func MergeOptions(base map[string]any, overrides any) map[string]any {
	out := make(map[string]any, len(base))
	maps.Copy(out, base)
	if o, ok := overrides.(map[string]any); ok {
		maps.Copy(out, o)
	}
	return out
}
