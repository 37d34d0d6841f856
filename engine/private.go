package engine

import (
	"context"
	"fmt"

	"github.com/xraph/architect"
	"github.com/xraph/architect/job"
	"github.com/xraph/architect/registry"
)

// Names of the private jobs every engine registers. Builders use them to
// query the workspace through the scheduler.
const (
	JobGetTargetOptions        = "..getTargetOptions"
	JobGetProjectMetadata      = "..getProjectMetadata"
	JobGetBuilderNameForTarget = "..getBuilderNameForTarget"
	JobValidateOptions         = "..validateOptions"
)

var targetSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"project":       map[string]any{"type": "string"},
		"target":        map[string]any{"type": "string"},
		"configuration": map[string]any{"type": "string"},
	},
	"required": []any{"project", "target"},
}

// ValidateOptionsArgument is the argument of the ..validateOptions job.
type ValidateOptionsArgument struct {
	BuilderName string         `json:"builderName"`
	Options     map[string]any `json:"options"`
}

func (eng *Engine) privateJobs() []*job.Handler {
	return []*job.Handler{
		job.Typed(job.Description{
			Name:     JobGetTargetOptions,
			Argument: targetSchema,
			Output:   map[string]any{"type": "object"},
		}, func(ctx context.Context, t job.Target, _ *job.Context) (map[string]any, error) {
			if eng.host == nil {
				return nil, architect.ErrNoHost
			}
			return eng.host.GetOptionsForTarget(ctx, t)
		}),

		job.Simple(job.Description{
			Name: JobGetProjectMetadata,
			Argument: map[string]any{
				"oneOf": []any{map[string]any{"type": "string"}, targetSchema},
			},
			Output: map[string]any{"type": "object"},
		}, func(ctx context.Context, argument any, _ *job.Context) (any, error) {
			if eng.host == nil {
				return nil, architect.ErrNoHost
			}
			project, ok := argument.(string)
			if !ok {
				var t job.Target
				if err := job.Decode(argument, &t); err != nil {
					return nil, err
				}
				project = t.Project
			}
			return eng.host.GetProjectMetadata(ctx, project)
		}),

		job.Typed(job.Description{
			Name:     JobGetBuilderNameForTarget,
			Argument: targetSchema,
			Output:   map[string]any{"type": "string"},
		}, func(ctx context.Context, t job.Target, _ *job.Context) (string, error) {
			if eng.host == nil {
				return "", architect.ErrNoHost
			}
			name, err := eng.host.GetBuilderNameForTarget(ctx, t)
			if err != nil {
				return "", err
			}
			if name == "" {
				return "", fmt.Errorf("%w: %s", architect.ErrInvalidTarget, t)
			}
			return name, nil
		}),

		job.Typed(job.Description{
			Name: JobValidateOptions,
			Argument: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"builderName": map[string]any{"type": "string"},
					"options":     map[string]any{"type": "object"},
				},
				"required": []any{"builderName", "options"},
			},
			Output: map[string]any{"type": "object"},
		}, func(ctx context.Context, arg ValidateOptionsArgument, _ *job.Context) (any, error) {
			return eng.validateOptions(ctx, arg.BuilderName, arg.Options)
		}),
	}
}

// validateOptions validates options against the builder's option schema
// and returns them with defaults applied.
func (eng *Engine) validateOptions(ctx context.Context, builderName string, options map[string]any) (any, error) {
	if eng.host == nil {
		return nil, architect.ErrNoHost
	}
	info, err := eng.builders.Info(ctx, builderName)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, fmt.Errorf("%w: %q", architect.ErrBuilderNotFound, builderName)
	}
	res, err := eng.schemas.Validate(ctx, info.OptionSchema, registry.MergeOptions(nil, options))
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, architect.NewSchemaValidationError(architect.ErrArgumentSchemaValidation, builderName, res.Errors)
	}
	return res.Data, nil
}
