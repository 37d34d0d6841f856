package registry

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/xraph/architect"
	"github.com/xraph/architect/job"
	"github.com/xraph/architect/schema"
)

// BuilderInfo describes a builder as resolved by a Host.
type BuilderInfo struct {
	// Name is the builder identifier, e.g. "@acme/build:bundle".
	Name string `json:"name"`

	// Description is a human readable summary.
	Description string `json:"description,omitempty"`

	// OptionSchema validates the builder's options.
	OptionSchema schema.Schema `json:"optionSchema,omitempty"`

	// Metadata is host specific information.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// BuilderOutput is the value builders emit as output. It satisfies
// BuilderOutputSchema.
type BuilderOutput struct {
	Success bool           `json:"success"`
	Error   string         `json:"error,omitempty"`
	Target  *job.Target    `json:"target,omitempty"`
	Info    map[string]any `json:"info,omitempty"`
}

// BuilderOutputSchema is the output schema of every builder job.
var BuilderOutputSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"success": map[string]any{"type": "boolean"},
		"error":   map[string]any{"type": "string"},
		"target":  map[string]any{"type": "object"},
		"info":    map[string]any{"type": "object"},
	},
	"required": []any{"success"},
}

// Host is the workspace environment builders and targets are resolved in.
// Lookups of unknown names return zero values with a nil error.
type Host interface {
	// GetBuilderNameForTarget returns the builder configured for target,
	// or "" if the target is unknown.
	GetBuilderNameForTarget(ctx context.Context, target job.Target) (string, error)

	// GetOptionsForTarget returns the base options of target with its
	// configuration applied.
	GetOptionsForTarget(ctx context.Context, target job.Target) (map[string]any, error)

	// ResolveBuilder returns the info of builderName, or nil if unknown.
	ResolveBuilder(ctx context.Context, builderName string) (*BuilderInfo, error)

	// LoadBuilder returns the implementation of a resolved builder.
	LoadBuilder(ctx context.Context, info *BuilderInfo) (job.HandlerFunc, error)

	GetCurrentDirectory(ctx context.Context) (string, error)
	GetWorkspaceRoot(ctx context.Context) (string, error)

	// GetProjectMetadata returns the metadata of project.
	GetProjectMetadata(ctx context.Context, project string) (map[string]any, error)
}

// StaticTarget is one target of a StaticProject.
type StaticTarget struct {
	Builder        string
	Options        map[string]any
	Configurations map[string]map[string]any
}

// StaticProject is one project of a StaticHost.
type StaticProject struct {
	Root     string
	Metadata map[string]any
	Targets  map[string]StaticTarget
}

// StaticBuilder is one builder of a StaticHost.
type StaticBuilder struct {
	Info BuilderInfo
	Fn   job.HandlerFunc
}

var _ Host = (*StaticHost)(nil)

// StaticHost is an in-memory Host. It is safe for concurrent use.
type StaticHost struct {
	mu               sync.RWMutex
	currentDirectory string
	workspaceRoot    string
	projects         map[string]StaticProject
	builders         map[string]StaticBuilder
}

// NewStaticHost creates an empty host rooted at workspaceRoot.
func NewStaticHost(workspaceRoot string) *StaticHost {
	return &StaticHost{
		currentDirectory: workspaceRoot,
		workspaceRoot:    workspaceRoot,
		projects:         make(map[string]StaticProject),
		builders:         make(map[string]StaticBuilder),
	}
}

// AddProject registers project under name.
func (h *StaticHost) AddProject(name string, project StaticProject) *StaticHost {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.projects[name] = project
	return h
}

// AddBuilder registers a builder implementation under info.Name.
func (h *StaticHost) AddBuilder(info BuilderInfo, fn job.HandlerFunc) *StaticHost {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.builders[info.Name] = StaticBuilder{Info: info, Fn: fn}
	return h
}

// SetCurrentDirectory sets the directory reported by GetCurrentDirectory.
func (h *StaticHost) SetCurrentDirectory(dir string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.currentDirectory = dir
}

func (h *StaticHost) target(t job.Target) (StaticTarget, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	p, ok := h.projects[t.Project]
	if !ok {
		return StaticTarget{}, false
	}
	st, ok := p.Targets[t.Target]
	return st, ok
}

// GetBuilderNameForTarget implements Host.
func (h *StaticHost) GetBuilderNameForTarget(_ context.Context, t job.Target) (string, error) {
	st, ok := h.target(t)
	if !ok {
		return "", nil
	}
	return st.Builder, nil
}

// GetOptionsForTarget implements Host. Configuration options are merged
// over the base options.
func (h *StaticHost) GetOptionsForTarget(_ context.Context, t job.Target) (map[string]any, error) {
	st, ok := h.target(t)
	if !ok {
		return nil, fmt.Errorf("%w: %s", architect.ErrInvalidTarget, t)
	}
	opts := make(map[string]any, len(st.Options))
	maps.Copy(opts, st.Options)
	if t.Configuration != "" {
		conf, ok := st.Configurations[t.Configuration]
		if !ok {
			return nil, fmt.Errorf("%w: configuration %q is not set for %s", architect.ErrInvalidTarget, t.Configuration, t)
		}
		maps.Copy(opts, conf)
	}
	return opts, nil
}

// ResolveBuilder implements Host.
func (h *StaticHost) ResolveBuilder(_ context.Context, builderName string) (*BuilderInfo, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	b, ok := h.builders[builderName]
	if !ok {
		return nil, nil
	}
	info := b.Info
	return &info, nil
}

// LoadBuilder implements Host.
func (h *StaticHost) LoadBuilder(_ context.Context, info *BuilderInfo) (job.HandlerFunc, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	b, ok := h.builders[info.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", architect.ErrBuilderNotFound, info.Name)
	}
	return b.Fn, nil
}

// GetCurrentDirectory implements Host.
func (h *StaticHost) GetCurrentDirectory(context.Context) (string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.currentDirectory, nil
}

// GetWorkspaceRoot implements Host.
func (h *StaticHost) GetWorkspaceRoot(context.Context) (string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.workspaceRoot, nil
}

// GetProjectMetadata implements Host. The project root is reported under
// "root".
func (h *StaticHost) GetProjectMetadata(_ context.Context, project string) (map[string]any, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	p, ok := h.projects[project]
	if !ok {
		return nil, fmt.Errorf("%w: unknown project %q", architect.ErrInvalidTarget, project)
	}
	md := make(map[string]any, len(p.Metadata)+1)
	maps.Copy(md, p.Metadata)
	md["root"] = p.Root
	return md, nil
}
