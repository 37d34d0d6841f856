package job

import (
	"context"
	"fmt"
	"regexp"

	"github.com/xraph/architect/schema"
)

// Description is the static metadata of a job handler. Once a handler is
// resolved its description is treated as immutable.
type Description struct {
	// Name is the job name the handler is registered under.
	Name string

	// Argument, Input and Output are schema descriptors. A nil descriptor
	// accepts anything.
	Argument schema.Schema
	Input    schema.Schema
	Output   schema.Schema

	// Channels maps side channel names to the schema of their messages.
	Channels map[string]schema.Schema

	// Metadata carries opaque additional information such as builder info.
	Metadata map[string]any
}

// HandlerFunc runs one job invocation. argument has already been validated
// against the argument schema. The function emits outbound messages through
// jc and returns when the job is done; a returned error fails the job.
type HandlerFunc func(ctx context.Context, argument any, jc *Context) error

// Handler is a HandlerFunc annotated with its Description.
type Handler struct {
	desc Description
	fn   HandlerFunc
}

// NewHandler creates a handler. It panics if desc has no name or fn is nil
// (programming error).
func NewHandler(desc Description, fn HandlerFunc) *Handler {
	if desc.Name == "" {
		panic("job: handler description has no name")
	}
	if fn == nil {
		panic(fmt.Sprintf("job: handler %q has nil function", desc.Name))
	}
	return &Handler{desc: desc, fn: fn}
}

// Name returns the job name.
func (h *Handler) Name() string { return h.desc.Name }

// Description returns the handler's static metadata.
func (h *Handler) Description() Description { return h.desc }

// Run invokes the handler function.
func (h *Handler) Run(ctx context.Context, argument any, jc *Context) error {
	return h.fn(ctx, argument, jc)
}

// Target is a project target reference, written in job names as
// {project:target} or {project:target:configuration}.
type Target struct {
	Project       string `json:"project"`
	Target        string `json:"target"`
	Configuration string `json:"configuration,omitempty"`
}

var targetPattern = regexp.MustCompile(`^\{([^:{}]+):([^:{}]+)(?::([^:{}]*))?\}$`)

// ParseTarget parses the braced target form of a job name.
func ParseTarget(name string) (Target, bool) {
	m := targetPattern.FindStringSubmatch(name)
	if m == nil {
		return Target{}, false
	}
	return Target{Project: m[1], Target: m[2], Configuration: m[3]}, true
}

// String returns the braced job name form of t.
func (t Target) String() string {
	if t.Configuration == "" {
		return "{" + t.Project + ":" + t.Target + "}"
	}
	return "{" + t.Project + ":" + t.Target + ":" + t.Configuration + "}"
}

// Metadata keys set by the built-in registries.
const (
	// MetadataTarget holds the Target a target job was resolved from.
	MetadataTarget = "target"
	// MetadataBuilderInfo holds the builder info of builder jobs.
	MetadataBuilderInfo = "builderInfo"
)

// TargetOf returns the target recorded in d's metadata, if any.
func (d Description) TargetOf() (*Target, bool) {
	t, ok := d.Metadata[MetadataTarget].(Target)
	if !ok {
		return nil, false
	}
	return &t, true
}
