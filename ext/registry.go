package ext

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/architect/job"
)

// Named entry types pair a hook implementation with the extension name
// captured at registration time.
type jobScheduledEntry struct {
	name string
	hook JobScheduled
}

type jobReadyEntry struct {
	name string
	hook JobReady
}

type jobStartedEntry struct {
	name string
	hook JobStarted
}

type jobOutputEntry struct {
	name string
	hook JobOutput
}

type jobEndedEntry struct {
	name string
	hook JobEnded
}

type jobErroredEntry struct {
	name string
	hook JobErrored
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
//
// Register must not be called concurrently with the emit methods.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	jobScheduled []jobScheduledEntry
	jobReady     []jobReadyEntry
	jobStarted   []jobStartedEntry
	jobOutput    []jobOutputEntry
	jobEnded     []jobEndedEntry
	jobErrored   []jobErroredEntry
	shutdown     []shutdownEntry
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(JobScheduled); ok {
		r.jobScheduled = append(r.jobScheduled, jobScheduledEntry{name, h})
	}
	if h, ok := e.(JobReady); ok {
		r.jobReady = append(r.jobReady, jobReadyEntry{name, h})
	}
	if h, ok := e.(JobStarted); ok {
		r.jobStarted = append(r.jobStarted, jobStartedEntry{name, h})
	}
	if h, ok := e.(JobOutput); ok {
		r.jobOutput = append(r.jobOutput, jobOutputEntry{name, h})
	}
	if h, ok := e.(JobEnded); ok {
		r.jobEnded = append(r.jobEnded, jobEndedEntry{name, h})
	}
	if h, ok := e.(JobErrored); ok {
		r.jobErrored = append(r.jobErrored, jobErroredEntry{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// ──────────────────────────────────────────────────
// Job event emitters
// ──────────────────────────────────────────────────

// EmitJobScheduled notifies all extensions that implement JobScheduled.
func (r *Registry) EmitJobScheduled(ctx context.Context, j job.Job) {
	for _, e := range r.jobScheduled {
		if err := e.hook.OnJobScheduled(ctx, j); err != nil {
			r.logHookError("OnJobScheduled", e.name, err)
		}
	}
}

// EmitJobReady notifies all extensions that implement JobReady.
func (r *Registry) EmitJobReady(ctx context.Context, j job.Job) {
	for _, e := range r.jobReady {
		if err := e.hook.OnJobReady(ctx, j); err != nil {
			r.logHookError("OnJobReady", e.name, err)
		}
	}
}

// EmitJobStarted notifies all extensions that implement JobStarted.
func (r *Registry) EmitJobStarted(ctx context.Context, j job.Job) {
	for _, e := range r.jobStarted {
		if err := e.hook.OnJobStarted(ctx, j); err != nil {
			r.logHookError("OnJobStarted", e.name, err)
		}
	}
}

// EmitJobOutput notifies all extensions that implement JobOutput.
func (r *Registry) EmitJobOutput(ctx context.Context, j job.Job, value any) {
	for _, e := range r.jobOutput {
		if err := e.hook.OnJobOutput(ctx, j, value); err != nil {
			r.logHookError("OnJobOutput", e.name, err)
		}
	}
}

// EmitJobEnded notifies all extensions that implement JobEnded.
func (r *Registry) EmitJobEnded(ctx context.Context, j job.Job, elapsed time.Duration) {
	for _, e := range r.jobEnded {
		if err := e.hook.OnJobEnded(ctx, j, elapsed); err != nil {
			r.logHookError("OnJobEnded", e.name, err)
		}
	}
}

// EmitJobErrored notifies all extensions that implement JobErrored.
func (r *Registry) EmitJobErrored(ctx context.Context, j job.Job, jobErr error) {
	for _, e := range r.jobErrored {
		if err := e.hook.OnJobErrored(ctx, j, jobErr); err != nil {
			r.logHookError("OnJobErrored", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Other event emitters
// ──────────────────────────────────────────────────

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Errors from hooks are never propagated.
func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
