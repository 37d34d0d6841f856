// Package ext defines the extension system for Architect.
// Extensions are notified of job lifecycle events (scheduled, started,
// ended, errored, etc.) and can react to them: logging, metrics, history.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package ext

import (
	"context"
	"time"

	"github.com/xraph/architect/job"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Job lifecycle hooks
// ──────────────────────────────────────────────────

// JobScheduled is called when Schedule returns a new job.
type JobScheduled interface {
	OnJobScheduled(ctx context.Context, j job.Job) error
}

// JobReady is called after the job's argument validated and OnReady was
// published.
type JobReady interface {
	OnJobReady(ctx context.Context, j job.Job) error
}

// JobStarted is called when the handler published Start.
type JobStarted interface {
	OnJobStarted(ctx context.Context, j job.Job) error
}

// JobOutput is called for every validated Output value.
type JobOutput interface {
	OnJobOutput(ctx context.Context, j job.Job, value any) error
}

// JobEnded is called after a job finished cleanly.
type JobEnded interface {
	OnJobEnded(ctx context.Context, j job.Job, elapsed time.Duration) error
}

// JobErrored is called when a job terminates with an error.
type JobErrored interface {
	OnJobErrored(ctx context.Context, j job.Job, err error) error
}

// ──────────────────────────────────────────────────
// Other lifecycle hooks
// ──────────────────────────────────────────────────

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
