package job

import (
	"context"

	"github.com/xraph/architect/bus"
	"github.com/xraph/architect/id"
)

// Registry resolves job names to handlers. A name the registry does not
// recognise yields (nil, false, nil); errors are reserved for exceptional
// conditions.
type Registry interface {
	Get(ctx context.Context, name string) (*Handler, bool, error)
}

// RegistryFunc adapts a function to the Registry interface.
type RegistryFunc func(ctx context.Context, name string) (*Handler, bool, error)

// Get implements Registry.
func (f RegistryFunc) Get(ctx context.Context, name string) (*Handler, bool, error) {
	return f(ctx, name)
}

// Scheduler turns a job name and argument into a running Job.
type Scheduler interface {
	// Schedule returns immediately with a queued job. Resolution and
	// validation failures surface through the job, never from Schedule.
	Schedule(ctx context.Context, name string, argument any, opts ...ScheduleOption) Job

	// Pause holds back jobs scheduled from now on until every returned
	// resume function has been called. Resume functions are idempotent.
	Pause() (resume func())

	// GetDescription resolves name without side effects.
	GetDescription(ctx context.Context, name string) (Description, bool, error)

	// Has reports whether name resolves to a handler.
	Has(ctx context.Context, name string) (bool, error)
}

// Job is the caller-facing handle of one job instance.
type Job interface {
	ID() id.JobID
	Name() string
	Argument() any
	State() State

	// Description resolves the job's description. It fails with an error
	// wrapping ErrJobDoesNotExist if the name is unknown.
	Description(ctx context.Context) (Description, error)

	// Outbound replays every published outbound message from the first.
	Outbound() *bus.Cursor[Message]

	// Output yields Output payloads, starting at the most recent one.
	Output() *bus.Cursor[any]

	// Channel yields the validated messages of the named side channel.
	Channel(name string) *bus.Cursor[any]

	// Input pushes a value to the handler. Values failing the input
	// schema are dropped.
	Input(value any)

	// Ping sends a Ping and waits for the matching Pong.
	Ping(ctx context.Context) error

	// Stop asks the handler to stop.
	Stop()

	// Done is closed when the job terminates.
	Done() <-chan struct{}

	// Err returns the terminal error; nil while running or after a clean end.
	Err() error

	// Wait blocks until the job terminates and returns its error.
	Wait(ctx context.Context) error

	// Result waits for termination and returns the last output.
	Result(ctx context.Context) (any, error)
}

// ScheduleOptions configures one Schedule call.
type ScheduleOptions struct {
	// Dependencies must complete before the job's handler runs.
	Dependencies []Job
}

// ScheduleOption is a functional option for Schedule.
type ScheduleOption func(*ScheduleOptions)

// WithDependencies adds jobs the new job waits for.
func WithDependencies(jobs ...Job) ScheduleOption {
	return func(o *ScheduleOptions) {
		for _, j := range jobs {
			if j != nil {
				o.Dependencies = append(o.Dependencies, j)
			}
		}
	}
}

// ApplyScheduleOptions folds opts into a ScheduleOptions.
func ApplyScheduleOptions(opts ...ScheduleOption) ScheduleOptions {
	var o ScheduleOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
