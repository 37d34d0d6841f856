// Package architect provides a pluggable job execution and scheduling runtime.
// Jobs are named, schema-described units of asynchronous work resolved through
// a chain of registries, started by a scheduler, and observed through a live
// job handle with an output stream, named side channels, ping/stop controls
// and an input sink.
//
// # Quick Start
//
//	reg := registry.NewSimple()
//	reg.Register(job.Simple(job.Description{
//	    Name:     "echo",
//	    Argument: map[string]any{"type": "number"},
//	    Output:   map[string]any{"type": "number"},
//	}, func(_ context.Context, arg any, _ *job.Context) (any, error) {
//	    return arg.(float64) * 2, nil
//	}))
//
//	s := scheduler.New(reg)
//	j := s.Schedule(ctx, "echo", 5)
//	out, err := j.Result(ctx) // 10
//
// # Architecture
//
// A Registry maps a job name to a Handler. Registries compose through a
// Fallback registry which queries each member in order. The Scheduler
// validates the argument against the handler's argument schema, waits for
// dependencies and for the scheduler to be unpaused, invokes the handler and
// runs every message the handler emits through an ordered pipeline of stages
// (annotate, validate output, filter by state) before publishing it to the
// job's outbound feed.
//
// All job instance IDs use TypeID: type-prefixed, K-sortable, UUIDv7-based
// identifiers.
package architect
