// Package engine wires the Architect subsystems together and provides the
// primary application-level API for registering and scheduling jobs.
//
// The engine package sits above the registry, scheduler, ext, middleware,
// observability and history packages and below the application layer, so
// none of those packages import each other through it.
//
// # Building an Engine
//
//	eng, err := engine.New(
//	    engine.WithHost(host),
//	    engine.WithLogger(logger),
//	    engine.WithHistory(pgStore),
//	    engine.WithExtension(stream.NewBroker(logger)),
//	)
//
// # Registering Jobs
//
//	eng.Register(job.Simple(job.Description{Name: "echo"}, echo))
//
// # Scheduling
//
//	j := eng.Schedule(ctx, "echo", 42)
//	out, err := engine.Result[float64](ctx, eng, "echo", 42)
//
//	j := eng.ScheduleTarget(ctx, job.Target{Project: "app", Target: "build"}, nil)
//	j, err := eng.ScheduleBuilder(ctx, "@acme/build:bundle", opts)
//
// # Name Resolution
//
// Names resolve against a fixed chain: "{project:target[:configuration]}"
// names against the host's targets, "package:builder" names against the
// host's builders, then the private jobs, then registries added with
// [WithRegistry] in order, and finally jobs added with [Engine.Register].
// Without a host, target and builder names skip the host-backed stages.
//
// # Private Jobs
//
// The engine always registers these jobs, which builders use to query the
// host:
//
//   - [JobGetTargetOptions] returns a target's merged options
//   - [JobGetProjectMetadata] returns a project's metadata
//   - [JobGetBuilderNameForTarget] returns the builder of a target
//   - [JobValidateOptions] validates options against a builder's schema
//
// # Options
//
//   - [WithConfig] sets the scheduler configuration
//   - [WithLogger] sets the structured logger
//   - [WithHost] connects the workspace host
//   - [WithRegistry] adds a job registry to the resolution chain
//   - [WithExtension] registers a lifecycle extension
//   - [WithMiddleware] adds a middleware to the execution chain
//   - [WithHistory] records every run in a history store
//   - [WithTracerProvider] sets the OpenTelemetry tracer provider
//   - [WithMeterProvider] sets the OpenTelemetry meter provider
package engine
