// Package scheduler runs jobs.
//
// [Scheduler.Schedule] returns a queued [job.Job] immediately and drives it
// in a goroutine:
//
//  1. wait while the scheduler is paused, then for the start limiter
//  2. resolve the handler through the registry (cached per name)
//  3. wait for every dependency to complete
//  4. validate the argument against the argument schema
//  5. publish OnReady and run the handler through the middleware chain
//
// Every message the handler emits passes one pipeline, in order: it is
// annotated with the job's identity and target, Output and channel values
// are validated against their schemas, messages the current state does not
// accept are dropped, and the rest are published to the job's outbound,
// output and channel streams.
//
// Inbound Ping messages are answered with Pong by the scheduler. Inputs are
// validated against the input schema and dropped with a warning when they
// fail. Stop is forwarded to the handler and cancels its context; a handler
// that then returns a context error ends cleanly.
package scheduler
