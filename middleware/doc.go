// Package middleware provides composable middleware for job handlers.
//
// A [Middleware] is a function that wraps a job handler. Middleware are
// composed into a chain using [Chain] and applied around every handler
// run. They are applied right-to-left: the first middleware in the slice
// is the outermost wrapper.
//
//	// logging → recover → handler
//	chain := middleware.Chain(middleware.Logging(logger), middleware.Recover(logger))
//
// # Built-in Middleware
//
//   - [Logging]: logs job name, duration and outcome of each handler run
//   - [Recover]: catches panics and converts them to errors
//   - [Timeout]: cancels the handler context after a fixed duration
//   - [Tracing]: wraps the handler in an OpenTelemetry span
//   - [Metrics]: records per-job duration and outcome counters
//
// # Writing Custom Middleware
//
//	func MyMiddleware() middleware.Middleware {
//	    return func(ctx context.Context, j job.Job, next middleware.Handler) error {
//	        // pre-processing
//	        err := next(ctx)
//	        // post-processing
//	        return err
//	    }
//	}
//
// Middleware run inside the job's handler goroutine. Messages emitted by
// the handler still pass the scheduler's validation and state filter.
package middleware
