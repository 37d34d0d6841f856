// Package job defines the job data model, the handler contract and the
// interfaces shared by registries, the scheduler and callers.
//
// # Lifecycle
//
// Every job instance moves forward through a state machine driven by the
// outbound messages its handler emits:
//
//	queued → ready → started → ended
//	queued → ready → ended
//	(any non-terminal) → errored
//
// [KindOnReady] is emitted by the runtime once the argument validated.
// [KindStart] and [KindEnd] come from the handler; if the handler returns
// without an explicit End the runtime appends one. Lifecycle messages that
// arrive in the wrong state are dropped.
//
// # Defining a Job
//
// A [Handler] pairs a [Description] with a [HandlerFunc]. Most jobs compute a
// single result and can use [Simple] or [Typed]:
//
//	var Echo = job.Typed(job.Description{
//	    Name:     "echo",
//	    Argument: map[string]any{"type": "number"},
//	    Output:   map[string]any{"type": "number"},
//	}, func(_ context.Context, n float64, _ *job.Context) (float64, error) {
//	    return n * 2, nil
//	})
//
// Streaming jobs use [NewHandler] and emit through the [Context]:
//
//	job.NewHandler(desc, func(ctx context.Context, arg any, jc *job.Context) error {
//	    jc.Start(ctx)
//	    for {
//	        msg, err := jc.Receive(ctx)
//	        if err != nil {
//	            return nil
//	        }
//	        jc.Output(ctx, msg.Value)
//	    }
//	})
package job
