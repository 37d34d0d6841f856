// Package ext defines the extension system for Architect.
//
// Extensions are notified of job lifecycle events and can react to them:
// recording metrics, persisting run history, publishing to a stream.
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
//
// # Implementing an Extension
//
//	type MyExtension struct{}
//
//	func (e *MyExtension) Name() string { return "my-extension" }
//
//	// Opt in to specific hooks by implementing their interfaces.
//	func (e *MyExtension) OnJobEnded(ctx context.Context, j job.Job, elapsed time.Duration) error {
//	    log.Printf("job %s ended in %s", j.ID(), elapsed)
//	    return nil
//	}
//
// # Job Lifecycle Hooks
//
//   - [JobScheduled]: Schedule returned the job
//   - [JobReady]: the argument validated and OnReady was published
//   - [JobStarted]: the handler published Start
//   - [JobOutput]: the handler published a validated Output
//   - [JobEnded]: the job finished cleanly
//   - [JobErrored]: the job terminated with an error
//
// # Other Hooks
//
//   - [Shutdown]: the engine is shutting down
//
// The [Registry] fans out each event to all registered extensions that
// implement the corresponding hook interface.
package ext
