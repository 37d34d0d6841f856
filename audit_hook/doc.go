// Package audithook is an Architect extension that bridges job lifecycle
// events to an immutable audit trail backend.
//
// Every job lifecycle hook emits a structured audit event through the
// [Recorder] interface. The extension assigns severity levels (info for
// normal transitions, warning for stopped jobs, critical for failures) and
// metadata such as the job name, target and elapsed time.
//
// # Usage
//
//	eng, _ := engine.New(engine.WithExtension(
//	    audithook.New(audithook.RecorderFunc(func(ctx context.Context, evt *audithook.AuditEvent) error {
//	        return auditLog.Append(ctx, evt)
//	    })),
//	))
//
// # Selective filtering
//
//	audithook.New(recorder,
//	    audithook.WithActions(
//	        audithook.ActionJobEnded,
//	        audithook.ActionJobErrored,
//	    ),
//	)
package audithook
