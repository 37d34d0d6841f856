package history

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/architect/ext"
	"github.com/xraph/architect/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension    = (*Recorder)(nil)
	_ ext.JobScheduled = (*Recorder)(nil)
	_ ext.JobReady     = (*Recorder)(nil)
	_ ext.JobStarted   = (*Recorder)(nil)
	_ ext.JobOutput    = (*Recorder)(nil)
	_ ext.JobEnded     = (*Recorder)(nil)
	_ ext.JobErrored   = (*Recorder)(nil)
)

// Recorder journals job lifecycle transitions into a Store. Runs are
// saved on every state change; output counters are saved with the next
// state change.
type Recorder struct {
	store  Store
	logger *slog.Logger

	mu       sync.Mutex
	inflight map[string]*Run
}

// NewRecorder creates a recorder writing to store. A nil logger uses
// slog.Default().
func NewRecorder(store Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		store:    store,
		logger:   logger,
		inflight: make(map[string]*Run),
	}
}

// Name implements ext.Extension.
func (r *Recorder) Name() string { return "history" }

// Store returns the underlying store.
func (r *Recorder) Store() Store { return r.store }

func (r *Recorder) OnJobScheduled(ctx context.Context, j job.Job) error {
	run := &Run{
		ID:          j.ID(),
		Name:        j.Name(),
		State:       job.StateQueued,
		ScheduledAt: time.Now().UTC(),
	}
	if t, ok := job.ParseTarget(j.Name()); ok {
		run.Target = t.String()
	}
	run.Argument = r.marshal(j, j.Argument())

	r.mu.Lock()
	r.inflight[run.ID.String()] = run
	snapshot := *run
	r.mu.Unlock()

	return r.store.SaveRun(ctx, &snapshot)
}

func (r *Recorder) OnJobReady(ctx context.Context, j job.Job) error {
	return r.update(ctx, j, false, func(run *Run) {
		run.State = job.StateReady
	})
}

func (r *Recorder) OnJobStarted(ctx context.Context, j job.Job) error {
	return r.update(ctx, j, false, func(run *Run) {
		now := time.Now().UTC()
		run.State = job.StateStarted
		run.StartedAt = &now
	})
}

// OnJobOutput only updates the in-flight record.
func (r *Recorder) OnJobOutput(_ context.Context, j job.Job, value any) error {
	raw := r.marshal(j, value)
	r.mu.Lock()
	defer r.mu.Unlock()
	if run, ok := r.inflight[j.ID().String()]; ok {
		run.Outputs++
		run.LastOutput = raw
	}
	return nil
}

func (r *Recorder) OnJobEnded(ctx context.Context, j job.Job, elapsed time.Duration) error {
	return r.update(ctx, j, true, func(run *Run) {
		now := time.Now().UTC()
		run.State = job.StateEnded
		run.EndedAt = &now
		run.Elapsed = elapsed
	})
}

func (r *Recorder) OnJobErrored(ctx context.Context, j job.Job, jobErr error) error {
	return r.update(ctx, j, true, func(run *Run) {
		now := time.Now().UTC()
		run.State = job.StateErrored
		run.EndedAt = &now
		run.Elapsed = now.Sub(run.ScheduledAt)
		if jobErr != nil {
			run.Error = jobErr.Error()
		}
	})
}

// update applies fn to the in-flight run and saves a snapshot. Terminal
// updates drop the run from the in-flight set.
func (r *Recorder) update(ctx context.Context, j job.Job, terminal bool, fn func(*Run)) error {
	r.mu.Lock()
	run, ok := r.inflight[j.ID().String()]
	if !ok {
		// Scheduled before the recorder was registered.
		run = &Run{ID: j.ID(), Name: j.Name(), ScheduledAt: time.Now().UTC()}
		r.inflight[run.ID.String()] = run
	}
	fn(run)
	snapshot := *run
	if terminal {
		delete(r.inflight, run.ID.String())
	}
	r.mu.Unlock()

	return r.store.SaveRun(ctx, &snapshot)
}

// marshal encodes v for the journal. Values that are not JSON-serializable
// are recorded as null.
func (r *Recorder) marshal(j job.Job, v any) json.RawMessage {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		r.logger.Debug("history: value not serializable",
			slog.String("job_id", j.ID().String()),
			slog.String("job_name", j.Name()),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return raw
}

// Inflight returns the number of runs that have not terminated.
func (r *Recorder) Inflight() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inflight)
}
