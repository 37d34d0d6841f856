package scheduler

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/xraph/architect"
	"github.com/xraph/architect/bus"
	"github.com/xraph/architect/ext"
	"github.com/xraph/architect/id"
	"github.com/xraph/architect/job"
	mw "github.com/xraph/architect/middleware"
	"github.com/xraph/architect/schema"
)

var _ job.Scheduler = (*Scheduler)(nil)

// Scheduler resolves job names through a registry and runs the resulting
// handlers. It is safe for concurrent use.
type Scheduler struct {
	registry   job.Registry
	schemas    *schema.Registry
	extensions *ext.Registry
	mws        []mw.Middleware
	chain      mw.Middleware
	logger     *slog.Logger
	config     architect.Config
	limiter    *rate.Limiter

	group    singleflight.Group
	cacheMu  sync.RWMutex
	handlers map[string]*job.Handler

	pauseMu sync.Mutex
	paused  int
	queue   []*ticket

	activeMu sync.Mutex
	active   map[id.JobID]*run
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithConfig sets the scheduler configuration.
func WithConfig(cfg architect.Config) Option {
	return func(s *Scheduler) { s.config = cfg }
}

// WithExtensions sets the extension registry notified of job lifecycle
// events.
func WithExtensions(r *ext.Registry) Option {
	return func(s *Scheduler) { s.extensions = r }
}

// WithMiddleware appends middleware wrapped around every handler run.
func WithMiddleware(mws ...mw.Middleware) Option {
	return func(s *Scheduler) { s.mws = append(s.mws, mws...) }
}

// WithSchemaRegistry sets the schema registry used for validation, so
// compiled schemas can be shared with other components.
func WithSchemaRegistry(r *schema.Registry) Option {
	return func(s *Scheduler) { s.schemas = r }
}

// New creates a Scheduler that resolves names through registry.
func New(registry job.Registry, opts ...Option) *Scheduler {
	s := &Scheduler{
		registry: registry,
		config:   architect.DefaultConfig(),
		handlers: make(map[string]*job.Handler),
		active:   make(map[id.JobID]*run),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.schemas == nil {
		s.schemas = schema.NewRegistry()
	}
	if s.extensions == nil {
		s.extensions = ext.NewRegistry(s.logger)
	}
	if s.config.StartRate > 0 {
		burst := s.config.StartBurst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(s.config.StartRate), burst)
	}

	// Recover sits innermost so outer middleware observe panics as errors.
	s.chain = mw.Chain(append(append([]mw.Middleware{}, s.mws...), mw.Recover(s.logger))...)
	return s
}

// Schedule implements job.Scheduler. The job runs under ctx: cancelling it
// fails the job with the context error.
func (s *Scheduler) Schedule(ctx context.Context, name string, argument any, opts ...job.ScheduleOption) job.Job {
	o := job.ApplyScheduleOptions(opts...)
	r := newRun(ctx, s, name, argument, o.Dependencies)

	s.activeMu.Lock()
	s.active[r.id] = r
	s.activeMu.Unlock()

	s.logger.Debug("job scheduled",
		slog.String("job_id", r.id.String()),
		slog.String("job_name", name),
	)
	// The pause ticket is taken here so release order follows Schedule
	// order; the scheduled hook runs on the job goroutine.
	go r.run(s.admit())
	return r
}

// Pause implements job.Scheduler. Jobs scheduled while at least one pause
// is outstanding stay queued; they are admitted in scheduling order once
// every resume function has been called.
func (s *Scheduler) Pause() func() {
	s.pauseMu.Lock()
	s.paused++
	s.pauseMu.Unlock()

	var once sync.Once
	return func() { once.Do(s.resume) }
}

func (s *Scheduler) resume() {
	s.pauseMu.Lock()
	s.paused--
	var release []*ticket
	if s.paused == 0 {
		release, s.queue = s.queue, nil
	}
	s.pauseMu.Unlock()

	if len(release) == 0 {
		return
	}
	go func() {
		for _, t := range release {
			close(t.release)
			<-t.admitted
		}
	}()
}

// Paused reports whether jobs scheduled now would be held back.
func (s *Scheduler) Paused() bool {
	s.pauseMu.Lock()
	defer s.pauseMu.Unlock()
	return s.paused > 0
}

// ticket gates one job's admission. release is closed by the scheduler;
// admitted is closed by the job once it has passed the gate.
type ticket struct {
	release  chan struct{}
	admitted chan struct{}
	once     sync.Once
}

func (t *ticket) admit() { t.once.Do(func() { close(t.admitted) }) }

// admit returns the ticket of a job scheduled now, or nil if the job may
// start immediately.
func (s *Scheduler) admit() *ticket {
	s.pauseMu.Lock()
	defer s.pauseMu.Unlock()
	if s.paused == 0 {
		return nil
	}
	t := &ticket{release: make(chan struct{}), admitted: make(chan struct{})}
	s.queue = append(s.queue, t)
	return t
}

// resolve looks up name, caching positive results. Concurrent lookups of
// one name share a single registry call that is detached from every
// caller's cancellation; each caller stops waiting when its own ctx is done.
func (s *Scheduler) resolve(ctx context.Context, name string) (*job.Handler, bool, error) {
	s.cacheMu.RLock()
	h, ok := s.handlers[name]
	s.cacheMu.RUnlock()
	if ok {
		return h, true, nil
	}

	shared := context.WithoutCancel(ctx)
	ch := s.group.DoChan(name, func() (any, error) {
		h, ok, err := s.registry.Get(shared, name)
		if err != nil || !ok {
			return (*job.Handler)(nil), err
		}
		s.cacheMu.Lock()
		s.handlers[name] = h
		s.cacheMu.Unlock()
		return h, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		h, _ = res.Val.(*job.Handler)
		return h, h != nil, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// GetDescription implements job.Scheduler.
func (s *Scheduler) GetDescription(ctx context.Context, name string) (job.Description, bool, error) {
	h, ok, err := s.resolve(ctx, name)
	if err != nil || !ok {
		return job.Description{}, false, err
	}
	return h.Description(), true, nil
}

// Has implements job.Scheduler.
func (s *Scheduler) Has(ctx context.Context, name string) (bool, error) {
	_, ok, err := s.resolve(ctx, name)
	return ok, err
}

// Active returns the number of jobs that have not terminated.
func (s *Scheduler) Active() int {
	s.activeMu.Lock()
	defer s.activeMu.Unlock()
	return len(s.active)
}

// Shutdown stops every active job and waits for them to terminate or for
// ctx to be done.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.activeMu.Lock()
	runs := make([]*run, 0, len(s.active))
	for _, r := range s.active {
		runs = append(runs, r)
	}
	s.activeMu.Unlock()

	for _, r := range runs {
		r.Stop()
	}
	for _, r := range runs {
		select {
		case <-r.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// replayOpts bounds the outbound and channel feeds of new jobs.
func (s *Scheduler) replayOpts() []bus.Option {
	if s.config.MessageReplay <= 0 {
		return nil
	}
	return []bus.Option{bus.WithReplay(s.config.MessageReplay)}
}

func (s *Scheduler) forget(r *run) {
	s.activeMu.Lock()
	delete(s.active, r.id)
	s.activeMu.Unlock()
}
