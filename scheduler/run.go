package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xraph/architect"
	"github.com/xraph/architect/bus"
	"github.com/xraph/architect/id"
	"github.com/xraph/architect/job"
)

var _ job.Job = (*run)(nil)

// run is one scheduled job instance.
type run struct {
	s         *Scheduler
	id        id.JobID
	name      string
	argument  any
	validated any
	deps      []job.Job
	scheduled time.Time

	// ctx is cancelled by Stop and by cancellation of the Schedule context.
	ctx     context.Context
	cancel  context.CancelFunc
	hookCtx context.Context
	stopped atomic.Bool

	stateMu sync.RWMutex
	state   job.State

	handler *job.Handler
	desc    job.Description
	target  *job.Target

	outbound *bus.Feed[job.Message]
	output   *bus.Feed[any]

	// inbox and inbound each have exactly one reader whose cursor exists
	// from the start, so values are dropped as soon as they are read.
	inbox      *bus.Feed[job.InboundMessage]
	inboxCur   *bus.Cursor[job.InboundMessage]
	inbound    *bus.Feed[job.InboundMessage]
	inboundCur *bus.Cursor[job.InboundMessage]

	chMu     sync.Mutex
	channels map[string]*bus.Feed[any]
	closed   bool

	raw      chan job.Message
	finished chan struct{}
	done     chan struct{}

	finishOnce sync.Once
	errMu      sync.RWMutex
	err        error
	pingSeq    atomic.Int64
}

func newRun(ctx context.Context, s *Scheduler, name string, argument any, deps []job.Job) *run {
	rctx, cancel := context.WithCancel(ctx)
	r := &run{
		s:         s,
		id:        id.NewJobID(),
		name:      name,
		argument:  argument,
		deps:      deps,
		scheduled: time.Now(),
		ctx:       rctx,
		cancel:    cancel,
		hookCtx:   context.WithoutCancel(ctx),
		state:     job.StateQueued,
		outbound:  bus.NewFeed[job.Message](s.replayOpts()...),
		output:    bus.NewFeed[any](bus.WithReplay(1)),
		inbox:     bus.NewFeed[job.InboundMessage](bus.WithReplay(0)),
		inbound:   bus.NewFeed[job.InboundMessage](bus.WithReplay(0)),
		channels:  make(map[string]*bus.Feed[any]),
		raw:       make(chan job.Message),
		finished:  make(chan struct{}),
		done:      make(chan struct{}),
	}
	r.inboxCur = r.inbox.Subscribe()
	r.inboundCur = r.inbound.Subscribe()
	return r
}

// ID implements job.Job.
func (r *run) ID() id.JobID { return r.id }

// Name implements job.Job.
func (r *run) Name() string { return r.name }

// Argument implements job.Job.
func (r *run) Argument() any { return r.argument }

// State implements job.Job.
func (r *run) State() job.State {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	return r.state
}

func (r *run) setState(s job.State) {
	r.stateMu.Lock()
	r.state = s
	r.stateMu.Unlock()
}

// Description implements job.Job.
func (r *run) Description(ctx context.Context) (job.Description, error) {
	desc, ok, err := r.s.GetDescription(ctx, r.name)
	if err != nil {
		return job.Description{}, err
	}
	if !ok {
		return job.Description{}, architect.JobDoesNotExist(r.name)
	}
	return desc, nil
}

// Outbound implements job.Job.
func (r *run) Outbound() *bus.Cursor[job.Message] { return r.outbound.Subscribe() }

// Output implements job.Job.
func (r *run) Output() *bus.Cursor[any] { return r.output.SubscribeLatest() }

// Channel implements job.Job.
func (r *run) Channel(name string) *bus.Cursor[any] { return r.channel(name).Subscribe() }

// channel returns the feed of the named side channel, creating it on first
// use. Feeds created after the job finished are closed immediately.
func (r *run) channel(name string) *bus.Feed[any] {
	r.chMu.Lock()
	defer r.chMu.Unlock()
	f, ok := r.channels[name]
	if !ok {
		f = bus.NewFeed[any](r.s.replayOpts()...)
		r.channels[name] = f
		if r.closed {
			f.Close(r.Err())
		}
	}
	return f
}

// Input implements job.Job.
func (r *run) Input(value any) {
	r.inbox.Publish(job.InboundMessage{Kind: job.InboundInput, Value: value})
}

// Ping implements job.Job.
func (r *run) Ping(ctx context.Context) error {
	sub := r.outbound.SubscribeNew()
	defer sub.Close()
	pingID := r.pingSeq.Add(1)
	if !r.inbox.Publish(job.InboundMessage{Kind: job.InboundPing, PingID: pingID}) {
		return architect.ErrJobFinished
	}
	for {
		m, err := sub.Next(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return architect.ErrJobFinished
		}
		if m.Kind == job.KindPong && m.PingID == pingID {
			return nil
		}
	}
}

// Stop implements job.Job.
func (r *run) Stop() {
	if r.stopped.Swap(true) {
		return
	}
	r.inbox.Publish(job.InboundMessage{Kind: job.InboundStop})
	r.cancel()
}

// Done implements job.Job.
func (r *run) Done() <-chan struct{} { return r.done }

// Err implements job.Job.
func (r *run) Err() error {
	r.errMu.RLock()
	defer r.errMu.RUnlock()
	return r.err
}

// Wait implements job.Job.
func (r *run) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Result implements job.Job.
func (r *run) Result(ctx context.Context) (any, error) {
	if err := r.Wait(ctx); err != nil {
		return nil, err
	}
	v, _ := r.output.Last()
	return v, nil
}

// run drives the job from admission to termination.
func (r *run) run(t *ticket) {
	r.s.extensions.EmitJobScheduled(r.hookCtx, r)

	if err := r.prepare(t); err != nil {
		r.finish(err)
		return
	}

	if r.process(job.Message{Kind: job.KindOnReady}) {
		return
	}

	jc := job.NewContext(r, r.desc, r.deps, r.s, r.inboundCur, r.emit)
	go r.dispatch()

	handlerDone := make(chan error, 1)
	go func() {
		handlerDone <- r.s.chain(r.ctx, r, func(ctx context.Context) error {
			return r.handler.Run(ctx, r.validated, jc)
		})
	}()

	for {
		select {
		case m := <-r.raw:
			if r.process(m) {
				return
			}
		case err := <-handlerDone:
			if err != nil && !(r.stopped.Load() && errors.Is(err, context.Canceled)) {
				r.finish(err)
				return
			}
			// A handler that returns without End ends the job.
			if !r.process(job.Message{Kind: job.KindEnd}) {
				r.finish(nil)
			}
			return
		}
	}
}

// prepare admits, resolves and validates the job. On success r.validated
// holds the argument with schema defaults applied.
func (r *run) prepare(t *ticket) error {
	if t != nil {
		select {
		case <-t.release:
		case <-r.ctx.Done():
		}
		t.admit()
	}
	if err := r.ctxErr(); err != nil {
		return err
	}
	if r.s.limiter != nil {
		if err := r.s.limiter.Wait(r.ctx); err != nil {
			if ctxErr := r.ctxErr(); ctxErr != nil {
				return ctxErr
			}
			return err
		}
	}

	h, ok, err := r.s.resolve(r.ctx, r.name)
	if err != nil {
		if ctxErr := r.ctxErr(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	if !ok {
		return architect.JobDoesNotExist(r.name)
	}
	r.handler = h
	r.desc = h.Description()
	r.target, _ = r.desc.TargetOf()

	if err := r.awaitDependencies(); err != nil {
		return err
	}

	res, err := r.s.schemas.Validate(r.ctx, r.desc.Argument, r.argument)
	if err != nil {
		if ctxErr := r.ctxErr(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	if !res.Success {
		return architect.NewSchemaValidationError(architect.ErrArgumentSchemaValidation, r.name, res.Errors)
	}
	r.validated = res.Data
	return nil
}

func (r *run) awaitDependencies() error {
	if len(r.deps) == 0 {
		return nil
	}
	g, gctx := errgroup.WithContext(r.ctx)
	for _, dep := range r.deps {
		g.Go(func() error {
			if err := dep.Wait(gctx); err != nil {
				return fmt.Errorf("dependency %s (%s): %w", dep.Name(), dep.ID(), err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctxErr := r.ctxErr(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

// ctxErr reports why the job context is done, if it is.
func (r *run) ctxErr() error {
	err := r.ctx.Err()
	if err == nil {
		return nil
	}
	if r.stopped.Load() {
		return architect.ErrJobStopped
	}
	return err
}

// emit hands a handler message to the pipeline.
func (r *run) emit(_ context.Context, m job.Message) error {
	select {
	case r.raw <- m:
		return nil
	case <-r.finished:
		return architect.ErrJobFinished
	}
}

// finish terminates the job. The first call wins. Lifecycle hooks run
// before Done is closed.
func (r *run) finish(err error) {
	r.finishOnce.Do(func() {
		state := job.StateEnded
		if err != nil {
			state = job.StateErrored
		}
		r.errMu.Lock()
		r.err = err
		r.errMu.Unlock()
		r.setState(state)
		close(r.finished)

		r.outbound.Close(err)
		r.output.Close(err)
		r.chMu.Lock()
		r.closed = true
		for _, f := range r.channels {
			f.Close(err)
		}
		r.chMu.Unlock()
		r.inbox.Close(nil)
		r.inbound.Close(nil)
		r.cancel()
		r.s.forget(r)
		defer close(r.done)

		elapsed := time.Since(r.scheduled)
		if err != nil {
			r.s.logger.Warn("job errored",
				slog.String("job_id", r.id.String()),
				slog.String("job_name", r.name),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
			r.s.extensions.EmitJobErrored(r.hookCtx, r, err)
			return
		}
		r.s.logger.Debug("job ended",
			slog.String("job_id", r.id.String()),
			slog.String("job_name", r.name),
			slog.Duration("elapsed", elapsed),
		)
		r.s.extensions.EmitJobEnded(r.hookCtx, r, elapsed)
	})
}
