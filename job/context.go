package job

import (
	"context"
	"sync"

	"github.com/xraph/architect/bus"
)

// EmitFunc delivers one outbound message into the scheduler pipeline. It
// returns once the pipeline has accepted the message.
type EmitFunc func(ctx context.Context, m Message) error

// Context is handed to a HandlerFunc. It exposes the job's description,
// its dependencies, the inbound message stream and the scheduler, and is
// the only way for a handler to emit outbound messages.
type Context struct {
	// Job is the handle of the running job.
	Job Job

	// Description is the resolved description of the job.
	Description Description

	// Dependencies are the jobs this job waited for.
	Dependencies []Job

	// Scheduler allows a handler to schedule sub-jobs.
	Scheduler Scheduler

	inbound *bus.Cursor[InboundMessage]
	emit    EmitFunc

	mu       sync.Mutex
	channels map[string]struct{}
}

// NewContext creates a handler context. It is called by schedulers.
func NewContext(j Job, desc Description, deps []Job, s Scheduler, inbound *bus.Cursor[InboundMessage], emit EmitFunc) *Context {
	return &Context{
		Job:          j,
		Description:  desc,
		Dependencies: deps,
		Scheduler:    s,
		inbound:      inbound,
		emit:         emit,
		channels:     make(map[string]struct{}),
	}
}

// Receive blocks for the next inbound message. It returns io.EOF once the
// job has finished.
func (c *Context) Receive(ctx context.Context) (InboundMessage, error) {
	return c.inbound.Next(ctx)
}

// Emit sends a raw outbound message.
func (c *Context) Emit(ctx context.Context, m Message) error {
	return c.emit(ctx, m)
}

// Start signals that the job's work has begun.
func (c *Context) Start(ctx context.Context) error {
	return c.emit(ctx, Message{Kind: KindStart})
}

// Output publishes the job's current result.
func (c *Context) Output(ctx context.Context, value any) error {
	return c.emit(ctx, Message{Kind: KindOutput, Value: value})
}

// End signals that the job completed.
func (c *Context) End(ctx context.Context) error {
	return c.emit(ctx, Message{Kind: KindEnd})
}

// Channel returns a writer for the named side channel.
func (c *Context) Channel(name string) *ChannelWriter {
	return &ChannelWriter{jc: c, name: name}
}

// ensureChannel emits ChannelCreate the first time name is used.
func (c *Context) ensureChannel(ctx context.Context, name string) error {
	c.mu.Lock()
	_, created := c.channels[name]
	c.channels[name] = struct{}{}
	c.mu.Unlock()
	if created {
		return nil
	}
	return c.emit(ctx, Message{Kind: KindChannelCreate, Channel: name})
}

// ChannelWriter emits the messages of one named side channel.
type ChannelWriter struct {
	jc   *Context
	name string
}

// Name returns the channel name.
func (w *ChannelWriter) Name() string { return w.name }

// Send publishes one value on the channel, opening it first if needed.
func (w *ChannelWriter) Send(ctx context.Context, value any) error {
	if err := w.jc.ensureChannel(ctx, w.name); err != nil {
		return err
	}
	return w.jc.emit(ctx, Message{Kind: KindChannelMessage, Channel: w.name, Value: value})
}

// Complete closes the channel cleanly.
func (w *ChannelWriter) Complete(ctx context.Context) error {
	if err := w.jc.ensureChannel(ctx, w.name); err != nil {
		return err
	}
	return w.jc.emit(ctx, Message{Kind: KindChannelComplete, Channel: w.name})
}

// Error terminates the channel with err.
func (w *ChannelWriter) Error(ctx context.Context, err error) error {
	if e := w.jc.ensureChannel(ctx, w.name); e != nil {
		return e
	}
	return w.jc.emit(ctx, Message{Kind: KindChannelError, Channel: w.name, Err: err})
}
