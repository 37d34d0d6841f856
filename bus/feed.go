// Package bus provides the run-once, multicast primitive behind job message
// streams. A Feed is an append-only log written by a single execution and
// read by any number of Cursors, each of which observes the published values
// in publish order. Feeds terminate exactly once, either cleanly (cursors
// then return io.EOF) or with an error (cursors return that error after
// draining the values published before it).
//
// A Feed may bound how many values it keeps for cursors created later
// (WithReplay). Values are still delivered to every open cursor that has not
// read them yet; a cursor that is abandoned before the feed terminates should
// be closed so it stops holding values.
package bus

import (
	"context"
	"io"
	"sync"
)

// Option configures a Feed.
type Option func(*options)

type options struct {
	replay int
}

// WithReplay keeps at most n already-read values for cursors created later.
// WithReplay(0) keeps only values some open cursor has yet to read. The
// default keeps every value.
func WithReplay(n int) Option {
	return func(o *options) {
		if n < 0 {
			n = 0
		}
		o.replay = n
	}
}

// Feed is an append-only multicast log. It is safe for concurrent use.
type Feed[T any] struct {
	mu     sync.Mutex
	items  []T
	base   int // sequence number of items[0]
	replay int // -1 keeps everything
	closed bool
	err    error

	// cursors are the open cursors; the slowest one pins retained values.
	cursors map[*Cursor[T]]struct{}

	// wake is closed and replaced whenever items grow or the feed closes.
	wake chan struct{}
	done chan struct{}
}

// NewFeed creates an open, empty feed.
func NewFeed[T any](opts ...Option) *Feed[T] {
	o := options{replay: -1}
	for _, opt := range opts {
		opt(&o)
	}
	return &Feed[T]{
		replay:  o.replay,
		cursors: make(map[*Cursor[T]]struct{}),
		wake:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Publish appends v. It returns false if the feed is already closed.
func (f *Feed[T]) Publish(v T) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	f.items = append(f.items, v)
	f.trimLocked()
	f.broadcastLocked()
	return true
}

// Close terminates the feed. A nil err is a clean completion. Only the
// first call has an effect; it reports whether it closed the feed.
func (f *Feed[T]) Close(err error) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	f.closed = true
	f.err = err
	f.broadcastLocked()
	close(f.done)
	return true
}

func (f *Feed[T]) broadcastLocked() {
	close(f.wake)
	f.wake = make(chan struct{})
}

// publishedLocked returns the sequence number the next value will get.
func (f *Feed[T]) publishedLocked() int { return f.base + len(f.items) }

// trimLocked drops values outside the replay window that no open cursor
// still has to read.
func (f *Feed[T]) trimLocked() {
	if f.replay < 0 {
		return
	}
	keep := f.publishedLocked() - f.replay
	for c := range f.cursors {
		if c.pos < keep {
			keep = c.pos
		}
	}
	n := keep - f.base
	if n <= 0 {
		return
	}
	clear(f.items[:n])
	f.items = f.items[n:]
	f.base = keep
}

// Done is closed once the feed terminates.
func (f *Feed[T]) Done() <-chan struct{} { return f.done }

// Err returns the terminal error, or nil while open or after a clean close.
func (f *Feed[T]) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Closed reports whether the feed has terminated.
func (f *Feed[T]) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Len returns the number of values currently retained.
func (f *Feed[T]) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}

// Published returns the number of values published so far.
func (f *Feed[T]) Published() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.publishedLocked()
}

// Last returns the most recently published value.
func (f *Feed[T]) Last() (T, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.items) == 0 {
		var zero T
		return zero, false
	}
	return f.items[len(f.items)-1], true
}

// Subscribe returns a cursor positioned at the oldest retained value. On a
// feed without a replay bound that is the first value ever published.
func (f *Feed[T]) Subscribe() *Cursor[T] {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cursorLocked(f.base)
}

// SubscribeLatest returns a cursor positioned at the most recent value, so a
// late subscriber sees the last cached value and everything after it.
func (f *Feed[T]) SubscribeLatest() *Cursor[T] {
	f.mu.Lock()
	defer f.mu.Unlock()
	pos := f.publishedLocked() - 1
	if pos < f.base {
		pos = f.base
	}
	return f.cursorLocked(pos)
}

// SubscribeNew returns a cursor that only observes values published after
// this call.
func (f *Feed[T]) SubscribeNew() *Cursor[T] {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cursorLocked(f.publishedLocked())
}

func (f *Feed[T]) cursorLocked(pos int) *Cursor[T] {
	c := &Cursor[T]{feed: f, pos: pos}
	if !f.closed {
		f.cursors[c] = struct{}{}
	}
	return c
}

// Cursor reads a Feed in publish order. A Cursor must not be shared
// between goroutines.
type Cursor[T any] struct {
	feed *Feed[T]
	pos  int
}

// Next blocks until the next value is available and returns it. After the
// feed terminates and all values were read, Next returns io.EOF for a clean
// completion or the feed's error.
func (c *Cursor[T]) Next(ctx context.Context) (T, error) {
	for {
		f := c.feed
		f.mu.Lock()
		if c.pos < f.base {
			c.pos = f.base
		}
		if i := c.pos - f.base; i < len(f.items) {
			v := f.items[i]
			c.pos++
			f.trimLocked()
			f.mu.Unlock()
			return v, nil
		}
		if f.closed {
			err := f.err
			delete(f.cursors, c)
			f.mu.Unlock()
			var zero T
			if err == nil {
				err = io.EOF
			}
			return zero, err
		}
		wake := f.wake
		f.mu.Unlock()

		select {
		case <-wake:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// Close detaches the cursor so it no longer holds values it has not read.
// Next after Close still works but may skip values the feed dropped.
func (c *Cursor[T]) Close() {
	f := c.feed
	f.mu.Lock()
	delete(f.cursors, c)
	f.trimLocked()
	f.mu.Unlock()
}

// Drain reads until the feed terminates, discarding values. It returns nil
// on clean completion.
func (c *Cursor[T]) Drain(ctx context.Context) error {
	for {
		if _, err := c.Next(ctx); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}
