package stream

import (
	"slices"
	"sync"
	"sync/atomic"
)

// Subscriber receives the events of the topics it is on. Delivery is gated
// by credits: every delivered event consumes one and the broker skips a
// subscriber whose credits are exhausted or whose buffer is full.
type Subscriber struct {
	id string
	ch chan *Event

	credits atomic.Int64
	dropped atomic.Int64

	mu     sync.RWMutex
	topics map[string]struct{}

	// filter and types are read on every send.
	filter atomic.Pointer[func(*Event) bool]
	types  atomic.Pointer[[]EventType]

	closed atomic.Bool
}

// NewSubscriber creates a subscriber with a buffer of bufferSize events
// and initialCredits credits.
func NewSubscriber(id string, bufferSize int, initialCredits int64) *Subscriber {
	s := &Subscriber{
		id:     id,
		ch:     make(chan *Event, bufferSize),
		topics: make(map[string]struct{}),
	}
	s.credits.Store(initialCredits)
	return s
}

// ID returns the subscriber identifier.
func (s *Subscriber) ID() string { return s.id }

// C returns the read-only event channel. It is closed by Close.
func (s *Subscriber) C() <-chan *Event { return s.ch }

// AddCredits replenishes flow-control credits.
func (s *Subscriber) AddCredits(n int64) { s.credits.Add(n) }

// Credits returns the current credit count.
func (s *Subscriber) Credits() int64 { return s.credits.Load() }

// Dropped returns how many matching events could not be delivered for lack
// of credits or buffer space.
func (s *Subscriber) Dropped() int64 { return s.dropped.Load() }

// SetFilter installs a predicate events must satisfy. A nil fn removes it.
func (s *Subscriber) SetFilter(fn func(*Event) bool) {
	if fn == nil {
		s.filter.Store(nil)
		return
	}
	s.filter.Store(&fn)
}

// Only restricts delivery to the listed event types. Calling it without
// arguments lifts the restriction.
func (s *Subscriber) Only(types ...EventType) {
	if len(types) == 0 {
		s.types.Store(nil)
		return
	}
	t := slices.Clone(types)
	s.types.Store(&t)
}

func (s *Subscriber) addTopic(topic string) {
	s.mu.Lock()
	s.topics[topic] = struct{}{}
	s.mu.Unlock()
}

func (s *Subscriber) removeTopic(topic string) {
	s.mu.Lock()
	delete(s.topics, topic)
	s.mu.Unlock()
}

// Topics returns the subscribed topic names in sorted order.
func (s *Subscriber) Topics() []string {
	s.mu.RLock()
	out := make([]string, 0, len(s.topics))
	for t := range s.topics {
		out = append(out, t)
	}
	s.mu.RUnlock()
	slices.Sort(out)
	return out
}

func (s *Subscriber) accepts(evt *Event) bool {
	if types := s.types.Load(); types != nil && !slices.Contains(*types, evt.Type) {
		return false
	}
	if fn := s.filter.Load(); fn != nil && !(*fn)(evt) {
		return false
	}
	return true
}

// send delivers evt without blocking and reports whether it was delivered.
// Events rejected by the filter or type set are not counted as dropped.
func (s *Subscriber) send(evt *Event) bool {
	if s.closed.Load() || !s.accepts(evt) {
		return false
	}

	for {
		n := s.credits.Load()
		if n <= 0 {
			s.dropped.Add(1)
			return false
		}
		if s.credits.CompareAndSwap(n, n-1) {
			break
		}
	}

	select {
	case s.ch <- evt:
		return true
	default:
		s.credits.Add(1)
		s.dropped.Add(1)
		return false
	}
}

// Close closes the event channel. It is safe to call more than once.
func (s *Subscriber) Close() {
	if s.closed.CompareAndSwap(false, true) {
		close(s.ch)
	}
}
