package job

import "github.com/xraph/architect/id"

// Kind identifies an outbound message, sent from a handler to callers.
type Kind string

const (
	KindOnReady Kind = "on-ready"
	KindStart   Kind = "start"
	KindOutput  Kind = "output"
	KindEnd     Kind = "end"
	KindPong    Kind = "pong"

	KindChannelCreate   Kind = "channel-create"
	KindChannelMessage  Kind = "channel-message"
	KindChannelError    Kind = "channel-error"
	KindChannelComplete Kind = "channel-complete"
)

// IsLifecycle reports whether k drives the job state machine.
func (k Kind) IsLifecycle() bool {
	switch k {
	case KindOnReady, KindStart, KindEnd:
		return true
	}
	return false
}

// IsChannel reports whether k belongs to a named side channel.
func (k Kind) IsChannel() bool {
	switch k {
	case KindChannelCreate, KindChannelMessage, KindChannelError, KindChannelComplete:
		return true
	}
	return false
}

// Message is an outbound message. JobID, JobName and Target are stamped by
// the scheduler before the message is published.
type Message struct {
	Kind Kind

	JobID   id.JobID
	JobName string
	Target  *Target

	// Value carries the payload of Output and ChannelMessage messages.
	Value any

	// Channel names the side channel of Channel* messages.
	Channel string

	// Err carries the failure of a ChannelError message.
	Err error

	// PingID correlates a Pong with its Ping.
	PingID int64
}

// InboundKind identifies an inbound message, sent from callers to a handler.
type InboundKind string

const (
	InboundInput InboundKind = "input"
	InboundPing  InboundKind = "ping"
	InboundStop  InboundKind = "stop"
)

// InboundMessage is a caller-to-handler message. Handlers only ever receive
// Input (validated against the input schema) and Stop; pings are answered
// by the runtime.
type InboundMessage struct {
	Kind   InboundKind
	Value  any
	PingID int64
}
