// Package stream provides a real-time event broker for job lifecycle events.
// It bridges the ext.Extension system to in-process consumers via
// topic-based pub/sub.
package stream

import (
	"encoding/json"
	"time"
)

// EventType identifies the kind of lifecycle event.
type EventType string

const (
	EventJobScheduled EventType = "job.scheduled"
	EventJobReady     EventType = "job.ready"
	EventJobStarted   EventType = "job.started"
	EventJobOutput    EventType = "job.output"
	EventJobEnded     EventType = "job.ended"
	EventJobErrored   EventType = "job.errored"
)

// Event is the envelope sent to subscribers on a topic channel.
type Event struct {
	// Type identifies the lifecycle event.
	Type EventType `json:"type"`

	// Timestamp is when the event was emitted.
	Timestamp time.Time `json:"ts"`

	// Topic is the job-specific topic this event was published on.
	Topic string `json:"topic"`

	// Data is the event-specific payload.
	Data json.RawMessage `json:"data"`
}

// JobEventData is the payload for job lifecycle events.
type JobEventData struct {
	JobID     string          `json:"job_id"`
	JobName   string          `json:"job_name"`
	Target    string          `json:"target,omitempty"`
	State     string          `json:"state,omitempty"`
	ElapsedMs int64           `json:"elapsed_ms,omitempty"`
	Error     string          `json:"error,omitempty"`
	Output    json.RawMessage `json:"output,omitempty"`
}

// Decode unmarshals the event payload as job event data.
func (e *Event) Decode() (JobEventData, error) {
	var d JobEventData
	err := json.Unmarshal(e.Data, &d)
	return d, err
}
