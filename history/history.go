// Package history journals job runs. A Recorder is an ext.Extension that
// turns lifecycle hooks into Run records and persists them to a Store.
//
// Backends:
//
//   - history/memory: in-memory store for development and testing
//   - history/redis: Redis hashes indexed by sorted sets
//   - history/postgres: PostgreSQL via pgx/v5 with embedded migrations
package history

import (
	"context"
	"encoding/json"
	"time"

	"github.com/xraph/architect/id"
	"github.com/xraph/architect/job"
)

// Run is the journal record of one job instance.
type Run struct {
	ID       id.JobID        `json:"id"`
	Name     string          `json:"name"`
	Target   string          `json:"target,omitempty"`
	Argument json.RawMessage `json:"argument,omitempty"`
	State    job.State       `json:"state"`

	// Outputs counts the Output messages delivered so far and LastOutput
	// holds the most recent one.
	Outputs    int             `json:"outputs"`
	LastOutput json.RawMessage `json:"last_output,omitempty"`

	Error       string        `json:"error,omitempty"`
	ScheduledAt time.Time     `json:"scheduled_at"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
	EndedAt     *time.Time    `json:"ended_at,omitempty"`
	Elapsed     time.Duration `json:"elapsed,omitempty"`
}

// ListOpts filters and pages ListRuns. Results are ordered newest first
// by ScheduledAt.
type ListOpts struct {
	Name   string
	State  job.State
	Limit  int
	Offset int
}

// Match reports whether r passes the Name and State filters.
func (o ListOpts) Match(r *Run) bool {
	if o.Name != "" && r.Name != o.Name {
		return false
	}
	if o.State != "" && r.State != o.State {
		return false
	}
	return true
}

// Page applies Offset and Limit to an already filtered, ordered slice.
func Page[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// Store persists runs.
type Store interface {
	// SaveRun inserts or replaces the run with r.ID.
	SaveRun(ctx context.Context, r *Run) error

	// GetRun returns the run, or architect.ErrRunNotFound.
	GetRun(ctx context.Context, runID id.JobID) (*Run, error)

	// ListRuns returns runs matching opts.
	ListRuns(ctx context.Context, opts ListOpts) ([]*Run, error)

	// DeleteRun removes the run, or returns architect.ErrRunNotFound.
	DeleteRun(ctx context.Context, runID id.JobID) error

	// Migrate prepares the backend schema.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close releases backend resources the store owns.
	Close() error
}
