// Package redis implements history.Store using Redis. Runs are stored as
// Hashes and indexed by Sorted Sets scored by scheduled time, globally and
// per job name.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	s := redisstore.New(client)
//	if err := s.Ping(ctx); err != nil { ... }
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/architect"
	"github.com/xraph/architect/history"
	"github.com/xraph/architect/id"
	"github.com/xraph/architect/job"
)

var _ history.Store = (*Store)(nil)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithTTL expires terminated runs after d. Zero keeps them forever.
func WithTTL(d time.Duration) Option {
	return func(s *Store) { s.ttl = d }
}

// Store implements history.Store backed by Redis.
type Store struct {
	client goredis.Cmdable
	logger *slog.Logger
	ttl    time.Duration
}

// New creates a new Redis-backed store. The caller owns the Redis client
// lifecycle.
func New(client goredis.Cmdable, opts ...Option) *Store {
	s := &Store{client: client, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Client returns the underlying Redis client.
func (s *Store) Client() goredis.Cmdable { return s.client }

// Migrate is a no-op for Redis (schemaless).
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close is a no-op; the caller owns the Redis client lifecycle.
func (s *Store) Close() error { return nil }

// SaveRun stores the run as a Hash and indexes it.
func (s *Store) SaveRun(ctx context.Context, r *history.Run) error {
	rID := r.ID.String()
	key := runKey(rID)
	score := float64(r.ScheduledAt.UnixNano())

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, runToMap(r))
	pipe.ZAdd(ctx, runsKey, goredis.Z{Score: score, Member: rID})
	pipe.ZAdd(ctx, nameIndexKey(r.Name), goredis.Z{Score: score, Member: rID})
	if s.ttl > 0 && r.State.Terminal() {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("architect/redis: save run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(ctx context.Context, runID id.JobID) (*history.Run, error) {
	return s.getRunByKey(ctx, runKey(runID.String()))
}

// ListRuns returns matching runs, newest first. Index entries whose Hash
// expired are pruned.
func (s *Store) ListRuns(ctx context.Context, opts history.ListOpts) ([]*history.Run, error) {
	index := runsKey
	if opts.Name != "" {
		index = nameIndexKey(opts.Name)
	}

	// Without a state filter the index can be paged directly.
	start, stop := int64(0), int64(-1)
	if opts.State == "" {
		start = int64(opts.Offset)
		if opts.Limit > 0 {
			stop = start + int64(opts.Limit) - 1
		}
	}

	ids, err := s.client.ZRevRange(ctx, index, start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("architect/redis: list runs zrevrange: %w", err)
	}

	runs := make([]*history.Run, 0, len(ids))
	for _, rID := range ids {
		r, getErr := s.getRunByKey(ctx, runKey(rID))
		if errors.Is(getErr, architect.ErrRunNotFound) {
			s.unindex(ctx, rID, index)
			continue
		}
		if getErr != nil {
			return nil, getErr
		}
		if !opts.Match(r) {
			continue
		}
		runs = append(runs, r)
	}

	if opts.State != "" {
		runs = history.Page(runs, opts.Offset, opts.Limit)
	}
	return runs, nil
}

// DeleteRun removes a run by ID.
func (s *Store) DeleteRun(ctx context.Context, runID id.JobID) error {
	rID := runID.String()
	key := runKey(rID)

	name, err := s.client.HGet(ctx, key, "name").Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return architect.ErrRunNotFound
		}
		return fmt.Errorf("architect/redis: delete run get name: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.ZRem(ctx, runsKey, rID)
	pipe.ZRem(ctx, nameIndexKey(name), rID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("architect/redis: delete run: %w", err)
	}
	return nil
}

func (s *Store) unindex(ctx context.Context, rID, index string) {
	pipe := s.client.TxPipeline()
	pipe.ZRem(ctx, runsKey, rID)
	if index != runsKey {
		pipe.ZRem(ctx, index, rID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Warn("architect/redis: prune expired run",
			slog.String("job_id", rID),
			slog.String("error", err.Error()),
		)
	}
}

// ── helpers ──

func runToMap(r *history.Run) map[string]interface{} {
	m := map[string]interface{}{
		"id":           r.ID.String(),
		"name":         r.Name,
		"target":       r.Target,
		"argument":     string(r.Argument),
		"state":        string(r.State),
		"outputs":      strconv.Itoa(r.Outputs),
		"last_output":  string(r.LastOutput),
		"error":        r.Error,
		"scheduled_at": r.ScheduledAt.Format(time.RFC3339Nano),
		"elapsed":      strconv.FormatInt(int64(r.Elapsed), 10),
	}
	if r.StartedAt != nil {
		m["started_at"] = r.StartedAt.Format(time.RFC3339Nano)
	}
	if r.EndedAt != nil {
		m["ended_at"] = r.EndedAt.Format(time.RFC3339Nano)
	}
	return m
}

func (s *Store) getRunByKey(ctx context.Context, key string) (*history.Run, error) {
	vals, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("architect/redis: get run: %w", err)
	}
	if len(vals) == 0 {
		return nil, architect.ErrRunNotFound
	}
	return mapToRun(vals)
}

func mapToRun(m map[string]string) (*history.Run, error) {
	rID, err := id.ParseJobID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("architect/redis: parse run id: %w", err)
	}

	outputs, _ := strconv.Atoi(m["outputs"])                          //nolint:errcheck // best-effort parse from trusted Redis data
	elapsed, _ := strconv.ParseInt(m["elapsed"], 10, 64)              //nolint:errcheck // best-effort parse from trusted Redis data
	scheduledAt, _ := time.Parse(time.RFC3339Nano, m["scheduled_at"]) //nolint:errcheck // best-effort parse from trusted Redis data

	r := &history.Run{
		ID:          rID,
		Name:        m["name"],
		Target:      m["target"],
		State:       job.State(m["state"]),
		Outputs:     outputs,
		Error:       m["error"],
		ScheduledAt: scheduledAt,
		Elapsed:     time.Duration(elapsed),
	}
	if v := m["argument"]; v != "" {
		r.Argument = []byte(v)
	}
	if v := m["last_output"]; v != "" {
		r.LastOutput = []byte(v)
	}
	if v := m["started_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		r.StartedAt = &t
	}
	if v := m["ended_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		r.EndedAt = &t
	}
	return r, nil
}
