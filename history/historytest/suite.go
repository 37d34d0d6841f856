// Package historytest provides a conformance suite for history.Store
// implementations.
package historytest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/xraph/architect"
	"github.com/xraph/architect/history"
	"github.com/xraph/architect/id"
	"github.com/xraph/architect/job"
)

// NewRun returns a queued run scheduled at the given time.
func NewRun(name string, scheduledAt time.Time) *history.Run {
	return &history.Run{
		ID:          id.NewJobID(),
		Name:        name,
		Argument:    json.RawMessage(`{"n":1}`),
		State:       job.StateQueued,
		ScheduledAt: scheduledAt.UTC().Truncate(time.Microsecond),
	}
}

// Run exercises s. The store must be empty.
func Run(t *testing.T, s history.Store) {
	t.Helper()

	t.Run("SaveAndGet", func(t *testing.T) { testSaveAndGet(t, s) })
	t.Run("SaveReplaces", func(t *testing.T) { testSaveReplaces(t, s) })
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, s) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, s) })
	t.Run("List", func(t *testing.T) { testList(t, s) })
}

func testSaveAndGet(t *testing.T, s history.Store) {
	ctx := context.Background()
	r := NewRun("save-get", time.Now())

	if err := s.SaveRun(ctx, r); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	got, err := s.GetRun(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.ID.String() != r.ID.String() {
		t.Errorf("ID = %q, want %q", got.ID, r.ID)
	}
	if got.Name != r.Name {
		t.Errorf("Name = %q, want %q", got.Name, r.Name)
	}
	if got.State != job.StateQueued {
		t.Errorf("State = %q, want %q", got.State, job.StateQueued)
	}
	if !got.ScheduledAt.Equal(r.ScheduledAt) {
		t.Errorf("ScheduledAt = %v, want %v", got.ScheduledAt, r.ScheduledAt)
	}
	assertJSON(t, "Argument", got.Argument, `{"n":1}`)
	if got.StartedAt != nil || got.EndedAt != nil {
		t.Errorf("expected nil StartedAt/EndedAt, got %v/%v", got.StartedAt, got.EndedAt)
	}
}

func testSaveReplaces(t *testing.T, s history.Store) {
	ctx := context.Background()
	r := NewRun("save-replace", time.Now())
	if err := s.SaveRun(ctx, r); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	started := time.Now().UTC().Truncate(time.Microsecond)
	ended := started.Add(time.Second)
	r.State = job.StateEnded
	r.StartedAt = &started
	r.EndedAt = &ended
	r.Outputs = 2
	r.LastOutput = json.RawMessage(`20`)
	r.Elapsed = 1500 * time.Millisecond
	if err := s.SaveRun(ctx, r); err != nil {
		t.Fatalf("SaveRun (update): %v", err)
	}

	got, err := s.GetRun(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.State != job.StateEnded {
		t.Errorf("State = %q, want %q", got.State, job.StateEnded)
	}
	if got.Outputs != 2 {
		t.Errorf("Outputs = %d, want 2", got.Outputs)
	}
	assertJSON(t, "LastOutput", got.LastOutput, `20`)
	if got.Elapsed != 1500*time.Millisecond {
		t.Errorf("Elapsed = %v, want 1.5s", got.Elapsed)
	}
	if got.StartedAt == nil || !got.StartedAt.Equal(started) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, started)
	}
	if got.EndedAt == nil || !got.EndedAt.Equal(ended) {
		t.Errorf("EndedAt = %v, want %v", got.EndedAt, ended)
	}
}

func testGetMissing(t *testing.T, s history.Store) {
	_, err := s.GetRun(context.Background(), id.NewJobID())
	if !errors.Is(err, architect.ErrRunNotFound) {
		t.Fatalf("GetRun(missing) error = %v, want ErrRunNotFound", err)
	}
}

func testDelete(t *testing.T, s history.Store) {
	ctx := context.Background()
	r := NewRun("delete", time.Now())
	if err := s.SaveRun(ctx, r); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if err := s.DeleteRun(ctx, r.ID); err != nil {
		t.Fatalf("DeleteRun: %v", err)
	}
	if _, err := s.GetRun(ctx, r.ID); !errors.Is(err, architect.ErrRunNotFound) {
		t.Fatalf("GetRun after delete error = %v, want ErrRunNotFound", err)
	}
	if err := s.DeleteRun(ctx, r.ID); !errors.Is(err, architect.ErrRunNotFound) {
		t.Fatalf("second DeleteRun error = %v, want ErrRunNotFound", err)
	}
}

func testList(t *testing.T, s history.Store) {
	ctx := context.Background()
	base := time.Now().Add(time.Hour)

	var runs []*history.Run
	for i := range 4 {
		r := NewRun("list", base.Add(time.Duration(i)*time.Second))
		if i%2 == 1 {
			r.State = job.StateErrored
			r.Error = "boom"
		}
		runs = append(runs, r)
		if err := s.SaveRun(ctx, r); err != nil {
			t.Fatalf("SaveRun: %v", err)
		}
	}
	other := NewRun("list-other", base)
	if err := s.SaveRun(ctx, other); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	got, err := s.ListRuns(ctx, history.ListOpts{Name: "list"})
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("ListRuns(name) returned %d runs, want 4", len(got))
	}
	for i, r := range got {
		want := runs[len(runs)-1-i]
		if r.ID.String() != want.ID.String() {
			t.Errorf("run[%d] = %s, want %s (newest first)", i, r.ID, want.ID)
		}
	}

	errored, err := s.ListRuns(ctx, history.ListOpts{Name: "list", State: job.StateErrored})
	if err != nil {
		t.Fatalf("ListRuns(state): %v", err)
	}
	if len(errored) != 2 {
		t.Fatalf("ListRuns(state) returned %d runs, want 2", len(errored))
	}
	for _, r := range errored {
		if r.Error != "boom" {
			t.Errorf("Error = %q, want boom", r.Error)
		}
	}

	page, err := s.ListRuns(ctx, history.ListOpts{Name: "list", Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("ListRuns(page): %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("ListRuns(page) returned %d runs, want 2", len(page))
	}
	if page[0].ID.String() != runs[2].ID.String() {
		t.Errorf("page[0] = %s, want %s", page[0].ID, runs[2].ID)
	}

	statePage, err := s.ListRuns(ctx, history.ListOpts{Name: "list", State: job.StateErrored, Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("ListRuns(state page): %v", err)
	}
	if len(statePage) != 1 || statePage[0].ID.String() != runs[1].ID.String() {
		t.Errorf("ListRuns(state page) = %v, want [%s]", statePage, runs[1].ID)
	}

	beyond, err := s.ListRuns(ctx, history.ListOpts{Name: "list", Offset: 10})
	if err != nil {
		t.Fatalf("ListRuns(beyond): %v", err)
	}
	if len(beyond) != 0 {
		t.Errorf("ListRuns(beyond) returned %d runs, want 0", len(beyond))
	}
}

func assertJSON(t *testing.T, field string, got json.RawMessage, want string) {
	t.Helper()
	var g, w any
	if err := json.Unmarshal(got, &g); err != nil {
		t.Errorf("%s: invalid JSON %q: %v", field, got, err)
		return
	}
	_ = json.Unmarshal([]byte(want), &w) //nolint:errcheck // literal
	gb, _ := json.Marshal(g)             //nolint:errcheck // decoded value
	wb, _ := json.Marshal(w)             //nolint:errcheck // decoded value
	if string(gb) != string(wb) {
		t.Errorf("%s = %s, want %s", field, got, want)
	}
}
