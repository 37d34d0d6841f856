package scheduler_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/architect"
	"github.com/xraph/architect/ext"
	"github.com/xraph/architect/job"
	"github.com/xraph/architect/registry"
	"github.com/xraph/architect/scheduler"
)

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func newScheduler(t *testing.T, handlers ...*job.Handler) *scheduler.Scheduler {
	t.Helper()
	reg := registry.NewSimple()
	reg.Register(handlers...)
	return scheduler.New(reg)
}

var echo = job.Simple(job.Description{
	Name:     "echo",
	Argument: map[string]any{"type": "number"},
	Output:   map[string]any{"type": "number"},
}, func(_ context.Context, argument any, _ *job.Context) (any, error) {
	return argument.(float64) * 2, nil
})

func outbound(t *testing.T, j job.Job) ([]job.Message, error) {
	t.Helper()
	ctx := testCtx(t)
	cur := j.Outbound()
	var msgs []job.Message
	for {
		m, err := cur.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				t.Fatalf("timed out reading outbound of %s", j.Name())
			}
			if errors.Is(err, io.EOF) {
				return msgs, nil
			}
			return msgs, err
		}
		msgs = append(msgs, m)
	}
}

func kindsOf(msgs []job.Message) []job.Kind {
	out := make([]job.Kind, len(msgs))
	for i, m := range msgs {
		out[i] = m.Kind
	}
	return out
}

func expectKinds(t *testing.T, j job.Job, want ...job.Kind) {
	t.Helper()
	msgs, _ := outbound(t, j)
	if got := kindsOf(msgs); !reflect.DeepEqual(got, want) {
		t.Fatalf("outbound kinds = %v, want %v", got, want)
	}
}

func expectNotDone(t *testing.T, j job.Job) {
	t.Helper()
	select {
	case <-j.Done():
		t.Fatalf("job %s terminated early: %v", j.Name(), j.Err())
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSchedule_Echo(t *testing.T) {
	s := newScheduler(t, echo)
	j := s.Schedule(context.Background(), "echo", 5)

	out, err := j.Result(testCtx(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != float64(10) {
		t.Errorf("output = %v, want 10", out)
	}
	if j.State() != job.StateEnded {
		t.Errorf("state = %s, want ended", j.State())
	}

	msgs, err := outbound(t, j)
	if err != nil {
		t.Fatalf("outbound error: %v", err)
	}
	want := []job.Kind{job.KindOnReady, job.KindStart, job.KindOutput, job.KindEnd}
	if got := kindsOf(msgs); !reflect.DeepEqual(got, want) {
		t.Fatalf("kinds = %v, want %v", got, want)
	}
	for _, m := range msgs {
		if m.JobID != j.ID() || m.JobName != "echo" {
			t.Errorf("message %s not annotated: id %s, name %q", m.Kind, m.JobID, m.JobName)
		}
	}
}

func TestSchedule_InvalidArgument(t *testing.T) {
	s := newScheduler(t, echo)
	j := s.Schedule(context.Background(), "echo", "five")

	err := j.Wait(testCtx(t))
	if !errors.Is(err, architect.ErrArgumentSchemaValidation) {
		t.Fatalf("expected ErrArgumentSchemaValidation, got %v", err)
	}
	if j.State() != job.StateErrored {
		t.Errorf("state = %s, want errored", j.State())
	}

	msgs, oerr := outbound(t, j)
	if len(msgs) != 0 {
		t.Errorf("expected no outbound messages, got %v", kindsOf(msgs))
	}
	if !errors.Is(oerr, architect.ErrArgumentSchemaValidation) {
		t.Errorf("outbound should terminate with the job error, got %v", oerr)
	}
}

func TestSchedule_UnknownJob(t *testing.T) {
	s := newScheduler(t)
	ctx := testCtx(t)
	j := s.Schedule(ctx, "missing", nil)

	if err := j.Wait(ctx); !errors.Is(err, architect.ErrJobDoesNotExist) {
		t.Fatalf("expected ErrJobDoesNotExist, got %v", err)
	}
	if _, err := j.Description(ctx); !errors.Is(err, architect.ErrJobDoesNotExist) {
		t.Errorf("Description: expected ErrJobDoesNotExist, got %v", err)
	}
	ok, err := s.Has(ctx, "missing")
	if err != nil || ok {
		t.Errorf("Has = %v, %v; want false, nil", ok, err)
	}
}

func TestGetDescription_Cached(t *testing.T) {
	var calls atomic.Int32
	reg := job.RegistryFunc(func(_ context.Context, name string) (*job.Handler, bool, error) {
		calls.Add(1)
		if name == "echo" {
			return echo, true, nil
		}
		return nil, false, nil
	})
	s := scheduler.New(reg)
	ctx := testCtx(t)

	for range 3 {
		desc, ok, err := s.GetDescription(ctx, "echo")
		if err != nil || !ok || desc.Name != "echo" {
			t.Fatalf("GetDescription = %+v, %v, %v", desc, ok, err)
		}
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("registry queried %d times, want 1", n)
	}

	_, _ = s.Has(ctx, "nope")
	_, _ = s.Has(ctx, "nope")
	if n := calls.Load(); n != 3 {
		t.Errorf("unknown names should not be cached; calls = %d", n)
	}
}

func TestSchedule_RegistryError(t *testing.T) {
	boom := errors.New("registry down")
	s := scheduler.New(job.RegistryFunc(func(context.Context, string) (*job.Handler, bool, error) {
		return nil, false, boom
	}))

	j := s.Schedule(context.Background(), "x", nil)
	if err := j.Wait(testCtx(t)); !errors.Is(err, boom) {
		t.Fatalf("expected registry error, got %v", err)
	}
}

func TestPause_HoldsJobs(t *testing.T) {
	s := newScheduler(t, echo)
	resume := s.Pause()

	j := s.Schedule(context.Background(), "echo", 1)
	expectNotDone(t, j)
	if j.State() != job.StateQueued {
		t.Errorf("state = %s, want queued", j.State())
	}

	resume()
	resume()
	if out, err := j.Result(testCtx(t)); err != nil || out != float64(2) {
		t.Fatalf("Result = %v, %v", out, err)
	}
	if s.Paused() {
		t.Error("scheduler should not be paused")
	}
}

func TestPause_Nested(t *testing.T) {
	s := newScheduler(t, echo)
	r1 := s.Pause()
	r2 := s.Pause()

	j := s.Schedule(context.Background(), "echo", 1)

	r1()
	r1()
	if !s.Paused() {
		t.Fatal("calling one resume twice must not release the second pause")
	}
	expectNotDone(t, j)

	r2()
	if err := j.Wait(testCtx(t)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPause_ReleasesAll(t *testing.T) {
	s := newScheduler(t, echo)
	resume := s.Pause()

	jobs := make([]job.Job, 5)
	for i := range jobs {
		jobs[i] = s.Schedule(context.Background(), "echo", i)
	}
	resume()

	for i, j := range jobs {
		out, err := j.Result(testCtx(t))
		if err != nil {
			t.Fatalf("job %d: %v", i, err)
		}
		if out != float64(2*i) {
			t.Errorf("job %d output = %v", i, out)
		}
	}
}

func TestOutbound_LateSubscriber(t *testing.T) {
	h := job.NewHandler(job.Description{Name: "counter"}, func(ctx context.Context, _ any, jc *job.Context) error {
		_ = jc.Start(ctx)
		for i := 1; i <= 3; i++ {
			_ = jc.Output(ctx, i)
		}
		return jc.End(ctx)
	})
	s := newScheduler(t, h)
	j := s.Schedule(context.Background(), "counter", nil)
	if err := j.Wait(testCtx(t)); err != nil {
		t.Fatal(err)
	}

	expectKinds(t, j, job.KindOnReady, job.KindStart, job.KindOutput, job.KindOutput, job.KindOutput, job.KindEnd)

	// Output replays from the most recent value. Without an output schema
	// values pass through unchanged.
	cur := j.Output()
	v, err := cur.Next(testCtx(t))
	if err != nil || v != 3 {
		t.Fatalf("Output first = %v, %v; want 3", v, err)
	}
	if _, err := cur.Next(testCtx(t)); !errors.Is(err, io.EOF) {
		t.Errorf("expected EOF, got %v", err)
	}
}

func TestState_FiltersInvalidTransitions(t *testing.T) {
	afterEnd := make(chan error, 1)
	h := job.NewHandler(job.Description{Name: "noisy"}, func(ctx context.Context, _ any, jc *job.Context) error {
		_ = jc.Start(ctx)
		_ = jc.Start(ctx)
		_ = jc.Emit(ctx, job.Message{Kind: job.KindOnReady})
		_ = jc.Output(ctx, "v")
		_ = jc.End(ctx)
		afterEnd <- jc.Output(ctx, "late")
		return nil
	})
	s := newScheduler(t, h)
	j := s.Schedule(context.Background(), "noisy", nil)
	if err := j.Wait(testCtx(t)); err != nil {
		t.Fatal(err)
	}

	expectKinds(t, j, job.KindOnReady, job.KindStart, job.KindOutput, job.KindEnd)
	if err := <-afterEnd; !errors.Is(err, architect.ErrJobFinished) {
		t.Errorf("emit after End = %v, want ErrJobFinished", err)
	}
}

func TestSyntheticEnd(t *testing.T) {
	h := job.NewHandler(job.Description{Name: "quiet"}, func(context.Context, any, *job.Context) error {
		return nil
	})
	s := newScheduler(t, h)
	j := s.Schedule(context.Background(), "quiet", nil)
	if err := j.Wait(testCtx(t)); err != nil {
		t.Fatal(err)
	}
	expectKinds(t, j, job.KindOnReady, job.KindEnd)
	if j.State() != job.StateEnded {
		t.Errorf("state = %s", j.State())
	}
	if out, _ := j.Result(testCtx(t)); out != nil {
		t.Errorf("Result = %v, want nil", out)
	}
}

func TestHandlerError(t *testing.T) {
	boom := errors.New("boom")
	h := job.NewHandler(job.Description{Name: "failing"}, func(ctx context.Context, _ any, jc *job.Context) error {
		_ = jc.Start(ctx)
		return boom
	})
	s := newScheduler(t, h)
	j := s.Schedule(context.Background(), "failing", nil)

	if err := j.Wait(testCtx(t)); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	msgs, err := outbound(t, j)
	if !errors.Is(err, boom) {
		t.Errorf("outbound error = %v, want boom", err)
	}
	if got := kindsOf(msgs); !reflect.DeepEqual(got, []job.Kind{job.KindOnReady, job.KindStart}) {
		t.Errorf("kinds = %v", got)
	}
	if j.State() != job.StateErrored {
		t.Errorf("state = %s", j.State())
	}
}

func TestHandlerPanic(t *testing.T) {
	h := job.NewHandler(job.Description{Name: "panicky"}, func(context.Context, any, *job.Context) error {
		panic("kaboom")
	})
	s := newScheduler(t, h)
	j := s.Schedule(context.Background(), "panicky", nil)

	err := j.Wait(testCtx(t))
	if err == nil || !strings.Contains(err.Error(), "kaboom") {
		t.Fatalf("expected recovered panic, got %v", err)
	}
}

func TestOutputValidation(t *testing.T) {
	second := make(chan error, 1)
	h := job.NewHandler(job.Description{
		Name:   "bad-output",
		Output: map[string]any{"type": "number"},
	}, func(ctx context.Context, _ any, jc *job.Context) error {
		_ = jc.Start(ctx)
		_ = jc.Output(ctx, "not a number")
		second <- jc.Output(ctx, 1)
		return nil
	})
	s := newScheduler(t, h)
	j := s.Schedule(context.Background(), "bad-output", nil)

	err := j.Wait(testCtx(t))
	if !errors.Is(err, architect.ErrOutputSchemaValidation) {
		t.Fatalf("expected ErrOutputSchemaValidation, got %v", err)
	}
	var sve *architect.SchemaValidationError
	if !errors.As(err, &sve) || sve.JobName != "bad-output" {
		t.Errorf("expected SchemaValidationError for bad-output, got %#v", err)
	}
	if err := <-second; !errors.Is(err, architect.ErrJobFinished) {
		t.Errorf("emit after failure = %v, want ErrJobFinished", err)
	}
}

func TestOutputDefaults(t *testing.T) {
	h := job.Simple(job.Description{
		Name: "defaults",
		Output: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"ok":    map[string]any{"type": "boolean"},
				"label": map[string]any{"type": "string", "default": "none"},
			},
		},
	}, func(context.Context, any, *job.Context) (any, error) {
		return map[string]any{"ok": true}, nil
	})
	s := newScheduler(t, h)

	out, err := s.Schedule(context.Background(), "defaults", nil).Result(testCtx(t))
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]any{"ok": true, "label": "none"}
	if !reflect.DeepEqual(out, want) {
		t.Errorf("output = %v, want %v", out, want)
	}
}

func TestDependencies(t *testing.T) {
	gates := map[string]chan struct{}{
		"a": make(chan struct{}),
		"b": make(chan struct{}),
	}
	gated := func(name string) *job.Handler {
		return job.NewHandler(job.Description{Name: name}, func(ctx context.Context, _ any, jc *job.Context) error {
			select {
			case <-gates[name]:
			case <-ctx.Done():
				return ctx.Err()
			}
			return jc.Output(ctx, name)
		})
	}

	var sawDeps []string
	c := job.NewHandler(job.Description{Name: "c"}, func(ctx context.Context, _ any, jc *job.Context) error {
		for _, d := range jc.Dependencies {
			if d.State() != job.StateEnded {
				t.Errorf("dependency %s in state %s when c runs", d.Name(), d.State())
			}
			sawDeps = append(sawDeps, d.Name())
		}
		return nil
	})
	s := newScheduler(t, gated("a"), gated("b"), c)

	ja := s.Schedule(context.Background(), "a", nil)
	jb := s.Schedule(context.Background(), "b", nil)
	jcJob := s.Schedule(context.Background(), "c", nil, job.WithDependencies(ja, jb))

	close(gates["b"])
	if err := jb.Wait(testCtx(t)); err != nil {
		t.Fatal(err)
	}
	expectNotDone(t, jcJob)
	if jcJob.State() != job.StateQueued {
		t.Errorf("c state = %s, want queued", jcJob.State())
	}

	close(gates["a"])
	if err := jcJob.Wait(testCtx(t)); err != nil {
		t.Fatalf("c: %v", err)
	}
	if !reflect.DeepEqual(sawDeps, []string{"a", "b"}) {
		t.Errorf("dependencies = %v", sawDeps)
	}
}

func TestDependencies_Failure(t *testing.T) {
	boom := errors.New("dep failed")
	failing := job.NewHandler(job.Description{Name: "dep"}, func(context.Context, any, *job.Context) error {
		return boom
	})
	ran := false
	after := job.NewHandler(job.Description{Name: "after"}, func(context.Context, any, *job.Context) error {
		ran = true
		return nil
	})
	s := newScheduler(t, failing, after)

	dep := s.Schedule(context.Background(), "dep", nil)
	j := s.Schedule(context.Background(), "after", nil, job.WithDependencies(dep))

	if err := j.Wait(testCtx(t)); !errors.Is(err, boom) {
		t.Fatalf("expected dependency error, got %v", err)
	}
	if ran {
		t.Error("handler must not run after a dependency failed")
	}
	expectKinds(t, j)
}

var inputSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"n":     map[string]any{"type": "number"},
		"label": map[string]any{"type": "string", "default": "x"},
	},
	"required": []any{"n"},
}

func inputEcho(count int) *job.Handler {
	return job.NewHandler(job.Description{Name: "input-echo", Input: inputSchema}, func(ctx context.Context, _ any, jc *job.Context) error {
		_ = jc.Start(ctx)
		for n := 0; n < count; {
			m, err := jc.Receive(ctx)
			if err != nil {
				return err
			}
			if m.Kind == job.InboundInput {
				_ = jc.Output(ctx, m.Value)
				n++
			}
		}
		return jc.End(ctx)
	})
}

func TestInput_ValidatedAndDefaulted(t *testing.T) {
	s := newScheduler(t, inputEcho(2))
	j := s.Schedule(context.Background(), "input-echo", nil)

	j.Input(map[string]any{"n": "bad"})
	j.Input(map[string]any{"n": 1})
	j.Input(map[string]any{"n": 2, "label": "y"})

	if err := j.Wait(testCtx(t)); err != nil {
		t.Fatal(err)
	}
	msgs, _ := outbound(t, j)
	var outputs []any
	for _, m := range msgs {
		if m.Kind == job.KindOutput {
			outputs = append(outputs, m.Value)
		}
	}
	want := []any{
		map[string]any{"n": float64(1), "label": "x"},
		map[string]any{"n": float64(2), "label": "y"},
	}
	if !reflect.DeepEqual(outputs, want) {
		t.Errorf("outputs = %v, want %v", outputs, want)
	}
}

func TestChannels(t *testing.T) {
	h := job.NewHandler(job.Description{
		Name:     "progress",
		Channels: map[string]any{"progress": map[string]any{"type": "number"}},
	}, func(ctx context.Context, _ any, jc *job.Context) error {
		_ = jc.Start(ctx)
		p := jc.Channel("progress")
		_ = p.Send(ctx, 1)
		_ = p.Send(ctx, 2)
		_ = p.Complete(ctx)
		_ = p.Send(ctx, 3)
		_ = jc.Channel("log").Send(ctx, "free form")
		return jc.End(ctx)
	})
	s := newScheduler(t, h)
	j := s.Schedule(context.Background(), "progress", nil)
	if err := j.Wait(testCtx(t)); err != nil {
		t.Fatal(err)
	}

	var got []any
	cur := j.Channel("progress")
	for {
		v, err := cur.Next(testCtx(t))
		if err != nil {
			if !errors.Is(err, io.EOF) {
				t.Fatalf("channel error: %v", err)
			}
			break
		}
		got = append(got, v)
	}
	if !reflect.DeepEqual(got, []any{float64(1), float64(2)}) {
		t.Errorf("progress = %v", got)
	}

	v, err := j.Channel("log").Next(testCtx(t))
	if err != nil || v != "free form" {
		t.Errorf("log = %v, %v", v, err)
	}

	expectKinds(t, j,
		job.KindOnReady, job.KindStart,
		job.KindChannelCreate, job.KindChannelMessage, job.KindChannelMessage, job.KindChannelComplete,
		job.KindChannelCreate, job.KindChannelMessage,
		job.KindEnd,
	)
}

func TestChannels_InvalidMessage(t *testing.T) {
	h := job.NewHandler(job.Description{
		Name:     "bad-channel",
		Channels: map[string]any{"progress": map[string]any{"type": "number"}},
	}, func(ctx context.Context, _ any, jc *job.Context) error {
		_ = jc.Channel("progress").Send(ctx, "bad")
		return nil
	})
	s := newScheduler(t, h)
	j := s.Schedule(context.Background(), "bad-channel", nil)
	if err := j.Wait(testCtx(t)); err != nil {
		t.Fatalf("an invalid channel message must not fail the job: %v", err)
	}

	err := j.Channel("progress").Drain(testCtx(t))
	if !errors.Is(err, architect.ErrChannelMessageSchemaValidation) {
		t.Fatalf("expected ErrChannelMessageSchemaValidation, got %v", err)
	}
	expectKinds(t, j, job.KindOnReady, job.KindChannelCreate, job.KindChannelError, job.KindEnd)
}

func waitForStop(ctx context.Context, _ any, jc *job.Context) error {
	_ = jc.Start(ctx)
	for {
		m, err := jc.Receive(ctx)
		if err != nil {
			return err
		}
		if m.Kind == job.InboundStop {
			return nil
		}
	}
}

func TestPing(t *testing.T) {
	s := newScheduler(t, job.NewHandler(job.Description{Name: "server"}, waitForStop))
	j := s.Schedule(context.Background(), "server", nil)
	ctx := testCtx(t)

	for range 3 {
		if err := j.Ping(ctx); err != nil {
			t.Fatalf("Ping: %v", err)
		}
	}

	j.Stop()
	if err := j.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if j.State() != job.StateEnded {
		t.Errorf("state = %s", j.State())
	}
	if err := j.Ping(ctx); !errors.Is(err, architect.ErrJobFinished) {
		t.Errorf("Ping after end = %v, want ErrJobFinished", err)
	}

	msgs, _ := outbound(t, j)
	pongs := 0
	for _, m := range msgs {
		if m.Kind == job.KindPong {
			pongs++
		}
	}
	if pongs != 3 {
		t.Errorf("pongs = %d, want 3", pongs)
	}
}

func TestStop_CancelsHandlerContext(t *testing.T) {
	h := job.NewHandler(job.Description{Name: "blocking"}, func(ctx context.Context, _ any, jc *job.Context) error {
		_ = jc.Start(ctx)
		<-ctx.Done()
		return ctx.Err()
	})
	s := newScheduler(t, h)
	j := s.Schedule(context.Background(), "blocking", nil)
	expectNotDone(t, j)

	j.Stop()
	if err := j.Wait(testCtx(t)); err != nil {
		t.Fatalf("a stopped handler returning its context error should end cleanly: %v", err)
	}
	expectKinds(t, j, job.KindOnReady, job.KindStart, job.KindEnd)
}

func TestStop_BeforeStart(t *testing.T) {
	s := newScheduler(t, echo)
	resume := s.Pause()
	defer resume()

	j := s.Schedule(context.Background(), "echo", 1)
	j.Stop()

	if err := j.Wait(testCtx(t)); !errors.Is(err, architect.ErrJobStopped) {
		t.Fatalf("expected ErrJobStopped, got %v", err)
	}
}

func TestScheduleContextCancelled(t *testing.T) {
	h := job.NewHandler(job.Description{Name: "blocking"}, func(ctx context.Context, _ any, _ *job.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	s := newScheduler(t, h)
	ctx, cancel := context.WithCancel(context.Background())
	j := s.Schedule(ctx, "blocking", nil)
	cancel()

	if err := j.Wait(testCtx(t)); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestSubJobs(t *testing.T) {
	parent := job.Simple(job.Description{Name: "parent"}, func(ctx context.Context, _ any, jc *job.Context) (any, error) {
		return jc.Scheduler.Schedule(ctx, "echo", 21).Result(ctx)
	})
	s := newScheduler(t, echo, parent)

	out, err := s.Schedule(context.Background(), "parent", nil).Result(testCtx(t))
	if err != nil || out != float64(42) {
		t.Fatalf("Result = %v, %v; want 42", out, err)
	}
}

func TestRateLimited(t *testing.T) {
	reg := registry.NewSimple()
	reg.Register(echo)
	s := scheduler.New(reg, scheduler.WithConfig(architect.Config{StartRate: 200, StartBurst: 2}))

	jobs := make([]job.Job, 6)
	for i := range jobs {
		jobs[i] = s.Schedule(context.Background(), "echo", i)
	}
	for i, j := range jobs {
		if err := j.Wait(testCtx(t)); err != nil {
			t.Fatalf("job %d: %v", i, err)
		}
	}
}

func TestTargetAnnotation(t *testing.T) {
	host := registry.NewStaticHost("/ws")
	host.AddBuilder(registry.BuilderInfo{Name: "@acme/tools:noop"}, func(ctx context.Context, _ any, jc *job.Context) error {
		return jc.Output(ctx, registry.BuilderOutput{Success: true})
	})
	host.AddProject("app", registry.StaticProject{
		Targets: map[string]registry.StaticTarget{"lint": {Builder: "@acme/tools:noop"}},
	})
	s := scheduler.New(registry.NewTarget(host, nil, nil, nil))

	j := s.Schedule(context.Background(), "{app:lint}", nil)
	out, err := j.Result(testCtx(t))
	if err != nil {
		t.Fatal(err)
	}
	if m, ok := out.(map[string]any); !ok || m["success"] != true {
		t.Errorf("output = %#v", out)
	}

	msgs, _ := outbound(t, j)
	for _, m := range msgs {
		if m.Target == nil || m.Target.Project != "app" || m.Target.Target != "lint" {
			t.Errorf("message %s target = %+v", m.Kind, m.Target)
		}
	}
}

type recordingExt struct {
	mu    sync.Mutex
	calls []string
}

func (e *recordingExt) Name() string { return "recording" }

func (e *recordingExt) record(s string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, s)
}

func (e *recordingExt) OnJobScheduled(context.Context, job.Job) error {
	e.record("scheduled")
	return nil
}

func (e *recordingExt) OnJobReady(context.Context, job.Job) error {
	e.record("ready")
	return nil
}

func (e *recordingExt) OnJobStarted(context.Context, job.Job) error {
	e.record("started")
	return nil
}

func (e *recordingExt) OnJobOutput(_ context.Context, _ job.Job, v any) error {
	e.record("output")
	return nil
}

func (e *recordingExt) OnJobEnded(context.Context, job.Job, time.Duration) error {
	e.record("ended")
	return nil
}

func (e *recordingExt) OnJobErrored(context.Context, job.Job, error) error {
	e.record("errored")
	return nil
}

func TestExtensions(t *testing.T) {
	rec := &recordingExt{}
	exts := ext.NewRegistry(nil)
	exts.Register(rec)

	reg := registry.NewSimple()
	reg.Register(echo)
	s := scheduler.New(reg, scheduler.WithExtensions(exts))

	if err := s.Schedule(context.Background(), "echo", 1).Wait(testCtx(t)); err != nil {
		t.Fatal(err)
	}
	if err := s.Schedule(context.Background(), "echo", "bad").Wait(testCtx(t)); err == nil {
		t.Fatal("expected error")
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	want := []string{"scheduled", "ready", "started", "output", "ended", "scheduled", "errored"}
	if !reflect.DeepEqual(rec.calls, want) {
		t.Errorf("calls = %v, want %v", rec.calls, want)
	}
}

func TestShutdown(t *testing.T) {
	s := newScheduler(t, job.NewHandler(job.Description{Name: "server"}, waitForStop))
	jobs := []job.Job{
		s.Schedule(context.Background(), "server", nil),
		s.Schedule(context.Background(), "server", nil),
	}
	for _, j := range jobs {
		if err := j.Ping(testCtx(t)); err != nil {
			t.Fatal(err)
		}
	}
	if n := s.Active(); n != 2 {
		t.Errorf("Active = %d, want 2", n)
	}

	if err := s.Shutdown(testCtx(t)); err != nil {
		t.Fatal(err)
	}
	for _, j := range jobs {
		if j.State() != job.StateEnded {
			t.Errorf("state = %s", j.State())
		}
	}
	if n := s.Active(); n != 0 {
		t.Errorf("Active = %d after shutdown", n)
	}
}

func TestResolve_SharedLookupSurvivesStoppedCaller(t *testing.T) {
	var calls atomic.Int32
	entered := make(chan struct{}, 2)
	release := make(chan struct{})
	reg := job.RegistryFunc(func(ctx context.Context, name string) (*job.Handler, bool, error) {
		calls.Add(1)
		entered <- struct{}{}
		select {
		case <-release:
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
		return echo, true, nil
	})
	s := scheduler.New(reg)
	ctx := testCtx(t)

	first := s.Schedule(ctx, "echo", 1)
	<-entered
	second := s.Schedule(ctx, "echo", 2)
	time.Sleep(50 * time.Millisecond)

	first.Stop()
	if err := first.Wait(ctx); !errors.Is(err, architect.ErrJobStopped) {
		t.Fatalf("first: expected ErrJobStopped, got %v", err)
	}
	close(release)

	out, err := second.Result(ctx)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if out != float64(4) {
		t.Errorf("second output = %v, want 4", out)
	}
	if second.State() != job.StateEnded {
		t.Errorf("second state = %s, want %s", second.State(), job.StateEnded)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("registry called %d times, want 1 shared lookup", n)
	}
}

type blockingScheduledExt struct{ release chan struct{} }

func (e *blockingScheduledExt) Name() string { return "blocking-scheduled" }

func (e *blockingScheduledExt) OnJobScheduled(context.Context, job.Job) error {
	<-e.release
	return nil
}

func TestSchedule_DoesNotWaitForHooks(t *testing.T) {
	blocker := &blockingScheduledExt{release: make(chan struct{})}
	exts := ext.NewRegistry(nil)
	exts.Register(blocker)
	reg := registry.NewSimple()
	reg.Register(echo)
	s := scheduler.New(reg, scheduler.WithExtensions(exts))
	ctx := testCtx(t)

	scheduled := make(chan job.Job, 1)
	go func() { scheduled <- s.Schedule(ctx, "echo", 1) }()

	var j job.Job
	select {
	case j = <-scheduled:
	case <-time.After(time.Second):
		t.Fatal("Schedule blocked on the scheduled hook")
	}
	if j.State() != job.StateQueued {
		t.Errorf("state = %s, want %s while the hook runs", j.State(), job.StateQueued)
	}

	close(blocker.release)
	if err := j.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

// recordHandler keeps every slog record it receives.
type recordHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *recordHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recordHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r.Clone())
	return nil
}

func (h *recordHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *recordHandler) WithGroup(string) slog.Handler      { return h }

func (h *recordHandler) errorsFor(msg string) []error {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []error
	for _, r := range h.records {
		if r.Message != msg {
			continue
		}
		r.Attrs(func(a slog.Attr) bool {
			if a.Key == "error" {
				if err, ok := a.Value.Any().(error); ok {
					out = append(out, err)
				}
			}
			return true
		})
	}
	return out
}

func TestInput_RejectedIsInboundValidationError(t *testing.T) {
	h := &recordHandler{}
	reg := registry.NewSimple()
	reg.Register(inputEcho(1))
	s := scheduler.New(reg, scheduler.WithLogger(slog.New(h)))

	j := s.Schedule(context.Background(), "input-echo", nil)
	j.Input(map[string]any{"n": "bad"})
	j.Input(map[string]any{"n": 1})
	if err := j.Wait(testCtx(t)); err != nil {
		t.Fatalf("rejected input must not fail the job: %v", err)
	}

	errs := h.errorsFor("dropping input that failed schema validation")
	if len(errs) != 1 {
		t.Fatalf("got %d rejection records, want 1", len(errs))
	}
	if !errors.Is(errs[0], architect.ErrInboundMessageSchemaValidation) {
		t.Errorf("error = %v, want ErrInboundMessageSchemaValidation", errs[0])
	}
	var sve *architect.SchemaValidationError
	if !errors.As(errs[0], &sve) || sve.JobName != "input-echo" {
		t.Errorf("expected SchemaValidationError for input-echo, got %#v", errs[0])
	}
}

func TestMessageReplay_BoundsLateSubscribers(t *testing.T) {
	h := job.NewHandler(job.Description{Name: "counter"}, func(ctx context.Context, _ any, jc *job.Context) error {
		_ = jc.Start(ctx)
		for i := range 10 {
			_ = jc.Output(ctx, i)
		}
		return jc.End(ctx)
	})
	reg := registry.NewSimple()
	reg.Register(h)
	cfg := architect.DefaultConfig()
	cfg.MessageReplay = 3
	s := scheduler.New(reg, scheduler.WithConfig(cfg))

	j := s.Schedule(context.Background(), "counter", nil)
	if err := j.Wait(testCtx(t)); err != nil {
		t.Fatal(err)
	}
	msgs, _ := outbound(t, j)
	if len(msgs) != 3 {
		t.Fatalf("late subscriber saw %d messages, want 3", len(msgs))
	}
	if last := msgs[len(msgs)-1]; last.Kind != job.KindEnd {
		t.Errorf("last message = %s, want %s", last.Kind, job.KindEnd)
	}
}
