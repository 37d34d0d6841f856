// Package engine wires the Architect subsystems together. It composes the
// registry fallback chain, the scheduler, the middleware stack and the
// default extensions, and provides the application-level Schedule API.
//
// The engine package sits above the registry, scheduler, middleware and
// extension packages so that none of them depend on each other's wiring.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/architect"
	"github.com/xraph/architect/ext"
	"github.com/xraph/architect/history"
	"github.com/xraph/architect/job"
	mw "github.com/xraph/architect/middleware"
	"github.com/xraph/architect/observability"
	"github.com/xraph/architect/registry"
	"github.com/xraph/architect/scheduler"
	"github.com/xraph/architect/schema"
)

const instrumentationName = "github.com/xraph/architect"

// Engine is the Architect facade.
type Engine struct {
	config     architect.Config
	logger     *slog.Logger
	extensions *ext.Registry
	exts       []ext.Extension
	schemas    *schema.Registry
	mws        []mw.Middleware

	host     registry.Host
	cache    *registry.Cache
	builders *registry.Builder
	targets  *registry.Target
	private  *registry.Simple
	jobs     *registry.Simple
	extra    []job.Registry
	registry *registry.Fallback

	scheduler *scheduler.Scheduler
	history   history.Store

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig sets the scheduler configuration.
func WithConfig(cfg architect.Config) Option {
	return func(eng *Engine) { eng.config = cfg }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(eng *Engine) { eng.logger = l }
}

// WithHost sets the workspace host used to resolve builders and targets.
// Without a host, builder and target names fall through to the remaining
// registries, and the host-backed private jobs fail with ErrNoHost.
func WithHost(h registry.Host) Option {
	return func(eng *Engine) { eng.host = h }
}

// WithRegistry adds a registry consulted after the builtin ones and before
// jobs added with Register.
func WithRegistry(r job.Registry) Option {
	return func(eng *Engine) {
		if r != nil {
			eng.extra = append(eng.extra, r)
		}
	}
}

// WithExtension registers an extension with the engine.
func WithExtension(e ext.Extension) Option {
	return func(eng *Engine) { eng.exts = append(eng.exts, e) }
}

// WithMiddleware adds middleware to the engine's chain.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) { eng.mws = append(eng.mws, m) }
}

// WithHistory journals every job run into s.
func WithHistory(s history.Store) Option {
	return func(eng *Engine) { eng.history = s }
}

// WithTracerProvider sets a custom OTel TracerProvider for the tracing
// middleware. If not set, the global otel.GetTracerProvider() is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) { eng.tracerProvider = tp }
}

// WithMeterProvider sets a custom OTel MeterProvider for both the metrics
// middleware and the observability extension. If not set, the global
// otel.GetMeterProvider() is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) { eng.meterProvider = mp }
}

// New creates an Engine.
func New(opts ...Option) (*Engine, error) {
	eng := &Engine{
		config:  architect.DefaultConfig(),
		logger:  slog.Default(),
		schemas: schema.NewRegistry(),
		cache:   registry.NewCache(),
		private: registry.NewSimple(),
		jobs:    registry.NewSimple(),
	}

	for _, opt := range opts {
		opt(eng)
	}
	if eng.logger == nil {
		eng.logger = slog.Default()
	}

	eng.extensions = ext.NewRegistry(eng.logger)
	for _, e := range eng.exts {
		eng.extensions.Register(e)
	}

	if eng.config.StartRate < 0 {
		return nil, fmt.Errorf("architect: start rate must not be negative, got %v", eng.config.StartRate)
	}

	// Fixed precedence: targets, builders, private jobs, caller registries,
	// then jobs added with Register.
	eng.builders = registry.NewBuilder(eng.host, eng.cache)
	eng.targets = registry.NewTarget(eng.host, eng.builders, eng.cache, eng.schemas)
	eng.private.Register(eng.privateJobs()...)
	chain := []job.Registry{
		hostOnly(eng.host, eng.targets, isTargetName),
		hostOnly(eng.host, eng.builders, registry.IsBuilderName),
		eng.private,
	}
	chain = append(chain, eng.extra...)
	chain = append(chain, eng.jobs)
	eng.registry = registry.NewFallback(chain...)

	// Build tracing middleware (custom provider or global).
	var tracingMw mw.Middleware
	if eng.tracerProvider != nil {
		tracingMw = mw.TracingWithTracer(eng.tracerProvider.Tracer(instrumentationName))
	} else {
		tracingMw = mw.Tracing()
	}

	// Build metrics middleware (custom provider or global).
	var metricsMw mw.Middleware
	if eng.meterProvider != nil {
		metricsMw = mw.MetricsWithMeter(eng.meterProvider.Meter(instrumentationName))
	} else {
		metricsMw = mw.Metrics()
	}

	// Register the observability metrics extension.
	var obsExt *observability.MetricsExtension
	if eng.meterProvider != nil {
		obsExt = observability.NewMetricsExtensionWithMeter(eng.meterProvider.Meter(instrumentationName + "/observability"))
	} else {
		obsExt = observability.NewMetricsExtension()
	}
	eng.extensions.Register(obsExt)

	if eng.history != nil {
		eng.extensions.Register(history.NewRecorder(eng.history, eng.logger))
	}

	// Default middleware stack: tracing -> metrics -> logging -> timeout ->
	// caller middleware. The scheduler adds recover innermost.
	defaultMws := []mw.Middleware{
		tracingMw,
		metricsMw,
		mw.Logging(eng.logger),
	}
	if eng.config.HandlerTimeout > 0 {
		defaultMws = append(defaultMws, mw.Timeout(eng.config.HandlerTimeout))
	}
	allMws := make([]mw.Middleware, 0, len(defaultMws)+len(eng.mws))
	allMws = append(allMws, defaultMws...)
	allMws = append(allMws, eng.mws...)

	eng.scheduler = scheduler.New(eng.registry,
		scheduler.WithLogger(eng.logger),
		scheduler.WithConfig(eng.config),
		scheduler.WithExtensions(eng.extensions),
		scheduler.WithSchemaRegistry(eng.schemas),
		scheduler.WithMiddleware(allMws...),
	)

	return eng, nil
}

// Register adds jobs resolvable by name. They have the lowest precedence.
func (eng *Engine) Register(handlers ...*job.Handler) {
	eng.jobs.Register(handlers...)
}

// Schedule schedules the named job. Failures surface through the job.
func (eng *Engine) Schedule(ctx context.Context, name string, argument any, opts ...job.ScheduleOption) job.Job {
	return eng.scheduler.Schedule(ctx, name, argument, opts...)
}

// ScheduleBuilder runs a builder directly with options. A nil options map
// is scheduled as an empty object so schema defaults apply.
func (eng *Engine) ScheduleBuilder(ctx context.Context, builderName string, options map[string]any, opts ...job.ScheduleOption) (job.Job, error) {
	if !registry.IsBuilderName(builderName) {
		return nil, fmt.Errorf("%w: %q", architect.ErrInvalidBuilderName, builderName)
	}
	if options == nil {
		options = map[string]any{}
	}
	return eng.scheduler.Schedule(ctx, builderName, options, opts...), nil
}

// ScheduleTarget runs a project target. overrides are merged over the
// target's options.
func (eng *Engine) ScheduleTarget(ctx context.Context, target job.Target, overrides map[string]any, opts ...job.ScheduleOption) job.Job {
	return eng.scheduler.Schedule(ctx, target.String(), nilIfEmpty(overrides), opts...)
}

// Has reports whether name resolves to a job.
func (eng *Engine) Has(ctx context.Context, name string) (bool, error) {
	return eng.scheduler.Has(ctx, name)
}

// GetDescription resolves name without scheduling it.
func (eng *Engine) GetDescription(ctx context.Context, name string) (job.Description, bool, error) {
	return eng.scheduler.GetDescription(ctx, name)
}

// Pause holds back newly scheduled jobs until the returned function is
// called.
func (eng *Engine) Pause() func() { return eng.scheduler.Pause() }

// Stop stops every active job, waits for them to terminate and notifies
// extensions of the shutdown.
func (eng *Engine) Stop(ctx context.Context) error {
	err := eng.scheduler.Shutdown(ctx)
	eng.extensions.EmitShutdown(ctx)
	return err
}

// Scheduler returns the underlying scheduler.
func (eng *Engine) Scheduler() *scheduler.Scheduler { return eng.scheduler }

// Extensions returns the extension registry.
func (eng *Engine) Extensions() *ext.Registry { return eng.extensions }

// Registry returns the composed fallback registry.
func (eng *Engine) Registry() job.Registry { return eng.registry }

// Builders returns the builder registry.
func (eng *Engine) Builders() *registry.Builder { return eng.builders }

// Host returns the configured host, or nil.
func (eng *Engine) Host() registry.Host { return eng.host }

// History returns the run journal, or nil if none was configured.
func (eng *Engine) History() history.Store { return eng.history }

// Result schedules name, waits for it and decodes its last output into O.
func Result[O any](ctx context.Context, eng *Engine, name string, argument any, opts ...job.ScheduleOption) (O, error) {
	var out O
	v, err := eng.Schedule(ctx, name, argument, opts...).Result(ctx)
	if err != nil {
		return out, err
	}
	if err := job.Decode(v, &out); err != nil {
		return out, fmt.Errorf("decode output of job %q: %w", name, err)
	}
	return out, nil
}

func isTargetName(name string) bool {
	_, ok := job.ParseTarget(name)
	return ok
}

// hostOnly skips r when no host is configured so names in host form still
// fall through to the remaining registries.
func hostOnly(host registry.Host, r job.Registry, match func(string) bool) job.Registry {
	return job.RegistryFunc(func(ctx context.Context, name string) (*job.Handler, bool, error) {
		if host == nil || !match(name) {
			return nil, false, nil
		}
		return r.Get(ctx, name)
	})
}

func nilIfEmpty(m map[string]any) any {
	if len(m) == 0 {
		return nil
	}
	return m
}
