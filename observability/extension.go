package observability

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/architect"
	"github.com/xraph/architect/ext"
	"github.com/xraph/architect/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension    = (*MetricsExtension)(nil)
	_ ext.JobScheduled = (*MetricsExtension)(nil)
	_ ext.JobStarted   = (*MetricsExtension)(nil)
	_ ext.JobOutput    = (*MetricsExtension)(nil)
	_ ext.JobEnded     = (*MetricsExtension)(nil)
	_ ext.JobErrored   = (*MetricsExtension)(nil)
)

const meterName = "github.com/xraph/architect/observability"

// MetricsExtension records system-wide lifecycle metrics as OTel counters.
// Register it as an Architect extension to track schedule rates, outcome
// counts and output volume.
type MetricsExtension struct {
	JobScheduled metric.Int64Counter
	JobStarted   metric.Int64Counter
	JobOutputs   metric.Int64Counter
	JobEnded     metric.Int64Counter
	JobErrored   metric.Int64Counter
	JobElapsed   metric.Float64Histogram
}

// NewMetricsExtension creates a MetricsExtension using the global
// MeterProvider.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the provided
// meter. On instrument errors the OTel API returns noop instruments.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	scheduled, _ := meter.Int64Counter("architect.job.scheduled",
		metric.WithDescription("Jobs returned by Schedule"))
	started, _ := meter.Int64Counter("architect.job.started",
		metric.WithDescription("Jobs that published Start"))
	outputs, _ := meter.Int64Counter("architect.job.outputs",
		metric.WithDescription("Validated outputs published by jobs"))
	ended, _ := meter.Int64Counter("architect.job.ended",
		metric.WithDescription("Jobs that finished cleanly"))
	errored, _ := meter.Int64Counter("architect.job.errored",
		metric.WithDescription("Jobs that terminated with an error"))
	elapsed, _ := meter.Float64Histogram("architect.job.elapsed",
		metric.WithDescription("Time from schedule to clean end in seconds"),
		metric.WithUnit("s"))

	return &MetricsExtension{
		JobScheduled: scheduled,
		JobStarted:   started,
		JobOutputs:   outputs,
		JobEnded:     ended,
		JobErrored:   errored,
		JobElapsed:   elapsed,
	}
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnJobScheduled implements ext.JobScheduled.
func (m *MetricsExtension) OnJobScheduled(ctx context.Context, j job.Job) error {
	m.JobScheduled.Add(ctx, 1, nameAttr(j))
	return nil
}

// OnJobStarted implements ext.JobStarted.
func (m *MetricsExtension) OnJobStarted(ctx context.Context, j job.Job) error {
	m.JobStarted.Add(ctx, 1, nameAttr(j))
	return nil
}

// OnJobOutput implements ext.JobOutput.
func (m *MetricsExtension) OnJobOutput(ctx context.Context, j job.Job, _ any) error {
	m.JobOutputs.Add(ctx, 1, nameAttr(j))
	return nil
}

// OnJobEnded implements ext.JobEnded.
func (m *MetricsExtension) OnJobEnded(ctx context.Context, j job.Job, elapsed time.Duration) error {
	m.JobEnded.Add(ctx, 1, nameAttr(j))
	m.JobElapsed.Record(ctx, elapsed.Seconds(), nameAttr(j))
	return nil
}

// OnJobErrored implements ext.JobErrored. The reason attribute classifies
// the error by stage.
func (m *MetricsExtension) OnJobErrored(ctx context.Context, j job.Job, err error) error {
	m.JobErrored.Add(ctx, 1, metric.WithAttributes(
		attribute.String("job_name", j.Name()),
		attribute.String("reason", Reason(err)),
	))
	return nil
}

func nameAttr(j job.Job) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("job_name", j.Name()))
}

// Reason maps a job error to a short label.
func Reason(err error) string {
	switch {
	case errors.Is(err, architect.ErrJobDoesNotExist):
		return "not_found"
	case errors.Is(err, architect.ErrArgumentSchemaValidation):
		return "invalid_argument"
	case errors.Is(err, architect.ErrOutputSchemaValidation):
		return "invalid_output"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "handler"
	}
}
