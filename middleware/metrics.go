package middleware

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/architect/job"
)

// meterName is the instrumentation scope name for architect metrics.
const meterName = "github.com/xraph/architect"

// Metrics returns middleware that records per-job handler metrics using
// the global OTel MeterProvider.
//
// Instruments:
//   - architect.job.duration (Float64Histogram): handler time in seconds
//   - architect.job.runs (Int64Counter): total handler runs
//
// Both carry job_name and status ("ok", "error" or "stopped"). Target jobs
// also carry project and target.
func Metrics() Middleware {
	meter := otel.Meter(meterName)
	return MetricsWithMeter(meter)
}

// MetricsWithMeter returns metrics middleware using the provided meter.
func MetricsWithMeter(meter metric.Meter) Middleware {
	// On error the API returns noop instruments.
	duration, _ := meter.Float64Histogram(
		"architect.job.duration",
		metric.WithDescription("Duration of job handler execution in seconds"),
		metric.WithUnit("s"),
	)

	runs, _ := meter.Int64Counter(
		"architect.job.runs",
		metric.WithDescription("Total number of job handler runs"),
		metric.WithUnit("{run}"),
	)

	return func(ctx context.Context, j job.Job, next Handler) error {
		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start).Seconds()

		kv := []attribute.KeyValue{
			attribute.String("job_name", j.Name()),
			attribute.String("status", runStatus(ctx, err)),
		}
		if t, ok := job.ParseTarget(j.Name()); ok {
			kv = append(kv,
				attribute.String("project", t.Project),
				attribute.String("target", t.Target),
			)
		}
		attrs := metric.WithAttributes(kv...)

		// Recorded against a context that survives Stop.
		recordCtx := context.WithoutCancel(ctx)
		duration.Record(recordCtx, elapsed, attrs)
		runs.Add(recordCtx, 1, attrs)

		return err
	}
}

// runStatus classifies a handler result. A handler unwinding after its
// job was stopped counts as stopped, not failed.
func runStatus(ctx context.Context, err error) string {
	switch {
	case err == nil:
		return "ok"
	case ctx.Err() != nil && errors.Is(err, context.Canceled):
		return "stopped"
	default:
		return "error"
	}
}
