package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/architect/job"
)

// tracerName is the instrumentation scope name for architect tracing.
const tracerName = "github.com/xraph/architect"

// Tracing returns middleware that wraps handler execution in an
// OpenTelemetry span. If no TracerProvider is configured globally, the
// default noop tracer is used.
//
// Span attributes: architect.job.id, architect.job.name and, for target
// jobs, architect.target.
func Tracing() Middleware {
	tracer := otel.Tracer(tracerName)
	return TracingWithTracer(tracer)
}

// TracingWithTracer returns tracing middleware using the provided tracer.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, j job.Job, next Handler) error {
		attrs := []attribute.KeyValue{
			attribute.String("architect.job.id", j.ID().String()),
			attribute.String("architect.job.name", j.Name()),
		}
		if t, ok := job.ParseTarget(j.Name()); ok {
			attrs = append(attrs, attribute.String("architect.target", t.String()))
		}

		ctx, span := tracer.Start(ctx, "architect.job.run",
			trace.WithAttributes(attrs...),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return err
	}
}
