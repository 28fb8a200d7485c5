package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/stripeyjumper/Hangfire/job"
)

// tracerName is the instrumentation scope for job-processing spans.
const tracerName = "github.com/stripeyjumper/Hangfire"

// Tracing returns middleware that wraps processing in an OpenTelemetry
// span using the global TracerProvider. Without a configured provider the
// noop tracer makes this a pass-through.
func Tracing() Middleware {
	return TracingWithTracer(otel.Tracer(tracerName))
}

// TracingWithTracer is Tracing with an explicit tracer, for tests or hosts
// running multiple providers.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		ctx, span := tracer.Start(ctx, "hangfire.job.process",
			trace.WithAttributes(
				attribute.String("hangfire.job.id", j.ID),
				attribute.String("hangfire.queue", j.Queue),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		span.SetStatus(codes.Ok, "")
		return nil
	}
}
