package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/stripeyjumper/Hangfire/job"
)

// meterName is the instrumentation scope for job-processing metrics.
const meterName = "github.com/stripeyjumper/Hangfire"

// Metrics returns middleware that records processing counts and durations
// through the global MeterProvider. Without a configured provider the noop
// instruments make this a pass-through.
//
// Instruments:
//   - hangfire.job.duration (Float64Histogram, seconds)
//   - hangfire.job.processed (Int64Counter)
//
// both with queue and status ("ok" or "error") attributes.
func Metrics() Middleware {
	return MetricsWithMeter(otel.Meter(meterName))
}

// MetricsWithMeter is Metrics with an explicit meter, for tests.
func MetricsWithMeter(meter metric.Meter) Middleware {
	// Instrument creation errors fall back to noop instruments, so the
	// errors are safe to discard.
	duration, _ := meter.Float64Histogram( //nolint:errcheck
		"hangfire.job.duration",
		metric.WithDescription("Duration of job processing in seconds"),
		metric.WithUnit("s"),
	)
	processed, _ := meter.Int64Counter( //nolint:errcheck
		"hangfire.job.processed",
		metric.WithDescription("Total number of processed jobs"),
		metric.WithUnit("{job}"),
	)

	return func(ctx context.Context, j *job.Job, next Handler) error {
		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start).Seconds()

		status := "ok"
		if err != nil {
			status = "error"
		}
		attrs := metric.WithAttributes(
			attribute.String("queue", j.Queue),
			attribute.String("status", status),
		)

		duration.Record(ctx, elapsed, attrs)
		processed.Add(ctx, 1, attrs)

		return err
	}
}
