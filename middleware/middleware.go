// Package middleware provides composable wrappers around job processing:
// panic recovery, logging, OpenTelemetry tracing and metrics. The worker
// pool applies a middleware chain to every claim it hands to the host's
// processor.
package middleware

import (
	"context"

	"github.com/stripeyjumper/Hangfire/job"
)

// Handler is the terminal function that processes the job.
type Handler func(ctx context.Context) error

// Middleware wraps a Handler with cross-cutting logic. A middleware must
// call next unless it is short-circuiting with an error.
type Middleware func(ctx context.Context, j *job.Job, next Handler) error

// Chain composes middleware into one. The first middleware in the list is
// the outermost wrapper: Chain(logging, recovery) runs logging around
// recovery around the handler.
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw, inner := mws[i], h
			h = func(ctx context.Context) error {
				return mw(ctx, j, inner)
			}
		}
		return h(ctx)
	}
}
