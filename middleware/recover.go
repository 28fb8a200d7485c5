package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/stripeyjumper/Hangfire/job"
)

// Recover returns middleware that converts a panicking processor into an
// error, logging the stack trace. Without it a panic would escape into the
// pool goroutine's supervisor and take the whole unit down.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) (retErr error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("processor panicked",
					slog.String("job_id", j.ID),
					slog.String("queue", j.Queue),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())),
				)
				retErr = fmt.Errorf("panic processing job %s: %v", j.ID, r)
			}
		}()
		return next(ctx)
	}
}
