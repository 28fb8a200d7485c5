package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/stripeyjumper/Hangfire/job"
)

// Logging returns middleware that logs the start and outcome of every
// processed claim.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		logger.Debug("job started",
			slog.String("job_id", j.ID),
			slog.String("queue", j.Queue),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("job failed",
				slog.String("job_id", j.ID),
				slog.String("queue", j.Queue),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
			return err
		}

		logger.Info("job completed",
			slog.String("job_id", j.ID),
			slog.String("queue", j.Queue),
			slog.Duration("elapsed", elapsed),
		)
		return nil
	}
}
