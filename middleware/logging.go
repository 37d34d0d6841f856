package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/architect/job"
)

// Logging returns middleware that logs handler start and completion.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j job.Job, next Handler) error {
		logger.Info("job handler started",
			slog.String("job_name", j.Name()),
			slog.String("job_id", j.ID().String()),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("job handler failed",
				slog.String("job_name", j.Name()),
				slog.String("job_id", j.ID().String()),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("job handler completed",
				slog.String("job_name", j.Name()),
				slog.String("job_id", j.ID().String()),
				slog.Duration("elapsed", elapsed),
			)
		}

		return err
	}
}
