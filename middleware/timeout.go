package middleware

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/architect/job"
)

// Timeout returns middleware that bounds handler execution to d. When the
// deadline passes the handler context is cancelled and the job fails with
// an error wrapping context.DeadlineExceeded. A non-positive d disables
// the deadline.
func Timeout(d time.Duration) Middleware {
	return func(ctx context.Context, j job.Job, next Handler) error {
		if d <= 0 {
			return next(ctx)
		}
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()

		err := next(ctx)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("job %s timed out after %s: %w", j.Name(), d, context.DeadlineExceeded)
		}
		return err
	}
}
