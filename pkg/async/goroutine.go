package async

import (
	"context"
	"time"

	"github.com/platinummonkey/schoolhouse/pkg/observability"
)

// Every runs fn each interval until ctx is done. Every run gets its own
// timeout, and a panicking or failing run is logged without stopping the
// loop. The returned channel is closed once the loop has exited.
//
// Example:
//
//	async.Every(ctx, time.Minute, 5*time.Second, "rate limit cleanup", logger, func(context.Context) error {
//	    limiter.Cleanup()
//	    return nil
//	})
func Every(ctx context.Context, interval, timeout time.Duration, taskName string, logger *observability.Logger, fn func(context.Context) error) <-chan struct{} {
	done := make(chan struct{})
	ticker := time.NewTicker(interval)

	go func() {
		defer close(done)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				runOnce(ctx, timeout, taskName, logger, fn)
			case <-ctx.Done():
				return
			}
		}
	}()
	return done
}

func runOnce(parentCtx context.Context, timeout time.Duration, taskName string, logger *observability.Logger, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(parentCtx, timeout)
	defer cancel()
	defer observability.RecoverPanic(logger, taskName)

	if err := fn(ctx); err != nil && logger != nil {
		logger.WithError(err).WithField("task", taskName).Warn("background task failed")
	}
}
