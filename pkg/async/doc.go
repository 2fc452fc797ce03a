// Package async runs periodic background work safely.
//
// Every runs a function on an interval until its context is done. Each run
// gets its own timeout; panics are recovered and failures logged through the
// observability logger, so one faulty run never stops the loop.
//
//	done := async.Every(ctx, 30*time.Second, 5*time.Second, "postgres maintenance", logger, func(ctx context.Context) error {
//		return check(ctx)
//	})
//	cancel()
//	<-done
package async
