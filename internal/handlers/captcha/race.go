package captcha

import (
	"context"
	"time"
)

type runResult struct {
	res Result
	err error
}

// race runs w until it resolves or the deadline passes. A timed out worker is cancelled and
// awaited before race returns, and its outcome is Failed.
func race(ctx context.Context, deadline time.Time, w Worker) (Result, bool, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan runResult, 1)
	go func() {
		res, err := w.Run(ctx)
		done <- runResult{res: res, err: err}
	}()

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	select {
	case r := <-done:
		return r.res, false, r.err
	case <-timer.C:
		cancel()
		<-done
		return Result{Outcome: OutcomeFailed}, true, nil
	case <-ctx.Done():
		cancel()
		<-done
		return Result{Outcome: OutcomeCancelled}, false, ctx.Err()
	}
}
