package engine

import (
	"context"
	"time"

	"tradecore/pkg/errs"
)

// backoffSchedule is §5's documented retry policy for timed-out or
// transiently failing calls: three attempts beyond the first, spaced
// 1s/2s/4s apart.
var backoffSchedule = []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}

// withRetry runs fn, retrying on errs.KindTransient up to
// len(backoffSchedule) additional times with exponential backoff. Any
// other classification (or context cancellation) returns immediately.
func withRetry(ctx context.Context, fn func() error) error {
	err := fn()
	for _, wait := range backoffSchedule {
		if err == nil || errs.KindOf(err) != errs.KindTransient {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		err = fn()
	}
	return err
}
