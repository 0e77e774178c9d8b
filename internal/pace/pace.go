// Package pace provides the fixed delays used to stay under vendor rate limits.
package pace

import (
	"context"
	"time"
)

// Wait blocks for d or until ctx is done. A non-positive d returns immediately.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Every reports whether a pause is due after the n-th unit of work (1-based)
func Every(n, interval int) bool {
	return interval > 0 && n > 0 && n%interval == 0
}
