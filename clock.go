package distlimiter

import (
	"context"
	"time"
)

// nowMillis returns local wall time in milliseconds, used only for
// timeout/elapsed-time bookkeeping on the client side. Scheduling decisions
// for the token bucket always use the coordination server's clock instead;
// see token_bucket.go.
func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// withinMaxSleep reports whether d falls within the maxSleep bound.
// maxSleep <= 0 means unbounded. This is the one condition both primitives
// check to decide a wait took too long, instead of each reimplementing it.
func withinMaxSleep(d, maxSleep time.Duration) bool {
	return maxSleep <= 0 || d <= maxSleep
}

// sleepBounded blocks for d, or until ctx is done, whichever comes first,
// unless d itself already exceeds maxSleep, in which case it returns
// ErrMaxSleepExceeded immediately without sleeping at all.
//
// The token bucket calls this directly before sleeping out an assigned
// slot (d is the time remaining until that slot). The semaphore has
// already done its waiting remotely, via BLPOP, so its post-wait guard
// calls withinMaxSleep directly instead: there's nothing left to sleep
// for, only the already-measured wait to check against the same bound.
func sleepBounded(ctx context.Context, d, maxSleep time.Duration) error {
	if !withinMaxSleep(d, maxSleep) {
		return ErrMaxSleepExceeded
	}
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
