package retry

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// Jitter returns a random delay in [min, max). Concurrent jobs that hit
// the same transient filesystem race should not all retry in lockstep.
func Jitter(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}

// Sleep waits for a jittered delay drawn from [min, max), or until the
// context is cancelled.
func Sleep(ctx context.Context, min, max time.Duration) error {
	t := time.NewTimer(Jitter(min, max))
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do runs fn up to attempts times, sleeping a jittered delay between
// attempts. It returns nil on the first success, the context error if the
// wait is cancelled, and otherwise the last error wrapped with the
// attempt count.
func Do(ctx context.Context, attempts int, minDelay, maxDelay time.Duration, fn func() error) error {
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == attempts-1 {
			break
		}
		if sleepErr := Sleep(ctx, minDelay, maxDelay); sleepErr != nil {
			return sleepErr
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", attempts, err)
}
