package remote

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// backoff calculates the next backoff interval given consecutive failures.
// It uses exponential backoff with jitter, capped at maxInterval.
func backoff(baseInterval, maxInterval time.Duration, consecutiveFailures int) time.Duration {
	if consecutiveFailures <= 0 {
		return baseInterval
	}

	multiplier := math.Pow(2, float64(consecutiveFailures))
	interval := time.Duration(float64(baseInterval) * multiplier)
	if interval > maxInterval {
		interval = maxInterval
	}

	// Jitter of +/- 25% keeps retries from synchronizing.
	jitter := time.Duration(float64(interval) * 0.25 * (rand.Float64()*2 - 1))
	interval += jitter

	if interval < baseInterval {
		interval = baseInterval
	}
	return interval
}

// sleep waits for d or until the context is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
