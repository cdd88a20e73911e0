package core

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// RetryPolicy bounds a retried call. The delay between attempts starts at
// Initial and doubles up to Max.
type RetryPolicy struct {
	Attempts int
	Initial  time.Duration
	Max      time.Duration
}

type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep waits for d or until the context is done.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Retry calls fn until it succeeds or the policy is exhausted, in which case
// an UpdateFailedError wrapping the last error is returned.
func Retry[T any](ctx context.Context, policy RetryPolicy, sleep SleepFunc, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if sleep == nil {
		sleep = Sleep
	}
	attempts := policy.Attempts
	if attempts < 1 {
		attempts = 1
	}
	delay := policy.Initial
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if attempt == attempts {
			break
		}
		log.Debug().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("Retrying after failure.")
		if err := sleep(ctx, delay); err != nil {
			return zero, err
		}
		delay *= 2
		if policy.Max > 0 && delay > policy.Max {
			delay = policy.Max
		}
	}
	return zero, UpdateFailed(lastErr, "failed after %d attempts", attempts)
}
