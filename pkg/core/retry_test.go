package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryBackoff(t *testing.T) {
	sleeps := []time.Duration{}
	sleep := func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	calls := 0
	_, err := Retry(context.Background(), RetryPolicy{Attempts: 3, Initial: time.Second, Max: 8 * time.Second}, sleep,
		func(ctx context.Context) (int, error) {
			calls++
			return 0, errors.New("offline")
		})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUpdateFailed))
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeps)
}

func TestRetryCap(t *testing.T) {
	sleeps := []time.Duration{}
	sleep := func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	_, _ = Retry(context.Background(), RetryPolicy{Attempts: 6, Initial: time.Second, Max: 8 * time.Second}, sleep,
		func(ctx context.Context) (int, error) {
			return 0, errors.New("offline")
		})
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 8 * time.Second}, sleeps)
}

func TestRetrySuccess(t *testing.T) {
	calls := 0
	result, err := Retry(context.Background(), RetryPolicy{Attempts: 3, Initial: time.Second}, func(ctx context.Context, d time.Duration) error { return nil },
		func(ctx context.Context) (string, error) {
			calls++
			if calls < 2 {
				return "", errors.New("offline")
			}
			return "ok", nil
		})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 2, calls)
}

func TestSleepCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
}
