package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(attempts int) *RetryConfig {
	return &RetryConfig{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestWithExponentialBackoff_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	result := WithExponentialBackoff(context.Background(), fastConfig(5), func(ctx context.Context, attempt int) error {
		calls++
		if attempt < 3 {
			return errors.New("transient")
		}
		return nil
	})

	assert.True(t, result.Success)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, 3, calls)
	assert.NoError(t, result.LastError)
}

func TestWithExponentialBackoff_GivesUp(t *testing.T) {
	boom := errors.New("boom")
	result := WithExponentialBackoff(context.Background(), fastConfig(3), func(ctx context.Context, attempt int) error {
		return boom
	})

	assert.False(t, result.Success)
	assert.Equal(t, 3, result.Attempts)
	assert.ErrorIs(t, result.LastError, boom)
}

func TestWithExponentialBackoff_NonRetryableStopsEarly(t *testing.T) {
	permanent := errors.New("permanent")
	cfg := fastConfig(5)
	cfg.ShouldRetry = func(err error) bool { return !errors.Is(err, permanent) }

	result := WithExponentialBackoff(context.Background(), cfg, func(ctx context.Context, attempt int) error {
		return permanent
	})

	assert.False(t, result.Success)
	assert.Equal(t, 1, result.Attempts)
}

func TestWithExponentialBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := &RetryConfig{MaxAttempts: 5, InitialDelay: time.Hour, MaxDelay: time.Hour, Multiplier: 2}

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	result := WithExponentialBackoff(ctx, cfg, func(ctx context.Context, attempt int) error {
		return errors.New("fail")
	})

	assert.False(t, result.Success)
	assert.ErrorIs(t, result.LastError, context.Canceled)
	assert.Equal(t, 1, result.Attempts)
}

func TestCalculateDelay(t *testing.T) {
	cfg := &RetryConfig{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2}

	assert.Equal(t, 100*time.Millisecond, calculateDelay(cfg, 1))
	assert.Equal(t, 200*time.Millisecond, calculateDelay(cfg, 2))
	assert.Equal(t, 400*time.Millisecond, calculateDelay(cfg, 3))
	assert.Equal(t, time.Second, calculateDelay(cfg, 10))
}

func TestDo(t *testing.T) {
	err := Do(context.Background(), fastConfig(2), func(ctx context.Context, attempt int) error {
		return errors.New("nope")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed after 2 attempts")

	require.NoError(t, Do(context.Background(), fastConfig(2), func(ctx context.Context, attempt int) error {
		return nil
	}))
}
