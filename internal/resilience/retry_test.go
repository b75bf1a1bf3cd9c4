package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fastRetry keeps test backoffs in the microsecond range.
func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:    attempts,
		InitialBackoff: time.Microsecond,
		MaxBackoff:     time.Millisecond,
		Multiplier:     2.0,
	}
}

func TestDo_FirstAttemptSucceeds(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastRetry(3), func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesTransientFetchFailure(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastRetry(3), func(context.Context) error {
		calls++
		if calls < 3 {
			return NewTransientError(errors.New("status 503"), 503)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_PermanentErrorStopsImmediately(t *testing.T) {
	calls := 0
	wantErr := errors.New("status 404")
	err := Do(context.Background(), fastRetry(3), func(context.Context) error {
		calls++
		return wantErr
	})
	require.ErrorIs(t, err, wantErr)
	assert.Equal(t, 1, calls)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastRetry(3), func(context.Context) error {
		calls++
		return NewTransientError(errors.New("status 502"), 502)
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_CanceledContextStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := Do(ctx, fastRetry(5), func(context.Context) error {
		calls++
		cancel()
		return NewTransientError(errors.New("connection dropped"), 0)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_OnRetryReportsEachAttempt(t *testing.T) {
	var attempts []int
	cfg := fastRetry(3)
	cfg.OnRetry = func(attempt int, err error) {
		attempts = append(attempts, attempt)
		assert.Error(t, err)
	}

	_ = Do(context.Background(), cfg, func(context.Context) error {
		return NewTransientError(errors.New("status 500"), 500)
	})
	assert.Equal(t, []int{1, 2}, attempts)
}

func TestDo_ShouldRetryOverride(t *testing.T) {
	calls := 0
	cfg := fastRetry(3)
	cfg.ShouldRetry = func(error) bool { return true }

	_ = Do(context.Background(), cfg, func(context.Context) error {
		calls++
		return errors.New("not transient, retried anyway")
	})
	assert.Equal(t, 3, calls)
}

func TestBackoffDelay_GrowsAndCaps(t *testing.T) {
	cfg := RetryConfig{
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     time.Second,
		Multiplier:     2.0,
	}

	assert.Equal(t, 100*time.Millisecond, backoffDelay(0, cfg))
	assert.Equal(t, 200*time.Millisecond, backoffDelay(1, cfg))
	assert.Equal(t, 400*time.Millisecond, backoffDelay(2, cfg))
	// Capped well before 100ms * 2^10.
	assert.Equal(t, time.Second, backoffDelay(10, cfg))
}

func TestBackoffDelay_JitterStaysInBand(t *testing.T) {
	cfg := RetryConfig{
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.25,
	}
	for i := 0; i < 50; i++ {
		d := backoffDelay(0, cfg)
		assert.GreaterOrEqual(t, d, 75*time.Millisecond)
		assert.LessOrEqual(t, d, 125*time.Millisecond)
	}
}

func TestRetryLogger_CallbackRuns(t *testing.T) {
	// Must be safe with the global zap default.
	assert.NotPanics(t, func() {
		RetryLogger("stock", "fetch")(1, errors.New("status 503"))
	})
}
