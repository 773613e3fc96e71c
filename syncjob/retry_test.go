package syncjob

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/poiesic/mailgraph/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryWithBackoff_Success(t *testing.T) {
	attempts := 0
	operation := func() error {
		attempts++
		return nil
	}

	err := RetryWithBackoff(context.Background(), operation, 3, time.Millisecond, time.Second, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, attempts, "should succeed on first try")
}

func TestRetryWithBackoff_EventualSuccess(t *testing.T) {
	attempts := 0
	operation := func() error {
		attempts++
		if attempts < 3 {
			return fmt.Errorf("throttled: %w", core.ErrRateLimited)
		}
		return nil
	}

	err := RetryWithBackoff(context.Background(), operation, 5, time.Millisecond, time.Second, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, attempts, "should succeed on third attempt")
}

func TestRetryWithBackoff_AllAttemptsFail(t *testing.T) {
	attempts := 0
	operation := func() error {
		attempts++
		return core.ErrRateLimited
	}

	err := RetryWithBackoff(context.Background(), operation, 3, time.Millisecond, time.Second, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrRateLimited)
	assert.Equal(t, 3, attempts, "should exhaust all attempts")
}

func TestRetryWithBackoff_PermanentErrorNotRetried(t *testing.T) {
	attempts := 0
	permanent := errors.New("schema mismatch")
	operation := func() error {
		attempts++
		return permanent
	}

	err := RetryWithBackoff(context.Background(), operation, 5, time.Millisecond, time.Second, nil)
	require.Error(t, err)
	assert.Equal(t, permanent, err)
	assert.Equal(t, 1, attempts, "permanent errors should not be retried")
}

func TestRetryWithBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	operation := func() error {
		attempts++
		return core.ErrRateLimited
	}

	err := RetryWithBackoff(ctx, operation, 3, time.Millisecond, time.Second, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, attempts, "should not attempt with cancelled context")
}

func TestRetryWithBackoff_InvalidMaxAttempts(t *testing.T) {
	err := RetryWithBackoff(context.Background(), func() error { return nil }, 0, time.Millisecond, time.Second, nil)
	assert.ErrorIs(t, err, ErrInvalidMaxAttempts)
}

func TestRetryWithBackoff_OnRetryCallback(t *testing.T) {
	attempts := 0
	retries := 0
	operation := func() error {
		attempts++
		return core.ErrRateLimited
	}

	err := RetryWithBackoff(context.Background(), operation, 3, time.Millisecond, time.Second, func(attempt int, delay time.Duration, err error) {
		retries++
		assert.ErrorIs(t, err, core.ErrRateLimited)
	})
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 2, retries, "callback fires before each retry sleep")
}

func TestRetryWithBackoff_DelaysDoubleUpToCeiling(t *testing.T) {
	base := 10 * time.Millisecond
	ceiling := 40 * time.Millisecond

	var delays []time.Duration
	operation := func() error { return core.ErrRateLimited }

	err := RetryWithBackoff(context.Background(), operation, 5, base, ceiling,
		func(attempt int, delay time.Duration, err error) {
			delays = append(delays, delay)
		})
	require.Error(t, err)
	require.Len(t, delays, 4)

	// Each step doubles until the ceiling; jitter adds at most a quarter of
	// the capped delay on top.
	nominal := []time.Duration{base, 2 * base, ceiling, ceiling}
	for i, delay := range delays {
		assert.GreaterOrEqual(t, delay, nominal[i], "retry %d slept less than its backoff step", i+1)
		assert.Less(t, delay, nominal[i]+nominal[i]/4, "retry %d slept past its jitter bound", i+1)
	}
}
