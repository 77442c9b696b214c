package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoVal_SucceedsAfterTransientFailures(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}

	calls := 0
	val, err := DoVal(context.Background(), cfg, func(ctx context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, NewTransientError(assert.AnError, 503)
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, val)
	assert.Equal(t, 3, calls)
}

func TestDoVal_NoRetryOnPermanentError(t *testing.T) {
	calls := 0
	_, err := DoVal(context.Background(), DefaultRetryConfig(), func(ctx context.Context) (int, error) {
		calls++
		return 0, assert.AnError
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoVal_NoRetryOnRateLimit(t *testing.T) {
	calls := 0
	_, err := DoVal(context.Background(), DefaultRetryConfig(), func(ctx context.Context) (int, error) {
		calls++
		return 0, NewRateLimitError(CapabilityDirectorySearch, time.Now().Add(time.Minute))
	})
	require.Error(t, err)
	assert.True(t, IsRateLimit(err))
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCanceledStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := Do(ctx, RetryConfig{MaxAttempts: 5, InitialBackoff: time.Millisecond}, func(ctx context.Context) error {
		calls++
		cancel()
		return NewTransientError(assert.AnError, 500)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestComputeBackoff_CappedAtMax(t *testing.T) {
	cfg := applyDefaults(RetryConfig{
		InitialBackoff: time.Second,
		MaxBackoff:     2 * time.Second,
		Multiplier:     10,
		JitterFraction: 0,
	})
	assert.Equal(t, 2*time.Second, computeBackoff(5, cfg))
}
