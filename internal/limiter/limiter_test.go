package limiter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talentsignal/sourcing-cli/internal/resilience"
)

func TestAcquire_UnthrottledCapability(t *testing.T) {
	l := New(Config{})
	require.NoError(t, l.Acquire(context.Background(), resilience.CapabilityDirectorySearch))
}

func TestAcquire_BlocksUntilToken(t *testing.T) {
	l := New(Config{SearchPerSecond: 100, Burst: 1})
	ctx := context.Background()

	// First token is free, second waits roughly one interval.
	require.NoError(t, l.Acquire(ctx, resilience.CapabilityDirectorySearch))
	start := time.Now()
	require.NoError(t, l.Acquire(ctx, resilience.CapabilityDirectorySearch))
	assert.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)
}

func TestAcquire_ContextCanceled(t *testing.T) {
	l := New(Config{EnrichPerSecond: 0.001, Burst: 1})
	ctx := context.Background()
	require.NoError(t, l.Acquire(ctx, resilience.CapabilityDirectoryEnrich))

	canceled, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	err := l.Acquire(canceled, resilience.CapabilityDirectoryEnrich)
	require.Error(t, err)
}
