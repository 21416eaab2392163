package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_BurstAllowsImmediateAcquires(t *testing.T) {
	l := NewPerSecond(10, 3)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Acquire(ctx))
	}
	// Burst of 3 should not need to wait for replenishment.
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestLimiter_BlocksBeyondBurst(t *testing.T) {
	l := NewPerSecond(20, 1)
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx))

	start := time.Now()
	require.NoError(t, l.Acquire(ctx))
	elapsed := time.Since(start)

	// At 20 rps the second token should take roughly 50ms to replenish.
	assert.Greater(t, elapsed, 20*time.Millisecond)
}

func TestLimiter_ContextCancellation(t *testing.T) {
	l := NewPerSecond(1, 1)
	ctx := context.Background()
	require.NoError(t, l.Acquire(ctx)) // drain the single token

	cctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := l.Acquire(cctx)
	require.Error(t, err)
}

func TestUnlimited_NeverBlocks(t *testing.T) {
	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 1000; i++ {
		require.NoError(t, Unlimited.Acquire(ctx))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestLimiter_AcquireN(t *testing.T) {
	l := NewPerSecond(500, 500)
	ctx := context.Background()
	require.NoError(t, l.AcquireN(ctx, 500))
}
