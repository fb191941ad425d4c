package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterUnlimited(t *testing.T) {
	l := newRateLimiter(0)
	start := time.Now()
	require.NoError(t, l.acquire(context.Background(), 10<<20))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.Equal(t, int64(0), l.limit())
}

func TestRateLimiterThrottles(t *testing.T) {
	l := newRateLimiter(10000)
	start := time.Now()
	// the bucket starts empty, so 15000 bytes need well over a second
	require.NoError(t, l.acquire(context.Background(), 15000))
	assert.GreaterOrEqual(t, time.Since(start), 400*time.Millisecond)
	assert.Equal(t, int64(10000), l.limit())
}

func TestRateLimiterChangeAtRuntime(t *testing.T) {
	l := newRateLimiter(100)
	l.setLimit(-1)
	start := time.Now()
	require.NoError(t, l.acquire(context.Background(), 1<<20))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestRateLimiterCancelled(t *testing.T) {
	l := newRateLimiter(10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, l.acquire(ctx, 1000))
}
