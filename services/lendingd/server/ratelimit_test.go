package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRateLimiterRefillsAndSweeps(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewRateLimiter(RateLimit{RequestsPerMinute: 60, Burst: 2}, nil)
	limiter.clockNow = func() time.Time { return now }

	require.True(t, limiter.Allow("a"))
	require.True(t, limiter.Allow("a"))
	require.False(t, limiter.Allow("a"))
	require.True(t, limiter.Allow("b"))

	now = now.Add(time.Second)
	require.True(t, limiter.Allow("a"))
	require.False(t, limiter.Allow("a"))

	now = now.Add(visitorIdleTTL)
	require.True(t, limiter.Allow("c"))
	limiter.mu.Lock()
	_, stale := limiter.visitors["b"]
	limiter.mu.Unlock()
	require.False(t, stale)
}

func TestRateLimiterDefaults(t *testing.T) {
	limiter := NewRateLimiter(RateLimit{}, nil)
	require.Equal(t, float64(60), limiter.limit.RequestsPerMinute)
	require.Equal(t, 1, limiter.limit.Burst)
}
