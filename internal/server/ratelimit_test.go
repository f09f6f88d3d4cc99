package server

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a settable time source for the limiter.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClockAt(h, m int) *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 10, h, m, 0, 0, time.UTC)}
}

func limiterWithClock(cfg RateLimitConfig, c *fakeClock) *RateLimiter {
	rl := NewRateLimiter(cfg)
	rl.now = c.now
	return rl
}

func TestRateLimiter_NoLimits(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{})
	for range 100 {
		require.NoError(t, rl.Allow("client", 100))
	}
	usage := rl.Usage("client")
	assert.Equal(t, 100, usage.RequestsToday)
	assert.Equal(t, int64(10000), usage.BytesToday)
	assert.Zero(t, usage.RequestsLastMinute, "no window limit, no timestamps kept")
}

func TestRateLimiter_MinuteWindow(t *testing.T) {
	clock := newClockAt(12, 0)
	rl := limiterWithClock(RateLimitConfig{RequestsPerMinute: 2}, clock)

	require.NoError(t, rl.Allow("a", 0))
	clock.advance(10 * time.Second)
	require.NoError(t, rl.Allow("a", 0))
	clock.advance(10 * time.Second)

	err := rl.Allow("a", 0)
	var rateErr *RateLimitError
	require.ErrorAs(t, err, &rateErr)
	assert.Equal(t, "minute", rateErr.Type)
	assert.Equal(t, 2, rateErr.Limit)
	assert.Equal(t, 40*time.Second, rateErr.RetryAfter)

	// The first request ages out exactly one minute after it was admitted.
	clock.advance(40 * time.Second)
	require.NoError(t, rl.Allow("a", 0))
	assert.Equal(t, 2, rl.Usage("a").RequestsLastMinute)
}

func TestRateLimiter_HourWindow(t *testing.T) {
	clock := newClockAt(12, 0)
	rl := limiterWithClock(RateLimitConfig{RequestsPerHour: 3}, clock)

	for range 3 {
		require.NoError(t, rl.Allow("a", 0))
		clock.advance(10 * time.Minute)
	}

	err := rl.Allow("a", 0)
	var rateErr *RateLimitError
	require.ErrorAs(t, err, &rateErr)
	assert.Equal(t, "hour", rateErr.Type)
	assert.Equal(t, 30*time.Minute, rateErr.RetryAfter)

	clock.advance(31 * time.Minute)
	require.NoError(t, rl.Allow("a", 0))

	usage := rl.Usage("a")
	assert.Equal(t, 3, usage.RequestsLastHour)
	assert.Equal(t, 1, usage.RequestsLastMinute)
}

func TestRateLimiter_MinuteCheckedBeforeHour(t *testing.T) {
	clock := newClockAt(12, 0)
	rl := limiterWithClock(RateLimitConfig{RequestsPerMinute: 1, RequestsPerHour: 1}, clock)

	require.NoError(t, rl.Allow("a", 0))
	var rateErr *RateLimitError
	require.ErrorAs(t, rl.Allow("a", 0), &rateErr)
	assert.Equal(t, "minute", rateErr.Type)

	clock.advance(2 * time.Minute)
	require.ErrorAs(t, rl.Allow("a", 0), &rateErr)
	assert.Equal(t, "hour", rateErr.Type)
}

func TestRateLimiter_RejectedRequestsAreNotCounted(t *testing.T) {
	clock := newClockAt(12, 0)
	rl := limiterWithClock(RateLimitConfig{RequestsPerMinute: 1}, clock)

	require.NoError(t, rl.Allow("a", 10))
	for range 5 {
		clock.advance(time.Second)
		require.Error(t, rl.Allow("a", 10))
	}

	usage := rl.Usage("a")
	assert.Equal(t, 1, usage.RequestsToday)
	assert.Equal(t, int64(10), usage.BytesToday)

	clock.advance(time.Minute)
	assert.NoError(t, rl.Allow("a", 10))
}

func TestRateLimiter_RequestQuota(t *testing.T) {
	clock := newClockAt(9, 30)
	rl := limiterWithClock(RateLimitConfig{MaxRequestsPerDay: 2}, clock)

	require.NoError(t, rl.Allow("a", 0))
	require.NoError(t, rl.Allow("a", 0))

	var quotaErr *QuotaExceededError
	require.ErrorAs(t, rl.Allow("a", 0), &quotaErr)
	assert.Equal(t, "requests", quotaErr.Type)
	assert.Equal(t, int64(2), quotaErr.Limit)
	assert.Equal(t, int64(2), quotaErr.Used)
	assert.Equal(t, time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC), quotaErr.Resets)
}

func TestRateLimiter_DataQuota(t *testing.T) {
	clock := newClockAt(9, 30)
	rl := limiterWithClock(RateLimitConfig{MaxDataPerDay: 100}, clock)

	require.NoError(t, rl.Allow("a", 60))

	var quotaErr *QuotaExceededError
	require.ErrorAs(t, rl.Allow("a", 50), &quotaErr)
	assert.Equal(t, "data", quotaErr.Type)
	assert.Equal(t, int64(60), quotaErr.Used)

	// Filling the quota exactly is allowed.
	require.NoError(t, rl.Allow("a", 40))
	assert.Equal(t, int64(100), rl.Usage("a").BytesToday)
}

func TestRateLimiter_QuotaResetsAtMidnight(t *testing.T) {
	clock := newClockAt(23, 59)
	rl := limiterWithClock(RateLimitConfig{MaxRequestsPerDay: 1, MaxDataPerDay: 10}, clock)

	require.NoError(t, rl.Allow("a", 10))
	require.Error(t, rl.Allow("a", 0))

	clock.advance(2 * time.Minute)
	assert.Equal(t, Usage{}, rl.Usage("a"))
	require.NoError(t, rl.Allow("a", 10))
	assert.Equal(t, 1, rl.Usage("a").RequestsToday)
}

func TestRateLimiter_ClientsAreIndependent(t *testing.T) {
	clock := newClockAt(12, 0)
	rl := limiterWithClock(RateLimitConfig{RequestsPerMinute: 1}, clock)

	require.NoError(t, rl.Allow("a", 0))
	require.Error(t, rl.Allow("a", 0))
	require.NoError(t, rl.Allow("b", 0))
	assert.Equal(t, Usage{}, rl.Usage("unknown"))
}

func TestRateLimiter_Concurrent(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{RequestsPerMinute: 50})

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rl.Allow("shared", 1) == nil {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(50), allowed.Load())
	assert.Equal(t, 50, rl.Usage("shared").RequestsToday)
}

func TestRateLimitErrors_Messages(t *testing.T) {
	rateErr := &RateLimitError{Type: "minute", Limit: 5, RetryAfter: 30 * time.Second}
	assert.Equal(t, "rate limit exceeded for minute (limit: 5, retry after: 30s)", rateErr.Error())

	resets := time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)
	quotaErr := &QuotaExceededError{Type: "data", Limit: 100, Used: 60, Resets: resets}
	assert.Equal(t, "quota exceeded for data (used: 60, limit: 100, resets: 2026-03-11T00:00:00Z)", quotaErr.Error())

	wrapped := errors.Join(errors.New("context"), quotaErr)
	var target *QuotaExceededError
	assert.ErrorAs(t, wrapped, &target)
}
