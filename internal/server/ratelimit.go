package server

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// RateLimiter enforces per-client sliding-window request rates and daily
// quotas on requests and uploaded bytes. Quota days start at local midnight.
type RateLimiter struct {
	mu      sync.Mutex
	limits  RateLimitConfig
	clients map[string]*clientUsage
	now     func() time.Time
}

// clientUsage is the state kept per client key.
type clientUsage struct {
	recent        []time.Time // admitted request times inside the widest window, oldest first
	day           time.Time
	requestsToday int
	bytesToday    int64
}

// Usage is a snapshot of one client's counters.
type Usage struct {
	RequestsLastMinute int
	RequestsLastHour   int
	RequestsToday      int
	BytesToday         int64
}

// NewRateLimiter creates a limiter for limits. Zero fields disable the
// corresponding check; Enabled is not consulted.
func NewRateLimiter(limits RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		limits:  limits,
		clients: make(map[string]*clientUsage),
		now:     time.Now,
	}
}

// Allow admits one request of size bytes from client, or returns a
// *RateLimitError or *QuotaExceededError. Rejected requests are not counted.
func (rl *RateLimiter) Allow(client string, size int64) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	u := rl.usage(client, now)
	rl.expire(u, now)

	if err := rl.checkWindow(u, now, time.Minute, rl.limits.RequestsPerMinute, "minute"); err != nil {
		return err
	}
	if err := rl.checkWindow(u, now, time.Hour, rl.limits.RequestsPerHour, "hour"); err != nil {
		return err
	}

	resets := u.day.AddDate(0, 0, 1)
	if limit := rl.limits.MaxRequestsPerDay; limit > 0 && u.requestsToday >= limit {
		return &QuotaExceededError{Type: "requests", Limit: int64(limit), Used: int64(u.requestsToday), Resets: resets}
	}
	if limit := rl.limits.MaxDataPerDay; limit > 0 && u.bytesToday+size > limit {
		return &QuotaExceededError{Type: "data", Limit: limit, Used: u.bytesToday, Resets: resets}
	}

	if rl.limits.RequestsPerMinute > 0 || rl.limits.RequestsPerHour > 0 {
		u.recent = append(u.recent, now)
	}
	u.requestsToday++
	u.bytesToday += size
	return nil
}

// Usage returns a snapshot of client's counters; unknown clients are zero.
func (rl *RateLimiter) Usage(client string) Usage {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	u, ok := rl.clients[client]
	if !ok {
		return Usage{}
	}
	now := rl.now()
	rl.expire(u, now)
	return Usage{
		RequestsLastMinute: countSince(u.recent, now.Add(-time.Minute)),
		RequestsLastHour:   countSince(u.recent, now.Add(-time.Hour)),
		RequestsToday:      u.requestsToday,
		BytesToday:         u.bytesToday,
	}
}

func (rl *RateLimiter) usage(client string, now time.Time) *clientUsage {
	u, ok := rl.clients[client]
	if !ok {
		u = &clientUsage{day: startOfDay(now)}
		rl.clients[client] = u
	}
	return u
}

// expire drops timestamps older than the widest configured window and rolls
// the daily counters over at midnight.
func (rl *RateLimiter) expire(u *clientUsage, now time.Time) {
	window := time.Minute
	if rl.limits.RequestsPerHour > 0 {
		window = time.Hour
	}
	cut := sort.Search(len(u.recent), func(i int) bool { return u.recent[i].After(now.Add(-window)) })
	u.recent = u.recent[cut:]

	if today := startOfDay(now); !today.Equal(u.day) {
		u.day = today
		u.requestsToday = 0
		u.bytesToday = 0
	}
}

func (rl *RateLimiter) checkWindow(u *clientUsage, now time.Time, window time.Duration, limit int, name string) error {
	if limit <= 0 {
		return nil
	}
	since := now.Add(-window)
	inWindow := countSince(u.recent, since)
	if inWindow < limit {
		return nil
	}
	// The window frees a slot when the oldest request in it ages out.
	oldest := u.recent[len(u.recent)-inWindow]
	return &RateLimitError{Type: name, Limit: limit, RetryAfter: oldest.Add(window).Sub(now)}
}

// countSince counts sorted timestamps strictly after t.
func countSince(times []time.Time, t time.Time) int {
	return len(times) - sort.Search(len(times), func(i int) bool { return times[i].After(t) })
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// RateLimitError reports a request over a per-minute or per-hour limit.
type RateLimitError struct {
	Type       string // "minute" or "hour"
	Limit      int
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s (limit: %d, retry after: %v)", e.Type, e.Limit, e.RetryAfter)
}

// QuotaExceededError reports an exhausted daily quota.
type QuotaExceededError struct {
	Type   string // "requests" or "data"
	Limit  int64
	Used   int64
	Resets time.Time
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s (used: %d, limit: %d, resets: %s)",
		e.Type, e.Used, e.Limit, e.Resets.Format(time.RFC3339))
}
