// Package ratelimit guards the credential endpoints with a fixed-window
// counter per client IP.
package ratelimit

import (
	"sync"
	"time"
)

type Decision struct {
	Allowed   bool
	Count     int
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfterSeconds is the value for the Retry-After header on a denial,
// never below one second.
func (d Decision) RetryAfterSeconds() int {
	secs := int(time.Until(d.ResetAt).Seconds())
	if secs < 1 {
		secs = 1
	}
	return secs
}

type Limiter interface {
	Allow(key string, limit int) Decision
}

// InMemoryLimiter counts per key within a fixed window. Counters reset when
// the window elapses; expired keys are swept on every call.
type InMemoryLimiter struct {
	mu     sync.Mutex
	window time.Duration
	counts map[string]windowCount
}

type windowCount struct {
	count   int
	resetAt time.Time
}

func NewInMemory(window time.Duration) *InMemoryLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &InMemoryLimiter{
		window: window,
		counts: make(map[string]windowCount),
	}
}

func (l *InMemoryLimiter) Allow(key string, limit int) Decision {
	if limit <= 0 {
		limit = 1
	}
	now := time.Now().UTC()
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, v := range l.counts {
		if now.After(v.resetAt) {
			delete(l.counts, k)
		}
	}
	curr, ok := l.counts[key]
	if !ok || now.After(curr.resetAt) {
		curr = windowCount{resetAt: now.Add(l.window)}
	}
	curr.count++
	l.counts[key] = curr
	remaining := limit - curr.count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   curr.count <= limit,
		Count:     curr.count,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   curr.resetAt,
	}
}
