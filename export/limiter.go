package export

import (
	"sync"

	"golang.org/x/time/rate"
)

// Limiter gates registrations. The default implementation is a per-task
// token bucket; anything smarter (tenant quotas, cluster-wide budgets)
// plugs in behind this interface.
type Limiter interface {
	Allow(taskCode string) bool
}

// RateLimiter keeps one token bucket per task code.
type RateLimiter struct {
	perSecond float64
	burst     int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewRateLimiter creates a per-task-code token bucket limiter.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	return &RateLimiter{
		perSecond: perSecond,
		burst:     burst,
		limiters:  make(map[string]*rate.Limiter),
	}
}

// Allow consumes a token from the task's bucket.
func (l *RateLimiter) Allow(taskCode string) bool {
	l.mu.Lock()
	limiter, ok := l.limiters[taskCode]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(l.perSecond), l.burst)
		l.limiters[taskCode] = limiter
	}
	l.mu.Unlock()

	return limiter.Allow()
}

// NopLimiter never refuses. Used in tests and when rate limiting is
// handled upstream.
type NopLimiter struct{}

// Allow always returns true.
func (NopLimiter) Allow(string) bool { return true }
