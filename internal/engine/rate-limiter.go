package engine

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// rateLimiter is a token bucket shared by every worker of a task. Burst is
// one second worth of bytes so capacity is never reserved per worker.
type rateLimiter struct {
	mu      sync.RWMutex
	limiter *rate.Limiter
}

func newRateLimiter(bytesPerSecond int64) *rateLimiter {
	l := &rateLimiter{limiter: rate.NewLimiter(rate.Inf, 0)}
	l.setLimit(bytesPerSecond)
	return l
}

// setLimit applies immediately to every later acquire. Zero or less removes
// the limit.
func (l *rateLimiter) setLimit(bytesPerSecond int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if bytesPerSecond <= 0 {
		l.limiter.SetLimit(rate.Inf)
		return
	}
	l.limiter.SetLimit(rate.Limit(bytesPerSecond))
	l.limiter.SetBurst(int(bytesPerSecond))
}

func (l *rateLimiter) limit() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.limiter.Limit() == rate.Inf {
		return 0
	}
	return int64(l.limiter.Limit())
}

// acquire blocks until n bytes may pass. Requests larger than the burst are
// split so they never fail outright.
func (l *rateLimiter) acquire(ctx context.Context, n int) error {
	for n > 0 {
		l.mu.RLock()
		limiter := l.limiter
		unlimited := limiter.Limit() == rate.Inf
		step := min(n, max(limiter.Burst(), 1))
		l.mu.RUnlock()
		if unlimited {
			return nil
		}
		if err := limiter.WaitN(ctx, step); err != nil {
			return err
		}
		n -= step
	}
	return nil
}
