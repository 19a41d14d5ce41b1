package scraper

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// LimiterConfig sets the politeness budget for one source.
type LimiterConfig struct {
	RequestsPerMinute int
	DelayBetween      time.Duration // minimum gap between list-page requests
	DelayVariance     time.Duration // uniform jitter added on top of DelayBetween
	DetailDelay       time.Duration // smaller gap used between detail-page requests
}

// Limiter enforces a per-source request budget: at most RequestsPerMinute
// requests in a fixed 60-second window, and at least DelayBetween plus
// jitter between consecutive requests. Each scraper owns its own Limiter;
// sharing one across sites would let a slow site throttle the others.
type Limiter struct {
	cfg LimiterConfig

	mu          sync.Mutex
	windowStart time.Time
	count       int
	lastRequest time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewLimiter creates a limiter for one source.
func NewLimiter(cfg LimiterConfig) *Limiter {
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 10
	}
	return &Limiter{
		cfg:   cfg,
		now:   time.Now,
		sleep: sleepCtx,
	}
}

// Throttle blocks until the next list-page request is allowed. It returns
// early with the context error on cancellation.
func (l *Limiter) Throttle(ctx context.Context) error {
	return l.throttle(ctx, l.cfg.DelayBetween)
}

// ThrottleDetail is Throttle with the shorter detail-page delay.
func (l *Limiter) ThrottleDetail(ctx context.Context) error {
	return l.throttle(ctx, l.cfg.DetailDelay)
}

// Reset clears the window and delay accounting.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.windowStart = time.Time{}
	l.lastRequest = time.Time{}
	l.count = 0
}

func (l *Limiter) throttle(ctx context.Context, baseDelay time.Duration) error {
	for {
		l.mu.Lock()
		now := l.now()

		if l.windowStart.IsZero() || now.Sub(l.windowStart) >= time.Minute {
			l.windowStart = now
			l.count = 0
		}

		var wait time.Duration
		if l.count >= l.cfg.RequestsPerMinute {
			wait = l.windowStart.Add(time.Minute).Sub(now)
		} else if !l.lastRequest.IsZero() {
			required := baseDelay + l.jitter()
			if elapsed := now.Sub(l.lastRequest); elapsed < required {
				wait = required - elapsed
			}
		}

		if wait <= 0 {
			l.count++
			l.lastRequest = now
			l.mu.Unlock()
			return nil
		}
		l.mu.Unlock()

		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func (l *Limiter) jitter() time.Duration {
	if l.cfg.DelayVariance <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(l.cfg.DelayVariance)))
}

// sleepCtx sleeps for d or until the context is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
