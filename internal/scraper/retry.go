package scraper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/nyka2002/stanbot/internal/logger"
)

// RetryConfig bounds the retry loop around a fetch or parse callback.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryConfig is tuned for page fetches: three attempts, doubling
// delay from two seconds.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 2 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// WithRetry runs fn up to cfg.MaxAttempts times. Only errors classified as
// TIMEOUT, NETWORK_ERROR or RATE_LIMITED are retried; everything else
// returns immediately. The delay grows exponentially, except that a rate
// limit response carrying Retry-After overrides the computed delay.
func WithRetry[T any](ctx context.Context, cfg RetryConfig, label string, fn func() (T, error)) (T, error) {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialDelay
	b.MaxInterval = cfg.MaxDelay
	b.Multiplier = cfg.Multiplier
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	var zero T
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		kind := Classify(err)
		if !kind.Retryable() {
			return zero, err
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		delay := b.NextBackOff()
		var rle *RateLimitedError
		if errors.As(err, &rle) && rle.RetryAfter > 0 {
			delay = rle.RetryAfter
		}

		logger.Debug("retrying operation",
			"op", label,
			"attempt", attempt,
			"kind", string(kind),
			"delay", delay)

		if serr := sleepCtx(ctx, delay); serr != nil {
			return zero, serr
		}
	}

	return zero, fmt.Errorf("%s: giving up after %d attempts: %w", label, cfg.MaxAttempts, lastErr)
}
