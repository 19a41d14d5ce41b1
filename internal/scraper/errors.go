package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrPoolClosed is returned by Acquire after the pool has been shut down.
var ErrPoolClosed = errors.New("browser pool is closed")

// ErrorKind classifies scraper failures for the retry policy. Transient
// I/O kinds are retryable; parse-level kinds are not.
type ErrorKind string

const (
	KindTimeout         ErrorKind = "TIMEOUT"
	KindNetworkError    ErrorKind = "NETWORK_ERROR"
	KindRateLimited     ErrorKind = "RATE_LIMITED"
	KindNavigationError ErrorKind = "NAVIGATION_ERROR"
	KindSelectorError   ErrorKind = "SELECTOR_ERROR"
	KindParseError      ErrorKind = "PARSE_ERROR"
	KindUnknown         ErrorKind = "UNKNOWN"
)

// Retryable reports whether an error of this kind is worth retrying.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindTimeout, KindNetworkError, KindRateLimited:
		return true
	}
	return false
}

// RateLimitedError is returned when a site answers 429. RetryAfter carries
// the server-provided wait, if any, and overrides the backoff delay.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
	}
	return "rate limited"
}

// classifyRules maps message keywords to kinds. First hit wins, so the
// more specific kinds come first.
var classifyRules = []struct {
	keywords []string
	kind     ErrorKind
}{
	{[]string{"429", "too many requests", "rate limit"}, KindRateLimited},
	{[]string{"timeout", "timed out", "deadline exceeded"}, KindTimeout},
	{[]string{"connection refused", "connection reset", "no such host", "broken pipe", "network", "dns", "eof"}, KindNetworkError},
	{[]string{"net::err", "navigation", "page load"}, KindNavigationError},
	{[]string{"waiting for selector", "no such element", "selector", "not visible"}, KindSelectorError},
	{[]string{"parse", "unmarshal", "decode", "invalid html"}, KindParseError},
}

// Classify maps an error to its kind by message keywords. A
// RateLimitedError classifies as RATE_LIMITED regardless of message.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}

	var rle *RateLimitedError
	if errors.As(err, &rle) {
		return KindRateLimited
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}

	msg := strings.ToLower(err.Error())
	for _, rule := range classifyRules {
		for _, kw := range rule.keywords {
			if strings.Contains(msg, kw) {
				return rule.kind
			}
		}
	}
	return KindUnknown
}
