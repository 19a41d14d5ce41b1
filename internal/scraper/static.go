package scraper

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gocolly/colly/v2"
)

// StaticClient fetches plain HTML pages with Colly. Used for sources that
// render listings server-side.
type StaticClient struct {
	config FetcherConfig
}

// NewStaticClient creates a static fetcher.
func NewStaticClient(cfg FetcherConfig) *StaticClient {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultFetcherConfig().UserAgent
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultFetcherConfig().Timeout
	}
	return &StaticClient{config: cfg}
}

// FetchPage retrieves a page over HTTP. A 429 response maps to a
// RateLimitedError carrying the server's Retry-After, when present.
func (c *StaticClient) FetchPage(ctx context.Context, targetURL string, opts FetchOptions) (*Page, error) {
	page := &Page{
		URL:       targetURL,
		FetchedAt: time.Now(),
	}

	collector := colly.NewCollector(
		colly.UserAgent(c.config.UserAgent),
	)

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = c.config.Timeout
	}
	collector.SetRequestTimeout(timeout)

	collector.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept-Language", c.config.Locale)
		for k, v := range opts.Headers {
			r.Headers.Set(k, v)
		}
		if err := ctx.Err(); err != nil {
			r.Abort()
		}
	})

	var fetchErr error
	var retryAfter time.Duration

	collector.OnResponse(func(r *colly.Response) {
		page.StatusCode = r.StatusCode
		page.HTML = string(r.Body)
	})

	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			page.StatusCode = r.StatusCode
			if r.StatusCode == http.StatusTooManyRequests {
				retryAfter = parseRetryAfter(r.Headers.Get("Retry-After"))
			}
		}
		fetchErr = err
	})

	if err := collector.Visit(targetURL); err != nil {
		return page, fmt.Errorf("visiting %s: %w", targetURL, err)
	}
	collector.Wait()

	if ctx.Err() != nil {
		return page, ctx.Err()
	}
	if page.StatusCode == http.StatusTooManyRequests {
		return page, &RateLimitedError{RetryAfter: retryAfter}
	}
	if fetchErr != nil {
		return page, fmt.Errorf("fetching %s: %w", targetURL, fetchErr)
	}

	return page, nil
}

// parseRetryAfter reads a Retry-After header given in seconds.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	secs, err := strconv.Atoi(value)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
