// Package scraper handles page fetching, politeness and the per-site
// scraping loop for Croatian listing sites.
package scraper

import (
	"context"
	"time"
)

// Page is one fetched listing page.
type Page struct {
	URL        string
	HTML       string
	StatusCode int
	FetchedAt  time.Time
}

// FetchMode selects how a source's pages are fetched.
type FetchMode string

const (
	// ModeStatic fetches plain HTML over HTTP.
	ModeStatic FetchMode = "static"
	// ModeBrowser renders the page in a headless browser first.
	ModeBrowser FetchMode = "browser"
)

// FetchOptions controls a single fetch.
type FetchOptions struct {
	WaitForSelector string        // CSS selector to wait for (browser only)
	WaitDuration    time.Duration // additional settle time after load
	Headers         map[string]string
	Timeout         time.Duration
}

// Fetcher retrieves pages for the scraping loop. Both the browser pool
// session and the static client implement it.
type Fetcher interface {
	FetchPage(ctx context.Context, url string, opts FetchOptions) (*Page, error)
}

// FetcherConfig holds fetch settings shared by both modes.
type FetcherConfig struct {
	UserAgent string
	Timeout   time.Duration
	Locale    string
}

// DefaultFetcherConfig returns sensible defaults.
func DefaultFetcherConfig() FetcherConfig {
	return FetcherConfig{
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		Timeout:   30 * time.Second,
		Locale:    "hr-HR",
	}
}
