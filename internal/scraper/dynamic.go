package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/nyka2002/stanbot/internal/logger"
)

// blockedURLPatterns lists resource patterns every browser session refuses to
// load. Fonts and media are never needed for extracting listing data and
// account for most of the transfer on portal pages.
var blockedURLPatterns = []string{
	"*.woff", "*.woff2", "*.ttf", "*.otf", "*.eot",
	"*.mp4", "*.webm", "*.avi", "*.mov", "*.gif",
}

// BrowserSession is a single headless Chrome instance with one tab, reused
// across page fetches. Sessions are created and handed out by Pool.
type BrowserSession struct {
	config       FetcherConfig
	allocCancel  context.CancelFunc
	browserCtx   context.Context
	browserClose context.CancelFunc

	inUse    bool
	lastUsed time.Time
}

// newBrowserSession starts a headless browser and prepares its tab for
// scraping: bot-detection countermeasures on the process, resource blocking
// and locale headers on the tab.
func newBrowserSession(cfg FetcherConfig) (*BrowserSession, error) {
	logger.Debug("starting browser session")

	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultFetcherConfig().UserAgent
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultFetcherConfig().Timeout
	}
	if cfg.Locale == "" {
		cfg.Locale = DefaultFetcherConfig().Locale
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-features", "IsolateOrigins,site-per-process"),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-default-apps", true),
		chromedp.UserAgent(cfg.UserAgent),
		chromedp.WindowSize(1920, 1080),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	setup := chromedp.Tasks{
		network.Enable(),
		network.SetBlockedURLs(blockedURLPatterns),
		network.SetExtraHTTPHeaders(network.Headers{
			"Accept-Language": cfg.Locale,
		}),
	}
	if err := chromedp.Run(browserCtx, setup); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, fmt.Errorf("browser setup failed: %w", err)
	}

	logger.Debug("browser session ready", "user_agent", cfg.UserAgent, "locale", cfg.Locale)

	return &BrowserSession{
		config:       cfg,
		allocCancel:  cancelAlloc,
		browserCtx:   browserCtx,
		browserClose: cancelBrowser,
		lastUsed:     time.Now(),
	}, nil
}

// FetchPage navigates the session's tab to targetURL and returns the rendered
// HTML once the wait selector is visible.
func (s *BrowserSession) FetchPage(ctx context.Context, targetURL string, opts FetchOptions) (*Page, error) {
	page := &Page{
		URL:       targetURL,
		FetchedAt: time.Now(),
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = s.config.Timeout
	}

	runCtx, cancelRun := context.WithTimeout(s.browserCtx, timeout)
	defer cancelRun()

	// Propagate caller cancellation into the browser context.
	stop := context.AfterFunc(ctx, cancelRun)
	defer stop()

	waitSelector := opts.WaitForSelector
	if waitSelector == "" {
		waitSelector = "body"
	}

	actions := []chromedp.Action{
		chromedp.Navigate(targetURL),
		chromedp.WaitVisible(waitSelector),
	}
	if opts.WaitDuration > 0 {
		actions = append(actions, chromedp.Sleep(opts.WaitDuration))
	}

	var html string
	actions = append(actions, chromedp.OuterHTML("html", &html))

	logger.Debug("browser fetch", "url", targetURL, "wait_selector", waitSelector)
	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return page, ctx.Err()
		}
		return page, fmt.Errorf("browser automation failed: %w", err)
	}

	page.HTML = html
	page.StatusCode = 200 // chromedp doesn't easily expose status codes

	return page, nil
}

// Close terminates the browser process.
func (s *BrowserSession) Close() error {
	if s.browserClose != nil {
		s.browserClose()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
	return nil
}
