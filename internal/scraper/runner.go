package scraper

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nyka2002/stanbot/internal/domain"
	"github.com/nyka2002/stanbot/internal/logger"
	"github.com/nyka2002/stanbot/internal/normalize"
)

// ListingStore is the slice of the persistence layer the runner needs.
type ListingStore interface {
	// Insert stores a listing, returning created=false when the same
	// (source, external_id) pair is already present.
	Insert(ctx context.Context, l *domain.Listing) (created bool, err error)
}

// RunnerConfig controls the shared scraping loop.
type RunnerConfig struct {
	// MaxPages bounds pagination per market segment. Default 10.
	MaxPages int

	// Retry applies to each page fetch-and-parse.
	Retry RetryConfig

	// Limiter configures the per-source rate limiter. Each source gets its
	// own limiter so a slow site never throttles the others.
	Limiter LimiterConfig
}

// Runner drives the per-source scraping template: paginate through result
// pages, parse, normalize and store each ad, and tally the outcome. Page
// and listing failures are recorded on the result without aborting the run.
type Runner struct {
	config RunnerConfig
	pool   *Pool
	static Fetcher
	store  ListingStore

	mu       sync.Mutex
	limiters map[string]*Limiter
}

// NewRunner wires the scraping loop to its fetchers and store.
func NewRunner(cfg RunnerConfig, pool *Pool, static Fetcher, store ListingStore) *Runner {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 10
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryConfig()
	}
	return &Runner{
		config:   cfg,
		pool:     pool,
		static:   static,
		store:    store,
		limiters: make(map[string]*Limiter),
	}
}

// limiterFor returns the politeness limiter for one source, creating it on
// first use.
func (r *Runner) limiterFor(source string) *Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	lim, ok := r.limiters[source]
	if !ok {
		lim = NewLimiter(r.config.Limiter)
		r.limiters[source] = lim
	}
	return lim
}

// listPage bundles one parsed result page for the retry wrapper.
type listPage struct {
	listings   []domain.RawListing
	pagination domain.Pagination
}

// Scrape processes both market segments (rentals and sales) of one source.
func (r *Runner) Scrape(ctx context.Context, src Source) domain.ScrapeResult {
	return r.ScrapeTypes(ctx, src, domain.ListingRent, domain.ListingSale)
}

// ScrapeTypes processes only the given market segments of one source. Jobs
// scoped to a single segment (the rental refresh) come through here.
func (r *Runner) ScrapeTypes(ctx context.Context, src Source, types ...domain.ListingType) domain.ScrapeResult {
	start := time.Now()
	result := domain.ScrapeResult{Source: src.Name()}

	logger.Info("scrape starting", "source", src.Name(), "mode", src.Mode())

	fetcher, release, err := r.fetcherFor(ctx, src)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("acquiring fetch session: %v", err))
		result.Duration = time.Since(start)
		return result
	}
	defer release()

	for _, lt := range types {
		r.scrapeSegment(ctx, src, fetcher, lt, &result)
		if ctx.Err() != nil {
			result.Errors = append(result.Errors, ctx.Err().Error())
			break
		}
	}

	result.Success = len(result.Errors) == 0
	result.Duration = time.Since(start)

	logger.Info("scrape finished",
		"source", src.Name(),
		"scraped", result.ListingsScraped,
		"saved", result.ListingsSaved,
		"duplicates", result.DuplicatesFound,
		"pages", result.PagesProcessed,
		"errors", len(result.Errors),
		"duration", result.Duration)

	return result
}

// fetcherFor picks the fetch strategy for a source. Browser-mode sources
// borrow a pooled session; static sources share the HTTP client.
func (r *Runner) fetcherFor(ctx context.Context, src Source) (Fetcher, func(), error) {
	if src.Mode() == ModeBrowser {
		session, err := r.pool.Acquire(ctx)
		if err != nil {
			return nil, nil, err
		}
		return session, func() { r.pool.Release(session) }, nil
	}
	return r.static, func() {}, nil
}

func (r *Runner) scrapeSegment(ctx context.Context, src Source, fetcher Fetcher, lt domain.ListingType, result *domain.ScrapeResult) {
	limiter := r.limiterFor(src.Name())

	for page := 1; page <= r.config.MaxPages; page++ {
		if ctx.Err() != nil {
			return
		}
		if err := limiter.Throttle(ctx); err != nil {
			return
		}

		pageURL := src.ListURL(lt, page)
		label := fmt.Sprintf("%s %s page %d", src.Name(), lt, page)

		parsed, err := WithRetry(ctx, r.config.Retry, label, func() (listPage, error) {
			fetched, err := r.fetchList(ctx, src, fetcher, pageURL)
			if err != nil {
				return listPage{}, err
			}
			listings, pagination, err := src.ParseList(fetched)
			if err != nil {
				return listPage{}, err
			}
			return listPage{listings: listings, pagination: pagination}, nil
		})
		result.PagesProcessed++
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", label, err))
			return
		}
		if len(parsed.listings) == 0 {
			return
		}

		for i := range parsed.listings {
			raw := &parsed.listings[i]
			if raw.Description == "" {
				r.enrichDetail(ctx, src, fetcher, raw)
			}

			listing := r.buildListing(src.Name(), lt, *raw)
			result.ListingsScraped++

			created, err := r.store.Insert(ctx, listing)
			if err != nil {
				result.Errors = append(result.Errors,
					fmt.Sprintf("%s listing %s: %v", src.Name(), listing.ExternalID, err))
				continue
			}
			if created {
				result.ListingsSaved++
			} else {
				result.DuplicatesFound++
			}
		}

		if !parsed.pagination.HasNext {
			return
		}
	}
}

// fetchList fetches one result page, escalating to a pooled browser session
// when a static source got served a JS shell or a bot challenge.
func (r *Runner) fetchList(ctx context.Context, src Source, fetcher Fetcher, pageURL string) (*Page, error) {
	opts := FetchOptions{WaitForSelector: src.ListSelector()}

	fetched, err := fetcher.FetchPage(ctx, pageURL, opts)
	if err != nil {
		return nil, err
	}
	if src.Mode() != ModeStatic || !NeedsBrowser(fetched) || r.pool == nil {
		return fetched, nil
	}

	logger.Warn("static fetch looks client-rendered, escalating to browser",
		"source", src.Name(), "url", pageURL)

	session, err := r.pool.Acquire(ctx)
	if err != nil {
		return fetched, nil
	}
	defer r.pool.Release(session)

	escalated, err := session.FetchPage(ctx, pageURL, opts)
	if err != nil {
		return fetched, nil
	}
	return escalated, nil
}

// enrichDetail fetches a listing's own page when the list view was too thin.
// Best effort: a failed detail fetch leaves the raw record as parsed.
func (r *Runner) enrichDetail(ctx context.Context, src Source, fetcher Fetcher, raw *domain.RawListing) {
	dp, ok := src.(DetailParser)
	if !ok || raw.URL == "" {
		return
	}
	if err := r.limiterFor(src.Name()).ThrottleDetail(ctx); err != nil {
		return
	}
	fetched, err := fetcher.FetchPage(ctx, raw.URL, FetchOptions{})
	if err != nil {
		logger.Warn("detail fetch failed", "source", src.Name(), "url", raw.URL, "error", err)
		return
	}
	if err := dp.ParseDetail(fetched, raw); err != nil {
		logger.Warn("detail parse failed", "source", src.Name(), "url", raw.URL, "error", err)
	}
}

// buildListing combines the source's raw record with the price, location and
// amenity normalizers into a storable listing.
func (r *Runner) buildListing(source string, lt domain.ListingType, raw domain.RawListing) *domain.Listing {
	price := normalize.NormalizePrice(raw.PriceText, lt)
	loc := normalize.NormalizeLocation(raw.Location)
	amen := normalize.MapAmenities(raw.Amenities, raw.Description)
	rooms := normalize.ParseRoomInfo(raw.Additional)

	externalID := raw.ExternalID
	if externalID == "" {
		externalID = ExternalIDFromURL(raw.URL)
	}

	listing := &domain.Listing{
		Source:       source,
		ExternalID:   externalID,
		URL:          raw.URL,
		Title:        strings.TrimSpace(raw.Title),
		Description:  strings.TrimSpace(raw.Description),
		Images:       raw.Images,
		Price:        price.Amount,
		Currency:     price.Currency,
		ListingType:  lt,
		PropertyType: classifyProperty(raw),
		City:         loc.City,
		Address:      loc.Address,
		Rooms:        raw.Rooms,
		Bedrooms:     rooms.Bedrooms,
		Bathrooms:    rooms.Bathrooms,
		SurfaceArea:  raw.Surface,
		HasParking:   amen.HasParking,
		HasBalcony:   amen.HasBalcony,
		HasGarage:    amen.HasGarage,
		IsFurnished:  amen.IsFurnished,
		Amenities:    amen.Additional,
		ScrapedAt:    time.Now(),
	}
	if listing.Rooms == nil {
		listing.Rooms = rooms.Rooms
	}
	return listing
}

// classifyProperty infers the property type from the ad's wording. Portal
// apartment sections dominate the market, so apartment is the default.
func classifyProperty(raw domain.RawListing) domain.PropertyType {
	text := strings.ToLower(raw.Title)
	if tip, ok := raw.Additional["tip"]; ok {
		text += " " + strings.ToLower(tip)
	}

	switch {
	case strings.Contains(text, "kuć") || strings.Contains(text, "kuca") || strings.Contains(text, "house"):
		return domain.PropertyHouse
	case strings.Contains(text, "ured") || strings.Contains(text, "poslovni") || strings.Contains(text, "office"):
		return domain.PropertyOffice
	case strings.Contains(text, "zemljišt") || strings.Contains(text, "zemljist") || strings.Contains(text, "land"):
		return domain.PropertyLand
	}
	return domain.PropertyApartment
}
