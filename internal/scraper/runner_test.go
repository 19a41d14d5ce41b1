package scraper

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/nyka2002/stanbot/internal/domain"
)

// fakeSource serves scripted listings keyed by result-page URL.
type fakeSource struct {
	name     string
	lists    map[string][]domain.RawListing
	hasNext  map[string]bool
	parseErr map[string]error
}

func (s *fakeSource) Name() string         { return s.name }
func (s *fakeSource) BaseURL() string      { return "https://example.hr" }
func (s *fakeSource) Mode() FetchMode      { return ModeStatic }
func (s *fakeSource) ListSelector() string { return "ul.items" }

func (s *fakeSource) ListURL(lt domain.ListingType, page int) string {
	return fmt.Sprintf("https://example.hr/%s?page=%d", lt, page)
}

func (s *fakeSource) ParseList(p *Page) ([]domain.RawListing, domain.Pagination, error) {
	if err := s.parseErr[p.URL]; err != nil {
		return nil, domain.Pagination{}, err
	}
	return s.lists[p.URL], domain.Pagination{Current: 1, HasNext: s.hasNext[p.URL]}, nil
}

// fakeFetcher hands back empty pages and records what was fetched.
type fakeFetcher struct {
	fetched []string
}

func (f *fakeFetcher) FetchPage(_ context.Context, url string, _ FetchOptions) (*Page, error) {
	f.fetched = append(f.fetched, url)
	return &Page{URL: url, HTML: `<ul class="items"></ul>`, StatusCode: 200, FetchedAt: time.Now()}, nil
}

// fakeListingStore dedupes on (source, external_id) like the real store.
type fakeListingStore struct {
	saved   map[string]*domain.Listing
	failIDs map[string]bool
}

func newFakeListingStore() *fakeListingStore {
	return &fakeListingStore{saved: make(map[string]*domain.Listing)}
}

func (s *fakeListingStore) Insert(_ context.Context, l *domain.Listing) (bool, error) {
	if s.failIDs[l.ExternalID] {
		return false, errors.New("insert failed")
	}
	key := l.Source + "/" + l.ExternalID
	if _, ok := s.saved[key]; ok {
		return false, nil
	}
	s.saved[key] = l
	return true, nil
}

func newTestRunner(store ListingStore) (*Runner, *fakeFetcher) {
	fetcher := &fakeFetcher{}
	r := NewRunner(RunnerConfig{
		MaxPages: 5,
		Retry:    RetryConfig{MaxAttempts: 1},
		Limiter:  LimiterConfig{RequestsPerMinute: 1000},
	}, nil, fetcher, store)
	return r, fetcher
}

// --- Runner Tests ---

func TestRunner_Scrape_SavesNormalizedListings(t *testing.T) {
	src := &fakeSource{
		name: "example",
		lists: map[string][]domain.RawListing{
			"https://example.hr/rent?page=1": {
				{
					URL:       "https://example.hr/stan-tresnjevka-oglas-777",
					Title:     "  Dvosoban stan  ",
					PriceText: "95.000 kn",
					Location:  "Zagreb, Trešnjevka",
					Amenities: []string{"parking", "balkon"},
				},
			},
			"https://example.hr/sale?page=1": {
				{
					ExternalID: "41",
					URL:        "https://example.hr/oglas-41",
					Title:      "Kuća s vrtom",
					PriceText:  "220.000 €",
					Location:   "Split",
				},
			},
		},
	}
	store := newFakeListingStore()
	r, _ := newTestRunner(store)

	result := r.Scrape(context.Background(), src)

	if !result.Success {
		t.Fatalf("expected success, errors: %v", result.Errors)
	}
	if result.ListingsScraped != 2 || result.ListingsSaved != 2 {
		t.Errorf("expected 2 scraped and saved, got %d/%d", result.ListingsScraped, result.ListingsSaved)
	}
	if result.PagesProcessed != 2 {
		t.Errorf("expected 2 pages processed, got %d", result.PagesProcessed)
	}

	rental := store.saved["example/777"]
	if rental == nil {
		t.Fatal("rental listing not saved under its derived external id")
	}
	if rental.Title != "Dvosoban stan" {
		t.Errorf("title not trimmed: %q", rental.Title)
	}
	if rental.Price != 12608 || rental.Currency != "EUR" {
		t.Errorf("kuna price not converted: %d %s", rental.Price, rental.Currency)
	}
	if rental.City != "Zagreb" || rental.Address != "Trešnjevka" {
		t.Errorf("location not normalized: %q / %q", rental.City, rental.Address)
	}
	if !rental.HasParking || !rental.HasBalcony {
		t.Error("amenities not mapped")
	}
	if rental.ListingType != domain.ListingRent {
		t.Errorf("expected rent listing, got %s", rental.ListingType)
	}

	sale := store.saved["example/41"]
	if sale == nil {
		t.Fatal("sale listing not saved")
	}
	if sale.ListingType != domain.ListingSale {
		t.Errorf("expected sale listing, got %s", sale.ListingType)
	}
	if sale.PropertyType != domain.PropertyHouse {
		t.Errorf("expected house from title, got %s", sale.PropertyType)
	}
}

func TestRunner_Scrape_SecondRunCountsDuplicates(t *testing.T) {
	src := &fakeSource{
		name: "example",
		lists: map[string][]domain.RawListing{
			"https://example.hr/rent?page=1": {
				{ExternalID: "1", URL: "https://example.hr/oglas-1", Title: "Stan A", PriceText: "700 €"},
				{ExternalID: "2", URL: "https://example.hr/oglas-2", Title: "Stan B", PriceText: "800 €"},
			},
		},
	}
	store := newFakeListingStore()
	r, _ := newTestRunner(store)

	first := r.Scrape(context.Background(), src)
	if first.ListingsSaved != 2 {
		t.Fatalf("expected 2 saved on first run, got %d", first.ListingsSaved)
	}

	second := r.Scrape(context.Background(), src)
	if !second.Success {
		t.Fatalf("expected success, errors: %v", second.Errors)
	}
	if second.ListingsSaved != 0 {
		t.Errorf("expected 0 saved on re-scrape, got %d", second.ListingsSaved)
	}
	if second.DuplicatesFound != 2 {
		t.Errorf("expected 2 duplicates on re-scrape, got %d", second.DuplicatesFound)
	}
}

func TestRunner_Scrape_FollowsPaginationUntilLastPage(t *testing.T) {
	src := &fakeSource{
		name: "example",
		lists: map[string][]domain.RawListing{
			"https://example.hr/rent?page=1": {
				{ExternalID: "1", URL: "https://example.hr/oglas-1", Title: "Stan A", PriceText: "700 €"},
			},
			"https://example.hr/rent?page=2": {
				{ExternalID: "2", URL: "https://example.hr/oglas-2", Title: "Stan B", PriceText: "750 €"},
			},
		},
		hasNext: map[string]bool{"https://example.hr/rent?page=1": true},
	}
	store := newFakeListingStore()
	r, fetcher := newTestRunner(store)

	result := r.Scrape(context.Background(), src)

	if result.ListingsSaved != 2 {
		t.Errorf("expected 2 saved across pages, got %d", result.ListingsSaved)
	}

	var rentPages int
	for _, url := range fetcher.fetched {
		if url == "https://example.hr/rent?page=1" || url == "https://example.hr/rent?page=2" {
			rentPages++
		}
		if url == "https://example.hr/rent?page=3" {
			t.Error("should stop after the last rent page")
		}
	}
	if rentPages != 2 {
		t.Errorf("expected 2 rent pages fetched, got %d", rentPages)
	}
}

func TestRunner_Scrape_StopsAtMaxPages(t *testing.T) {
	src := &fakeSource{
		name:    "example",
		lists:   make(map[string][]domain.RawListing),
		hasNext: make(map[string]bool),
	}
	for page := 1; page <= 10; page++ {
		url := fmt.Sprintf("https://example.hr/rent?page=%d", page)
		src.lists[url] = []domain.RawListing{{
			ExternalID: fmt.Sprintf("r%d", page),
			URL:        fmt.Sprintf("https://example.hr/oglas-%d", page),
			Title:      "Stan",
			PriceText:  "700 €",
		}}
		src.hasNext[url] = true
	}
	store := newFakeListingStore()
	fetcher := &fakeFetcher{}
	r := NewRunner(RunnerConfig{
		MaxPages: 2,
		Retry:    RetryConfig{MaxAttempts: 1},
		Limiter:  LimiterConfig{RequestsPerMinute: 1000},
	}, nil, fetcher, store)

	result := r.Scrape(context.Background(), src)

	// Two rent pages plus the empty first sale page.
	if result.PagesProcessed != 3 {
		t.Errorf("expected 3 pages processed, got %d", result.PagesProcessed)
	}
	if result.ListingsSaved != 2 {
		t.Errorf("expected 2 saved, got %d", result.ListingsSaved)
	}
}

func TestRunner_Scrape_RecordsInsertErrors(t *testing.T) {
	src := &fakeSource{
		name: "example",
		lists: map[string][]domain.RawListing{
			"https://example.hr/rent?page=1": {
				{ExternalID: "ok", URL: "https://example.hr/oglas-1", Title: "Stan A", PriceText: "700 €"},
				{ExternalID: "bad", URL: "https://example.hr/oglas-2", Title: "Stan B", PriceText: "750 €"},
			},
		},
	}
	store := newFakeListingStore()
	store.failIDs = map[string]bool{"bad": true}
	r, _ := newTestRunner(store)

	result := r.Scrape(context.Background(), src)

	if result.Success {
		t.Error("a failed insert should mark the run unsuccessful")
	}
	if result.ListingsSaved != 1 {
		t.Errorf("expected the good listing saved, got %d", result.ListingsSaved)
	}
	if len(result.Errors) != 1 {
		t.Errorf("expected 1 recorded error, got %d: %v", len(result.Errors), result.Errors)
	}
	if result.ListingsScraped != 2 {
		t.Errorf("a failed insert still counts as scraped, got %d", result.ListingsScraped)
	}
}

func TestRunner_Scrape_ParseFailureStopsSegmentOnly(t *testing.T) {
	src := &fakeSource{
		name: "example",
		lists: map[string][]domain.RawListing{
			"https://example.hr/sale?page=1": {
				{ExternalID: "s1", URL: "https://example.hr/oglas-9", Title: "Stan", PriceText: "120.000 €"},
			},
		},
		parseErr: map[string]error{
			"https://example.hr/rent?page=1": errors.New("invalid html near tag li"),
		},
	}
	store := newFakeListingStore()
	r, _ := newTestRunner(store)

	result := r.Scrape(context.Background(), src)

	if result.Success {
		t.Error("a failed page should mark the run unsuccessful")
	}
	if len(result.Errors) != 1 {
		t.Fatalf("expected 1 recorded error, got %v", result.Errors)
	}
	if result.ListingsSaved != 1 {
		t.Errorf("the sale segment should still run, saved %d", result.ListingsSaved)
	}
}

func TestRunner_Scrape_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := &fakeSource{name: "example", lists: map[string][]domain.RawListing{}}
	store := newFakeListingStore()
	r, fetcher := newTestRunner(store)

	result := r.Scrape(ctx, src)

	if result.Success {
		t.Error("a cancelled run should not be successful")
	}
	if len(fetcher.fetched) != 0 {
		t.Errorf("no pages should be fetched after cancellation, got %d", len(fetcher.fetched))
	}
}
