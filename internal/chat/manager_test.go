package chat

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nyka2002/stanbot/internal/cache"
	"github.com/nyka2002/stanbot/internal/domain"
	"github.com/nyka2002/stanbot/internal/search"
)

var fixedNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func intPtr(i int) *int                               { return &i }
func strPtr(s string) *string                         { return &s }
func boolPtr(b bool) *bool                            { return &b }
func ltPtr(lt domain.ListingType) *domain.ListingType { return &lt }

type extractResult struct {
	ext *search.Extraction
	err error
}

// fakeExtractor replays canned extractions, repeating the last one once
// the script runs out.
type fakeExtractor struct {
	script []extractResult
	calls  int
}

func (f *fakeExtractor) Extract(_ context.Context, _ string) (*search.Extraction, error) {
	idx := f.calls
	if idx >= len(f.script) {
		idx = len(f.script) - 1
	}
	f.calls++
	return f.script[idx].ext, f.script[idx].err
}

type fakeSearcher struct {
	result      *search.Result
	err         error
	calls       int
	lastQuery   string
	lastFilters domain.Filters
}

func (f *fakeSearcher) Search(_ context.Context, query string, fl domain.Filters, _ search.Config) (*search.Result, error) {
	f.calls++
	f.lastQuery = query
	f.lastFilters = fl
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func extraction(f domain.Filters, overall float64, ambiguous ...string) *search.Extraction {
	return &search.Extraction{
		Filters:    f,
		Confidence: domain.Confidence{Overall: overall, AmbiguousFields: ambiguous},
		Language:   search.LanguageCroatian,
	}
}

func searchResult(ids ...string) *search.Result {
	res := &search.Result{TotalMatches: len(ids)}
	for _, id := range ids {
		res.Listings = append(res.Listings, search.RankedListing{
			Listing: domain.Listing{ID: id},
		})
	}
	return res
}

func newTestManager(t *testing.T, e Extractor, s Searcher) *Manager {
	t.Helper()
	mem, err := cache.NewMemoryCache(64)
	if err != nil {
		t.Fatalf("memory cache: %v", err)
	}
	m := NewManager(e, s, mem)
	m.now = func() time.Time { return fixedNow }
	return m
}

// --- Turn Tests ---

func TestManager_HandleTurn_SearchesOnConfidentExtraction(t *testing.T) {
	rentFilters := domain.Filters{
		ListingType: ltPtr(domain.ListingRent),
		PriceMax:    intPtr(700),
		Location:    strPtr("Zagreb"),
		RoomsMin:    intPtr(2),
		RoomsMax:    intPtr(2),
	}
	ex := &fakeExtractor{script: []extractResult{{ext: extraction(rentFilters, 0.95)}}}
	srch := &fakeSearcher{result: searchResult("l1", "l2")}
	m := newTestManager(t, ex, srch)

	resp, err := m.HandleTurn(context.Background(), "",
		"Tražim dvosobni stan za najam u Zagrebu do 700€", nil)
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}

	if resp.SessionID == "" {
		t.Error("expected a generated session id")
	}
	if resp.ClarificationNeeded {
		t.Error("confident extraction must not ask for clarification")
	}
	if srch.calls != 1 {
		t.Fatalf("expected one search, got %d", srch.calls)
	}
	if srch.lastFilters.PriceMax == nil || *srch.lastFilters.PriceMax != 700 {
		t.Errorf("search filters missing price, got %+v", srch.lastFilters)
	}
	if resp.TotalMatches != 2 || len(resp.Listings) != 2 {
		t.Errorf("expected 2 listings, got %d/%d", resp.TotalMatches, len(resp.Listings))
	}
	if !strings.Contains(resp.Message, "2 oglasa") {
		t.Errorf("message should mention the count: %q", resp.Message)
	}
	if resp.Cached {
		t.Error("first search must not be cached")
	}
}

func TestManager_HandleTurn_VagueQueryClarifies(t *testing.T) {
	ex := &fakeExtractor{script: []extractResult{
		{ext: extraction(domain.Filters{}, 0.3, "listing_type", "location", "price_max")},
	}}
	srch := &fakeSearcher{result: searchResult()}
	m := newTestManager(t, ex, srch)

	resp, err := m.HandleTurn(context.Background(), "", "nekretnina", nil)
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}

	if !resp.ClarificationNeeded {
		t.Error("low confidence must ask for clarification")
	}
	if srch.calls != 0 {
		t.Error("clarifying turn must not search")
	}
	if resp.Message != msgClarify {
		t.Errorf("unexpected message: %q", resp.Message)
	}
	if len(resp.FollowUpQuestions) == 0 || len(resp.FollowUpQuestions) > maxFollowUps {
		t.Fatalf("expected 1-%d follow-ups, got %d", maxFollowUps, len(resp.FollowUpQuestions))
	}
	found := false
	for _, q := range resp.FollowUpQuestions {
		if q == askListingType || q == askLocation || q == askBudget {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a listing type, location or budget question, got %v",
			resp.FollowUpQuestions)
	}
}

func TestManager_HandleTurn_MergesFiltersAcrossTurns(t *testing.T) {
	ex := &fakeExtractor{script: []extractResult{
		{ext: extraction(domain.Filters{
			ListingType: ltPtr(domain.ListingRent),
			Location:    strPtr("Zagreb"),
		}, 0.9)},
		{ext: extraction(domain.Filters{PriceMax: intPtr(700)}, 0.9)},
		{ext: extraction(domain.Filters{PriceMax: intPtr(800)}, 0.9)},
	}}
	srch := &fakeSearcher{result: searchResult("l1")}
	m := newTestManager(t, ex, srch)
	ctx := context.Background()

	first, err := m.HandleTurn(ctx, "", "Stan za najam u Zagrebu", nil)
	if err != nil {
		t.Fatalf("turn 1: %v", err)
	}
	id := first.SessionID

	if _, err := m.HandleTurn(ctx, id, "do 700 eura", nil); err != nil {
		t.Fatalf("turn 2: %v", err)
	}
	if srch.lastFilters.PriceMax == nil || *srch.lastFilters.PriceMax != 700 {
		t.Errorf("turn 2 should merge price 700, got %+v", srch.lastFilters.PriceMax)
	}
	if srch.lastFilters.Location == nil || *srch.lastFilters.Location != "Zagreb" {
		t.Errorf("turn 2 should keep location, got %+v", srch.lastFilters.Location)
	}

	third, err := m.HandleTurn(ctx, id, "zapravo do 800 eura", nil)
	if err != nil {
		t.Fatalf("turn 3: %v", err)
	}
	if third.Filters.PriceMax == nil || *third.Filters.PriceMax != 800 {
		t.Errorf("turn 3 should override price to 800, got %+v", third.Filters.PriceMax)
	}
	if third.Filters.ListingType == nil || *third.Filters.ListingType != domain.ListingRent {
		t.Errorf("turn 3 should keep listing type, got %+v", third.Filters.ListingType)
	}
}

func TestManager_HandleTurn_NoSearchableFilters(t *testing.T) {
	ex := &fakeExtractor{script: []extractResult{
		{ext: extraction(domain.Filters{HasBalcony: boolPtr(true)}, 0.9)},
	}}
	srch := &fakeSearcher{result: searchResult("l1")}
	m := newTestManager(t, ex, srch)

	resp, err := m.HandleTurn(context.Background(), "", "s balkonom", nil)
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}

	if srch.calls != 0 {
		t.Error("a balcony alone is not enough to search on")
	}
	if !resp.ClarificationNeeded || resp.Message != msgNeedMore {
		t.Errorf("expected a need-more response, got %+v", resp)
	}
}

func TestManager_HandleTurn_TruncatesHistoryKeepsFilters(t *testing.T) {
	ex := &fakeExtractor{script: []extractResult{
		{ext: extraction(domain.Filters{
			ListingType: ltPtr(domain.ListingRent),
			Location:    strPtr("Zagreb"),
		}, 0.9)},
	}}
	srch := &fakeSearcher{result: searchResult("l1")}
	m := newTestManager(t, ex, srch)
	ctx := context.Background()

	first, err := m.HandleTurn(ctx, "", "Stan za najam u Zagrebu", nil)
	if err != nil {
		t.Fatalf("turn 1: %v", err)
	}
	id := first.SessionID
	for i := 0; i < 14; i++ {
		if _, err := m.HandleTurn(ctx, id, "još oglasa molim", nil); err != nil {
			t.Fatalf("turn %d: %v", i+2, err)
		}
	}

	s := m.sessions[id]
	if len(s.Turns) != domain.MaxSessionTurns {
		t.Errorf("expected history capped at %d, got %d", domain.MaxSessionTurns, len(s.Turns))
	}
	if s.TurnCount != 30 {
		t.Errorf("expected turn count 30, got %d", s.TurnCount)
	}
	if s.CurrentFilters.Location == nil || *s.CurrentFilters.Location != "Zagreb" {
		t.Errorf("filters must survive truncation, got %+v", s.CurrentFilters)
	}
}

func TestManager_HandleTurn_ProviderFailureIsPolite(t *testing.T) {
	ex := &fakeExtractor{script: []extractResult{
		{err: &search.ExtractionError{Code: search.ExtractAPIError, Err: errors.New("boom")}},
	}}
	srch := &fakeSearcher{}
	m := newTestManager(t, ex, srch)

	resp, err := m.HandleTurn(context.Background(), "", "stan u Splitu", nil)
	if err != nil {
		t.Fatalf("provider failure must not error the turn: %v", err)
	}

	if resp.Message != msgProviderTrouble {
		t.Errorf("expected polite fallback, got %q", resp.Message)
	}
	if srch.calls != 0 {
		t.Error("failed extraction must not search")
	}
	if s := m.sessions[resp.SessionID]; s == nil || s.TurnCount != 2 {
		t.Error("the turn must still be recorded")
	}
}

func TestManager_HandleTurn_RateLimitSurfaces(t *testing.T) {
	ex := &fakeExtractor{script: []extractResult{
		{err: &search.ExtractionError{Code: search.ExtractRateLimited, Retryable: true,
			Err: errors.New("429")}},
	}}
	m := newTestManager(t, ex, &fakeSearcher{})

	_, err := m.HandleTurn(context.Background(), "", "stan", nil)

	var exErr *search.ExtractionError
	if !errors.As(err, &exErr) || exErr.Code != search.ExtractRateLimited {
		t.Fatalf("expected the rate limit to surface, got %v", err)
	}
}

func TestManager_HandleTurn_InvalidResponseClarifies(t *testing.T) {
	ex := &fakeExtractor{script: []extractResult{
		{err: &search.ExtractionError{Code: search.ExtractInvalidResponse,
			Err: errors.New("not json")}},
	}}
	srch := &fakeSearcher{}
	m := newTestManager(t, ex, srch)

	resp, err := m.HandleTurn(context.Background(), "", "stan", nil)
	if err != nil {
		t.Fatalf("invalid response must not error the turn: %v", err)
	}
	if !resp.ClarificationNeeded || resp.Message != msgClarify {
		t.Errorf("expected a clarification round, got %+v", resp)
	}
	if srch.calls != 0 {
		t.Error("must not search on unusable extraction")
	}
}

func TestManager_HandleTurn_SearchFailureIsPolite(t *testing.T) {
	ex := &fakeExtractor{script: []extractResult{
		{ext: extraction(domain.Filters{Location: strPtr("Zagreb")}, 0.9)},
	}}
	srch := &fakeSearcher{err: errors.New("db down")}
	m := newTestManager(t, ex, srch)

	resp, err := m.HandleTurn(context.Background(), "", "stan u Zagrebu", nil)
	if err != nil {
		t.Fatalf("search failure must not error the turn: %v", err)
	}
	if resp.Message != msgSearchTrouble {
		t.Errorf("expected polite search fallback, got %q", resp.Message)
	}
	if len(resp.Listings) != 0 {
		t.Errorf("expected no listings, got %d", len(resp.Listings))
	}
}

func TestManager_HandleTurn_ServesCachedResults(t *testing.T) {
	ex := &fakeExtractor{script: []extractResult{
		{ext: extraction(domain.Filters{Location: strPtr("Zagreb")}, 0.9)},
	}}
	srch := &fakeSearcher{result: searchResult("l1", "l2", "l3")}
	m := newTestManager(t, ex, srch)
	ctx := context.Background()

	first, err := m.HandleTurn(ctx, "", "stan u Zagrebu", nil)
	if err != nil {
		t.Fatalf("turn 1: %v", err)
	}
	second, err := m.HandleTurn(ctx, first.SessionID, "stan u Zagrebu", nil)
	if err != nil {
		t.Fatalf("turn 2: %v", err)
	}

	if srch.calls != 1 {
		t.Errorf("expected the repeat search served from cache, got %d calls", srch.calls)
	}
	if !second.Cached {
		t.Error("expected cached=true on the repeat")
	}
	if second.TotalMatches != 3 || len(second.Listings) != 3 {
		t.Errorf("cached result lost listings: %d/%d",
			second.TotalMatches, len(second.Listings))
	}
}

func TestManager_HandleTurn_IdleSessionStartsFresh(t *testing.T) {
	ex := &fakeExtractor{script: []extractResult{
		{ext: extraction(domain.Filters{
			ListingType: ltPtr(domain.ListingRent),
			Location:    strPtr("Zagreb"),
		}, 0.9)},
		{ext: extraction(domain.Filters{PriceMax: intPtr(700)}, 0.9)},
	}}
	srch := &fakeSearcher{result: searchResult("l1")}
	m := newTestManager(t, ex, srch)
	ctx := context.Background()

	first, err := m.HandleTurn(ctx, "", "Stan za najam u Zagrebu", nil)
	if err != nil {
		t.Fatalf("turn 1: %v", err)
	}

	m.now = func() time.Time { return fixedNow.Add(2 * time.Hour) }

	second, err := m.HandleTurn(ctx, first.SessionID, "do 700 eura", nil)
	if err != nil {
		t.Fatalf("turn 2: %v", err)
	}

	if second.Filters.Location != nil {
		t.Errorf("idle session must not keep old filters, got %+v", second.Filters)
	}
	if s := m.sessions[first.SessionID]; s.TurnCount != 2 {
		t.Errorf("expected a fresh session, turn count %d", s.TurnCount)
	}
}

func TestManager_Reset_EndsSession(t *testing.T) {
	ex := &fakeExtractor{script: []extractResult{
		{ext: extraction(domain.Filters{Location: strPtr("Zagreb")}, 0.9)},
	}}
	m := newTestManager(t, ex, &fakeSearcher{result: searchResult("l1")})
	ctx := context.Background()

	first, err := m.HandleTurn(ctx, "", "stan u Zagrebu", nil)
	if err != nil {
		t.Fatalf("turn 1: %v", err)
	}

	m.Reset(ctx, first.SessionID)

	if _, ok := m.sessions[first.SessionID]; ok {
		t.Error("reset must drop the in-memory session")
	}
	var restored domain.ChatSession
	if err := m.cache.Get(ctx, sessionKey(first.SessionID), &restored); !errors.Is(err, cache.ErrNotFound) {
		t.Errorf("reset must drop the cached session, got %v", err)
	}
}

func TestManager_HandleTurn_SeedsProvidedHistory(t *testing.T) {
	ex := &fakeExtractor{script: []extractResult{
		{ext: extraction(domain.Filters{Location: strPtr("Zagreb")}, 0.9)},
	}}
	m := newTestManager(t, ex, &fakeSearcher{result: searchResult("l1")})

	history := []domain.Turn{
		{Role: domain.RoleUser, Content: "bok", Timestamp: fixedNow.Add(-time.Minute)},
		{Role: domain.RoleAssistant, Content: "Bok!", Timestamp: fixedNow.Add(-time.Minute)},
	}
	resp, err := m.HandleTurn(context.Background(), "client-42", "stan u Zagrebu", history)
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}

	if s := m.sessions[resp.SessionID]; s.TurnCount != 4 {
		t.Errorf("expected 2 seeded + 2 new turns, got %d", s.TurnCount)
	}
}

// --- Gate Tests ---

func TestShouldSearch(t *testing.T) {
	searchable := domain.Filters{Location: strPtr("Zagreb")}
	tests := []struct {
		name      string
		f         domain.Filters
		overall   float64
		firstTurn bool
		want      bool
	}{
		{"confident first turn", searchable, 0.9, true, true},
		{"hesitant first turn", searchable, 0.4, true, false},
		{"hesitant later turn", searchable, 0.4, false, true},
		{"nothing to search on", domain.Filters{}, 0.9, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := shouldSearch(tt.f, tt.overall, tt.firstTurn); got != tt.want {
				t.Errorf("shouldSearch(%v, %v) = %v, want %v",
					tt.overall, tt.firstTurn, got, tt.want)
			}
		})
	}
}

// --- Question Tests ---

func TestFollowUps(t *testing.T) {
	full := domain.Filters{
		ListingType: ltPtr(domain.ListingRent),
		Location:    strPtr("Zagreb"),
		PriceMax:    intPtr(700),
		RoomsMin:    intPtr(2),
	}

	qs := followUps(domain.Filters{}, 0)
	if len(qs) != maxFollowUps || qs[0] != askBroaden {
		t.Errorf("no results must lead with broadening, got %v", qs)
	}

	qs = followUps(full, 10)
	if len(qs) != 1 || qs[0] != askNarrow {
		t.Errorf("wide result on full filters must suggest narrowing, got %v", qs)
	}

	qs = followUps(full, 3)
	if len(qs) != 0 {
		t.Errorf("nothing to ask on full filters and a small result, got %v", qs)
	}
}

func TestClarifyQuestions_DeduplicatesAndCaps(t *testing.T) {
	qs := clarifyQuestions(domain.Filters{},
		[]string{"price_min", "price_max", "listing_type", "location", "rooms_min"})

	if len(qs) != maxFollowUps {
		t.Fatalf("expected %d questions, got %v", maxFollowUps, qs)
	}
	seen := make(map[string]bool)
	for _, q := range qs {
		if seen[q] {
			t.Errorf("duplicate question %q", q)
		}
		seen[q] = true
	}
}

func TestResultMessage_CroatianCounts(t *testing.T) {
	tests := []struct {
		n    int
		want string
	}{
		{1, "1 oglas "},
		{2, "2 oglasa "},
		{11, "11 oglasa "},
		{21, "21 oglas "},
	}
	for _, tt := range tests {
		if got := resultMessage(tt.n); !strings.Contains(got, tt.want) {
			t.Errorf("resultMessage(%d) = %q, want it to contain %q", tt.n, got, tt.want)
		}
	}
	if resultMessage(0) != msgNoResults {
		t.Errorf("zero results must use the no-results message")
	}
}

// --- Cache Key Tests ---

func TestResultsKey_CanonicalForm(t *testing.T) {
	a := domain.Filters{Location: strPtr("Zagreb"), Amenities: []string{"pool", "elevator"}}
	b := domain.Filters{Location: strPtr("Zagreb"), Amenities: []string{"elevator", "pool"}}

	if resultsKey("Stan u Zagrebu", a, anonUser) != resultsKey("stan u zagrebu", b, anonUser) {
		t.Error("case and amenity order must not change the key")
	}
	if resultsKey("stan", a, anonUser) == resultsKey("stan", a, "user-1") {
		t.Error("different users must get different keys")
	}
	if !strings.HasPrefix(resultsKey("stan", a, anonUser), resultsKeyPrefix) {
		t.Error("key must carry the results prefix")
	}
}
