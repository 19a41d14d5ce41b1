package search

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/nyka2002/stanbot/internal/domain"
)

func newTestRanker(now time.Time) *Ranker {
	r := NewRanker(DefaultRankWeights(), NewMatcher(DefaultWeights()))
	r.now = func() time.Time { return now }
	return r
}

// --- Decay Tests ---

func TestRecencyScore(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		age  time.Duration
		want float64
	}{
		{0, 1},
		{23 * time.Hour, 1},
		{15 * 24 * time.Hour, 0.5},
		{31 * 24 * time.Hour, 0},
	}
	for _, tt := range tests {
		got := recencyScore(now.Add(-tt.age), now)
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("recencyScore(age %v) = %v, want %v", tt.age, got, tt.want)
		}
	}
}

func TestFreshnessScore(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		age  time.Duration
		want float64
	}{
		{30 * time.Minute, 1},
		{84 * time.Hour, 0.5},
		{168 * time.Hour, 0},
		{400 * time.Hour, 0},
	}
	for _, tt := range tests {
		got := freshnessScore(now.Add(-tt.age), now)
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("freshnessScore(age %v) = %v, want %v", tt.age, got, tt.want)
		}
	}
}

// --- Rank Tests ---

func TestRanker_Rank_CombinesFactors(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	r := newTestRanker(now)

	l := *testListing()
	l.Price = 750
	l.CreatedAt = now
	l.ScrapedAt = now
	f := domain.Filters{PriceMax: intPtr(800)}

	ranked := r.Rank([]Candidate{{Listing: l, Similarity: 0.8}}, f)

	if len(ranked) != 1 {
		t.Fatalf("expected 1 ranked listing, got %d", len(ranked))
	}
	sc := ranked[0].Scores
	if sc.Semantic != 0.8 || sc.FilterMatch != 1 || sc.Recency != 1 || sc.Freshness != 1 {
		t.Errorf("unexpected factor scores: %+v", sc)
	}
	// 0.4*0.8 + 0.4*1 + 0.1*1 + 0.1*1
	if math.Abs(sc.Combined-0.92) > 1e-9 {
		t.Errorf("expected combined 0.92, got %v", sc.Combined)
	}
}

func TestRanker_Rank_OrdersByCombined(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	r := newTestRanker(now)

	strong := *testListing()
	strong.ID = "strong"
	strong.CreatedAt = now
	strong.ScrapedAt = now

	weak := *testListing()
	weak.ID = "weak"
	weak.CreatedAt = now
	weak.ScrapedAt = now

	ranked := r.Rank([]Candidate{
		{Listing: weak, Similarity: 0.4},
		{Listing: strong, Similarity: 0.9},
	}, domain.Filters{})

	if ranked[0].Listing.ID != "strong" || ranked[1].Listing.ID != "weak" {
		t.Errorf("expected [strong weak], got [%s %s]",
			ranked[0].Listing.ID, ranked[1].Listing.ID)
	}
}

func TestRanker_Rank_FresherListingWinsTie(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	r := newTestRanker(now)
	created := now.Add(-10 * 24 * time.Hour)

	stale := *testListing()
	stale.ID = "stale"
	stale.CreatedAt = created
	stale.ScrapedAt = now.Add(-336 * time.Hour)

	fresh := *testListing()
	fresh.ID = "fresh"
	fresh.CreatedAt = created
	fresh.ScrapedAt = now

	ranked := r.Rank([]Candidate{
		{Listing: stale, Similarity: 0.7},
		{Listing: fresh, Similarity: 0.7},
	}, domain.Filters{})

	if ranked[0].Listing.ID != "fresh" {
		t.Errorf("expected the freshly scraped listing first, got %s", ranked[0].Listing.ID)
	}
}

func TestRanker_Rank_ClampsSimilarity(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	r := newTestRanker(now)
	l := *testListing()
	l.CreatedAt = now
	l.ScrapedAt = now

	ranked := r.Rank([]Candidate{{Listing: l, Similarity: 1.4}}, domain.Filters{})

	if ranked[0].Scores.Semantic != 1 {
		t.Errorf("expected similarity clamped to 1, got %v", ranked[0].Scores.Semantic)
	}
}

// --- Rerank Tests ---

func TestRanker_Rerank_SameFiltersIsStable(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	r := newTestRanker(now)
	f := domain.Filters{PriceMax: intPtr(800), Location: strPtr("Zagreb")}

	var candidates []Candidate
	for i, price := range []int{600, 750, 820} {
		l := *testListing()
		l.ID = string(rune('a' + i))
		l.Price = price
		l.CreatedAt = now.Add(-time.Duration(i) * 24 * time.Hour)
		l.ScrapedAt = now.Add(-time.Duration(i) * time.Hour)
		candidates = append(candidates, Candidate{Listing: l, Similarity: 0.5 + 0.1*float64(i)})
	}

	ranked := r.Rank(candidates, f)
	reranked := r.Rerank(ranked, f)

	if len(reranked) != len(ranked) {
		t.Fatalf("length changed: %d vs %d", len(reranked), len(ranked))
	}
	for i := range ranked {
		if reranked[i].Listing.ID != ranked[i].Listing.ID {
			t.Errorf("order changed at %d: %s vs %s",
				i, reranked[i].Listing.ID, ranked[i].Listing.ID)
		}
		if math.Abs(reranked[i].Scores.Combined-ranked[i].Scores.Combined) > 1e-12 {
			t.Errorf("combined changed at %d: %v vs %v",
				i, reranked[i].Scores.Combined, ranked[i].Scores.Combined)
		}
	}
}

func TestRanker_Rerank_AppliesNewFilters(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	r := newTestRanker(now)

	cheap := *testListing()
	cheap.ID = "cheap"
	cheap.Price = 650
	cheap.CreatedAt = now
	cheap.ScrapedAt = now

	dear := *testListing()
	dear.ID = "dear"
	dear.Price = 790
	dear.CreatedAt = now
	dear.ScrapedAt = now

	ranked := r.Rank([]Candidate{
		{Listing: cheap, Similarity: 0.6},
		{Listing: dear, Similarity: 0.9},
	}, domain.Filters{PriceMax: intPtr(800)})
	if ranked[0].Listing.ID != "dear" {
		t.Fatalf("setup: expected dear first on similarity, got %s", ranked[0].Listing.ID)
	}

	reranked := r.Rerank(ranked, domain.Filters{PriceMax: intPtr(700)})

	if reranked[0].Listing.ID != "cheap" {
		t.Errorf("expected cheap first after tightening the budget, got %s",
			reranked[0].Listing.ID)
	}
	for _, rl := range reranked {
		if rl.Listing.ID == "dear" && rl.Scores.Semantic != 0.9 {
			t.Errorf("rerank must keep the semantic score, got %v", rl.Scores.Semantic)
		}
	}
}

// --- Explain Tests ---

func TestExplain_ShowsAllFactors(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	r := newTestRanker(now)

	l := *testListing()
	l.Rooms = intPtr(3)
	l.CreatedAt = now
	l.ScrapedAt = now
	f := domain.Filters{PriceMax: intPtr(800), RoomsMin: intPtr(2), RoomsMax: intPtr(2)}

	ranked := r.Rank([]Candidate{{Listing: l, Similarity: 0.8}}, f)
	out := Explain(ranked[0])

	for _, want := range []string{
		"combined:", "semantic:", "filter match:", "recency:", "freshness:",
		"matched:   price",
		"unmatched: -",
		"rooms: expected 2, got 3 (70%)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("explain output missing %q:\n%s", want, out)
		}
	}
}
