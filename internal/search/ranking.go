package search

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/nyka2002/stanbot/internal/domain"
)

// RankWeights blend the four ranking factors into the combined score.
type RankWeights struct {
	Semantic    float64
	FilterMatch float64
	Recency     float64
	Freshness   float64
}

// DefaultRankWeights split the score evenly between meaning and filters,
// with small recency and freshness nudges.
func DefaultRankWeights() RankWeights {
	return RankWeights{Semantic: 0.4, FilterMatch: 0.4, Recency: 0.1, Freshness: 0.1}
}

// FallbackRankWeights apply when no vector similarity is available and the
// filter match has to carry the ordering.
func FallbackRankWeights() RankWeights {
	return RankWeights{Semantic: 0, FilterMatch: 0.8, Recency: 0.15, Freshness: 0.05}
}

// Scores carries the ranking factors for one listing, all in [0, 1].
type Scores struct {
	Semantic    float64 `json:"semantic"`
	FilterMatch float64 `json:"filter_match"`
	Recency     float64 `json:"recency"`
	Freshness   float64 `json:"freshness"`
	Combined    float64 `json:"combined"`
}

// RankedListing pairs a listing with its scores and match detail.
type RankedListing struct {
	Listing domain.Listing `json:"listing"`
	Scores  Scores         `json:"scores"`
	Match   MatchResult    `json:"match"`
}

// Candidate is a retrieval result entering the ranking stage.
type Candidate struct {
	Listing    domain.Listing `json:"listing"`
	Similarity float64        `json:"similarity"`
}

// Ranker orders candidates by the combined score.
type Ranker struct {
	weights RankWeights
	matcher *Matcher
	now     func() time.Time
}

// NewRanker builds a ranker over the given weights and matcher.
func NewRanker(w RankWeights, m *Matcher) *Ranker {
	return &Ranker{weights: w, matcher: m, now: time.Now}
}

// recencyScore decays linearly over 30 days since the listing first
// appeared; anything younger than a day scores full.
func recencyScore(createdAt, now time.Time) float64 {
	age := now.Sub(createdAt)
	if age < 24*time.Hour {
		return 1
	}
	days := age.Hours() / 24
	return clamp01(1 - days/30)
}

// freshnessScore decays linearly over a week since the last scrape;
// anything younger than an hour scores full.
func freshnessScore(scrapedAt, now time.Time) float64 {
	age := now.Sub(scrapedAt)
	if age < time.Hour {
		return 1
	}
	return clamp01(1 - age.Hours()/168)
}

// Rank scores all candidates against the filters and returns them ordered
// by combined score, best first.
func (r *Ranker) Rank(candidates []Candidate, f domain.Filters) []RankedListing {
	return r.RankWith(candidates, f, r.weights)
}

// RankWith is Rank with per-call weights, used by the search fallback.
func (r *Ranker) RankWith(candidates []Candidate, f domain.Filters, w RankWeights) []RankedListing {
	now := r.now()
	out := make([]RankedListing, 0, len(candidates))
	for _, c := range candidates {
		match := r.matcher.Match(&c.Listing, f)
		sc := Scores{
			Semantic:    clamp01(c.Similarity),
			FilterMatch: match.Score,
			Recency:     recencyScore(c.Listing.CreatedAt, now),
			Freshness:   freshnessScore(c.Listing.ScrapedAt, now),
		}
		sc.Combined = combine(sc, w)
		out = append(out, RankedListing{Listing: c.Listing, Scores: sc, Match: match})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Scores.Combined > out[j].Scores.Combined
	})
	return out
}

// Rerank recomputes only the filter-match factor against updated filters,
// keeping the stored semantic, recency and freshness scores. Used when a
// session refines its filters without issuing a new query.
func (r *Ranker) Rerank(ranked []RankedListing, f domain.Filters) []RankedListing {
	out := make([]RankedListing, len(ranked))
	copy(out, ranked)
	for i := range out {
		match := r.matcher.Match(&out[i].Listing, f)
		out[i].Match = match
		out[i].Scores.FilterMatch = match.Score
		out[i].Scores.Combined = combine(out[i].Scores, r.weights)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Scores.Combined > out[j].Scores.Combined
	})
	return out
}

func combine(sc Scores, w RankWeights) float64 {
	return w.Semantic*sc.Semantic +
		w.FilterMatch*sc.FilterMatch +
		w.Recency*sc.Recency +
		w.Freshness*sc.Freshness
}

// Explain renders a readable score breakdown for one ranked listing. This
// is the debugging surface behind ranking questions, so it spells out every
// factor and the per-field match outcome.
func Explain(r RankedListing) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s [%s]\n", r.Listing.Title, r.Listing.ID)
	fmt.Fprintf(&b, "  combined:     %.3f\n", r.Scores.Combined)
	fmt.Fprintf(&b, "  semantic:     %.3f\n", r.Scores.Semantic)
	fmt.Fprintf(&b, "  filter match: %.3f\n", r.Scores.FilterMatch)
	fmt.Fprintf(&b, "  recency:      %.3f\n", r.Scores.Recency)
	fmt.Fprintf(&b, "  freshness:    %.3f\n", r.Scores.Freshness)

	fmt.Fprintf(&b, "  matched:   %s\n", fieldList(r.Match.Matched))
	fmt.Fprintf(&b, "  unmatched: %s\n", fieldList(r.Match.Unmatched))
	if len(r.Match.Partials) > 0 {
		b.WriteString("  partial:\n")
		for _, p := range r.Match.Partials {
			fmt.Fprintf(&b, "    %s: expected %s, got %s (%d%%)\n",
				p.Field, p.Expected, p.Actual, p.Percentage)
		}
	}
	return b.String()
}

func fieldList(fields []string) string {
	if len(fields) == 0 {
		return "-"
	}
	return strings.Join(fields, ", ")
}
