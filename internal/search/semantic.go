package search

import (
	"context"
	"fmt"
	"time"

	"github.com/nyka2002/stanbot/internal/domain"
	"github.com/nyka2002/stanbot/internal/embedding"
	"github.com/nyka2002/stanbot/internal/logger"
	"github.com/nyka2002/stanbot/internal/store"
)

// SearchErrorCode classifies a failed search.
type SearchErrorCode string

const (
	SearchNoEmbedding    SearchErrorCode = "NO_EMBEDDING"
	SearchDatabaseError  SearchErrorCode = "DATABASE_ERROR"
	SearchInvalidFilters SearchErrorCode = "INVALID_FILTERS"
	SearchNoResults      SearchErrorCode = "NO_RESULTS"
)

// SearchError wraps a search failure with its kind. An empty result is not
// an error; NO_RESULTS exists for callers that need to label emptiness.
type SearchError struct {
	Code SearchErrorCode
	Err  error
}

func (e *SearchError) Error() string {
	return fmt.Sprintf("search %s: %v", e.Code, e.Err)
}

func (e *SearchError) Unwrap() error { return e.Err }

// ListingSource is the slice of the store the search service needs.
type ListingSource interface {
	SearchSemantic(ctx context.Context, embedding []float32, threshold float64, k int) ([]store.SemanticMatch, error)
	List(ctx context.Context, f domain.Filters, limit, offset int) ([]domain.Listing, error)
	GetByID(ctx context.Context, id string) (*domain.Listing, error)
}

// QueryEmbedder is the slice of the embedding service used here.
type QueryEmbedder interface {
	GenerateQuery(ctx context.Context, text string) (*embedding.QueryEmbedding, error)
}

const (
	// DefaultThreshold is the minimum cosine similarity for candidates.
	DefaultThreshold = 0.3

	// DefaultMaxResults caps the returned page.
	DefaultMaxResults = 10

	// similarThreshold applies to find-similar lookups, which start from a
	// known listing and can afford to be stricter.
	similarThreshold = 0.5

	// fallbackSimilarity is the neutral similarity assigned when ranking
	// runs without vector retrieval.
	fallbackSimilarity = 0.5
)

// Config tunes one search call. Zero values take the defaults.
type Config struct {
	Threshold  float64
	MaxResults int
}

func (c Config) withDefaults() Config {
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if c.MaxResults <= 0 {
		c.MaxResults = DefaultMaxResults
	}
	return c
}

// Result is one completed search.
type Result struct {
	Listings     []RankedListing `json:"listings"`
	TotalMatches int             `json:"total_matches"`
	SearchTimeMs int64           `json:"search_time_ms"`
	Filters      domain.Filters  `json:"filters"`
	Embedding    []float32       `json:"-"`
	FallbackUsed bool            `json:"fallback_used"`
}

// Service runs end-to-end searches: embed, retrieve, hard-filter, rank.
type Service struct {
	store    ListingSource
	embedder QueryEmbedder
	ranker   *Ranker
}

// NewService wires the search pipeline.
func NewService(src ListingSource, embedder QueryEmbedder, ranker *Ranker) *Service {
	return &Service{store: src, embedder: embedder, ranker: ranker}
}

// Search retrieves candidates for the query by vector similarity, drops the
// ones that violate hard requirements, ranks the rest and returns the top
// page. Embedding or retrieval failures silently fall back to a plain
// filtered listing ranked on filter match; only a fallback failure
// surfaces as an error.
func (s *Service) Search(ctx context.Context, query string, f domain.Filters, cfg Config) (*Result, error) {
	start := time.Now()
	cfg = cfg.withDefaults()

	if query == "" && f.ActiveCount() == 0 {
		return nil, &SearchError{Code: SearchInvalidFilters,
			Err: fmt.Errorf("neither query text nor filters given")}
	}

	res := &Result{Filters: f}

	// Retrieve three times the page size so ranking has room to demote
	// and the hard filter has room to drop.
	var matches []store.SemanticMatch
	emb, err := s.embedder.GenerateQuery(ctx, query)
	if err != nil {
		logger.Warn("query embedding failed, entering fallback", "error", err)
	} else {
		res.Embedding = emb.Vector
		matches, err = s.store.SearchSemantic(ctx, emb.Vector, cfg.Threshold, 3*cfg.MaxResults)
		if err != nil {
			logger.Warn("semantic retrieval failed, entering fallback", "error", err)
			matches = nil
		}
	}

	var ranked []RankedListing
	if len(matches) == 0 {
		ranked, err = s.fallback(ctx, f, cfg)
		if err != nil {
			return nil, err
		}
		res.FallbackUsed = true
	} else {
		candidates := make([]Candidate, 0, len(matches))
		for i := range matches {
			if !HardPass(&matches[i].Listing, f) {
				continue
			}
			candidates = append(candidates, Candidate{
				Listing:    matches[i].Listing,
				Similarity: matches[i].Similarity,
			})
		}
		ranked = s.ranker.Rank(candidates, f)
	}

	res.TotalMatches = len(ranked)
	if len(ranked) > cfg.MaxResults {
		ranked = ranked[:cfg.MaxResults]
	}
	res.Listings = ranked
	res.SearchTimeMs = time.Since(start).Milliseconds()

	logger.Debug("search complete",
		"results", len(res.Listings),
		"total_matches", res.TotalMatches,
		"fallback", res.FallbackUsed,
		"took_ms", res.SearchTimeMs)
	return res, nil
}

// fallback lists by filters alone, assigns a neutral similarity and ranks
// with weights that lean on the filter match.
func (s *Service) fallback(ctx context.Context, f domain.Filters, cfg Config) ([]RankedListing, error) {
	listings, err := s.store.List(ctx, f, 2*cfg.MaxResults, 0)
	if err != nil {
		return nil, &SearchError{Code: SearchDatabaseError, Err: err}
	}

	candidates := make([]Candidate, 0, len(listings))
	for i := range listings {
		candidates = append(candidates, Candidate{
			Listing:    listings[i],
			Similarity: fallbackSimilarity,
		})
	}
	return s.ranker.RankWith(candidates, f, FallbackRankWeights()), nil
}

// FindSimilar returns up to k listings closest to the given one. The base
// listing must already carry an embedding.
func (s *Service) FindSimilar(ctx context.Context, id string, k int) ([]Candidate, error) {
	if k <= 0 {
		k = 3
	}

	base, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, &SearchError{Code: SearchDatabaseError, Err: err}
	}
	if len(base.Embedding) == 0 {
		return nil, &SearchError{Code: SearchNoEmbedding,
			Err: fmt.Errorf("listing %s has no embedding", id)}
	}

	// k+1 because the base listing is its own nearest neighbour.
	matches, err := s.store.SearchSemantic(ctx, base.Embedding, similarThreshold, k+1)
	if err != nil {
		return nil, &SearchError{Code: SearchDatabaseError, Err: err}
	}

	out := make([]Candidate, 0, k)
	for i := range matches {
		if matches[i].Listing.ID == id {
			continue
		}
		out = append(out, Candidate{
			Listing:    matches[i].Listing,
			Similarity: matches[i].Similarity,
		})
		if len(out) == k {
			break
		}
	}
	return out, nil
}
