// Package embedding generates dense vectors for queries and listings and
// caches them so repeated searches and re-scrapes never pay for the same
// provider call twice.
package embedding

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/nyka2002/stanbot/internal/cache"
	"github.com/nyka2002/stanbot/internal/domain"
	"github.com/nyka2002/stanbot/internal/llm"
	"github.com/nyka2002/stanbot/internal/logger"
)

const (
	// QueryTTL bounds how long a cached query vector is reused.
	QueryTTL = 24 * time.Hour

	// ListingTTL bounds how long a cached listing vector is reused.
	ListingTTL = 7 * 24 * time.Hour

	batchChunkSize  = 100
	batchChunkDelay = 100 * time.Millisecond

	maxDescriptionChars = 500
)

// QueryEmbedding is the vector for one query. Cached reports whether it was
// served without a provider call; TokenCount is zero in that case.
type QueryEmbedding struct {
	Vector     []float32 `json:"vector"`
	TokenCount int       `json:"token_count"`
	Cached     bool      `json:"cached"`
}

// BatchResult summarizes one embedding pass over a set of listings.
type BatchResult struct {
	// Vectors maps listing id to its embedding, cache hits included.
	Vectors    map[string][]float32
	Generated  int
	FromCache  int
	TokenCount int
	FailedIDs  []string
}

// Service embeds text through an LLM provider behind a cache.
type Service struct {
	provider llm.EmbeddingProvider
	cache    cache.Cache
}

// NewService builds an embedding service over provider and c.
func NewService(provider llm.EmbeddingProvider, c cache.Cache) *Service {
	return &Service{provider: provider, cache: c}
}

// normalizeQuery lowercases and collapses whitespace so trivially different
// phrasings of the same query share one cache entry.
func normalizeQuery(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

func queryKey(normalized string) string {
	sum := md5.Sum([]byte(normalized))
	return "embedding:query:" + hex.EncodeToString(sum[:])
}

func listingKey(id string) string {
	return "embedding:listing:" + id
}

// GenerateQuery returns the embedding for a free-text query, serving from
// cache when possible. Cache read/write failures degrade to a provider call
// and are never fatal.
func (s *Service) GenerateQuery(ctx context.Context, text string) (*QueryEmbedding, error) {
	normalized := normalizeQuery(text)
	if normalized == "" {
		return nil, fmt.Errorf("embedding: empty query")
	}

	key := queryKey(normalized)
	var cached []float32
	err := s.cache.Get(ctx, key, &cached)
	switch {
	case err == nil && len(cached) > 0:
		return &QueryEmbedding{Vector: cached, Cached: true}, nil
	case err != nil && !cache.IsNotFound(err):
		logger.Warn("embedding cache read failed", "key", key, "error", err)
	}

	emb, err := s.provider.Embed(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	if err := s.cache.Set(ctx, key, emb.Vector, QueryTTL); err != nil {
		logger.Warn("embedding cache write failed", "key", key, "error", err)
	}
	return &QueryEmbedding{Vector: emb.Vector, TokenCount: emb.Tokens}, nil
}

// BatchGenerate embeds the given listings, serving cached vectors without a
// provider call and sending the misses out in chunks with a short pause
// between them. A failed chunk falls back to per-item calls; listings that
// still fail end up in FailedIDs rather than aborting the pass.
func (s *Service) BatchGenerate(ctx context.Context, listings []domain.Listing) (*BatchResult, error) {
	res := &BatchResult{Vectors: make(map[string][]float32, len(listings))}

	var misses []domain.Listing
	for i := range listings {
		l := &listings[i]
		var vec []float32
		err := s.cache.Get(ctx, listingKey(l.ID), &vec)
		if err == nil && len(vec) > 0 {
			res.Vectors[l.ID] = vec
			res.FromCache++
			continue
		}
		if err != nil && !cache.IsNotFound(err) {
			logger.Warn("embedding cache read failed", "listing_id", l.ID, "error", err)
		}
		misses = append(misses, *l)
	}

	for start := 0; start < len(misses); start += batchChunkSize {
		if start > 0 {
			select {
			case <-ctx.Done():
				return res, ctx.Err()
			case <-time.After(batchChunkDelay):
			}
		}
		end := min(start+batchChunkSize, len(misses))
		s.embedChunk(ctx, misses[start:end], res)
	}
	return res, nil
}

// embedChunk embeds one chunk of listings, retrying item by item when the
// batch call fails.
func (s *Service) embedChunk(ctx context.Context, chunk []domain.Listing, res *BatchResult) {
	texts := make([]string, len(chunk))
	for i := range chunk {
		texts[i] = ListingText(&chunk[i])
	}

	embs, err := s.provider.EmbedBatch(ctx, texts)
	if err == nil && len(embs) == len(chunk) {
		for i := range embs {
			s.record(ctx, chunk[i].ID, embs[i], res)
		}
		return
	}
	if err != nil {
		logger.Warn("batch embedding failed, retrying per item", "size", len(chunk), "error", err)
	}

	for i := range chunk {
		emb, err := s.provider.Embed(ctx, texts[i])
		if err != nil {
			logger.Warn("listing embedding failed", "listing_id", chunk[i].ID, "error", err)
			res.FailedIDs = append(res.FailedIDs, chunk[i].ID)
			continue
		}
		s.record(ctx, chunk[i].ID, emb, res)
	}
}

func (s *Service) record(ctx context.Context, id string, emb llm.Embedding, res *BatchResult) {
	res.Vectors[id] = emb.Vector
	res.Generated++
	res.TokenCount += emb.Tokens
	if err := s.cache.Set(ctx, listingKey(id), emb.Vector, ListingTTL); err != nil {
		logger.Warn("embedding cache write failed", "listing_id", id, "error", err)
	}
}

// propertyTypeHR and listingTypeHR render the enums in Croatian for the
// embedded text, matching the language of the source ads and most queries.
var propertyTypeHR = map[domain.PropertyType]string{
	domain.PropertyApartment: "Stan",
	domain.PropertyHouse:     "Kuća",
	domain.PropertyOffice:    "Poslovni prostor",
	domain.PropertyLand:      "Zemljište",
	domain.PropertyOther:     "Nekretnina",
}

var listingTypeHR = map[domain.ListingType]string{
	domain.ListingRent: "najam",
	domain.ListingSale: "prodaju",
}

// ListingText composes the text a listing is embedded from. The template is
// stable so an unchanged listing always produces the same vector.
func ListingText(l *domain.Listing) string {
	var b strings.Builder

	if l.Title != "" {
		b.WriteString(l.Title)
		b.WriteString(". ")
	}

	pt := propertyTypeHR[l.PropertyType]
	if pt == "" {
		pt = propertyTypeHR[domain.PropertyOther]
	}
	lt := listingTypeHR[l.ListingType]
	if lt == "" {
		lt = listingTypeHR[domain.ListingSale]
	}
	b.WriteString(pt)
	b.WriteString(" za ")
	b.WriteString(lt)
	b.WriteString(". ")

	if l.City != "" || l.Address != "" {
		b.WriteString("Lokacija: ")
		switch {
		case l.City != "" && l.Address != "":
			b.WriteString(l.City + ", " + l.Address)
		case l.City != "":
			b.WriteString(l.City)
		default:
			b.WriteString(l.Address)
		}
		b.WriteString(". ")
	}

	var facts []string
	if l.Rooms != nil {
		facts = append(facts, fmt.Sprintf("%d sobe", *l.Rooms))
	}
	if l.SurfaceArea != nil {
		facts = append(facts, fmt.Sprintf("%gm²", *l.SurfaceArea))
	}
	if l.Price > 0 {
		facts = append(facts, fmt.Sprintf("%d€", l.Price))
	}
	if len(facts) > 0 {
		b.WriteString(strings.Join(facts, ", "))
		b.WriteString(". ")
	}

	if words := amenityWords(l); len(words) > 0 {
		b.WriteString("Pogodnosti: ")
		b.WriteString(strings.Join(words, ", "))
		b.WriteString(". ")
	}

	desc := l.Description
	if utf8.RuneCountInString(desc) > maxDescriptionChars {
		desc = string([]rune(desc)[:maxDescriptionChars])
	}
	b.WriteString(desc)

	return strings.TrimSpace(b.String())
}

// amenityWords lists the first-class amenity flags in Croatian followed by
// the remaining canonical keys in sorted order.
func amenityWords(l *domain.Listing) []string {
	var words []string
	if l.HasParking {
		words = append(words, "parking")
	}
	if l.HasBalcony {
		words = append(words, "balkon")
	}
	if l.HasGarage {
		words = append(words, "garaža")
	}
	if l.IsFurnished {
		words = append(words, "namješten")
	}

	extra := make([]string, 0, len(l.Amenities))
	for k, ok := range l.Amenities {
		if ok {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	return append(words, extra...)
}
