// Package search turns free-text queries into ranked listing results:
// LLM filter extraction, vector retrieval, soft filter scoring and
// multi-factor ranking.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/nyka2002/stanbot/internal/domain"
	"github.com/nyka2002/stanbot/internal/llm"
	"github.com/nyka2002/stanbot/internal/logger"
	"github.com/nyka2002/stanbot/internal/normalize"
)

// ExtractionErrorCode classifies a failed extraction.
type ExtractionErrorCode string

const (
	ExtractRateLimited     ExtractionErrorCode = "RATE_LIMITED"
	ExtractTimeout         ExtractionErrorCode = "TIMEOUT"
	ExtractInvalidResponse ExtractionErrorCode = "INVALID_RESPONSE"
	ExtractAPIError        ExtractionErrorCode = "API_ERROR"
)

// ExtractionError wraps a provider or parse failure with its kind.
type ExtractionError struct {
	Code      ExtractionErrorCode
	Retryable bool
	Err       error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction %s: %v", e.Code, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Extraction is the structured interpretation of one query.
type Extraction struct {
	Filters    domain.Filters    `json:"filters"`
	Confidence domain.Confidence `json:"confidence"`
	Language   string            `json:"language"`
}

const (
	extractTemperature = 0.1
	extractMaxTokens   = 800
)

// Extractor turns a natural-language query into validated filters via one
// structured LLM call.
type Extractor struct {
	provider llm.Provider
}

// NewExtractor builds an extractor over the given provider.
func NewExtractor(p llm.Provider) *Extractor {
	return &Extractor{provider: p}
}

// Extract parses query into filters. A blank query returns empty filters
// with zero confidence and every field ambiguous, without a provider call.
func (e *Extractor) Extract(ctx context.Context, query string) (*Extraction, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return EmptyExtraction(), nil
	}

	logger.Debug("filter extraction starting",
		"provider", e.provider.Name(), "query_len", len(trimmed))

	resp, err := e.provider.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: extractionSystemPrompt},
			{Role: llm.RoleUser, Content: trimmed},
		},
		MaxTokens:   extractMaxTokens,
		Temperature: extractTemperature,
		JSONSchema:  filterSchema,
		SchemaName:  "listing_filters",
	})
	if err != nil {
		return nil, classifyProviderError(err)
	}

	var raw rawExtraction
	if err := json.Unmarshal([]byte(stripFences(resp.Content)), &raw); err != nil {
		return nil, &ExtractionError{
			Code: ExtractInvalidResponse,
			Err:  fmt.Errorf("parsing response: %w (response: %s)", err, truncateForError(resp.Content)),
		}
	}

	ext := raw.validated()
	ext.Language = DetectLanguage(trimmed)

	logger.Debug("filter extraction complete",
		"active_filters", ext.Filters.ActiveCount(),
		"confidence", ext.Confidence.Overall,
		"language", ext.Language,
		"output_tokens", resp.Usage.OutputTokens)
	return ext, nil
}

// EmptyExtraction is the zero-signal interpretation: no filters, zero
// confidence, every field ambiguous. It stands in for unusable provider
// output as well as blank queries.
func EmptyExtraction() *Extraction {
	ambiguous := make([]string, len(allFilterFields))
	copy(ambiguous, allFilterFields)
	return &Extraction{
		Confidence: domain.Confidence{AmbiguousFields: ambiguous},
		Language:   LanguageCroatian,
	}
}

// rawExtraction is the unvalidated provider output. Numbers arrive as
// floats because models are loose about integer formatting.
type rawExtraction struct {
	ListingType    *string        `json:"listing_type"`
	PropertyType   *string        `json:"property_type"`
	PriceMin       *float64       `json:"price_min"`
	PriceMax       *float64       `json:"price_max"`
	Location       *string        `json:"location"`
	RoomsMin       *float64       `json:"rooms_min"`
	RoomsMax       *float64       `json:"rooms_max"`
	SurfaceAreaMin *float64       `json:"surface_area_min"`
	SurfaceAreaMax *float64       `json:"surface_area_max"`
	HasParking     *bool          `json:"has_parking"`
	HasBalcony     *bool          `json:"has_balcony"`
	HasGarage      *bool          `json:"has_garage"`
	IsFurnished    *bool          `json:"is_furnished"`
	Amenities      []string       `json:"amenities"`
	Confidence     *rawConfidence `json:"confidence"`
}

type rawConfidence struct {
	Overall         *float64           `json:"overall"`
	PerField        map[string]float64 `json:"per_field"`
	AmbiguousFields []string           `json:"ambiguous_fields"`
}

// validated applies the output contract: enums restricted, numerics
// positive, booleans only when true, confidence clamped, locations run
// through the city table.
func (r *rawExtraction) validated() *Extraction {
	ext := &Extraction{}
	f := &ext.Filters

	if r.ListingType != nil {
		if lt := domain.ListingType(*r.ListingType); lt.Valid() {
			f.ListingType = &lt
		}
	}
	if r.PropertyType != nil {
		if pt := domain.PropertyType(*r.PropertyType); pt.Valid() {
			f.PropertyType = &pt
		}
	}
	f.PriceMin = positiveInt(r.PriceMin)
	f.PriceMax = positiveInt(r.PriceMax)
	f.RoomsMin = positiveInt(r.RoomsMin)
	f.RoomsMax = positiveInt(r.RoomsMax)
	f.SurfaceAreaMin = positiveFloat(r.SurfaceAreaMin)
	f.SurfaceAreaMax = positiveFloat(r.SurfaceAreaMax)

	if r.Location != nil && strings.TrimSpace(*r.Location) != "" {
		canonical := canonicalLocation(*r.Location)
		f.Location = &canonical
	}

	f.HasParking = trueOnly(r.HasParking)
	f.HasBalcony = trueOnly(r.HasBalcony)
	f.HasGarage = trueOnly(r.HasGarage)
	f.IsFurnished = trueOnly(r.IsFurnished)

	for _, a := range r.Amenities {
		if a = strings.TrimSpace(strings.ToLower(a)); a != "" {
			f.Amenities = append(f.Amenities, a)
		}
	}

	ext.Confidence = validatedConfidence(r.Confidence)
	return ext
}

func validatedConfidence(raw *rawConfidence) domain.Confidence {
	c := domain.Confidence{}
	if raw == nil {
		return c
	}
	if raw.Overall != nil {
		c.Overall = clamp01(*raw.Overall)
	}
	if len(raw.PerField) > 0 {
		c.PerField = make(map[string]float64, len(raw.PerField))
		for field, v := range raw.PerField {
			c.PerField[field] = clamp01(v)
		}
	}
	c.AmbiguousFields = raw.AmbiguousFields
	return c
}

// canonicalLocation runs an extracted location through the same city table
// the scrapers use, so "ZAGREB" and "zagreb, trešnjevka" both end up in
// canonical casing. The district survives as an address suffix to keep the
// query's specificity.
func canonicalLocation(raw string) string {
	loc := normalize.NormalizeLocation(raw)
	if loc.City == "" {
		return strings.TrimSpace(raw)
	}
	if loc.Address != "" {
		return loc.City + ", " + loc.Address
	}
	return loc.City
}

func positiveInt(v *float64) *int {
	if v == nil {
		return nil
	}
	n := int(*v)
	if n <= 0 {
		return nil
	}
	return &n
}

func positiveFloat(v *float64) *float64 {
	if v == nil || *v <= 0 {
		return nil
	}
	out := *v
	return &out
}

func trueOnly(v *bool) *bool {
	if v == nil || !*v {
		return nil
	}
	out := true
	return &out
}

func clamp01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}

// classifyProviderError tags a provider failure with an error kind. The
// SDKs expose failures as opaque errors, so kind detection is textual.
func classifyProviderError(err error) *ExtractionError {
	msg := strings.ToLower(err.Error())
	switch {
	case errors.Is(err, context.DeadlineExceeded) || strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		return &ExtractionError{Code: ExtractTimeout, Retryable: true, Err: err}
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "429") || strings.Contains(msg, "too many requests"):
		return &ExtractionError{Code: ExtractRateLimited, Retryable: true, Err: err}
	default:
		return &ExtractionError{Code: ExtractAPIError, Err: err}
	}
}

// stripFences removes a markdown code fence around a JSON payload. Ollama
// and some OpenRouter models wrap structured output despite instructions.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// truncateForError shortens a response for log and error messages.
func truncateForError(s string) string {
	if len(s) <= 200 {
		return s
	}
	return s[:200] + "..."
}
