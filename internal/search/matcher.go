package search

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/nyka2002/stanbot/internal/domain"
)

// Weights set the relative importance of filter fields in soft matching.
type Weights struct {
	Price        float64
	Location     float64
	Rooms        float64
	ListingType  float64
	PropertyType float64
	SurfaceArea  float64
	Amenities    float64
}

// DefaultWeights mirror how users weigh criteria in practice: budget and
// location dominate, amenities are nice-to-haves.
func DefaultWeights() Weights {
	return Weights{
		Price:        1.5,
		Location:     1.3,
		Rooms:        1.2,
		ListingType:  1.1,
		PropertyType: 1.0,
		SurfaceArea:  1.0,
		Amenities:    0.8,
	}
}

// PartialMatch records a field that matched imperfectly.
type PartialMatch struct {
	Field      string  `json:"field"`
	Expected   string  `json:"expected"`
	Actual     string  `json:"actual"`
	Score      float64 `json:"score"`
	Percentage int     `json:"percentage"`
}

// MatchResult is the soft evaluation of one listing against the filters.
// Score is matched weight over total weight; an empty filter set scores 1.
type MatchResult struct {
	Score     float64        `json:"score"`
	Matched   []string       `json:"matched,omitempty"`
	Unmatched []string       `json:"unmatched,omitempty"`
	Partials  []PartialMatch `json:"partials,omitempty"`
}

const (
	// priceTolerance is the soft band around a price bound: a listing up
	// to 10% outside scores linearly down to zero.
	priceTolerance = 0.10

	// surfaceTolerance is the soft band around a surface bound.
	surfaceTolerance = 0.15

	// hardPriceFactor caps acceptable prices at 115% of the budget in the
	// hard filter. Integer percent math keeps the boundary exact.
	hardPriceFactor = 115

	unknownScore = 0.5
)

// Matcher scores listings against extracted filters.
type Matcher struct {
	weights Weights
}

// NewMatcher builds a matcher; pass DefaultWeights unless tuning.
func NewMatcher(w Weights) *Matcher {
	return &Matcher{weights: w}
}

// Match evaluates one listing against the filters, field by field.
func (m *Matcher) Match(l *domain.Listing, f domain.Filters) MatchResult {
	acc := &matchAcc{}

	m.matchPrice(acc, l, f)
	m.matchLocation(acc, l, f)
	m.matchRooms(acc, l, f)
	if f.ListingType != nil {
		acc.exact("listing_type", m.weights.ListingType,
			l.ListingType == *f.ListingType)
	}
	if f.PropertyType != nil {
		acc.exact("property_type", m.weights.PropertyType,
			l.PropertyType == *f.PropertyType)
	}
	m.matchSurface(acc, l, f)
	if f.HasParking != nil {
		acc.exact("has_parking", m.weights.Amenities, l.HasParking == *f.HasParking)
	}
	if f.HasBalcony != nil {
		acc.exact("has_balcony", m.weights.Amenities, l.HasBalcony == *f.HasBalcony)
	}
	if f.HasGarage != nil {
		acc.exact("has_garage", m.weights.Amenities, l.HasGarage == *f.HasGarage)
	}
	if f.IsFurnished != nil {
		acc.exact("is_furnished", m.weights.Amenities, l.IsFurnished == *f.IsFurnished)
	}
	m.matchAmenityList(acc, l, f)

	res := acc.res
	if acc.totalWeight == 0 {
		res.Score = 1
	} else {
		res.Score = acc.matchedWeight / acc.totalWeight
	}
	return res
}

func (m *Matcher) matchPrice(acc *matchAcc, l *domain.Listing, f domain.Filters) {
	if f.PriceMin == nil && f.PriceMax == nil {
		return
	}
	w := m.weights.Price
	price := l.Price

	if f.PriceMax != nil && price > *f.PriceMax {
		max := *f.PriceMax
		// Integer percent math so a price at exactly +10% still counts as
		// a (zero-scored) partial rather than a miss.
		if price*100 <= max*110 {
			overage := float64(price-max) / float64(max)
			acc.partial("price", w, clamp01(1-overage/priceTolerance),
				fmt.Sprintf("<= %d", max), strconv.Itoa(price))
		} else {
			acc.miss("price", w)
		}
		return
	}
	if f.PriceMin != nil && price < *f.PriceMin {
		min := *f.PriceMin
		if price*100 >= min*90 {
			shortfall := float64(min-price) / float64(min)
			acc.partial("price", w, clamp01(1-shortfall/priceTolerance),
				fmt.Sprintf(">= %d", min), strconv.Itoa(price))
		} else {
			acc.miss("price", w)
		}
		return
	}
	acc.full("price", w)
}

func (m *Matcher) matchLocation(acc *matchAcc, l *domain.Listing, f domain.Filters) {
	if f.Location == nil {
		return
	}
	want := strings.ToLower(strings.TrimSpace(*f.Location))
	if want == "" {
		return
	}
	w := m.weights.Location
	city := strings.ToLower(l.City)
	address := strings.ToLower(l.Address)

	switch {
	case city != "" && strings.Contains(city, want),
		address != "" && strings.Contains(address, want):
		acc.full("location", w)
	case city != "" && strings.Contains(want, city):
		// The filter names somewhere inside the listing's city, e.g. a
		// district query against a city-level listing.
		acc.partial("location", w, 0.5, *f.Location, l.City)
	default:
		acc.miss("location", w)
	}
}

func (m *Matcher) matchRooms(acc *matchAcc, l *domain.Listing, f domain.Filters) {
	if f.RoomsMin == nil && f.RoomsMax == nil {
		return
	}
	w := m.weights.Rooms
	expected := roomRange(f)

	if l.Rooms == nil {
		acc.partial("rooms", w, unknownScore, expected, "unknown")
		return
	}
	rooms := *l.Rooms
	below := f.RoomsMin != nil && rooms < *f.RoomsMin
	above := f.RoomsMax != nil && rooms > *f.RoomsMax

	switch {
	case !below && !above:
		acc.full("rooms", w)
	case below && *f.RoomsMin-rooms == 1,
		above && rooms-*f.RoomsMax == 1:
		acc.partial("rooms", w, 0.7, expected, strconv.Itoa(rooms))
	default:
		acc.miss("rooms", w)
	}
}

func (m *Matcher) matchSurface(acc *matchAcc, l *domain.Listing, f domain.Filters) {
	if f.SurfaceAreaMin == nil && f.SurfaceAreaMax == nil {
		return
	}
	w := m.weights.SurfaceArea
	expected := surfaceRange(f)

	if l.SurfaceArea == nil {
		acc.partial("surface_area", w, unknownScore, expected, "unknown")
		return
	}
	area := *l.SurfaceArea
	actual := fmt.Sprintf("%gm²", area)

	if f.SurfaceAreaMax != nil && area > *f.SurfaceAreaMax {
		over := (area - *f.SurfaceAreaMax) / *f.SurfaceAreaMax
		if over <= surfaceTolerance {
			acc.partial("surface_area", w, clamp01(1-over/surfaceTolerance), expected, actual)
		} else {
			acc.miss("surface_area", w)
		}
		return
	}
	if f.SurfaceAreaMin != nil && area < *f.SurfaceAreaMin {
		short := (*f.SurfaceAreaMin - area) / *f.SurfaceAreaMin
		if short <= surfaceTolerance {
			acc.partial("surface_area", w, clamp01(1-short/surfaceTolerance), expected, actual)
		} else {
			acc.miss("surface_area", w)
		}
		return
	}
	acc.full("surface_area", w)
}

func (m *Matcher) matchAmenityList(acc *matchAcc, l *domain.Listing, f domain.Filters) {
	if len(f.Amenities) == 0 {
		return
	}
	w := m.weights.Amenities
	hits := 0
	for _, key := range f.Amenities {
		if l.Amenities[key] {
			hits++
		}
	}
	switch {
	case hits == len(f.Amenities):
		acc.full("amenities", w)
	case hits == 0:
		acc.miss("amenities", w)
	default:
		score := float64(hits) / float64(len(f.Amenities))
		acc.partial("amenities", w, score,
			strings.Join(f.Amenities, ", "),
			fmt.Sprintf("%d of %d", hits, len(f.Amenities)))
	}
}

// HardPass reports whether a listing survives the hard requirements: the
// listing type must equal the filter when one is set, and the price must
// not exceed PriceMax by more than 15%. Everything else stays soft.
func HardPass(l *domain.Listing, f domain.Filters) bool {
	if f.ListingType != nil && l.ListingType != *f.ListingType {
		return false
	}
	if f.PriceMax != nil && l.Price*100 > *f.PriceMax*hardPriceFactor {
		return false
	}
	return true
}

// FilterHard returns the listings that pass HardPass, preserving order.
func FilterHard(listings []domain.Listing, f domain.Filters) []domain.Listing {
	out := make([]domain.Listing, 0, len(listings))
	for i := range listings {
		if HardPass(&listings[i], f) {
			out = append(out, listings[i])
		}
	}
	return out
}

// matchAcc accumulates weighted field outcomes for one Match call.
type matchAcc struct {
	res           MatchResult
	totalWeight   float64
	matchedWeight float64
}

func (a *matchAcc) full(field string, w float64) {
	a.totalWeight += w
	a.matchedWeight += w
	a.res.Matched = append(a.res.Matched, field)
}

func (a *matchAcc) partial(field string, w, score float64, expected, actual string) {
	a.totalWeight += w
	a.matchedWeight += score * w
	a.res.Partials = append(a.res.Partials, PartialMatch{
		Field:      field,
		Expected:   expected,
		Actual:     actual,
		Score:      score,
		Percentage: int(math.Round(score * 100)),
	})
}

func (a *matchAcc) miss(field string, w float64) {
	a.totalWeight += w
	a.res.Unmatched = append(a.res.Unmatched, field)
}

func (a *matchAcc) exact(field string, w float64, ok bool) {
	if ok {
		a.full(field, w)
	} else {
		a.miss(field, w)
	}
}

func roomRange(f domain.Filters) string {
	switch {
	case f.RoomsMin != nil && f.RoomsMax != nil && *f.RoomsMin == *f.RoomsMax:
		return strconv.Itoa(*f.RoomsMin)
	case f.RoomsMin != nil && f.RoomsMax != nil:
		return fmt.Sprintf("%d-%d", *f.RoomsMin, *f.RoomsMax)
	case f.RoomsMin != nil:
		return fmt.Sprintf(">= %d", *f.RoomsMin)
	default:
		return fmt.Sprintf("<= %d", *f.RoomsMax)
	}
}

func surfaceRange(f domain.Filters) string {
	switch {
	case f.SurfaceAreaMin != nil && f.SurfaceAreaMax != nil:
		return fmt.Sprintf("%g-%gm²", *f.SurfaceAreaMin, *f.SurfaceAreaMax)
	case f.SurfaceAreaMin != nil:
		return fmt.Sprintf(">= %gm²", *f.SurfaceAreaMin)
	default:
		return fmt.Sprintf("<= %gm²", *f.SurfaceAreaMax)
	}
}
