package search

import (
	"math"
	"testing"

	"github.com/nyka2002/stanbot/internal/domain"
)

func intPtr(i int) *int                                 { return &i }
func floatPtr(f float64) *float64                       { return &f }
func strPtr(s string) *string                           { return &s }
func ltPtr(lt domain.ListingType) *domain.ListingType   { return &lt }
func ptPtr(pt domain.PropertyType) *domain.PropertyType { return &pt }
func boolPtr(b bool) *bool                              { return &b }

// testListing is a two-room Zagreb rental at 700€ with parking.
func testListing() *domain.Listing {
	return &domain.Listing{
		ID:           "lst-1",
		Title:        "Dvosoban stan u centru",
		ListingType:  domain.ListingRent,
		PropertyType: domain.PropertyApartment,
		Price:        700,
		City:         "Zagreb",
		Address:      "Ilica 15",
		Rooms:        intPtr(2),
		SurfaceArea:  floatPtr(55),
		HasParking:   true,
		Amenities:    map[string]bool{"elevator": true, "garden": true},
	}
}

func partialFor(t *testing.T, res MatchResult, field string) PartialMatch {
	t.Helper()
	for _, p := range res.Partials {
		if p.Field == field {
			return p
		}
	}
	t.Fatalf("no partial for %q in %+v", field, res.Partials)
	return PartialMatch{}
}

func contains(fields []string, field string) bool {
	for _, f := range fields {
		if f == field {
			return true
		}
	}
	return false
}

// --- Match Tests ---

func TestMatcher_Match_NoFilters(t *testing.T) {
	m := NewMatcher(DefaultWeights())

	res := m.Match(testListing(), domain.Filters{})

	if res.Score != 1 {
		t.Errorf("empty filters must score 1, got %v", res.Score)
	}
	if len(res.Matched) != 0 || len(res.Unmatched) != 0 || len(res.Partials) != 0 {
		t.Errorf("empty filters must report no fields, got %+v", res)
	}
}

func TestMatcher_Match_AllFieldsMatch(t *testing.T) {
	m := NewMatcher(DefaultWeights())
	f := domain.Filters{
		ListingType:    ltPtr(domain.ListingRent),
		PropertyType:   ptPtr(domain.PropertyApartment),
		PriceMax:       intPtr(800),
		Location:       strPtr("Zagreb"),
		RoomsMin:       intPtr(2),
		RoomsMax:       intPtr(2),
		SurfaceAreaMin: floatPtr(50),
		HasParking:     boolPtr(true),
		Amenities:      []string{"elevator"},
	}

	res := m.Match(testListing(), f)

	if res.Score != 1 {
		t.Errorf("expected score 1, got %v", res.Score)
	}
	if len(res.Unmatched) != 0 || len(res.Partials) != 0 {
		t.Errorf("expected clean match, got %+v", res)
	}
	if len(res.Matched) != 8 {
		t.Errorf("expected 8 matched fields, got %v", res.Matched)
	}
}

func TestMatcher_Match_PriceTenPercentOver(t *testing.T) {
	m := NewMatcher(DefaultWeights())
	l := testListing()
	l.Price = 770

	res := m.Match(l, domain.Filters{PriceMax: intPtr(700)})

	if contains(res.Unmatched, "price") {
		t.Fatal("price at exactly +10% must be partial, not unmatched")
	}
	p := partialFor(t, res, "price")
	if p.Score > 1e-9 {
		t.Errorf("expected partial score 0 at the tolerance edge, got %v", p.Score)
	}
	if p.Expected != "<= 700" || p.Actual != "770" {
		t.Errorf("unexpected partial detail: %+v", p)
	}
}

func TestMatcher_Match_PriceBeyondTolerance(t *testing.T) {
	m := NewMatcher(DefaultWeights())
	l := testListing()
	l.Price = 771

	res := m.Match(l, domain.Filters{PriceMax: intPtr(700)})

	if !contains(res.Unmatched, "price") {
		t.Errorf("price past +10%% must be unmatched, got %+v", res)
	}
	if res.Score != 0 {
		t.Errorf("single missed field must score 0, got %v", res.Score)
	}
}

func TestMatcher_Match_PriceHalfwayOverBudget(t *testing.T) {
	m := NewMatcher(DefaultWeights())
	l := testListing()
	l.Price = 735

	res := m.Match(l, domain.Filters{PriceMax: intPtr(700)})

	p := partialFor(t, res, "price")
	if math.Abs(p.Score-0.5) > 1e-9 {
		t.Errorf("expected partial score 0.5 at +5%%, got %v", p.Score)
	}
	if p.Percentage != 50 {
		t.Errorf("expected 50%%, got %d%%", p.Percentage)
	}
}

func TestMatcher_Match_PriceBelowMinimum(t *testing.T) {
	m := NewMatcher(DefaultWeights())
	l := testListing()
	l.Price = 570

	res := m.Match(l, domain.Filters{PriceMin: intPtr(600)})
	p := partialFor(t, res, "price")
	if math.Abs(p.Score-0.5) > 1e-9 {
		t.Errorf("expected partial score 0.5 at -5%%, got %v", p.Score)
	}

	l.Price = 500
	res = m.Match(l, domain.Filters{PriceMin: intPtr(600)})
	if !contains(res.Unmatched, "price") {
		t.Errorf("price far below minimum must be unmatched, got %+v", res)
	}
}

func TestMatcher_Match_RoomsOffByOne(t *testing.T) {
	m := NewMatcher(DefaultWeights())
	l := testListing()
	l.Rooms = intPtr(3)
	f := domain.Filters{RoomsMin: intPtr(2), RoomsMax: intPtr(2)}

	res := m.Match(l, f)

	p := partialFor(t, res, "rooms")
	if p.Score != 0.7 {
		t.Errorf("expected 0.7 for off-by-one rooms, got %v", p.Score)
	}
	if p.Expected != "2" || p.Actual != "3" {
		t.Errorf("unexpected partial detail: %+v", p)
	}
}

func TestMatcher_Match_RoomsUnknown(t *testing.T) {
	m := NewMatcher(DefaultWeights())
	l := testListing()
	l.Rooms = nil

	res := m.Match(l, domain.Filters{RoomsMin: intPtr(2)})

	p := partialFor(t, res, "rooms")
	if p.Score != 0.5 {
		t.Errorf("expected 0.5 for unknown rooms, got %v", p.Score)
	}
	if p.Expected != ">= 2" || p.Actual != "unknown" {
		t.Errorf("unexpected partial detail: %+v", p)
	}
}

func TestMatcher_Match_RoomsFarOff(t *testing.T) {
	m := NewMatcher(DefaultWeights())
	l := testListing()
	l.Rooms = intPtr(4)

	res := m.Match(l, domain.Filters{RoomsMax: intPtr(2)})

	if !contains(res.Unmatched, "rooms") {
		t.Errorf("rooms off by two must be unmatched, got %+v", res)
	}
}

func TestMatcher_Match_LocationCaseInsensitive(t *testing.T) {
	m := NewMatcher(DefaultWeights())

	res := m.Match(testListing(), domain.Filters{Location: strPtr("zagreb")})

	if !contains(res.Matched, "location") {
		t.Errorf("expected case-insensitive city match, got %+v", res)
	}
}

func TestMatcher_Match_LocationViaAddress(t *testing.T) {
	m := NewMatcher(DefaultWeights())

	res := m.Match(testListing(), domain.Filters{Location: strPtr("Ilica")})

	if !contains(res.Matched, "location") {
		t.Errorf("expected address match, got %+v", res)
	}
}

func TestMatcher_Match_LocationDistrictQuery(t *testing.T) {
	m := NewMatcher(DefaultWeights())

	res := m.Match(testListing(), domain.Filters{Location: strPtr("Zagreb, Trešnjevka")})

	p := partialFor(t, res, "location")
	if p.Score != 0.5 {
		t.Errorf("expected 0.5 for district query on city listing, got %v", p.Score)
	}
}

func TestMatcher_Match_LocationMismatch(t *testing.T) {
	m := NewMatcher(DefaultWeights())

	res := m.Match(testListing(), domain.Filters{Location: strPtr("Split")})

	if !contains(res.Unmatched, "location") {
		t.Errorf("expected location miss, got %+v", res)
	}
}

func TestMatcher_Match_SurfaceWithinTolerance(t *testing.T) {
	m := NewMatcher(DefaultWeights())
	l := testListing()
	l.SurfaceArea = floatPtr(66)

	res := m.Match(l, domain.Filters{SurfaceAreaMax: floatPtr(60)})

	p := partialFor(t, res, "surface_area")
	if math.Abs(p.Score-1.0/3.0) > 1e-9 {
		t.Errorf("expected score 1/3 at +10%% of a 15%% band, got %v", p.Score)
	}
}

func TestMatcher_Match_SurfaceUnknown(t *testing.T) {
	m := NewMatcher(DefaultWeights())
	l := testListing()
	l.SurfaceArea = nil

	res := m.Match(l, domain.Filters{SurfaceAreaMin: floatPtr(50)})

	p := partialFor(t, res, "surface_area")
	if p.Score != 0.5 {
		t.Errorf("expected 0.5 for unknown surface, got %v", p.Score)
	}
}

func TestMatcher_Match_WeightedScore(t *testing.T) {
	m := NewMatcher(DefaultWeights())
	f := domain.Filters{
		PriceMax: intPtr(800),     // full, weight 1.5
		Location: strPtr("Split"), // miss, weight 1.3
	}

	res := m.Match(testListing(), f)

	want := 1.5 / 2.8
	if math.Abs(res.Score-want) > 1e-9 {
		t.Errorf("expected %v, got %v", want, res.Score)
	}
}

func TestMatcher_Match_AmenityFlagMismatch(t *testing.T) {
	m := NewMatcher(DefaultWeights())

	res := m.Match(testListing(), domain.Filters{HasBalcony: boolPtr(true)})

	if !contains(res.Unmatched, "has_balcony") {
		t.Errorf("expected has_balcony miss, got %+v", res)
	}
}

func TestMatcher_Match_AmenityListPartial(t *testing.T) {
	m := NewMatcher(DefaultWeights())

	res := m.Match(testListing(), domain.Filters{Amenities: []string{"elevator", "pool"}})

	p := partialFor(t, res, "amenities")
	if p.Score != 0.5 {
		t.Errorf("expected 0.5 for one of two amenities, got %v", p.Score)
	}
	if p.Actual != "1 of 2" {
		t.Errorf("unexpected actual: %q", p.Actual)
	}
}

// --- Hard Filter Tests ---

func TestHardPass_ListingTypeMismatch(t *testing.T) {
	f := domain.Filters{ListingType: ltPtr(domain.ListingSale)}

	if HardPass(testListing(), f) {
		t.Error("rent listing must not pass a sale filter")
	}
}

func TestHardPass_PriceCap(t *testing.T) {
	f := domain.Filters{PriceMax: intPtr(700)}
	l := testListing()

	l.Price = 805
	if !HardPass(l, f) {
		t.Error("price at exactly +15% must pass the hard filter")
	}

	l.Price = 806
	if HardPass(l, f) {
		t.Error("price past +15% must be dropped")
	}
}

func TestHardPass_NoFilters(t *testing.T) {
	if !HardPass(testListing(), domain.Filters{}) {
		t.Error("empty filters must pass everything")
	}
}

func TestFilterHard_PreservesOrder(t *testing.T) {
	a, b, c := *testListing(), *testListing(), *testListing()
	a.ID, b.ID, c.ID = "a", "b", "c"
	b.ListingType = domain.ListingSale

	got := FilterHard([]domain.Listing{a, b, c},
		domain.Filters{ListingType: ltPtr(domain.ListingRent)})

	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "c" {
		t.Errorf("expected [a c], got %+v", got)
	}
}
