package normalize

import "strings"

// AmenityResult carries the four first-class amenity booleans plus any
// additional canonical amenity keys found.
type AmenityResult struct {
	HasParking  bool            `json:"has_parking"`
	HasBalcony  bool            `json:"has_balcony"`
	HasGarage   bool            `json:"has_garage"`
	IsFurnished bool            `json:"is_furnished"`
	Additional  map[string]bool `json:"additional,omitempty"`
}

// amenityTable maps Croatian (and a few English) markers to canonical
// amenity keys. Matching is substring-based on lowercased text, so stems
// cover the inflected forms ("garaž" matches "garaža", "garažno mjesto").
var amenityTable = []struct {
	marker    string
	canonical string
}{
	{"parking", "parking"},
	{"parkirno", "parking"},
	{"parkirna", "parking"},
	{"parkiralište", "parking"},
	{"parkiraliste", "parking"},
	{"balkon", "balcony"},
	{"lođa", "balcony"},
	{"lodja", "balcony"},
	{"loggia", "balcony"},
	{"garaž", "garage"},
	{"garaz", "garage"},
	{"garage", "garage"},
	{"namješten", "furnished"},
	{"namjesten", "furnished"},
	{"opremljen", "furnished"},
	{"furnished", "furnished"},
	{"lift", "elevator"},
	{"dizalo", "elevator"},
	{"klima", "air_conditioning"},
	{"centralno grijanje", "central_heating"},
	{"etažno grijanje", "floor_heating"},
	{"etazno grijanje", "floor_heating"},
	{"teras", "terrace"},
	{"vrt", "garden"},
	{"bazen", "pool"},
	{"podrum", "basement"},
	{"tavan", "attic"},
	{"kamin", "fireplace"},
	{"internet", "internet"},
	{"kabelska", "cable_tv"},
	{"ljubimci", "pets_allowed"},
	{"pet friendly", "pets_allowed"},
	{"novogradnja", "new_building"},
	{"pogled na more", "sea_view"},
	{"alarm", "alarm"},
	{"videonadzor", "video_surveillance"},
	{"spremište", "storage"},
	{"spremiste", "storage"},
	{"ostava", "storage"},
}

// unfurnishedMarkers explicitly negate the furnished flag. They are checked
// before the table so "nenamješteno" never reads as furnished.
var unfurnishedMarkers = []string{
	"nenamješten", "nenamjesten", "bez namještaja", "bez namjestaja",
	"prazan", "unfurnished",
}

// MapAmenities resolves raw amenity tokens and an optional description blob
// into canonical amenity flags. Token hits and description hits merge with
// boolean OR; an explicit unfurnished marker anywhere wins over any
// furnished marker.
func MapAmenities(tokens []string, description string) AmenityResult {
	res := AmenityResult{Additional: make(map[string]bool)}
	lowerDesc := strings.ToLower(description)

	unfurnished := containsAny(lowerDesc, unfurnishedMarkers)
	for _, t := range tokens {
		if containsAny(strings.ToLower(t), unfurnishedMarkers) {
			unfurnished = true
			break
		}
	}

	apply := func(text string) {
		for _, e := range amenityTable {
			if !strings.Contains(text, e.marker) {
				continue
			}
			switch e.canonical {
			case "parking":
				res.HasParking = true
			case "balcony":
				res.HasBalcony = true
			case "garage":
				res.HasGarage = true
			case "furnished":
				if !unfurnished {
					res.IsFurnished = true
				}
			default:
				res.Additional[e.canonical] = true
			}
		}
	}

	for _, t := range tokens {
		apply(strings.ToLower(t))
	}
	apply(lowerDesc)

	return res
}

func containsAny(text string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}
