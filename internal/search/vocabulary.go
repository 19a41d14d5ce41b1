package search

import "strings"

// allFilterFields enumerates every extractable filter field. An empty or
// unparseable query marks all of them ambiguous.
var allFilterFields = []string{
	"listing_type", "property_type", "price_min", "price_max", "location",
	"rooms_min", "rooms_max", "surface_area_min", "surface_area_max",
	"has_parking", "has_balcony", "has_garage", "is_furnished", "amenities",
}

// filterSchema is the JSON schema the extraction call must answer with.
var filterSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"listing_type":     map[string]any{"type": "string", "enum": []string{"rent", "sale"}},
		"property_type":    map[string]any{"type": "string", "enum": []string{"apartment", "house", "office", "land", "other"}},
		"price_min":        map[string]any{"type": "integer", "description": "minimum price in euros"},
		"price_max":        map[string]any{"type": "integer", "description": "maximum price in euros"},
		"location":         map[string]any{"type": "string", "description": "city or neighbourhood"},
		"rooms_min":        map[string]any{"type": "integer"},
		"rooms_max":        map[string]any{"type": "integer"},
		"surface_area_min": map[string]any{"type": "number", "description": "square meters"},
		"surface_area_max": map[string]any{"type": "number", "description": "square meters"},
		"has_parking":      map[string]any{"type": "boolean"},
		"has_balcony":      map[string]any{"type": "boolean"},
		"has_garage":       map[string]any{"type": "boolean"},
		"is_furnished":     map[string]any{"type": "boolean"},
		"amenities":        map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"confidence": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"overall":          map[string]any{"type": "number"},
				"per_field":        map[string]any{"type": "object", "additionalProperties": map[string]any{"type": "number"}},
				"ambiguous_fields": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			},
		},
	},
	"additionalProperties": false,
}

// extractionSystemPrompt teaches the model the Croatian real-estate
// vocabulary and the exact output contract. The three examples anchor the
// confidence scale.
const extractionSystemPrompt = `You extract structured real-estate search filters from user queries written in Croatian or English.

Return ONLY a JSON object with these optional fields:
- listing_type: "rent" or "sale"
- property_type: "apartment", "house", "office", "land" or "other"
- price_min, price_max: whole euros
- location: city or neighbourhood name
- rooms_min, rooms_max: whole numbers
- surface_area_min, surface_area_max: square meters
- has_parking, has_balcony, has_garage, is_furnished: true only when explicitly requested
- amenities: extra amenity keys such as "elevator", "garden", "pool", "sea_view", "air_conditioning", "pets_allowed"
- confidence: {"overall": 0..1, "per_field": {field: 0..1}, "ambiguous_fields": [fields needing clarification]}

Vocabulary:
1. Listing type: najam, iznajmljivanje, unajmiti, za najam, rent, rental -> rent. prodaja, kupnja, kupiti, for sale, buy -> sale.
2. Property type: stan, apartman, garsonijera, apartment, flat, studio -> apartment. kuca/kuća, vikendica, house, cottage -> house. poslovni prostor, ured, office -> office. zemljiste/zemljište, parcela, gradilište, land, plot -> land.
3. Prices: EUR / eura / € are euros. kn / kuna / HRK is the legacy currency: divide by 7.5345 and round to whole euros. "do X" -> price_max = X. "od X" -> price_min = X. "oko X" -> price_max = X with lower confidence. "€/mj", "mjesečno", "monthly" confirm a rental price.
4. Rooms: garsonijera -> 1 room and apartment. jednosoban -> 1, dvosoban -> 2, trosoban -> 3, četverosoban -> 4, peterosoban -> 5. "X soba/sobe" -> X. "X-bedroom" -> X. A named size sets rooms_min and rooms_max to the same value; "barem X soba" / "at least X rooms" sets only rooms_min.
5. Amenities: parking, parkirno mjesto, parkiralište -> has_parking. balkon, lođa, terasa -> has_balcony. garaža -> has_garage. namješten, opremljen, furnished -> is_furnished. lift, dizalo -> "elevator". vrt, garden -> "garden". bazen, pool -> "pool". pogled na more, sea view -> "sea_view". klima -> "air_conditioning". ljubimci, pet friendly -> "pets_allowed".

Rules:
1. Set only fields the query actually states. Never guess a location or a budget.
2. Booleans appear only when the user asks for the feature.
3. Score per_field for every field you set; put genuinely unclear fields in ambiguous_fields and lower overall accordingly.
4. A bare word like "nekretnina" or "property" carries no usable filters: return an empty object with overall at most 0.3 and all fields ambiguous.

Examples:

Query: "Tražim dvosobni stan za najam u Zagrebu do 700€ s parkingom"
{"listing_type":"rent","property_type":"apartment","rooms_min":2,"rooms_max":2,"price_max":700,"location":"Zagreb","has_parking":true,"confidence":{"overall":0.95,"per_field":{"listing_type":0.98,"property_type":0.98,"rooms_min":0.95,"rooms_max":0.95,"price_max":0.97,"location":0.98,"has_parking":0.9},"ambiguous_fields":[]}}

Query: "kupio bih kuću s vrtom i garažom u Splitu, budžet oko 250000 eura"
{"listing_type":"sale","property_type":"house","price_max":250000,"location":"Split","has_garage":true,"amenities":["garden"],"confidence":{"overall":0.9,"per_field":{"listing_type":0.95,"property_type":0.97,"price_max":0.8,"location":0.97,"has_garage":0.92,"amenities":0.85},"ambiguous_fields":["price_max"]}}

Query: "furnished two bedroom flat to rent, 60-80 m2"
{"listing_type":"rent","property_type":"apartment","rooms_min":2,"rooms_max":2,"is_furnished":true,"surface_area_min":60,"surface_area_max":80,"confidence":{"overall":0.82,"per_field":{"listing_type":0.95,"property_type":0.95,"rooms_min":0.9,"rooms_max":0.9,"is_furnished":0.92,"surface_area_min":0.88,"surface_area_max":0.88},"ambiguous_fields":["location"]}}`

// Query language codes.
const (
	LanguageCroatian = "hr"
	LanguageEnglish  = "en"
	LanguageMixed    = "mixed"
)

// Marker lists hold only distinctive terms; words common to both languages
// (parking, garage brand names, city names) are deliberately absent. Every
// marker is at least four characters so short English articles never match
// inside Croatian tokens.
var croatianMarkers = []string{
	"stan", "kuca", "najam", "najmu", "prodaj", "kupnj", "kupio", "kupila",
	"trazim", "soba", "sobe", "sobn", "cijen", "eura", "mjesec", "namjest",
	"zemljist", "garsonijer", "vikendic", "poslovni", "blizu", "centru",
	"centra", "kvadrat", "budzet", "oglas",
}

var englishMarkers = []string{
	"apartment", "house", "rent", "sale", "looking", "bedroom", "furnished",
	"under", "near", "square", "flat", "office", "monthly", "cheap", "with",
	"need", "want", "searching", "budget", "price", "center", "downtown",
}

// DetectLanguage classifies a query as Croatian, English or mixed by
// counting keyword hits per token. Croatian diacritics are a hard signal;
// with no hits at all the market default is Croatian.
func DetectLanguage(text string) string {
	hr, en := 0, 0
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		tok = strings.Trim(tok, ".,!?;:()\"'")
		if strings.ContainsAny(tok, "čćžšđ") || matchesMarker(tok, croatianMarkers) {
			hr++
			continue
		}
		if matchesMarker(tok, englishMarkers) {
			en++
		}
	}
	switch {
	case hr > 0 && en > 0:
		return LanguageMixed
	case en > 0:
		return LanguageEnglish
	default:
		return LanguageCroatian
	}
}

func matchesMarker(token string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(token, m) {
			return true
		}
	}
	return false
}
