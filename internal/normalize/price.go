// Package normalize maps raw scraped strings (prices, locations, amenity
// tokens) to the canonical values stored on a listing. All functions are
// pure and idempotent.
package normalize

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/nyka2002/stanbot/internal/domain"
)

// HRKPerEUR is the fixed official conversion rate used for legacy kuna
// prices still found on older ads.
const HRKPerEUR = 7.5345

// PriceResult is a normalized price. Amount is whole euros.
type PriceResult struct {
	Amount    int    `json:"amount"`
	Currency  string `json:"currency"`
	IsMonthly bool   `json:"is_monthly"`
}

var (
	numericTokenRe = regexp.MustCompile(`\d[\d.,]*`)

	monthlyMarkers = []string{"/mj", "mjesec", "mj.", "najam", "monthly"}
)

// NormalizePrice parses a raw price string into whole euros.
//
// The first numeric token is taken; thousands and decimal separators are
// disambiguated by position: when the last comma follows the last dot the
// string is European (dot thousands, comma decimal); when the last dot
// follows the last comma and exactly three digits trail it, the dot is a
// thousands separator; anything else is read as US notation. Kuna amounts
// (kn, hrk) are converted at the fixed HRKPerEUR rate and rounded to
// whole euros. The monthly flag is set only for rentals whose text carries
// a per-month marker.
func NormalizePrice(raw string, listingType domain.ListingType) PriceResult {
	lower := strings.ToLower(raw)

	res := PriceResult{Currency: "EUR"}
	if listingType == domain.ListingRent {
		for _, m := range monthlyMarkers {
			if strings.Contains(lower, m) {
				res.IsMonthly = true
				break
			}
		}
	}

	token := numericTokenRe.FindString(raw)
	if token == "" {
		return res
	}
	token = strings.Trim(token, ".,")

	value := parseSeparatedNumber(token)
	if strings.Contains(lower, "kn") || strings.Contains(lower, "hrk") {
		value /= HRKPerEUR
	}
	if value < 0 {
		value = 0
	}

	// Whole euros, nearest (95000 kn → 12608 €).
	res.Amount = int(math.Round(value))
	return res
}

// parseSeparatedNumber resolves mixed `.`/`,` separators and parses the
// token as a float.
func parseSeparatedNumber(token string) float64 {
	lastDot := strings.LastIndex(token, ".")
	lastComma := strings.LastIndex(token, ",")

	var cleaned string
	switch {
	case lastComma > lastDot:
		// European: dots group thousands, comma starts the decimals.
		cleaned = strings.ReplaceAll(token, ".", "")
		cleaned = strings.Replace(cleaned, ",", ".", 1)
	case lastDot > lastComma && len(token)-lastDot-1 == 3:
		// European thousands: 1.500 means fifteen hundred.
		cleaned = strings.ReplaceAll(token, ".", "")
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	default:
		// US: commas group thousands, dot starts the decimals.
		cleaned = strings.ReplaceAll(token, ",", "")
	}

	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return value
}
