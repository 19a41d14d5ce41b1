package chat

import (
	"fmt"

	"github.com/nyka2002/stanbot/internal/domain"
)

// Assistant messages, in Croatian like the audience. Constants so tests
// can assert on them.
const (
	msgClarify         = "Trebam još koji detalj da pronađem odgovarajuće oglase."
	msgNeedMore        = "Recite mi još nešto o tome što tražite, na primjer grad ili budžet."
	msgNoResults       = "Nažalost, nisam pronašao nijedan oglas za te kriterije. Pokušajmo proširiti pretragu."
	msgProviderTrouble = "Trenutno ne mogu obraditi vaš upit. Pokušajte ponovno za nekoliko trenutaka."
	msgSearchTrouble   = "Pretraga trenutno nije dostupna. Pokušajte ponovno malo kasnije."
)

const (
	askListingType  = "Tražite li najam ili kupnju?"
	askPropertyType = "Koju vrstu nekretnine tražite, npr. stan ili kuću?"
	askLocation     = "U kojem gradu ili kvartu tražite?"
	askBudget       = "Koji vam je okvirni budžet u eurima?"
	askRooms        = "Koliko soba vam treba?"
	askSurface      = "Koliko kvadrata otprilike tražite?"
	askBroaden      = "Želite li proširiti pretragu, npr. povećati budžet ili pogledati susjedne kvartove?"
	askNarrow       = "Želite li suziti izbor, npr. po cijeni, kvartu ili broju soba?"
)

const maxFollowUps = 3

// fieldQuestions maps extractor field names to a clarifying question.
var fieldQuestions = map[string]string{
	"listing_type":     askListingType,
	"property_type":    askPropertyType,
	"location":         askLocation,
	"price_min":        askBudget,
	"price_max":        askBudget,
	"rooms_min":        askRooms,
	"rooms_max":        askRooms,
	"surface_area_min": askSurface,
	"surface_area_max": askSurface,
}

// resultMessage summarizes a completed search. Croatian agreement: 1, 21,
// 31... take the singular, 11 does not.
func resultMessage(n int) string {
	if n == 0 {
		return msgNoResults
	}
	if n%10 == 1 && n%100 != 11 {
		return fmt.Sprintf("Pronašao sam %d oglas koji odgovara vašim kriterijima.", n)
	}
	return fmt.Sprintf("Pronašao sam %d oglasa koji odgovaraju vašim kriterijima.", n)
}

// followUps builds at most three follow-up questions after a search: a
// broadening hint when nothing matched, a question per missing high-value
// filter, a narrowing hint when the result set is wide.
func followUps(f domain.Filters, results int) []string {
	var qs []string
	if results == 0 {
		qs = append(qs, askBroaden)
	}
	qs = append(qs, missingFilterQuestions(f)...)
	if results > narrowAbove {
		qs = append(qs, askNarrow)
	}
	return capQuestions(qs)
}

// clarifyQuestions asks about the fields the extractor flagged as
// ambiguous first, then about missing high-value filters.
func clarifyQuestions(f domain.Filters, ambiguous []string) []string {
	var qs []string
	for _, field := range ambiguous {
		if q, ok := fieldQuestions[field]; ok {
			qs = append(qs, q)
		}
	}
	qs = append(qs, missingFilterQuestions(f)...)
	return capQuestions(dedupe(qs))
}

func missingFilterQuestions(f domain.Filters) []string {
	var qs []string
	if f.ListingType == nil {
		qs = append(qs, askListingType)
	}
	if f.Location == nil {
		qs = append(qs, askLocation)
	}
	if f.PriceMax == nil {
		qs = append(qs, askBudget)
	}
	if f.RoomsMin == nil && f.RoomsMax == nil {
		qs = append(qs, askRooms)
	}
	return qs
}

func dedupe(qs []string) []string {
	seen := make(map[string]bool, len(qs))
	out := qs[:0]
	for _, q := range qs {
		if !seen[q] {
			seen[q] = true
			out = append(out, q)
		}
	}
	return out
}

func capQuestions(qs []string) []string {
	if len(qs) > maxFollowUps {
		qs = qs[:maxFollowUps]
	}
	return qs
}
