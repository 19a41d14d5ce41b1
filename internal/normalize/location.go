package normalize

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// LocationResult is a canonicalized location. Region is the county and may
// be empty for cities outside the lookup table.
type LocationResult struct {
	City    string `json:"city"`
	Address string `json:"address,omitempty"`
	Region  string `json:"region,omitempty"`
}

type cityEntry struct {
	name   string
	region string
}

// cities maps the lowercased canonical form to the city and its county.
var cities = map[string]cityEntry{
	"zagreb":          {"Zagreb", "Grad Zagreb"},
	"split":           {"Split", "Splitsko-dalmatinska"},
	"rijeka":          {"Rijeka", "Primorsko-goranska"},
	"osijek":          {"Osijek", "Osječko-baranjska"},
	"zadar":           {"Zadar", "Zadarska"},
	"velika gorica":   {"Velika Gorica", "Zagrebačka"},
	"slavonski brod":  {"Slavonski Brod", "Brodsko-posavska"},
	"pula":            {"Pula", "Istarska"},
	"karlovac":        {"Karlovac", "Karlovačka"},
	"sisak":           {"Sisak", "Sisačko-moslavačka"},
	"varaždin":        {"Varaždin", "Varaždinska"},
	"šibenik":         {"Šibenik", "Šibensko-kninska"},
	"dubrovnik":       {"Dubrovnik", "Dubrovačko-neretvanska"},
	"bjelovar":        {"Bjelovar", "Bjelovarsko-bilogorska"},
	"kaštela":         {"Kaštela", "Splitsko-dalmatinska"},
	"samobor":         {"Samobor", "Zagrebačka"},
	"vinkovci":        {"Vinkovci", "Vukovarsko-srijemska"},
	"koprivnica":      {"Koprivnica", "Koprivničko-križevačka"},
	"đakovo":          {"Đakovo", "Osječko-baranjska"},
	"vukovar":         {"Vukovar", "Vukovarsko-srijemska"},
	"čakovec":         {"Čakovec", "Međimurska"},
	"požega":          {"Požega", "Požeško-slavonska"},
	"zaprešić":        {"Zaprešić", "Zagrebačka"},
	"solin":           {"Solin", "Splitsko-dalmatinska"},
	"virovitica":      {"Virovitica", "Virovitičko-podravska"},
	"županja":         {"Županja", "Vukovarsko-srijemska"},
	"kutina":          {"Kutina", "Sisačko-moslavačka"},
	"metković":        {"Metković", "Dubrovačko-neretvanska"},
	"sinj":            {"Sinj", "Splitsko-dalmatinska"},
	"petrinja":        {"Petrinja", "Sisačko-moslavačka"},
	"nova gradiška":   {"Nova Gradiška", "Brodsko-posavska"},
	"makarska":        {"Makarska", "Splitsko-dalmatinska"},
	"knin":            {"Knin", "Šibensko-kninska"},
	"rovinj":          {"Rovinj", "Istarska"},
	"poreč":           {"Poreč", "Istarska"},
	"umag":            {"Umag", "Istarska"},
	"opatija":         {"Opatija", "Primorsko-goranska"},
	"crikvenica":      {"Crikvenica", "Primorsko-goranska"},
	"krk":             {"Krk", "Primorsko-goranska"},
	"trogir":          {"Trogir", "Splitsko-dalmatinska"},
	"omiš":            {"Omiš", "Splitsko-dalmatinska"},
	"ploče":           {"Ploče", "Dubrovačko-neretvanska"},
	"imotski":         {"Imotski", "Splitsko-dalmatinska"},
	"slatina":         {"Slatina", "Virovitičko-podravska"},
	"našice":          {"Našice", "Osječko-baranjska"},
	"daruvar":         {"Daruvar", "Bjelovarsko-bilogorska"},
	"ivanić-grad":     {"Ivanić-Grad", "Zagrebačka"},
	"dugo selo":       {"Dugo Selo", "Zagrebačka"},
	"jastrebarsko":    {"Jastrebarsko", "Zagrebačka"},
	"sveta nedelja":   {"Sveta Nedelja", "Zagrebačka"},
	"biograd na moru": {"Biograd na Moru", "Zadarska"},
	"nin":             {"Nin", "Zadarska"},
	"vodice":          {"Vodice", "Šibensko-kninska"},
	"supetar":         {"Supetar", "Splitsko-dalmatinska"},
	"hvar":            {"Hvar", "Splitsko-dalmatinska"},
	"korčula":         {"Korčula", "Dubrovačko-neretvanska"},
	"pag":             {"Pag", "Zadarska"},
	"novalja":         {"Novalja", "Ličko-senjska"},
	"gospić":          {"Gospić", "Ličko-senjska"},
	"senj":            {"Senj", "Ličko-senjska"},
	"labin":           {"Labin", "Istarska"},
	"pazin":           {"Pazin", "Istarska"},
	"buje":            {"Buje", "Istarska"},
	"novigrad":        {"Novigrad", "Istarska"},
	"ogulin":          {"Ogulin", "Karlovačka"},
	"duga resa":       {"Duga Resa", "Karlovačka"},
	"čazma":           {"Čazma", "Bjelovarsko-bilogorska"},
	"orahovica":       {"Orahovica", "Virovitičko-podravska"},
	"valpovo":         {"Valpovo", "Osječko-baranjska"},
	"belišće":         {"Belišće", "Osječko-baranjska"},
	"ilok":            {"Ilok", "Vukovarsko-srijemska"},
	"otočac":          {"Otočac", "Ličko-senjska"},
	"delnice":         {"Delnice", "Primorsko-goranska"},
	"mali lošinj":     {"Mali Lošinj", "Primorsko-goranska"},
	"rab":             {"Rab", "Primorsko-goranska"},
	"benkovac":        {"Benkovac", "Zadarska"},
	"obrovac":         {"Obrovac", "Zadarska"},
	"drniš":           {"Drniš", "Šibensko-kninska"},
	"vrgorac":         {"Vrgorac", "Splitsko-dalmatinska"},
	"opuzen":          {"Opuzen", "Dubrovačko-neretvanska"},
}

// cityAliases resolves abbreviations, locative case forms and alternate
// spellings to a canonical table key.
var cityAliases = map[string]string{
	"zg":         "zagreb",
	"st":         "split",
	"ri":         "rijeka",
	"os":         "osijek",
	"zd":         "zadar",
	"du":         "dubrovnik",
	"pu":         "pula",
	"ka":         "karlovac",
	"vg":         "velika gorica",
	"sb":         "slavonski brod",
	"zagrebu":    "zagreb",
	"splitu":     "split",
	"rijeci":     "rijeka",
	"osijeku":    "osijek",
	"zadru":      "zadar",
	"dubrovniku": "dubrovnik",
	"puli":       "pula",
	"karlovcu":   "karlovac",
	"varaždinu":  "varaždin",
	"šibeniku":   "šibenik",
}

// zagrebDistricts and splitDistricts are neighborhoods commonly used in ads
// in place of the city name.
var zagrebDistricts = map[string]string{
	"trešnjevka":  "Trešnjevka",
	"maksimir":    "Maksimir",
	"črnomerec":   "Črnomerec",
	"dubrava":     "Dubrava",
	"jarun":       "Jarun",
	"trnje":       "Trnje",
	"medveščak":   "Medveščak",
	"novi zagreb": "Novi Zagreb",
	"sesvete":     "Sesvete",
	"stenjevec":   "Stenjevec",
	"podsljeme":   "Podsljeme",
	"peščenica":   "Peščenica",
	"žitnjak":     "Žitnjak",
	"gornji grad": "Gornji Grad",
	"donji grad":  "Donji Grad",
	"špansko":     "Špansko",
	"malešnica":   "Malešnica",
	"vrapče":      "Vrapče",
	"gajnice":     "Gajnice",
	"knežija":     "Knežija",
	"remetinec":   "Remetinec",
	"savica":      "Savica",
	"travno":      "Travno",
	"zapruđe":     "Zapruđe",
	"dugave":      "Dugave",
	"siget":       "Siget",
	"kajzerica":   "Kajzerica",
	"borovje":     "Borovje",
	"ravnice":     "Ravnice",
}

var splitDistricts = map[string]string{
	"bačvice":  "Bačvice",
	"meje":     "Meje",
	"varoš":    "Varoš",
	"spinut":   "Spinut",
	"mertojak": "Mertojak",
	"žnjan":    "Žnjan",
	"firule":   "Firule",
	"gripe":    "Gripe",
	"blatine":  "Blatine",
	"sućidar":  "Sućidar",
	"pujanke":  "Pujanke",
	"kman":     "Kman",
	"lovret":   "Lovret",
	"manuš":    "Manuš",
	"split 3":  "Split 3",
}

var diacriticReplacer = strings.NewReplacer(
	"č", "c", "ć", "c", "đ", "d", "š", "s", "ž", "z",
	"Č", "C", "Ć", "C", "Đ", "D", "Š", "S", "Ž", "Z",
)

// strippedCities indexes the city table by diacritic-stripped key.
var strippedCities = func() map[string]string {
	m := make(map[string]string, len(cities))
	for key := range cities {
		m[diacriticReplacer.Replace(key)] = key
	}
	return m
}()

var strippedDistricts = func() map[string]string {
	m := make(map[string]string, len(zagrebDistricts)+len(splitDistricts))
	for key := range zagrebDistricts {
		m[diacriticReplacer.Replace(key)] = key
	}
	for key := range splitDistricts {
		m[diacriticReplacer.Replace(key)] = key
	}
	return m
}()

var locationPrefixes = []string{"grad ", "općina ", "opcina ", "city of "}

var titleCaser = cases.Title(language.Croatian)

// NormalizeLocation canonicalizes a raw location string into a city, the
// remaining address text and, when the city is known, its county. Unknown
// cities are title-cased verbatim.
func NormalizeLocation(raw string) LocationResult {
	parts := splitLocation(raw)
	if len(parts) == 0 {
		return LocationResult{}
	}

	// Whole string first, so hyphenated names survive the dash split.
	if entry, ok := lookupCity(strings.TrimSpace(raw)); ok {
		return LocationResult{City: entry.name, Region: entry.region}
	}

	for i, part := range parts {
		if entry, ok := lookupCity(part); ok {
			rest := make([]string, 0, len(parts)-1)
			rest = append(rest, parts[:i]...)
			rest = append(rest, parts[i+1:]...)
			return LocationResult{
				City:    entry.name,
				Address: strings.Join(rest, ", "),
				Region:  entry.region,
			}
		}
	}

	for i, part := range parts {
		if city, ok := lookupDistrict(part); ok {
			entry := cities[strings.ToLower(city)]
			return LocationResult{
				City:    entry.name,
				Address: strings.Join(parts[i:], ", "),
				Region:  entry.region,
			}
		}
	}

	return LocationResult{
		City:    titleCaser.String(strings.ToLower(parts[0])),
		Address: strings.Join(parts[1:], ", "),
	}
}

func splitLocation(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == '-' || r == '–'
	})
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		if p := strings.TrimSpace(f); p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

func lookupCity(part string) (cityEntry, bool) {
	key := strings.ToLower(strings.TrimSpace(part))
	for _, prefix := range locationPrefixes {
		key = strings.TrimPrefix(key, prefix)
	}
	if alias, ok := cityAliases[key]; ok {
		key = alias
	}
	if entry, ok := cities[key]; ok {
		return entry, true
	}
	if canonical, ok := strippedCities[diacriticReplacer.Replace(key)]; ok {
		return cities[canonical], true
	}
	return cityEntry{}, false
}

// lookupDistrict resolves a neighborhood to its parent city name.
func lookupDistrict(part string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(part))
	if stripped, ok := strippedDistricts[diacriticReplacer.Replace(key)]; ok {
		key = stripped
	}
	if _, ok := zagrebDistricts[key]; ok {
		return "Zagreb", true
	}
	if _, ok := splitDistricts[key]; ok {
		return "Split", true
	}
	return "", false
}
