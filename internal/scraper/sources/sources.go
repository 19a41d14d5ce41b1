// Package sources implements the site-specific scrapers for the Croatian
// listing portals. Each source translates one site's markup into raw
// listing records; pagination, politeness, normalization and storage are
// handled by the shared runner.
package sources

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/nyka2002/stanbot/internal/scraper"
)

// All returns every known source in scrape order.
func All() []scraper.Source {
	return []scraper.Source{
		NewNjuskalo(),
		NewIndexHR(),
		NewOglasnik(),
	}
}

// ByName looks up a single source by its identifier.
func ByName(name string) (scraper.Source, bool) {
	for _, s := range All() {
		if s.Name() == name {
			return s, true
		}
	}
	return nil, false
}

// Names lists the identifiers of all known sources.
func Names() []string {
	all := All()
	names := make([]string, len(all))
	for i, s := range all {
		names[i] = s.Name()
	}
	return names
}

var surfaceRe = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*m`)

// parseSurface reads a square-meter figure out of free text.
func parseSurface(text string) *float64 {
	m := surfaceRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64)
	if err != nil || v <= 0 {
		return nil
	}
	return &v
}

// splitInfo breaks a "Key: Value | Key: Value" info line into a lowercased
// label map. The portals render their list-item attribute rows this way.
func splitInfo(text string) map[string]string {
	info := make(map[string]string)
	for _, part := range strings.Split(text, "|") {
		if k, v, ok := strings.Cut(part, ":"); ok {
			key := strings.ToLower(scraper.CleanText(k))
			if key != "" {
				info[key] = scraper.CleanText(v)
			}
		}
	}
	return info
}
