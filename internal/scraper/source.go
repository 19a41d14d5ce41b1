package scraper

import (
	"hash/fnv"
	"regexp"
	"strconv"
	"strings"

	"github.com/nyka2002/stanbot/internal/domain"
)

// Source describes one listing site. Implementations know how to build
// result-page URLs for a market segment and how to turn the site's markup
// into RawListing records; the shared Runner drives everything else.
type Source interface {
	// Name is the stable identifier stored with every listing from this site.
	Name() string

	// BaseURL is the site root, used to resolve relative links.
	BaseURL() string

	// Mode selects static HTTP or headless-browser fetching.
	Mode() FetchMode

	// ListSelector marks a fully rendered result page. Browser sessions
	// wait for it before extracting HTML.
	ListSelector() string

	// ListURL builds the URL of result page n for the given listing type.
	ListURL(lt domain.ListingType, page int) string

	// ParseList extracts raw listings and pagination from a result page.
	ParseList(page *Page) ([]domain.RawListing, domain.Pagination, error)
}

// DetailParser is implemented by sources whose list pages omit descriptions
// or amenities. The runner fetches each thin listing's detail page and lets
// the source fill in the gaps.
type DetailParser interface {
	ParseDetail(page *Page, raw *domain.RawListing) error
}

var (
	adIDPattern      = regexp.MustCompile(`oglas[/-](\d+)`)
	trailingDigitsRe = regexp.MustCompile(`(\d+)$`)
)

// ExternalIDFromURL derives a stable per-site ad identifier from a listing
// URL. It prefers the oglas-<id> convention the big portals use, then a
// trailing numeric segment, and as a last resort hashes the whole URL so
// even unrecognized layouts dedupe consistently.
func ExternalIDFromURL(rawURL string) string {
	if m := adIDPattern.FindStringSubmatch(rawURL); m != nil {
		return m[1]
	}

	path := rawURL
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	path = strings.TrimRight(path, "/")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		path = path[i+1:]
	}
	if m := trailingDigitsRe.FindStringSubmatch(path); m != nil {
		return m[1]
	}

	h := fnv.New32a()
	h.Write([]byte(rawURL))
	return strconv.FormatUint(uint64(h.Sum32()), 10)
}

// ResolveURL joins a possibly relative href with the site's base URL.
func ResolveURL(baseURL, href string) string {
	if href == "" || strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	return strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(href, "/")
}

// CleanText collapses runs of whitespace into single spaces and trims the
// result. Site markup is indentation-heavy, so parsers run every extracted
// string through this.
func CleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
