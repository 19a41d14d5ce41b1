package sources

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/nyka2002/stanbot/internal/domain"
	"github.com/nyka2002/stanbot/internal/scraper"
)

// Oglasnik scrapes oglasnik.hr. Server-rendered markup, static fetching.
type Oglasnik struct{}

// NewOglasnik creates the oglasnik.hr source.
func NewOglasnik() *Oglasnik { return &Oglasnik{} }

func (s *Oglasnik) Name() string            { return "oglasnik" }
func (s *Oglasnik) BaseURL() string         { return "https://www.oglasnik.hr" }
func (s *Oglasnik) Mode() scraper.FetchMode { return scraper.ModeStatic }
func (s *Oglasnik) ListSelector() string    { return "div.classified-list" }

// ListURL builds a result-page URL.
func (s *Oglasnik) ListURL(lt domain.ListingType, page int) string {
	section := "prodaja-stanova"
	if lt == domain.ListingRent {
		section = "iznajmljivanje-stanova"
	}
	if page <= 1 {
		return fmt.Sprintf("%s/nekretnine/%s", s.BaseURL(), section)
	}
	return fmt.Sprintf("%s/nekretnine/%s?page=%d", s.BaseURL(), section, page)
}

// ParseList extracts ads from a classified-list page.
func (s *Oglasnik) ParseList(page *scraper.Page) ([]domain.RawListing, domain.Pagination, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		return nil, domain.Pagination{}, fmt.Errorf("parsing result page: %w", err)
	}

	var listings []domain.RawListing
	doc.Find("div.classified-list div.classified-item").Each(func(_ int, item *goquery.Selection) {
		link := item.Find("h3.classified-title a")
		href, _ := link.Attr("href")
		if href == "" {
			return
		}
		adURL := scraper.ResolveURL(s.BaseURL(), href)

		raw := domain.RawListing{
			ExternalID: scraper.ExternalIDFromURL(adURL),
			URL:        adURL,
			Title:      scraper.CleanText(link.Text()),
			PriceText:  scraper.CleanText(item.Find("span.classified-price").Text()),
			Location:   scraper.CleanText(item.Find("span.classified-location").Text()),
		}

		item.Find("ul.classified-tags li").Each(func(_ int, tag *goquery.Selection) {
			if a := scraper.CleanText(tag.Text()); a != "" {
				raw.Amenities = append(raw.Amenities, a)
			}
		})

		if surface := parseSurface(item.Find("span.classified-surface").Text()); surface != nil {
			raw.Surface = surface
		}

		if src, ok := item.Find("img.classified-photo").First().Attr("src"); ok && src != "" {
			raw.Images = append(raw.Images, src)
		}

		listings = append(listings, raw)
	})

	pag := domain.Pagination{Current: 1}
	if next := doc.Find("li.pagination-next a").First(); next.Length() > 0 {
		pag.HasNext = true
		if href, ok := next.Attr("href"); ok {
			pag.NextURL = scraper.ResolveURL(s.BaseURL(), href)
		}
	}

	return listings, pag, nil
}

// ParseDetail fills the description and attribute table from an ad's page.
func (s *Oglasnik) ParseDetail(page *scraper.Page, raw *domain.RawListing) error {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		return fmt.Errorf("parsing detail page: %w", err)
	}

	if desc := scraper.CleanText(doc.Find("div.classified-description").Text()); desc != "" {
		raw.Description = desc
	}

	if raw.Additional == nil {
		raw.Additional = make(map[string]string)
	}
	doc.Find("table.classified-attributes tr").Each(func(_ int, row *goquery.Selection) {
		key := strings.ToLower(scraper.CleanText(row.Find("th").Text()))
		if key == "" {
			return
		}
		raw.Additional[key] = scraper.CleanText(row.Find("td").Text())
	})
	if raw.Surface == nil {
		raw.Surface = parseSurface(raw.Additional["površina"])
	}

	return nil
}
