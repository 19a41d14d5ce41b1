package sources

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/nyka2002/stanbot/internal/domain"
	"github.com/nyka2002/stanbot/internal/scraper"
)

// Njuskalo scrapes njuskalo.hr, the largest Croatian classifieds portal.
// The site assembles its result list client-side and fingerprints plain
// HTTP clients, so it runs in browser mode.
type Njuskalo struct{}

// NewNjuskalo creates the njuskalo.hr source.
func NewNjuskalo() *Njuskalo { return &Njuskalo{} }

func (n *Njuskalo) Name() string            { return "njuskalo" }
func (n *Njuskalo) BaseURL() string         { return "https://www.njuskalo.hr" }
func (n *Njuskalo) Mode() scraper.FetchMode { return scraper.ModeBrowser }
func (n *Njuskalo) ListSelector() string    { return "ul.EntityList-items" }

// ListURL builds a result-page URL. Njuškalo keeps rental and sale
// apartments in separate sections and paginates with a query parameter.
func (n *Njuskalo) ListURL(lt domain.ListingType, page int) string {
	section := "prodaja-stanova"
	if lt == domain.ListingRent {
		section = "iznajmljivanje-stanova"
	}
	if page <= 1 {
		return fmt.Sprintf("%s/%s", n.BaseURL(), section)
	}
	return fmt.Sprintf("%s/%s?page=%d", n.BaseURL(), section, page)
}

// ParseList extracts ads from an EntityList result page. The attribute row
// of each ad ("Lokacija: ... | Stambena površina: ...") doubles as the
// label map room parsing runs on.
func (n *Njuskalo) ParseList(page *scraper.Page) ([]domain.RawListing, domain.Pagination, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		return nil, domain.Pagination{}, fmt.Errorf("parsing result page: %w", err)
	}

	var listings []domain.RawListing
	doc.Find("li.EntityList-item article.entity-body").Each(func(_ int, item *goquery.Selection) {
		link := item.Find("h3.entity-title a.link")
		href, _ := link.Attr("href")
		if href == "" {
			return
		}
		adURL := scraper.ResolveURL(n.BaseURL(), href)

		description := scraper.CleanText(item.Find(".entity-description-main").Text())
		info := splitInfo(description)

		raw := domain.RawListing{
			ExternalID:  scraper.ExternalIDFromURL(adURL),
			URL:         adURL,
			Title:       scraper.CleanText(link.Text()),
			Description: description,
			PriceText:   scraper.CleanText(item.Find(".entity-prices .price").First().Text()),
			Location:    info["lokacija"],
			Surface:     parseSurface(info["stambena površina"]),
			Additional:  info,
		}

		img := item.Find(".entity-thumbnail img").First()
		if src, ok := img.Attr("data-src"); ok && src != "" {
			raw.Images = append(raw.Images, src)
		} else if src, ok := img.Attr("src"); ok && src != "" {
			raw.Images = append(raw.Images, src)
		}

		listings = append(listings, raw)
	})

	return listings, n.parsePagination(doc), nil
}

func (n *Njuskalo) parsePagination(doc *goquery.Document) domain.Pagination {
	pag := domain.Pagination{Current: 1}

	if cur, err := strconv.Atoi(scraper.CleanText(doc.Find(".Pagination-item--current").First().Text())); err == nil {
		pag.Current = cur
	}

	doc.Find("a.Pagination-link").Each(func(_ int, s *goquery.Selection) {
		if v, err := strconv.Atoi(scraper.CleanText(s.Text())); err == nil {
			if pag.Total == nil || v > *pag.Total {
				total := v
				pag.Total = &total
			}
		}
	})

	if next := doc.Find("a.Pagination-link--next").First(); next.Length() > 0 {
		pag.HasNext = true
		if href, ok := next.Attr("href"); ok {
			pag.NextURL = scraper.ResolveURL(n.BaseURL(), href)
		}
	}

	return pag
}
