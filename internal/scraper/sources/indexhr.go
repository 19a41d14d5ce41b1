package sources

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/nyka2002/stanbot/internal/domain"
	"github.com/nyka2002/stanbot/internal/scraper"
)

// IndexHR scrapes the index.hr classifieds section. Result pages are
// rendered server-side, so plain HTTP fetching is enough. List cards are
// thin; descriptions and amenities come from a detail fetch.
type IndexHR struct{}

// NewIndexHR creates the index.hr oglasi source.
func NewIndexHR() *IndexHR { return &IndexHR{} }

func (s *IndexHR) Name() string            { return "indexhr" }
func (s *IndexHR) BaseURL() string         { return "https://www.index.hr/oglasi" }
func (s *IndexHR) Mode() scraper.FetchMode { return scraper.ModeStatic }
func (s *IndexHR) ListSelector() string    { return "div.OglasiRezHolder" }

// ListURL builds a result-page URL. Pagination uses the num parameter.
func (s *IndexHR) ListURL(lt domain.ListingType, page int) string {
	section := "prodaja-stanova"
	if lt == domain.ListingRent {
		section = "najam-stanova"
	}
	if page <= 1 {
		return fmt.Sprintf("%s/nekretnine/%s", s.BaseURL(), section)
	}
	return fmt.Sprintf("%s/nekretnine/%s?num=%d", s.BaseURL(), section, page)
}

// ParseList extracts ads from a result page. Cards carry title, price and a
// tag row (location, surface, rooms); everything else needs the detail page.
func (s *IndexHR) ParseList(page *scraper.Page) ([]domain.RawListing, domain.Pagination, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		return nil, domain.Pagination{}, fmt.Errorf("parsing result page: %w", err)
	}

	var listings []domain.RawListing
	doc.Find("div.OglasiRezHolder a.result").Each(func(_ int, item *goquery.Selection) {
		href, _ := item.Attr("href")
		if href == "" {
			return
		}
		adURL := scraper.ResolveURL(s.BaseURL(), href)

		raw := domain.RawListing{
			ExternalID: scraper.ExternalIDFromURL(adURL),
			URL:        adURL,
			Title:      scraper.CleanText(item.Find("span.title").Text()),
			PriceText:  scraper.CleanText(item.Find("span.price").Text()),
			Additional: make(map[string]string),
		}

		item.Find("ul.tags li").Each(func(i int, tag *goquery.Selection) {
			text := scraper.CleanText(tag.Text())
			switch {
			case i == 0:
				raw.Location = text
			case raw.Surface == nil && parseSurface(text) != nil:
				raw.Surface = parseSurface(text)
			case strings.Contains(strings.ToLower(text), "sob"):
				raw.Additional["broj soba"] = text
			}
		})

		if src, ok := item.Find("img").First().Attr("src"); ok && src != "" {
			raw.Images = append(raw.Images, src)
		}

		listings = append(listings, raw)
	})

	pag := domain.Pagination{Current: 1}
	if cur, err := strconv.Atoi(scraper.CleanText(doc.Find("span.pagination-current").First().Text())); err == nil {
		pag.Current = cur
	}
	if next := doc.Find("a.pagination-next").First(); next.Length() > 0 {
		pag.HasNext = true
		if href, ok := next.Attr("href"); ok {
			pag.NextURL = scraper.ResolveURL(s.BaseURL(), href)
		}
	}

	return listings, pag, nil
}

// ParseDetail fills description, amenities, images and the attribute table
// from an ad's own page.
func (s *IndexHR) ParseDetail(page *scraper.Page, raw *domain.RawListing) error {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		return fmt.Errorf("parsing detail page: %w", err)
	}

	if desc := scraper.CleanText(doc.Find("div.ad-description").Text()); desc != "" {
		raw.Description = desc
	}

	if raw.Additional == nil {
		raw.Additional = make(map[string]string)
	}
	doc.Find("div.ad-details li").Each(func(_ int, row *goquery.Selection) {
		if k, v, ok := strings.Cut(row.Text(), ":"); ok {
			key := strings.ToLower(scraper.CleanText(k))
			if key != "" {
				raw.Additional[key] = scraper.CleanText(v)
			}
		}
	})
	if raw.Surface == nil {
		raw.Surface = parseSurface(raw.Additional["površina"])
	}

	doc.Find("div.ad-amenities li").Each(func(_ int, li *goquery.Selection) {
		if a := scraper.CleanText(li.Text()); a != "" {
			raw.Amenities = append(raw.Amenities, a)
		}
	})

	doc.Find("div.ad-gallery img").Each(func(_ int, img *goquery.Selection) {
		if src, ok := img.Attr("src"); ok && src != "" {
			raw.Images = append(raw.Images, src)
		}
	})

	return nil
}
