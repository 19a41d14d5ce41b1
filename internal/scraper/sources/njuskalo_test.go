package sources

import (
	"testing"

	"github.com/nyka2002/stanbot/internal/domain"
	"github.com/nyka2002/stanbot/internal/scraper"
)

const njuskaloListHTML = `<html><body>
<ul class="EntityList-items">
  <li class="EntityList-item">
    <article class="entity-body">
      <h3 class="entity-title"><a class="link" href="/nekretnine/stan-tresnjevka-oglas-44125513">Dvosoban stan, Trešnjevka</a></h3>
      <div class="entity-description-main">
        Lokacija: Zagreb, Trešnjevka | Stambena površina: 55 m2 | Broj soba: 2
      </div>
      <div class="entity-prices"><span class="price">750 €/mj</span></div>
      <div class="entity-thumbnail"><img data-src="https://cdn.njuskalo.hr/44125513.jpg"></div>
    </article>
  </li>
  <li class="EntityList-item">
    <article class="entity-body">
      <h3 class="entity-title"><a class="link" href="/nekretnine/kuca-maksimir-oglas-44125999">Kuća, Maksimir</a></h3>
      <div class="entity-description-main">
        Lokacija: Zagreb, Maksimir | Stambena površina: 140 m2
      </div>
      <div class="entity-prices"><span class="price">420.000 €</span></div>
    </article>
  </li>
</ul>
<nav>
  <span class="Pagination-item Pagination-item--current">1</span>
  <a class="Pagination-link" href="?page=2">2</a>
  <a class="Pagination-link" href="?page=3">3</a>
  <a class="Pagination-link Pagination-link--next" href="?page=2">Sljedeća</a>
</nav>
</body></html>`

// --- Njuskalo Tests ---

func TestNjuskalo_ListURL(t *testing.T) {
	src := NewNjuskalo()

	if got := src.ListURL(domain.ListingRent, 1); got != "https://www.njuskalo.hr/iznajmljivanje-stanova" {
		t.Errorf("rent page 1 = %q", got)
	}
	if got := src.ListURL(domain.ListingSale, 3); got != "https://www.njuskalo.hr/prodaja-stanova?page=3" {
		t.Errorf("sale page 3 = %q", got)
	}
}

func TestNjuskalo_ParseList(t *testing.T) {
	src := NewNjuskalo()

	listings, pag, err := src.ParseList(&scraper.Page{URL: src.ListURL(domain.ListingRent, 1), HTML: njuskaloListHTML})
	if err != nil {
		t.Fatalf("ParseList() error: %v", err)
	}

	if len(listings) != 2 {
		t.Fatalf("expected 2 listings, got %d", len(listings))
	}

	first := listings[0]
	if first.ExternalID != "44125513" {
		t.Errorf("external id = %q", first.ExternalID)
	}
	if first.URL != "https://www.njuskalo.hr/nekretnine/stan-tresnjevka-oglas-44125513" {
		t.Errorf("url = %q", first.URL)
	}
	if first.Title != "Dvosoban stan, Trešnjevka" {
		t.Errorf("title = %q", first.Title)
	}
	if first.PriceText != "750 €/mj" {
		t.Errorf("price text = %q", first.PriceText)
	}
	if first.Location != "Zagreb, Trešnjevka" {
		t.Errorf("location = %q", first.Location)
	}
	if first.Surface == nil || *first.Surface != 55 {
		t.Errorf("surface = %v", first.Surface)
	}
	if first.Additional["broj soba"] != "2" {
		t.Errorf("broj soba = %q", first.Additional["broj soba"])
	}
	if len(first.Images) != 1 || first.Images[0] != "https://cdn.njuskalo.hr/44125513.jpg" {
		t.Errorf("images = %v", first.Images)
	}

	if pag.Current != 1 {
		t.Errorf("current page = %d", pag.Current)
	}
	if !pag.HasNext {
		t.Error("expected a next page")
	}
	if pag.Total == nil || *pag.Total != 3 {
		t.Errorf("total pages = %v", pag.Total)
	}
}

func TestNjuskalo_ParseList_LastPage(t *testing.T) {
	src := NewNjuskalo()
	html := `<html><body>
<ul class="EntityList-items">
  <li class="EntityList-item"><article class="entity-body">
    <h3 class="entity-title"><a class="link" href="/nekretnine/stan-oglas-1">Stan</a></h3>
  </article></li>
</ul>
<nav><span class="Pagination-item Pagination-item--current">3</span></nav>
</body></html>`

	_, pag, err := src.ParseList(&scraper.Page{HTML: html})
	if err != nil {
		t.Fatalf("ParseList() error: %v", err)
	}

	if pag.HasNext {
		t.Error("last page should not report a next page")
	}
	if pag.Current != 3 {
		t.Errorf("current page = %d", pag.Current)
	}
}

func TestNjuskalo_ParseList_SkipsItemsWithoutLink(t *testing.T) {
	src := NewNjuskalo()
	html := `<html><body><ul class="EntityList-items">
  <li class="EntityList-item"><article class="entity-body">
    <h3 class="entity-title">Oglas bez poveznice</h3>
  </article></li>
</ul></body></html>`

	listings, _, err := src.ParseList(&scraper.Page{HTML: html})
	if err != nil {
		t.Fatalf("ParseList() error: %v", err)
	}
	if len(listings) != 0 {
		t.Errorf("expected no listings, got %d", len(listings))
	}
}
