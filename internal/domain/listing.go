// Package domain defines the core data types shared across the scraping
// pipeline, the search core and the HTTP API.
package domain

import (
	"time"
)

// ListingType classifies an ad as a rental or a sale.
type ListingType string

const (
	ListingRent ListingType = "rent"
	ListingSale ListingType = "sale"
)

// Valid reports whether lt is one of the known listing types.
func (lt ListingType) Valid() bool {
	return lt == ListingRent || lt == ListingSale
}

// PropertyType classifies the kind of property an ad offers.
type PropertyType string

const (
	PropertyApartment PropertyType = "apartment"
	PropertyHouse     PropertyType = "house"
	PropertyOffice    PropertyType = "office"
	PropertyLand      PropertyType = "land"
	PropertyOther     PropertyType = "other"
)

// Valid reports whether pt is one of the known property types.
func (pt PropertyType) Valid() bool {
	switch pt {
	case PropertyApartment, PropertyHouse, PropertyOffice, PropertyLand, PropertyOther:
		return true
	}
	return false
}

// EmbeddingDim is the dimensionality of listing and query embeddings
// (text-embedding-3-small).
const EmbeddingDim = 1536

// Listing is a normalized real-estate ad as stored and searched.
// Prices are always whole euros; raw HRK amounts are converted during
// normalization. Optional attributes are pointers so that "unknown" is
// distinguishable from zero.
type Listing struct {
	ID           string          `db:"id" json:"id"`
	Source       string          `db:"source" json:"source"`
	ExternalID   string          `db:"external_id" json:"external_id"`
	URL          string          `db:"url" json:"url"`
	Title        string          `db:"title" json:"title"`
	Description  string          `db:"description" json:"description"`
	Images       []string        `db:"-" json:"images"`
	Price        int             `db:"price" json:"price"`
	Currency     string          `db:"currency" json:"currency"`
	ListingType  ListingType     `db:"listing_type" json:"listing_type"`
	PropertyType PropertyType    `db:"property_type" json:"property_type"`
	City         string          `db:"city" json:"city"`
	Address      string          `db:"address" json:"address"`
	Latitude     *float64        `db:"latitude" json:"latitude,omitempty"`
	Longitude    *float64        `db:"longitude" json:"longitude,omitempty"`
	Rooms        *int            `db:"rooms" json:"rooms,omitempty"`
	Bedrooms     *int            `db:"bedrooms" json:"bedrooms,omitempty"`
	Bathrooms    *int            `db:"bathrooms" json:"bathrooms,omitempty"`
	SurfaceArea  *float64        `db:"surface_area" json:"surface_area,omitempty"`
	HasParking   bool            `db:"has_parking" json:"has_parking"`
	HasBalcony   bool            `db:"has_balcony" json:"has_balcony"`
	HasGarage    bool            `db:"has_garage" json:"has_garage"`
	IsFurnished  bool            `db:"is_furnished" json:"is_furnished"`
	Amenities    map[string]bool `db:"-" json:"amenities,omitempty"`
	Embedding    []float32       `db:"-" json:"-"`
	ScrapedAt    time.Time       `db:"scraped_at" json:"scraped_at"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

// HasEmbedding reports whether the listing carries a full-dimension vector.
func (l *Listing) HasEmbedding() bool {
	return len(l.Embedding) == EmbeddingDim
}

// RawListing is what a source parser extracts from a page before
// normalization. Text fields keep the site's original wording.
type RawListing struct {
	ExternalID  string            `json:"external_id"`
	URL         string            `json:"url"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	PriceText   string            `json:"price_text"`
	Location    string            `json:"location"`
	Rooms       *int              `json:"rooms,omitempty"`
	Surface     *float64          `json:"surface,omitempty"`
	Images      []string          `json:"images,omitempty"`
	Amenities   []string          `json:"amenities,omitempty"`
	Additional  map[string]string `json:"additional,omitempty"`
}

// Pagination describes where a list page sits in its result set.
// Total is nil when the site does not expose a page count.
type Pagination struct {
	Current int    `json:"current"`
	Total   *int   `json:"total,omitempty"`
	HasNext bool   `json:"has_next"`
	NextURL string `json:"next_url,omitempty"`
}

// ScrapeResult summarizes one scraper run against one source.
type ScrapeResult struct {
	Success         bool          `json:"success"`
	Source          string        `json:"source"`
	ListingsScraped int           `json:"listings_scraped"`
	ListingsSaved   int           `json:"listings_saved"`
	DuplicatesFound int           `json:"duplicates_found"`
	Errors          []string      `json:"errors,omitempty"`
	Duration        time.Duration `json:"duration"`
	PagesProcessed  int           `json:"pages_processed"`
}
