package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nyka2002/stanbot/internal/domain"
	"github.com/nyka2002/stanbot/internal/logger"
	"github.com/nyka2002/stanbot/internal/search"
	"github.com/nyka2002/stanbot/internal/store"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100

	// similarCount is how many related listings the detail view carries.
	similarCount = 3
)

// listResponse is the GET /listings payload.
type listResponse struct {
	Listings []domain.Listing `json:"listings"`
	Page     int              `json:"page"`
	Limit    int              `json:"limit"`
}

// detailResponse is the GET /listings/{id} payload.
type detailResponse struct {
	Listing domain.Listing     `json:"listing"`
	Similar []search.Candidate `json:"similar"`
}

func (s *Server) handleListListings(w http.ResponseWriter, r *http.Request) {
	f, page, limit := parseListQuery(r)

	listings, err := s.listings.List(r.Context(), f, limit, (page-1)*limit)
	if err != nil {
		logger.Error("listing query failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "DATABASE_ERROR", "")
		return
	}
	if listings == nil {
		listings = []domain.Listing{}
	}
	writeJSON(w, http.StatusOK, listResponse{Listings: listings, Page: page, Limit: limit})
}

func (s *Server) handleGetListing(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	listing, err := s.listings.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "no such listing")
			return
		}
		logger.Error("listing lookup failed", "id", id, "error", err)
		writeError(w, http.StatusServiceUnavailable, "DATABASE_ERROR", "")
		return
	}

	// A listing without an embedding simply has no similar section yet.
	similar, err := s.similar.FindSimilar(r.Context(), id, similarCount)
	if err != nil {
		var sErr *search.SearchError
		if !errors.As(err, &sErr) || sErr.Code != search.SearchNoEmbedding {
			logger.Warn("similar lookup failed", "id", id, "error", err)
		}
		similar = nil
	}
	if similar == nil {
		similar = []search.Candidate{}
	}

	writeJSON(w, http.StatusOK, detailResponse{Listing: *listing, Similar: similar})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.listings.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "DATABASE_ERROR", "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// parseListQuery maps the query string onto filters and pagination.
// Malformed values are ignored rather than rejected; browsing should not
// 400 on a stray parameter.
func parseListQuery(r *http.Request) (domain.Filters, int, int) {
	q := r.URL.Query()
	var f domain.Filters

	if v := q.Get("listing_type"); v != "" {
		if lt := domain.ListingType(v); lt.Valid() {
			f.ListingType = &lt
		}
	}
	if v := q.Get("property_type"); v != "" {
		if pt := domain.PropertyType(v); pt.Valid() {
			f.PropertyType = &pt
		}
	}
	if v := q.Get("city"); v != "" {
		f.Location = &v
	}
	if n, ok := intParam(q.Get("price_min")); ok {
		f.PriceMin = &n
	}
	if n, ok := intParam(q.Get("price_max")); ok {
		f.PriceMax = &n
	}
	if n, ok := intParam(q.Get("rooms_min")); ok {
		f.RoomsMin = &n
	}
	if n, ok := intParam(q.Get("rooms_max")); ok {
		f.RoomsMax = &n
	}
	if b, ok := boolParam(q.Get("has_parking")); ok {
		f.HasParking = &b
	}
	if b, ok := boolParam(q.Get("has_balcony")); ok {
		f.HasBalcony = &b
	}
	if b, ok := boolParam(q.Get("is_furnished")); ok {
		f.IsFurnished = &b
	}

	page := 1
	if n, ok := intParam(q.Get("page")); ok && n > 0 {
		page = n
	}
	limit := defaultPageSize
	if n, ok := intParam(q.Get("limit")); ok && n > 0 {
		limit = min(n, maxPageSize)
	}
	return f, page, limit
}

func intParam(v string) (int, bool) {
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func boolParam(v string) (bool, bool) {
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}
