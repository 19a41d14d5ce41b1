package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nyka2002/stanbot/internal/domain"
)

const insertListingSQL = `
INSERT INTO listings (
	id, source, external_id, url, title, description, images,
	price, currency, listing_type, property_type, city, address,
	latitude, longitude, rooms, bedrooms, bathrooms, surface_area,
	has_parking, has_balcony, has_garage, is_furnished, amenities,
	scraped_at, created_at, updated_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7,
	$8, $9, $10, $11, $12, $13,
	$14, $15, $16, $17, $18, $19,
	$20, $21, $22, $23, $24,
	$25, $26, $27
)
ON CONFLICT (source, external_id) DO UPDATE SET
	url           = EXCLUDED.url,
	title         = EXCLUDED.title,
	description   = COALESCE(NULLIF(EXCLUDED.description, ''), listings.description),
	images        = CASE WHEN EXCLUDED.images = '[]'::jsonb THEN listings.images ELSE EXCLUDED.images END,
	price         = EXCLUDED.price,
	currency      = EXCLUDED.currency,
	listing_type  = EXCLUDED.listing_type,
	property_type = EXCLUDED.property_type,
	city          = EXCLUDED.city,
	address       = EXCLUDED.address,
	latitude      = COALESCE(EXCLUDED.latitude, listings.latitude),
	longitude     = COALESCE(EXCLUDED.longitude, listings.longitude),
	rooms         = COALESCE(EXCLUDED.rooms, listings.rooms),
	bedrooms      = COALESCE(EXCLUDED.bedrooms, listings.bedrooms),
	bathrooms     = COALESCE(EXCLUDED.bathrooms, listings.bathrooms),
	surface_area  = COALESCE(EXCLUDED.surface_area, listings.surface_area),
	has_parking   = EXCLUDED.has_parking,
	has_balcony   = EXCLUDED.has_balcony,
	has_garage    = EXCLUDED.has_garage,
	is_furnished  = EXCLUDED.is_furnished,
	amenities     = CASE WHEN EXCLUDED.amenities = '{}'::jsonb THEN listings.amenities ELSE EXCLUDED.amenities END,
	scraped_at    = EXCLUDED.scraped_at,
	updated_at    = EXCLUDED.updated_at
RETURNING id, created_at, (xmax = 0) AS inserted`

// listingArgs applies insert defaults to l and returns the bound values in
// insertListingSQL order.
func listingArgs(l *domain.Listing) ([]any, error) {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if l.ScrapedAt.IsZero() {
		l.ScrapedAt = now
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}
	if l.UpdatedAt.IsZero() {
		l.UpdatedAt = now
	}
	if l.Currency == "" {
		l.Currency = "EUR"
	}

	images := []byte("[]")
	if len(l.Images) > 0 {
		var err error
		if images, err = json.Marshal(l.Images); err != nil {
			return nil, fmt.Errorf("encoding images: %w", err)
		}
	}
	amenities := []byte("{}")
	if len(l.Amenities) > 0 {
		var err error
		if amenities, err = json.Marshal(l.Amenities); err != nil {
			return nil, fmt.Errorf("encoding amenities: %w", err)
		}
	}

	return []any{
		l.ID, l.Source, l.ExternalID, l.URL, l.Title, l.Description, images,
		l.Price, l.Currency, l.ListingType, l.PropertyType, l.City, l.Address,
		l.Latitude, l.Longitude, l.Rooms, l.Bedrooms, l.Bathrooms, l.SurfaceArea,
		l.HasParking, l.HasBalcony, l.HasGarage, l.IsFurnished, amenities,
		l.ScrapedAt, l.CreatedAt, l.UpdatedAt,
	}, nil
}

// Insert upserts one listing keyed on (source, external_id). The returned
// bool is true for a new row and false for a refreshed duplicate; duplicates
// are not an error. The listing's ID and CreatedAt are set from the stored
// row. The embedding column is never touched here.
func (s *Store) Insert(ctx context.Context, l *domain.Listing) (bool, error) {
	args, err := listingArgs(l)
	if err != nil {
		return false, err
	}

	var (
		id        string
		createdAt time.Time
		inserted  bool
	)
	err = s.db.QueryRowxContext(ctx, insertListingSQL, args...).Scan(&id, &createdAt, &inserted)
	if err != nil {
		return false, fmt.Errorf("inserting listing %s/%s: %w", l.Source, l.ExternalID, err)
	}

	l.ID = id
	l.CreatedAt = createdAt
	return inserted, nil
}

// BatchInsert upserts listings in one transaction and returns how many were
// new rows.
func (s *Store) BatchInsert(ctx context.Context, listings []*domain.Listing) (int, error) {
	if len(listings) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning batch insert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	saved := 0
	for _, l := range listings {
		args, err := listingArgs(l)
		if err != nil {
			return 0, err
		}

		var (
			id        string
			createdAt time.Time
			inserted  bool
		)
		if err := tx.QueryRowxContext(ctx, insertListingSQL, args...).Scan(&id, &createdAt, &inserted); err != nil {
			return 0, fmt.Errorf("inserting listing %s/%s: %w", l.Source, l.ExternalID, err)
		}
		l.ID = id
		l.CreatedAt = createdAt
		if inserted {
			saved++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing batch insert: %w", err)
	}
	return saved, nil
}

// GetByID fetches one listing with its embedding.
func (s *Store) GetByID(ctx context.Context, id string) (*domain.Listing, error) {
	query := `SELECT ` + listingColumns + `, embedding::text AS embedding_text
	FROM listings WHERE id = $1`

	var row listingRow
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting listing %s: %w", id, err)
	}

	l, err := row.toListing()
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// List returns listings matching f, newest scrape first. Unknown values on
// a listing (NULL rooms, NULL surface) pass range filters rather than being
// excluded; the match scorer downgrades them later.
func (s *Store) List(ctx context.Context, f domain.Filters, limit, offset int) ([]domain.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE 1=1`
	var args []any

	add := func(clause string, v any) {
		args = append(args, v)
		query += fmt.Sprintf(clause, len(args))
	}

	if f.ListingType != nil {
		add(" AND listing_type = $%d", *f.ListingType)
	}
	if f.PropertyType != nil {
		add(" AND property_type = $%d", *f.PropertyType)
	}
	if f.PriceMin != nil {
		add(" AND price >= $%d", *f.PriceMin)
	}
	if f.PriceMax != nil {
		add(" AND price <= $%d", *f.PriceMax)
	}
	if f.Location != nil {
		args = append(args, "%"+*f.Location+"%")
		query += fmt.Sprintf(" AND (city ILIKE $%d OR address ILIKE $%d)", len(args), len(args))
	}
	if f.RoomsMin != nil {
		add(" AND (rooms >= $%d OR rooms IS NULL)", *f.RoomsMin)
	}
	if f.RoomsMax != nil {
		add(" AND (rooms <= $%d OR rooms IS NULL)", *f.RoomsMax)
	}
	if f.SurfaceAreaMin != nil {
		add(" AND (surface_area >= $%d OR surface_area IS NULL)", *f.SurfaceAreaMin)
	}
	if f.SurfaceAreaMax != nil {
		add(" AND (surface_area <= $%d OR surface_area IS NULL)", *f.SurfaceAreaMax)
	}
	if f.HasParking != nil {
		add(" AND has_parking = $%d", *f.HasParking)
	}
	if f.HasBalcony != nil {
		add(" AND has_balcony = $%d", *f.HasBalcony)
	}
	if f.HasGarage != nil {
		add(" AND has_garage = $%d", *f.HasGarage)
	}
	if f.IsFurnished != nil {
		add(" AND is_furnished = $%d", *f.IsFurnished)
	}

	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf(" ORDER BY scraped_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	var rows []listingRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("listing query: %w", err)
	}

	out := make([]domain.Listing, 0, len(rows))
	for i := range rows {
		l, err := rows[i].toListing()
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

// SemanticMatch is a candidate from vector search with its cosine
// similarity in [0, 1].
type SemanticMatch struct {
	Listing    domain.Listing `json:"listing"`
	Similarity float64        `json:"similarity"`
}

const semanticSearchSQL = `SELECT ` + listingColumns + `,
	1 - (embedding <=> $1::vector) AS similarity
FROM listings
WHERE embedding IS NOT NULL
  AND 1 - (embedding <=> $1::vector) >= $2
ORDER BY embedding <=> $1::vector
LIMIT $3`

// SearchSemantic returns up to k candidates whose cosine similarity to the
// query embedding meets threshold, most similar first. Callers fetch more
// than they intend to keep so the ranking stage has room to drop
// mismatches.
func (s *Store) SearchSemantic(ctx context.Context, embedding []float32, threshold float64, k int) ([]SemanticMatch, error) {
	if len(embedding) == 0 {
		return nil, fmt.Errorf("semantic search: empty query embedding")
	}
	if k <= 0 {
		k = 30
	}

	var rows []listingRow
	err := s.db.SelectContext(ctx, &rows, semanticSearchSQL, vectorString(embedding), threshold, k)
	if err != nil {
		return nil, fmt.Errorf("semantic search: %w", err)
	}

	out := make([]SemanticMatch, 0, len(rows))
	for i := range rows {
		l, err := rows[i].toListing()
		if err != nil {
			return nil, err
		}
		out = append(out, SemanticMatch{Listing: l, Similarity: rows[i].Similarity.Float64})
	}
	return out, nil
}

// UpdateEmbedding stores the vector for one listing.
func (s *Store) UpdateEmbedding(ctx context.Context, id string, embedding []float32) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE listings SET embedding = $1::vector, updated_at = NOW() WHERE id = $2`,
		vectorString(embedding), id)
	if err != nil {
		return fmt.Errorf("updating embedding for %s: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating embedding for %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListMissingEmbeddings returns listings without a stored vector, newest
// first, for the backfill pass after a scrape.
func (s *Store) ListMissingEmbeddings(ctx context.Context, limit int) ([]domain.Listing, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + listingColumns + ` FROM listings
	WHERE embedding IS NULL ORDER BY scraped_at DESC LIMIT $1`

	var rows []listingRow
	if err := s.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("listing missing embeddings: %w", err)
	}

	out := make([]domain.Listing, 0, len(rows))
	for i := range rows {
		l, err := rows[i].toListing()
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

// CleanupStale deletes listings whose last scrape is older than days.
func (s *Store) CleanupStale(ctx context.Context, days int) (int, error) {
	if days <= 0 {
		return 0, nil
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM listings WHERE scraped_at < NOW() - ($1 * INTERVAL '1 day')`, days)
	if err != nil {
		return 0, fmt.Errorf("cleaning up stale listings: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cleaning up stale listings: %w", err)
	}
	return int(n), nil
}

// Count returns the total number of stored listings.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM listings`); err != nil {
		return 0, fmt.Errorf("counting listings: %w", err)
	}
	return n, nil
}

// CountBySource returns per-source listing counts for the status surface.
func (s *Store) CountBySource(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryxContext(ctx,
		`SELECT source, COUNT(*) AS n FROM listings GROUP BY source`)
	if err != nil {
		return nil, fmt.Errorf("counting listings by source: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var (
			source string
			n      int
		)
		if err := rows.Scan(&source, &n); err != nil {
			return nil, fmt.Errorf("counting listings by source: %w", err)
		}
		out[source] = n
	}
	return out, rows.Err()
}
