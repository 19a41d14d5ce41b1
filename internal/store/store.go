// Package store persists normalized listings in Postgres. Embeddings live
// in a pgvector column; similarity search runs on the cosine operator with
// an ivfflat index.
package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/nyka2002/stanbot/internal/domain"
)

//go:embed schema.sql
var schemaFS embed.FS

// ErrNotFound is returned when no listing matches the given id.
var ErrNotFound = errors.New("store: listing not found")

// Options configures the Postgres connection.
type Options struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
}

// Store is the Postgres-backed listing store.
type Store struct {
	db *sqlx.DB
}

// Open connects to Postgres and verifies the connection.
func Open(opts Options) (*Store, error) {
	db, err := sqlx.Connect("postgres", opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	db.SetConnMaxLifetime(30 * time.Minute)

	return &Store{db: db}, nil
}

// NewWithDB wraps an existing connection. Used by tests.
func NewWithDB(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Migrate applies the embedded schema. Statements are idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	schema, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("reading schema: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, string(schema)); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}

// Ping verifies database reachability.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// listingColumns is the scan order shared by every listing query. It must
// stay aligned with listingRow and listingArgs.
const listingColumns = `id, source, external_id, url, title, description, images,
	price, currency, listing_type, property_type, city, address,
	latitude, longitude, rooms, bedrooms, bathrooms, surface_area,
	has_parking, has_balcony, has_garage, is_furnished, amenities,
	scraped_at, created_at, updated_at`

// listingRow adapts a listings row for sqlx scanning. JSONB columns and the
// vector come back as bytes/text and are decoded in toListing.
type listingRow struct {
	domain.Listing
	ImagesJSON    []byte          `db:"images"`
	AmenitiesJSON []byte          `db:"amenities"`
	EmbeddingText *string         `db:"embedding_text"`
	Similarity    sql.NullFloat64 `db:"similarity"`
}

func (r *listingRow) toListing() (domain.Listing, error) {
	l := r.Listing
	if len(r.ImagesJSON) > 0 {
		if err := json.Unmarshal(r.ImagesJSON, &l.Images); err != nil {
			return l, fmt.Errorf("decoding images for %s: %w", l.ID, err)
		}
	}
	if len(r.AmenitiesJSON) > 0 {
		if err := json.Unmarshal(r.AmenitiesJSON, &l.Amenities); err != nil {
			return l, fmt.Errorf("decoding amenities for %s: %w", l.ID, err)
		}
	}
	if r.EmbeddingText != nil {
		vec, err := parseVector(*r.EmbeddingText)
		if err != nil {
			return l, fmt.Errorf("decoding embedding for %s: %w", l.ID, err)
		}
		l.Embedding = vec
	}
	return l, nil
}

// vectorString renders vec in pgvector text form: [0.1,0.2,...].
func vectorString(vec []float32) string {
	var b strings.Builder
	b.Grow(len(vec)*10 + 2)
	b.WriteByte('[')
	for i, v := range vec {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

// parseVector reads pgvector text form back into a float32 slice.
func parseVector(s string) ([]float32, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	if s == "" {
		return nil, nil
	}

	parts := strings.Split(s, ",")
	out := make([]float32, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("vector component %d: %w", i, err)
		}
		out[i] = float32(f)
	}
	return out, nil
}
