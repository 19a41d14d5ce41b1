// Package cache provides the Redis-backed cache used for embeddings, chat
// sessions, search results and scrape status, with an optional in-process
// LRU tier in front of it.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key is absent or expired.
var ErrNotFound = errors.New("cache: key not found")

// Cache stores JSON-encoded values under string keys with a TTL.
type Cache interface {
	// Get unmarshals the cached value for key into value. Returns
	// ErrNotFound when the key is absent.
	Get(ctx context.Context, key string, value any) error

	// Set marshals value and stores it under key. A non-positive ttl
	// stores without expiry.
	Set(ctx context.Context, key string, value any, ttl time.Duration) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases underlying resources.
	Close() error
}
