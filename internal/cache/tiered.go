package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// DefaultL1TTL bounds how long the memory tier may serve a value that the
// Redis tier has already dropped or replaced.
const DefaultL1TTL = 5 * time.Minute

// TieredCache layers a MemoryCache in front of a shared Cache. Reads hit
// the memory tier first and backfill it on a Redis hit; writes go to both.
// Embedding lookups are the hot path served by this type.
type TieredCache struct {
	l1    *MemoryCache
	l2    Cache
	l1TTL time.Duration
}

// NewTieredCache combines l1 and l2. l1TTL caps the memory-tier lifetime
// of every entry; zero means DefaultL1TTL.
func NewTieredCache(l1 *MemoryCache, l2 Cache, l1TTL time.Duration) *TieredCache {
	if l1TTL <= 0 {
		l1TTL = DefaultL1TTL
	}
	return &TieredCache{l1: l1, l2: l2, l1TTL: l1TTL}
}

// Get reads from the memory tier, falling back to the shared tier.
func (c *TieredCache) Get(ctx context.Context, key string, value any) error {
	if err := c.l1.Get(ctx, key, value); err == nil {
		return nil
	}

	// json.RawMessage round-trip so the backfill does not re-marshal a
	// half-populated destination struct.
	var raw json.RawMessage
	if err := c.l2.Get(ctx, key, &raw); err != nil {
		return err
	}
	_ = c.l1.Set(ctx, key, raw, c.l1TTL)

	if err := json.Unmarshal(raw, value); err != nil {
		return err
	}
	return nil
}

// Set writes to both tiers. The memory tier TTL never exceeds l1TTL.
func (c *TieredCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	l1TTL := c.l1TTL
	if ttl > 0 && ttl < l1TTL {
		l1TTL = ttl
	}
	_ = c.l1.Set(ctx, key, value, l1TTL)
	return c.l2.Set(ctx, key, value, ttl)
}

// Delete removes key from both tiers.
func (c *TieredCache) Delete(ctx context.Context, key string) error {
	_ = c.l1.Delete(ctx, key)
	return c.l2.Delete(ctx, key)
}

// Close closes the shared tier.
func (c *TieredCache) Close() error {
	return c.l2.Close()
}

// IsNotFound reports whether err means the key was absent rather than the
// backend failing.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
