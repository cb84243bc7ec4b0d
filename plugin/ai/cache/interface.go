// Package cache provides the cache service used by the intent pipeline for
// resolution results and other per-tenant derived data.
package cache

import (
	"context"
	"time"
)

// CacheService defines the cache service interface.
type CacheService interface {
	// Get retrieves a value from cache.
	// Returns: value, whether it exists
	Get(ctx context.Context, key string) (any, bool)

	// Set stores a value in cache.
	// ttl: expiration time; ttl <= 0 uses the service default
	Set(ctx context.Context, key string, value any, ttl time.Duration) error

	// Invalidate invalidates cache entries.
	// pattern: supports a trailing wildcard (resolve:42:*)
	Invalidate(ctx context.Context, pattern string) error
}
