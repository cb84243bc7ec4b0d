// Package store provides database access to all raw objects.
package store

import (
	"strconv"
	"time"

	"github.com/hanbai/mescopilot/internal/profile"
	"github.com/hanbai/mescopilot/store/cache"
)

// Store provides database access to all raw objects.
type Store struct {
	profile *profile.Profile
	driver  Driver

	// intentListCache caches the effective per-tenant intent lists. It is
	// invalidated whenever the learning loop touches a keyword list so the
	// keyword matcher always sees fresh definitions.
	intentListCache *cache.Cache
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	return &Store{
		driver:  driver,
		profile: profile,
		intentListCache: cache.New(cache.Config{
			DefaultTTL:      5 * time.Minute,
			CleanupInterval: time.Minute,
			MaxItems:        1024,
		}),
	}
}

// GetDriver returns the underlying driver.
func (s *Store) GetDriver() Driver {
	return s.driver
}

// Close releases the store's resources.
func (s *Store) Close() error {
	s.intentListCache.Close()
	return s.driver.Close()
}

func i64str(v int64) string {
	return strconv.FormatInt(v, 10)
}
