// Package test provides store helpers backed by a throwaway SQLite
// database for integration-style tests.
package test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hanbai/mescopilot/internal/profile"
	"github.com/hanbai/mescopilot/store"
	"github.com/hanbai/mescopilot/store/db"
)

// NewTestingStore creates a migrated store on a fresh SQLite database
// under t.TempDir. The store is closed when the test finishes.
func NewTestingStore(ctx context.Context, t *testing.T) *store.Store {
	t.Helper()

	p := &profile.Profile{
		Mode:   "dev",
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "mescopilot_test.db"),
	}
	driver, err := db.NewDBDriver(p)
	require.NoError(t, err)
	require.NoError(t, driver.Migrate(ctx))

	ts := store.New(driver, p)
	t.Cleanup(func() {
		ts.Close() //nolint:errcheck
	})
	return ts
}
