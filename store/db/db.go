// Package db provides the database driver factory.
package db

import (
	"github.com/pkg/errors"

	"github.com/hanbai/mescopilot/internal/profile"
	"github.com/hanbai/mescopilot/store"
	"github.com/hanbai/mescopilot/store/db/postgres"
	"github.com/hanbai/mescopilot/store/db/sqlite"
)

// NewDBDriver creates new db driver based on profile.
//
// PostgreSQL is the reference implementation: learned-expression vector
// search runs inside the database via pgvector. SQLite is supported for
// development and small deployments; its vector search scans in process.
func NewDBDriver(profile *profile.Profile) (store.Driver, error) {
	var driver store.Driver
	var err error

	switch profile.Driver {
	case "sqlite":
		driver, err = sqlite.NewDB(profile)
	case "postgres":
		driver, err = postgres.NewDB(profile)
	default:
		return nil, errors.New("unknown db driver: only 'postgres' and 'sqlite' are supported")
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to create db driver")
	}
	return driver, nil
}
