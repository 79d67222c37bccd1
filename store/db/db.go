package db

import (
	"github.com/pkg/errors"

	"github.com/edupath/beacon/internal/profile"
	"github.com/edupath/beacon/store"
	"github.com/edupath/beacon/store/db/postgres"
	"github.com/edupath/beacon/store/db/sqlite"
)

// NewDBDriver creates a new db driver based on the profile.
//
// PostgreSQL is the production driver: vector search runs inside the database
// through the pgvector extension. SQLite is for development and tests only;
// it persists vectors as JSON and scores them in Go.
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
