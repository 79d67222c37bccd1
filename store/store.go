// Package store provides database access to all raw objects of the
// recommendation core: the read-only opportunity catalog, the vector index,
// user preference vectors, feedback events and the ranking config.
package store

import (
	"github.com/edupath/beacon/internal/profile"
)

// Store provides database access to all raw objects.
type Store struct {
	profile *profile.Profile
	driver  Driver
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	return &Store{
		driver:  driver,
		profile: profile,
	}
}

// GetDriver returns the underlying driver.
func (s *Store) GetDriver() Driver {
	return s.driver
}

// Close closes the underlying driver.
func (s *Store) Close() error {
	return s.driver.Close()
}
