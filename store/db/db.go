// Package db selects the concrete store driver from the profile.
package db

import (
	"github.com/pkg/errors"

	"github.com/hrygo/mnemosyne/internal/profile"
	"github.com/hrygo/mnemosyne/store"
	"github.com/hrygo/mnemosyne/store/db/memory"
	"github.com/hrygo/mnemosyne/store/db/postgres"
	"github.com/hrygo/mnemosyne/store/db/sqlite"
)

// NewDBDriver creates a new db driver based on profile.
func NewDBDriver(profile *profile.Profile) (store.Driver, error) {
	var driver store.Driver
	var err error

	switch profile.Driver {
	case "memory":
		driver, err = memory.NewDB(profile)
	case "sqlite":
		driver, err = sqlite.NewDB(profile)
	case "postgres":
		driver, err = postgres.NewDB(profile)
	default:
		return nil, errors.Errorf("unsupported driver %q", profile.Driver)
	}

	return driver, err
}
