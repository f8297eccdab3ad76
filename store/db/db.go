package db

import (
	"github.com/pkg/errors"

	"github.com/versecraft/lyricmem/internal/profile"
	"github.com/versecraft/lyricmem/store"
	"github.com/versecraft/lyricmem/store/db/postgres"
	"github.com/versecraft/lyricmem/store/db/sqlite"
)

// NewDBDriver creates a db driver based on the profile.
//
// SQLite is the default: a personal lyric archive is a single-writer local
// store, and keeping metadata and vectors in one file gives transactional
// dual writes for free. PostgreSQL (with pgvector) is supported for setups
// that outgrow a brute-force vector scan.
func NewDBDriver(profile *profile.Profile) (store.Driver, error) {
	var driver store.Driver
	var err error

	switch profile.Driver {
	case "sqlite":
		driver, err = sqlite.NewDB(profile)
	case "postgres":
		driver, err = postgres.NewDB(profile)
	default:
		return nil, errors.Errorf("unknown db driver %q: only 'sqlite' and 'postgres' are supported", profile.Driver)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to create db driver")
	}
	return driver, nil
}
