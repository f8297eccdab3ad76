package store

import (
	"context"
	"embed"
	"fmt"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/versecraft/lyricmem/internal/version"
)

// Schema management: fresh installations get the full LATEST.sql for their
// driver; the applied schema version is stamped into system_setting so
// future incremental migrations know where to start from.
//
// Migration files live in store/migration/{driver}/LATEST.sql.

//go:embed migration
var migrationFS embed.FS

const (
	// LatestSchemaFileName is the full schema applied to new installations.
	LatestSchemaFileName = "LATEST.sql"

	schemaVersionSettingName = "schema_version"
)

// Migrate initializes the database schema when needed.
func (s *Store) Migrate(ctx context.Context) error {
	initialized, err := s.driver.IsInitialized(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to check if database is initialized")
	}
	if initialized {
		return nil
	}

	filePath := fmt.Sprintf("migration/%s/%s", s.profile.Driver, LatestSchemaFileName)
	buf, err := migrationFS.ReadFile(filePath)
	if err != nil {
		return errors.Wrapf(err, "failed to read latest schema file %q", filePath)
	}

	if _, err := s.driver.GetDB().ExecContext(ctx, string(buf)); err != nil {
		return errors.Wrap(err, "failed to apply latest schema")
	}

	if err := s.stampSchemaVersion(ctx); err != nil {
		return errors.Wrap(err, "failed to stamp schema version")
	}

	slog.Info("database initialized",
		"driver", s.profile.Driver,
		"schema_version", version.GetCurrentVersion(s.profile.Mode))
	return nil
}

// GetCurrentSchemaVersion returns the stamped schema version, or an empty
// string for an uninitialized database.
func (s *Store) GetCurrentSchemaVersion(ctx context.Context) (string, error) {
	var value string
	stmt := "SELECT value FROM system_setting WHERE name = " + s.placeholder(1)
	err := s.driver.GetDB().QueryRowContext(ctx, stmt, schemaVersionSettingName).Scan(&value)
	if err != nil {
		return "", errors.Wrap(err, "failed to read schema version")
	}
	return value, nil
}

func (s *Store) stampSchemaVersion(ctx context.Context) error {
	stmt := fmt.Sprintf(`INSERT INTO system_setting (name, value) VALUES (%s, %s)`,
		s.placeholder(1), s.placeholder(2))
	_, err := s.driver.GetDB().ExecContext(ctx, stmt,
		schemaVersionSettingName, version.GetCurrentVersion(s.profile.Mode))
	return err
}

func (s *Store) placeholder(n int) string {
	if s.profile.Driver == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}
