// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 llmqa Contributors

package store

import (
	"embed"
	"errors"
	"slices"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	// pgx/v5 driver, registered as the pgx5:// scheme.
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/samber/oops"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const migrationsDir = "migrations"

// migrateIface is the part of *migrate.Migrate that Migrator drives.
type migrateIface interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (version uint, dirty bool, err error)
	Force(version int) error
	Close() (source error, database error)
}

// Migrator applies the embedded PostgreSQL schema to a database.
type Migrator struct {
	m migrateIface
}

// NewMigrator opens databaseURL for migration. postgres:// and postgresql://
// are accepted alongside golang-migrate's native pgx5://.
func NewMigrator(databaseURL string) (*Migrator, error) {
	src, err := iofs.New(migrationsFS, migrationsDir)
	if err != nil {
		return nil, oops.Code("MIGRATION_SOURCE_FAILED").Wrap(err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, migrateURL(databaseURL))
	if err != nil {
		_ = src.Close() //nolint:errcheck // reporting the init error
		return nil, oops.Code("MIGRATION_INIT_FAILED").Wrap(err)
	}
	return &Migrator{m: m}, nil
}

func migrateURL(databaseURL string) string {
	if _, rest, ok := strings.Cut(databaseURL, "://"); ok && IsPostgresURL(databaseURL) {
		return "pgx5://" + rest
	}
	return databaseURL
}

// IsPostgresURL reports whether url names a PostgreSQL database.
func IsPostgresURL(url string) bool {
	return strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://")
}

// settled treats migrate.ErrNoChange as success.
func settled(err error, code string) error {
	if err == nil || errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return oops.Code(code).Wrap(err)
}

// Up applies every pending migration.
func (m *Migrator) Up() error {
	return settled(m.m.Up(), "MIGRATION_UP_FAILED")
}

// Down reverts every migration. All user rows are lost.
func (m *Migrator) Down() error {
	return settled(m.m.Down(), "MIGRATION_DOWN_FAILED")
}

// Steps moves n migrations forward, or back when n is negative.
func (m *Migrator) Steps(n int) error {
	if err := settled(m.m.Steps(n), "MIGRATION_STEPS_FAILED"); err != nil {
		return oops.With("steps", n).Wrap(err)
	}
	return nil
}

// Version reports the applied version. A database with nothing applied is
// version 0 and clean.
func (m *Migrator) Version() (uint, bool, error) {
	version, dirty, err := m.m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		return 0, false, nil
	case err != nil:
		return 0, false, oops.Code("MIGRATION_VERSION_FAILED").Wrap(err)
	}
	return version, dirty, nil
}

// Force marks version as applied and clears the dirty flag without running SQL.
func (m *Migrator) Force(version int) error {
	if version < 0 {
		return oops.Code("INVALID_VERSION").Errorf("version must be non-negative, got %d", version)
	}
	if err := m.m.Force(version); err != nil {
		return oops.Code("MIGRATION_FORCE_FAILED").With("version", version).Wrap(err)
	}
	return nil
}

// PendingMigrations lists, ascending, the versions Up would apply.
func (m *Migrator) PendingMigrations() ([]uint, error) {
	current, _, err := m.Version()
	if err != nil {
		return nil, err
	}
	versions, err := migrationVersions()
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(versions, func(v uint) bool { return v <= current }), nil
}

// Close releases both migrate handles.
func (m *Migrator) Close() error {
	srcErr, dbErr := m.m.Close()
	if err := errors.Join(srcErr, dbErr); err != nil {
		return oops.Code("MIGRATION_CLOSE_FAILED").
			With("source_failed", srcErr != nil).
			With("database_failed", dbErr != nil).
			Wrap(err)
	}
	return nil
}

// embeddedMigrations maps each embedded up-migration version to its
// NNNNNN_name base.
func embeddedMigrations() (map[uint]string, error) {
	entries, err := migrationsFS.ReadDir(migrationsDir)
	if err != nil {
		return nil, oops.Code("MIGRATION_LIST_FAILED").Wrap(err)
	}

	out := make(map[uint]string, len(entries)/2)
	for _, entry := range entries {
		base, ok := strings.CutSuffix(entry.Name(), ".up.sql")
		if !ok {
			continue
		}
		prefix, _, _ := strings.Cut(base, "_")
		version, err := strconv.ParseUint(prefix, 10, 64)
		if err != nil {
			return nil, oops.Code("MIGRATION_LIST_FAILED").With("filename", entry.Name()).Wrap(err)
		}
		out[uint(version)] = base
	}
	return out, nil
}

func migrationVersions() ([]uint, error) {
	migrations, err := embeddedMigrations()
	if err != nil {
		return nil, err
	}
	versions := make([]uint, 0, len(migrations))
	for v := range migrations {
		versions = append(versions, v)
	}
	slices.Sort(versions)
	return versions, nil
}

// MigrationName returns the NNNNNN_name base for version, or "" if no such
// migration is embedded.
func MigrationName(version uint) (string, error) {
	migrations, err := embeddedMigrations()
	if err != nil {
		return "", err
	}
	return migrations[version], nil
}
