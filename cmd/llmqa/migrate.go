// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 llmqa Contributors

package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/llmqa/llmqa/internal/store"
)

// migrator is the subset of store.Migrator used by the migrate commands.
type migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (uint, bool, error)
	Force(version int) error
	PendingMigrations() ([]uint, error)
	Close() error
}

// newMigrator is a test seam for store.NewMigrator.
var newMigrator = func(databaseURL string) (migrator, error) {
	return store.NewMigrator(databaseURL)
}

// NewMigrateCmd creates the migrate command group.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage PostgreSQL schema migrations",
		Long: `Apply, roll back or inspect the PostgreSQL schema. SQLite and
in-memory stores create their schema on open and need no migrations.`,
	}
	cmd.PersistentFlags().String("database-url", "", "PostgreSQL database URL (overrides DATABASE_URL)")

	cmd.AddCommand(newMigrateUpCmd(), newMigrateDownCmd())

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show the current schema version and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, func(m migrator) error {
				if err := printVersion(cmd, m); err != nil {
					return err
				}
				pending, err := m.PendingMigrations()
				if err != nil {
					return oops.Code("MIGRATION_FAILED").With("operation", "list pending").Wrap(err)
				}
				for _, v := range pending {
					name, nameErr := store.MigrationName(v)
					if nameErr != nil || name == "" {
						name = strconv.FormatUint(uint64(v), 10)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "pending: %s\n", name)
				}
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Mark the schema as VERSION without running migrations",
		Long:  `Clear a dirty migration state by recording VERSION as applied.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := parseForceVersion(args[0])
			if err != nil {
				return err
			}
			return withMigrator(cmd, func(m migrator) error {
				if err := m.Force(version); err != nil {
					return oops.Code("MIGRATION_FAILED").With("operation", "force").Wrap(err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Forced schema version to %d\n", version)
				return nil
			})
		},
	})

	return cmd
}

func newMigrateUpCmd() *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateSteps(steps); err != nil {
				return err
			}
			return withMigrator(cmd, func(m migrator) error {
				var err error
				if steps > 0 {
					err = m.Steps(steps)
				} else {
					err = m.Up()
				}
				if err != nil {
					return oops.Code("MIGRATION_FAILED").With("direction", "up").Wrap(err)
				}
				return printVersion(cmd, m)
			})
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 0, "apply only the next N migrations (0 = all)")
	return cmd
}

func newMigrateDownCmd() *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Long:  `Roll back every migration, or only the last N with --steps.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateSteps(steps); err != nil {
				return err
			}
			return withMigrator(cmd, func(m migrator) error {
				if steps == 0 {
					if err := m.Down(); err != nil {
						return oops.Code("MIGRATION_FAILED").With("direction", "down").Wrap(err)
					}
					fmt.Fprintln(cmd.OutOrStdout(), "All migrations rolled back")
					return nil
				}
				if err := m.Steps(-steps); err != nil {
					return oops.Code("MIGRATION_FAILED").With("direction", "down").With("steps", steps).Wrap(err)
				}
				return printVersion(cmd, m)
			})
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 0, "roll back only the last N migrations (0 = all)")
	return cmd
}

func validateSteps(steps int) error {
	if steps < 0 {
		return oops.Code("INVALID_STEPS").With("steps", steps).Errorf("--steps must be non-negative")
	}
	return nil
}

func withMigrator(cmd *cobra.Command, fn func(migrator) error) error {
	databaseURL, err := migrationDatabaseURL(cmd)
	if err != nil {
		return err
	}

	m, err := newMigrator(databaseURL)
	if err != nil {
		return err //nolint:wrapcheck // coded by store
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			cmd.PrintErrln("warning: failed to close migrator:", closeErr)
		}
	}()

	return fn(m)
}

// migrationDatabaseURL resolves the database URL from --database-url or the
// loaded configuration and requires it to name PostgreSQL.
func migrationDatabaseURL(cmd *cobra.Command) (string, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return "", err
	}
	url := cfg.DatabaseURL
	if !store.IsPostgresURL(url) {
		return "", oops.Code("CONFIG_INVALID").
			With("field", "DATABASE_URL").
			Errorf("migrations require a postgres:// database URL")
	}
	return url, nil
}

func printVersion(cmd *cobra.Command, m migrator) error {
	version, dirty, err := m.Version()
	if err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "version").Wrap(err)
	}
	if version == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "Schema version: none")
		return nil
	}
	suffix := ""
	if dirty {
		suffix = " (dirty)"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Schema version: %d%s\n", version, suffix)
	return nil
}

func parseForceVersion(s string) (int, error) {
	version, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Errorf("version must be an integer")
	}
	if version < 0 {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Errorf("version must be non-negative")
	}
	return version, nil
}
