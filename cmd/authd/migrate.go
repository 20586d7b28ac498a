// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/authd/internal/config"
	"github.com/holomush/authd/internal/store"
)

// MigratorFactory opens a Migrator for a database URL.
type MigratorFactory func(databaseURL string) (Migrator, error)

func defaultMigratorFactory(databaseURL string) (Migrator, error) {
	return store.NewMigrator(databaseURL)
}

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	return newMigrateCmd(defaultMigratorFactory)
}

func newMigrateCmd(factory MigratorFactory) *cobra.Command {
	var databaseURL string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
		Long: `Manage the PostgreSQL schema of the users table.

Without a subcommand, applies all pending migrations.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, factory, databaseURL, migrateUpAction)
		},
	}
	cmd.PersistentFlags().StringVar(&databaseURL, "database-url", os.Getenv(config.EnvDatabaseURL),
		"PostgreSQL connection URL (env "+config.EnvDatabaseURL+")")

	sub := func(use, short string, args cobra.PositionalArgs, action func(*cobra.Command, Migrator, []string) error) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  args,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withMigrator(cmd, factory, databaseURL, func(cmd *cobra.Command, m Migrator) error {
					return action(cmd, m, args)
				})
			},
		}
	}

	cmd.AddCommand(
		sub("up", "Apply all pending migrations", cobra.NoArgs, func(cmd *cobra.Command, m Migrator, _ []string) error {
			return migrateUpAction(cmd, m)
		}),
		sub("down", "Roll back all migrations", cobra.NoArgs, func(cmd *cobra.Command, m Migrator, _ []string) error {
			if err := m.Down(); err != nil {
				return err
			}
			cmd.Println("All migrations rolled back")
			return nil
		}),
		sub("reset", "Drop the schema and re-apply every migration", cobra.NoArgs, func(cmd *cobra.Command, m Migrator, _ []string) error {
			if err := m.Reset(); err != nil {
				return err
			}
			cmd.Println("Database reset")
			return nil
		}),
		sub("steps N", "Apply N migrations, or roll back -N", cobra.ExactArgs(1), func(cmd *cobra.Command, m Migrator, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return oops.Code("INVALID_STEPS").With("value", args[0]).Wrap(err)
			}
			if err := m.Steps(n); err != nil {
				return err
			}
			cmd.Printf("Applied %d step(s)\n", n)
			return nil
		}),
		sub("force VERSION", "Mark VERSION as applied and clear the dirty flag", cobra.ExactArgs(1), func(cmd *cobra.Command, m Migrator, args []string) error {
			v, err := strconv.Atoi(args[0])
			if err != nil {
				return oops.Code("INVALID_VERSION").With("value", args[0]).Wrap(err)
			}
			if err := m.Force(v); err != nil {
				return err
			}
			cmd.Printf("Forced version %d\n", v)
			return nil
		}),
		sub("status", "Show applied and pending migrations", cobra.NoArgs, func(cmd *cobra.Command, m Migrator, _ []string) error {
			return migrateStatusAction(cmd, m)
		}),
	)

	return cmd
}

func withMigrator(cmd *cobra.Command, factory MigratorFactory, databaseURL string, action func(*cobra.Command, Migrator) error) error {
	if databaseURL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("%s environment variable or --database-url is required", config.EnvDatabaseURL)
	}
	m, err := factory(databaseURL)
	if err != nil {
		return oops.Code("MIGRATION_INIT_FAILED").With("operation", "open migrator").Wrap(err)
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			cmd.PrintErrf("Warning: failed to close migrator: %v\n", closeErr)
		}
	}()
	return action(cmd, m)
}

func migrateUpAction(cmd *cobra.Command, m Migrator) error {
	pending, err := m.PendingMigrations()
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		cmd.Println("No pending migrations")
		return nil
	}
	if err := m.Up(); err != nil {
		return err
	}
	cmd.Printf("Applied %d migration(s)\n", len(pending))
	return nil
}

func migrateStatusAction(cmd *cobra.Command, m Migrator) error {
	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	applied, err := m.AppliedMigrations()
	if err != nil {
		return err
	}
	pending, err := m.PendingMigrations()
	if err != nil {
		return err
	}

	state := "clean"
	if dirty {
		state = "dirty"
	}
	cmd.Printf("Current version: %d (%s)\n", version, state)
	for _, v := range applied {
		cmd.Printf("  [applied] %s\n", migrationLabel(v))
	}
	for _, v := range pending {
		cmd.Printf("  [pending] %s\n", migrationLabel(v))
	}
	return nil
}

func migrationLabel(v uint) string {
	name, err := store.MigrationName(v)
	if err != nil || name == "" {
		return fmt.Sprintf("%06d", v)
	}
	return name
}
