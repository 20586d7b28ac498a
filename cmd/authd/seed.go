// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"crypto/rand"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/authd/internal/auth"
	"github.com/holomush/authd/internal/auth/postgres"
	"github.com/holomush/authd/internal/config"
	"github.com/holomush/authd/internal/observability"
	"github.com/holomush/authd/internal/seed"
	"github.com/holomush/authd/internal/store"
)

// Defaults for the seed command.
const (
	defaultSeedTimeout = 2 * time.Minute
	defaultSeedFile    = "seeds/users.yaml"
)

// seedConfig holds configuration for the seed command.
type seedConfig struct {
	databaseURL string
	file        string
	reset       bool
	timeout     time.Duration
}

// SeedDeps contains injectable dependencies for the seed command.
type SeedDeps struct {
	// MigratorFactory opens the schema migrator.
	// Default: store.NewMigrator
	MigratorFactory MigratorFactory

	// StoreFactory opens the credential store after migrations ran.
	// Default: store.Connect with postgres.NewUserStore
	StoreFactory func(ctx context.Context, databaseURL string) (*Backend, error)
}

// NewSeedCmd creates the seed subcommand.
func NewSeedCmd() *cobra.Command {
	cfg := &seedConfig{}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Register the users listed in a seed fixture",
		Long: `Registers every user in a YAML seed fixture, migrating the database first.
This command is idempotent - users whose email already exists are skipped.

With --reset the schema is dropped and recreated before seeding, giving a
clean database with exactly the fixture users.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSeedWithDeps(cmd, cfg, nil)
		},
	}

	cmd.Flags().StringVar(&cfg.databaseURL, "database-url", os.Getenv(config.EnvDatabaseURL),
		"PostgreSQL connection URL (env "+config.EnvDatabaseURL+")")
	cmd.Flags().StringVar(&cfg.file, "file", defaultSeedFile, "seed fixture path")
	cmd.Flags().BoolVar(&cfg.reset, "reset", false, "drop and recreate the schema before seeding")
	cmd.Flags().DurationVar(&cfg.timeout, "timeout", defaultSeedTimeout, "timeout for the whole run (e.g., 30s, 1m)")

	return cmd
}

func runSeedWithDeps(cmd *cobra.Command, cfg *seedConfig, deps *SeedDeps) error {
	if deps == nil {
		deps = &SeedDeps{}
	}
	if deps.MigratorFactory == nil {
		deps.MigratorFactory = defaultMigratorFactory
	}
	if deps.StoreFactory == nil {
		deps.StoreFactory = connectUserStore
	}

	if cfg.databaseURL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("%s environment variable or --database-url is required", config.EnvDatabaseURL)
	}

	// Parse before touching the database so a bad fixture cannot leave it reset and empty.
	fixture, err := seed.Load(cfg.file)
	if err != nil {
		return err
	}

	// Use cmd.Context() to respect SIGINT/SIGTERM signals
	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.timeout)
	defer cancel()

	err = withMigrator(cmd, deps.MigratorFactory, cfg.databaseURL, func(cmd *cobra.Command, m Migrator) error {
		if cfg.reset {
			cmd.Println("Resetting database...")
			return m.Reset()
		}
		cmd.Println("Running migrations...")
		return m.Up()
	})
	if err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "prepare schema").Wrap(err)
	}

	backend, err := deps.StoreFactory(ctx, cfg.databaseURL)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer backend.Close()

	svc, err := newSeedService(backend.Store)
	if err != nil {
		return err
	}

	report, err := seed.Apply(ctx, svc, fixture)
	if err != nil {
		return oops.Code("SEED_FAILED").With("created", report.Created).Wrap(err)
	}

	slog.Info("seed fixture applied", "path", cfg.file, "created", report.Created, "skipped", report.Skipped)
	cmd.Printf("Seeding complete: %d created, %d already present\n", report.Created, report.Skipped)
	return nil
}

func connectUserStore(ctx context.Context, databaseURL string) (*Backend, error) {
	pool, err := store.Connect(ctx, databaseURL, store.ConnectOptions{})
	if err != nil {
		return nil, err
	}
	users := postgres.NewUserStore(pool)
	return &Backend{Store: users, Ready: users.Ping, Close: pool.Close}, nil
}

// newSeedService builds a service whose tokens are discarded, so it signs
// with a throwaway random secret.
func newSeedService(credentials auth.CredentialStore) (*auth.Service, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, oops.Code("SEED_SECRET_FAILED").Wrap(err)
	}
	cfg := &config.Config{
		Store: config.StoreConfig{Timeout: auth.DefaultStoreTimeout},
		Token: config.TokenConfig{Secret: string(secret), TTL: time.Minute},
		Hash:  config.HashConfig{Workers: runtime.NumCPU(), Timeout: auth.DefaultHashTimeout},
	}
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	return buildService(cfg, credentials, metrics, slog.Default())
}
