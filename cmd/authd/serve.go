// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"crypto/tls"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/authd/internal/api"
	"github.com/holomush/authd/internal/auth"
	"github.com/holomush/authd/internal/auth/memory"
	"github.com/holomush/authd/internal/auth/postgres"
	"github.com/holomush/authd/internal/config"
	"github.com/holomush/authd/internal/logging"
	"github.com/holomush/authd/internal/observability"
	"github.com/holomush/authd/internal/seed"
	"github.com/holomush/authd/internal/store"
	authdtls "github.com/holomush/authd/internal/tls"
)

// shutdownTimeout bounds draining in-flight requests.
const shutdownTimeout = 10 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the authentication API",
		Long: `Start the authentication HTTP API and the metrics/health listener.

With the postgres store, pending migrations are applied on startup.
Settings come from the config file, overridden by any flags given.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeWithDeps(cmd.Context(), cmd, nil)
		},
	}
	config.RegisterFlags(cmd.Flags())
	return cmd
}

// loadConfig loads and validates configuration from the --config file and cmd's flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.Flags(), configFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setupLogging installs the default logger described by cfg.
func setupLogging(cfg *config.Config, w io.Writer) (*slog.Logger, error) {
	format, err := logging.ParseFormat(cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	return logging.SetDefault(logging.Options{
		Service: "authd",
		Version: version,
		Format:  format,
		Level:   level,
	}, w), nil
}

// runServeWithDeps starts authd with injectable dependencies.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cmd *cobra.Command, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	if deps.BackendFactory == nil {
		deps.BackendFactory = openBackend
	}
	if deps.APIServerFactory == nil {
		deps.APIServerFactory = func(addr string, handler http.Handler, tlsConfig *tls.Config, logger *slog.Logger) HTTPServer {
			return api.NewServer(addr, handler, logger, api.WithTLS(tlsConfig))
		}
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, ready observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer {
			return observability.NewServer(addr, ready, logger)
		}
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return oops.With("operation", "load configuration").Wrap(err)
	}

	logger, err := setupLogging(cfg, cmd.ErrOrStderr())
	if err != nil {
		return oops.With("operation", "set up logging").Wrap(err)
	}

	shutdownTracing, err := observability.SetupTracing(ctx, observability.TracingOptions{
		Endpoint: cfg.Tracing.Endpoint,
		Service:  "authd",
		Version:  version,
	})
	if err != nil {
		return oops.With("operation", "set up tracing").Wrap(err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("failed to flush traces", "error", err)
		}
	}()

	logger.Info("starting authd",
		"http_addr", cfg.HTTP.Addr,
		"store", cfg.Store.Backend,
		"hash_workers", cfg.Hash.Workers,
	)

	backend, err := deps.BackendFactory(ctx, cfg, logger)
	if err != nil {
		return oops.With("operation", "open credential store").Wrap(err)
	}
	defer backend.Close()

	var obsServer ObservabilityServer
	var metrics *observability.Metrics
	if cfg.Metrics.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr, backend.Ready, logger)
		metrics = obsServer.Metrics()
	} else {
		metrics = observability.NewMetrics(prometheus.NewRegistry())
	}

	svc, err := buildService(cfg, backend.Store, metrics, logger)
	if err != nil {
		return err
	}

	if cfg.Seed.File != "" {
		if err := applySeed(ctx, svc, cfg.Seed.File, logger); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var tlsConfig *tls.Config
	if cfg.TLS.CertsDir != "" {
		tlsConfig, err = authdtls.EnsureServerTLS(cfg.TLS.CertsDir, cfg.TLS.Hosts)
		if err != nil {
			return oops.With("operation", "load tls certificates").Wrap(err)
		}
		logger.Info("api tls enabled", "certs_dir", cfg.TLS.CertsDir)
	}

	handler := api.NewHandler(svc, api.WithHandlerLogger(logger), api.WithRecorder(metrics))
	apiServer := deps.APIServerFactory(cfg.HTTP.Addr, handler, tlsConfig, logger)
	apiErrChan, err := apiServer.Start()
	if err != nil {
		return oops.With("operation", "start api server").Wrap(err)
	}
	go monitorServerErrors(ctx, cancel, apiErrChan, "api", logger)

	if obsServer != nil {
		obsErrChan, err := obsServer.Start()
		if err != nil {
			stopServer(apiServer, "api", logger)
			return oops.With("operation", "start observability server").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability", logger)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("authd started")
	logger.Info("authd ready", "http_addr", apiServer.Addr())
	if deps.Ready != nil {
		deps.Ready(apiServer, obsServer)
	}

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	stopServer(apiServer, "api", logger)
	if obsServer != nil {
		stopServer(obsServer, "observability", logger)
	}

	logger.Info("shutdown complete")
	return nil
}

func buildService(cfg *config.Config, credentials auth.CredentialStore, metrics *observability.Metrics, logger *slog.Logger) (*auth.Service, error) {
	pool, err := auth.NewHashPool(auth.NewArgon2idHasher(), cfg.Hash.Workers, cfg.Hash.Timeout,
		auth.WithHashObserver(metrics.ObserveHash))
	if err != nil {
		return nil, oops.With("operation", "create hash pool").Wrap(err)
	}
	metrics.RegisterPool(pool)

	issuer, err := auth.NewJWTIssuer([]byte(cfg.Token.Secret), cfg.Token.TTL)
	if err != nil {
		return nil, oops.With("operation", "create token issuer").Wrap(err)
	}

	svc, err := auth.NewService(credentials, pool, issuer,
		auth.WithLogger(logger),
		auth.WithStoreTimeout(cfg.Store.Timeout),
	)
	if err != nil {
		return nil, oops.With("operation", "create auth service").Wrap(err)
	}
	return svc, nil
}

func applySeed(ctx context.Context, r seed.Registrar, path string, logger *slog.Logger) error {
	fixture, err := seed.Load(path)
	if err != nil {
		return oops.With("operation", "load seed fixture").Wrap(err)
	}
	report, err := seed.Apply(ctx, r, fixture)
	if err != nil {
		return oops.With("operation", "apply seed fixture").Wrap(err)
	}
	logger.Info("seed fixture applied",
		"path", path,
		"created", report.Created,
		"skipped", report.Skipped,
	)
	return nil
}

// openBackend opens the credential store named by cfg. The postgres store is
// migrated to the latest schema before use.
func openBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Backend, error) {
	if cfg.Store.Backend == config.BackendMemory {
		s := memory.NewStore()
		logger.Warn("using in-memory credential store; users are lost on exit")
		return &Backend{Store: s, Ready: s.Ping, Close: func() {}}, nil
	}

	pool, err := store.Connect(ctx, cfg.Database.URL, store.ConnectOptions{
		Attempts: cfg.Database.ConnectAttempts,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("connected to database")

	if err := migrateUp(cfg.Database.URL, logger); err != nil {
		pool.Close()
		return nil, err
	}

	users := postgres.NewUserStore(pool)
	return &Backend{Store: users, Ready: users.Ping, Close: pool.Close}, nil
}

func migrateUp(databaseURL string, logger *slog.Logger) error {
	migrator, err := store.NewMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Warn("failed to close migrator", "error", closeErr)
		}
	}()
	pending, err := migrator.PendingMigrations()
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		logger.Debug("database schema up to date")
		return nil
	}
	if err := migrator.Up(); err != nil {
		return err
	}
	logger.Info("applied database migrations", "count", len(pending))
	return nil
}

func stopServer(s HTTPServer, name string, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		logger.Warn("error stopping server", "server", name, "error", err)
	}
}

// monitorServerErrors monitors a server's error channel and cancels the context on error.
// It exits when either an error is received, the channel is closed, or the context is cancelled.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string, logger *slog.Logger) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			logger.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
