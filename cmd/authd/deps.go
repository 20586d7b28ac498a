// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net/http"

	"github.com/holomush/authd/internal/auth"
	"github.com/holomush/authd/internal/config"
	"github.com/holomush/authd/internal/observability"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// BackendFactory opens the configured credential store.
	// Default: openBackend
	BackendFactory func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Backend, error)

	// APIServerFactory creates the auth API server.
	// tlsConfig is nil unless tls.certs_dir is set.
	// Default: api.NewServer
	APIServerFactory func(addr string, handler http.Handler, tlsConfig *tls.Config, logger *slog.Logger) HTTPServer

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, ready observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer

	// Ready is signalled once both servers are listening. Tests use it to
	// learn the bound addresses.
	Ready func(api HTTPServer, obs ObservabilityServer)
}

// Backend is an opened credential store.
type Backend struct {
	Store auth.CredentialStore
	// Ready reports store health for the readiness probe.
	Ready observability.ReadinessChecker
	// Close releases the store's resources.
	Close func()
}

// HTTPServer interface wraps the methods used from api.Server.
type HTTPServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

// ObservabilityServer interface wraps the methods used from observability.Server.
type ObservabilityServer interface {
	HTTPServer
	Metrics() *observability.Metrics
}

// Migrator interface wraps the methods used from store.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Reset() error
	Steps(n int) error
	Version() (uint, bool, error)
	Force(version int) error
	PendingMigrations() ([]uint, error)
	AppliedMigrations() ([]uint, error)
	Close() error
}
