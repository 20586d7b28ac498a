// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package store manages the PostgreSQL connection and schema for authd.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// Connection defaults.
const (
	DefaultConnectAttempts = 5
	DefaultConnectBackoff  = 500 * time.Millisecond
	maxConnectBackoff      = 5 * time.Second
)

// ConnectOptions tune Connect.
type ConnectOptions struct {
	// Attempts is the total number of connection attempts. Zero selects
	// DefaultConnectAttempts.
	Attempts int
	// Backoff is the first retry delay; it doubles per attempt. Zero selects
	// DefaultConnectBackoff.
	Backoff time.Duration
	Logger  *slog.Logger
}

// pingFunc dials and pings; replaced in tests.
type pingFunc func(ctx context.Context, url string) (*pgxpool.Pool, error)

func dialAndPing(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").Wrap(err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, oops.Code("DB_PING_FAILED").Wrap(err)
	}
	return pool, nil
}

// Connect opens a pgx pool and pings it, retrying with exponential backoff
// while the database is unreachable. An unparsable URL fails immediately.
func Connect(ctx context.Context, url string, opts ConnectOptions) (*pgxpool.Pool, error) {
	return connect(ctx, url, opts, dialAndPing)
}

func connect(ctx context.Context, url string, opts ConnectOptions, dial pingFunc) (*pgxpool.Pool, error) {
	if url == "" {
		return nil, oops.Code("DB_URL_MISSING").Errorf("database URL is required")
	}
	attempts := opts.Attempts
	if attempts <= 0 {
		attempts = DefaultConnectAttempts
	}
	base := opts.Backoff
	if base <= 0 {
		base = DefaultConnectBackoff
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	backoff := retry.WithCappedDuration(maxConnectBackoff, retry.NewExponential(base))
	backoff = retry.WithMaxRetries(uint64(attempts-1), backoff) //nolint:gosec // attempts > 0

	var (
		pool    *pgxpool.Pool
		attempt int
	)
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		p, err := dial(ctx, url)
		if err != nil {
			if oopsErr, ok := oops.AsOops(err); ok && oopsErr.Code() == "DB_CONFIG_INVALID" {
				return err
			}
			logger.WarnContext(ctx, "database not reachable, retrying",
				"attempt", attempt,
				"max_attempts", attempts,
				"error", err)
			return retry.RetryableError(err)
		}
		pool = p
		return nil
	})
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("attempts", attempt).Wrap(err)
	}
	return pool, nil
}
