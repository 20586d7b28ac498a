// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/samber/oops"
	"golang.org/x/sync/semaphore"
)

// Hash pool defaults.
const (
	DefaultHashTimeout = 10 * time.Second
)

// HashObserver receives the wall-clock duration of each completed hash operation.
// op is "hash" or "verify".
type HashObserver func(op string, d time.Duration)

// HashPool runs CPU-bound password hashing on a bounded number of workers so
// that a burst of registrations or logins cannot starve unrelated requests.
// Every operation is bounded by the pool timeout and the caller's context.
type HashPool struct {
	hasher   PasswordHasher
	sem      *semaphore.Weighted
	workers  int64
	timeout  time.Duration
	inUse    atomic.Int64
	observer HashObserver
}

// HashPoolOption configures a HashPool.
type HashPoolOption func(*HashPool)

// WithHashObserver registers a callback invoked after each hash or verify.
func WithHashObserver(o HashObserver) HashPoolOption {
	return func(p *HashPool) { p.observer = o }
}

// NewHashPool creates a pool running at most workers concurrent operations.
// A zero timeout selects DefaultHashTimeout.
func NewHashPool(hasher PasswordHasher, workers int, timeout time.Duration, opts ...HashPoolOption) (*HashPool, error) {
	if hasher == nil {
		return nil, oops.Code("HASH_POOL_INVALID").Errorf("password hasher is required")
	}
	if workers <= 0 {
		return nil, oops.Code("HASH_POOL_INVALID").With("workers", workers).Errorf("workers must be positive")
	}
	if timeout < 0 {
		return nil, oops.Code("HASH_POOL_INVALID").With("timeout", timeout).Errorf("timeout cannot be negative")
	}
	if timeout == 0 {
		timeout = DefaultHashTimeout
	}
	p := &HashPool{
		hasher:  hasher,
		sem:     semaphore.NewWeighted(int64(workers)),
		workers: int64(workers),
		timeout: timeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Workers returns the pool capacity.
func (p *HashPool) Workers() int { return int(p.workers) }

// InUse returns the number of operations currently holding a worker.
func (p *HashPool) InUse() int64 { return p.inUse.Load() }

// Hash hashes password on a pool worker.
func (p *HashPool) Hash(ctx context.Context, password string) (string, error) {
	type result struct {
		hash string
		err  error
	}
	res, err := run(ctx, p, "hash", func() result {
		h, err := p.hasher.Hash(password)
		return result{h, err}
	})
	if err != nil {
		return "", err
	}
	return res.hash, res.err
}

// Verify checks password against hash on a pool worker.
func (p *HashPool) Verify(ctx context.Context, password, hash string) (bool, error) {
	type result struct {
		ok  bool
		err error
	}
	res, err := run(ctx, p, "verify", func() result {
		ok, err := p.hasher.Verify(password, hash)
		return result{ok, err}
	})
	if err != nil {
		return false, err
	}
	return res.ok, res.err
}

// run acquires a worker, executes fn on it and waits for the result or the deadline.
// A worker whose caller gave up keeps its slot until fn returns, so the pool
// never runs more than its capacity of hashes at once.
func run[T any](ctx context.Context, p *HashPool, op string, fn func() T) (T, error) {
	var zero T

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return zero, oops.Code("HASH_POOL_TIMEOUT").
			With("operation", op).
			With("stage", "acquire").
			Wrap(err)
	}
	p.inUse.Add(1)

	done := make(chan T, 1)
	go func() {
		start := time.Now()
		defer func() {
			p.inUse.Add(-1)
			p.sem.Release(1)
		}()
		out := fn()
		if p.observer != nil {
			p.observer(op, time.Since(start))
		}
		done <- out
	}()

	select {
	case out := <-done:
		return out, nil
	case <-ctx.Done():
		return zero, oops.Code("HASH_POOL_TIMEOUT").
			With("operation", op).
			With("stage", "compute").
			Wrap(ctx.Err())
	}
}
