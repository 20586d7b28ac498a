// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package memory provides an in-process auth.CredentialStore.
//
// Each Store is an isolated instance; tests create a fresh one per run instead
// of sharing process-wide state.
package memory

import (
	"context"
	"sync"

	"github.com/samber/oops"

	"github.com/holomush/authd/internal/auth"
)

// Store implements auth.CredentialStore with a map guarded by a mutex.
type Store struct {
	mu      sync.RWMutex
	byEmail map[string]auth.User
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{byEmail: make(map[string]auth.User)}
}

// Create stores a copy of user. The existence check and the insert happen
// under one write lock.
func (s *Store) Create(ctx context.Context, user *auth.User) error {
	if err := ctx.Err(); err != nil {
		return oops.Code("USER_CREATE_FAILED").With("operation", "create user").Wrap(err)
	}
	if user == nil {
		return oops.Code("USER_CREATE_FAILED").Errorf("user cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[user.Email]; exists {
		return oops.Code("USER_DUPLICATE_EMAIL").
			With("email", user.Email).
			Wrap(auth.ErrDuplicateEmail)
	}
	s.byEmail[user.Email] = *user
	return nil
}

// FindByEmail returns a copy of the user with exactly this email.
func (s *Store) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, oops.Code("USER_GET_BY_EMAIL_FAILED").With("operation", "get user by email").Wrap(err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byEmail[email]
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").With("email", email).Wrap(auth.ErrNotFound)
	}
	return &u, nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Len returns the number of stored users.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byEmail)
}

// Reset removes every user.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byEmail = make(map[string]auth.User)
}

var (
	_ auth.CredentialStore = (*Store)(nil)
	_ auth.Pinger          = (*Store)(nil)
)
