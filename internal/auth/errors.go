// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import "errors"

// Store-level sentinels.
var (
	// ErrNotFound is returned by a CredentialStore when no user has the requested email.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateEmail is returned by a CredentialStore when a user with the
	// same email already exists.
	ErrDuplicateEmail = errors.New("duplicate email")
)

// Service-level failure kinds. Every error returned by Service matches exactly
// one of these with errors.Is, or none for an unclassified internal failure.
var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrEmailExists        = errors.New("email already exists")
	ErrUnknownEmail       = errors.New("unknown email")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrStoreUnavailable   = errors.New("store unavailable")
)

// Error codes attached to failures returned by Service.
const (
	CodeInvalidInput       = "AUTH_INVALID_INPUT"
	CodeEmailExists        = "AUTH_EMAIL_EXISTS"
	CodeUnknownEmail       = "AUTH_UNKNOWN_EMAIL"
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	CodeInvalidToken       = "AUTH_INVALID_TOKEN"
	CodeStoreUnavailable   = "AUTH_STORE_UNAVAILABLE"
	CodeInternal           = "AUTH_INTERNAL"
)

// classified tags an underlying failure with a failure kind so both stay
// reachable through errors.Is and errors.As.
type classified struct {
	kind  error
	cause error
}

func (c *classified) Error() string { return c.kind.Error() + ": " + c.cause.Error() }

func (c *classified) Unwrap() []error { return []error{c.kind, c.cause} }

func classify(kind, cause error) error {
	return &classified{kind: kind, cause: cause}
}
