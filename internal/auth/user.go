// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Input limits.
const (
	MaxEmailLength    = 254
	MaxUsernameLength = 64
)

// User is a stored identity record. Email is the unique key and is compared
// exactly, without case folding.
type User struct {
	ID           ulid.ULID
	Email        string
	Username     string
	PasswordHash string `json:"-"`
	CreatedAt    time.Time
}

// NewUser creates a validated User with a fresh ID.
func NewUser(email, username, passwordHash string) (*User, error) {
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, oops.Code(CodeInvalidInput).With("field", "password_hash").Wrapf(ErrInvalidInput, "password hash cannot be empty")
	}
	return &User{
		ID:           ulid.Make(),
		Email:        email,
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC().Truncate(time.Microsecond),
	}, nil
}

// ValidateEmail performs the minimal shape check applied at registration.
func ValidateEmail(email string) error {
	if email == "" {
		return oops.Code(CodeInvalidInput).With("field", "email").Wrapf(ErrInvalidInput, "email cannot be empty")
	}
	if !printable(email) {
		return oops.Code(CodeInvalidInput).With("field", "email").Wrapf(ErrInvalidInput, "email contains control characters")
	}
	if len(email) > MaxEmailLength {
		return oops.Code(CodeInvalidInput).
			With("field", "email").
			With("max", MaxEmailLength).
			Wrapf(ErrInvalidInput, "email must be at most %d characters", MaxEmailLength)
	}
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 {
		return oops.Code(CodeInvalidInput).With("field", "email").Wrapf(ErrInvalidInput, "email must contain a local part and a domain")
	}
	return nil
}

// ValidateUsername checks the display name. Usernames are not unique.
func ValidateUsername(username string) error {
	if strings.TrimSpace(username) == "" {
		return oops.Code(CodeInvalidInput).With("field", "username").Wrapf(ErrInvalidInput, "username cannot be empty")
	}
	if !printable(username) {
		return oops.Code(CodeInvalidInput).With("field", "username").Wrapf(ErrInvalidInput, "username contains control characters")
	}
	if len(username) > MaxUsernameLength {
		return oops.Code(CodeInvalidInput).
			With("field", "username").
			With("max", MaxUsernameLength).
			Wrapf(ErrInvalidInput, "username must be at most %d characters", MaxUsernameLength)
	}
	return nil
}

// printable reports whether s is valid UTF-8 without control characters.
// PostgreSQL text columns reject NUL bytes.
func printable(s string) bool {
	return utf8.ValidString(s) && !strings.ContainsFunc(s, unicode.IsControl)
}

// CredentialStore persists users and enforces email uniqueness.
type CredentialStore interface {
	// Create stores a new user. Returns an error wrapping ErrDuplicateEmail if
	// a user with the same email exists. The check and the insert are atomic.
	Create(ctx context.Context, user *User) error

	// FindByEmail retrieves a user by exact email.
	// Returns an error wrapping ErrNotFound if no user has the given email.
	FindByEmail(ctx context.Context, email string) (*User, error)
}

// Pinger is implemented by stores that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}
