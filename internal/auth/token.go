// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Token configuration.
const (
	DefaultTokenTTL = 24 * time.Hour
	TokenIssuerName = "authd"
	MinSecretLength = 16
)

// TokenIssuer issues and verifies bearer tokens bound to a user.
type TokenIssuer interface {
	// Issue returns a fresh, non-empty token for the user.
	Issue(user *User) (string, error)

	// Parse verifies a token and returns its claims.
	Parse(token string) (*Claims, error)
}

// Claims are the JWT claims carried by issued tokens. Subject holds the user ID.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// UserID returns the subject as a ULID.
func (c *Claims) UserID() (ulid.ULID, error) {
	id, err := ulid.Parse(c.Subject)
	if err != nil {
		return ulid.ULID{}, oops.Code("TOKEN_INVALID_SUBJECT").With("subject", c.Subject).Wrap(err)
	}
	return id, nil
}

// JWTIssuer implements TokenIssuer with HMAC-SHA256 signed JWTs.
type JWTIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// JWTOption configures a JWTIssuer.
type JWTOption func(*JWTIssuer)

// WithClock overrides the time source used for issuing and validating tokens.
func WithClock(now func() time.Time) JWTOption {
	return func(j *JWTIssuer) { j.now = now }
}

// NewJWTIssuer creates a JWTIssuer. A zero ttl selects DefaultTokenTTL.
func NewJWTIssuer(secret []byte, ttl time.Duration, opts ...JWTOption) (*JWTIssuer, error) {
	if len(secret) < MinSecretLength {
		return nil, oops.Code("TOKEN_INVALID_SECRET").
			With("min", MinSecretLength).
			Errorf("token secret must be at least %d bytes", MinSecretLength)
	}
	if ttl < 0 {
		return nil, oops.Code("TOKEN_INVALID_TTL").With("ttl", ttl).Errorf("token ttl cannot be negative")
	}
	if ttl == 0 {
		ttl = DefaultTokenTTL
	}
	j := &JWTIssuer{secret: secret, ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(j)
	}
	if j.now == nil {
		return nil, oops.Code("TOKEN_INVALID_CLOCK").Errorf("clock cannot be nil")
	}
	return j, nil
}

// Issue signs a token for user valid for the configured TTL.
func (j *JWTIssuer) Issue(user *User) (string, error) {
	if user == nil || user.ID.Compare(ulid.ULID{}) == 0 {
		return "", oops.Code("TOKEN_INVALID_USER").Errorf("user ID cannot be zero")
	}
	now := j.now()
	claims := Claims{
		Email: user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    TokenIssuerName,
			Subject:   user.ID.String(),
			ID:        ulid.Make().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
	if err != nil {
		return "", oops.Code("TOKEN_SIGN_FAILED").With("user_id", user.ID.String()).Wrap(err)
	}
	return signed, nil
}

// Parse verifies signature, algorithm, issuer and expiry.
func (j *JWTIssuer) Parse(token string) (*Claims, error) {
	if token == "" {
		return nil, oops.Code("TOKEN_EMPTY").Errorf("token cannot be empty")
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return j.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(TokenIssuerName),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.now),
	)
	if err != nil {
		return nil, oops.Code("TOKEN_INVALID").Wrap(err)
	}
	return claims, nil
}

var _ TokenIssuer = (*JWTIssuer)(nil)
