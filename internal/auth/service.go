// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("authd/auth")

// DefaultStoreTimeout bounds each CredentialStore call made by Service.
const DefaultStoreTimeout = 5 * time.Second

// dummyPasswordHash is verified when the email is unknown so that both login
// failure paths spend the same time in the hasher. It never matches a password.
//
//nolint:gosec // G101: intentionally fake hash, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// Result is returned by a successful registration or login.
type Result struct {
	User  *User
	Token string
}

// Service provides registration, login and token authentication.
// It is safe for concurrent use.
type Service struct {
	store        CredentialStore
	pool         *HashPool
	tokens       TokenIssuer
	logger       *slog.Logger
	storeTimeout time.Duration
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the logger used for best-effort diagnostics.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

// WithStoreTimeout bounds each store call.
func WithStoreTimeout(d time.Duration) ServiceOption {
	return func(s *Service) { s.storeTimeout = d }
}

// NewService creates a Service.
func NewService(store CredentialStore, pool *HashPool, tokens TokenIssuer, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("credential store is required")
	}
	if pool == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("hash pool is required")
	}
	if tokens == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("token issuer is required")
	}
	s := &Service{
		store:        store,
		pool:         pool,
		tokens:       tokens,
		logger:       slog.Default(),
		storeTimeout: DefaultStoreTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("logger cannot be nil")
	}
	if s.storeTimeout <= 0 {
		return nil, oops.Code("AUTH_SERVICE_INVALID").
			With("store_timeout", s.storeTimeout).
			Errorf("store timeout must be positive")
	}
	return s, nil
}

// Register creates a user and issues a token for it.
// Fails with ErrInvalidInput, ErrEmailExists or ErrStoreUnavailable.
func (s *Service) Register(ctx context.Context, email, username, password string) (_ *Result, err error) {
	ctx, span := tracer.Start(ctx, "auth.register")
	defer func() { endSpan(span, err) }()

	if err := ValidateEmail(email); err != nil {
		return nil, err
	}

	// An existing email is reported before the remaining fields are checked.
	if _, lookupErr := s.findByEmail(ctx, email); lookupErr == nil {
		return nil, emailExists(email)
	} else if !errors.Is(lookupErr, ErrNotFound) {
		return nil, storeUnavailable("find user by email", lookupErr)
	}

	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if password == "" {
		return nil, oops.Code(CodeInvalidInput).With("field", "password").Wrapf(ErrInvalidInput, "password cannot be empty")
	}

	hash, err := s.pool.Hash(ctx, password)
	if err != nil {
		return nil, oops.Code(CodeInternal).With("operation", "hash password").Wrap(err)
	}

	user, err := NewUser(email, username, hash)
	if err != nil {
		return nil, err
	}

	if err := s.create(ctx, user); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			// Lost a race with a concurrent registration for the same email.
			return nil, emailExists(email)
		}
		return nil, storeUnavailable("create user", err)
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		return nil, oops.Code(CodeInternal).
			With("operation", "issue token").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	span.SetAttributes(attribute.String("user.id", user.ID.String()))
	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID.String())

	return &Result{User: user, Token: token}, nil
}

// Login verifies credentials and issues a token.
// Fails with ErrUnknownEmail, ErrInvalidCredentials or ErrStoreUnavailable.
func (s *Service) Login(ctx context.Context, email, password string) (_ *Result, err error) {
	ctx, span := tracer.Start(ctx, "auth.login")
	defer func() { endSpan(span, err) }()

	user, lookupErr := s.findByEmail(ctx, email)

	var targetHash string
	switch {
	case lookupErr == nil:
		targetHash = user.PasswordHash
	case errors.Is(lookupErr, ErrNotFound):
		targetHash = dummyPasswordHash
	default:
		return nil, storeUnavailable("find user by email", lookupErr)
	}

	// Always verify so that unknown and known emails cost the same.
	valid, verifyErr := s.pool.Verify(ctx, password, targetHash)

	if user == nil {
		return nil, oops.Code(CodeUnknownEmail).Wrapf(ErrUnknownEmail, "email does not exist")
	}
	if verifyErr != nil {
		return nil, oops.Code(CodeInternal).
			With("operation", "verify password").
			With("user_id", user.ID.String()).
			Wrap(verifyErr)
	}
	if !valid {
		return nil, oops.Code(CodeInvalidCredentials).
			With("user_id", user.ID.String()).
			Wrapf(ErrInvalidCredentials, "email and password combination is not correct")
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		return nil, oops.Code(CodeInternal).
			With("operation", "issue token").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	span.SetAttributes(attribute.String("user.id", user.ID.String()))
	s.logger.InfoContext(ctx, "user logged in", "user_id", user.ID.String())

	return &Result{User: user, Token: token}, nil
}

// Authenticate resolves a token issued by Register or Login to its user.
// Fails with ErrInvalidToken or ErrStoreUnavailable.
func (s *Service) Authenticate(ctx context.Context, token string) (_ *User, err error) {
	ctx, span := tracer.Start(ctx, "auth.authenticate")
	defer func() { endSpan(span, err) }()

	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, oops.Code(CodeInvalidToken).Wrap(classify(ErrInvalidToken, err))
	}
	id, err := claims.UserID()
	if err != nil {
		return nil, oops.Code(CodeInvalidToken).Wrap(classify(ErrInvalidToken, err))
	}

	user, err := s.findByEmail(ctx, claims.Email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code(CodeInvalidToken).
				With("user_id", id.String()).
				Wrapf(ErrInvalidToken, "token subject no longer exists")
		}
		return nil, storeUnavailable("find user by email", err)
	}
	if user.ID != id {
		return nil, oops.Code(CodeInvalidToken).
			With("user_id", id.String()).
			Wrapf(ErrInvalidToken, "token subject does not match user")
	}
	return user, nil
}

func (s *Service) findByEmail(ctx context.Context, email string) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	//nolint:wrapcheck // callers classify store errors
	return s.store.FindByEmail(ctx, email)
}

func (s *Service) create(ctx context.Context, user *User) error {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	//nolint:wrapcheck // callers classify store errors
	return s.store.Create(ctx, user)
}

func emailExists(email string) error {
	return oops.Code(CodeEmailExists).With("email", email).Wrapf(ErrEmailExists, "email already exists")
}

func storeUnavailable(operation string, cause error) error {
	return oops.Code(CodeStoreUnavailable).
		With("operation", operation).
		Wrap(classify(ErrStoreUnavailable, cause))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
