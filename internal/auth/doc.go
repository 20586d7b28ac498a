// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package auth provides user registration, login and token authentication.
//
// # Domain Types
//
// Users are created with NewUser, which validates the email and username and
// assigns a fresh ULID. Direct struct initialization bypasses validation.
// CredentialStore implementations receive pre-validated users and own email
// uniqueness: the existence check and the insert are a single atomic step.
//
// # Services
//
// Service coordinates a CredentialStore, a HashPool and a TokenIssuer:
//   - Register - creates a user and issues a token
//   - Login - verifies credentials and issues a token
//   - Authenticate - resolves a token back to its user
//
// Every failure matches one of the Err* kinds with errors.Is and carries the
// matching Code* constant, so transports can map it without parsing messages.
package auth
