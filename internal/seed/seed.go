// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package seed loads user fixtures and registers them through the auth service.
package seed

import (
	"context"
	"errors"
	"os"

	"github.com/samber/oops"
	"gopkg.in/yaml.v3"

	"github.com/holomush/authd/internal/auth"
)

// Fixture is the contents of a seed file.
type Fixture struct {
	Users []User `json:"users" yaml:"users" jsonschema:"minItems=1,description=Users to register"`
}

// User is one fixture user. Password is plaintext and hashed on registration.
type User struct {
	Email    string `json:"email" yaml:"email" jsonschema:"minLength=3,pattern=^[^@]+@[^@]+$"`
	Username string `json:"username" yaml:"username" jsonschema:"minLength=1,maxLength=64"`
	Password string `json:"password" yaml:"password" jsonschema:"minLength=1"`
}

// Registrar creates users. *auth.Service satisfies it.
type Registrar interface {
	Register(ctx context.Context, email, username, password string) (*auth.Result, error)
}

// Report summarises an Apply run.
type Report struct {
	Created int
	Skipped int
}

// Parse validates data against the fixture schema and decodes it.
func Parse(data []byte) (*Fixture, error) {
	if err := ValidateSchema(data); err != nil {
		return nil, err
	}
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, oops.Code("SEED_INVALID_YAML").Wrap(err)
	}
	return &f, nil
}

// Load reads and parses the fixture file at path.
func Load(path string) (*Fixture, error) {
	//nolint:gosec // G304: path comes from operator configuration
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, oops.Code("SEED_READ_FAILED").With("path", path).Wrap(err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, oops.With("path", path).Wrap(err)
	}
	return f, nil
}

// Apply registers every fixture user in order. Users whose email is already
// registered are skipped, so applying the same fixture twice is harmless.
// Any other failure stops the run; the report counts what completed.
func Apply(ctx context.Context, r Registrar, f *Fixture) (Report, error) {
	var report Report
	if f == nil {
		return report, nil
	}
	for i, u := range f.Users {
		if err := ctx.Err(); err != nil {
			return report, oops.Code("SEED_CANCELLED").Wrap(err)
		}
		_, err := r.Register(ctx, u.Email, u.Username, u.Password)
		switch {
		case err == nil:
			report.Created++
		case errors.Is(err, auth.ErrEmailExists):
			report.Skipped++
		default:
			return report, oops.Code("SEED_REGISTER_FAILED").
				With("index", i).
				With("email", u.Email).
				Wrap(err)
		}
	}
	return report, nil
}
