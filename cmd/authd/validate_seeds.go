// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/holomush/authd/internal/seed"
)

// NewValidateSeedsCmd creates the validate-seeds subcommand.
func NewValidateSeedsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate-seeds [FILE...]",
		Short: "Validate seed fixtures without touching the database",
		Long: `Validates seed fixture files against the seed JSON Schema.
Does NOT start the server or require a database connection.
Exits with code 0 on success, non-zero on failure.

Defaults to ` + defaultSeedFile + ` when no file is given. Useful in CI:
  authd validate-seeds seeds/*.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				args = []string{defaultSeedFile}
			}
			return runValidateSeeds(cmd, args)
		},
	}
}

func runValidateSeeds(cmd *cobra.Command, paths []string) error {
	var failures []string
	users := 0
	for _, path := range paths {
		fixture, err := seed.Load(path)
		if err != nil {
			failures = append(failures, fmt.Sprintf("  %s: %s", path, seed.FormatSchemaError(err)))
			continue
		}
		users += len(fixture.Users)
	}

	if len(failures) > 0 {
		for _, f := range failures {
			slog.Error("seed validation failed", "detail", f)
			cmd.PrintErrln(f)
		}
		return fmt.Errorf("validation failed: %d of %d seed files invalid", len(failures), len(paths))
	}

	slog.Info("all seed files valid", "files", len(paths), "users", users)
	cmd.Printf("%d seed file(s) valid, %d user(s)\n", len(paths), users)
	return nil
}
