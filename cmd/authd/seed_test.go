// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/authd/internal/auth/memory"
	"github.com/holomush/authd/pkg/errutil"
)

func writeFixture(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "users.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const twoUsers = `
users:
  - email: michael@herman.com
    username: Miguel
    password: test
  - email: ada@example.com
    username: ada
    password: lovelace
`

func newSeedTestCmd() (*cobra.Command, *bytes.Buffer) {
	cmd := &cobra.Command{}
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetContext(context.Background())
	return cmd, out
}

func memorySeedDeps(fake *fakeMigrator, s *memory.Store) *SeedDeps {
	return &SeedDeps{
		MigratorFactory: func(string) (Migrator, error) { return fake, nil },
		StoreFactory: func(context.Context, string) (*Backend, error) {
			return &Backend{Store: s, Ready: s.Ping, Close: func() {}}, nil
		},
	}
}

func TestSeedCommand_Properties(t *testing.T) {
	cmd := NewSeedCmd()
	assert.Equal(t, "seed", cmd.Use)
	assert.Contains(t, cmd.Long, "idempotent")
	for _, name := range []string{"database-url", "file", "reset", "timeout"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), "missing --%s", name)
	}
}

func TestSeed_NoDatabaseURL(t *testing.T) {
	cmd, _ := newSeedTestCmd()
	err := runSeedWithDeps(cmd, &seedConfig{file: defaultSeedFile, timeout: time.Second}, nil)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
}

func TestSeed_MigratesAndRegisters(t *testing.T) {
	fake := &fakeMigrator{}
	s := memory.NewStore()
	cmd, out := newSeedTestCmd()
	cfg := &seedConfig{databaseURL: "postgres://x", file: writeFixture(t, twoUsers), timeout: time.Minute}

	require.NoError(t, runSeedWithDeps(cmd, cfg, memorySeedDeps(fake, s)))

	assert.Equal(t, []string{"up", "close"}, fake.calls)
	assert.Equal(t, 2, s.Len())
	assert.Contains(t, out.String(), "2 created, 0 already present")
}

func TestSeed_IsIdempotent(t *testing.T) {
	s := memory.NewStore()
	cfg := &seedConfig{databaseURL: "postgres://x", file: writeFixture(t, twoUsers), timeout: time.Minute}

	cmd, _ := newSeedTestCmd()
	require.NoError(t, runSeedWithDeps(cmd, cfg, memorySeedDeps(&fakeMigrator{}, s)))
	cmd, out := newSeedTestCmd()
	require.NoError(t, runSeedWithDeps(cmd, cfg, memorySeedDeps(&fakeMigrator{}, s)))

	assert.Equal(t, 2, s.Len())
	assert.Contains(t, out.String(), "0 created, 2 already present")
}

func TestSeed_ResetDropsSchemaFirst(t *testing.T) {
	fake := &fakeMigrator{}
	cmd, out := newSeedTestCmd()
	cfg := &seedConfig{databaseURL: "postgres://x", file: writeFixture(t, twoUsers), reset: true, timeout: time.Minute}

	require.NoError(t, runSeedWithDeps(cmd, cfg, memorySeedDeps(fake, memory.NewStore())))
	assert.Equal(t, []string{"reset", "close"}, fake.calls)
	assert.Contains(t, out.String(), "Resetting database")
}

func TestSeed_InvalidFixtureLeavesDatabaseAlone(t *testing.T) {
	fake := &fakeMigrator{}
	cmd, _ := newSeedTestCmd()
	cfg := &seedConfig{databaseURL: "postgres://x", file: writeFixture(t, "users: []"), reset: true, timeout: time.Minute}

	err := runSeedWithDeps(cmd, cfg, memorySeedDeps(fake, memory.NewStore()))
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "SEED_SCHEMA_INVALID")
	assert.Empty(t, fake.calls)
}

func TestSeed_MigrationFailure(t *testing.T) {
	fake := &fakeMigrator{err: errors.New("dirty database")}
	s := memory.NewStore()
	cmd, _ := newSeedTestCmd()
	cfg := &seedConfig{databaseURL: "postgres://x", file: writeFixture(t, twoUsers), timeout: time.Minute}

	err := runSeedWithDeps(cmd, cfg, memorySeedDeps(fake, s))
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "MIGRATION_FAILED")
	assert.Zero(t, s.Len())
}

func TestSeed_StoreFailure(t *testing.T) {
	cmd, _ := newSeedTestCmd()
	cfg := &seedConfig{databaseURL: "postgres://x", file: writeFixture(t, twoUsers), timeout: time.Minute}
	deps := &SeedDeps{
		MigratorFactory: func(string) (Migrator, error) { return &fakeMigrator{}, nil },
		StoreFactory: func(context.Context, string) (*Backend, error) {
			return nil, errors.New("connection refused")
		},
	}

	err := runSeedWithDeps(cmd, cfg, deps)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "DB_CONNECT_FAILED")
}
