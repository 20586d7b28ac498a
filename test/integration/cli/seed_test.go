// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package cli_test

import (
	"context"
	"os/exec"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
)

// authd runs the authd CLI from source against the test database.
func authd(ctx context.Context, args ...string) (string, error) {
	GinkgoHelper()
	cmd := exec.CommandContext(ctx, "go", append([]string{"run", "."}, args...)...)
	cmd.Dir = "../../../cmd/authd"
	cmd.Env = append(cmd.Environ(), "DATABASE_URL="+env.connStr)
	output, err := cmd.CombinedOutput()
	return string(output), err
}

func countUsers(ctx context.Context, email string) int {
	GinkgoHelper()
	var count int
	err := env.pool.QueryRow(ctx, "SELECT COUNT(*) FROM users WHERE email = $1", email).Scan(&count)
	Expect(err).NotTo(HaveOccurred())
	return count
}

var _ = Describe("Seed Command", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
		cleanupDatabase(ctx, env.pool)
	})

	It("migrates and registers the shipped fixture", func() {
		output, err := authd(ctx, "seed", "--file", "../../seeds/users.yaml")
		Expect(err).NotTo(HaveOccurred(), "seed command failed: %s", output)
		Expect(output).To(ContainSubstring("Running migrations..."))
		Expect(output).To(ContainSubstring("Seeding complete: 1 created, 0 already present"))

		var username, hash string
		err = env.pool.QueryRow(ctx,
			"SELECT username, password_hash FROM users WHERE email = $1",
			"demo@authd.dev",
		).Scan(&username, &hash)
		Expect(err).NotTo(HaveOccurred())
		Expect(username).To(Equal("Demo"))
		Expect(hash).To(HavePrefix("$argon2id$"))
		Expect(hash).NotTo(ContainSubstring("demo-password"))
	})

	It("is idempotent (running twice succeeds without duplicates)", func() {
		output, err := authd(ctx, "seed", "--file", "../../seeds/users.yaml")
		Expect(err).NotTo(HaveOccurred(), "first seed failed: %s", output)

		output, err = authd(ctx, "seed", "--file", "../../seeds/users.yaml")
		Expect(err).NotTo(HaveOccurred(), "second seed failed: %s", output)
		Expect(output).To(ContainSubstring("0 created, 1 already present"))

		Expect(countUsers(ctx, "demo@authd.dev")).To(Equal(1))
	})

	It("drops other users with --reset", func() {
		output, err := authd(ctx, "seed", "--file", "../../seeds/users.yaml")
		Expect(err).NotTo(HaveOccurred(), "seed failed: %s", output)
		_, err = env.pool.Exec(ctx, `
			INSERT INTO users (id, email, username, password_hash, created_at)
			VALUES ('01HZN3XS000000000000000000', 'extra@example.com', 'extra', 'x', now())`)
		Expect(err).NotTo(HaveOccurred())

		output, err = authd(ctx, "seed", "--reset", "--file", "../../seeds/users.yaml")
		Expect(err).NotTo(HaveOccurred(), "reset seed failed: %s", output)
		Expect(output).To(ContainSubstring("Resetting database..."))

		Expect(countUsers(ctx, "extra@example.com")).To(Equal(0))
		Expect(countUsers(ctx, "demo@authd.dev")).To(Equal(1))
	})
})

var _ = Describe("Migrate Command", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
		cleanupDatabase(ctx, env.pool)
	})

	It("applies, reports and rolls back the schema", func() {
		output, err := authd(ctx, "migrate", "up")
		Expect(err).NotTo(HaveOccurred(), "migrate up failed: %s", output)
		Expect(output).To(ContainSubstring("Applied 2 migration(s)"))

		output, err = authd(ctx, "migrate", "status")
		Expect(err).NotTo(HaveOccurred(), "migrate status failed: %s", output)
		Expect(output).To(ContainSubstring("Current version: 2 (clean)"))
		Expect(output).To(ContainSubstring("[applied] 000001_create_users"))

		output, err = authd(ctx, "migrate", "down")
		Expect(err).NotTo(HaveOccurred(), "migrate down failed: %s", output)

		var exists bool
		err = env.pool.QueryRow(ctx, "SELECT to_regclass('users') IS NOT NULL").Scan(&exists)
		Expect(err).NotTo(HaveOccurred())
		Expect(exists).To(BeFalse())
	})
})
