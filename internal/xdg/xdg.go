// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package xdg resolves XDG Base Directory paths for authd.
package xdg

import (
	"os"
	"path/filepath"
)

const appName = "authd"

// ConfigDir returns $XDG_CONFIG_HOME/authd, falling back to ~/.config/authd.
func ConfigDir() string {
	return dir("XDG_CONFIG_HOME", ".config")
}

func dir(env, homeRel string) string {
	base := os.Getenv(env)
	if base == "" {
		base = filepath.Join(os.Getenv("HOME"), homeRel)
	}
	return filepath.Join(base, appName)
}
