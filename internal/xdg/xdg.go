// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BeatGate Contributors

// Package xdg provides XDG Base Directory paths for BeatGate.
package xdg

import (
	"fmt"
	"os"
	"path/filepath"
)

const appName = "beatgate"

// ConfigDir returns the XDG config directory for beatgate.
// Checks XDG_CONFIG_HOME first, falls back to ~/.config.
func ConfigDir() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		base = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(base, appName)
}

// StateDir returns the XDG state directory for beatgate.
// Checks XDG_STATE_HOME first, falls back to ~/.local/state.
func StateDir() string {
	base := os.Getenv("XDG_STATE_HOME")
	if base == "" {
		base = filepath.Join(os.Getenv("HOME"), ".local", "state")
	}
	return filepath.Join(base, appName)
}

// ConfigFile returns the default config file path, or "" when no config
// file exists there.
func ConfigFile() string {
	path := filepath.Join(ConfigDir(), "beatgate.yaml")
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

// CertsDir returns the TLS certificates directory.
func CertsDir() string {
	return filepath.Join(ConfigDir(), "certs")
}

// EnsureDir creates a directory and all parent directories if they don't exist.
// Directories are created with 0700 permissions.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	return nil
}
