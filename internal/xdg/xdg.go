// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 UserSvc Contributors

// Package xdg locates usersvc files under the XDG Base Directory layout.
package xdg

import (
	"os"
	"path/filepath"
)

const appName = "usersvc"

// ConfigDir returns $XDG_CONFIG_HOME/usersvc, falling back to
// ~/.config/usersvc.
func ConfigDir() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		base = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(base, appName)
}

// ConfigFile returns the default configuration file path.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
