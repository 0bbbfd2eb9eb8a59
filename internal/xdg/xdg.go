// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 llmqa Contributors

// Package xdg locates llmqa files under the XDG Base Directory layout.
package xdg

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/samber/oops"
)

const appName = "llmqa"

// ConfigDir returns $XDG_CONFIG_HOME/llmqa, falling back to ~/.config/llmqa.
func ConfigDir() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		base = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(base, appName)
}

// ConfigFile returns the default config file path.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// FindConfigFile returns ConfigFile if it exists as a regular file.
func FindConfigFile() (string, bool) {
	path := ConfigFile()
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}
	return path, true
}

// EnsureDir creates path and its parents with 0700 permissions.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o700); err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return oops.Code("DIR_PERMISSION_DENIED").With("path", path).Wrap(err)
		}
		return oops.Code("DIR_CREATE_FAILED").With("path", path).Wrap(err)
	}
	return nil
}
