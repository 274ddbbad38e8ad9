// Package xdg provides XDG Base Directory paths for keyfold.
package xdg

import (
	"os"
	"path/filepath"
)

const appName = "keyfold"

// ConfigDir returns the XDG config directory for keyfold.
// Checks XDG_CONFIG_HOME first, falls back to ~/.config.
func ConfigDir() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		base = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(base, appName)
}

// DefaultConfigFile returns the path of the default config file if it
// exists, or empty string when there is none.
func DefaultConfigFile() string {
	path := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}
