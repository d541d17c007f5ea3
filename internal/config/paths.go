package config

import (
	"os"
	"path/filepath"
)

// ConfigDir returns the directory for configuration files, following the
// XDG Base Directory spec (~/.config/cache-dash-h by default).
func ConfigDir() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, _ := os.UserHomeDir()
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, "cache-dash-h")
}

// File returns the path to the configuration file.
func File() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
