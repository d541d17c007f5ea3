// Package config provides configuration for cache-dash-h: the cache
// database location, the stable-path set, and verbosity. Precedence is
// flags > environment > config file > built-in defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment variables recognized by the tool.
const (
	// EnvDB overrides the default cache database path.
	EnvDB = "CACHEDASHH_DB"

	// EnvStablePaths is a colon-separated list of path prefixes whose
	// contents are assumed invariant across runs.
	EnvStablePaths = "CACHEDASHH_STABLEPATH"
)

// DefaultCachePath is where the cache database lives unless overridden.
const DefaultCachePath = "/tmp/cache-dash-h.db"

// defaultStablePaths are prefixes never recorded as dependencies: system
// locations whose contents change only with the machine, not the cached
// command.
var defaultStablePaths = []string{
	"/usr/", "/etc/", "/lib/", "/lib64/", "/dev/", "/proc/",
	"/sys/", "/boot/", "/nix/store", "/gdn/", "/proj/",
}

// Config holds the resolved settings.
type Config struct {
	CachePath   string   `yaml:"cache_path"`
	StablePaths []string `yaml:"stable_paths"`
	Verbose     bool     `yaml:"verbose"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		CachePath:   DefaultCachePath,
		StablePaths: append([]string(nil), defaultStablePaths...),
	}
}

// Load resolves the configuration from the config file (if present) and the
// environment. Flag values are applied on top by the caller.
func Load() (*Config, error) {
	cfg := Default()

	path := File()
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if db := os.Getenv(EnvDB); db != "" {
		cfg.CachePath = db
	}
	if stable := os.Getenv(EnvStablePaths); stable != "" {
		cfg.StablePaths = strings.Split(stable, ":")
	}

	return cfg, nil
}

// IsStable reports whether path falls under a stable prefix and should not
// be recorded as a dependency.
func (c *Config) IsStable(path string) bool {
	for _, prefix := range c.StablePaths {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// ExpandOrigin expands a leading $ORIGIN0 or $ORIGIN1 in the cache path to
// the directory of the child executable or of its first argument, so a
// cache can travel with the program it serves.
func ExpandOrigin(cachePath string, argv []string) string {
	switch {
	case strings.HasPrefix(cachePath, "$ORIGIN0") && len(argv) > 0:
		return filepath.Dir(argv[0]) + strings.TrimPrefix(cachePath, "$ORIGIN0")
	case strings.HasPrefix(cachePath, "$ORIGIN1") && len(argv) > 1:
		return filepath.Dir(argv[1]) + strings.TrimPrefix(cachePath, "$ORIGIN1")
	}
	return cachePath
}
