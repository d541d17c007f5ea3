// Package log provides JSON-lines structured logging for cache-dash-h.
// Diagnostics go to stderr so the replayed help text on stdout stays
// byte-exact.
package log

import (
	"io"
	"log/slog"
	"os"
)

// EnvDebug enables debug logging when set to a non-empty value.
const EnvDebug = "CACHEDASHH_DEBUG"

// Config configures the structured logger.
type Config struct {
	// Output is the writer for log output (default: os.Stderr)
	Output io.Writer

	// Level is the minimum log level (default: LevelWarn)
	Level slog.Level

	// Debug enables debug level logging (overrides Level)
	Debug bool
}

// DefaultConfig returns the default logging configuration. The tool is a
// transparent wrapper, so anything below warn stays quiet unless verbose or
// debug mode asks for it.
func DefaultConfig() *Config {
	return &Config{
		Output: os.Stderr,
		Level:  slog.LevelWarn,
		Debug:  false,
	}
}

// New creates a new JSON-lines structured logger.
func New(cfg *Config) *slog.Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	level := cfg.Level
	if cfg.Debug {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Key = "ts"
			}
			return a
		},
	}

	return slog.New(slog.NewJSONHandler(output, opts))
}

// NewFromEnv creates a logger configured from the environment; verbose is
// the -v flag and lowers the level to debug, as does CACHEDASHH_DEBUG=1.
func NewFromEnv(verbose bool) *slog.Logger {
	cfg := DefaultConfig()
	cfg.Debug = verbose || os.Getenv(EnvDebug) != ""
	return New(cfg)
}
