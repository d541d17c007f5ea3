package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/google/shlex"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/runger/cache-dash-h/internal/config"
	"github.com/runger/cache-dash-h/internal/fingerprint"
	"github.com/runger/cache-dash-h/internal/log"
	"github.com/runger/cache-dash-h/internal/store"
	"github.com/runger/cache-dash-h/internal/trace"
)

// run is the whole control flow: detect a help flag, consult the cache,
// trace on a miss, or hand the process over to the child when caching does
// not apply. The returned int is the process exit status.
func run(cmd *cobra.Command, args []string) (int, error) {
	cfg, err := config.Load()
	if err != nil {
		return 1, err
	}
	if flagVerbose {
		cfg.Verbose = true
	}
	if flagPath != "" {
		cfg.CachePath = flagPath
	}
	logger := log.NewFromEnv(cfg.Verbose)

	argv, err := childCommand(args)
	if err != nil {
		return 1, err
	}

	resolved, err := exec.LookPath(argv[0])
	if err != nil {
		return 1, fmt.Errorf("can't find %q: %w", argv[0], err)
	}
	argv[0] = resolved

	if !fingerprint.HasHelpFlag(argv) {
		// Not a help invocation: nothing to cache, just become the child.
		return 0, execChild(argv)
	}

	cachePath := config.ExpandOrigin(cfg.CachePath, argv)
	st, err := store.Open(cachePath, logger)
	if err != nil {
		return 1, err
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmdFP := fingerprint.Command(flagPrefix, argv)

	entry, err := st.Lookup(ctx, cmdFP)
	switch {
	case err == nil:
		if _, err := os.Stdout.Write(entry.HelpText); err != nil {
			return 1, fmt.Errorf("write help text: %w", err)
		}
		logger.Debug("read from cache", "path", cachePath, "entry", entry.ID)
		if err := st.Touch(ctx, entry.ID); err != nil {
			return 1, err
		}
		return entry.ExitStatus, nil
	case !errors.Is(err, store.ErrNotCached):
		return 1, err
	}

	if st.ReadOnly() {
		// A miss against a cache we cannot fill: tracing would be wasted
		// work, so transfer control instead of capturing.
		logger.Debug("cache read-only, exec fallback", "path", cachePath)
		return 0, execChild(argv)
	}

	var deps []string
	if !cfg.IsStable(argv[0]) {
		deps = append(deps, argv[0])
	}
	res, err := trace.Run(argv, func(path string) {
		if path == "" || cfg.IsStable(path) {
			return
		}
		logger.Debug("loaded file", "path", path)
		deps = append(deps, path)
	})
	if err != nil {
		return 1, err
	}

	if _, err := os.Stdout.Write(res.Stdout); err != nil {
		return 1, fmt.Errorf("write help text: %w", err)
	}
	if err := st.Insert(ctx, argv, cmdFP, res.Stdout, res.ExitStatus, deps); err != nil {
		return 1, err
	}
	logger.Debug("saved to cache", "path", cachePath, "deps", len(deps))
	return res.ExitStatus, nil
}

// childCommand extracts the wrapped command from the remaining arguments. A
// single argument containing whitespace is treated as a quoted command line
// and split shell-style, so `cache-dash-h "python slow.py --help"` works.
func childCommand(args []string) ([]string, error) {
	if len(args) >= 1 && strings.ContainsAny(args[0], " \t") {
		split, err := shlex.Split(args[0])
		if err != nil {
			return nil, fmt.Errorf("split command %q: %w", args[0], err)
		}
		argv := append(split, args[1:]...)
		if len(argv) == 0 {
			return nil, errors.New("empty command")
		}
		return argv, nil
	}
	return args, nil
}

// execChild replaces the current process with the child. Only returns on
// failure.
func execChild(argv []string) error {
	if err := unix.Exec(argv[0], argv, os.Environ()); err != nil {
		return fmt.Errorf("can't exec %q: %w", argv[0], err)
	}
	return nil
}
