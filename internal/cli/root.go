// Package cli wires the cache-dash-h command line: flag parsing, help-flag
// detection, store lookup, tracing, and the exec fallback.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version info - injected at build time via ldflags
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

var (
	flagVerbose bool
	flagPrefix  int
	flagPath    string
)

var exitStatus int

var rootCmd = &cobra.Command{
	Use:   "cache-dash-h [flags] COMMAND [ARGS...]",
	Short: "cache the --help output of slow-starting commands",
	Long: `cache-dash-h - cache the --help output of slow-starting commands

The wrapped command runs under a syscall tracer that records every file it
reads. Its help text is stored keyed by the command line and the content of
those files, so the next identical invocation replays the text without
starting the program at all.

example:
  $ cache-dash-h python slow-script.py --help`,
	Args:          cobra.MinimumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := run(cmd, args)
		exitStatus = status
		return err
	},
}

func init() {
	// The wrapped command's own flags must pass through untouched, so flag
	// parsing stops at the first non-flag argument.
	rootCmd.Flags().SetInterspersed(false)
	rootCmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "log cache hits and misses")
	rootCmd.Flags().IntVarP(&flagPrefix, "num", "n", -1,
		"cache based on only the first NUM arguments of COMMAND (default: all)")
	rootCmd.Flags().StringVarP(&flagPath, "path", "p", "",
		`path to the cache database (default "/tmp/cache-dash-h.db"; a leading
$ORIGIN0 or $ORIGIN1 expands to the directory of COMMAND or of its first
argument)`)
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildDate)
}

// Execute runs the root command and returns the process exit status: the
// cached or freshly captured status of the wrapped command, or non-zero on
// wrapper errors.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "cache-dash-h: %v\n", err)
		if exitStatus == 0 {
			exitStatus = 1
		}
	}
	return exitStatus
}
