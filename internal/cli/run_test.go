package cli

import (
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runger/cache-dash-h/internal/config"
	"github.com/runger/cache-dash-h/internal/fingerprint"
	"github.com/runger/cache-dash-h/internal/store"
)

func TestChildCommand_PassThrough(t *testing.T) {
	argv, err := childCommand([]string{"prog", "-h", "--extra"})
	require.NoError(t, err)
	assert.Equal(t, []string{"prog", "-h", "--extra"}, argv)
}

func TestChildCommand_QuotedCommandIsSplit(t *testing.T) {
	argv, err := childCommand([]string{"python slow-script.py --help"})
	require.NoError(t, err)
	assert.Equal(t, []string{"python", "slow-script.py", "--help"}, argv)
}

func TestChildCommand_QuotedCommandKeepsTrailingArgs(t *testing.T) {
	argv, err := childCommand([]string{"python slow-script.py", "--help"})
	require.NoError(t, err)
	assert.Equal(t, []string{"python", "slow-script.py", "--help"}, argv)
}

func TestChildCommand_RespectsShellQuoting(t *testing.T) {
	argv, err := childCommand([]string{`prog "an arg with spaces" -h`})
	require.NoError(t, err)
	assert.Equal(t, []string{"prog", "an arg with spaces", "-h"}, argv)
}

func TestChildCommand_UnbalancedQuoteErrors(t *testing.T) {
	_, err := childCommand([]string{`prog "unclosed -h`})
	require.Error(t, err)
}

// setupEnv isolates a test from the real config file and environment.
func setupEnv(t *testing.T) {
	t.Helper()

	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv(config.EnvDB, "")
	t.Setenv(config.EnvStablePaths, "")
}

// captureStdout runs f with os.Stdout redirected to a pipe and returns what
// was written.
func captureStdout(t *testing.T, f func()) string {
	t.Helper()

	r, w, err := os.Pipe()
	require.NoError(t, err)
	old := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = old }()

	f()

	require.NoError(t, w.Close())
	out, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(out)
}

// seedEntry records a cache entry for argv the way a traced run would.
func seedEntry(t *testing.T, dbPath string, argv []string, helpText string, status int) {
	t.Helper()

	dep := filepath.Join(t.TempDir(), "dep")
	require.NoError(t, os.WriteFile(dep, []byte("content\n"), 0o644))

	st, err := store.Open(dbPath, nil)
	require.NoError(t, err)
	defer st.Close()

	fp := fingerprint.Command(-1, argv)
	require.NoError(t, st.Insert(context.Background(), argv, fp, []byte(helpText), status, []string{dep}))
}

func TestRun_HitReplaysWithoutRunningChild(t *testing.T) {
	setupEnv(t)

	sh, err := exec.LookPath("sh")
	require.NoError(t, err)

	dbPath := filepath.Join(t.TempDir(), "cache.db")
	seedEntry(t, dbPath, []string{sh, "--help"}, "CACHED USAGE\n", 7)

	flagPath = dbPath
	flagPrefix = -1
	flagVerbose = false
	defer func() { flagPath = ""; flagPrefix = -1 }()

	var status int
	var runErr error
	out := captureStdout(t, func() {
		status, runErr = run(rootCmd, []string{sh, "--help"})
	})
	require.NoError(t, runErr)
	assert.Equal(t, 7, status)
	assert.Equal(t, "CACHED USAGE\n", out)
}

func TestRun_HelpFlagGroupsShareTheEntry(t *testing.T) {
	setupEnv(t)

	sh, err := exec.LookPath("sh")
	require.NoError(t, err)

	dbPath := filepath.Join(t.TempDir(), "cache.db")
	seedEntry(t, dbPath, []string{sh, "--help"}, "CANONICAL\n", 0)

	flagPath = dbPath
	flagPrefix = -1
	flagVerbose = false
	defer func() { flagPath = ""; flagPrefix = -1 }()

	// -h and --help are the same group, so this must hit the --help entry.
	var status int
	var runErr error
	out := captureStdout(t, func() {
		status, runErr = run(rootCmd, []string{sh, "-h"})
	})
	require.NoError(t, runErr)
	assert.Equal(t, 0, status)
	assert.Equal(t, "CANONICAL\n", out)
}

func TestRun_MissingExecutableErrors(t *testing.T) {
	setupEnv(t)

	_, err := run(rootCmd, []string{"definitely-not-a-real-binary-4711", "-h"})
	require.Error(t, err)
}
