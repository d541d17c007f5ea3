//go:build linux

package trace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveRecords_AbsoluteOpenPassesThrough(t *testing.T) {
	t.Parallel()

	opens := resolveRecords([]record{
		{kind: kindOpen, path: "/etc/hosts"},
	}, "/anywhere")
	assert.Equal(t, []string{"/etc/hosts"}, opens)
}

func TestResolveRecords_RelativeOpenUsesVirtualCwd(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a"), []byte("x"), 0o644))

	opens := resolveRecords([]record{
		{kind: kindChdir, path: dir},
		{kind: kindOpen, path: "./a"},
	}, "/somewhere/else")

	want, err := filepath.EvalSymlinks(filepath.Join(dir, "a"))
	require.NoError(t, err)
	assert.Equal(t, []string{want}, opens)
}

func TestResolveRecords_RelativeChdirChains(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "f"), []byte("x"), 0o644))

	opens := resolveRecords([]record{
		{kind: kindChdir, path: dir},
		{kind: kindChdir, path: "sub"},
		{kind: kindOpen, path: "f"},
	}, "/")

	want, err := filepath.EvalSymlinks(filepath.Join(sub, "f"))
	require.NoError(t, err)
	assert.Equal(t, []string{want}, opens)
}

func TestResolveRecords_SymlinksAndDotDotFold(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	real := filepath.Join(dir, "real")
	require.NoError(t, os.Mkdir(real, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(real, "f"), []byte("x"), 0o644))
	link := filepath.Join(dir, "link")
	require.NoError(t, os.Symlink(real, link))

	opens := resolveRecords([]record{
		{kind: kindChdir, path: link},
		{kind: kindOpen, path: "../link/f"},
	}, "/")

	want, err := filepath.EvalSymlinks(filepath.Join(real, "f"))
	require.NoError(t, err)
	assert.Equal(t, []string{want}, opens)
}

func TestResolveRecords_UnresolvablePathYieldsEmpty(t *testing.T) {
	t.Parallel()

	opens := resolveRecords([]record{
		{kind: kindOpen, path: "no/such/thing"},
	}, "/nonexistent-base")
	assert.Equal(t, []string{""}, opens)
}

func TestResolveRecords_OrderIsPreserved(t *testing.T) {
	t.Parallel()

	opens := resolveRecords([]record{
		{kind: kindOpen, path: "/one"},
		{kind: kindOpen, path: "/two"},
		{kind: kindOpen, path: "/three"},
	}, "/")
	assert.Equal(t, []string{"/one", "/two", "/three"}, opens)
}
