package safety

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGuard(t *testing.T) *WorkspaceGuard {
	t.Helper()
	guard, err := NewWorkspaceGuard(t.TempDir())
	require.NoError(t, err)
	return guard
}

func touch(t *testing.T, path string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	return path
}

func TestWorkspaceGuard_AcceptsWorkspaceFiles(t *testing.T) {
	guard := newTestGuard(t)
	abs := touch(t, filepath.Join(guard.Root(), "src", "lib.rs"))

	tests := []struct {
		name string
		path string
	}{
		{"relative", filepath.Join("src", "lib.rs")},
		{"absolute", abs},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := guard.Validate(tt.path)
			require.NoError(t, err)
			assert.Equal(t, abs, got)
		})
	}
}

func TestWorkspaceGuard_RejectsOutside(t *testing.T) {
	guard := newTestGuard(t)
	outside := touch(t, filepath.Join(t.TempDir(), "other.rs"))

	_, err := guard.Validate(outside)
	var ow *OutsideWorkspaceError
	require.ErrorAs(t, err, &ow)
}

func TestWorkspaceGuard_RejectsDotDotEscape(t *testing.T) {
	guard := newTestGuard(t)
	sibling := touch(t, filepath.Join(filepath.Dir(guard.Root()), "sibling", "f.rs"))
	_ = sibling

	_, err := guard.Validate(filepath.Join("..", "sibling", "f.rs"))
	var ow *OutsideWorkspaceError
	require.ErrorAs(t, err, &ow)
}

func TestWorkspaceGuard_RejectsSymlinkEscape(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	guard := newTestGuard(t)
	target := touch(t, filepath.Join(t.TempDir(), "secret.rs"))
	link := filepath.Join(guard.Root(), "inside.rs")
	require.NoError(t, os.Symlink(target, link))

	_, err := guard.Validate("inside.rs")
	var ow *OutsideWorkspaceError
	require.ErrorAs(t, err, &ow)
}

func TestWorkspaceGuard_RejectsBuildDir(t *testing.T) {
	guard := newTestGuard(t)
	touch(t, filepath.Join(guard.Root(), "target", "debug", "out.rs"))

	_, err := guard.Validate(filepath.Join("target", "debug", "out.rs"))
	var fp *ForbiddenPathError
	require.ErrorAs(t, err, &fp)
}

func TestWorkspaceGuard_RejectsForbiddenAncestors(t *testing.T) {
	root := t.TempDir()
	cache := touch(t, filepath.Join(root, "cache", "registry", "dep.rs"))
	canon, err := filepath.EvalSymlinks(filepath.Dir(filepath.Dir(cache)))
	require.NoError(t, err)

	guard, err := NewWorkspaceGuard(root)
	require.NoError(t, err)
	guard.forbidden = append(guard.forbidden, filepath.Join(canon, "registry"))

	_, err = guard.Validate(filepath.Join("cache", "registry", "dep.rs"))
	var fp *ForbiddenPathError
	require.ErrorAs(t, err, &fp)
}

func TestWorkspaceGuard_MissingFile(t *testing.T) {
	guard := newTestGuard(t)
	_, err := guard.Validate("does-not-exist.rs")
	require.Error(t, err)
}

func TestWorkspaceGuard_RootIsCanonical(t *testing.T) {
	dir := t.TempDir()
	guard, err := NewWorkspaceGuard(dir)
	require.NoError(t, err)

	canon, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	assert.Equal(t, canon, guard.Root())
}

func TestRunLock_Exclusive(t *testing.T) {
	root := t.TempDir()

	lock, err := AcquireRunLock(root)
	require.NoError(t, err)

	_, err = AcquireRunLock(root)
	require.ErrorIs(t, err, ErrWorkspaceLocked)

	require.NoError(t, lock.Release())

	lock2, err := AcquireRunLock(root)
	require.NoError(t, err)
	require.NoError(t, lock2.Release())
}
