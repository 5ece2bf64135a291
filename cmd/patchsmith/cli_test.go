package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"patchsmith/internal/config"
)

const cliPatchConfig = `
[meta]
name = "demo migration"
version_range = ">=0.88.0, <0.89.0"

[[patches]]
id = "bump-timeout"
file = "src/config.rs"

[patches.query]
type = "text"
search = "const TIMEOUT: u64 = 10;"

[patches.operation]
type = "replace"
text = "const TIMEOUT: u64 = 30;"
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

// setupCLIWorkspace builds a workspace with one applicable patch and
// points the command globals at it.
func setupCLIWorkspace(t *testing.T) string {
	t.Helper()
	ws := t.TempDir()

	writeFile(t, filepath.Join(ws, "Cargo.toml"),
		"[package]\nname = \"demo\"\nversion = \"0.88.5\"\n")
	writeFile(t, filepath.Join(ws, "src", "config.rs"),
		"const TIMEOUT: u64 = 10;\n")
	writeFile(t, filepath.Join(ws, "patches", "migrate.toml"), cliPatchConfig)

	prevRoot, prevCfg := workspaceRoot, toolCfg
	workspaceRoot = ws
	toolCfg = config.DefaultConfig()
	t.Cleanup(func() {
		workspaceRoot = prevRoot
		toolCfg = prevCfg
		flagDryRun, flagDiff, flagJSON = false, false, false
		flagVersion = ""
	})
	return ws
}

func TestRunApply_AppliesAndIsIdempotent(t *testing.T) {
	ws := setupCLIWorkspace(t)
	cmd := &cobra.Command{}

	require.NoError(t, runApply(cmd, nil))
	target := filepath.Join(ws, "src", "config.rs")
	assert.Equal(t, "const TIMEOUT: u64 = 30;\n", readFile(t, target))

	// Second run reports already-applied and changes nothing.
	require.NoError(t, runApply(cmd, nil))
	assert.Equal(t, "const TIMEOUT: u64 = 30;\n", readFile(t, target))
}

func TestRunApply_DryRunWritesNothing(t *testing.T) {
	ws := setupCLIWorkspace(t)
	flagDryRun = true

	require.NoError(t, runApply(&cobra.Command{}, nil))
	assert.Equal(t, "const TIMEOUT: u64 = 10;\n",
		readFile(t, filepath.Join(ws, "src", "config.rs")))

	// Dry runs never take the run lock.
	_, err := os.Stat(filepath.Join(ws, ".patchsmith.lock"))
	assert.True(t, os.IsNotExist(err))
}

func TestRunApply_FailedPatchReturnsSentinel(t *testing.T) {
	ws := setupCLIWorkspace(t)
	// Neither the search text nor the replacement exists, so the patch
	// fails rather than reporting already-applied.
	writeFile(t, filepath.Join(ws, "src", "config.rs"),
		"const RETRIES: u32 = 3;\n")

	err := runApply(&cobra.Command{}, nil)
	assert.ErrorIs(t, err, errPatchesFailed)
}

func TestRunApply_DisabledPatchIsDropped(t *testing.T) {
	ws := setupCLIWorkspace(t)
	toolCfg.DisabledPatches = []string{"bump-timeout"}

	require.NoError(t, runApply(&cobra.Command{}, nil))
	assert.Equal(t, "const TIMEOUT: u64 = 10;\n",
		readFile(t, filepath.Join(ws, "src", "config.rs")))
}

func TestRunApply_ExplicitPatchFileArgument(t *testing.T) {
	ws := setupCLIWorkspace(t)
	cmd := &cobra.Command{}

	require.NoError(t, runApply(cmd, []string{filepath.Join(ws, "patches", "migrate.toml")}))
	assert.Equal(t, "const TIMEOUT: u64 = 30;\n",
		readFile(t, filepath.Join(ws, "src", "config.rs")))

	err := runApply(cmd, []string{filepath.Join(ws, "patches", "absent.toml")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "absent.toml")
}

func TestRunVerify_MismatchUntilApplied(t *testing.T) {
	setupCLIWorkspace(t)
	cmd := &cobra.Command{}

	err := runVerify(cmd, nil)
	assert.ErrorIs(t, err, errVerifyMismatch)

	require.NoError(t, runApply(cmd, nil))
	assert.NoError(t, runVerify(cmd, nil))
}

func TestRunVerify_SkippedVersionIsNotMismatch(t *testing.T) {
	setupCLIWorkspace(t)
	flagVersion = "0.90.0" // outside the config's version range

	assert.NoError(t, runVerify(&cobra.Command{}, nil))
}

func TestRunStatus_Runs(t *testing.T) {
	setupCLIWorkspace(t)
	cmd := &cobra.Command{}

	require.NoError(t, runStatus(cmd, nil))
	require.NoError(t, runApply(cmd, nil))
	require.NoError(t, runStatus(cmd, nil))
}

func TestRunList_IncludesDisabledPatches(t *testing.T) {
	setupCLIWorkspace(t)
	toolCfg.DisabledPatches = []string{"bump-timeout"}

	assert.NoError(t, runList(&cobra.Command{}, nil))
}

func TestResolvePatchFiles_DiscoverySorted(t *testing.T) {
	ws := setupCLIWorkspace(t)
	writeFile(t, filepath.Join(ws, "patches", "another.toml"), cliPatchConfig)

	files, err := resolvePatchFiles(nil)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, filepath.Join(ws, "patches", "another.toml"), files[0])
	assert.Equal(t, filepath.Join(ws, "patches", "migrate.toml"), files[1])
}

func TestResolvePatchFiles_NoPatchDir(t *testing.T) {
	ws := setupCLIWorkspace(t)
	require.NoError(t, os.RemoveAll(filepath.Join(ws, "patches")))

	_, err := resolvePatchFiles(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no .toml patch files")
}

func TestResolveVersion_Precedence(t *testing.T) {
	setupCLIWorkspace(t)

	// Manifest supplies the version by default.
	assert.Equal(t, "0.88.5", resolveVersion())

	// Tool config override beats the manifest.
	toolCfg.WorkspaceVersion = "0.89.1"
	assert.Equal(t, "0.89.1", resolveVersion())

	// The flag beats everything.
	flagVersion = "1.0.0"
	assert.Equal(t, "1.0.0", resolveVersion())
}

func TestResolveVersion_FallsBackToZero(t *testing.T) {
	setupCLIWorkspace(t)
	require.NoError(t, os.Remove(filepath.Join(workspaceRoot, "Cargo.toml")))

	assert.Equal(t, "0.0.0", resolveVersion())
}

func TestResolveWorkspace_FlagAndMissing(t *testing.T) {
	ws := t.TempDir()

	got, err := resolveWorkspace(ws)
	require.NoError(t, err)
	assert.Equal(t, ws, got)

	_, err = resolveWorkspace(filepath.Join(ws, "nope"))
	require.Error(t, err)
}

func TestResolveWorkspace_EnvVariable(t *testing.T) {
	ws := t.TempDir()
	t.Setenv("PATCHSMITH_WORKSPACE", ws)

	got, err := resolveWorkspace("")
	require.NoError(t, err)
	assert.Equal(t, ws, got)
}

func TestPatchDir_FirstExistingCandidate(t *testing.T) {
	ws := setupCLIWorkspace(t)

	dir, err := patchDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(ws, "patches"), dir)
}
