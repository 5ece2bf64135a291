package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, []string{"patches"}, cfg.PatchDirs)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.False(t, cfg.Logging.JSON)
	assert.False(t, cfg.Audit.Enabled)
	assert.Empty(t, cfg.WorkspaceVersion)
	assert.Empty(t, cfg.DisabledPatches)
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), FileName))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadFromWorkspace(t *testing.T) {
	root := t.TempDir()
	content := `patch_dirs:
  - migration-patches
  - hotfixes
workspace_version: "0.9.0"
disabled_patches:
  - flaky-patch
logging:
  level: debug
  json: true
audit:
  enabled: true
  path: logs/audit.jsonl
`
	require.NoError(t, os.WriteFile(filepath.Join(root, FileName), []byte(content), 0o644))

	cfg, err := LoadFromWorkspace(root)
	require.NoError(t, err)

	assert.Equal(t, []string{"migration-patches", "hotfixes"}, cfg.PatchDirs)
	assert.Equal(t, "0.9.0", cfg.WorkspaceVersion)
	assert.Equal(t, []string{"flaky-patch"}, cfg.DisabledPatches)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.JSON)
	assert.True(t, cfg.Audit.Enabled)
	assert.Equal(t, "logs/audit.jsonl", cfg.Audit.Path)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte("patch_dirs: [unclosed"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WorkspaceVersion = "1.0.0"
	cfg.DisabledPatches = []string{"a", "b"}
	cfg.Logging.Level = "info"

	path := filepath.Join(t.TempDir(), "nested", "dir", FileName)
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(cfg, loaded))
}

func TestIsDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DisabledPatches = []string{"one", "two"}

	assert.True(t, cfg.IsDisabled("one"))
	assert.True(t, cfg.IsDisabled("two"))
	assert.False(t, cfg.IsDisabled("three"))
	assert.False(t, DefaultConfig().IsDisabled("one"))
}
