package patch

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
[meta]
name = "0.89 migration"
description = "Adjust resolver defaults for the 0.89 line"
version_range = ">=0.88.0, <0.90.0"

[[patches]]
id = "bump-timeout"
file = "src/config.rs"

[patches.query]
type = "ast-grep"
pattern = "const TIMEOUT: u64 = $VALUE;"

[patches.operation]
type = "replace"
text = "const TIMEOUT: u64 = 30;"

[[patches]]
id = "add-features"
file = "Cargo.toml"

[patches.query]
type = "toml"
section = "features"
ensure_absent = true

[patches.operation]
type = "insert-section"
text = "[features]\ndefault = []"
after_section = "dependencies"
`

func TestLoadFromString_ParsesFullConfig(t *testing.T) {
	cfg, err := LoadFromString(sampleConfig)
	require.NoError(t, err)

	assert.Equal(t, "0.89 migration", cfg.Meta.Name)
	assert.Equal(t, ">=0.88.0, <0.90.0", cfg.Meta.VersionRange)
	assert.True(t, cfg.Meta.IsWorkspaceRelative())
	require.Len(t, cfg.Patches, 2)

	first := cfg.Patches[0]
	assert.Equal(t, "bump-timeout", first.ID)
	assert.Equal(t, QueryAstGrep, first.Query.Type)
	assert.Equal(t, "const TIMEOUT: u64 = $VALUE;", first.Query.Pattern)
	assert.Equal(t, OpReplace, first.Operation.Type)

	second := cfg.Patches[1]
	assert.Equal(t, QueryToml, second.Query.Type)
	assert.Equal(t, "features", second.Query.Section)
	assert.True(t, second.Query.EnsureAbsent)
	assert.Equal(t, OpInsertSection, second.Operation.Type)
	assert.Equal(t, "dependencies", second.Operation.AfterSection)
}

func TestLoadFromString_SyntaxError(t *testing.T) {
	_, err := LoadFromString("[meta\nname = broken")
	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Empty(t, cerr.Path)
}

func TestLoadFromString_ValidationError(t *testing.T) {
	_, err := LoadFromString("[meta]\nname = \"empty\"\n")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, err.Error(), "patch config contains no patches")
}

func TestLoadFromPath_AttachesPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "migrate.toml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o644))

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Patches, 2)

	bad := filepath.Join(dir, "broken.toml")
	require.NoError(t, os.WriteFile(bad, []byte("[meta\n"), 0o644))
	_, err = LoadFromPath(bad)
	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, bad, cerr.Path)
	assert.Contains(t, err.Error(), bad)
}

func TestLoadFromPath_MissingFile(t *testing.T) {
	_, err := LoadFromPath(filepath.Join(t.TempDir(), "absent.toml"))
	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadAll_KeepsOrder(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for _, name := range []string{"a.toml", "b.toml", "c.toml"} {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(sampleConfig), 0o644))
		paths = append(paths, p)
	}

	configs, err := LoadAll(context.Background(), paths)
	require.NoError(t, err)
	require.Len(t, configs, 3)
	for _, cfg := range configs {
		assert.Equal(t, "0.89 migration", cfg.Meta.Name)
	}
}

func TestLoadAll_FirstFailureWins(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.toml")
	require.NoError(t, os.WriteFile(good, []byte(sampleConfig), 0o644))
	bad := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte("[[patches]]\nid = 42\n"), 0o644))

	_, err := LoadAll(context.Background(), []string{good, bad})
	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, bad, cerr.Path)
}
