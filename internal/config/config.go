// Package config loads the tool's own configuration. This is the
// operator-facing knobs file, not the patch definitions: where patches
// live, how to log, which patches are switched off. Patch files
// themselves are parsed by internal/patch.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileName is the well-known config file looked up in the workspace root.
const FileName = ".patchsmith.yaml"

// Config holds all patchsmith configuration.
type Config struct {
	// PatchDirs lists directories scanned for *.toml patch files, in
	// order. Relative entries resolve against the workspace root.
	PatchDirs []string `yaml:"patch_dirs"`

	// WorkspaceVersion overrides the version detected from the
	// workspace manifest. Mostly useful for pre-release builds whose
	// manifest version lags the tag.
	WorkspaceVersion string `yaml:"workspace_version"`

	// DisabledPatches lists patch ids that are skipped even when
	// their file is loaded.
	DisabledPatches []string `yaml:"disabled_patches"`

	Logging LoggingConfig `yaml:"logging"`
	Audit   AuditConfig   `yaml:"audit"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	JSON  bool   `yaml:"json"`
}

// AuditConfig configures the append-only run log.
type AuditConfig struct {
	Enabled bool `yaml:"enabled"`
	// Path of the JSONL audit file. Relative entries resolve against
	// the workspace root.
	Path string `yaml:"path"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		PatchDirs: []string{"patches"},
		Logging: LoggingConfig{
			Level: "warn",
			JSON:  false,
		},
		Audit: AuditConfig{
			Enabled: false,
			Path:    ".patchsmith-audit.jsonl",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults; environment overrides apply either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// LoadFromWorkspace loads the workspace's config file.
func LoadFromWorkspace(root string) (*Config, error) {
	return Load(filepath.Join(root, FileName))
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// IsDisabled reports whether a patch id is switched off.
func (c *Config) IsDisabled(id string) bool {
	return slices.Contains(c.DisabledPatches, id)
}

// applyEnvOverrides applies PATCHSMITH_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("PATCHSMITH_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("PATCHSMITH_JSON_LOGS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Logging.JSON = b
		}
	}
	if v := os.Getenv("PATCHSMITH_WORKSPACE_VERSION"); v != "" {
		c.WorkspaceVersion = v
	}
	if v := os.Getenv("PATCHSMITH_AUDIT_LOG"); v != "" {
		c.Audit.Enabled = true
		c.Audit.Path = v
	}
	if v := os.Getenv("PATCHSMITH_PATCH_DIRS"); v != "" {
		var dirs []string
		for _, d := range strings.Split(v, string(os.PathListSeparator)) {
			if d = strings.TrimSpace(d); d != "" {
				dirs = append(dirs, d)
			}
		}
		if len(dirs) > 0 {
			c.PatchDirs = dirs
		}
	}
	if v := os.Getenv("PATCHSMITH_DISABLED_PATCHES"); v != "" {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" && !c.IsDisabled(id) {
				c.DisabledPatches = append(c.DisabledPatches, id)
			}
		}
	}
}
