package patch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"patchsmith/internal/logging"
	"patchsmith/internal/tomledit"
)

// DetectWorkspaceVersion reads the crate version out of the workspace's
// Cargo.toml. Plain manifests carry it under [package]; virtual
// workspace manifests carry it under [workspace.package] for members to
// inherit.
func DetectWorkspaceVersion(root string) (string, error) {
	manifest := filepath.Join(root, "Cargo.toml")
	data, err := os.ReadFile(manifest)
	if err != nil {
		return "", fmt.Errorf("read manifest: %w", err)
	}

	ed, err := tomledit.NewEditor(manifest, string(data))
	if err != nil {
		return "", fmt.Errorf("parse manifest: %w", err)
	}

	if raw, ok := ed.Value("package", "version"); ok {
		if v, ok := unquote(raw); ok {
			logging.PatchDebug("workspace version %s from [package]", v)
			return v, nil
		}
	}
	if raw, ok := ed.Value("workspace.package", "version"); ok {
		if v, ok := unquote(raw); ok {
			logging.PatchDebug("workspace version %s from [workspace.package]", v)
			return v, nil
		}
	}
	return "", fmt.Errorf("no version in %s", manifest)
}

// unquote strips the quotes off a raw TOML string value. Version fields
// are always plain strings; anything else (inline tables for
// `version.workspace = true` inheritance) is rejected.
func unquote(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if len(raw) < 2 {
		return "", false
	}
	if (raw[0] == '"' && raw[len(raw)-1] == '"') || (raw[0] == '\'' && raw[len(raw)-1] == '\'') {
		return raw[1 : len(raw)-1], true
	}
	return "", false
}
