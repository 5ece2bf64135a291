package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"patchsmith/internal/logging"
	"patchsmith/internal/patch"
)

// resolveWorkspace picks the workspace root. The explicit flag wins,
// then the PATCHSMITH_WORKSPACE environment variable, then the nearest
// ancestor of the working directory that carries a Cargo.toml.
func resolveWorkspace(flag string) (string, error) {
	if flag != "" {
		abs, err := filepath.Abs(flag)
		if err != nil {
			return "", err
		}
		if _, err := os.Stat(abs); err != nil {
			return "", fmt.Errorf("workspace %s: %w", flag, err)
		}
		return abs, nil
	}

	if env := os.Getenv("PATCHSMITH_WORKSPACE"); env != "" {
		if _, err := os.Stat(env); err == nil {
			return filepath.Abs(env)
		}
		fmt.Fprintf(os.Stderr, "Warning: PATCHSMITH_WORKSPACE is set but does not exist: %s\n", env)
	}

	if root, ok := autoDetectWorkspace(); ok {
		fmt.Fprintf(os.Stderr, "Auto-detected workspace: %s\n", root)
		return root, nil
	}

	return "", errors.New(`could not find a Rust workspace; try one of:
  1. run from inside the workspace: cd /path/to/workspace && patchsmith apply
  2. pass it explicitly: patchsmith apply --workspace /path/to/workspace
  3. set the environment variable: export PATCHSMITH_WORKSPACE=/path/to/workspace`)
}

// autoDetectWorkspace walks up from the working directory to the
// nearest directory holding a Cargo.toml.
func autoDetectWorkspace() (string, bool) {
	dir, err := os.Getwd()
	if err != nil {
		return "", false
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "Cargo.toml")); err == nil {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// resolveVersion picks the workspace version for the gate: the flag
// wins, then the tool config override, then the manifest. An unreadable
// version downgrades to 0.0.0 with a warning so unconstrained patch
// sets still run.
func resolveVersion() string {
	if flagVersion != "" {
		return flagVersion
	}
	if toolCfg.WorkspaceVersion != "" {
		return toolCfg.WorkspaceVersion
	}
	v, err := patch.DetectWorkspaceVersion(workspaceRoot)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Warning: could not read workspace version from Cargo.toml, using 0.0.0")
		return "0.0.0"
	}
	return v
}

// patchDirCandidates expands the configured patch directories into
// concrete paths: each relative entry resolves against the workspace
// root first and the working directory second.
func patchDirCandidates() []string {
	var candidates []string
	seen := map[string]bool{}
	add := func(dir string) {
		if dir != "" && !seen[dir] {
			seen[dir] = true
			candidates = append(candidates, dir)
		}
	}

	cwd, _ := os.Getwd()
	for _, dir := range toolCfg.PatchDirs {
		if filepath.IsAbs(dir) {
			add(dir)
			continue
		}
		add(filepath.Join(workspaceRoot, dir))
		if cwd != "" {
			add(filepath.Join(cwd, dir))
		}
	}
	return candidates
}

// resolvePatchFiles returns the patch files a command operates on:
// explicit arguments win, otherwise the first candidate directory that
// holds any *.toml file supplies them, sorted.
func resolvePatchFiles(args []string) ([]string, error) {
	if len(args) > 0 {
		files := make([]string, 0, len(args))
		for _, arg := range args {
			abs, err := filepath.Abs(arg)
			if err != nil {
				return nil, err
			}
			if _, err := os.Stat(abs); err != nil {
				return nil, fmt.Errorf("patch file %s: %w", arg, err)
			}
			files = append(files, abs)
		}
		return files, nil
	}

	candidates := patchDirCandidates()
	for _, dir := range candidates {
		files, err := filepath.Glob(filepath.Join(dir, "*.toml"))
		if err != nil || len(files) == 0 {
			continue
		}
		sort.Strings(files)
		logging.Get(logging.CategoryCLI).Debugf("discovered %d patch file(s) in %s", len(files), dir)
		return files, nil
	}
	return nil, fmt.Errorf("no .toml patch files found in %s", strings.Join(candidates, ", "))
}

// loadedConfig pairs a parsed patch config with the file it came from.
type loadedConfig struct {
	Path   string
	Config *patch.PatchConfig
}

// loadPatchConfigs loads every patch file and drops patches disabled in
// the tool config. A file whose patches are all disabled is dropped
// whole.
func loadPatchConfigs(ctx context.Context, paths []string) ([]loadedConfig, error) {
	configs, err := patch.LoadAll(ctx, paths)
	if err != nil {
		return nil, err
	}

	out := make([]loadedConfig, 0, len(configs))
	for i, cfg := range configs {
		if len(toolCfg.DisabledPatches) > 0 {
			kept := cfg.Patches[:0]
			for _, p := range cfg.Patches {
				if toolCfg.IsDisabled(p.ID) {
					logging.Get(logging.CategoryCLI).Infof("patch %s disabled by config", p.ID)
					continue
				}
				kept = append(kept, p)
			}
			cfg.Patches = kept
		}
		if len(cfg.Patches) == 0 {
			continue
		}
		out = append(out, loadedConfig{Path: paths[i], Config: cfg})
	}
	return out, nil
}
