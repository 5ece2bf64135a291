// Package safety confines every file operation to the workspace. The
// guard canonicalizes candidate paths and rejects anything outside the
// workspace root or under a forbidden ancestor such as the cargo
// registry, the rustup toolchain root, or the build directory.
package safety

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"patchsmith/internal/logging"
)

// OutsideWorkspaceError reports a path that escapes the workspace root.
type OutsideWorkspaceError struct {
	Path string
	Root string
}

func (e *OutsideWorkspaceError) Error() string {
	return fmt.Sprintf("path %s is outside workspace %s", e.Path, e.Root)
}

// ForbiddenPathError reports a path under a forbidden ancestor.
type ForbiddenPathError struct {
	Path string
	Root string
}

func (e *ForbiddenPathError) Error() string {
	return fmt.Sprintf("path %s is under forbidden root %s", e.Path, e.Root)
}

// WorkspaceGuard validates paths against a canonical workspace root.
// It is immutable after construction and is the sole gateway through
// which edits reach the file system.
type WorkspaceGuard struct {
	root      string
	forbidden []string
}

// NewWorkspaceGuard canonicalizes root and builds the forbidden set.
func NewWorkspaceGuard(root string) (*WorkspaceGuard, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root %s: %w", root, err)
	}
	canon, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("canonicalize workspace root %s: %w", root, err)
	}
	g := &WorkspaceGuard{root: canon, forbidden: defaultForbidden(canon)}
	logging.SafetyDebug("workspace guard: root=%s forbidden=%v", g.root, g.forbidden)
	return g, nil
}

// defaultForbidden lists the roots no edit may ever touch: the cargo
// package caches, the rustup install root, and the workspace build dir.
func defaultForbidden(root string) []string {
	home, _ := os.UserHomeDir()

	cargoHome := os.Getenv("CARGO_HOME")
	if cargoHome == "" && home != "" {
		cargoHome = filepath.Join(home, ".cargo")
	}
	rustupHome := os.Getenv("RUSTUP_HOME")
	if rustupHome == "" && home != "" {
		rustupHome = filepath.Join(home, ".rustup")
	}

	var out []string
	if cargoHome != "" {
		out = append(out, filepath.Join(cargoHome, "registry"), filepath.Join(cargoHome, "git"))
	}
	if rustupHome != "" {
		out = append(out, rustupHome)
	}
	out = append(out, filepath.Join(root, "target"))

	// Resolve symlinked cache locations where possible; keep the lexical
	// path when the directory does not exist on this machine.
	for i, p := range out {
		if canon, err := filepath.EvalSymlinks(p); err == nil {
			out[i] = canon
		}
	}
	return out
}

// Root returns the canonical workspace root.
func (g *WorkspaceGuard) Root() string { return g.root }

// Validate resolves path (workspace-relative paths are joined to the
// root), canonicalizes it, and returns the canonical form iff it is a
// descendant of the workspace root and under no forbidden ancestor.
func (g *WorkspaceGuard) Validate(path string) (string, error) {
	p := path
	if !filepath.IsAbs(p) {
		p = filepath.Join(g.root, p)
	}
	canon, err := filepath.EvalSymlinks(p)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	if !isDescendant(g.root, canon) {
		return "", &OutsideWorkspaceError{Path: canon, Root: g.root}
	}
	for _, f := range g.forbidden {
		if isDescendant(f, canon) {
			return "", &ForbiddenPathError{Path: canon, Root: f}
		}
	}
	return canon, nil
}

// isDescendant reports whether path equals root or lies beneath it.
func isDescendant(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
