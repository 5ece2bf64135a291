package compiler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"patchsmith/internal/logging"
)

// RunCheck runs `cargo check --message-format=json` in the workspace
// and returns the error-level diagnostics whose spans fall inside it.
// A non-zero cargo exit is expected when the build has errors and is
// not itself a failure; cargo failing before it can emit diagnostics
// (bad manifest, missing toolchain) is.
func RunCheck(ctx context.Context, workspace, pkg string) ([]Diagnostic, error) {
	args := []string{"check", "--message-format=json"}
	if pkg != "" {
		args = append(args, "-p", pkg)
	}

	timer := logging.StartTimer(logging.CategoryCompiler, "cargo check")
	defer timer.Stop()

	cmd := exec.CommandContext(ctx, "cargo", args...)
	cmd.Dir = workspace
	// Incremental artifacts make diagnostics depend on build history.
	cmd.Env = append(os.Environ(), "CARGO_INCREMENTAL=0")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logging.CompilerDebug("running cargo check in %s", workspace)
	runErr := cmd.Run()
	if runErr != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("cargo check: %w", ctx.Err())
		}
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return nil, &CargoError{Err: runErr, Stderr: tail(stderr.String(), 3)}
		}
	}

	diags, err := ParseCheckOutput(&stdout, workspace)
	if err != nil {
		return nil, err
	}
	// Cargo failed without producing a single error diagnostic: the
	// failure happened before compilation (manifest, lockfile, ...)
	// and lives only on stderr.
	if len(diags) == 0 && runErr != nil {
		return nil, &CargoError{Err: runErr, Stderr: tail(stderr.String(), 3)}
	}

	logging.Compiler("cargo check: %d error diagnostic(s)", len(diags))
	return diags, nil
}

// CheckPasses reports whether `cargo check` succeeds in the workspace.
// Diagnostics are discarded; this is the cheap gate for "did the fix
// round leave the build healthy".
func CheckPasses(ctx context.Context, workspace, pkg string) bool {
	args := []string{"check", "--message-format=short"}
	if pkg != "" {
		args = append(args, "-p", pkg)
	}

	cmd := exec.CommandContext(ctx, "cargo", args...)
	cmd.Dir = workspace
	cmd.Env = append(os.Environ(), "CARGO_INCREMENTAL=0")
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			logging.Get(logging.CategoryCompiler).Warnf("cargo check did not run: %v", err)
		}
		return false
	}
	return true
}

// tail returns the last n non-empty lines of s joined by "; ".
func tail(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	var kept []string
	for _, l := range lines {
		if t := strings.TrimSpace(l); t != "" {
			kept = append(kept, t)
		}
	}
	if len(kept) > n {
		kept = kept[len(kept)-n:]
	}
	return strings.Join(kept, "; ")
}
