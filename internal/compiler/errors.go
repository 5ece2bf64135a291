package compiler

import "fmt"

// CargoError reports a cargo invocation that failed for reasons other
// than compilation errors in the checked code: missing binary, bad
// manifest, broken registry. Compilation errors are not a CargoError;
// they come back as diagnostics.
type CargoError struct {
	Err    error
	Stderr string
}

func (e *CargoError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("cargo check: %v: %s", e.Err, e.Stderr)
	}
	return fmt.Sprintf("cargo check: %v", e.Err)
}

func (e *CargoError) Unwrap() error { return e.Err }

// NoFixError reports a diagnostic that no strategy knows how to repair.
type NoFixError struct {
	Code   string
	Reason string
}

func (e *NoFixError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("no fix available: %s", e.Reason)
	}
	return fmt.Sprintf("no fix available for %s: %s", e.Code, e.Reason)
}
