package patch

import (
	"fmt"
	"time"

	"github.com/pmezard/go-difflib/difflib"
)

// Status classifies the terminal state of one patch.
type Status int

const (
	// StatusApplied means the patch mutated its target file.
	StatusApplied Status = iota + 1
	// StatusAlreadyApplied means the target already held the patched
	// state; nothing was written.
	StatusAlreadyApplied
	// StatusSkippedVersion means the workspace version did not satisfy
	// the config's version range; the target was never read.
	StatusSkippedVersion
	// StatusFailed means the patch could not be applied.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusApplied:
		return "applied"
	case StatusAlreadyApplied:
		return "already-applied"
	case StatusSkippedVersion:
		return "skipped-version"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// PatchResult is the terminal outcome of one patch.
type PatchResult struct {
	ID     string
	File   string
	Status Status
	// Reason explains skips, no-op idempotency, and failures.
	Reason string
	// Err holds the typed failure for StatusFailed, nil otherwise.
	Err error
	// BytesChanged is the net growth of the file from this patch.
	BytesChanged int
	// Diff is a unified diff of this patch's effect, populated when
	// the applicator runs with diffs enabled.
	Diff string
}

func (r PatchResult) String() string {
	switch r.Status {
	case StatusApplied:
		return fmt.Sprintf("Applied patch to %s", r.File)
	case StatusAlreadyApplied:
		return fmt.Sprintf("Already applied to %s", r.File)
	case StatusSkippedVersion:
		return fmt.Sprintf("Skipped (version): %s", r.Reason)
	case StatusFailed:
		return fmt.Sprintf("Failed on %s: %s", r.File, r.Reason)
	default:
		return fmt.Sprintf("Unknown status for %s", r.ID)
	}
}

// Counts tallies results by terminal status.
type Counts struct {
	Applied        int
	AlreadyApplied int
	SkippedVersion int
	Failed         int
}

// Report is the outcome of one applicator run, in patch declaration
// order.
type Report struct {
	RunID            string
	Workspace        string
	WorkspaceVersion string
	DryRun           bool
	StartedAt        time.Time
	Duration         time.Duration
	Results          []PatchResult
}

// Success reports whether no patch failed.
func (r *Report) Success() bool {
	for _, res := range r.Results {
		if res.Status == StatusFailed {
			return false
		}
	}
	return true
}

// Counts tallies the run's results.
func (r *Report) Counts() Counts {
	var c Counts
	for _, res := range r.Results {
		switch res.Status {
		case StatusApplied:
			c.Applied++
		case StatusAlreadyApplied:
			c.AlreadyApplied++
		case StatusSkippedVersion:
			c.SkippedVersion++
		case StatusFailed:
			c.Failed++
		}
	}
	return c
}

// Summary renders the tally on one line.
func (r *Report) Summary() string {
	c := r.Counts()
	return fmt.Sprintf("%d applied, %d already applied, %d skipped, %d failed",
		c.Applied, c.AlreadyApplied, c.SkippedVersion, c.Failed)
}

// unifiedDiff renders the change from before to after as a unified
// diff with three lines of context.
func unifiedDiff(file, before, after string) string {
	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: "a/" + file,
		ToFile:   "b/" + file,
		Context:  3,
	})
	if err != nil {
		return ""
	}
	return text
}
