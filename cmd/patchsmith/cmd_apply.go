package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"patchsmith/internal/cst"
	"patchsmith/internal/patch"
	"patchsmith/internal/safety"
)

var (
	flagDryRun bool
	flagDiff   bool
	flagJSON   bool
)

var applyCmd = &cobra.Command{
	Use:   "apply [patch-file...]",
	Short: "Apply patches to the workspace",
	Long: `Apply loads the given patch files (or discovers them in the patch
directories) and applies every patch. Patches that already hold are
reported and left alone; a failed patch never blocks the others.`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().BoolVarP(&flagDryRun, "dry-run", "n", false, "Plan and validate everything, write nothing")
	applyCmd.Flags().BoolVar(&flagDiff, "diff", false, "Show a unified diff per patch")
	applyCmd.Flags().BoolVar(&flagJSON, "json", false, "Emit the run report as JSON")
}

func runApply(cmd *cobra.Command, args []string) error {
	ctx := cmdContext(cmd)

	files, err := resolvePatchFiles(args)
	if err != nil {
		return err
	}
	loaded, err := loadPatchConfigs(ctx, files)
	if err != nil {
		return err
	}
	version := resolveVersion()

	if !flagDryRun {
		lock, err := safety.AcquireRunLock(workspaceRoot)
		if err != nil {
			return err
		}
		defer lock.Release()
	}

	applicator, err := patch.NewApplicator(workspaceRoot, version,
		patch.Options{DryRun: flagDryRun, Diff: flagDiff})
	if err != nil {
		return err
	}

	if !flagJSON {
		fmt.Printf("Workspace: %s\n", workspaceRoot)
		fmt.Printf("Version: %s\n", version)
		if flagDryRun {
			fmt.Println("[dry run - nothing will be written]")
		}
		fmt.Println()
	}

	var total patch.Counts
	runs := make([]runReport, 0, len(loaded))
	for _, lc := range loaded {
		if !flagJSON {
			fmt.Printf("Loading patches from %s...\n", lc.Path)
		}
		report := applicator.Apply(ctx, lc.Config)

		c := report.Counts()
		total.Applied += c.Applied
		total.AlreadyApplied += c.AlreadyApplied
		total.SkippedVersion += c.SkippedVersion
		total.Failed += c.Failed

		if flagJSON {
			runs = append(runs, newRunReport(lc.Path, report))
		} else {
			printReport(report)
			fmt.Println()
		}
	}

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(runs); err != nil {
			return err
		}
	} else {
		fmt.Println("Summary:")
		fmt.Printf("  %d applied\n", total.Applied)
		fmt.Printf("  %d already applied\n", total.AlreadyApplied)
		fmt.Printf("  %d skipped\n", total.SkippedVersion)
		fmt.Printf("  %d failed\n", total.Failed)
	}

	if total.Failed > 0 {
		return errPatchesFailed
	}
	return nil
}

// printReport renders one run line per patch, diffs inline.
func printReport(report *patch.Report) {
	for _, res := range report.Results {
		switch res.Status {
		case patch.StatusApplied:
			if report.DryRun {
				fmt.Printf("✓ %s: Would apply to %s\n", res.ID, res.File)
			} else {
				fmt.Printf("✓ %s: Applied to %s\n", res.ID, res.File)
			}
		case patch.StatusAlreadyApplied:
			fmt.Printf("⊙ %s: Already applied to %s\n", res.ID, res.File)
		case patch.StatusSkippedVersion:
			fmt.Printf("⊘ %s: Skipped (%s)\n", res.ID, res.Reason)
		case patch.StatusFailed:
			fmt.Fprintf(os.Stderr, "✗ %s: Failed - %s\n", res.ID, res.Reason)
			if res.File != "" {
				fmt.Fprintf(os.Stderr, "  File: %s\n", res.File)
			}
			printFailureHints(res.Err)
		}
		if res.Diff != "" {
			fmt.Println(res.Diff)
		}
	}
}

// printFailureHints expands the two classic conflict shapes with the
// usual triage notes.
func printFailureHints(err error) {
	var noMatch *cst.NoMatchError
	var ambiguous *cst.AmbiguousMatchError
	switch {
	case errors.As(err, &noMatch):
		fmt.Fprintln(os.Stderr, "  CONFLICT: query matched no locations")
		fmt.Fprintln(os.Stderr, "  Possible causes:")
		fmt.Fprintln(os.Stderr, "    - function/struct was renamed or removed")
		fmt.Fprintln(os.Stderr, "    - signature changed")
		fmt.Fprintln(os.Stderr, "    - code moved to a different file")
	case errors.As(err, &ambiguous):
		fmt.Fprintf(os.Stderr, "  CONFLICT: query matched %d locations (expected 1)\n", ambiguous.Count)
		fmt.Fprintln(os.Stderr, "  Action: refine the query pattern to be more specific")
	}
}

// runReport is the JSON shape of one patch file's run.
type runReport struct {
	PatchFile        string       `json:"patch_file"`
	RunID            string       `json:"run_id"`
	Workspace        string       `json:"workspace"`
	WorkspaceVersion string       `json:"workspace_version"`
	DryRun           bool         `json:"dry_run"`
	DurationMs       int64        `json:"duration_ms"`
	Results          []jsonResult `json:"results"`
	Summary          jsonSummary  `json:"summary"`
}

type jsonResult struct {
	ID           string `json:"id"`
	File         string `json:"file,omitempty"`
	Status       string `json:"status"`
	Reason       string `json:"reason,omitempty"`
	BytesChanged int    `json:"bytes_changed,omitempty"`
	Diff         string `json:"diff,omitempty"`
}

type jsonSummary struct {
	Applied        int `json:"applied"`
	AlreadyApplied int `json:"already_applied"`
	Skipped        int `json:"skipped"`
	Failed         int `json:"failed"`
}

func newRunReport(path string, r *patch.Report) runReport {
	out := runReport{
		PatchFile:        path,
		RunID:            r.RunID,
		Workspace:        r.Workspace,
		WorkspaceVersion: r.WorkspaceVersion,
		DryRun:           r.DryRun,
		DurationMs:       r.Duration.Milliseconds(),
		Results:          make([]jsonResult, 0, len(r.Results)),
	}
	for _, res := range r.Results {
		out.Results = append(out.Results, jsonResult{
			ID:           res.ID,
			File:         res.File,
			Status:       res.Status.String(),
			Reason:       res.Reason,
			BytesChanged: res.BytesChanged,
			Diff:         res.Diff,
		})
	}
	c := r.Counts()
	out.Summary = jsonSummary{
		Applied:        c.Applied,
		AlreadyApplied: c.AlreadyApplied,
		Skipped:        c.SkippedVersion,
		Failed:         c.Failed,
	}
	return out
}
