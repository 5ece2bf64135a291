package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"patchsmith/internal/patch"
)

var statusCmd = &cobra.Command{
	Use:   "status [patch-file...]",
	Short: "Show which patches are applied, pending, or skipped",
	RunE:  runStatus,
}

var verifyCmd = &cobra.Command{
	Use:   "verify [patch-file...]",
	Short: "Check that every eligible patch is already applied",
	Long: `Verify dry-runs the patch set and reports a mismatch for every patch
that would still change the workspace. Useful in CI after a release
branch is cut.`,
	RunE: runVerify,
}

// dryRunAll plans every patch without writing, one report per patch
// file. No lock is taken: a planning pass never mutates the workspace.
func dryRunAll(cmd *cobra.Command, args []string) ([]loadedConfig, []*patch.Report, string, error) {
	ctx := cmdContext(cmd)

	files, err := resolvePatchFiles(args)
	if err != nil {
		return nil, nil, "", err
	}
	loaded, err := loadPatchConfigs(ctx, files)
	if err != nil {
		return nil, nil, "", err
	}
	version := resolveVersion()

	applicator, err := patch.NewApplicator(workspaceRoot, version, patch.Options{DryRun: true})
	if err != nil {
		return nil, nil, "", err
	}
	reports := make([]*patch.Report, 0, len(loaded))
	for _, lc := range loaded {
		reports = append(reports, applicator.Apply(ctx, lc.Config))
	}
	return loaded, reports, version, nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	_, reports, version, err := dryRunAll(cmd, args)
	if err != nil {
		return err
	}

	fmt.Println("Patch Status Report")
	fmt.Printf("Workspace: %s\n", workspaceRoot)
	fmt.Printf("Version: %s\n\n", version)

	type pending struct {
		id     string
		reason string
	}
	var applied []string
	var notApplied []pending
	var skipped []pending
	for _, report := range reports {
		for _, res := range report.Results {
			switch res.Status {
			case patch.StatusAlreadyApplied:
				applied = append(applied, res.ID)
			case patch.StatusApplied:
				notApplied = append(notApplied, pending{res.ID, "target found but not applied"})
			case patch.StatusFailed:
				notApplied = append(notApplied, pending{res.ID, res.Reason})
			case patch.StatusSkippedVersion:
				skipped = append(skipped, pending{res.ID, res.Reason})
			}
		}
	}

	fmt.Printf("✓ APPLIED (%d patches)\n", len(applied))
	for _, id := range applied {
		fmt.Printf("  - %s\n", id)
	}
	fmt.Printf("\n⊙ NOT APPLIED (%d patches)\n", len(notApplied))
	for _, p := range notApplied {
		fmt.Printf("  - %s (%s)\n", p.id, p.reason)
	}
	fmt.Printf("\n⊘ SKIPPED (%d patches)\n", len(skipped))
	for _, p := range skipped {
		fmt.Printf("  - %s (%s)\n", p.id, p.reason)
	}
	return nil
}

func runVerify(cmd *cobra.Command, args []string) error {
	_, reports, _, err := dryRunAll(cmd, args)
	if err != nil {
		return err
	}

	fmt.Println("Verifying patches...")
	fmt.Println()

	var verified, mismatch, skipped int
	for _, report := range reports {
		for _, res := range report.Results {
			switch res.Status {
			case patch.StatusAlreadyApplied:
				fmt.Printf("✓ %s: Verified (already applied)\n", res.ID)
				verified++
			case patch.StatusApplied:
				fmt.Fprintf(os.Stderr, "✗ %s: MISMATCH\n", res.ID)
				fmt.Fprintln(os.Stderr, "  Expected: patch already applied")
				fmt.Fprintln(os.Stderr, "  Found: patch not yet applied")
				fmt.Fprintf(os.Stderr, "  Location: %s\n", res.File)
				mismatch++
			case patch.StatusSkippedVersion:
				fmt.Printf("⊘ %s: Skipped (%s)\n", res.ID, res.Reason)
				skipped++
			case patch.StatusFailed:
				fmt.Fprintf(os.Stderr, "✗ %s: MISMATCH\n", res.ID)
				fmt.Fprintf(os.Stderr, "  Error: %s\n", res.Reason)
				if res.File != "" {
					fmt.Fprintf(os.Stderr, "  Location: %s\n", res.File)
				}
				mismatch++
			}
		}
	}

	fmt.Println()
	fmt.Println("Summary:")
	fmt.Printf("  %d verified\n", verified)
	fmt.Printf("  %d mismatched\n", mismatch)
	fmt.Printf("  %d skipped\n", skipped)

	if mismatch > 0 {
		return errVerifyMismatch
	}
	return nil
}
