package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"patchsmith/internal/compiler"
	"patchsmith/internal/edit"
	"patchsmith/internal/safety"
)

var (
	flagCheckApply bool
	flagPackage    string
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run cargo check and optionally apply auto-fixes",
	Long: `Check runs cargo check over the workspace and reports every error
diagnostic. With --apply it also applies machine-applicable compiler
suggestions and the built-in fixes, then re-checks the build.`,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().BoolVar(&flagCheckApply, "apply", false, "Apply available auto-fixes")
	checkCmd.Flags().StringVarP(&flagPackage, "package", "p", "", "Restrict the check to one cargo package")
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx := cmdContext(cmd)

	diags, err := compiler.RunCheck(ctx, workspaceRoot, flagPackage)
	if err != nil {
		return err
	}
	if len(diags) == 0 {
		fmt.Println("✓ build is clean")
		return nil
	}

	guard, err := safety.NewWorkspaceGuard(workspaceRoot)
	if err != nil {
		return err
	}
	edits, unfixable := compiler.AutofixAll(diags, guard)

	if !flagCheckApply {
		for i := range diags {
			printDiagnostic(&diags[i])
		}
		if len(edits) > 0 {
			fmt.Printf("\n%d of %d diagnostic(s) have auto-fixes; run with --apply\n",
				len(diags)-len(unfixable), len(diags))
		}
		return errBuildBroken
	}

	lock, err := safety.AcquireRunLock(workspaceRoot)
	if err != nil {
		return err
	}
	defer lock.Release()

	results, err := edit.ApplyBatch(edits, guard)
	if err != nil {
		return err
	}
	for _, res := range results {
		if res.Outcome == edit.Applied {
			fmt.Printf("✓ fixed %s (%+d bytes)\n", res.File, res.BytesChanged)
		}
	}

	if len(unfixable) > 0 {
		fmt.Fprintf(os.Stderr, "\n%d diagnostic(s) have no auto-fix:\n\n", len(unfixable))
		for i := range unfixable {
			printDiagnostic(&unfixable[i])
		}
		return errBuildBroken
	}

	if !compiler.CheckPasses(ctx, workspaceRoot, flagPackage) {
		fmt.Fprintln(os.Stderr, "✗ build still broken after fixes")
		return errBuildBroken
	}
	fmt.Println("✓ build is clean after fixes")
	return nil
}

func printDiagnostic(d *compiler.Diagnostic) {
	if d.Rendered != "" {
		fmt.Print(d.Rendered)
		return
	}
	if d.Code != "" {
		fmt.Printf("error[%s]: %s\n", d.Code, d.Message)
	} else {
		fmt.Printf("error: %s\n", d.Message)
	}
	if span, ok := d.PrimarySpan(); ok {
		fmt.Printf("  --> %s:%d:%d\n", span.File, span.LineStart, span.ColumnStart)
	}
}
