package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"patchsmith/internal/patch"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the patch directory and re-report status on change",
	RunE:  runWatch,
}

// patchDir returns the first candidate patch directory that exists.
func patchDir() (string, error) {
	for _, dir := range patchDirCandidates() {
		info, err := os.Stat(dir)
		if err == nil && info.IsDir() {
			return dir, nil
		}
	}
	return "", fmt.Errorf("no patch directory found (looked for %v)", toolCfg.PatchDirs)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmdContext(cmd)

	dir, err := patchDir()
	if err != nil {
		return err
	}

	onSettle := func(_ context.Context, paths []string) {
		fmt.Printf("\n%d patch file(s) changed\n\n", len(paths))
		if err := runStatus(cmd, nil); err != nil {
			fmt.Fprintf(os.Stderr, "status: %v\n", err)
		}
	}
	w, err := patch.NewWatcher(dir, ".toml", onSettle)
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	defer w.Stop()

	fmt.Printf("Watching %s (interrupt to stop)\n\n", dir)
	if err := runStatus(cmd, nil); err != nil {
		fmt.Fprintf(os.Stderr, "status: %v\n", err)
	}

	<-ctx.Done()
	return nil
}
