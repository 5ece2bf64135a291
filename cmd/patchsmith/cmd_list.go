package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"patchsmith/internal/patch"
)

var listCmd = &cobra.Command{
	Use:   "list [patch-file...]",
	Short: "List the patches in the discovered patch files",
	RunE:  runList,
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := cmdContext(cmd)

	files, err := resolvePatchFiles(args)
	if err != nil {
		return err
	}
	// Deliberately skips the disabled-patch filter so operators can see
	// what a config entry is hiding.
	configs, err := patch.LoadAll(ctx, files)
	if err != nil {
		return err
	}

	for i, cfg := range configs {
		if i > 0 {
			fmt.Println()
		}
		fmt.Printf("%s (%s)\n", cfg.Meta.Name, files[i])
		if cfg.Meta.Description != "" {
			fmt.Printf("  %s\n", cfg.Meta.Description)
		}
		if vr := strings.TrimSpace(cfg.Meta.VersionRange); vr != "" {
			fmt.Printf("  version range: %s\n", vr)
		}
		for _, p := range cfg.Patches {
			suffix := ""
			if toolCfg.IsDisabled(p.ID) {
				suffix = "  (disabled)"
			}
			fmt.Printf("  - %s  [%s %s]  %s%s\n",
				p.ID, p.Query.Type, p.Operation.Type, p.File, suffix)
		}
	}
	return nil
}
