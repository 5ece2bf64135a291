// Command patchsmith applies declarative TOML patch files to a Rust
// workspace. Patches locate their targets structurally instead of by
// line number, verify the bytes they are about to replace, and write
// atomically, so a patch set can be re-run against a moving upstream.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"patchsmith/internal/config"
	"patchsmith/internal/logging"
	"patchsmith/internal/safety"
)

var (
	// Global flags
	flagWorkspace string
	flagVersion   string
	flagConfig    string
	flagLogLevel  string
	flagJSONLogs  bool
	verbose       bool

	// Resolved once in PersistentPreRunE, shared by every command.
	workspaceRoot string
	toolCfg       = config.DefaultConfig()
)

// Sentinel errors selecting the exit code: runtime failures exit 1,
// everything else that reaches main exits 2 (usage, config, I/O).
var (
	errPatchesFailed  = errors.New("one or more patches failed")
	errVerifyMismatch = errors.New("one or more patches failed verification")
	errBuildBroken    = errors.New("build has unfixed errors")
)

var rootCmd = &cobra.Command{
	Use:   "patchsmith",
	Short: "Compiler-aware patch system for Rust workspaces",
	Long: `patchsmith applies declarative TOML patch files to a Rust workspace.

Patches locate their targets structurally (source patterns, tree-sitter
queries, TOML sections) instead of by line number, verify the bytes
they are about to replace, and write atomically. Re-running a patch set
is safe: patches that already hold are reported, not re-applied.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		root, err := resolveWorkspace(flagWorkspace)
		if err != nil {
			return err
		}
		workspaceRoot = root

		cfgPath := flagConfig
		if cfgPath == "" {
			cfgPath = filepath.Join(workspaceRoot, config.FileName)
		}
		if toolCfg, err = config.Load(cfgPath); err != nil {
			return err
		}

		level := toolCfg.Logging.Level
		if flagLogLevel != "" {
			level = flagLogLevel
		}
		if verbose {
			level = "debug"
		}
		if err := logging.Initialize(level, toolCfg.Logging.JSON || flagJSONLogs); err != nil {
			return err
		}

		if toolCfg.Audit.Enabled {
			path := toolCfg.Audit.Path
			if !filepath.IsAbs(path) {
				path = filepath.Join(workspaceRoot, path)
			}
			if err := logging.InitAudit(path); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagWorkspace, "workspace", "w", "", "Workspace root (default: auto-detected)")
	rootCmd.PersistentFlags().StringVar(&flagVersion, "workspace-version", "", "Override the detected workspace version")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Tool config file (default: <workspace>/"+config.FileName+")")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&flagJSONLogs, "json-logs", false, "Emit logs as JSON")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Shorthand for --log-level debug")

	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(watchCmd)
}

// cmdContext returns the command's context; commands invoked outside
// Execute (tests) fall back to the background context.
func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	logging.CloseAudit()
	logging.Sync()

	switch {
	case err == nil:
	case errors.Is(err, errPatchesFailed),
		errors.Is(err, errVerifyMismatch),
		errors.Is(err, errBuildBroken),
		errors.Is(err, safety.ErrWorkspaceLocked):
		// Outcome already reported by the command.
		if errors.Is(err, safety.ErrWorkspaceLocked) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	default:
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(2)
	}
}
