// Package cmd provides the CLI surface around the scan lifecycle
// controller: a thin layer spec.md §1 explicitly treats as an external
// collaborator, not part of the core. Grounded on the teacher's
// cmd/root.go cobra-root shape, generalized from the teacher's
// one-shot "crawl a URL from flags" command to a store-backed,
// project-oriented CLI (scan/serve/migrate) that matches SPEC_FULL.md's
// data model instead of the teacher's flag bag.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rankriot/scanner/internal/config"
	"github.com/rankriot/scanner/internal/logging"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:     "scanner",
	Short:   "Scheduled SEO audits: crawl a project's site and persist scan results",
	Version: "1.0.0",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return fmt.Errorf("startup: %w", err)
		}
		cfg = loaded
		if err := logging.Init(cfg.Debug); err != nil {
			return fmt.Errorf("startup: logging init: %w", err)
		}
		return nil
	},
}

// Execute runs the root command, exiting with status 1 on any error —
// including the startup-config-missing case §7 names explicitly.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
