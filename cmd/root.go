/*
Copyright © 2026 PGLENS CONTRIBUTORS
*/
package cmd

import (
	"os"
	"runtime/debug"

	"github.com/spf13/cobra"
)

var Version = "dev"

func init() {
	if Version == "dev" {
		if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "(devel)" {
			Version = info.Main.Version
		}
	}
	rootCmd.Version = Version
}

var rootCmd = &cobra.Command{
	Use:          "pglens",
	SilenceUsage: true,
	Short:        "Analyze and compare PostgreSQL query plans",
	Long: `pglens inspects PostgreSQL EXPLAIN plans, detects common anti-patterns
and produces ranked, actionable recommendations.

Supports SQL and JSON (EXPLAIN FORMAT JSON) input.`,
	Example: `  # Analyze a single query
  pglens analyze query.sql

  # Compare a before and after plan
  pglens compare before.json after.json

  # Analyze a batch of plans from one application session
  pglens batch plans/*.json

  # Write a threshold config template
  pglens init`,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
