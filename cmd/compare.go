/*
Copyright © 2026 PGLENS CONTRIBUTORS
*/
package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/pglens/pglens/internal/comparator"
	"github.com/pglens/pglens/internal/config"
	"github.com/pglens/pglens/internal/output"
	"github.com/pglens/pglens/internal/plan"
	"github.com/pglens/pglens/internal/profile"

	"github.com/spf13/cobra"
)

var compareCmd = &cobra.Command{
	Use:   "compare [before] [after]",
	Short: "Compare two query plans",
	Long: `Compare two PostgreSQL query plans, typically captured before and after
a change, and report the per-node differences and an overall verdict.

Inputs can be SQL files or JSON files (EXPLAIN FORMAT JSON output).
Files don't need to be the same type. Either file (but not both) can be
"-" to read from stdin.

Plans whose queries appear unrelated are rejected; pass --force to
compare them anyway.

For SQL input, a database connection is required to run
EXPLAIN (ANALYZE, VERBOSE, BUFFERS, FORMAT JSON).`,
	Example: `  # Compare two captured plans
  pglens compare before.json after.json

  # Compare two SQL files through a saved profile
  pglens compare old.sql new.sql --profile prod

  # Mix input types
  pglens compare prod-plan.json new-query.sql --profile dev

  # Compare dissimilar queries anyway
  pglens compare before.json after.json --force`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, _ := cmd.Flags().GetString("db")
		profileName, _ := cmd.Flags().GetString("profile")
		format, _ := cmd.Flags().GetString("format")
		configPath, _ := cmd.Flags().GetString("config")
		force, _ := cmd.Flags().GetBool("force")

		if format != "text" && format != "json" {
			return fmt.Errorf("invalid output format %q: must be \"text\" or \"json\"", format)
		}

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		threshold := cfg.Compare.MinSimilarity
		if cmd.Flags().Changed("threshold") {
			threshold, _ = cmd.Flags().GetFloat64("threshold")
		}

		conn, err := profile.ResolveConnection(db, profileName)
		if err != nil {
			return err
		}
		timeout := time.Duration(conn.ConnectTimeout) * time.Second

		var beforeFile, afterFile string
		if len(args) > 0 {
			beforeFile = args[0]
		}
		if len(args) > 1 {
			afterFile = args[1]
		}
		if beforeFile == "-" && afterFile == "-" {
			return fmt.Errorf("only one input can read from stdin")
		}

		before, err := plan.Resolve(beforeFile, conn.ConnStr, timeout, "before ")
		if err != nil {
			return err
		}
		after, err := plan.Resolve(afterFile, conn.ConnStr, timeout, "after ")
		if err != nil {
			return err
		}

		res, err := comparator.Compare(before, after, comparator.Options{
			MinSimilarity:  threshold,
			NoiseThreshold: cfg.Compare.NoiseThreshold,
			Force:          force,
		})
		if err != nil {
			return err
		}

		switch format {
		case "json":
			return output.RenderJSON(os.Stdout, res)
		default:
			return output.RenderComparisonText(os.Stdout, res)
		}
	},
}

func init() {
	rootCmd.AddCommand(compareCmd)
	compareCmd.Flags().StringP("db", "d", "", "PostgreSQL connection string")
	compareCmd.Flags().StringP("profile", "p", "", "Use named profile from config")
	compareCmd.Flags().StringP("format", "f", "text", "Output format: text, json")
	compareCmd.Flags().StringP("config", "c", "", "Threshold config file")
	compareCmd.Flags().Bool("force", false, "Compare plans even when the queries appear unrelated")
	compareCmd.Flags().Float64("threshold", 0, "Minimum query similarity (overrides config)")
	compareCmd.MarkFlagsMutuallyExclusive("db", "profile")
}
