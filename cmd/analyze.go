/*
Copyright © 2026 PGLENS CONTRIBUTORS
*/
package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/pglens/pglens/internal/analyzer"
	"github.com/pglens/pglens/internal/config"
	"github.com/pglens/pglens/internal/llmctx"
	"github.com/pglens/pglens/internal/output"
	"github.com/pglens/pglens/internal/plan"
	"github.com/pglens/pglens/internal/profile"
	"github.com/pglens/pglens/internal/rules"

	"github.com/spf13/cobra"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [file]",
	Short: "Analyze a single query plan",
	Long: `Analyze a single PostgreSQL query plan: detect anti-patterns and
produce ranked recommendations.

Input can be a SQL file or a JSON file (EXPLAIN FORMAT JSON output).
Use "-" to read from stdin. If no file is provided, enters interactive mode.

For SQL input, a database connection is required to run
EXPLAIN (ANALYZE, VERBOSE, BUFFERS, FORMAT JSON).`,
	Example: `  # Analyze from file
  pglens analyze plan.json

  # Run EXPLAIN through a saved profile
  pglens analyze query.sql --profile prod

  # Read from stdin
  cat plan.json | pglens analyze -

  # Emit the digest for an LLM collaborator
  pglens analyze plan.json --llm-context`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, _ := cmd.Flags().GetString("db")
		profileName, _ := cmd.Flags().GetString("profile")
		format, _ := cmd.Flags().GetString("format")
		configPath, _ := cmd.Flags().GetString("config")
		llmContext, _ := cmd.Flags().GetBool("llm-context")

		if format != "text" && format != "json" {
			return fmt.Errorf("invalid output format %q: must be \"text\" or \"json\"", format)
		}

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		conn, err := profile.ResolveConnection(db, profileName)
		if err != nil {
			return err
		}

		var file string
		if len(args) > 0 {
			file = args[0]
		}

		tree, err := plan.Resolve(file, conn.ConnStr, time.Duration(conn.ConnectTimeout)*time.Second, "")
		if err != nil {
			return err
		}

		sess := rules.NewSession()
		res, err := analyzer.AnalyzeTree(tree, sess, cfg)
		if err != nil {
			return err
		}

		if llmContext {
			return output.RenderJSON(os.Stdout, llmctx.Build(res, cfg.LLMTopN))
		}

		switch format {
		case "json":
			return output.RenderJSON(os.Stdout, res)
		default:
			return output.RenderAnalysisText(os.Stdout, res)
		}
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().StringP("db", "d", "", "PostgreSQL connection string")
	analyzeCmd.Flags().StringP("profile", "p", "", "Use named profile from config")
	analyzeCmd.Flags().StringP("format", "f", "text", "Output format: text, json")
	analyzeCmd.Flags().StringP("config", "c", "", "Threshold config file")
	analyzeCmd.Flags().Bool("llm-context", false, "Emit the JSON digest for an LLM collaborator")
	analyzeCmd.MarkFlagsMutuallyExclusive("db", "profile")
}
