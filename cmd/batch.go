/*
Copyright © 2026 PGLENS CONTRIBUTORS
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/pglens/pglens/internal/analyzer"
	"github.com/pglens/pglens/internal/config"
	"github.com/pglens/pglens/internal/output"
	"github.com/pglens/pglens/internal/plan"
	"github.com/pglens/pglens/internal/rules"

	"github.com/spf13/cobra"
)

var batchCmd = &cobra.Command{
	Use:   "batch <files...>",
	Short: "Analyze many plans as one session",
	Long: `Analyze a set of captured plans as one application session. All plans
share a session window, so repeated query shapes across files are
detected as N+1 patterns.

Inputs must be JSON files (EXPLAIN FORMAT JSON output); batch does not
run EXPLAIN itself.`,
	Example: `  # Analyze every plan captured from one request
  pglens batch plans/*.json

  # JSON output for scripting
  pglens batch plans/*.json --format json`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		configPath, _ := cmd.Flags().GetString("config")

		if format != "text" && format != "json" {
			return fmt.Errorf("invalid output format %q: must be \"text\" or \"json\"", format)
		}

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		// Two passes over one shared session: observe every plan first so
		// shape counts reflect the whole batch, then detect. Detecting
		// while observing would under-count shapes for early files.
		sess := rules.NewSession()
		trees := make([]*plan.Tree, 0, len(args))
		for _, file := range args {
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			tree, err := plan.Build(data)
			if err != nil {
				return fmt.Errorf("%s: %w", file, err)
			}
			if tree.QueryText != "" {
				sess.Observe(tree.QueryText)
			}
			trees = append(trees, tree)
		}

		type fileResult struct {
			File   string           `json:"file"`
			Result *analyzer.Result `json:"result"`
		}
		results := make([]fileResult, 0, len(trees))
		det := rules.NewDetector(cfg.Rules)
		for i, tree := range trees {
			res, err := analyzer.AnalyzeWithDetector(tree, sess, det, cfg)
			if err != nil {
				return fmt.Errorf("%s: %w", args[i], err)
			}
			results = append(results, fileResult{File: args[i], Result: res})
		}

		if format == "json" {
			return output.RenderJSON(os.Stdout, results)
		}
		for i, fr := range results {
			if i > 0 {
				fmt.Println()
			}
			fmt.Printf("== %s ==\n\n", fr.File)
			if err := output.RenderAnalysisText(os.Stdout, fr.Result); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(batchCmd)
	batchCmd.Flags().StringP("format", "f", "text", "Output format: text, json")
	batchCmd.Flags().StringP("config", "c", "", "Threshold config file")
}
