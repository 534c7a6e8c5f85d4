/*
Copyright © 2026 PGLENS CONTRIBUTORS
*/
package cmd

import (
	"fmt"

	"github.com/pglens/pglens/internal/config"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a threshold config template",
	Long: `Write a commented threshold config template to pglens.yaml (or the
given path). Every detection threshold can be tuned there and passed to
analyze, compare and batch via --config.

An existing file is never overwritten unless --force is given.`,
	Example: `  # Write ./pglens.yaml
  pglens init

  # Write somewhere else
  pglens init conf/pglens.yaml

  # Overwrite an existing file
  pglens init --force`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")

		path := "pglens.yaml"
		if len(args) > 0 {
			path = args[0]
		}

		if err := config.WriteTemplate(path, force); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolP("force", "f", false, "Overwrite an existing config file")
}
