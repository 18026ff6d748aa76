package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init [folder]",
	Short: "Initialize a new annotation project",
	Long: `Initialize a new annotation project by creating:
- A sample configuration file (config.yaml)
- A media directory to drop images and videos into
- An empty SQLite database (annotations.db)

Example:
  anotador init ./my-project`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "."
		if len(args) == 1 {
			dir = args[0]
		}
		if err := initProject(dir); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Initialization complete!\n\nNext steps:\n")
		fmt.Fprintf(cmd.OutOrStdout(), "  1. Review and customize %s/config.yaml\n", dir)
		fmt.Fprintf(cmd.OutOrStdout(), "  2. Copy media into %s/media\n", dir)
		fmt.Fprintf(cmd.OutOrStdout(), "  3. Start the annotation server: anotador %s\n", dir)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
