package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lewtec/anotador/internal/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the schema of the annotation database",
}

func migrateSubcommand(use, short string, run func(cmd *cobra.Command, project *Project) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " config.yaml",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			project, err := openProject(args[0])
			if err != nil {
				return err
			}
			defer project.Close()
			return run(cmd, project)
		},
	}
}

func printVersion(cmd *cobra.Command, project *Project) error {
	version, dirty, err := database.Version(project.DB)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "version: %d\n", version)
	if dirty {
		fmt.Fprintf(cmd.OutOrStdout(), "dirty: the last migration failed halfway\n")
	}
	return nil
}

func init() {
	rootCmd.AddCommand(migrateCmd)

	// opening a project already migrates it up
	migrateCmd.AddCommand(migrateSubcommand("up", "Apply every pending migration", printVersion))
	migrateCmd.AddCommand(migrateSubcommand("version", "Print the schema version", printVersion))
	migrateCmd.AddCommand(migrateSubcommand("rollback", "Revert the last migration", func(cmd *cobra.Command, project *Project) error {
		if err := database.Rollback(project.DB); err != nil {
			return err
		}
		return printVersion(cmd, project)
	}))
}
