package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest config.yaml",
	Short: "Record the media of a project in its database",
	Long: `Walk the media directory of a project and record every image and video.

Files already recorded with the same content are left alone. Videos need a
<video>.yaml sidecar with their frame count.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		project, err := openProject(args[0])
		if err != nil {
			return err
		}
		defer project.Close()

		jobs, _ := cmd.Flags().GetInt("jobs")
		report, err := project.Ingest(cmd.Context(), jobs)
		if report != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "images: %d\nvideos: %d\nunchanged: %d\nskipped: %d\nfailed: %d\n",
				report.Images, report.Videos, report.Unchanged, report.Skipped, report.Failed)
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().IntP("jobs", "j", 4, "Parallel workers")
}
