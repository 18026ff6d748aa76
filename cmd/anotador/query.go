package main

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/lewtec/anotador/internal/repository"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, len(headers))
		for i := range headers {
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, len(headers))
	for i := range headers {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

var queryCmd = &cobra.Command{
	Use:   "query [flags] config.yaml",
	Short: "Queries the annotation database",
	Long: `Print the media of a project with their annotation status.

Examples:
  # List the media items
  anotador query config.yaml

  # List the scenes saved by a user
  anotador query config.yaml --user alice

  # Print overall statistics
  anotador query config.yaml --stats`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		project, err := openProject(args[0])
		if err != nil {
			return err
		}
		defer project.Close()
		ctx := cmd.Context()
		out := cmd.OutOrStdout()
		scenes := repository.NewSceneRepository(project.DB)

		if stats, _ := cmd.Flags().GetBool("stats"); stats {
			summary, err := scenes.GetStats(ctx)
			if err != nil {
				return err
			}
			count, err := repository.NewMediaRepository(project.DB).Count(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Media", "Annotated", "Annotations", "Users"},
				[][]string{{
					humanize.Comma(count),
					humanize.Comma(summary.AnnotatedMedia),
					humanize.Comma(summary.TotalAnnotations),
					humanize.Comma(summary.TotalUsers),
				}},
				[]columnAlignment{alignRight, alignRight, alignRight, alignRight},
			))
			return nil
		}

		if user, _ := cmd.Flags().GetString("user"); user != "" {
			limit, _ := cmd.Flags().GetInt("limit")
			saved, err := scenes.ListByUser(ctx, user, limit, 0)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(saved))
			for _, scene := range saved {
				rows = append(rows, []string{scene.MediaKey, strconv.Itoa(len(scene.Annotations)), humanize.Time(scene.SavedAt)})
			}
			fmt.Fprintln(out, renderTable([]string{"Media", "Annotations", "Saved"}, rows, []columnAlignment{alignLeft, alignRight, alignLeft}))
			return nil
		}

		items, err := repository.NewMediaRepository(project.DB).List(ctx)
		if err != nil {
			return err
		}
		showKeys, _ := cmd.Flags().GetBool("show-keys")
		rows := make([][]string, 0, len(items))
		for _, item := range items {
			name := item.Path
			if showKeys {
				name = item.Identifier.Key()
			}
			size := fmt.Sprintf("%dx%d", item.Metadata.Width, item.Metadata.Height)
			if item.Metadata.Frames > 0 {
				size = fmt.Sprintf("%s, %d frames", size, item.Metadata.Frames)
			}
			rows = append(rows, []string{name, string(item.Identifier.Type), size, string(item.AnnotationStatus), humanize.Time(item.IngestedAt)})
		}
		fmt.Fprintln(out, renderTable([]string{"Media", "Type", "Size", "Status", "Ingested"}, rows, nil))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(queryCmd)

	queryCmd.Flags().BoolP("show-keys", "k", false, "Show media keys instead of paths")
	queryCmd.Flags().StringP("user", "u", "", "List the scenes saved by this user")
	queryCmd.Flags().IntP("limit", "n", 50, "Maximum scenes listed with --user")
	queryCmd.Flags().Bool("stats", false, "Print overall statistics")
}
