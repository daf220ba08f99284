package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"recap/internal/store"
)

func newRunsCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List the account's completed runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			account, err := ctx.requireAccount()
			if err != nil {
				return err
			}
			return ctx.withRuntime(func(rt *runtime) error {
				records, err := rt.store.RunsByAccount(cmd.Context(), account, limit)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, records)
				}
				out := cmd.OutOrStdout()
				if len(records) == 0 {
					fmt.Fprintf(out, "No runs recorded for %s\n", account)
					return nil
				}
				rows := make([][]string, 0, len(records))
				for _, record := range records {
					rows = append(rows, []string{
						record.RunToken,
						record.Kind,
						fmt.Sprintf("%d", record.ItemCount),
						formatDuration(record.DurationSeconds),
						string(record.Digest),
						record.CompletedAt.Local().Format(time.RFC822),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Run", "Kind", "Items", "Content", "Digest", "Completed"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum runs to list")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON instead of a table")
	return cmd
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	var full bool

	cmd := &cobra.Command{
		Use:   "show <run-token>",
		Short: "Show the entities produced by one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token := strings.TrimSpace(args[0])
			return ctx.withRuntime(func(rt *runtime) error {
				record, err := rt.store.GetRun(cmd.Context(), token)
				if err != nil {
					return err
				}
				entities, err := rt.store.EntitiesByRunToken(cmd.Context(), token)
				if err != nil {
					return err
				}
				if record == nil && len(entities) == 0 {
					return fmt.Errorf("run %s not found", token)
				}
				if jsonOut {
					return writeJSON(cmd, map[string]any{
						"record":   record,
						"entities": entities,
					})
				}
				printRun(cmd, record, entities, full)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON instead of text")
	cmd.Flags().BoolVar(&full, "full", false, "Print full summaries instead of a preview")
	return cmd
}

func printRun(cmd *cobra.Command, record *store.RunRecord, entities []*store.Entity, full bool) {
	out := cmd.OutOrStdout()
	if record != nil {
		fmt.Fprintf(out, "Run %s (%s): %d items, %s of content, completed %s\n\n",
			record.RunToken, record.Kind, record.ItemCount,
			formatDuration(record.DurationSeconds),
			record.CompletedAt.Local().Format(time.RFC822))
	}
	for _, entity := range entities {
		title := entity.Title
		if title == "" {
			title = entity.ContentID
		}
		header := title
		if channel := channelDisplay(entity); channel != "" {
			header = fmt.Sprintf("%s (%s)", title, channel)
		}
		fmt.Fprintln(out, header)
		switch entity.SummaryState {
		case store.SummaryCompleted:
			fmt.Fprintln(out, indent(summaryPreview(entity.Summary, full)))
		case store.SummaryFailed:
			fmt.Fprintln(out, indent("summary failed"))
		default:
			fmt.Fprintln(out, indent(fmt.Sprintf("summary %s", entity.SummaryState)))
		}
		fmt.Fprintln(out)
	}
}

func summaryPreview(summary string, full bool) string {
	summary = strings.TrimSpace(summary)
	if full {
		return summary
	}
	const previewRunes = 280
	runes := []rune(summary)
	if len(runes) <= previewRunes {
		return summary
	}
	return string(runes[:previewRunes]) + "…"
}

func indent(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = "  " + line
	}
	return strings.Join(lines, "\n")
}
