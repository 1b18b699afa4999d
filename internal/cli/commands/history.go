package commands

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// HistoryOptions holds options for the history command.
type HistoryOptions struct {
	Analytic string
	Limit    int
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand() *cobra.Command {
	opts := &HistoryOptions{}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded analytic runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := getConfig(ctx)
			logger := getLogger(ctx)

			store := openStore(cfg.StatePath, logger)
			if store == nil {
				return fmt.Errorf("run history store unavailable at %s", cfg.StatePath)
			}
			defer func() { _ = store.Close() }()

			runs, err := store.ListRuns(opts.Analytic, opts.Limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no recorded runs")
				return nil
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Started", "Analytic", "Rows", "Status", "Result", "Duration"})
			for _, run := range runs {
				result := "-"
				duration := "-"
				if run.Status == "completed" {
					if run.Pass {
						result = "PASS"
					} else {
						result = "FAIL"
					}
				}
				if run.CompletedAt != nil {
					duration = run.CompletedAt.Sub(run.StartedAt).Round(time.Millisecond).String()
				}
				t.AppendRow(table.Row{
					run.StartedAt.Local().Format("2006-01-02 15:04:05"),
					fmt.Sprintf("%s - %s", run.AnalyticID, run.AnalyticName),
					run.Rows, run.Status, result, duration,
				})
			}
			t.Render()
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.Analytic, "analytic", "a", "", "Only show runs of this analytic id")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "Maximum runs to show")

	return cmd
}
