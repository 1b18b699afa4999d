package commands

import (
	"fmt"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/leapstack-labs/veritab/internal/analytic"
	"github.com/spf13/cobra"
)

// NewListCommand creates the list command.
func NewListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured analytics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := getConfig(ctx)
			logger := getLogger(ctx)

			configs, errs := analytic.LoadDir(cfg.ConfigsDir, logger)
			for _, err := range errs {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
			}

			ids := make([]string, 0, len(configs))
			for id := range configs {
				ids = append(ids, id)
			}
			sort.Strings(ids)

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"ID", "Name", "Data Source", "Rules", "Group By", "Threshold %"})
			for _, id := range ids {
				ac := configs[id]
				t.AppendRow(table.Row{
					ac.AnalyticID, ac.AnalyticName, ac.DataSourceName(),
					len(ac.Validations), ac.Reporting.GroupBy, ac.Thresholds.ErrorPercentage,
				})
			}
			t.Render()
			return nil
		},
	}
}
