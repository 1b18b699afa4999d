package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/leapstack-labs/veritab/internal/analytic"
	"github.com/spf13/cobra"
)

// NewCheckCommand creates the check command.
func NewCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate all analytic configurations",
		Long: `Load every analytic configuration and report structural problems:
missing required fields, unknown rules, malformed rule parameters, and
columns referenced by rules but not declared on the data source.`,
		RunE: runCheck,
	}
}

func runCheck(cmd *cobra.Command, _ []string) error {
	cfg := getConfig(cmd.Context())

	entries, err := os.ReadDir(cfg.ConfigsDir)
	if err != nil {
		return fmt.Errorf("failed to read config directory: %w", err)
	}

	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"File", "Analytic", "Status"})

	invalid := 0
	checked := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !(strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")) {
			continue
		}
		checked++
		path := filepath.Join(cfg.ConfigsDir, name)
		ac, err := analytic.LoadFile(path)
		if err != nil {
			invalid++
			t.AppendRow(table.Row{name, "-", err.Error()})
			continue
		}
		t.AppendRow(table.Row{name, fmt.Sprintf("%s - %s", ac.AnalyticID, ac.AnalyticName), "OK"})
	}
	t.Render()

	if checked == 0 {
		return fmt.Errorf("no configuration files in %s", cfg.ConfigsDir)
	}
	if invalid > 0 {
		return fmt.Errorf("%d of %d configuration(s) failed validation", invalid, checked)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d configuration(s) OK\n", checked)
	return nil
}
