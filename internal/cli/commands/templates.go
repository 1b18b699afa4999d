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

// NewTemplatesCommand creates the templates command group.
func NewTemplatesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "List and instantiate configuration templates",
	}

	cmd.AddCommand(newTemplatesListCommand())
	cmd.AddCommand(newTemplatesApplyCommand())
	return cmd
}

func newTemplatesListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available templates",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := getConfig(cmd.Context())

			entries, err := os.ReadDir(cfg.TemplatesDir)
			if err != nil {
				return fmt.Errorf("failed to read templates directory: %w", err)
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"ID", "Name", "Parameters"})

			for _, entry := range entries {
				name := entry.Name()
				if entry.IsDir() || !(strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")) {
					continue
				}
				tpl, err := analytic.LoadTemplate(filepath.Join(cfg.TemplatesDir, name))
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s: %v\n", name, err)
					continue
				}
				params := make([]string, len(tpl.Parameters))
				for i, p := range tpl.Parameters {
					params[i] = p.Name
				}
				t.AppendRow(table.Row{tpl.ID, tpl.Name, strings.Join(params, ", ")})
			}
			t.Render()
			return nil
		},
	}
}

func newTemplatesApplyCommand() *cobra.Command {
	var paramFlags []string
	var outPath string

	cmd := &cobra.Command{
		Use:   "apply <template-id>",
		Short: "Instantiate a template into an analytic configuration",
		Example: `  veritab templates apply approval_check \
    --param analytic_id=78 --param submitter_col=Submitter \
    --out analytics/qa_78.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := getConfig(cmd.Context())

			tpl, err := findTemplate(cfg.TemplatesDir, args[0])
			if err != nil {
				return err
			}

			params := make(map[string]string, len(paramFlags))
			for _, kv := range paramFlags {
				key, value, found := strings.Cut(kv, "=")
				if !found {
					return fmt.Errorf("invalid --param %q, expected key=value", kv)
				}
				params[key] = value
			}

			ac, rendered, err := tpl.Instantiate(params)
			if err != nil {
				return err
			}

			if outPath == "" {
				_, err = cmd.OutOrStdout().Write(rendered)
				return err
			}
			if err := os.WriteFile(outPath, rendered, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", outPath, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote analytic %s to %s\n", ac.AnalyticID, outPath)
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&paramFlags, "param", nil, "Template parameter as key=value (repeatable)")
	cmd.Flags().StringVar(&outPath, "out", "", "Write the instantiated configuration to this file (default: stdout)")

	return cmd
}

// findTemplate locates a template by id among the template files.
func findTemplate(dir, id string) (*analytic.Template, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read templates directory: %w", err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !(strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")) {
			continue
		}
		tpl, err := analytic.LoadTemplate(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		if tpl.ID == id {
			return tpl, nil
		}
	}
	return nil, fmt.Errorf("template %q not found in %s", id, dir)
}
