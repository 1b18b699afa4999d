// Package output renders analytic results for the terminal: pretty
// tables, JSON for CI integration, or markdown.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/leapstack-labs/veritab/internal/engine"
)

// RenderResult writes one analytic result in the requested format.
func RenderResult(w io.Writer, result *engine.Result, format string) error {
	switch format {
	case "json":
		return renderJSON(w, result)
	case "md", "markdown":
		return renderMarkdown(w, result)
	default:
		return renderTable(w, result)
	}
}

func renderJSON(w io.Writer, result *engine.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func renderTable(w io.Writer, result *engine.Result) error {
	_, _ = fmt.Fprintf(w, "Analytic %s - %s (%d rows)\n", result.AnalyticID, result.AnalyticName, result.Rows)

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Group", "GC", "PC", "DNC", "Total", "Error %", "Status"})
	for _, g := range result.Groups {
		t.AppendRow(table.Row{
			groupLabel(g.Key), g.GC, g.PC, g.DNC, g.Total,
			fmt.Sprintf("%.2f", g.DNCPercentage), statusLabel(!g.Exceeds),
		})
	}
	t.Render()

	for _, r := range result.Rules {
		if r.Failed {
			_, _ = fmt.Fprintf(w, "rule failed: %s\n", r.Error)
		}
	}
	for _, warning := range result.Warnings {
		_, _ = fmt.Fprintf(w, "warning: %s\n", warning)
	}

	_, _ = fmt.Fprintf(w, "Overall: %s\n", statusLabel(result.Pass))
	return nil
}

func renderMarkdown(w io.Writer, result *engine.Result) error {
	_, _ = fmt.Fprintf(w, "## Analytic %s - %s\n\n", result.AnalyticID, result.AnalyticName)
	_, _ = fmt.Fprintln(w, "| Group | GC | PC | DNC | Total | Error % | Status |")
	_, _ = fmt.Fprintln(w, "|---|---|---|---|---|---|---|")
	for _, g := range result.Groups {
		_, _ = fmt.Fprintf(w, "| %s | %d | %d | %d | %d | %.2f | %s |\n",
			groupLabel(g.Key), g.GC, g.PC, g.DNC, g.Total, g.DNCPercentage, statusLabel(!g.Exceeds))
	}
	_, _ = fmt.Fprintf(w, "\n**Overall: %s**\n", statusLabel(result.Pass))
	if len(result.Warnings) > 0 {
		_, _ = fmt.Fprintf(w, "\nWarnings:\n")
		for _, warning := range result.Warnings {
			_, _ = fmt.Fprintf(w, "- %s\n", warning)
		}
	}
	return nil
}

func groupLabel(key string) string {
	if strings.TrimSpace(key) == "" {
		return "(blank)"
	}
	return key
}

func statusLabel(pass bool) string {
	if pass {
		return "PASS"
	}
	return "FAIL"
}
