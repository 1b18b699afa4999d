package commands

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/leapstack-labs/veritab/pkg/dataset"
	"github.com/leapstack-labs/veritab/pkg/eval"
	"github.com/leapstack-labs/veritab/pkg/formula"
	"github.com/spf13/cobra"
)

// FormulaOptions holds options for the formula subcommands.
type FormulaOptions struct {
	Data  string
	Limit int
}

// NewFormulaCommand creates the formula command group.
func NewFormulaCommand() *cobra.Command {
	opts := &FormulaOptions{}

	cmd := &cobra.Command{
		Use:   "formula",
		Short: "Test formulas against a dataset",
	}

	testCmd := &cobra.Command{
		Use:   "test <formula>",
		Short: "Evaluate a formula against a CSV dataset",
		Example: `  veritab formula test --data audit.csv '=Submit_Date <= TL_Date'
  veritab formula test --data audit.csv '=IF(Risk="High", Days_Open<=30, Days_Open<=90)'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := dataset.ReadCSV(opts.Data)
			if err != nil {
				return err
			}
			return testFormula(cmd.OutOrStdout(), args[0], ds, opts.Limit)
		},
	}
	testCmd.Flags().StringVar(&opts.Data, "data", "", "Dataset CSV path")
	testCmd.Flags().IntVar(&opts.Limit, "limit", 20, "Maximum rows to print")
	_ = testCmd.MarkFlagRequired("data")

	replCmd := &cobra.Command{
		Use:   "repl",
		Short: "Interactive formula tester",
		Long: `Start an interactive session for trying formulas against a dataset.

Type a formula to evaluate it. Commands: .columns lists the dataset
columns, .fields <formula> shows referenced columns, .quit exits.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ds, err := dataset.ReadCSV(opts.Data)
			if err != nil {
				return err
			}
			return runFormulaREPL(cmd, ds, opts)
		},
	}
	replCmd.Flags().StringVar(&opts.Data, "data", "", "Dataset CSV path")
	replCmd.Flags().IntVar(&opts.Limit, "limit", 10, "Maximum rows to print per formula")
	_ = replCmd.MarkFlagRequired("data")

	cmd.AddCommand(testCmd)
	cmd.AddCommand(replCmd)
	return cmd
}

// testFormula parses, evaluates, and prints a formula's per-row
// results alongside the columns it references.
func testFormula(w io.Writer, input string, ds *dataset.Dataset, limit int) error {
	expr, err := formula.Parse(input)
	if err != nil {
		return err
	}
	fields := formula.Fields(expr)

	ev := eval.New(eval.Options{})
	res, err := ev.EvalBool(expr, ds)
	if err != nil {
		return err
	}

	trues, falses, missings := 0, 0, 0
	for _, v := range res.Values {
		switch {
		case v.IsMissing():
			missings++
		case v.B:
			trues++
		default:
			falses++
		}
	}
	fmt.Fprintf(w, "%d rows: %d true, %d false, %d missing\n", ds.Len(), trues, falses, missings)
	for _, warning := range res.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)

	header := table.Row{"#"}
	for _, f := range fields {
		header = append(header, f)
	}
	header = append(header, "Result")
	t.AppendHeader(header)

	for i := 0; i < ds.Len() && i < limit; i++ {
		row := table.Row{i + 1}
		for _, f := range fields {
			col, ok := ds.Column(f)
			if !ok {
				row = append(row, "")
				continue
			}
			row = append(row, col.Values[i].AsString())
		}
		row = append(row, resultLabel(res.Values[i]))
		t.AppendRow(row)
	}
	t.Render()

	if ds.Len() > limit {
		fmt.Fprintf(w, "(%d more rows)\n", ds.Len()-limit)
	}
	return nil
}

func resultLabel(v dataset.Value) string {
	if v.IsMissing() {
		return "MISSING"
	}
	return v.AsString()
}

// runFormulaREPL drives the interactive formula tester.
func runFormulaREPL(cmd *cobra.Command, ds *dataset.Dataset, opts *FormulaOptions) error {
	cfg := getConfig(cmd.Context())
	historyFile := filepath.Join(filepath.Dir(cfg.StatePath), "formula_history")

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "veritab> ",
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       ".quit",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize REPL: %w", err)
	}
	defer func() { _ = rl.Close() }()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "VeriTab formula tester (%s, %d rows)\n", opts.Data, ds.Len())
	fmt.Fprintln(out, "Type a formula to evaluate it, .help for commands, .quit to exit")
	fmt.Fprintln(out)

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, ".") {
			if quit := handleReplCommand(out, ds, line); quit {
				break
			}
			continue
		}

		if err := testFormula(out, line, ds, opts.Limit); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		}
		fmt.Fprintln(out)
	}

	return nil
}

// handleReplCommand executes a dot-command; returns true on quit.
func handleReplCommand(w io.Writer, ds *dataset.Dataset, line string) bool {
	switch {
	case line == ".quit" || line == ".exit":
		return true
	case line == ".columns":
		for _, name := range ds.Columns() {
			col, _ := ds.Column(name)
			fmt.Fprintf(w, "%s (%s)\n", name, col.Kind())
		}
	case strings.HasPrefix(line, ".fields "):
		input := strings.TrimSpace(strings.TrimPrefix(line, ".fields "))
		for _, f := range formula.ExtractFields(input) {
			fmt.Fprintln(w, f)
		}
	case line == ".help":
		fmt.Fprintln(w, ".columns          list dataset columns and types")
		fmt.Fprintln(w, ".fields <formula> show columns a formula references")
		fmt.Fprintln(w, ".quit             exit")
	default:
		fmt.Fprintf(w, "unknown command %s (try .help)\n", line)
	}
	return false
}
