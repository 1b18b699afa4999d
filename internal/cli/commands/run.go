package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/leapstack-labs/veritab/internal/analytic"
	"github.com/leapstack-labs/veritab/internal/cli/output"
	"github.com/leapstack-labs/veritab/internal/engine"
	"github.com/leapstack-labs/veritab/internal/reference"
	"github.com/leapstack-labs/veritab/internal/state"
	"github.com/leapstack-labs/veritab/pkg/dataset"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// RunOptions holds options for the run command.
type RunOptions struct {
	Select    string
	Data      string
	NoHistory bool
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run all analytics or specific analytics",
		Long: `Execute configured analytics against their datasets.

By default, runs every analytic found in the configurations directory.
Use --select to run specific analytics by id. Independent analytics run
in parallel; each owns its dataset and shares no state with the others.`,
		Example: `  # Run all analytics
  veritab run

  # Run specific analytics
  veritab run --select 77,78

  # Run one analytic against an explicit dataset file
  veritab run --select 77 --data audit_q2.csv

  # Emit JSON for CI integration
  veritab run -o json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRun(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Select, "select", "s", "", "Comma-separated list of analytic ids to run")
	cmd.Flags().StringVar(&opts.Data, "data", "", "Dataset CSV path (overrides the configured data source)")
	cmd.Flags().BoolVar(&opts.NoHistory, "no-history", false, "Do not record the run in the history store")

	return cmd
}

func runRun(cmd *cobra.Command, opts *RunOptions) error {
	ctx := cmd.Context()
	cfg := getConfig(ctx)
	logger := getLogger(ctx)

	configs, errs := analytic.LoadDir(cfg.ConfigsDir, logger)
	for _, err := range errs {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
	}
	if len(configs) == 0 {
		return fmt.Errorf("no valid analytic configurations in %s", cfg.ConfigsDir)
	}

	selected, err := selectConfigs(configs, opts.Select)
	if err != nil {
		return err
	}
	if opts.Data != "" && len(selected) > 1 {
		return fmt.Errorf("--data applies to a single analytic; %d selected", len(selected))
	}

	var store state.Store
	if !opts.NoHistory {
		store = openStore(cfg.StatePath, logger)
		if store != nil {
			defer func() { _ = store.Close() }()
		}
	}

	results := make([]*engine.Result, len(selected))
	g, gctx := errgroup.WithContext(ctx)
	for i, ac := range selected {
		g.Go(func() error {
			res, err := runOne(gctx, cfg.DataDir, ac, opts.Data, logger, store)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var failed []string
	for _, res := range results {
		if err := output.RenderResult(cmd.OutOrStdout(), res, cfg.Output); err != nil {
			return err
		}
		if !res.Pass {
			failed = append(failed, res.AnalyticID)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("analytic(s) %s exceeded the error threshold", strings.Join(failed, ", "))
	}
	return nil
}

// runOne loads the dataset and reference tables for one analytic and
// executes it, recording the outcome in the history store.
func runOne(ctx context.Context, dataDir string, ac *analytic.Config, dataOverride string, logger *slog.Logger, store state.Store) (*engine.Result, error) {
	ds, err := loadDataset(dataDir, ac, dataOverride)
	if err != nil {
		return nil, fmt.Errorf("analytic %s: %w", ac.AnalyticID, err)
	}

	if err := checkRequiredColumns(ac, ds); err != nil {
		return nil, fmt.Errorf("analytic %s: %w", ac.AnalyticID, err)
	}

	refs, err := reference.Load(ac, dataDir)
	if err != nil {
		return nil, fmt.Errorf("analytic %s: %w", ac.AnalyticID, err)
	}

	var run *state.Run
	if store != nil {
		if run, err = store.CreateRun(ac.AnalyticID, ac.AnalyticName); err != nil {
			logger.Warn("failed to record run start", "error", err)
			run = nil
		}
	}

	eng := engine.New(engine.Config{Logger: logger, Reference: refs})
	result, err := eng.Run(ctx, ac, ds)

	if store != nil && run != nil {
		status := state.RunStatusCompleted
		errMsg := ""
		if err != nil {
			status = state.RunStatusFailed
			errMsg = err.Error()
		}
		if cerr := store.CompleteRun(run.ID, status, result, errMsg); cerr != nil {
			logger.Warn("failed to record run completion", "error", cerr)
		}
	}

	return result, err
}

// loadDataset resolves and reads the CSV dataset for an analytic.
func loadDataset(dataDir string, ac *analytic.Config, override string) (*dataset.Dataset, error) {
	path := override
	if path == "" {
		name := ac.DataSourceName()
		if name == "" {
			return nil, fmt.Errorf("no data source name configured and no --data given")
		}
		path = filepath.Join(dataDir, name+".csv")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("dataset %s: %w", path, err)
	}
	return dataset.ReadCSV(path)
}

// checkRequiredColumns verifies the dataset carries every declared
// column before any rule runs.
func checkRequiredColumns(ac *analytic.Config, ds *dataset.Dataset) error {
	var missing []string
	for _, name := range ac.RequiredColumns() {
		if !ds.HasColumn(name) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("dataset is missing required column(s): %s", strings.Join(missing, ", "))
	}
	return nil
}

// selectConfigs filters the loaded configs by the --select list, or
// returns all of them in id order.
func selectConfigs(configs map[string]*analytic.Config, sel string) ([]*analytic.Config, error) {
	if sel == "" {
		ids := make([]string, 0, len(configs))
		for id := range configs {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		out := make([]*analytic.Config, len(ids))
		for i, id := range ids {
			out[i] = configs[id]
		}
		return out, nil
	}

	var out []*analytic.Config
	for _, id := range strings.Split(sel, ",") {
		id = strings.TrimSpace(id)
		cfg, ok := configs[id]
		if !ok {
			return nil, fmt.Errorf("unknown analytic id %q", id)
		}
		out = append(out, cfg)
	}
	return out, nil
}
