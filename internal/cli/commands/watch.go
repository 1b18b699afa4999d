package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

// WatchOptions holds options for the watch command.
type WatchOptions struct {
	Select   string
	Debounce time.Duration
}

// NewWatchCommand creates the watch command.
func NewWatchCommand() *cobra.Command {
	opts := &WatchOptions{}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-run analytics when configurations or data change",
		Long: `Watch the configurations and data directories and re-run the
selected analytics whenever a file changes. Useful while authoring
validation rules.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Select, "select", "s", "", "Comma-separated list of analytic ids to run")
	cmd.Flags().DurationVar(&opts.Debounce, "debounce", 500*time.Millisecond, "Quiet period before re-running after a change")

	return cmd
}

func runWatch(cmd *cobra.Command, opts *WatchOptions) error {
	ctx := cmd.Context()
	cfg := getConfig(ctx)
	logger := getLogger(ctx)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	for _, dir := range []string{cfg.ConfigsDir, cfg.DataDir} {
		if err := watcher.Add(dir); err != nil {
			logger.Warn("failed to watch directory", "dir", dir, "error", err)
		}
	}

	runOnce := func() {
		runOpts := &RunOptions{Select: opts.Select}
		if err := runRun(cmd, runOpts); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Watching %s and %s (ctrl-c to stop)\n", cfg.ConfigsDir, cfg.DataDir)
	runOnce()

	var timer *time.Timer
	pending := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !relevantChange(event) {
				continue
			}
			logger.Debug("change detected", "file", event.Name, "op", event.Op.String())
			// Debounce: editors fire bursts of events per save.
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(opts.Debounce, func() {
				select {
				case pending <- struct{}{}:
				default:
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch error", "error", err)

		case <-pending:
			fmt.Fprintln(cmd.OutOrStdout())
			runOnce()
		}
	}
}

// relevantChange filters watcher noise down to content changes of
// YAML and CSV files.
func relevantChange(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return false
	}
	name := strings.ToLower(event.Name)
	return strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml") || strings.HasSuffix(name, ".csv")
}
