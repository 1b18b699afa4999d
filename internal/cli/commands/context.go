// Package commands implements the veritab subcommands.
package commands

import (
	"context"
	"log/slog"

	"github.com/leapstack-labs/veritab/internal/cli/config"
)

type configKey struct{}
type loggerKey struct{}

// WithConfig stores the tool configuration in the context.
func WithConfig(ctx context.Context, cfg *config.Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

// WithLogger stores the logger in the context.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// getConfig retrieves the tool configuration from the command context.
func getConfig(ctx context.Context) *config.Config {
	if cfg, ok := ctx.Value(configKey{}).(*config.Config); ok {
		return cfg
	}
	return &config.Config{
		ConfigsDir:   config.DefaultConfigsDir,
		DataDir:      config.DefaultDataDir,
		TemplatesDir: config.DefaultTemplatesDir,
		StatePath:    config.DefaultStateFile,
		Output:       config.DefaultOutput,
	}
}

// getLogger retrieves the logger from the command context.
func getLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.New(slog.DiscardHandler)
}
