package commands

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/veritab/internal/state"
)

// openStore opens and migrates the run-history store. History is a
// convenience, not a requirement: on failure the run proceeds without
// it and the cause is logged.
func openStore(path string, logger *slog.Logger) state.Store {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Warn("failed to create state directory", "path", dir, "error", err)
			return nil
		}
	}

	store := state.NewSQLiteStore(logger)
	if err := store.Open(path); err != nil {
		logger.Warn("failed to open run history store", "path", path, "error", err)
		return nil
	}
	if err := store.Migrate(); err != nil {
		logger.Warn("failed to migrate run history store", "path", path, "error", err)
		_ = store.Close()
		return nil
	}
	return store
}
