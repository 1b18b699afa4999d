// Package state provides the run-history store: every analytic run is
// recorded in a project-local SQLite database so past outcomes can be
// listed and compared.
package state

import (
	"time"

	"github.com/leapstack-labs/veritab/internal/engine"
)

// RunStatus is the lifecycle state of a recorded run.
type RunStatus string

// Run lifecycle states.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run is one recorded analytic run.
type Run struct {
	ID           string
	AnalyticID   string
	AnalyticName string
	Status       RunStatus
	Pass         bool
	Rows         int
	Error        string
	StartedAt    time.Time
	CompletedAt  *time.Time
}

// GroupRecord is one group's stats within a recorded run.
type GroupRecord struct {
	RunID         string
	GroupKey      string
	GC            int
	PC            int
	DNC           int
	Total         int
	DNCPercentage float64
	Exceeds       bool
}

// Store records and retrieves analytic runs.
type Store interface {
	Open(path string) error
	Migrate() error
	Close() error

	CreateRun(analyticID, analyticName string) (*Run, error)
	CompleteRun(id string, status RunStatus, result *engine.Result, errMsg string) error
	GetRun(id string) (*Run, error)
	ListRuns(analyticID string, limit int) ([]*Run, error)
	GetGroups(runID string) ([]*GroupRecord, error)
}
