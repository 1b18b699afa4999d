package state

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/leapstack-labs/veritab/internal/engine"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite run store.
func NewSQLiteStore(logger *slog.Logger) *SQLiteStore {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SQLiteStore{logger: logger}
}

// Open opens a connection to the SQLite database. Use ":memory:" for
// an in-memory database.
func (s *SQLiteStore) Open(path string) error {
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// An in-memory database exists per connection; cap the pool so
	// every statement sees the same one.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	s.db = db
	s.path = path
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// generateID creates a new UUID.
func generateID() string {
	return uuid.New().String()
}

// CreateRun records the start of an analytic run.
func (s *SQLiteStore) CreateRun(analyticID, analyticName string) (*Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	run := &Run{
		ID:           generateID(),
		AnalyticID:   analyticID,
		AnalyticName: analyticName,
		Status:       RunStatusRunning,
		StartedAt:    time.Now().UTC(),
	}

	s.logger.Debug("creating run", "id", run.ID, "analytic_id", analyticID)

	_, err := s.db.Exec(
		`INSERT INTO runs (id, analytic_id, analytic_name, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.AnalyticID, run.AnalyticName, run.Status, run.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return run, nil
}

// CompleteRun finalises a run with its outcome. The result may be nil
// when the run failed before producing one.
func (s *SQLiteStore) CompleteRun(id string, status RunStatus, result *engine.Result, errMsg string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	now := time.Now().UTC()
	pass := false
	rows := 0
	if result != nil {
		pass = result.Pass
		rows = result.Rows
	}

	res, err := s.db.Exec(
		`UPDATE runs SET status = ?, pass = ?, rows = ?, error = ?, completed_at = ? WHERE id = ?`,
		status, pass, rows, errMsg, now, id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run not found: %s", id)
	}

	if result != nil {
		if err := s.saveGroups(id, result.Groups); err != nil {
			return err
		}
	}
	return nil
}

// saveGroups stores the per-group stats of a completed run.
func (s *SQLiteStore) saveGroups(runID string, groups []engine.GroupStat) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, g := range groups {
		if _, err := tx.Exec(
			`INSERT INTO run_groups (run_id, group_key, gc, pc, dnc, total, dnc_percentage, exceeds)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, g.Key, g.GC, g.PC, g.DNC, g.Total, g.DNCPercentage, g.Exceeds,
		); err != nil {
			return fmt.Errorf("failed to save group stats: %w", err)
		}
	}
	return tx.Commit()
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(id string) (*Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	row := s.db.QueryRow(
		`SELECT id, analytic_id, analytic_name, status, pass, rows, error, started_at, completed_at
		 FROM runs WHERE id = ?`, id)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns returns recent runs, newest first. An empty analyticID
// lists runs for every analytic.
func (s *SQLiteStore) ListRuns(analyticID string, limit int) ([]*Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, analytic_id, analytic_name, status, pass, rows, error, started_at, completed_at
		 FROM runs`
	args := []any{}
	if analyticID != "" {
		query += ` WHERE analytic_id = ?`
		args = append(args, analyticID)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetGroups returns the group stats recorded for a run.
func (s *SQLiteStore) GetGroups(runID string) ([]*GroupRecord, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.Query(
		`SELECT run_id, group_key, gc, pc, dnc, total, dnc_percentage, exceeds
		 FROM run_groups WHERE run_id = ?`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get groups: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var groups []*GroupRecord
	for rows.Next() {
		g := &GroupRecord{}
		if err := rows.Scan(&g.RunID, &g.GroupKey, &g.GC, &g.PC, &g.DNC, &g.Total, &g.DNCPercentage, &g.Exceeds); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// scanner abstracts sql.Row and sql.Rows for scanRun.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	run := &Run{}
	var completedAt sql.NullTime
	var errMsg sql.NullString
	if err := sc.Scan(
		&run.ID, &run.AnalyticID, &run.AnalyticName, &run.Status,
		&run.Pass, &run.Rows, &errMsg, &run.StartedAt, &completedAt,
	); err != nil {
		return nil, err
	}
	if errMsg.Valid {
		run.Error = errMsg.String
	}
	if completedAt.Valid {
		t := completedAt.Time
		run.CompletedAt = &t
	}
	return run, nil
}
