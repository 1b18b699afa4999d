// Package engine orchestrates analytic runs: it resolves each
// configured rule to a Boolean column, aggregates per-row verdicts,
// groups them by the reporting column, and judges group percentages
// against the configured threshold.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/leapstack-labs/veritab/internal/analytic"
	"github.com/leapstack-labs/veritab/pkg/dataset"
	"github.com/leapstack-labs/veritab/pkg/eval"
	"github.com/leapstack-labs/veritab/pkg/rules"
)

// Engine runs analytics. One engine may run many analytics; each run
// owns its dataset from load through report and shares no mutable
// state with other runs.
type Engine struct {
	logger    *slog.Logger
	evaluator *eval.Evaluator
	reference map[string]map[string]string
}

// Config holds engine configuration.
type Config struct {
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
	// Reference holds the loaded reference tables, keyed by name
	Reference map[string]map[string]string
	// Now fixes the evaluation clock for TODAY()/NOW(); zero means the
	// wall clock
	Now time.Time
}

// New creates a new engine.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{
		logger:    logger,
		evaluator: eval.New(eval.Options{Logger: logger, Now: cfg.Now}),
		reference: cfg.Reference,
	}
}

// RuleResult records the outcome of one rule within a run.
type RuleResult struct {
	Rule        string   `json:"rule"`
	Description string   `json:"description"`
	Failed      bool     `json:"failed"`
	Error       string   `json:"error,omitempty"`
	Warnings    []string `json:"warnings,omitempty"`
}

// Result is the structured output of one analytic run.
type Result struct {
	AnalyticID   string       `json:"analytic_id"`
	AnalyticName string       `json:"analytic_name"`
	Rows         int          `json:"rows"`
	Verdicts     []Verdict    `json:"verdicts"`
	Rules        []RuleResult `json:"rules"`
	Groups       []GroupStat  `json:"groups"`
	Pass         bool         `json:"pass"`
	Warnings     []string     `json:"warnings,omitempty"`
	StartedAt    time.Time    `json:"started_at"`
	CompletedAt  time.Time    `json:"completed_at"`
}

// Run executes one analytic against a dataset. The run is cancellable
// between phases: after each rule evaluation and before grouping.
//
// A rule whose formula fails to lex, parse, or evaluate does not abort
// the run while other rules remain: its column is missing at every
// row, which caps affected rows at PC.
func (e *Engine) Run(ctx context.Context, cfg *analytic.Config, ds *dataset.Dataset) (*Result, error) {
	started := time.Now()
	e.logger.Info("running analytic", "analytic_id", cfg.AnalyticID, "rows", ds.Len(), "rules", len(cfg.Validations))

	result := &Result{
		AnalyticID:   cfg.AnalyticID,
		AnalyticName: cfg.AnalyticName,
		Rows:         ds.Len(),
		StartedAt:    started,
	}

	rctx := &rules.Context{
		Evaluator: e.evaluator,
		Reference: e.reference,
		Logger:    e.logger,
	}

	// Phase 1: evaluate each rule to a Boolean column.
	columns := make([][]dataset.Value, 0, len(cfg.Validations))
	failedRules := 0
	for _, v := range cfg.Validations {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rr := RuleResult{Rule: v.Rule, Description: v.Description}
		outcome, err := rules.Apply(rctx, v.Rule, ds, v.Parameters)
		if err != nil {
			// Rule-level failure: contribute an all-missing column and
			// carry on with the remaining rules.
			e.logger.Warn("rule failed", "analytic_id", cfg.AnalyticID, "rule", v.Rule, "error", err)
			rr.Failed = true
			rr.Error = fmt.Sprintf("analytic %s, rule %q: %v", cfg.AnalyticID, v.Description, err)
			columns = append(columns, make([]dataset.Value, ds.Len()))
			failedRules++
		} else {
			columns = append(columns, outcome.Values)
			rr.Warnings = outcome.Warnings
			result.Warnings = append(result.Warnings, outcome.Warnings...)
		}
		result.Rules = append(result.Rules, rr)
	}

	if failedRules == len(cfg.Validations) {
		return nil, fmt.Errorf("analytic %s: every rule failed", cfg.AnalyticID)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Phase 2: aggregate per-row verdicts.
	result.Verdicts = Aggregate(columns, ds.Len())

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Phase 3: group and judge.
	result.Groups = GroupBy(ds, cfg.Reporting.GroupBy, result.Verdicts, cfg.Thresholds.ErrorPercentage)
	result.Pass = Judge(result.Groups)
	result.CompletedAt = time.Now()

	e.logger.Info("analytic complete",
		"analytic_id", cfg.AnalyticID,
		"pass", result.Pass,
		"groups", len(result.Groups),
		"duration", result.CompletedAt.Sub(started))

	return result, nil
}
