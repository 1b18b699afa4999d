// Package eval executes formula ASTs against a dataset, producing a
// value column of the dataset's length.
//
// The interpreter is column-vectorised: each node evaluates to a full
// column before its parent combines results position by position.
// Missing values propagate through operations as three-valued logic.
// The evaluation surface is closed: only the registered function set
// is reachable, there is no host capability access, and nesting depth
// is capped.
package eval

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/leapstack-labs/veritab/pkg/dataset"
	"github.com/leapstack-labs/veritab/pkg/formula"
	"github.com/leapstack-labs/veritab/pkg/token"
)

// maxDepth caps expression nesting during evaluation.
const maxDepth = 64

// Evaluator executes formula ASTs. TODAY() and NOW() are captured at
// construction so they are constant across a run.
type Evaluator struct {
	logger *slog.Logger
	today  time.Time
	now    time.Time
}

// Options configures an Evaluator.
type Options struct {
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
	// Now fixes the evaluation clock; zero means the wall clock.
	Now time.Time
}

// New creates a new Evaluator.
func New(opts Options) *Evaluator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return &Evaluator{logger: logger, today: today, now: now}
}

// Result is an evaluated column plus the non-fatal warnings gathered
// along the way. Errs marks positions that are missing because of an
// evaluation failure rather than missing input.
type Result struct {
	Values   []dataset.Value
	Errs     []bool
	Warnings []string
}

// Eval evaluates expr against ds and returns a column of ds.Len()
// values.
func (e *Evaluator) Eval(expr formula.Expr, ds *dataset.Dataset) (*Result, error) {
	r := &run{ev: e, ds: ds, n: ds.Len()}

	warnChainedComparisons(expr, r)

	col, err := r.evalNode(expr, 0)
	if err != nil {
		return nil, err
	}

	return &Result{Values: col.vals, Errs: col.errs, Warnings: r.collectWarnings()}, nil
}

// EvalBool evaluates expr and coerces the result to a Boolean column.
// Positions that cannot be coerced become missing and are reported in
// the warnings.
func (e *Evaluator) EvalBool(expr formula.Expr, ds *dataset.Dataset) (*Result, error) {
	r := &run{ev: e, ds: ds, n: ds.Len()}

	warnChainedComparisons(expr, r)

	col, err := r.evalNode(expr, 0)
	if err != nil {
		return nil, err
	}

	out := newColumn(r.n)
	copy(out.errs, col.errs)
	for i, v := range col.vals {
		switch v.Kind {
		case dataset.KindBool:
			out.vals[i] = v
		case dataset.KindNumber:
			out.vals[i] = dataset.Bool(v.Num != 0)
		case dataset.KindMissing:
			// stays missing
		default:
			out.errs[i] = true
			r.boolCoerceFails++
		}
	}
	out.normalize()

	return &Result{Values: out.vals, Errs: out.errs, Warnings: r.collectWarnings()}, nil
}

// column is the internal unit of exchange between nodes.
type column struct {
	vals []dataset.Value
	errs []bool
}

func newColumn(n int) column {
	return column{vals: make([]dataset.Value, n), errs: make([]bool, n)}
}

// normalize restores the invariant that an error mark implies a
// missing value: an operator that produced a value despite a failed
// operand (e.g. missing AND false = false) clears the mark.
func (c *column) normalize() {
	for i := range c.errs {
		if c.errs[i] && !c.vals[i].IsMissing() {
			c.errs[i] = false
		}
	}
}

// run accumulates per-evaluation state: the dataset, warning counters,
// and missing-column reports.
type run struct {
	ev *Evaluator
	ds *dataset.Dataset
	n  int

	numCoerceFails  int
	boolCoerceFails int
	divZeroes       int
	missingColumns  []string
	chainedCmp      bool
}

// collectWarnings renders the counters into the warning list.
func (r *run) collectWarnings() []string {
	var warnings []string
	if r.chainedCmp {
		warnings = append(warnings, "chained comparison detected: a < b < c compares a Boolean to a value")
	}
	for _, name := range r.missingColumns {
		warnings = append(warnings, fmt.Sprintf("column %q not found in dataset", name))
	}
	if r.numCoerceFails > 0 {
		warnings = append(warnings, fmt.Sprintf("%d value(s) could not be coerced to number", r.numCoerceFails))
	}
	if r.boolCoerceFails > 0 {
		warnings = append(warnings, fmt.Sprintf("%d value(s) could not be coerced to Boolean", r.boolCoerceFails))
	}
	if r.divZeroes > 0 {
		warnings = append(warnings, fmt.Sprintf("%d division(s) by zero", r.divZeroes))
	}
	return warnings
}

// warnChainedComparisons flags comparisons whose operand is itself a
// comparison: almost certainly a user error (spreadsheet comparisons
// do not chain).
func warnChainedComparisons(expr formula.Expr, r *run) {
	formula.Walk(expr, func(e formula.Expr) bool {
		if b, ok := e.(*formula.BinaryExpr); ok && isComparisonOp(b.Op) {
			if l, ok := b.Left.(*formula.BinaryExpr); ok && isComparisonOp(l.Op) {
				r.chainedCmp = true
			}
			if rr, ok := b.Right.(*formula.BinaryExpr); ok && isComparisonOp(rr.Op) {
				r.chainedCmp = true
			}
		}
		return true
	})
}

func isComparisonOp(op token.Type) bool {
	switch op {
	case token.EQ, token.NE, token.LT, token.LE, token.GT, token.GE:
		return true
	}
	return false
}

// evalNode dispatches on the node type.
func (r *run) evalNode(expr formula.Expr, depth int) (column, error) {
	if depth > maxDepth {
		return column{}, &EvalError{Pos: expr.Pos(), Message: fmt.Sprintf("expression nesting exceeds depth %d", maxDepth)}
	}

	switch n := expr.(type) {
	case *formula.Literal:
		return r.evalLiteral(n), nil

	case *formula.ColumnRef:
		return r.evalColumnRef(n), nil

	case *formula.UnaryExpr:
		return r.evalUnary(n, depth)

	case *formula.BinaryExpr:
		return r.evalBinary(n, depth)

	case *formula.IfExpr:
		return r.evalIf(n, depth)

	case *formula.InExpr:
		return r.evalIn(n, depth)

	case *formula.FuncCall:
		return r.evalFunc(n, depth)

	default:
		return column{}, &EvalError{Pos: expr.Pos(), Message: fmt.Sprintf("unsupported expression node %T", expr)}
	}
}

// evalLiteral broadcasts a literal across the column.
func (r *run) evalLiteral(lit *formula.Literal) column {
	var v dataset.Value
	switch lit.Kind {
	case formula.LiteralNumber:
		// The lexer guarantees the literal parses.
		f, _ := strconv.ParseFloat(lit.Value, 64)
		v = dataset.Number(f)
	case formula.LiteralString:
		v = dataset.String(lit.Value)
	case formula.LiteralBool:
		v = dataset.Bool(lit.Value == "true")
	}
	return r.broadcast(v)
}

// broadcast fills a column with a single value.
func (r *run) broadcast(v dataset.Value) column {
	col := newColumn(r.n)
	for i := range col.vals {
		col.vals[i] = v
	}
	return col
}

// evalColumnRef resolves a column by name. A missing column is a
// non-fatal data warning: the result is all-missing with every
// position marked as an evaluation failure.
func (r *run) evalColumnRef(ref *formula.ColumnRef) column {
	src, ok := r.ds.Column(ref.Name)
	if !ok {
		r.ev.logger.Debug("column not found", "column", ref.Name)
		r.missingColumns = append(r.missingColumns, ref.Name)
		col := newColumn(r.n)
		for i := range col.errs {
			col.errs[i] = true
		}
		return col
	}
	col := newColumn(r.n)
	copy(col.vals, src.Values)
	return col
}

// evalUnary evaluates NOT and unary minus.
func (r *run) evalUnary(n *formula.UnaryExpr, depth int) (column, error) {
	operand, err := r.evalNode(n.Expr, depth+1)
	if err != nil {
		return column{}, err
	}

	out := newColumn(r.n)
	copy(out.errs, operand.errs)

	switch n.Op {
	case token.NOT:
		for i, v := range operand.vals {
			if b, ok := r.toBool(v); ok {
				out.vals[i] = dataset.Bool(!b)
			} else if !v.IsMissing() {
				out.errs[i] = true
				r.boolCoerceFails++
			}
		}
	case token.MINUS:
		for i, v := range operand.vals {
			if f, ok := v.AsNumber(); ok {
				out.vals[i] = dataset.Number(-f)
			} else if !v.IsMissing() {
				out.errs[i] = true
				r.numCoerceFails++
			}
		}
	default:
		return column{}, &EvalError{Pos: n.Pos(), Message: fmt.Sprintf("unsupported unary operator %s", n.Op)}
	}
	return out, nil
}

// evalBinary evaluates arithmetic, comparison, logical, and
// concatenation operators.
func (r *run) evalBinary(n *formula.BinaryExpr, depth int) (column, error) {
	left, err := r.evalNode(n.Left, depth+1)
	if err != nil {
		return column{}, err
	}
	right, err := r.evalNode(n.Right, depth+1)
	if err != nil {
		return column{}, err
	}

	out := newColumn(r.n)
	for i := range out.errs {
		out.errs[i] = left.errs[i] || right.errs[i]
	}

	switch n.Op {
	case token.AND, token.OR:
		r.applyLogical(n.Op, left, right, &out)
	case token.PLUS, token.MINUS, token.STAR, token.SLASH:
		r.applyArithmetic(n.Op, left, right, &out)
	case token.EQ, token.NE, token.LT, token.LE, token.GT, token.GE:
		applyComparison(n.Op, left, right, &out)
	case token.AMP:
		for i := range out.vals {
			out.vals[i] = dataset.String(left.vals[i].AsString() + right.vals[i].AsString())
		}
	default:
		return column{}, &EvalError{Pos: n.Pos(), Message: fmt.Sprintf("unsupported operator %s", n.Op)}
	}
	out.normalize()
	return out, nil
}

// applyLogical implements three-valued AND/OR:
// missing AND false = false, missing OR true = true, else missing.
func (r *run) applyLogical(op token.Type, left, right column, out *column) {
	for i := range out.vals {
		lb, lok := r.toBool(left.vals[i])
		rb, rok := r.toBool(right.vals[i])

		switch op {
		case token.AND:
			switch {
			case lok && !lb, rok && !rb:
				out.vals[i] = dataset.Bool(false)
			case lok && rok:
				out.vals[i] = dataset.Bool(true)
			}
		case token.OR:
			switch {
			case lok && lb, rok && rb:
				out.vals[i] = dataset.Bool(true)
			case lok && rok:
				out.vals[i] = dataset.Bool(false)
			}
		}
	}
}

// applyArithmetic implements numeric arithmetic with date offsets:
// date ± number shifts by days, date - date yields days.
func (r *run) applyArithmetic(op token.Type, left, right column, out *column) {
	for i := range out.vals {
		lv, rv := left.vals[i], right.vals[i]
		if lv.IsMissing() || rv.IsMissing() {
			continue
		}

		// Date offsets before numeric coercion: a date has no numeric
		// reading, but shifting by days is well-defined.
		if lv.Kind == dataset.KindDate || rv.Kind == dataset.KindDate {
			if v, ok := dateArithmetic(op, lv, rv); ok {
				out.vals[i] = v
				continue
			}
		}

		lf, lok := lv.AsNumber()
		rf, rok := rv.AsNumber()
		if !lok || !rok {
			out.errs[i] = true
			r.numCoerceFails++
			continue
		}

		switch op {
		case token.PLUS:
			out.vals[i] = dataset.Number(lf + rf)
		case token.MINUS:
			out.vals[i] = dataset.Number(lf - rf)
		case token.STAR:
			out.vals[i] = dataset.Number(lf * rf)
		case token.SLASH:
			if rf == 0 {
				out.errs[i] = true
				r.divZeroes++
				continue
			}
			out.vals[i] = dataset.Number(lf / rf)
		}
	}
}

// dateArithmetic handles date ± days and date - date.
func dateArithmetic(op token.Type, lv, rv dataset.Value) (dataset.Value, bool) {
	ld, lIsDate := lv.AsDate()
	rd, rIsDate := rv.AsDate()

	switch {
	case lIsDate && rIsDate && op == token.MINUS:
		return dataset.Number(wholeDays(ld.Sub(rd))), true
	case lIsDate && !rIsDate:
		if f, ok := rv.AsNumber(); ok {
			switch op {
			case token.PLUS:
				return dataset.Date(ld.AddDate(0, 0, int(f))), true
			case token.MINUS:
				return dataset.Date(ld.AddDate(0, 0, -int(f))), true
			}
		}
	case !lIsDate && rIsDate && op == token.PLUS:
		if f, ok := lv.AsNumber(); ok {
			return dataset.Date(rd.AddDate(0, 0, int(f))), true
		}
	}
	return dataset.Value{}, false
}

// wholeDays converts a duration to whole days.
func wholeDays(d time.Duration) float64 {
	return float64(d / (24 * time.Hour))
}

// applyComparison implements the comparison type rules: numbers when
// both sides read as numbers, dates when both read as dates, strings
// otherwise. Comparing missing to anything yields missing.
func applyComparison(op token.Type, left, right column, out *column) {
	for i := range out.vals {
		lv, rv := left.vals[i], right.vals[i]
		if lv.IsMissing() || rv.IsMissing() {
			continue
		}
		cmp := compareValues(lv, rv)
		switch op {
		case token.EQ:
			out.vals[i] = dataset.Bool(cmp == 0)
		case token.NE:
			out.vals[i] = dataset.Bool(cmp != 0)
		case token.LT:
			out.vals[i] = dataset.Bool(cmp < 0)
		case token.LE:
			out.vals[i] = dataset.Bool(cmp <= 0)
		case token.GT:
			out.vals[i] = dataset.Bool(cmp > 0)
		case token.GE:
			out.vals[i] = dataset.Bool(cmp >= 0)
		}
	}
}

// compareValues orders two non-missing values: numeric if both read as
// numbers, by date if both read as dates, lexicographic otherwise.
func compareValues(a, b dataset.Value) int {
	if af, aok := a.AsNumber(); aok {
		if bf, bok := b.AsNumber(); bok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
	}
	if ad, aok := a.AsDate(); aok {
		if bd, bok := b.AsDate(); bok {
			switch {
			case ad.Before(bd):
				return -1
			case ad.After(bd):
				return 1
			default:
				return 0
			}
		}
	}
	as, bs := a.AsString(), b.AsString()
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	default:
		return 0
	}
}

// evalIf selects between the branch columns per position. A missing
// condition yields missing; branches may carry different types.
func (r *run) evalIf(n *formula.IfExpr, depth int) (column, error) {
	cond, err := r.evalNode(n.Cond, depth+1)
	if err != nil {
		return column{}, err
	}
	thenCol, err := r.evalNode(n.Then, depth+1)
	if err != nil {
		return column{}, err
	}
	elseCol, err := r.evalNode(n.Else, depth+1)
	if err != nil {
		return column{}, err
	}

	out := newColumn(r.n)
	for i := range out.vals {
		b, ok := r.toBool(cond.vals[i])
		if !ok {
			out.errs[i] = cond.errs[i] || !cond.vals[i].IsMissing()
			continue
		}
		if b {
			out.vals[i] = thenCol.vals[i]
			out.errs[i] = thenCol.errs[i]
		} else {
			out.vals[i] = elseCol.vals[i]
			out.errs[i] = elseCol.errs[i]
		}
	}
	out.normalize()
	return out, nil
}

// evalIn implements membership: true when the value equals any listed
// value, missing when the tested value is missing.
func (r *run) evalIn(n *formula.InExpr, depth int) (column, error) {
	target, err := r.evalNode(n.Expr, depth+1)
	if err != nil {
		return column{}, err
	}
	values := make([]column, len(n.Values))
	for i, v := range n.Values {
		values[i], err = r.evalNode(v, depth+1)
		if err != nil {
			return column{}, err
		}
	}

	out := newColumn(r.n)
	copy(out.errs, target.errs)
	for i := range out.vals {
		tv := target.vals[i]
		if tv.IsMissing() {
			continue
		}
		found := false
		for _, vc := range values {
			if !vc.vals[i].IsMissing() && compareValues(tv, vc.vals[i]) == 0 {
				found = true
				break
			}
		}
		out.vals[i] = dataset.Bool(found)
	}
	out.normalize()
	return out, nil
}

// toBool reads a value as Boolean. Numbers coerce as non-zero; other
// kinds (and missing) do not coerce.
func (r *run) toBool(v dataset.Value) (bool, bool) {
	switch v.Kind {
	case dataset.KindBool:
		return v.B, true
	case dataset.KindNumber:
		return v.Num != 0, true
	default:
		return false, false
	}
}
