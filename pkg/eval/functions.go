package eval

import (
	"fmt"
	"strings"
	"time"

	"github.com/leapstack-labs/veritab/pkg/dataset"
	"github.com/leapstack-labs/veritab/pkg/formula"
)

// dateOf builds a UTC date from calendar components.
func dateOf(y, m, d int) time.Time {
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
}

// builtin describes a registered function: its arity bounds and its
// implementation over evaluated argument columns.
type builtin struct {
	minArgs int
	maxArgs int // -1 for variadic
	fn      func(r *run, args []column) column
}

// builtins is the closed function set. An unknown name is an
// EvalError; nothing outside this table is reachable from a formula.
var builtins = map[string]builtin{
	"ISBLANK": {1, 1, fnIsBlank},
	"ISNUMBER": {1, 1, func(r *run, args []column) column {
		return mapValues(r, args[0], func(v dataset.Value) dataset.Value {
			_, ok := v.AsNumber()
			return dataset.Bool(ok && v.Kind != dataset.KindBool)
		})
	}},
	"ISTEXT": {1, 1, func(r *run, args []column) column {
		return mapValues(r, args[0], func(v dataset.Value) dataset.Value {
			return dataset.Bool(v.Kind == dataset.KindString)
		})
	}},
	"ISERROR": {1, 1, fnIsError},
	"NOT":     {1, 1, fnNot},
	"AND":     {1, -1, fnAnd},
	"OR":      {1, -1, fnOr},
	"IF":      {3, 3, nil}, // arity only: three-argument IF parses to IfExpr
	"LEN": {1, 1, func(r *run, args []column) column {
		return mapString(args[0], func(s string) dataset.Value {
			return dataset.Number(float64(len([]rune(s))))
		})
	}},
	"LEFT":  {2, 2, fnLeft},
	"RIGHT": {2, 2, fnRight},
	"MID":   {3, 3, fnMid},
	"UPPER": {1, 1, func(r *run, args []column) column {
		return mapString(args[0], func(s string) dataset.Value { return dataset.String(strings.ToUpper(s)) })
	}},
	"LOWER": {1, 1, func(r *run, args []column) column {
		return mapString(args[0], func(s string) dataset.Value { return dataset.String(strings.ToLower(s)) })
	}},
	"TRIM": {1, 1, func(r *run, args []column) column {
		return mapString(args[0], func(s string) dataset.Value { return dataset.String(strings.TrimSpace(s)) })
	}},
	"PROPER": {1, 1, func(r *run, args []column) column {
		return mapString(args[0], func(s string) dataset.Value { return dataset.String(properCase(s)) })
	}},
	"VALUE":       {1, 1, fnValue},
	"CONCATENATE": {1, -1, fnConcatenate},
	"TODAY": {0, 0, func(r *run, _ []column) column {
		return r.broadcast(dataset.Date(r.ev.today))
	}},
	"NOW": {0, 0, func(r *run, _ []column) column {
		return r.broadcast(dataset.Date(r.ev.now))
	}},
	"DATE":      {3, 3, fnDate},
	"DATEVALUE": {1, 1, fnDateValue},
	"COUNTIF":   {2, 2, nil}, // handled in evalFunc: needs the raw column reference
}

// evalFunc dispatches a function call against the registry.
func (r *run) evalFunc(call *formula.FuncCall, depth int) (column, error) {
	b, ok := builtins[call.Name]
	if !ok {
		return column{}, &EvalError{Pos: call.Pos(), Message: fmt.Sprintf("unknown function %s", call.Name)}
	}

	if len(call.Args) < b.minArgs || (b.maxArgs >= 0 && len(call.Args) > b.maxArgs) {
		return column{}, &EvalError{Pos: call.Pos(), Message: arityMessage(call.Name, b, len(call.Args))}
	}

	if call.Name == "COUNTIF" {
		return r.evalCountIf(call, depth)
	}
	if b.fn == nil {
		return column{}, &EvalError{Pos: call.Pos(), Message: fmt.Sprintf("unknown function %s", call.Name)}
	}

	args := make([]column, len(call.Args))
	for i, arg := range call.Args {
		col, err := r.evalNode(arg, depth+1)
		if err != nil {
			return column{}, err
		}
		args[i] = col
	}

	out := b.fn(r, args)
	out.normalize()
	return out, nil
}

func arityMessage(name string, b builtin, got int) string {
	switch {
	case b.maxArgs < 0:
		return fmt.Sprintf("%s expects at least %d argument(s), got %d", name, b.minArgs, got)
	case b.minArgs == b.maxArgs:
		return fmt.Sprintf("%s expects %d argument(s), got %d", name, b.minArgs, got)
	default:
		return fmt.Sprintf("%s expects %d to %d arguments, got %d", name, b.minArgs, b.maxArgs, got)
	}
}

// mapValues applies fn to every non-error position; error positions
// propagate.
func mapValues(r *run, in column, fn func(dataset.Value) dataset.Value) column {
	out := newColumn(r.n)
	copy(out.errs, in.errs)
	for i, v := range in.vals {
		if in.errs[i] {
			continue
		}
		out.vals[i] = fn(v)
	}
	return out
}

// mapString applies fn to the string reading of every non-missing
// position; missing stays missing.
func mapString(in column, fn func(string) dataset.Value) column {
	out := column{vals: make([]dataset.Value, len(in.vals)), errs: make([]bool, len(in.errs))}
	copy(out.errs, in.errs)
	for i, v := range in.vals {
		if v.IsMissing() {
			continue
		}
		out.vals[i] = fn(v.AsString())
	}
	return out
}

// fnIsBlank: true iff the value is missing or an empty string.
func fnIsBlank(r *run, args []column) column {
	out := newColumn(r.n)
	for i, v := range args[0].vals {
		out.vals[i] = dataset.Bool(v.IsMissing() || (v.Kind == dataset.KindString && v.Str == ""))
	}
	return out
}

// fnIsError: true iff the position is missing due to a prior
// evaluation failure.
func fnIsError(r *run, args []column) column {
	out := newColumn(r.n)
	for i := range out.vals {
		out.vals[i] = dataset.Bool(args[0].errs[i])
	}
	return out
}

func fnNot(r *run, args []column) column {
	out := newColumn(r.n)
	copy(out.errs, args[0].errs)
	for i, v := range args[0].vals {
		if b, ok := r.toBool(v); ok {
			out.vals[i] = dataset.Bool(!b)
		} else if !v.IsMissing() {
			out.errs[i] = true
			r.boolCoerceFails++
		}
	}
	return out
}

// fnAnd: variadic three-valued conjunction. Any false wins, then any
// missing, then true.
func fnAnd(r *run, args []column) column {
	out := newColumn(r.n)
	for i := range out.vals {
		anyMissing := false
		result := true
		for _, arg := range args {
			b, ok := r.toBool(arg.vals[i])
			if !ok {
				anyMissing = true
				out.errs[i] = out.errs[i] || arg.errs[i]
				continue
			}
			if !b {
				result = false
			}
		}
		switch {
		case !result:
			out.vals[i] = dataset.Bool(false)
		case anyMissing:
			// stays missing
		default:
			out.vals[i] = dataset.Bool(true)
		}
	}
	return out
}

// fnOr: variadic three-valued disjunction.
func fnOr(r *run, args []column) column {
	out := newColumn(r.n)
	for i := range out.vals {
		anyMissing := false
		result := false
		for _, arg := range args {
			b, ok := r.toBool(arg.vals[i])
			if !ok {
				anyMissing = true
				out.errs[i] = out.errs[i] || arg.errs[i]
				continue
			}
			if b {
				result = true
			}
		}
		switch {
		case result:
			out.vals[i] = dataset.Bool(true)
		case anyMissing:
			// stays missing
		default:
			out.vals[i] = dataset.Bool(false)
		}
	}
	return out
}

// fnLeft: leftmost n characters, 1-based spreadsheet semantics.
func fnLeft(r *run, args []column) column {
	return stringSlice(r, args[0], args[1], func(runes []rune, n int) string {
		if n < 0 {
			n = 0
		}
		if n > len(runes) {
			n = len(runes)
		}
		return string(runes[:n])
	})
}

// fnRight: rightmost n characters.
func fnRight(r *run, args []column) column {
	return stringSlice(r, args[0], args[1], func(runes []rune, n int) string {
		if n < 0 {
			n = 0
		}
		if n > len(runes) {
			n = len(runes)
		}
		return string(runes[len(runes)-n:])
	})
}

// stringSlice is shared by LEFT and RIGHT: text plus a numeric length.
func stringSlice(r *run, text, num column, slice func([]rune, int) string) column {
	out := newColumn(r.n)
	for i := range out.vals {
		tv := text.vals[i]
		if tv.IsMissing() {
			out.errs[i] = text.errs[i]
			continue
		}
		n, ok := num.vals[i].AsNumber()
		if !ok {
			out.errs[i] = true
			r.numCoerceFails++
			continue
		}
		out.vals[i] = dataset.String(slice([]rune(tv.AsString()), int(n)))
	}
	return out
}

// fnMid: MID(text, start, count) with 1-based start.
func fnMid(r *run, args []column) column {
	out := newColumn(r.n)
	for i := range out.vals {
		tv := args[0].vals[i]
		if tv.IsMissing() {
			out.errs[i] = args[0].errs[i]
			continue
		}
		start, sok := args[1].vals[i].AsNumber()
		count, cok := args[2].vals[i].AsNumber()
		if !sok || !cok {
			out.errs[i] = true
			r.numCoerceFails++
			continue
		}
		runes := []rune(tv.AsString())
		from := int(start) - 1
		if from < 0 {
			from = 0
		}
		if from > len(runes) {
			from = len(runes)
		}
		to := from + int(count)
		if to < from {
			to = from
		}
		if to > len(runes) {
			to = len(runes)
		}
		out.vals[i] = dataset.String(string(runes[from:to]))
	}
	return out
}

// fnValue parses the argument as a number.
func fnValue(r *run, args []column) column {
	out := newColumn(r.n)
	for i, v := range args[0].vals {
		if v.IsMissing() {
			out.errs[i] = args[0].errs[i]
			continue
		}
		f, ok := v.AsNumber()
		if !ok {
			out.errs[i] = true
			r.numCoerceFails++
			continue
		}
		out.vals[i] = dataset.Number(f)
	}
	return out
}

// fnConcatenate joins the string readings of all arguments. A missing
// operand renders as the empty string, matching the & operator.
func fnConcatenate(r *run, args []column) column {
	out := newColumn(r.n)
	for i := range out.vals {
		var sb strings.Builder
		for _, arg := range args {
			sb.WriteString(arg.vals[i].AsString())
		}
		out.vals[i] = dataset.String(sb.String())
	}
	return out
}

// fnDate constructs a date from numeric year, month, day.
func fnDate(r *run, args []column) column {
	out := newColumn(r.n)
	for i := range out.vals {
		y, yok := args[0].vals[i].AsNumber()
		m, mok := args[1].vals[i].AsNumber()
		d, dok := args[2].vals[i].AsNumber()
		if !yok || !mok || !dok {
			out.errs[i] = true
			r.numCoerceFails++
			continue
		}
		out.vals[i] = dataset.Date(dateOf(int(y), int(m), int(d)))
	}
	return out
}

// fnDateValue parses the argument as a date.
func fnDateValue(r *run, args []column) column {
	out := newColumn(r.n)
	for i, v := range args[0].vals {
		if v.IsMissing() {
			out.errs[i] = args[0].errs[i]
			continue
		}
		if t, ok := v.AsDate(); ok {
			out.vals[i] = dataset.Date(t)
		} else {
			out.errs[i] = true
		}
	}
	return out
}

// evalCountIf counts rows of a named column matching a criterion.
// The first argument must be a column reference; the criterion is a
// comparison string (">5", "=x") or a bare value meaning equality.
// The count is constant across the run and broadcast to every row.
func (r *run) evalCountIf(call *formula.FuncCall, depth int) (column, error) {
	ref, ok := call.Args[0].(*formula.ColumnRef)
	if !ok {
		return column{}, &EvalError{Pos: call.Pos(), Message: "COUNTIF expects a column reference as its first argument"}
	}
	src, found := r.ds.Column(ref.Name)
	if !found {
		r.missingColumns = append(r.missingColumns, ref.Name)
		col := newColumn(r.n)
		for i := range col.errs {
			col.errs[i] = true
		}
		return col, nil
	}

	critCol, err := r.evalNode(call.Args[1], depth+1)
	if err != nil {
		return column{}, err
	}
	var crit dataset.Value
	if r.n > 0 {
		crit = critCol.vals[0]
	}

	count := 0
	for _, v := range src.Values {
		if matchCriterion(v, crit) {
			count++
		}
	}
	return r.broadcast(dataset.Number(float64(count))), nil
}

// matchCriterion applies a COUNTIF criterion to a cell.
func matchCriterion(v, crit dataset.Value) bool {
	if crit.Kind == dataset.KindString {
		s := strings.TrimSpace(crit.Str)
		for _, op := range []string{">=", "<=", "<>", "=", "<", ">"} {
			if strings.HasPrefix(s, op) {
				return compareCriterion(v, op, strings.TrimSpace(strings.TrimPrefix(s, op)))
			}
		}
	}
	if v.IsMissing() {
		return false
	}
	return compareValues(v, crit) == 0
}

// compareCriterion compares a cell against the operand text of a
// criterion expression.
func compareCriterion(v dataset.Value, op, operand string) bool {
	if v.IsMissing() {
		return false
	}
	cmp := compareValues(v, dataset.String(operand))
	switch op {
	case "=":
		return cmp == 0
	case "<>":
		return cmp != 0
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	case ">":
		return cmp > 0
	case ">=":
		return cmp >= 0
	}
	return false
}

// properCase capitalises the first letter of each word.
func properCase(s string) string {
	var sb strings.Builder
	startWord := true
	for _, r := range strings.ToLower(s) {
		if r == ' ' || r == '\t' || r == '-' || r == '_' {
			startWord = true
			sb.WriteRune(r)
			continue
		}
		if startWord {
			sb.WriteRune([]rune(strings.ToUpper(string(r)))[0])
			startWord = false
		} else {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
