package eval_test

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/leapstack-labs/veritab/pkg/dataset"
	"github.com/leapstack-labs/veritab/pkg/eval"
	"github.com/leapstack-labs/veritab/pkg/formula"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mustDataset builds a dataset from column name to values.
func mustDataset(t *testing.T, cols ...dataset.Column) *dataset.Dataset {
	t.Helper()
	ds, err := dataset.New(cols...)
	require.NoError(t, err)
	return ds
}

func numbers(vals ...float64) []dataset.Value {
	out := make([]dataset.Value, len(vals))
	for i, v := range vals {
		out[i] = dataset.Number(v)
	}
	return out
}

func strs(vals ...string) []dataset.Value {
	out := make([]dataset.Value, len(vals))
	for i, v := range vals {
		out[i] = dataset.String(v)
	}
	return out
}

// evalFormula parses and evaluates a formula against the dataset.
func evalFormula(t *testing.T, ev *eval.Evaluator, input string, ds *dataset.Dataset) *eval.Result {
	t.Helper()
	expr, err := formula.Parse(input)
	require.NoError(t, err)
	res, err := ev.Eval(expr, ds)
	require.NoError(t, err)
	return res
}

// boolsOf renders a result column for compact comparison: "T", "F",
// or "-" for missing.
func boolsOf(res *eval.Result) string {
	var sb strings.Builder
	for _, v := range res.Values {
		switch {
		case v.IsMissing():
			sb.WriteByte('-')
		case v.Kind == dataset.KindBool && v.B:
			sb.WriteByte('T')
		default:
			sb.WriteByte('F')
		}
	}
	return sb.String()
}

func TestArithmetic(t *testing.T) {
	ds := mustDataset(t,
		dataset.Column{Name: "a", Values: numbers(1, 2, 3)},
		dataset.Column{Name: "b", Values: numbers(10, 20, 30)},
	)
	ev := eval.New(eval.Options{})

	res := evalFormula(t, ev, "a + b * 2", ds)
	assert.Equal(t, 21.0, res.Values[0].Num)
	assert.Equal(t, 42.0, res.Values[1].Num)
	assert.Equal(t, 63.0, res.Values[2].Num)
}

func TestArithmeticCoercion(t *testing.T) {
	ds := mustDataset(t,
		dataset.Column{Name: "a", Values: []dataset.Value{
			dataset.String("5"), dataset.String("abc"), dataset.Missing,
		}},
	)
	ev := eval.New(eval.Options{})

	// Numeric strings coerce; non-numeric strings and missing yield
	// missing, not an error.
	res := evalFormula(t, ev, "a + 1", ds)
	assert.Equal(t, 6.0, res.Values[0].Num)
	assert.True(t, res.Values[1].IsMissing())
	assert.True(t, res.Values[2].IsMissing())
	require.NotEmpty(t, res.Warnings)
	assert.Contains(t, strings.Join(res.Warnings, "\n"), "coerced to number")
}

func TestComparisonTypeRules(t *testing.T) {
	ds := mustDataset(t,
		dataset.Column{Name: "num", Values: []dataset.Value{dataset.String("9"), dataset.String("10")}},
		dataset.Column{Name: "txt", Values: strs("apple", "banana")},
		dataset.Column{Name: "d1", Values: strs("2024-01-02", "2024-03-01")},
		dataset.Column{Name: "d2", Values: strs("2024-01-10", "2024-02-01")},
	)
	ev := eval.New(eval.Options{})

	// Both sides numeric strings: numeric comparison, so "9" < "10"
	res := evalFormula(t, ev, "num < 10", ds)
	assert.Equal(t, "TF", boolsOf(res))

	// Text comparison is lexicographic
	res = evalFormula(t, ev, `txt < "b"`, ds)
	assert.Equal(t, "TF", boolsOf(res))

	// Both sides dates: date comparison
	res = evalFormula(t, ev, "d1 <= d2", ds)
	assert.Equal(t, "TF", boolsOf(res))
}

func TestComparisonWithMissing(t *testing.T) {
	ds := mustDataset(t,
		dataset.Column{Name: "a", Values: []dataset.Value{dataset.Number(1), dataset.Missing}},
	)
	ev := eval.New(eval.Options{})

	res := evalFormula(t, ev, "a = 1", ds)
	assert.Equal(t, "T-", boolsOf(res), "comparing missing yields missing")
}

func TestThreeValuedLogic(t *testing.T) {
	tr := dataset.Bool(true)
	fa := dataset.Bool(false)
	mi := dataset.Missing

	ds := mustDataset(t,
		dataset.Column{Name: "x", Values: []dataset.Value{tr, tr, tr, fa, fa, fa, mi, mi, mi}},
		dataset.Column{Name: "y", Values: []dataset.Value{tr, fa, mi, tr, fa, mi, tr, fa, mi}},
	)
	ev := eval.New(eval.Options{})

	// missing AND false = false, missing OR true = true, else missing
	res := evalFormula(t, ev, "x AND y", ds)
	assert.Equal(t, "TF-FFF-F-", boolsOf(res))

	res = evalFormula(t, ev, "x OR y", ds)
	assert.Equal(t, "TTTTF-T--", boolsOf(res))

	res = evalFormula(t, ev, "NOT x", ds)
	assert.Equal(t, "FFFTTT---", boolsOf(res))
}

// TestDoubleNegation checks the closure property: NOT(NOT(x)) equals x
// everywhere except missing positions, where both sides are missing.
func TestDoubleNegation(t *testing.T) {
	ds := mustDataset(t,
		dataset.Column{Name: "x", Values: []dataset.Value{
			dataset.Bool(true), dataset.Bool(false), dataset.Missing,
		}},
	)
	ev := eval.New(eval.Options{})

	direct := evalFormula(t, ev, "x", ds)
	doubled := evalFormula(t, ev, "NOT (NOT x)", ds)
	assert.Equal(t, boolsOf(direct), boolsOf(doubled))
}

func TestConcat(t *testing.T) {
	ds := mustDataset(t,
		dataset.Column{Name: "a", Values: []dataset.Value{dataset.String("x"), dataset.Missing}},
		dataset.Column{Name: "b", Values: []dataset.Value{dataset.Number(1), dataset.String("y")}},
	)
	ev := eval.New(eval.Options{})

	res := evalFormula(t, ev, "a & b", ds)
	assert.Equal(t, "x1", res.Values[0].Str)
	assert.Equal(t, "y", res.Values[1].Str, "missing renders as empty string in concat")
}

func TestIfSemantics(t *testing.T) {
	ds := mustDataset(t,
		dataset.Column{Name: "cond", Values: []dataset.Value{
			dataset.Bool(true), dataset.Bool(false), dataset.Missing,
		}},
	)
	ev := eval.New(eval.Options{})

	res := evalFormula(t, ev, `IF(cond, "yes", 0)`, ds)
	assert.Equal(t, "yes", res.Values[0].Str, "branches may carry different types")
	assert.Equal(t, 0.0, res.Values[1].Num)
	assert.True(t, res.Values[2].IsMissing(), "missing condition yields missing")
}

// TestScenarioCustomFormula is scenario S3: a custom formula combining
// ISBLANK with a date comparison.
func TestScenarioCustomFormula(t *testing.T) {
	ds := mustDataset(t,
		dataset.Column{Name: "Submitter", Values: []dataset.Value{
			dataset.String("Alice"), dataset.Missing, dataset.String("Alice"),
		}},
		dataset.Column{Name: "Submit Date", Values: strs("2024-01-01", "2024-01-01", "2024-01-05")},
		dataset.Column{Name: "TL Date", Values: strs("2024-01-02", "2024-01-02", "2024-01-02")},
	)
	ev := eval.New(eval.Options{})

	expr, err := formula.Parse("=AND(NOT(ISBLANK(`Submitter`)), `Submit Date` <= `TL Date`)")
	require.NoError(t, err)
	res, err := ev.EvalBool(expr, ds)
	require.NoError(t, err)
	assert.Equal(t, "TFF", boolsOf(&eval.Result{Values: res.Values}))
}

// TestScenarioConditional is scenario S4: an IF choosing the ageing
// window by risk level, with TODAY fixed at 2024-06-01.
func TestScenarioConditional(t *testing.T) {
	ds := mustDataset(t,
		dataset.Column{Name: "Risk", Values: strs("High", "High", "Low")},
		dataset.Column{Name: "Due_Date", Values: strs("2024-04-15", "2024-05-20", "2024-02-01")},
	)
	ev := eval.New(eval.Options{Now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)})

	expr, err := formula.Parse(`=IF(Risk="High", Due_Date<=TODAY()-30, Due_Date<=TODAY()-90)`)
	require.NoError(t, err)
	res, err := ev.EvalBool(expr, ds)
	require.NoError(t, err)
	assert.Equal(t, "TFT", boolsOf(&eval.Result{Values: res.Values}))
}

// TestOutputLength is the universal invariant: the output column
// length always equals the dataset length.
func TestOutputLength(t *testing.T) {
	formulas := []string{
		"1 + 1",
		`"constant"`,
		"a > 1",
		"ISBLANK(a) OR a * 2 > b",
		"TODAY()",
	}
	for _, rows := range []int{0, 1, 5} {
		a := make([]dataset.Value, rows)
		b := make([]dataset.Value, rows)
		for i := 0; i < rows; i++ {
			a[i] = dataset.Number(float64(i))
			b[i] = dataset.Number(float64(i * 2))
		}
		ds := mustDataset(t,
			dataset.Column{Name: "a", Values: a},
			dataset.Column{Name: "b", Values: b},
		)
		ev := eval.New(eval.Options{})
		for _, input := range formulas {
			t.Run(fmt.Sprintf("%s/rows=%d", input, rows), func(t *testing.T) {
				res := evalFormula(t, ev, input, ds)
				assert.Len(t, res.Values, rows)
			})
		}
	}
}

func TestUnknownFunction(t *testing.T) {
	ds := mustDataset(t, dataset.Column{Name: "a", Values: numbers(1)})
	ev := eval.New(eval.Options{})

	expr, err := formula.Parse("FOO(a)")
	require.NoError(t, err, "unknown functions are not a parse-time error")

	_, err = ev.Eval(expr, ds)
	require.Error(t, err)
	var evalErr *eval.EvalError
	require.ErrorAs(t, err, &evalErr)
	assert.Contains(t, err.Error(), "unknown function FOO")
}

func TestArityMismatch(t *testing.T) {
	ds := mustDataset(t, dataset.Column{Name: "a", Values: numbers(1)})
	ev := eval.New(eval.Options{})

	for _, input := range []string{"LEN()", "LEN(a, a)", "IF(a, 1)", "TODAY(a)"} {
		t.Run(input, func(t *testing.T) {
			expr, err := formula.Parse(input)
			require.NoError(t, err)
			_, err = ev.Eval(expr, ds)
			var evalErr *eval.EvalError
			require.ErrorAs(t, err, &evalErr)
		})
	}
}

func TestDepthCap(t *testing.T) {
	ds := mustDataset(t, dataset.Column{Name: "a", Values: []dataset.Value{dataset.Bool(true)}})
	ev := eval.New(eval.Options{})

	expr, err := formula.Parse(strings.Repeat("NOT ", 70) + "a")
	require.NoError(t, err)

	_, err = ev.Eval(expr, ds)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nesting exceeds depth 64")

	// Just inside the cap is fine
	expr, err = formula.Parse(strings.Repeat("NOT ", 50) + "a")
	require.NoError(t, err)
	_, err = ev.Eval(expr, ds)
	assert.NoError(t, err)
}

func TestMissingColumnIsWarning(t *testing.T) {
	ds := mustDataset(t, dataset.Column{Name: "a", Values: numbers(1, 2)})
	ev := eval.New(eval.Options{})

	res := evalFormula(t, ev, "nope > 1", ds)
	assert.Equal(t, "--", boolsOf(res))
	require.NotEmpty(t, res.Warnings)
	assert.Contains(t, res.Warnings[0], `column "nope" not found`)
}

func TestChainedComparisonWarns(t *testing.T) {
	ds := mustDataset(t, dataset.Column{Name: "a", Values: numbers(1)})
	ev := eval.New(eval.Options{})

	res := evalFormula(t, ev, "1 < a < 3", ds)
	require.NotEmpty(t, res.Warnings)
	assert.Contains(t, res.Warnings[0], "chained comparison")
}

func TestEvalBoolCoercion(t *testing.T) {
	ds := mustDataset(t,
		dataset.Column{Name: "a", Values: []dataset.Value{
			dataset.Number(0), dataset.Number(2), dataset.String("nope"), dataset.Missing,
		}},
	)
	ev := eval.New(eval.Options{})

	expr, err := formula.Parse("a")
	require.NoError(t, err)
	res, err := ev.EvalBool(expr, ds)
	require.NoError(t, err)

	assert.False(t, res.Values[0].B, "zero is false")
	assert.True(t, res.Values[1].B, "non-zero is true")
	assert.True(t, res.Values[2].IsMissing(), "non-coercible becomes missing")
	assert.True(t, res.Errs[2], "and is reported as an error position")
	assert.True(t, res.Values[3].IsMissing())
	assert.Contains(t, strings.Join(res.Warnings, "\n"), "coerced to Boolean")
}

func TestDivisionByZero(t *testing.T) {
	ds := mustDataset(t, dataset.Column{Name: "a", Values: numbers(1, 0)})
	ev := eval.New(eval.Options{})

	res := evalFormula(t, ev, "10 / a", ds)
	assert.Equal(t, 10.0, res.Values[0].Num)
	assert.True(t, res.Values[1].IsMissing())
	assert.True(t, res.Errs[1])
}

func TestTodayConstantAcrossRun(t *testing.T) {
	now := time.Date(2024, 6, 1, 23, 59, 0, 0, time.UTC)
	ev := eval.New(eval.Options{Now: now})
	ds := mustDataset(t, dataset.Column{Name: "a", Values: numbers(1, 2, 3)})

	res := evalFormula(t, ev, "TODAY()", ds)
	for _, v := range res.Values {
		assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), v.Date)
	}
}
