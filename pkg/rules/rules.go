// Package rules provides the built-in validation rule library. Each
// rule is a total function from (dataset, parameters) to a Boolean
// column; parameters are validated before execution.
package rules

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/go-viper/mapstructure/v2"
	"github.com/leapstack-labs/veritab/pkg/dataset"
	"github.com/leapstack-labs/veritab/pkg/eval"
)

// ParamError reports invalid rule parameters. It is a configuration
// failure: the rule never ran.
type ParamError struct {
	Rule    string
	Message string
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("invalid parameters for rule %s: %s", e.Rule, e.Message)
}

// Outcome is the result of applying one rule: a Boolean column of the
// dataset's length (missing where the rule could not decide) plus
// non-fatal warnings.
type Outcome struct {
	Values   []dataset.Value
	Warnings []string
}

// Context carries the collaborators a rule may need: the evaluator for
// custom formulas and reference tables for lookups.
type Context struct {
	Evaluator *eval.Evaluator
	Reference map[string]map[string]string
	Logger    *slog.Logger
}

func (c *Context) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.New(slog.DiscardHandler)
}

func (c *Context) evaluator() *eval.Evaluator {
	if c.Evaluator != nil {
		return c.Evaluator
	}
	return eval.New(eval.Options{})
}

// Func applies a rule to a dataset.
type Func func(ctx *Context, ds *dataset.Dataset, params map[string]any) (*Outcome, error)

// spec describes a registered rule: its implementation and its
// parameter checker, which also reports the dataset columns the
// parameters reference.
type spec struct {
	fn     Func
	params func(params map[string]any) (columns []string, err error)
}

var registry = map[string]spec{
	"segregation_of_duties":       {segregationOfDuties, segregationParamsCheck},
	"approval_sequence":           {approvalSequence, approvalSequenceParamsCheck},
	"title_based_approval":        {titleBasedApproval, titleParamsCheck},
	"third_party_risk_validation": {thirdPartyRisk, thirdPartyParamsCheck},
	"enumeration_validation":      {enumeration, enumerationParamsCheck},
	"custom_formula":              {customFormula, customFormulaParamsCheck},
}

// IsRegistered reports whether name is a known rule.
func IsRegistered(name string) bool {
	_, ok := registry[name]
	return ok
}

// List returns the registered rule names, sorted.
func List() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Apply runs the named rule against the dataset.
func Apply(ctx *Context, name string, ds *dataset.Dataset, params map[string]any) (*Outcome, error) {
	s, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown rule %q", name)
	}
	if _, err := s.params(params); err != nil {
		return nil, err
	}
	return s.fn(ctx, ds, params)
}

// ValidateParams checks the parameter signature of the named rule and
// returns the dataset columns the parameters reference. Custom
// formulas report their extracted field set.
func ValidateParams(name string, params map[string]any) ([]string, error) {
	s, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown rule %q", name)
	}
	return s.params(params)
}

// decodeParams decodes a parameter map into a typed struct. Decoding
// is weakly typed so YAML integers satisfy string fields and scalar
// values satisfy single-element lists.
func decodeParams(rule string, params map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(params); err != nil {
		return &ParamError{Rule: rule, Message: err.Error()}
	}
	return nil
}

// boolColumn builds an outcome column from a plain bool slice.
func boolColumn(bools []bool) []dataset.Value {
	vals := make([]dataset.Value, len(bools))
	for i, b := range bools {
		vals[i] = dataset.Bool(b)
	}
	return vals
}
