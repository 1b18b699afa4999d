package rules

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/veritab/pkg/dataset"
	"github.com/leapstack-labs/veritab/pkg/formula"
)

// ---------- segregation_of_duties ----------

type segregationParams struct {
	SubmitterField string   `mapstructure:"submitter_field"`
	ApproverFields []string `mapstructure:"approver_fields"`
}

func segregationParamsCheck(params map[string]any) ([]string, error) {
	var p segregationParams
	if err := decodeParams("segregation_of_duties", params, &p); err != nil {
		return nil, err
	}
	if p.SubmitterField == "" {
		return nil, &ParamError{Rule: "segregation_of_duties", Message: "submitter_field is required"}
	}
	if len(p.ApproverFields) == 0 {
		return nil, &ParamError{Rule: "segregation_of_duties", Message: "approver_fields must name at least one column"}
	}
	return append([]string{p.SubmitterField}, p.ApproverFields...), nil
}

// segregationOfDuties: true at a row iff the submitter differs from
// every approver (trimmed, case-sensitive string equality). A missing
// value on either side is a violation.
func segregationOfDuties(_ *Context, ds *dataset.Dataset, params map[string]any) (*Outcome, error) {
	var p segregationParams
	if err := decodeParams("segregation_of_duties", params, &p); err != nil {
		return nil, err
	}

	submitter, err := requireColumn(ds, p.SubmitterField)
	if err != nil {
		return nil, err
	}
	approvers := make([]*dataset.Column, len(p.ApproverFields))
	for i, name := range p.ApproverFields {
		if approvers[i], err = requireColumn(ds, name); err != nil {
			return nil, err
		}
	}

	result := make([]bool, ds.Len())
	for i := range result {
		sv := submitter.Values[i]
		if sv.IsMissing() {
			continue
		}
		s := strings.TrimSpace(sv.AsString())
		ok := true
		for _, approver := range approvers {
			av := approver.Values[i]
			if av.IsMissing() || strings.TrimSpace(av.AsString()) == s {
				ok = false
				break
			}
		}
		result[i] = ok
	}
	return &Outcome{Values: boolColumn(result)}, nil
}

// ---------- approval_sequence ----------

type approvalSequenceParams struct {
	DateFields []string `mapstructure:"date_fields_in_order"`
}

func approvalSequenceParamsCheck(params map[string]any) ([]string, error) {
	var p approvalSequenceParams
	if err := decodeParams("approval_sequence", params, &p); err != nil {
		return nil, err
	}
	if len(p.DateFields) < 2 {
		return nil, &ParamError{Rule: "approval_sequence", Message: "date_fields_in_order must name at least two columns"}
	}
	return p.DateFields, nil
}

// approvalSequence: true at a row iff the dates are non-strictly
// increasing. Any missing or unparseable date violates.
func approvalSequence(_ *Context, ds *dataset.Dataset, params map[string]any) (*Outcome, error) {
	var p approvalSequenceParams
	if err := decodeParams("approval_sequence", params, &p); err != nil {
		return nil, err
	}

	cols := make([]*dataset.Column, len(p.DateFields))
	for i, name := range p.DateFields {
		var err error
		if cols[i], err = requireColumn(ds, name); err != nil {
			return nil, err
		}
	}

	result := make([]bool, ds.Len())
	for i := range result {
		ok := true
		for j := 0; j < len(cols)-1 && ok; j++ {
			d1, ok1 := cols[j].Values[i].AsDate()
			d2, ok2 := cols[j+1].Values[i].AsDate()
			if !ok1 || !ok2 || d1.After(d2) {
				ok = false
			}
		}
		result[i] = ok
	}
	return &Outcome{Values: boolColumn(result)}, nil
}

// ---------- title_based_approval ----------

type titleParams struct {
	ApproverField  string   `mapstructure:"approver_field"`
	AllowedTitles  []string `mapstructure:"allowed_titles"`
	TitleReference string   `mapstructure:"title_reference"`
}

func titleParamsCheck(params map[string]any) ([]string, error) {
	var p titleParams
	if err := decodeParams("title_based_approval", params, &p); err != nil {
		return nil, err
	}
	if p.ApproverField == "" {
		return nil, &ParamError{Rule: "title_based_approval", Message: "approver_field is required"}
	}
	if len(p.AllowedTitles) == 0 {
		return nil, &ParamError{Rule: "title_based_approval", Message: "allowed_titles must name at least one title"}
	}
	if p.TitleReference == "" {
		return nil, &ParamError{Rule: "title_based_approval", Message: "title_reference is required"}
	}
	return []string{p.ApproverField}, nil
}

// titleBasedApproval: true at a row iff the approver's title, looked
// up in the reference table, is among the allowed titles. A missing
// approver or reference entry violates.
func titleBasedApproval(ctx *Context, ds *dataset.Dataset, params map[string]any) (*Outcome, error) {
	var p titleParams
	if err := decodeParams("title_based_approval", params, &p); err != nil {
		return nil, err
	}

	titles, ok := ctx.Reference[p.TitleReference]
	if !ok {
		return nil, &ParamError{Rule: "title_based_approval", Message: fmt.Sprintf("reference table %q is not loaded", p.TitleReference)}
	}

	approver, err := requireColumn(ds, p.ApproverField)
	if err != nil {
		return nil, err
	}

	allowed := make(map[string]bool, len(p.AllowedTitles))
	for _, t := range p.AllowedTitles {
		allowed[t] = true
	}

	result := make([]bool, ds.Len())
	for i := range result {
		av := approver.Values[i]
		if av.IsMissing() {
			continue
		}
		title, found := titles[strings.TrimSpace(av.AsString())]
		result[i] = found && allowed[title]
	}
	return &Outcome{Values: boolColumn(result)}, nil
}

// ---------- third_party_risk_validation ----------

type thirdPartyParams struct {
	ThirdPartyField string `mapstructure:"third_party_field"`
	RiskLevelField  string `mapstructure:"risk_level_field"`
}

func thirdPartyParamsCheck(params map[string]any) ([]string, error) {
	var p thirdPartyParams
	if err := decodeParams("third_party_risk_validation", params, &p); err != nil {
		return nil, err
	}
	if p.ThirdPartyField == "" || p.RiskLevelField == "" {
		return nil, &ParamError{Rule: "third_party_risk_validation", Message: "third_party_field and risk_level_field are required"}
	}
	return []string{p.ThirdPartyField, p.RiskLevelField}, nil
}

// thirdPartyRisk: true iff no third party is named, or a risk level
// is present and is not "N/A".
func thirdPartyRisk(_ *Context, ds *dataset.Dataset, params map[string]any) (*Outcome, error) {
	var p thirdPartyParams
	if err := decodeParams("third_party_risk_validation", params, &p); err != nil {
		return nil, err
	}

	thirdParty, err := requireColumn(ds, p.ThirdPartyField)
	if err != nil {
		return nil, err
	}
	riskLevel, err := requireColumn(ds, p.RiskLevelField)
	if err != nil {
		return nil, err
	}

	result := make([]bool, ds.Len())
	for i := range result {
		if isBlank(thirdParty.Values[i]) {
			result[i] = true
			continue
		}
		rv := riskLevel.Values[i]
		result[i] = !isBlank(rv) && strings.TrimSpace(rv.AsString()) != "N/A"
	}
	return &Outcome{Values: boolColumn(result)}, nil
}

// ---------- enumeration_validation ----------

type enumerationParams struct {
	FieldName   string   `mapstructure:"field_name"`
	ValidValues []string `mapstructure:"valid_values"`
}

func enumerationParamsCheck(params map[string]any) ([]string, error) {
	var p enumerationParams
	if err := decodeParams("enumeration_validation", params, &p); err != nil {
		return nil, err
	}
	if p.FieldName == "" {
		return nil, &ParamError{Rule: "enumeration_validation", Message: "field_name is required"}
	}
	if len(p.ValidValues) == 0 {
		return nil, &ParamError{Rule: "enumeration_validation", Message: "valid_values must name at least one value"}
	}
	return []string{p.FieldName}, nil
}

// enumeration: true iff the field's value is in the valid set.
func enumeration(_ *Context, ds *dataset.Dataset, params map[string]any) (*Outcome, error) {
	var p enumerationParams
	if err := decodeParams("enumeration_validation", params, &p); err != nil {
		return nil, err
	}

	col, err := requireColumn(ds, p.FieldName)
	if err != nil {
		return nil, err
	}

	valid := make(map[string]bool, len(p.ValidValues))
	for _, v := range p.ValidValues {
		valid[v] = true
	}

	result := make([]bool, ds.Len())
	for i := range result {
		v := col.Values[i]
		result[i] = !v.IsMissing() && valid[strings.TrimSpace(v.AsString())]
	}
	return &Outcome{Values: boolColumn(result)}, nil
}

// ---------- custom_formula ----------

type customFormulaParams struct {
	OriginalFormula string `mapstructure:"original_formula"`
	DisplayName     string `mapstructure:"display_name"`
}

func customFormulaParamsCheck(params map[string]any) ([]string, error) {
	var p customFormulaParams
	if err := decodeParams("custom_formula", params, &p); err != nil {
		return nil, err
	}
	if p.OriginalFormula == "" {
		return nil, &ParamError{Rule: "custom_formula", Message: "original_formula is required"}
	}
	// The pre-parse extractor keeps signature checking cheap; the full
	// parse happens when the rule runs.
	return formula.ExtractFields(p.OriginalFormula), nil
}

// customFormula parses and evaluates a user formula, coercing the
// result to a Boolean column.
func customFormula(ctx *Context, ds *dataset.Dataset, params map[string]any) (*Outcome, error) {
	var p customFormulaParams
	if err := decodeParams("custom_formula", params, &p); err != nil {
		return nil, err
	}

	expr, err := formula.Parse(p.OriginalFormula)
	if err != nil {
		return nil, fmt.Errorf("formula %q: %w", p.OriginalFormula, err)
	}

	res, err := ctx.evaluator().EvalBool(expr, ds)
	if err != nil {
		return nil, fmt.Errorf("formula %q: %w", p.OriginalFormula, err)
	}

	ctx.logger().Debug("evaluated custom formula",
		"formula", p.OriginalFormula, "rows", ds.Len(), "warnings", len(res.Warnings))

	return &Outcome{Values: res.Values, Warnings: res.Warnings}, nil
}

// ---------- helpers ----------

// requireColumn resolves a column a rule's parameters name.
func requireColumn(ds *dataset.Dataset, name string) (*dataset.Column, error) {
	col, ok := ds.Column(name)
	if !ok {
		return nil, fmt.Errorf("column %q not found in dataset", name)
	}
	return col, nil
}

// isBlank mirrors ISBLANK: missing or an empty string.
func isBlank(v dataset.Value) bool {
	return v.IsMissing() || strings.TrimSpace(v.AsString()) == ""
}
