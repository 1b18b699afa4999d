package rules_test

import (
	"strings"
	"testing"

	"github.com/leapstack-labs/veritab/pkg/dataset"
	"github.com/leapstack-labs/veritab/pkg/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDataset(t *testing.T, cols ...dataset.Column) *dataset.Dataset {
	t.Helper()
	ds, err := dataset.New(cols...)
	require.NoError(t, err)
	return ds
}

func strs(vals ...string) []dataset.Value {
	out := make([]dataset.Value, len(vals))
	for i, v := range vals {
		if v == "" {
			out[i] = dataset.Missing
		} else {
			out[i] = dataset.String(v)
		}
	}
	return out
}

func boolsOf(out *rules.Outcome) string {
	var sb strings.Builder
	for _, v := range out.Values {
		switch {
		case v.IsMissing():
			sb.WriteByte('-')
		case v.B:
			sb.WriteByte('T')
		default:
			sb.WriteByte('F')
		}
	}
	return sb.String()
}

func TestRegistry(t *testing.T) {
	assert.True(t, rules.IsRegistered("segregation_of_duties"))
	assert.True(t, rules.IsRegistered("custom_formula"))
	assert.False(t, rules.IsRegistered("nope"))
	assert.Equal(t, []string{
		"approval_sequence",
		"custom_formula",
		"enumeration_validation",
		"segregation_of_duties",
		"third_party_risk_validation",
		"title_based_approval",
	}, rules.List())
}

// TestSegregationOfDuties is scenario S1.
func TestSegregationOfDuties(t *testing.T) {
	ds := mustDataset(t,
		dataset.Column{Name: "S", Values: strs("X", "X", "X", "X", "")},
		dataset.Column{Name: "A1", Values: strs("Y", "X", "Y", "X", "Y")},
		dataset.Column{Name: "A2", Values: strs("Z", "Z", "X", "X", "Z")},
	)

	out, err := rules.Apply(&rules.Context{}, "segregation_of_duties", ds, map[string]any{
		"submitter_field": "S",
		"approver_fields": []string{"A1", "A2"},
	})
	require.NoError(t, err)
	assert.Equal(t, "TFFFF", boolsOf(out))
}

func TestSegregationOfDutiesTrims(t *testing.T) {
	ds := mustDataset(t,
		dataset.Column{Name: "S", Values: strs(" X ")},
		dataset.Column{Name: "A1", Values: strs("X")},
	)
	out, err := rules.Apply(&rules.Context{}, "segregation_of_duties", ds, map[string]any{
		"submitter_field": "S",
		"approver_fields": []string{"A1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "F", boolsOf(out), "comparison trims before matching")
}

func TestSegregationMissingApprover(t *testing.T) {
	ds := mustDataset(t,
		dataset.Column{Name: "S", Values: strs("X")},
		dataset.Column{Name: "A1", Values: strs("")},
	)
	out, err := rules.Apply(&rules.Context{}, "segregation_of_duties", ds, map[string]any{
		"submitter_field": "S",
		"approver_fields": []string{"A1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "F", boolsOf(out), "a missing approver is a violation")
}

// TestApprovalSequence is scenario S2.
func TestApprovalSequence(t *testing.T) {
	ds := mustDataset(t,
		dataset.Column{Name: "D1", Values: strs("2024-01-01", "2024-01-03", "2024-01-01", "2024-01-01")},
		dataset.Column{Name: "D2", Values: strs("2024-01-02", "2024-01-02", "2024-01-01", "")},
		dataset.Column{Name: "D3", Values: strs("2024-01-03", "2024-01-04", "2024-01-02", "2024-01-02")},
	)

	out, err := rules.Apply(&rules.Context{}, "approval_sequence", ds, map[string]any{
		"date_fields_in_order": []string{"D1", "D2", "D3"},
	})
	require.NoError(t, err)
	// Non-strict ordering passes; a decrease or a missing date fails.
	assert.Equal(t, "TFTF", boolsOf(out))
}

func TestTitleBasedApproval(t *testing.T) {
	ds := mustDataset(t,
		dataset.Column{Name: "Approver", Values: strs("Alice", "Bob", "Carol", "")},
	)
	ctx := &rules.Context{
		Reference: map[string]map[string]string{
			"titles": {"Alice": "Manager", "Bob": "Analyst"},
		},
	}

	out, err := rules.Apply(ctx, "title_based_approval", ds, map[string]any{
		"approver_field":  "Approver",
		"allowed_titles":  []string{"Manager", "Director"},
		"title_reference": "titles",
	})
	require.NoError(t, err)
	// Alice: allowed title. Bob: disallowed title. Carol: no reference
	// entry. Missing approver: violation.
	assert.Equal(t, "TFFF", boolsOf(out))
}

func TestTitleBasedApprovalMissingReference(t *testing.T) {
	ds := mustDataset(t, dataset.Column{Name: "Approver", Values: strs("Alice")})
	_, err := rules.Apply(&rules.Context{}, "title_based_approval", ds, map[string]any{
		"approver_field":  "Approver",
		"allowed_titles":  []string{"Manager"},
		"title_reference": "titles",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not loaded")
}

func TestThirdPartyRisk(t *testing.T) {
	ds := mustDataset(t,
		dataset.Column{Name: "TP", Values: strs("", "", "Acme", "Acme", "Acme")},
		dataset.Column{Name: "Risk", Values: strs("N/A", "", "High", "N/A", "")},
	)

	out, err := rules.Apply(&rules.Context{}, "third_party_risk_validation", ds, map[string]any{
		"third_party_field": "TP",
		"risk_level_field":  "Risk",
	})
	require.NoError(t, err)
	// No third party: conforms regardless of risk. With a third
	// party: risk must be present and not N/A.
	assert.Equal(t, "TTTFF", boolsOf(out))
}

func TestEnumeration(t *testing.T) {
	ds := mustDataset(t,
		dataset.Column{Name: "Status", Values: strs("Open", "Closed", "Weird", "")},
	)

	out, err := rules.Apply(&rules.Context{}, "enumeration_validation", ds, map[string]any{
		"field_name":   "Status",
		"valid_values": []string{"Open", "Closed"},
	})
	require.NoError(t, err)
	assert.Equal(t, "TTFF", boolsOf(out))
}

func TestCustomFormula(t *testing.T) {
	ds := mustDataset(t,
		dataset.Column{Name: "Amount", Values: []dataset.Value{
			dataset.Number(5), dataset.Number(50), dataset.Missing,
		}},
	)

	out, err := rules.Apply(&rules.Context{}, "custom_formula", ds, map[string]any{
		"original_formula": "=Amount <= 10",
	})
	require.NoError(t, err)
	assert.Equal(t, "TF-", boolsOf(out))
}

func TestCustomFormulaParseFailure(t *testing.T) {
	ds := mustDataset(t, dataset.Column{Name: "a", Values: strs("x")})
	_, err := rules.Apply(&rules.Context{}, "custom_formula", ds, map[string]any{
		"original_formula": "=AND(",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse error")
}

func TestParamValidation(t *testing.T) {
	tests := []struct {
		name   string
		rule   string
		params map[string]any
	}{
		{"segregation missing submitter", "segregation_of_duties", map[string]any{"approver_fields": []string{"A"}}},
		{"segregation no approvers", "segregation_of_duties", map[string]any{"submitter_field": "S"}},
		{"sequence too short", "approval_sequence", map[string]any{"date_fields_in_order": []string{"D1"}}},
		{"title missing reference", "title_based_approval", map[string]any{"approver_field": "A", "allowed_titles": []string{"x"}}},
		{"enumeration empty set", "enumeration_validation", map[string]any{"field_name": "F"}},
		{"custom formula empty", "custom_formula", map[string]any{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := rules.ValidateParams(tt.rule, tt.params)
			require.Error(t, err)
			var paramErr *rules.ParamError
			assert.ErrorAs(t, err, &paramErr)
		})
	}
}

func TestValidateParamsReportsColumns(t *testing.T) {
	cols, err := rules.ValidateParams("segregation_of_duties", map[string]any{
		"submitter_field": "S",
		"approver_fields": []string{"A1", "A2"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"S", "A1", "A2"}, cols)

	cols, err = rules.ValidateParams("custom_formula", map[string]any{
		"original_formula": "=`Submit Date` <= `TL Date`",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Submit Date", "TL Date"}, cols)
}

func TestRuleAgainstMissingColumn(t *testing.T) {
	ds := mustDataset(t, dataset.Column{Name: "Other", Values: strs("x")})
	_, err := rules.Apply(&rules.Context{}, "enumeration_validation", ds, map[string]any{
		"field_name":   "Status",
		"valid_values": []string{"Open"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `column "Status" not found`)
}
