package cli_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/leapstack-labs/veritab/internal/cli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the CLI with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := cli.NewRootCmd()
	cmd.SetContext(context.Background())

	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "veritab")
}

func TestFieldsCommand(t *testing.T) {
	out, err := execute(t, "fields", "=AND(NOT(ISBLANK(`Submitter`)), `Submit Date` <= `TL Date`)")
	require.NoError(t, err)
	assert.Contains(t, out, "Submitter")
	assert.Contains(t, out, "Submit Date")
	assert.Contains(t, out, "TL Date")
	assert.NotContains(t, out, "ISBLANK")
}

func TestFieldsCommandParseError(t *testing.T) {
	_, err := execute(t, "fields", "=AND(")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse error")
}

// writeProject lays out a minimal project: one analytic config and its
// dataset.
func writeProject(t *testing.T) (configsDir, dataDir, statePath string) {
	t.Helper()
	root := t.TempDir()
	configsDir = filepath.Join(root, "analytics")
	dataDir = filepath.Join(root, "data")
	statePath = filepath.Join(root, ".veritab", "state.db")
	require.NoError(t, os.MkdirAll(configsDir, 0o755))
	require.NoError(t, os.MkdirAll(dataDir, 0o755))

	config := `
analytic_id: 5
analytic_name: Approval checks
data_source:
  name: approvals
  required_fields: [Submitter, Approver, Region]
validations:
  - rule: segregation_of_duties
    description: Submitter is not the approver
    parameters:
      submitter_field: Submitter
      approver_fields: [Approver]
thresholds:
  error_percentage: 50
reporting:
  group_by: Region
`
	require.NoError(t, os.WriteFile(filepath.Join(configsDir, "qa_5.yaml"), []byte(config), 0o644))

	data := "Submitter,Approver,Region\nAnn,Tia,North\nBob,Tia,North\nCat,Tia,South\n"
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "approvals.csv"), []byte(data), 0o644))

	return configsDir, dataDir, statePath
}

func TestRunCommandEndToEnd(t *testing.T) {
	configsDir, dataDir, statePath := writeProject(t)

	out, err := execute(t, "run",
		"--configs-dir", configsDir,
		"--data-dir", dataDir,
		"--state-path", statePath,
	)
	require.NoError(t, err)
	assert.Contains(t, out, "Approval checks")
	assert.Contains(t, out, "Overall: PASS")

	// The run was recorded
	out, err = execute(t, "history", "--state-path", statePath)
	require.NoError(t, err)
	assert.Contains(t, out, "Approval checks")
	assert.Contains(t, out, "PASS")
}

func TestRunCommandThresholdFailure(t *testing.T) {
	configsDir, dataDir, statePath := writeProject(t)

	// Every submitter approves their own work: 100% non-conformance.
	data := "Submitter,Approver,Region\nAnn,Ann,North\nBob,Bob,North\n"
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "approvals.csv"), []byte(data), 0o644))

	out, err := execute(t, "run",
		"--configs-dir", configsDir,
		"--data-dir", dataDir,
		"--state-path", statePath,
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeded the error threshold")
	assert.Contains(t, out, "Overall: FAIL")
}

func TestCheckCommand(t *testing.T) {
	configsDir, _, _ := writeProject(t)

	out, err := execute(t, "check", "--configs-dir", configsDir)
	require.NoError(t, err)
	assert.Contains(t, out, "OK")

	// An invalid config flips the exit status
	require.NoError(t, os.WriteFile(filepath.Join(configsDir, "broken.yaml"), []byte("analytic_id: 9\n"), 0o644))
	out, err = execute(t, "check", "--configs-dir", configsDir)
	require.Error(t, err)
	assert.Contains(t, out, "analytic_name")
}

func TestListCommand(t *testing.T) {
	configsDir, _, _ := writeProject(t)

	out, err := execute(t, "list", "--configs-dir", configsDir)
	require.NoError(t, err)
	assert.Contains(t, out, "Approval checks")
	assert.Contains(t, out, "Region")
}
