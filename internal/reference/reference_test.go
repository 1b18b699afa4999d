package reference_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/leapstack-labs/veritab/internal/analytic"
	"github.com/leapstack-labs/veritab/internal/reference"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCSV(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "titles.csv")
	content := "Name,Title\nAlice,Manager\nBob , Analyst \n\nNoValue\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	table, err := reference.LoadCSV(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"Alice": "Manager",
		"Bob":   "Analyst",
	}, table)
}

func TestLoadFromConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "titles.csv"),
		[]byte("Name,Title\nAlice,Manager\n"), 0o644))

	cfg := &analytic.Config{
		ReferenceData: map[string]analytic.ReferenceSpec{
			"titles":  {File: "titles.csv"},
			"regions": {Values: map[string]string{"North": "N"}},
		},
	}

	tables, err := reference.Load(cfg, dir)
	require.NoError(t, err)
	assert.Equal(t, "Manager", tables["titles"]["Alice"])
	assert.Equal(t, "N", tables["regions"]["North"])
}

func TestLoadMissingFile(t *testing.T) {
	cfg := &analytic.Config{
		ReferenceData: map[string]analytic.ReferenceSpec{
			"titles": {File: "does-not-exist.csv"},
		},
	}
	_, err := reference.Load(cfg, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `reference table "titles"`)
}
