// Package reference loads the lookup tables used by reference-backed
// rules such as title_based_approval: plain key-to-value maps sourced
// from two-column CSV files or inline configuration.
package reference

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/leapstack-labs/veritab/internal/analytic"
)

// Tables maps reference table names to their key-value contents.
type Tables map[string]map[string]string

// Load resolves every reference table an analytic declares. Relative
// file paths resolve against baseDir.
func Load(cfg *analytic.Config, baseDir string) (Tables, error) {
	tables := make(Tables, len(cfg.ReferenceData))
	for name, spec := range cfg.ReferenceData {
		switch {
		case len(spec.Values) > 0:
			tables[name] = spec.Values
		case spec.File != "":
			path := spec.File
			if !filepath.IsAbs(path) {
				path = filepath.Join(baseDir, path)
			}
			table, err := LoadCSV(path)
			if err != nil {
				return nil, fmt.Errorf("reference table %q: %w", name, err)
			}
			tables[name] = table
		}
	}
	return tables, nil
}

// LoadCSV reads a key-value table from a CSV file. The first column is
// the key, the second the value; the first record is treated as a
// header and skipped.
func LoadCSV(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open reference file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return readTable(f)
}

func readTable(r io.Reader) (map[string]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	table := make(map[string]string)
	first := true
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if first {
			first = false
			continue // header row
		}
		if len(record) < 2 {
			continue
		}
		key := strings.TrimSpace(record[0])
		if key == "" {
			continue
		}
		table[key] = strings.TrimSpace(record[1])
	}
	return table, nil
}
