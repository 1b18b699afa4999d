package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ReadCSV loads a dataset from a CSV file. The first record is the
// column schema.
func ReadCSV(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer func() { _ = f.Close() }()

	d, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return d, nil
}

// Read loads a dataset from CSV content. Cell types are inferred per
// cell: empty cells are missing, then number, date, Boolean, and
// finally string.
func Read(r io.Reader) (*Dataset, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty input: missing header row")
	}
	if err != nil {
		return nil, err
	}

	columns := make([]Column, len(header))
	for i, name := range header {
		columns[i] = Column{Name: strings.TrimSpace(name)}
	}

	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		for i := range columns {
			var cell string
			if i < len(record) {
				cell = record[i]
			}
			columns[i].Values = append(columns[i].Values, inferValue(cell))
		}
	}

	return New(columns...)
}

// inferValue types a raw CSV cell.
func inferValue(cell string) Value {
	s := strings.TrimSpace(cell)
	if s == "" {
		return Missing
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return Number(f)
	}
	if t, ok := ParseDate(s); ok {
		return Date(t)
	}
	switch strings.ToUpper(s) {
	case "TRUE":
		return Bool(true)
	case "FALSE":
		return Bool(false)
	}
	return String(s)
}
