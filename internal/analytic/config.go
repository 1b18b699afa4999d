// Package analytic provides the validation configuration model: the
// descriptor schema, the YAML loader, structural validation, and
// template instantiation.
package analytic

import "fmt"

// ConfigError reports a structural or referential violation in a
// configuration. Path is the offending field, dotted from the
// document root.
type ConfigError struct {
	Path    string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error at %s: %s", e.Path, e.Message)
}

// Validation is one rule descriptor.
type Validation struct {
	Rule        string         `koanf:"rule"`
	Description string         `koanf:"description"`
	Rationale   string         `koanf:"rationale"`
	Parameters  map[string]any `koanf:"parameters"`
}

// Thresholds holds the per-group failure bounds.
type Thresholds struct {
	// ErrorPercentage is the maximum acceptable non-conformance
	// percentage per group, 0-100.
	ErrorPercentage float64 `koanf:"error_percentage"`
}

// Reporting configures result aggregation.
type Reporting struct {
	GroupBy       string   `koanf:"group_by"`
	SummaryFields []string `koanf:"summary_fields"`
}

// DataSource declares the dataset an analytic runs against (current
// format).
type DataSource struct {
	Name           string   `koanf:"name"`
	RequiredFields []string `koanf:"required_fields"`
}

// Source is the legacy data source block.
type Source struct {
	Name            string   `koanf:"name"`
	RequiredColumns []string `koanf:"required_columns"`
}

// ReferenceSpec declares one reference table: either a CSV file of
// key,value pairs or inline values.
type ReferenceSpec struct {
	File   string            `koanf:"file"`
	Values map[string]string `koanf:"values"`
}

// Config is one analytic: a full validation pipeline identified by
// analytic_id.
type Config struct {
	AnalyticID          string                   `koanf:"analytic_id"`
	AnalyticName        string                   `koanf:"analytic_name"`
	AnalyticDescription string                   `koanf:"analytic_description"`
	DataSource          *DataSource              `koanf:"data_source"`
	Source              *Source                  `koanf:"source"`
	Validations         []Validation             `koanf:"validations"`
	Thresholds          Thresholds               `koanf:"thresholds"`
	Reporting           Reporting                `koanf:"reporting"`
	ReferenceData       map[string]ReferenceSpec `koanf:"reference_data"`
	ReportMetadata      map[string]string        `koanf:"report_metadata"`

	// Path is the file the config was loaded from, for error reporting.
	Path string `koanf:"-"`
}

// RequiredColumns returns the declared dataset columns, whichever
// source block carries them.
func (c *Config) RequiredColumns() []string {
	if c.DataSource != nil {
		return c.DataSource.RequiredFields
	}
	if c.Source != nil {
		return c.Source.RequiredColumns
	}
	return nil
}

// DataSourceName returns the declared dataset name.
func (c *Config) DataSourceName() string {
	if c.DataSource != nil {
		return c.DataSource.Name
	}
	if c.Source != nil {
		return c.Source.Name
	}
	return ""
}
