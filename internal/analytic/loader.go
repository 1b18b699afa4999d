package analytic

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	"github.com/leapstack-labs/veritab/pkg/rules"
)

// LoadFile loads and validates one analytic configuration.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg, err := decode(k)
	if err != nil {
		return nil, fmt.Errorf("unable to decode config %s: %w", path, err)
	}
	cfg.Path = path

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// ParseBytes loads and validates a configuration document held in
// memory (an instantiated template).
func ParseBytes(doc []byte) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(doc), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg, err := decode(k)
	if err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode unmarshals the loaded tree. Decoding is weakly typed so
// analytic_id may be written as an integer.
func decode(k *koanf.Koanf) (*Config, error) {
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           &cfg,
			TagName:          "koanf",
			WeaklyTypedInput: true,
		},
	}); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDir loads every *.yaml / *.yml analytic configuration in dir,
// keyed by analytic id. Invalid configs are reported and skipped.
func LoadDir(dir string, logger *slog.Logger) (map[string]*Config, []error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, []error{fmt.Errorf("failed to read config directory: %w", err)}
	}

	configs := make(map[string]*Config)
	var errs []error
	for _, entry := range entries {
		if entry.IsDir() || !isYAML(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		cfg, err := LoadFile(path)
		if err != nil {
			logger.Warn("skipping invalid config", "path", path, "error", err)
			errs = append(errs, err)
			continue
		}
		if prev, dup := configs[cfg.AnalyticID]; dup {
			errs = append(errs, fmt.Errorf("%s: analytic id %s already defined in %s", path, cfg.AnalyticID, prev.Path))
			continue
		}
		configs[cfg.AnalyticID] = cfg
		logger.Debug("loaded analytic config", "analytic_id", cfg.AnalyticID, "path", path)
	}
	return configs, errs
}

func isYAML(name string) bool {
	return strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")
}

// Validate enforces the structural invariants: required fields, known
// rules with well-formed parameters, and every referenced column
// declared on the data source.
func Validate(cfg *Config) error {
	if cfg.AnalyticID == "" {
		return &ConfigError{Path: "analytic_id", Message: "required field is missing"}
	}
	if cfg.AnalyticName == "" {
		return &ConfigError{Path: "analytic_name", Message: "required field is missing"}
	}
	if cfg.DataSource == nil && cfg.Source == nil {
		return &ConfigError{Path: "data_source", Message: "either data_source or source must be declared"}
	}
	if cfg.DataSource != nil && len(cfg.DataSource.RequiredFields) == 0 {
		return &ConfigError{Path: "data_source.required_fields", Message: "at least one required column must be declared"}
	}
	if cfg.Source != nil && cfg.DataSource == nil && len(cfg.Source.RequiredColumns) == 0 {
		return &ConfigError{Path: "source.required_columns", Message: "at least one required column must be declared"}
	}
	if len(cfg.Validations) == 0 {
		return &ConfigError{Path: "validations", Message: "at least one validation is required"}
	}
	if cfg.Thresholds.ErrorPercentage < 0 || cfg.Thresholds.ErrorPercentage > 100 {
		return &ConfigError{Path: "thresholds.error_percentage", Message: "must be between 0 and 100"}
	}
	if cfg.Reporting.GroupBy == "" {
		return &ConfigError{Path: "reporting.group_by", Message: "required field is missing"}
	}

	declared := make(map[string]bool)
	for _, name := range cfg.RequiredColumns() {
		declared[name] = true
	}

	if !declared[cfg.Reporting.GroupBy] {
		return &ConfigError{
			Path:    "reporting.group_by",
			Message: fmt.Sprintf("column %q is not declared as a required column", cfg.Reporting.GroupBy),
		}
	}

	for i, v := range cfg.Validations {
		path := fmt.Sprintf("validations[%d]", i)
		if v.Rule == "" {
			return &ConfigError{Path: path + ".rule", Message: "required field is missing"}
		}
		if !rules.IsRegistered(v.Rule) {
			return &ConfigError{
				Path:    path + ".rule",
				Message: fmt.Sprintf("unknown rule %q (known: %s)", v.Rule, strings.Join(rules.List(), ", ")),
			}
		}
		columns, err := rules.ValidateParams(v.Rule, v.Parameters)
		if err != nil {
			return &ConfigError{Path: path + ".parameters", Message: err.Error()}
		}
		for _, col := range columns {
			if !declared[col] {
				return &ConfigError{
					Path:    path + ".parameters",
					Message: fmt.Sprintf("column %q is not declared as a required column", col),
				}
			}
		}
	}

	for name, ref := range cfg.ReferenceData {
		if ref.File == "" && len(ref.Values) == 0 {
			return &ConfigError{
				Path:    "reference_data." + name,
				Message: "either file or values must be provided",
			}
		}
	}

	return nil
}
