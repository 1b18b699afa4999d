package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// configFileUsed tracks the config file loaded by the last Load call.
var configFileUsed string

// findConfigFile finds the config file to use.
// Priority: explicit path > veritab.yaml > veritab.yml
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range []string{"veritab.yaml", "veritab.yml"} {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// Load loads configuration from file, environment variables, and
// flags. Precedence (highest to lowest): flags > env vars > config
// file > defaults.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults
	if err := k.Load(confmap.Provider(map[string]interface{}{
		"configs_dir":   DefaultConfigsDir,
		"data_dir":      DefaultDataDir,
		"templates_dir": DefaultTemplatesDir,
		"state_path":    DefaultStateFile,
		"output":        DefaultOutput,
		"verbose":       false,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file
	configFileUsed = findConfigFile(cfgFile)
	if configFileUsed != "" {
		if err := k.Load(file.Provider(configFileUsed), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFileUsed, err)
		}
	}

	// 3. Environment variables (VERITAB_ prefix)
	// Transform: VERITAB_CONFIGS_DIR -> configs_dir
	if err := k.Load(env.Provider("VERITAB_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "VERITAB_"))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags (highest priority)
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			// Transform kebab-case to snake_case for config keys
			key := strings.ReplaceAll(f.Name, "-", "_")
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Resolve paths relative to the config file's directory so a run
	// from elsewhere in the tree still finds the project layout.
	if configFileUsed != "" {
		base := filepath.Dir(configFileUsed)
		cfg.ConfigsDir = resolveRelative(cfg.ConfigsDir, base)
		cfg.DataDir = resolveRelative(cfg.DataDir, base)
		cfg.TemplatesDir = resolveRelative(cfg.TemplatesDir, base)
		cfg.StatePath = resolveRelative(cfg.StatePath, base)
	}

	return &cfg, nil
}

// GetConfigFileUsed returns the path to the config file being used,
// if any.
func GetConfigFileUsed() string {
	return configFileUsed
}

// resolveRelative resolves path against base unless it is empty or
// already absolute.
func resolveRelative(path, base string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}
