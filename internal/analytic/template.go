package analytic

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// TemplateParameter describes one substitutable value in a template.
type TemplateParameter struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Default     string `yaml:"default"`
}

// templateHeader is the metadata block read from a template document.
type templateHeader struct {
	TemplateID          string              `yaml:"template_id"`
	TemplateName        string              `yaml:"template_name"`
	TemplateDescription string              `yaml:"template_description"`
	TemplateParameters  []TemplateParameter `yaml:"template_parameters"`
}

// Template is a parameterised configuration document: an analytic
// config with {param} placeholders plus the parameter declarations.
type Template struct {
	ID          string
	Name        string
	Description string
	Parameters  []TemplateParameter
	Path        string

	raw []byte
}

// LoadTemplate reads a template document.
func LoadTemplate(path string) (*Template, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template: %w", err)
	}

	var header templateHeader
	if err := yaml.Unmarshal(raw, &header); err != nil {
		return nil, fmt.Errorf("failed to parse template %s: %w", path, err)
	}
	if header.TemplateID == "" {
		return nil, &ConfigError{Path: "template_id", Message: "required field is missing"}
	}

	return &Template{
		ID:          header.TemplateID,
		Name:        header.TemplateName,
		Description: header.TemplateDescription,
		Parameters:  header.TemplateParameters,
		Path:        path,
		raw:         raw,
	}, nil
}

// placeholderPattern matches {param_name} placeholders.
var placeholderPattern = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Instantiate substitutes params into the template and validates the
// result as a full configuration. Parameters fall back to their
// declared defaults; an unresolved placeholder is an error.
func (t *Template) Instantiate(params map[string]string) (*Config, []byte, error) {
	values := make(map[string]string, len(params))
	for _, p := range t.Parameters {
		if p.Default != "" {
			values[p.Name] = p.Default
		}
	}
	for k, v := range params {
		values[k] = v
	}

	var unresolved []string
	out := placeholderPattern.ReplaceAllStringFunc(string(t.raw), func(match string) string {
		name := match[1 : len(match)-1]
		if v, ok := values[name]; ok {
			return v
		}
		unresolved = append(unresolved, name)
		return match
	})
	if len(unresolved) > 0 {
		sort.Strings(unresolved)
		return nil, nil, fmt.Errorf("unresolved template parameter(s): %s", strings.Join(dedupe(unresolved), ", "))
	}

	// Strip the template metadata so the result is a plain analytic
	// configuration.
	var doc map[string]any
	if err := yaml.Unmarshal([]byte(out), &doc); err != nil {
		return nil, nil, fmt.Errorf("instantiated template is not valid YAML: %w", err)
	}
	delete(doc, "template_id")
	delete(doc, "template_name")
	delete(doc, "template_description")
	delete(doc, "template_parameters")

	rendered, err := yaml.Marshal(doc)
	if err != nil {
		return nil, nil, err
	}

	cfg, err := ParseBytes(rendered)
	if err != nil {
		return nil, nil, err
	}
	return cfg, rendered, nil
}

func dedupe(sorted []string) []string {
	var out []string
	for i, s := range sorted {
		if i == 0 || s != sorted[i-1] {
			out = append(out, s)
		}
	}
	return out
}
