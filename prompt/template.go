// Package prompt manages versioned prompt templates. The active
// template lives in the index database and is cached with a short TTL
// so edits roll out without a restart.
package prompt

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default_template.yaml
var defaultTemplateYAML []byte

// Template is a versioned prompt template with {context} and
// {question} placeholders.
type Template struct {
	Version  string `json:"version" yaml:"version"`
	Template string `json:"template" yaml:"template"`
}

// Render substitutes the context and question into the template.
func (t Template) Render(context, question string) string {
	return strings.NewReplacer(
		"{context}", context,
		"{question}", question,
	).Replace(t.Template)
}

// Validate checks the template is usable.
func (t Template) Validate() error {
	if t.Version == "" {
		return fmt.Errorf("prompt: template version is required")
	}
	if !strings.Contains(t.Template, "{question}") {
		return fmt.Errorf("prompt: template must contain a {question} placeholder")
	}
	return nil
}

// Default returns the built-in template used when none is configured.
func Default() Template {
	var t Template
	// The embedded template is static and known-good.
	if err := yaml.Unmarshal(defaultTemplateYAML, &t); err != nil {
		panic(fmt.Sprintf("prompt: invalid embedded template: %v", err))
	}
	return t
}
