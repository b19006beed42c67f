package prompt

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed examples.yaml
var examplesYAML []byte

// Example is one worked input→output pair embedded in the prompt.
type Example struct {
	Input  string         `yaml:"input"`
	Output map[string]any `yaml:"output"`
}

var examples = mustLoadExamples()

func mustLoadExamples() []Example {
	var exs []Example
	if err := yaml.Unmarshal(examplesYAML, &exs); err != nil {
		panic(fmt.Sprintf("prompt: bad embedded examples: %v", err))
	}
	return exs
}

// Examples returns the worked example set, for tests and dashboards.
func Examples() []Example {
	return examples
}
