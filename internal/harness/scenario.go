package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/patchwork/internal/host"
)

// Scenario defines one replay and what must hold afterwards.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Rules is a rule pack directory. Mutually exclusive with Plugins.
	Rules string `yaml:"rules,omitempty"`

	// Plugins is an inline CUE rule pack.
	Plugins string `yaml:"plugins,omitempty"`

	// Bundle is a recorded bundle file. Mutually exclusive with Modules.
	Bundle string `yaml:"bundle,omitempty"`

	// Modules is an inline bundle.
	Modules []host.ModuleSpec `yaml:"modules,omitempty"`

	// Assertions validate the outputs and the journal.
	Assertions []Assertion `yaml:"assertions"`
}

// Assertion validates one fact about a replay. Fields are used per type.
type Assertion struct {
	Type    string `yaml:"type"`
	Module  string `yaml:"module,omitempty"`
	Text    string `yaml:"text,omitempty"`
	State   string `yaml:"state,omitempty"`
	Owner   string `yaml:"owner,omitempty"`
	Outcome string `yaml:"outcome,omitempty"`
	Code    string `yaml:"code,omitempty"`
	// Count is an exact count for diagnostic; nil means at least one.
	Count *int `yaml:"count,omitempty"`
	// Lazy names a lazy request as plugin~name or plugin~index.
	Lazy string `yaml:"lazy,omitempty"`
}

// Assertion type constants.
const (
	AssertModuleText     = "module_text"
	AssertModuleContains = "module_contains"
	AssertModuleLacks    = "module_lacks"
	AssertModuleState    = "module_state"
	AssertAttempt        = "attempt"
	AssertDiagnostic     = "diagnostic"
	AssertNoDiagnostics  = "no_diagnostics"
	AssertLazy           = "lazy"
)

// LoadScenario reads and parses a scenario YAML file. Rules and Bundle
// paths are resolved relative to the file. Unknown fields are rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	s, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	base := filepath.Dir(path)
	if s.Rules != "" && !filepath.IsAbs(s.Rules) {
		s.Rules = filepath.Join(base, s.Rules)
	}
	if s.Bundle != "" && !filepath.IsAbs(s.Bundle) {
		s.Bundle = filepath.Join(base, s.Bundle)
	}

	if err := validatePaths(s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return s, nil
}

// ParseScenario decodes and validates scenario YAML. Paths are left as
// written.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	switch {
	case s.Rules == "" && s.Plugins == "":
		return fmt.Errorf("one of rules or plugins is required")
	case s.Rules != "" && s.Plugins != "":
		return fmt.Errorf("rules and plugins are mutually exclusive")
	}

	switch {
	case s.Bundle == "" && len(s.Modules) == 0:
		return fmt.Errorf("one of bundle or modules is required")
	case s.Bundle != "" && len(s.Modules) > 0:
		return fmt.Errorf("bundle and modules are mutually exclusive")
	}
	if len(s.Modules) > 0 {
		b := host.Bundle{Modules: s.Modules}
		if err := b.Validate(); err != nil {
			return err
		}
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validatePaths(s *Scenario) error {
	if s.Rules != "" {
		if _, err := os.Stat(s.Rules); os.IsNotExist(err) {
			return fmt.Errorf("rules directory not found: %s", s.Rules)
		}
	}
	if s.Bundle != "" {
		if _, err := os.Stat(s.Bundle); os.IsNotExist(err) {
			return fmt.Errorf("bundle file not found: %s", s.Bundle)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	require := func(ok bool, field string) error {
		if ok {
			return nil
		}
		return fmt.Errorf("assertions[%d]: %s is required for %s", index, field, a.Type)
	}

	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertModuleText:
		return require(a.Module != "", "module")
	case AssertModuleContains, AssertModuleLacks:
		if err := require(a.Module != "", "module"); err != nil {
			return err
		}
		return require(a.Text != "", "text")
	case AssertModuleState:
		if err := require(a.Module != "", "module"); err != nil {
			return err
		}
		return require(a.State != "", "state")
	case AssertAttempt:
		if err := require(a.Owner != "", "owner"); err != nil {
			return err
		}
		if err := require(a.Module != "", "module"); err != nil {
			return err
		}
		return require(a.Outcome != "", "outcome")
	case AssertDiagnostic:
		if err := require(a.Code != "", "code"); err != nil {
			return err
		}
		if a.Count != nil && *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for diagnostic", index)
		}
		return nil
	case AssertNoDiagnostics:
		return nil
	case AssertLazy:
		if err := require(a.Lazy != "", "lazy"); err != nil {
			return err
		}
		return require(a.State != "", "state")
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
}
