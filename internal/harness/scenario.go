package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Scenario defines a model test scenario.
// A scenario instantiates models, drives them through a list of steps and
// asserts on the resulting trace and final values.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Specs lists CUE files or directories to load.
	// Paths are relative to the scenario file location.
	Specs []string `yaml:"specs,omitempty"`

	// Source is inline CUE compiled after Specs.
	Source string `yaml:"source,omitempty"`

	// Steps run in order against a fresh engine.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and state.
	// Supported types: trace_count, trace_order, digest_count, final_state,
	// notifications
	Assertions []Assertion `yaml:"assertions,omitempty"`

	// RunID stamps every trace record.
	// If empty, defaults to "test-run" so golden files are stable.
	RunID string `yaml:"run_id,omitempty"`

	// MaxPasses bounds consecutive scheduled passes. Zero keeps the engine
	// default.
	MaxPasses int `yaml:"max_passes,omitempty"`
}

// Step is one action of a scenario. Exactly one action field is set.
//
// Property references are "model.property".
type Step struct {
	// Set writes properties. Keys are applied in sorted order.
	Set map[string]any `yaml:"set,omitempty"`

	// Digest runs one explicit digest pass.
	Digest bool `yaml:"digest,omitempty"`

	// Flush runs deferred tasks (scheduled digests, async completions)
	// until none are left.
	Flush bool `yaml:"flush,omitempty"`

	// Configure calls SetConfiguration per model.
	Configure map[string]map[string]any `yaml:"configure,omitempty"`

	// Destroy destroys the named model.
	Destroy string `yaml:"destroy,omitempty"`

	// Listen registers a listener recording the model's deltas.
	Listen string `yaml:"listen,omitempty"`

	// Expect compares current property values.
	Expect map[string]any `yaml:"expect,omitempty"`

	// ExpectError is the error code the step must fail with. Valid on
	// set, digest, flush and configure steps.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Action returns the name of the step's action, or "" if none is set.
func (s Step) Action() string {
	if a := s.actions(); len(a) > 0 {
		return a[0]
	}
	return ""
}

func (s Step) actions() []string {
	var out []string
	if s.Set != nil {
		out = append(out, "set")
	}
	if s.Digest {
		out = append(out, "digest")
	}
	if s.Flush {
		out = append(out, "flush")
	}
	if s.Configure != nil {
		out = append(out, "configure")
	}
	if s.Destroy != "" {
		out = append(out, "destroy")
	}
	if s.Listen != "" {
		out = append(out, "listen")
	}
	if s.Expect != nil {
		out = append(out, "expect")
	}
	return out
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_count": Check a function was evaluated exactly Count times
	// - "trace_order": Check functions were first evaluated in order
	// - "digest_count": Check exactly Count digest passes were recorded
	// - "final_state": Check a model's final property values
	// - "notifications": Check the deltas a listened model received
	Type string `yaml:"type"`

	// Func is "model.label" (used by trace_count).
	Func string `yaml:"fn,omitempty"`

	// Completions counts async completions instead of evaluations
	// (used by trace_count).
	Completions bool `yaml:"completions,omitempty"`

	// Funcs is the expected order (used by trace_order).
	Funcs []string `yaml:"fns,omitempty"`

	// Count is the expected number of occurrences.
	Count int `yaml:"count,omitempty"`

	// Model names the model (used by final_state and notifications).
	Model string `yaml:"model,omitempty"`

	// Expect contains expected values (used by final_state).
	// Subset match - only specified properties are validated.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Deltas is the exact list of deltas (used by notifications).
	Deltas []map[string]any `yaml:"deltas,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceCount    = "trace_count"
	AssertTraceOrder    = "trace_order"
	AssertDigestCount   = "digest_count"
	AssertFinalState    = "final_state"
	AssertNotifications = "notifications"
)

// LoadScenario reads and parses a scenario YAML file.
// Spec paths are resolved relative to the file's directory.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving spec paths relative to the provided base path.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	for i, specPath := range scenario.Specs {
		if !filepath.IsAbs(specPath) && basePath != "" {
			scenario.Specs[i] = filepath.Join(basePath, specPath)
		}
	}

	if err := validateSpecPaths(scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return scenario, nil
}

// ParseScenario decodes and validates scenario YAML. Spec paths are not
// checked.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Specs) == 0 && strings.TrimSpace(s.Source) == "" {
		return fmt.Errorf("specs or source is required")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	if s.MaxPasses < 0 {
		return fmt.Errorf("max_passes must be non-negative")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

func validateSpecPaths(s *Scenario) error {
	for _, specPath := range s.Specs {
		if _, err := os.Stat(specPath); os.IsNotExist(err) {
			return fmt.Errorf("spec file not found: %s", specPath)
		}
	}
	return nil
}

// validateStep checks that a step has exactly one action and that its
// references are well formed.
func validateStep(index int, step Step) error {
	actions := step.actions()
	switch len(actions) {
	case 0:
		return fmt.Errorf("steps[%d]: no action (want one of set, digest, flush, configure, destroy, listen, expect)", index)
	case 1:
	default:
		return fmt.Errorf("steps[%d]: multiple actions %v", index, actions)
	}

	if step.ExpectError != "" {
		switch actions[0] {
		case "set", "digest", "flush", "configure":
		default:
			return fmt.Errorf("steps[%d]: expect_error is not valid on %s", index, actions[0])
		}
	}

	for _, refs := range []map[string]any{step.Set, step.Expect} {
		for ref := range refs {
			if _, _, err := splitRef(ref); err != nil {
				return fmt.Errorf("steps[%d]: %w", index, err)
			}
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceCount:
		if _, _, err := splitRef(a.Func); err != nil {
			return fmt.Errorf("assertions[%d]: trace_count: %w", index, err)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertTraceOrder:
		if len(a.Funcs) == 0 {
			return fmt.Errorf("assertions[%d]: fns list is required for trace_order", index)
		}
	case AssertDigestCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for digest_count", index)
		}
	case AssertFinalState:
		if a.Model == "" {
			return fmt.Errorf("assertions[%d]: model is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertNotifications:
		if a.Model == "" {
			return fmt.Errorf("assertions[%d]: model is required for notifications", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}

// splitRef splits "model.name" at the first dot.
func splitRef(ref string) (string, string, error) {
	model, name, ok := strings.Cut(ref, ".")
	if !ok || model == "" || name == "" {
		return "", "", fmt.Errorf("reference %q must be model.name", ref)
	}
	return model, name, nil
}
