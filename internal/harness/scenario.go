package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/swizzle/internal/ir"
)

// Scenario defines an interception test scenario.
// A scenario compiles a program, installs interceptions (possibly from many
// goroutines at once), sends messages, and asserts on the resulting trace,
// dispatch tables and journal.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Specs lists CUE program files, compiled together.
	Specs []string `yaml:"specs"`

	// RunID fixes the run ID for golden comparison.
	// If empty, testutil.DefaultRunID is used.
	RunID string `yaml:"run_id,omitempty"`

	// SkipBoot leaves the program's declared intercepts uninstalled.
	SkipBoot bool `yaml:"skip_boot,omitempty"`

	// MaxDepth overrides the engine call depth limit.
	MaxDepth int `yaml:"max_depth,omitempty"`

	// Install runs after boot, in order.
	Install []InstallStep `yaml:"install,omitempty"`

	// Flow contains the sends, in order, with optional expectations.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the final trace, tables and journal.
	Assertions []Assertion `yaml:"assertions"`
}

// InstallStep requests one interception.
type InstallStep struct {
	Class    string `yaml:"class"`
	Original string `yaml:"original"`
	Wrapper  string `yaml:"wrapper"`

	// Concurrency issues the same request from N goroutines at once.
	// Zero or one means a single call.
	Concurrency int `yaml:"concurrency,omitempty"`

	// ExpectError is the error code every call must fail with
	// (e.g. WRAPPER_CONFLICT). Empty means every call must succeed.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// FlowStep sends one message to a fresh instance.
type FlowStep struct {
	// Send is "Class.selector".
	Send string `yaml:"send"`

	// Args are the positional arguments.
	Args []any `yaml:"args,omitempty"`

	// Expect validates the outcome. If nil, the send must succeed.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// Target splits Send into class and selector.
func (s FlowStep) Target() (class, selector string, ok bool) {
	class, selector, ok = strings.Cut(s.Send, ".")
	if !ok || class == "" || selector == "" {
		return "", "", false
	}
	return class, selector, true
}

// ExpectClause specifies the expected outcome of a send.
type ExpectClause struct {
	// Result is the expected return value. If nil, it is not checked.
	Result any `yaml:"result,omitempty"`

	// Error is the expected error code (e.g. UNRECOGNIZED_SELECTOR).
	Error string `yaml:"error,omitempty"`
}

// EventPattern matches trace events. Empty fields match anything.
type EventPattern struct {
	Kind           string `yaml:"kind,omitempty"`
	Receiver       string `yaml:"receiver,omitempty"`
	Selector       string `yaml:"selector,omitempty"`
	Implementation string `yaml:"implementation,omitempty"`
	Message        string `yaml:"message,omitempty"`
	Depth          *int   `yaml:"depth,omitempty"`
	Value          any    `yaml:"value,omitempty"`
}

// Matches reports whether ev satisfies every set field of p.
func (p EventPattern) Matches(ev ir.TraceEvent) bool {
	if p.Kind != "" && p.Kind != string(ev.Kind) {
		return false
	}
	if p.Receiver != "" && p.Receiver != ev.Receiver {
		return false
	}
	if p.Selector != "" && p.Selector != ev.Selector {
		return false
	}
	if p.Implementation != "" && p.Implementation != ev.Implementation {
		return false
	}
	if p.Message != "" && p.Message != ev.Message {
		return false
	}
	if p.Depth != nil && *p.Depth != ev.Depth {
		return false
	}
	if p.Value != nil {
		want, err := ir.FromGo(p.Value)
		if err != nil || !ir.Equal(want, ev.Value) {
			return false
		}
	}
	return true
}

func (p EventPattern) isZero() bool {
	return p.Kind == "" && p.Receiver == "" && p.Selector == "" &&
		p.Implementation == "" && p.Message == "" && p.Depth == nil && p.Value == nil
}

// String renders the set fields, for failure messages.
func (p EventPattern) String() string {
	var parts []string
	add := func(k, v string) {
		if v != "" {
			parts = append(parts, k+"="+v)
		}
	}
	add("kind", p.Kind)
	add("receiver", p.Receiver)
	add("selector", p.Selector)
	add("implementation", p.Implementation)
	add("message", p.Message)
	if p.Depth != nil {
		parts = append(parts, fmt.Sprintf("depth=%d", *p.Depth))
	}
	if p.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", p.Value))
	}
	if len(parts) == 0 {
		return "{any}"
	}
	return "{" + strings.Join(parts, " ") + "}"
}

// Assertion validates trace, dispatch or journal state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": some event matches the inline pattern
	// - "trace_order": Events match in order (gaps allowed)
	// - "trace_count": exactly Count events match the inline pattern
	// - "log_count": exactly Count log events (optionally with Message)
	// - "dispatch": Class resolves Selector to Implementation
	// - "final_state": query a journal table and verify expected values
	Type string `yaml:"type"`

	EventPattern `yaml:",inline"`

	// Events is the expected event order (used by trace_order).
	Events []EventPattern `yaml:"events,omitempty"`

	// Count is the expected number of matches (trace_count, log_count).
	Count int `yaml:"count,omitempty"`

	// Class is the class whose table is checked (used by dispatch).
	Class string `yaml:"class,omitempty"`

	// Local, if set, also checks where the binding lives (used by dispatch).
	Local *bool `yaml:"local,omitempty"`

	// Table is the journal table name (used by final_state).
	Table string `yaml:"table,omitempty"`

	// Where specifies query filters (used by final_state).
	Where map[string]any `yaml:"where,omitempty"`

	// Expect contains expected column values (used by final_state).
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertLogCount      = "log_count"
	AssertDispatch      = "dispatch"
	AssertFinalState    = "final_state"
)

// LoadScenario reads and parses a scenario YAML file. Spec paths are
// resolved relative to the scenario file's directory.
// Returns an error if the file doesn't exist, is malformed, contains
// unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving spec paths relative to basePath.
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

	if err := checkSpecFiles(scenario.Specs); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return scenario, nil
}

// ParseScenario decodes scenario YAML with strict field checking
// (catches typos like "assertion:" vs "assertions:").
func ParseScenario(data []byte) (*Scenario, error) {
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

func checkSpecFiles(paths []string) error {
	for _, specPath := range paths {
		if _, err := os.Stat(specPath); os.IsNotExist(err) {
			return fmt.Errorf("spec file not found: %s", specPath)
		}
	}
	return nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Specs) == 0 {
		return fmt.Errorf("specs list is required and must be non-empty")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	if s.MaxDepth < 0 {
		return fmt.Errorf("max_depth must be non-negative")
	}

	for i, step := range s.Install {
		if step.Class == "" || step.Original == "" || step.Wrapper == "" {
			return fmt.Errorf("install[%d]: class, original and wrapper are required", i)
		}
		if step.Concurrency < 0 {
			return fmt.Errorf("install[%d]: concurrency must be non-negative", i)
		}
	}

	for i, step := range s.Flow {
		if _, _, ok := step.Target(); !ok {
			return fmt.Errorf("flow[%d]: send must be Class.selector, got %q", i, step.Send)
		}
		if step.Expect != nil && step.Expect.Result != nil && step.Expect.Error != "" {
			return fmt.Errorf("flow[%d].expect: result and error are mutually exclusive", i)
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
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
	case AssertTraceContains:
		if a.EventPattern.isZero() {
			return fmt.Errorf("assertions[%d]: trace_contains needs at least one event field", index)
		}
	case AssertTraceOrder:
		if len(a.Events) < 2 {
			return fmt.Errorf("assertions[%d]: events list with at least two entries is required for trace_order", index)
		}
	case AssertTraceCount, AssertLogCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertDispatch:
		if a.Class == "" || a.Selector == "" || a.Implementation == "" {
			return fmt.Errorf("assertions[%d]: class, selector and implementation are required for dispatch", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
