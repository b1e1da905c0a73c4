package harness

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines a ruleset conformance scenario.
// Scenarios seed a fixture database, run a ruleset through the real runner,
// and assert on the resulting report and database state.
type Scenario struct {
	// Name uniquely identifies this scenario (also names the golden file).
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// RuleSetPath points to a CUE ruleset document, relative to the
	// scenario file location. Mutually exclusive with Builtin.
	RuleSetPath string `yaml:"ruleset,omitempty"`

	// RuleSetName selects a ruleset by name when the document defines
	// several. Optional when the document defines exactly one.
	RuleSetName string `yaml:"ruleset_name,omitempty"`

	// Builtin selects the builtin tags cleanup ruleset.
	Builtin bool `yaml:"builtin,omitempty"`

	// Seed contains SQL statements establishing the broken initial state.
	// Statements run in order against the fresh fixture schema.
	Seed []string `yaml:"seed,omitempty"`

	// Assertions validate the run report and final database state.
	// Supported types: rows_affected, total_affected, final_count, final_state
	Assertions []Assertion `yaml:"assertions"`

	// RunID is an optional fixed run ID. Defaults to DefaultRunID for
	// deterministic golden file comparison.
	RunID string `yaml:"run_id,omitempty"`

	// dir is the directory the scenario was loaded from, for resolving
	// RuleSetPath. Empty for inline scenarios.
	dir string
}

// Assertion validates the run report or final database state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "rows_affected": Check the affected count reported for one rule
	// - "total_affected": Check the run's total affected count
	// - "final_count": Count rows matching Where after the run
	// - "final_state": Query one row and verify expected column values
	Type string `yaml:"type"`

	// Rule is the rule index (used by rows_affected).
	Rule int `yaml:"rule,omitempty"`

	// Count is the expected count (rows_affected, total_affected,
	// final_count).
	Count int64 `yaml:"count"`

	// Table is the table to query (final_count, final_state).
	Table string `yaml:"table,omitempty"`

	// Where filters rows by column values (final_count, final_state).
	Where map[string]any `yaml:"where,omitempty"`

	// Expect contains expected column values (final_state).
	Expect map[string]any `yaml:"expect,omitempty"`
}

// LoadScenario reads and validates a scenario from a YAML file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario %s: %w", path, err)
	}

	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, fmt.Errorf("parsing scenario %s: %w", path, err)
	}
	scenario.dir = filepath.Dir(path)

	if err := scenario.validate(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return &scenario, nil
}

// validate checks structural requirements before execution.
func (s *Scenario) validate() error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Builtin && s.RuleSetPath != "" {
		return fmt.Errorf("builtin and ruleset are mutually exclusive")
	}
	if !s.Builtin && s.RuleSetPath == "" {
		return fmt.Errorf("either builtin or ruleset is required")
	}
	for i, a := range s.Assertions {
		switch a.Type {
		case "rows_affected", "total_affected":
			// count-only assertions
		case "final_count", "final_state":
			if a.Table == "" {
				return fmt.Errorf("assertion %d: table is required for %s", i, a.Type)
			}
			if a.Type == "final_state" && len(a.Expect) == 0 {
				return fmt.Errorf("assertion %d: expect is required for final_state", i)
			}
		default:
			return fmt.Errorf("assertion %d: unknown type %q", i, a.Type)
		}
	}
	return nil
}

// rulesetPath resolves RuleSetPath relative to the scenario file.
func (s *Scenario) rulesetPath() string {
	if s.RuleSetPath == "" || filepath.IsAbs(s.RuleSetPath) {
		return s.RuleSetPath
	}
	return filepath.Join(s.dir, s.RuleSetPath)
}

// runID returns the scenario's run ID, defaulting to DefaultRunID.
func (s *Scenario) runID() string {
	if s.RunID != "" {
		return s.RunID
	}
	return DefaultRunID
}
