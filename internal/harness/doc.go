// Package harness provides scenario-based conformance testing for repair
// rulesets.
//
// A scenario seeds a fresh fixture database with deliberately broken rows,
// applies a ruleset through the real runner, and asserts on the run report
// and the final database state. Scenarios double as executable documentation
// of what each ruleset repairs.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	ruleset: rulesets/cleanup.cue   # path relative to the scenario file
//	builtin: false                  # or true to use the builtin ruleset
//	seed:
//	  - "INSERT INTO entries (id, version, created) VALUES ('e1', 0, 1516382882521)"
//	assertions:
//	  - type: rows_affected
//	    rule: 0
//	    count: 1
//	  - type: final_count
//	    table: tags
//	    where: { id: "newtag" }
//	    count: 1
//	  - type: final_state
//	    table: entries
//	    where: { id: "e1", version: 0 }
//	    expect: { created: 1516382882 }
//
// # Assertion Types
//
//   - rows_affected: Verifies the affected-row count reported for one rule
//   - total_affected: Verifies the run's total affected-row count
//   - final_count: Counts rows matching a where clause after the run
//   - final_state: Queries a single row and verifies expected column values
//
// # Deterministic Testing
//
// Every scenario runs against a fresh fixture database with a fixed run ID,
// so repeated executions produce identical reports. Golden files (see
// RunWithGolden) pin the canonical JSON serialization of the report.
package harness
