package harness

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/mend/internal/compiler"
	"github.com/roach88/mend/internal/rules"
	"github.com/roach88/mend/internal/runner"
	"github.com/roach88/mend/internal/store"
	"github.com/roach88/mend/internal/testutil"
)

// Harness executes scenarios against fresh fixture databases.
type Harness struct {
	// KeepDatabase prevents fixture cleanup, for debugging failed runs.
	KeepDatabase bool
}

// New creates a scenario harness.
func New() *Harness {
	return &Harness{}
}

// RunFile loads a scenario from a YAML file and runs it.
func (h *Harness) RunFile(ctx context.Context, path string) (*Result, error) {
	scenario, err := LoadScenario(path)
	if err != nil {
		return nil, err
	}
	return h.Run(ctx, scenario)
}

// Run executes a scenario: create a fixture database, seed it, run the
// ruleset through the runner, and evaluate the assertions.
func (h *Harness) Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	set, err := h.resolveRuleSet(scenario)
	if err != nil {
		return nil, err
	}

	dbPath, cleanup, err := h.createFixture(scenario)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	st, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening fixture: %w", err)
	}
	defer st.Close()

	run := runner.New(st, runner.WithRunIDGenerator(runner.NewFixedGenerator(scenario.runID())))
	report, err := run.Run(ctx, set)
	if err != nil {
		return nil, fmt.Errorf("running ruleset: %w", err)
	}

	result := &Result{Pass: true, Report: report}
	for i, assertion := range scenario.Assertions {
		if err := evaluateAssertion(ctx, st.DB(), report, &assertion); err != nil {
			result.Pass = false
			result.Errors = append(result.Errors, fmt.Errorf("assertion %d: %w", i, err))
		}
	}
	return result, nil
}

// resolveRuleSet loads the scenario's ruleset, either the builtin set or
// a compiled CUE document.
func (h *Harness) resolveRuleSet(scenario *Scenario) (rules.RuleSet, error) {
	if scenario.Builtin {
		return rules.Builtin(), nil
	}

	path := scenario.rulesetPath()
	data, err := os.ReadFile(path)
	if err != nil {
		return rules.RuleSet{}, fmt.Errorf("reading ruleset %s: %w", path, err)
	}

	cctx := cuecontext.New()
	value := cctx.CompileBytes(data)
	if value.Err() != nil {
		return rules.RuleSet{}, fmt.Errorf("parsing ruleset %s: %w", path, value.Err())
	}

	setsVal := value.LookupPath(cue.ParsePath("ruleset"))
	if !setsVal.Exists() {
		return rules.RuleSet{}, fmt.Errorf("ruleset %s: no ruleset declarations found", path)
	}
	iter, err := setsVal.Fields()
	if err != nil {
		return rules.RuleSet{}, fmt.Errorf("ruleset %s: iterating rulesets: %w", path, err)
	}
	var sets []rules.RuleSet
	for iter.Next() {
		set, compileErr := compiler.CompileRuleSet(iter.Value())
		if compileErr != nil {
			return rules.RuleSet{}, fmt.Errorf("compiling ruleset %s: %w", path, compileErr)
		}
		sets = append(sets, *set)
	}

	set, err := pickRuleSet(sets, scenario.RuleSetName)
	if err != nil {
		return rules.RuleSet{}, fmt.Errorf("ruleset %s: %w", path, err)
	}

	if errs := rules.Validate(set); len(errs) > 0 {
		return rules.RuleSet{}, fmt.Errorf("ruleset %s is invalid: %s", set.Name, errs[0].Message)
	}
	return set, nil
}

// pickRuleSet selects one ruleset by name, or the only one present.
func pickRuleSet(sets []rules.RuleSet, name string) (rules.RuleSet, error) {
	if name != "" {
		for _, set := range sets {
			if set.Name == name {
				return set, nil
			}
		}
		return rules.RuleSet{}, fmt.Errorf("no ruleset named %q", name)
	}
	if len(sets) != 1 {
		return rules.RuleSet{}, fmt.Errorf("document defines %d rulesets, ruleset_name is required", len(sets))
	}
	return sets[0], nil
}

// createFixture builds a temp database with the fixture schema and seed
// statements applied. Returns the path and a cleanup func.
func (h *Harness) createFixture(scenario *Scenario) (string, func(), error) {
	dir, err := os.MkdirTemp("", "mend-harness-*")
	if err != nil {
		return "", nil, fmt.Errorf("creating fixture dir: %w", err)
	}
	cleanup := func() {
		if !h.KeepDatabase {
			os.RemoveAll(dir)
		}
	}

	dbPath := filepath.Join(dir, "fixture.db")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		cleanup()
		return "", nil, fmt.Errorf("creating fixture database: %w", err)
	}
	defer db.Close()

	for _, stmt := range testutil.SchemaStatements() {
		if _, err := db.Exec(stmt); err != nil {
			cleanup()
			return "", nil, fmt.Errorf("applying fixture schema: %w", err)
		}
	}
	for i, stmt := range scenario.Seed {
		if _, err := db.Exec(stmt); err != nil {
			cleanup()
			return "", nil, fmt.Errorf("seed statement %d: %w", i, err)
		}
	}
	return dbPath, cleanup, nil
}
