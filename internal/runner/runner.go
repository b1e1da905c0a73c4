// Package runner applies a ruleset to a store inside one transaction.
//
// The runner is the only component that mutates the target database. It
// executes rules strictly in declaration order, accumulates per-rule
// affected-row counts, and commits only if every rule succeeded. Any
// failure rolls the whole transaction back; the store is never left
// partially repaired.
package runner

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/roach88/mend/internal/rules"
	"github.com/roach88/mend/internal/store"
)

// RuleResult reports the outcome of one rule within a run.
type RuleResult struct {
	Index        int        `json:"index"`
	Kind         rules.Kind `json:"kind"`
	Description  string     `json:"description"`
	RowsAffected int64      `json:"rows_affected"`
}

// RunResult reports the outcome of a whole run.
type RunResult struct {
	RunID         string       `json:"run_id"`
	RuleSet       string       `json:"ruleset"`
	DryRun        bool         `json:"dry_run"`
	Results       []RuleResult `json:"results"`
	TotalAffected int64        `json:"total_affected"`
}

// Runner applies rulesets against a single store.
type Runner struct {
	store  *store.Store
	runIDs RunIDGenerator
}

// Option configures a Runner.
type Option func(*Runner)

// WithRunIDGenerator overrides the run ID generator (for deterministic
// tests). Default: UUIDv7Generator.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(r *Runner) {
		r.runIDs = g
	}
}

// New creates a Runner owning the given store for the duration of its runs.
func New(st *store.Store, opts ...Option) *Runner {
	r := &Runner{
		store:  st,
		runIDs: UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run applies the ruleset in declaration order inside one transaction.
//
// On success the transaction is committed and the result carries per-rule
// affected-row counts. On any rule failure the transaction is rolled back
// and a *RunError with code RULE_EXECUTION identifies the failing rule; a
// failed commit yields code COMMIT. In both failure cases the store state
// is exactly what it was before the run.
func (r *Runner) Run(ctx context.Context, set rules.RuleSet) (*RunResult, error) {
	result := &RunResult{
		RunID:   r.runIDs.Generate(),
		RuleSet: set.Name,
	}
	log := slog.With("run_id", result.RunID, "ruleset", set.Name)

	if err := r.store.DB().PingContext(ctx); err != nil {
		return nil, &RunError{
			Code:      ErrCodeConnection,
			Message:   "store unreachable",
			RuleIndex: -1,
			Err:       err,
		}
	}

	tx, err := r.store.DB().BeginTx(ctx, nil)
	if err != nil {
		return nil, &RunError{
			Code:      ErrCodeConnection,
			Message:   "begin transaction",
			RuleIndex: -1,
			Err:       err,
		}
	}

	for i, rule := range set.Rules {
		affected, err := applyRule(ctx, tx, rule)
		if err != nil {
			// Rollback errors are logged, not returned: the rule error is
			// the actionable one, and an aborted connection rolls back the
			// transaction regardless.
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Error("rollback failed", "error", rbErr)
			}
			log.Warn("run aborted", "rule", i, "error", err)
			return nil, &RunError{
				Code:            ErrCodeRuleExecution,
				Message:         "rule failed",
				RuleIndex:       i,
				RuleDescription: rule.Describe(),
				Err:             err,
			}
		}

		result.Results = append(result.Results, RuleResult{
			Index:        i,
			Kind:         rule.Kind(),
			Description:  rule.Describe(),
			RowsAffected: affected,
		})
		result.TotalAffected += affected
		log.Debug("rule applied", "rule", i, "kind", rule.Kind(), "rows_affected", affected)
	}

	if err := tx.Commit(); err != nil {
		return nil, &RunError{
			Code:      ErrCodeCommit,
			Message:   "commit failed",
			RuleIndex: -1,
			Err:       err,
		}
	}

	log.Info("run committed", "rules", len(set.Rules), "total_affected", result.TotalAffected)
	return result, nil
}

// Plan reports how many rows each rule would affect, without writing.
//
// Counts are taken inside a transaction for a stable read view and the
// transaction is always rolled back. Counts are estimates in one respect:
// a mutation earlier in the set can change what later rules would match,
// and Plan observes the unrepaired state for every rule.
func (r *Runner) Plan(ctx context.Context, set rules.RuleSet) (*RunResult, error) {
	result := &RunResult{
		RunID:   r.runIDs.Generate(),
		RuleSet: set.Name,
		DryRun:  true,
	}

	if err := r.store.DB().PingContext(ctx); err != nil {
		return nil, &RunError{
			Code:      ErrCodeConnection,
			Message:   "store unreachable",
			RuleIndex: -1,
			Err:       err,
		}
	}

	tx, err := r.store.DB().BeginTx(ctx, nil)
	if err != nil {
		return nil, &RunError{
			Code:      ErrCodeConnection,
			Message:   "begin transaction",
			RuleIndex: -1,
			Err:       err,
		}
	}
	defer tx.Rollback() // Plan never commits

	for i, rule := range set.Rules {
		var affected int64
		for _, stmt := range rule.CountStatements() {
			var n int64
			if err := tx.QueryRowContext(ctx, stmt.SQL, stmt.Args...).Scan(&n); err != nil {
				return nil, &RunError{
					Code:            ErrCodeRuleExecution,
					Message:         "count failed",
					RuleIndex:       i,
					RuleDescription: rule.Describe(),
					Err:             err,
				}
			}
			affected += n
		}

		result.Results = append(result.Results, RuleResult{
			Index:        i,
			Kind:         rule.Kind(),
			Description:  rule.Describe(),
			RowsAffected: affected,
		})
		result.TotalAffected += affected
	}

	return result, nil
}

// applyRule executes one rule's statements and returns the summed
// affected-row count.
func applyRule(ctx context.Context, tx *sql.Tx, rule rules.Rule) (int64, error) {
	var total int64
	for _, stmt := range rule.Statements() {
		res, err := tx.ExecContext(ctx, stmt.SQL, stmt.Args...)
		if err != nil {
			return 0, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}
