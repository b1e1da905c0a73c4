package harness

import "github.com/roach88/mend/internal/runner"

// DefaultRunID is the run ID used when a scenario does not fix its own.
// A stable default keeps golden files deterministic.
const DefaultRunID = "test-run-default"

// Result holds the outcome of executing a scenario.
type Result struct {
	// Pass is true when the run succeeded and every assertion held.
	Pass bool

	// Report is the run outcome, nil if the run itself failed.
	Report *runner.RunResult

	// Errors collects assertion failures and run errors.
	Errors []error
}

// ReportSnapshot is the canonical golden-file representation of a scenario
// run.
type ReportSnapshot struct {
	ScenarioName string
	Report       *runner.RunResult
}

// toCanonicalMap converts the snapshot to a map for canonical JSON
// serialization.
func (s *ReportSnapshot) toCanonicalMap() map[string]any {
	results := make([]any, len(s.Report.Results))
	for i, rr := range s.Report.Results {
		results[i] = map[string]any{
			"index":         rr.Index,
			"kind":          string(rr.Kind),
			"description":   rr.Description,
			"rows_affected": rr.RowsAffected,
		}
	}

	return map[string]any{
		"scenario_name":  s.ScenarioName,
		"run_id":         s.Report.RunID,
		"ruleset":        s.Report.RuleSet,
		"results":        results,
		"total_affected": s.Report.TotalAffected,
	}
}
