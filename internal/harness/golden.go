package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/mend/internal/snapshot"
)

// RunWithGolden executes a scenario and compares the run report against a
// golden file stored at testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Reports are serialized as canonical JSON so the comparison is
// byte-stable across runs. Assertion failures from the scenario itself
// are reported through t before the golden comparison.
func RunWithGolden(t *testing.T, h *Harness, scenario *Scenario) error {
	t.Helper()

	result, err := h.Run(context.Background(), scenario)
	if err != nil {
		return err
	}
	for _, assertErr := range result.Errors {
		t.Errorf("scenario %s: %v", scenario.Name, assertErr)
	}

	return AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an already-obtained result's report against the
// golden file for scenarioName.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snap := ReportSnapshot{
		ScenarioName: scenarioName,
		Report:       result.Report,
	}
	reportJSON, err := snapshot.MarshalCanonical(snap.toCanonicalMap())
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, reportJSON)

	return nil
}
