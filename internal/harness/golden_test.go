package harness

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mend/internal/runner"
	"github.com/roach88/mend/internal/snapshot"
)

func TestGolden_TimestampRepair(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/timestamp_repair.yaml")
	require.NoError(t, err)

	require.NoError(t, RunWithGolden(t, New(), scenario))
}

func TestGolden_TagHygiene(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/tag_hygiene.yaml")
	require.NoError(t, err)

	require.NoError(t, RunWithGolden(t, New(), scenario))
}

func TestReportSnapshot_CanonicalForm(t *testing.T) {
	snap := ReportSnapshot{
		ScenarioName: "sample",
		Report: &runner.RunResult{
			RunID:   DefaultRunID,
			RuleSet: "sample_set",
			Results: []runner.RuleResult{
				{Index: 0, Kind: "timestamp", Description: "fix comments", RowsAffected: 2},
			},
			TotalAffected: 2,
		},
	}

	data, err := snapshot.MarshalCanonical(snap.toCanonicalMap())
	require.NoError(t, err)

	assert.Equal(t,
		`{"results":[{"description":"fix comments","index":0,"kind":"timestamp","rows_affected":2}],`+
			`"ruleset":"sample_set","run_id":"test-run-default","scenario_name":"sample","total_affected":2}`,
		string(data))
}

func TestGoldenFiles_NoTrailingNewline(t *testing.T) {
	for _, name := range []string{
		"testdata/golden/timestamp_repair.golden",
		"testdata/golden/tag_hygiene.golden",
	} {
		data, err := os.ReadFile(name)
		require.NoError(t, err)
		require.NotEmpty(t, data)
		assert.NotEqual(t, byte('\n'), data[len(data)-1], "%s must stay byte-exact canonical JSON", name)
	}
}
