package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mend/internal/testutil"
)

func TestApplyBuiltinRepairs(t *testing.T) {
	path := testutil.CreateDatabase(t)
	testutil.Seed(t, path,
		`INSERT INTO entries (id, version, created) VALUES ('e1', 0, 1516382882521)`,
		`INSERT INTO entry_tag_relations (entry_id, entry_version, tag_id) VALUES ('e1', 0, 'newtag')`,
		`INSERT INTO entry_tag_relations (entry_id, entry_version, tag_id) VALUES ('gone', 0, 'x')`,
	)

	buf := &bytes.Buffer{}
	cmd := NewApplyCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--db", path, "--builtin"})

	require.NoError(t, cmd.Execute())

	output := buf.String()
	assert.Contains(t, output, "Ruleset tags_cleanup applied")
	assert.Contains(t, output, "Total:")

	assert.Equal(t, 1, testutil.Count(t, path,
		`SELECT COUNT(*) FROM entries WHERE created = 1516382882`))
	assert.Equal(t, 1, testutil.Count(t, path,
		`SELECT COUNT(*) FROM tags WHERE id = 'newtag'`))
	assert.Equal(t, 1, testutil.Count(t, path, `SELECT COUNT(*) FROM entry_tag_relations`))
}

func TestApplyRulesDir(t *testing.T) {
	path := testutil.CreateDatabase(t)
	testutil.Seed(t, path,
		`INSERT INTO tags (id) VALUES ('x')`,
		`INSERT INTO tags (id) VALUES ('ab')`,
	)
	dir := writeRulesDir(t, validRules)

	buf := &bytes.Buffer{}
	cmd := NewApplyCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--db", path, dir})

	require.NoError(t, cmd.Execute())

	assert.Equal(t, 0, testutil.Count(t, path, `SELECT COUNT(*) FROM tags WHERE id = 'x'`))
	assert.Equal(t, 1, testutil.Count(t, path, `SELECT COUNT(*) FROM tags WHERE id = 'ab'`))
}

func TestApplyJSONOutput(t *testing.T) {
	path := testutil.CreateDatabase(t)

	buf := &bytes.Buffer{}
	cmd := NewApplyCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--db", path, "--builtin"})

	require.NoError(t, cmd.Execute())

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)

	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "tags_cleanup", data["ruleset"])
	assert.NotEmpty(t, data["run_id"])
}

func TestApplyMissingDatabase(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewApplyCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--db", filepath.Join(t.TempDir(), "missing.db"), "--builtin"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to open database")
}

func TestApplyRequiresRulesOrBuiltin(t *testing.T) {
	path := testutil.CreateDatabase(t)

	buf := &bytes.Buffer{}
	cmd := NewApplyCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--db", path})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "--builtin")
}

func TestApplyRequiresDBFlag(t *testing.T) {
	cmd := NewApplyCommand(&RootOptions{Format: "text"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--builtin"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
	assert.Contains(t, err.Error(), "db")
}

func TestApplyFailureRollsBack(t *testing.T) {
	path := testutil.CreateDatabase(t)
	testutil.Seed(t, path,
		`INSERT INTO tags (id) VALUES ('x')`,
	)
	// Second rule targets a missing table, so the invalid-key deletion from
	// the first rule must be rolled back too.
	dir := writeRulesDir(t, `
ruleset: broken: {
	rules: [
		{kind: "invalid_key", table: "tags", column: "id", min_length: 2},
		{kind: "invalid_key", table: "no_such_table", column: "id", min_length: 2},
	]
}
`)

	buf := &bytes.Buffer{}
	cmd := NewApplyCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--db", path, dir})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, buf.String(), "RULE_EXECUTION")
	assert.Contains(t, buf.String(), "rolled back")

	// Invalid key survived because nothing was committed.
	assert.Equal(t, 1, testutil.Count(t, path, `SELECT COUNT(*) FROM tags WHERE id = 'x'`))
}
