package runner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mend/internal/rules"
	"github.com/roach88/mend/internal/snapshot"
	"github.com/roach88/mend/internal/store"
	"github.com/roach88/mend/internal/testutil"
)

func newRunner(t *testing.T) (string, *Runner) {
	t.Helper()
	path := testutil.CreateDatabase(t)

	st, err := store.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	return path, New(st, WithRunIDGenerator(NewFixedGenerator(
		"run-1", "run-2", "run-3", "run-4",
	)))
}

func TestRunTimestampNormalization(t *testing.T) {
	path, r := newRunner(t)
	testutil.Seed(t, path,
		// Millisecond-precision accident and an already-correct value.
		`INSERT INTO entries (id, version, created, archived) VALUES ('ms', 0, 1516382882521, NULL)`,
		`INSERT INTO entries (id, version, created, archived) VALUES ('ok', 0, 1000000000, 1200000000)`,
	)

	result, err := r.Run(context.Background(), rules.Builtin())
	require.NoError(t, err)
	assert.Equal(t, "run-1", result.RunID)

	assert.Equal(t, 1, testutil.Count(t, path,
		`SELECT COUNT(*) FROM entries WHERE id = 'ms' AND created = 1516382882`))
	assert.Equal(t, 1, testutil.Count(t, path,
		`SELECT COUNT(*) FROM entries WHERE id = 'ok' AND created = 1000000000 AND archived = 1200000000`))
	// NULL archived stays NULL.
	assert.Equal(t, 1, testutil.Count(t, path,
		`SELECT COUNT(*) FROM entries WHERE id = 'ms' AND archived IS NULL`))
}

func TestRunInvalidKeyDeletion(t *testing.T) {
	path, r := newRunner(t)
	testutil.Seed(t, path,
		`INSERT INTO events (id, created) VALUES ('ev1', 1000000000)`,
		`INSERT INTO tags (id) VALUES ('x')`,
		`INSERT INTO tags (id) VALUES ('ab')`,
		`INSERT INTO event_tag_relations (event_id, tag_id) VALUES ('ev1', 'x')`,
		`INSERT INTO event_tag_relations (event_id, tag_id) VALUES ('ev1', 'ab')`,
	)

	_, err := r.Run(context.Background(), rules.Builtin())
	require.NoError(t, err)

	assert.Equal(t, 0, testutil.Count(t, path, `SELECT COUNT(*) FROM tags WHERE id = 'x'`))
	assert.Equal(t, 1, testutil.Count(t, path, `SELECT COUNT(*) FROM tags WHERE id = 'ab'`))
	assert.Equal(t, 0, testutil.Count(t, path,
		`SELECT COUNT(*) FROM event_tag_relations WHERE tag_id = 'x'`))
	assert.Equal(t, 1, testutil.Count(t, path,
		`SELECT COUNT(*) FROM event_tag_relations WHERE tag_id = 'ab'`))
}

func TestRunOrphanDeletion(t *testing.T) {
	path, r := newRunner(t)
	testutil.Seed(t, path,
		`INSERT INTO entries (id, version, created) VALUES ('e1', 2, 1000000000)`,
		`INSERT INTO tags (id) VALUES ('food')`,
		// Valid relation, wrong-version orphan, missing-entry orphan.
		`INSERT INTO entry_tag_relations (entry_id, entry_version, tag_id) VALUES ('e1', 2, 'food')`,
		`INSERT INTO entry_tag_relations (entry_id, entry_version, tag_id) VALUES ('e1', 7, 'food')`,
		`INSERT INTO entry_tag_relations (entry_id, entry_version, tag_id) VALUES ('gone', 0, 'food')`,
	)

	_, err := r.Run(context.Background(), rules.Builtin())
	require.NoError(t, err)

	assert.Equal(t, 1, testutil.Count(t, path, `SELECT COUNT(*) FROM entry_tag_relations`))
	assert.Equal(t, 1, testutil.Count(t, path,
		`SELECT COUNT(*) FROM entry_tag_relations WHERE entry_id = 'e1' AND entry_version = 2`))
}

func TestRunBackfillInsertsOnce(t *testing.T) {
	path, r := newRunner(t)
	testutil.Seed(t, path,
		`INSERT INTO entries (id, version, created) VALUES ('e1', 0, 1000000000)`,
		`INSERT INTO entries (id, version, created) VALUES ('e2', 0, 1000000000)`,
		// Two relations referencing a tag that does not exist yet.
		`INSERT INTO entry_tag_relations (entry_id, entry_version, tag_id) VALUES ('e1', 0, 'newtag')`,
		`INSERT INTO entry_tag_relations (entry_id, entry_version, tag_id) VALUES ('e2', 0, 'newtag')`,
	)

	result, err := r.Run(context.Background(), rules.Builtin())
	require.NoError(t, err)

	assert.Equal(t, 1, testutil.Count(t, path, `SELECT COUNT(*) FROM tags WHERE id = 'newtag'`))
	assert.Equal(t, 2, testutil.Count(t, path, `SELECT COUNT(*) FROM entry_tag_relations`))

	// Exactly one backfill insert across the whole run.
	var backfilled int64
	for _, rr := range result.Results {
		if rr.Kind == rules.KindBackfill {
			backfilled += rr.RowsAffected
		}
	}
	assert.Equal(t, int64(1), backfilled)
}

func TestRunIdempotence(t *testing.T) {
	path, r := newRunner(t)
	testutil.Seed(t, path,
		`INSERT INTO entries (id, version, created) VALUES ('e1', 0, 1516382882521)`,
		`INSERT INTO entry_tag_relations (entry_id, entry_version, tag_id) VALUES ('e1', 0, 'newtag')`,
		`INSERT INTO entry_tag_relations (entry_id, entry_version, tag_id) VALUES ('gone', 0, 'x')`,
	)

	first, err := r.Run(context.Background(), rules.Builtin())
	require.NoError(t, err)
	assert.Greater(t, first.TotalAffected, int64(0))

	db := testutil.OpenRaw(t, path)
	defer db.Close()
	before, err := snapshot.DatabaseDigest(context.Background(), db, testutil.Tables())
	require.NoError(t, err)

	second, err := r.Run(context.Background(), rules.Builtin())
	require.NoError(t, err)
	assert.Equal(t, int64(0), second.TotalAffected)
	for _, rr := range second.Results {
		assert.Zero(t, rr.RowsAffected, "rule %d (%s) affected rows on a clean store", rr.Index, rr.Description)
	}

	after, err := snapshot.DatabaseDigest(context.Background(), db, testutil.Tables())
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRunAtomicityOnFailure(t *testing.T) {
	path, r := newRunner(t)
	testutil.Seed(t, path,
		`INSERT INTO entries (id, version, created) VALUES ('e1', 0, 1516382882521)`,
	)

	db := testutil.OpenRaw(t, path)
	defer db.Close()
	before, err := snapshot.DatabaseDigest(context.Background(), db, testutil.Tables())
	require.NoError(t, err)

	// Rule 0 mutates, rule 1 hits a missing table. The whole run must roll
	// back, including rule 0's repair.
	broken := rules.RuleSet{
		Name: "broken",
		Rules: []rules.Rule{
			rules.TimestampRule{Table: "entries", Columns: []string{"created"}, Threshold: rules.MaxEpochSeconds},
			rules.InvalidKeyRule{Table: "no_such_table", Column: "id", MinLength: 2},
		},
	}

	_, err = r.Run(context.Background(), broken)
	require.Error(t, err)
	assert.True(t, IsRuleExecutionError(err))

	var runErr *RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, 1, runErr.RuleIndex)
	assert.Contains(t, runErr.RuleDescription, "no_such_table")

	after, err := snapshot.DatabaseDigest(context.Background(), db, testutil.Tables())
	require.NoError(t, err)
	assert.Equal(t, before, after, "failed run left partial corrections behind")
}

func TestPlanDoesNotWrite(t *testing.T) {
	path, r := newRunner(t)
	testutil.Seed(t, path,
		`INSERT INTO entries (id, version, created) VALUES ('e1', 0, 1516382882521)`,
		`INSERT INTO tags (id) VALUES ('x')`,
	)

	db := testutil.OpenRaw(t, path)
	defer db.Close()
	before, err := snapshot.DatabaseDigest(context.Background(), db, testutil.Tables())
	require.NoError(t, err)

	plan, err := r.Plan(context.Background(), rules.Builtin())
	require.NoError(t, err)
	assert.True(t, plan.DryRun)
	assert.Greater(t, plan.TotalAffected, int64(0))

	after, err := snapshot.DatabaseDigest(context.Background(), db, testutil.Tables())
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRunConnectionError(t *testing.T) {
	path := testutil.CreateDatabase(t)
	st, err := store.Open(path)
	require.NoError(t, err)

	r := New(st)
	require.NoError(t, st.Close())

	_, err = r.Run(context.Background(), rules.Builtin())
	require.Error(t, err)
	assert.True(t, IsConnectionError(err))
}

func TestRunResultOrdering(t *testing.T) {
	_, r := newRunner(t)

	result, err := r.Run(context.Background(), rules.Builtin())
	require.NoError(t, err)
	require.Len(t, result.Results, len(rules.Builtin().Rules))

	for i, rr := range result.Results {
		assert.Equal(t, i, rr.Index)
	}
}
