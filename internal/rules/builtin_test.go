package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinOrdering(t *testing.T) {
	set := Builtin()
	require.Len(t, set.Rules, 15)

	// Kinds must appear in repair order: timestamps, invalid keys, orphans,
	// backfill. Orphan deletion depends on invalid keys being gone first;
	// backfill depends on orphans being gone.
	var kinds []Kind
	for _, r := range set.Rules {
		kinds = append(kinds, r.Kind())
	}

	assert.Equal(t, []Kind{
		KindTimestamp, KindTimestamp, KindTimestamp, KindTimestamp, KindTimestamp,
		KindInvalidKey, KindInvalidKey, KindInvalidKey, KindInvalidKey,
		KindOrphan, KindOrphan, KindOrphan,
		KindBackfill, KindBackfill, KindBackfill,
	}, kinds)
}

func TestBuiltinThresholds(t *testing.T) {
	set := Builtin()

	for _, r := range set.Rules {
		switch rule := r.(type) {
		case TimestampRule:
			assert.Equal(t, MaxEpochSeconds, rule.Threshold)
			assert.Equal(t, []string{"created", "archived"}, rule.Columns)
		case InvalidKeyRule:
			assert.Equal(t, MinTagLength, rule.MinLength)
		}
	}
}

func TestBuiltinOrphanParentsExcludeTags(t *testing.T) {
	// Relations pointing at missing tags are backfilled, not deleted, so no
	// orphan rule may list tags as a parent.
	for _, r := range Builtin().Rules {
		orphan, ok := r.(OrphanRule)
		if !ok {
			continue
		}
		for _, p := range orphan.Parents {
			assert.NotEqual(t, "tags", p.Table, "orphan rule for %s sweeps against tags", orphan.Table)
		}
	}
}
