package rules

// MaxEpochSeconds is the largest value treated as a second-precision epoch
// timestamp (2286-11-20T17:46:39Z). Anything above it is assumed to be an
// accidental millisecond value. The constant is calibration data, not a
// derived quantity: changing it silently corrupts valid timestamps.
const MaxEpochSeconds int64 = 9999999999

// MinTagLength is the shortest string accepted as a tag key. Keys below this
// length are treated as empty or corrupt.
const MinTagLength = 2

// Builtin returns the tag and timestamp cleanup ruleset for the
// entries/events/tags schema.
//
// Ordering matters and is part of the contract:
//  1. timestamp normalization (independent of the tag rules),
//  2. invalid tag keys deleted from the tags table and all relation tables,
//  3. relation rows orphaned against their entity parent deleted,
//  4. tags referenced by surviving relations backfilled into the tags table.
//
// Orphan sweeps deliberately check only the entity parents (entries, events,
// organizations), not the tags table: a relation pointing at a missing tag is
// repaired by step 4, not deleted by step 3.
func Builtin() RuleSet {
	timestampTables := []string{"categories", "comments", "entries", "events", "ratings"}
	keyedTables := []struct{ table, column string }{
		{"tags", "id"},
		{"entry_tag_relations", "tag_id"},
		{"event_tag_relations", "tag_id"},
		{"org_tag_relations", "tag_id"},
	}
	relationTables := []string{"entry_tag_relations", "event_tag_relations", "org_tag_relations"}

	set := RuleSet{
		Name:        "tags_cleanup",
		Description: "repair millisecond timestamps, invalid tag keys, orphaned tag relations, and missing tags",
	}

	for _, table := range timestampTables {
		set.Rules = append(set.Rules, TimestampRule{
			Table:     table,
			Columns:   []string{"created", "archived"},
			Threshold: MaxEpochSeconds,
		})
	}

	for _, kt := range keyedTables {
		set.Rules = append(set.Rules, InvalidKeyRule{
			Table:     kt.table,
			Column:    kt.column,
			MinLength: MinTagLength,
		})
	}

	set.Rules = append(set.Rules,
		OrphanRule{
			Table: "entry_tag_relations",
			Parents: []ParentRef{{
				Table: "entries",
				Keys: []KeyPair{
					{Child: "entry_id", Parent: "id"},
					{Child: "entry_version", Parent: "version"},
				},
			}},
		},
		OrphanRule{
			Table: "event_tag_relations",
			Parents: []ParentRef{{
				Table: "events",
				Keys:  []KeyPair{{Child: "event_id", Parent: "id"}},
			}},
		},
		OrphanRule{
			Table: "org_tag_relations",
			Parents: []ParentRef{{
				Table: "organizations",
				Keys:  []KeyPair{{Child: "org_id", Parent: "id"}},
			}},
		},
	)

	for _, table := range relationTables {
		set.Rules = append(set.Rules, BackfillRule{
			From:   table,
			Key:    "tag_id",
			Into:   "tags",
			Column: "id",
		})
	}

	return set
}
