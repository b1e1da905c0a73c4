// Package rules provides the intermediate representation for correction
// rules: the typed, ordered units of work a repair run applies to a store.
//
// This package contains type definitions and SQL rendering only. All other
// internal packages import rules; rules imports nothing internal. This keeps
// the rule IR the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Rule order within a RuleSet is declaration order and is NEVER reordered;
//     later rules depend on the effects of earlier ones (invalid keys must be
//     deleted before orphaned relations, orphaned relations before backfill).
//   - Every rule is idempotent by construction: applying it to already-clean
//     data affects zero rows.
//   - Table and column names come from configuration, never from user input at
//     run time, and are validated against a strict identifier grammar before
//     being interpolated into SQL text.
package rules
