package rules

import (
	"fmt"
	"sort"
	"strings"
)

// Kind identifies a correction rule category.
type Kind string

const (
	// KindTimestamp rewrites accidental millisecond-precision epoch values
	// to second precision.
	KindTimestamp Kind = "timestamp"

	// KindInvalidKey deletes rows whose key column is too short to be a
	// valid tag key.
	KindInvalidKey Kind = "invalid_key"

	// KindOrphan deletes association rows whose foreign key tuple has no
	// matching parent row.
	KindOrphan Kind = "orphan"

	// KindBackfill inserts referenced-but-missing keys into a lookup table.
	KindBackfill Kind = "backfill"
)

// ValidKinds defines the allowed rule kinds.
var ValidKinds = map[Kind]bool{
	KindTimestamp:  true,
	KindInvalidKey: true,
	KindOrphan:     true,
	KindBackfill:   true,
}

// Statement is one parameterized SQL statement rendered from a rule.
type Statement struct {
	SQL  string
	Args []any
}

// Rule is a single correction unit. A rule renders to one or more mutation
// statements and, for dry runs, matching count statements reporting how many
// rows each mutation would touch.
type Rule interface {
	// Kind returns the rule category.
	Kind() Kind

	// Describe returns a human-readable description for reports and errors.
	Describe() string

	// Statements renders the mutation statements in execution order.
	Statements() []Statement

	// CountStatements renders SELECT COUNT(*) equivalents of Statements,
	// in the same order.
	CountStatements() []Statement
}

// RuleSet is a named, ordered list of correction rules.
//
// Rules slice order NEVER changes after construction: the runner applies
// rules exactly in this order inside a single transaction.
type RuleSet struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Rules       []Rule `json:"rules"`
}

// Tables returns the sorted set of tables the ruleset touches, direct
// targets and parents alike. Used for scoping snapshots to the affected
// part of the schema.
func (s RuleSet) Tables() []string {
	seen := make(map[string]bool)
	add := func(names ...string) {
		for _, n := range names {
			seen[n] = true
		}
	}

	for _, rule := range s.Rules {
		switch r := rule.(type) {
		case TimestampRule:
			add(r.Table)
		case InvalidKeyRule:
			add(r.Table)
		case OrphanRule:
			add(r.Table)
			for _, p := range r.Parents {
				add(p.Table)
			}
		case BackfillRule:
			add(r.From, r.Into)
		}
	}

	tables := make([]string, 0, len(seen))
	for t := range seen {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	return tables
}

// TimestampRule rewrites epoch values stored with accidental millisecond
// precision back to seconds. A value is considered milliseconds when it is
// strictly greater than Threshold; matched values are integer-divided by
// 1000. NULL values never match the comparison, so nullable columns are
// skipped naturally.
type TimestampRule struct {
	Table     string   `json:"table"`
	Columns   []string `json:"columns"`
	Threshold int64    `json:"threshold"`
}

// Kind implements Rule.
func (r TimestampRule) Kind() Kind { return KindTimestamp }

// Describe implements Rule.
func (r TimestampRule) Describe() string {
	return fmt.Sprintf("normalize millisecond timestamps in %s (%s)",
		r.Table, strings.Join(r.Columns, ", "))
}

// Statements implements Rule. One UPDATE per column so affected-row counts
// stay meaningful per column set.
func (r TimestampRule) Statements() []Statement {
	stmts := make([]Statement, 0, len(r.Columns))
	for _, col := range r.Columns {
		stmts = append(stmts, Statement{
			SQL:  fmt.Sprintf(`UPDATE %s SET %s = %s / 1000 WHERE %s > ?`, r.Table, col, col, col),
			Args: []any{r.Threshold},
		})
	}
	return stmts
}

// CountStatements implements Rule.
func (r TimestampRule) CountStatements() []Statement {
	stmts := make([]Statement, 0, len(r.Columns))
	for _, col := range r.Columns {
		stmts = append(stmts, Statement{
			SQL:  fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s > ?`, r.Table, col),
			Args: []any{r.Threshold},
		})
	}
	return stmts
}

// InvalidKeyRule deletes rows whose key column holds a string shorter than
// MinLength. Sub-threshold keys are treated as empty/invalid. NULL keys are
// left alone (length(NULL) is NULL and never matches).
type InvalidKeyRule struct {
	Table     string `json:"table"`
	Column    string `json:"column"`
	MinLength int    `json:"min_length"`
}

// Kind implements Rule.
func (r InvalidKeyRule) Kind() Kind { return KindInvalidKey }

// Describe implements Rule.
func (r InvalidKeyRule) Describe() string {
	return fmt.Sprintf("delete rows from %s with %s shorter than %d characters",
		r.Table, r.Column, r.MinLength)
}

// Statements implements Rule.
func (r InvalidKeyRule) Statements() []Statement {
	return []Statement{{
		SQL:  fmt.Sprintf(`DELETE FROM %s WHERE length(%s) < ?`, r.Table, r.Column),
		Args: []any{r.MinLength},
	}}
}

// CountStatements implements Rule.
func (r InvalidKeyRule) CountStatements() []Statement {
	return []Statement{{
		SQL:  fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE length(%s) < ?`, r.Table, r.Column),
		Args: []any{r.MinLength},
	}}
}

// KeyPair maps a child (association table) column to the parent column it
// references.
type KeyPair struct {
	Child  string `json:"child"`
	Parent string `json:"parent"`
}

// ParentRef names a parent table and the key columns that tie an association
// row to it. Composite keys (e.g. entries id+version) list one KeyPair per
// component.
type ParentRef struct {
	Table string    `json:"table"`
	Keys  []KeyPair `json:"keys"`
}

// OrphanRule deletes association rows whose foreign key tuple does not exist
// in a parent table. Each parent produces its own DELETE so per-parent
// affected counts remain visible; a row orphaned against any parent is
// deleted.
type OrphanRule struct {
	Table   string      `json:"table"`
	Parents []ParentRef `json:"parents"`
}

// Kind implements Rule.
func (r OrphanRule) Kind() Kind { return KindOrphan }

// Describe implements Rule.
func (r OrphanRule) Describe() string {
	names := make([]string, 0, len(r.Parents))
	for _, p := range r.Parents {
		names = append(names, p.Table)
	}
	return fmt.Sprintf("delete rows from %s orphaned against %s",
		r.Table, strings.Join(names, ", "))
}

// Statements implements Rule.
func (r OrphanRule) Statements() []Statement {
	stmts := make([]Statement, 0, len(r.Parents))
	for _, p := range r.Parents {
		stmts = append(stmts, Statement{
			SQL: fmt.Sprintf(`DELETE FROM %s WHERE NOT EXISTS (SELECT 1 FROM %s WHERE %s)`,
				r.Table, p.Table, r.joinPredicate(p)),
		})
	}
	return stmts
}

// CountStatements implements Rule.
func (r OrphanRule) CountStatements() []Statement {
	stmts := make([]Statement, 0, len(r.Parents))
	for _, p := range r.Parents {
		stmts = append(stmts, Statement{
			SQL: fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE NOT EXISTS (SELECT 1 FROM %s WHERE %s)`,
				r.Table, p.Table, r.joinPredicate(p)),
		})
	}
	return stmts
}

// joinPredicate renders the parent-child key equalities for one parent.
func (r OrphanRule) joinPredicate(p ParentRef) string {
	preds := make([]string, 0, len(p.Keys))
	for _, k := range p.Keys {
		preds = append(preds, fmt.Sprintf("%s.%s = %s.%s", p.Table, k.Parent, r.Table, k.Child))
	}
	return strings.Join(preds, " AND ")
}

// BackfillRule inserts into a lookup table every key referenced by an
// association table that is not already present. Insert-if-absent: the guard
// subquery makes the statement a no-op on already-complete data, and DISTINCT
// ensures a key referenced by many rows is inserted exactly once.
type BackfillRule struct {
	From   string `json:"from"`   // association table holding the references
	Key    string `json:"key"`    // referencing column in From
	Into   string `json:"into"`   // lookup table receiving missing keys
	Column string `json:"column"` // key column in Into
}

// Kind implements Rule.
func (r BackfillRule) Kind() Kind { return KindBackfill }

// Describe implements Rule.
func (r BackfillRule) Describe() string {
	return fmt.Sprintf("backfill %s.%s from %s.%s", r.Into, r.Column, r.From, r.Key)
}

// Statements implements Rule.
func (r BackfillRule) Statements() []Statement {
	return []Statement{{
		SQL: fmt.Sprintf(
			`INSERT INTO %s (%s) SELECT DISTINCT %s FROM %s WHERE %s IS NOT NULL AND %s NOT IN (SELECT %s FROM %s)`,
			r.Into, r.Column, r.Key, r.From, r.Key, r.Key, r.Column, r.Into),
	}}
}

// CountStatements implements Rule.
func (r BackfillRule) CountStatements() []Statement {
	return []Statement{{
		SQL: fmt.Sprintf(
			`SELECT COUNT(DISTINCT %s) FROM %s WHERE %s IS NOT NULL AND %s NOT IN (SELECT %s FROM %s)`,
			r.Key, r.From, r.Key, r.Key, r.Column, r.Into),
	}}
}
