// Package compiler turns CUE ruleset documents into rules values.
//
// Ruleset documents describe corrections as data - table names, columns,
// thresholds - so the runner engine carries no schema knowledge of its own.
// A document has the shape:
//
//	ruleset: tags_cleanup: {
//		description: "..."
//		rules: [
//			{kind: "timestamp", table: "entries", columns: ["created"], threshold: 9999999999},
//			{kind: "invalid_key", table: "tags", column: "id", min_length: 2},
//			{kind: "orphan", table: "entry_tag_relations", parents: [...]},
//			{kind: "backfill", from: "entry_tag_relations", key: "tag_id", into: "tags", column: "id"},
//		]
//	}
package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/mend/internal/rules"
)

// CompileRuleSet parses a CUE value into a RuleSet.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the ruleset struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`ruleset: cleanup: { ... }`)
//	set, err := CompileRuleSet(v.LookupPath(cue.ParsePath("ruleset.cleanup")))
//
// The compiled set preserves document order of the rules list; declaration
// order is the execution order.
func CompileRuleSet(v cue.Value) (*rules.RuleSet, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	set := &rules.RuleSet{}

	// Ruleset name comes from the struct label (the path selector)
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		set.Name = labels[len(labels)-1].String()
	}

	// description (optional)
	descVal := v.LookupPath(cue.ParsePath("description"))
	if descVal.Exists() {
		desc, err := descVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		set.Description = desc
	}

	// rules (required, at least one)
	rulesVal := v.LookupPath(cue.ParsePath("rules"))
	if !rulesVal.Exists() {
		return nil, &CompileError{
			Field:   "rules",
			Message: "rules list is required",
			Pos:     v.Pos(),
		}
	}

	iter, err := rulesVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		rule, err := compileRule(iter.Value())
		if err != nil {
			return nil, err
		}
		set.Rules = append(set.Rules, rule)
	}

	if len(set.Rules) == 0 {
		return nil, &CompileError{
			Field:   "rules",
			Message: "at least one rule is required",
			Pos:     v.Pos(),
		}
	}

	return set, nil
}

// compileRule dispatches on the kind field.
func compileRule(v cue.Value) (rules.Rule, error) {
	kind, err := stringField(v, "kind")
	if err != nil {
		return nil, err
	}

	switch rules.Kind(kind) {
	case rules.KindTimestamp:
		return compileTimestamp(v)
	case rules.KindInvalidKey:
		return compileInvalidKey(v)
	case rules.KindOrphan:
		return compileOrphan(v)
	case rules.KindBackfill:
		return compileBackfill(v)
	default:
		return nil, &CompileError{
			Field:   "kind",
			Message: fmt.Sprintf("unknown rule kind %q", kind),
			Pos:     v.Pos(),
		}
	}
}

func compileTimestamp(v cue.Value) (rules.Rule, error) {
	table, err := stringField(v, "table")
	if err != nil {
		return nil, err
	}
	columns, err := stringListField(v, "columns")
	if err != nil {
		return nil, err
	}
	threshold, err := intField(v, "threshold")
	if err != nil {
		return nil, err
	}
	return rules.TimestampRule{Table: table, Columns: columns, Threshold: threshold}, nil
}

func compileInvalidKey(v cue.Value) (rules.Rule, error) {
	table, err := stringField(v, "table")
	if err != nil {
		return nil, err
	}
	column, err := stringField(v, "column")
	if err != nil {
		return nil, err
	}
	minLength, err := intField(v, "min_length")
	if err != nil {
		return nil, err
	}
	return rules.InvalidKeyRule{Table: table, Column: column, MinLength: int(minLength)}, nil
}

func compileOrphan(v cue.Value) (rules.Rule, error) {
	table, err := stringField(v, "table")
	if err != nil {
		return nil, err
	}

	parentsVal := v.LookupPath(cue.ParsePath("parents"))
	if !parentsVal.Exists() {
		return nil, &CompileError{
			Field:   "parents",
			Message: "parents list is required",
			Pos:     v.Pos(),
		}
	}

	var parents []rules.ParentRef
	iter, err := parentsVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		parent, err := compileParent(iter.Value())
		if err != nil {
			return nil, err
		}
		parents = append(parents, parent)
	}

	return rules.OrphanRule{Table: table, Parents: parents}, nil
}

func compileParent(v cue.Value) (rules.ParentRef, error) {
	table, err := stringField(v, "table")
	if err != nil {
		return rules.ParentRef{}, err
	}

	keysVal := v.LookupPath(cue.ParsePath("keys"))
	if !keysVal.Exists() {
		return rules.ParentRef{}, &CompileError{
			Field:   "keys",
			Message: fmt.Sprintf("parent %s: keys list is required", table),
			Pos:     v.Pos(),
		}
	}

	var keys []rules.KeyPair
	iter, err := keysVal.List()
	if err != nil {
		return rules.ParentRef{}, formatCUEError(err)
	}
	for iter.Next() {
		child, err := stringField(iter.Value(), "child")
		if err != nil {
			return rules.ParentRef{}, err
		}
		parentCol, err := stringField(iter.Value(), "parent")
		if err != nil {
			return rules.ParentRef{}, err
		}
		keys = append(keys, rules.KeyPair{Child: child, Parent: parentCol})
	}

	return rules.ParentRef{Table: table, Keys: keys}, nil
}

func compileBackfill(v cue.Value) (rules.Rule, error) {
	from, err := stringField(v, "from")
	if err != nil {
		return nil, err
	}
	key, err := stringField(v, "key")
	if err != nil {
		return nil, err
	}
	into, err := stringField(v, "into")
	if err != nil {
		return nil, err
	}
	column, err := stringField(v, "column")
	if err != nil {
		return nil, err
	}
	return rules.BackfillRule{From: from, Key: key, Into: into, Column: column}, nil
}

// stringField extracts a required string field.
func stringField(v cue.Value, field string) (string, error) {
	fieldVal := v.LookupPath(cue.ParsePath(field))
	if !fieldVal.Exists() {
		return "", &CompileError{
			Field:   field,
			Message: fmt.Sprintf("%s is required", field),
			Pos:     v.Pos(),
		}
	}
	s, err := fieldVal.String()
	if err != nil {
		return "", &CompileError{
			Field:   field,
			Message: fmt.Sprintf("%s must be a string", field),
			Pos:     fieldVal.Pos(),
		}
	}
	return s, nil
}

// intField extracts a required integer field.
func intField(v cue.Value, field string) (int64, error) {
	fieldVal := v.LookupPath(cue.ParsePath(field))
	if !fieldVal.Exists() {
		return 0, &CompileError{
			Field:   field,
			Message: fmt.Sprintf("%s is required", field),
			Pos:     v.Pos(),
		}
	}
	n, err := fieldVal.Int64()
	if err != nil {
		return 0, &CompileError{
			Field:   field,
			Message: fmt.Sprintf("%s must be an integer", field),
			Pos:     fieldVal.Pos(),
		}
	}
	return n, nil
}

// stringListField extracts a required list of strings.
func stringListField(v cue.Value, field string) ([]string, error) {
	fieldVal := v.LookupPath(cue.ParsePath(field))
	if !fieldVal.Exists() {
		return nil, &CompileError{
			Field:   field,
			Message: fmt.Sprintf("%s is required", field),
			Pos:     v.Pos(),
		}
	}

	var out []string
	iter, err := fieldVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, &CompileError{
				Field:   field,
				Message: fmt.Sprintf("%s elements must be strings", field),
				Pos:     iter.Value().Pos(),
			}
		}
		out = append(out, s)
	}
	return out, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
