package rules

import (
	"fmt"
	"regexp"
	"strings"
)

// Validation error codes (E100-E199)
const (
	ErrUnsupportedRuleKind = "E100" // rule kind not recognized
	ErrEmptyRuleSet        = "E101" // ruleset has no rules
	ErrInvalidIdentifier   = "E102" // table/column name fails identifier grammar
	ErrNoColumns           = "E103" // timestamp rule without columns
	ErrInvalidThreshold    = "E104" // non-positive millisecond threshold
	ErrInvalidMinLength    = "E105" // non-positive minimum key length
	ErrNoParents           = "E106" // orphan rule without parent tables
	ErrNoKeys              = "E107" // parent reference without key pairs
	ErrRuleSetName         = "E108" // ruleset name missing or invalid
)

// validIdentifier matches valid SQL identifiers (table/column names).
// Only allows alphanumeric and underscore, must start with letter or
// underscore. Rules interpolate identifiers into SQL text, so anything
// outside this grammar is rejected before rendering.
var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidationError represents a ruleset validation error.
type ValidationError struct {
	Rule    int    `json:"rule"` // index of the offending rule, -1 for set-level errors
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Rule >= 0 {
		return fmt.Sprintf("[%s] rule %d: %s: %s", e.Code, e.Rule, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a ruleset against schema rules.
// Returns all errors found (does not fail-fast).
func Validate(set RuleSet) []ValidationError {
	var errs []ValidationError

	if strings.TrimSpace(set.Name) == "" {
		errs = append(errs, ValidationError{
			Rule:    -1,
			Field:   "name",
			Message: "ruleset name is required and must be non-empty",
			Code:    ErrRuleSetName,
		})
	}

	if len(set.Rules) == 0 {
		errs = append(errs, ValidationError{
			Rule:    -1,
			Field:   "rules",
			Message: "at least one rule is required",
			Code:    ErrEmptyRuleSet,
		})
	}

	for i, rule := range set.Rules {
		errs = append(errs, validateRule(i, rule)...)
	}

	return errs
}

func validateRule(idx int, rule Rule) []ValidationError {
	switch r := rule.(type) {
	case TimestampRule:
		return validateTimestamp(idx, r)
	case InvalidKeyRule:
		return validateInvalidKey(idx, r)
	case OrphanRule:
		return validateOrphan(idx, r)
	case BackfillRule:
		return validateBackfill(idx, r)
	default:
		return []ValidationError{{
			Rule:    idx,
			Field:   "kind",
			Message: fmt.Sprintf("unsupported rule type: %T", rule),
			Code:    ErrUnsupportedRuleKind,
		}}
	}
}

func validateTimestamp(idx int, r TimestampRule) []ValidationError {
	var errs []ValidationError
	errs = append(errs, checkIdentifier(idx, "table", r.Table)...)
	if len(r.Columns) == 0 {
		errs = append(errs, ValidationError{
			Rule:    idx,
			Field:   "columns",
			Message: "at least one column is required",
			Code:    ErrNoColumns,
		})
	}
	for _, col := range r.Columns {
		errs = append(errs, checkIdentifier(idx, "columns", col)...)
	}
	if r.Threshold <= 0 {
		errs = append(errs, ValidationError{
			Rule:    idx,
			Field:   "threshold",
			Message: fmt.Sprintf("threshold must be positive, got %d", r.Threshold),
			Code:    ErrInvalidThreshold,
		})
	}
	return errs
}

func validateInvalidKey(idx int, r InvalidKeyRule) []ValidationError {
	var errs []ValidationError
	errs = append(errs, checkIdentifier(idx, "table", r.Table)...)
	errs = append(errs, checkIdentifier(idx, "column", r.Column)...)
	if r.MinLength <= 0 {
		errs = append(errs, ValidationError{
			Rule:    idx,
			Field:   "min_length",
			Message: fmt.Sprintf("min_length must be positive, got %d", r.MinLength),
			Code:    ErrInvalidMinLength,
		})
	}
	return errs
}

func validateOrphan(idx int, r OrphanRule) []ValidationError {
	var errs []ValidationError
	errs = append(errs, checkIdentifier(idx, "table", r.Table)...)
	if len(r.Parents) == 0 {
		errs = append(errs, ValidationError{
			Rule:    idx,
			Field:   "parents",
			Message: "at least one parent table is required",
			Code:    ErrNoParents,
		})
	}
	for _, p := range r.Parents {
		errs = append(errs, checkIdentifier(idx, "parents.table", p.Table)...)
		if len(p.Keys) == 0 {
			errs = append(errs, ValidationError{
				Rule:    idx,
				Field:   "parents.keys",
				Message: fmt.Sprintf("parent %s has no key pairs", p.Table),
				Code:    ErrNoKeys,
			})
		}
		for _, k := range p.Keys {
			errs = append(errs, checkIdentifier(idx, "parents.keys.child", k.Child)...)
			errs = append(errs, checkIdentifier(idx, "parents.keys.parent", k.Parent)...)
		}
	}
	return errs
}

func validateBackfill(idx int, r BackfillRule) []ValidationError {
	var errs []ValidationError
	errs = append(errs, checkIdentifier(idx, "from", r.From)...)
	errs = append(errs, checkIdentifier(idx, "key", r.Key)...)
	errs = append(errs, checkIdentifier(idx, "into", r.Into)...)
	errs = append(errs, checkIdentifier(idx, "column", r.Column)...)
	return errs
}

func checkIdentifier(idx int, field, name string) []ValidationError {
	if validIdentifier.MatchString(name) {
		return nil
	}
	return []ValidationError{{
		Rule:    idx,
		Field:   field,
		Message: fmt.Sprintf("invalid identifier %q", name),
		Code:    ErrInvalidIdentifier,
	}}
}
