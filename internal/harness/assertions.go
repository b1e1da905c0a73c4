package harness

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/roach88/mend/internal/runner"
)

// validIdentifier matches valid SQL identifiers for assertion tables and
// columns. Assertion queries interpolate names, so anything else is rejected.
var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// evaluateAssertion checks one assertion against the run report and the
// final database state.
func evaluateAssertion(ctx context.Context, db *sql.DB, report *runner.RunResult, a *Assertion) error {
	switch a.Type {
	case "rows_affected":
		return assertRowsAffected(report, a)
	case "total_affected":
		if report.TotalAffected != a.Count {
			return fmt.Errorf("total_affected: got %d, want %d", report.TotalAffected, a.Count)
		}
		return nil
	case "final_count":
		return assertFinalCount(ctx, db, a)
	case "final_state":
		return assertFinalState(ctx, db, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func assertRowsAffected(report *runner.RunResult, a *Assertion) error {
	if a.Rule < 0 || a.Rule >= len(report.Results) {
		return fmt.Errorf("rows_affected: rule index %d out of range (report has %d rules)", a.Rule, len(report.Results))
	}
	got := report.Results[a.Rule].RowsAffected
	if got != a.Count {
		return fmt.Errorf("rows_affected: rule %d (%s): got %d, want %d",
			a.Rule, report.Results[a.Rule].Description, got, a.Count)
	}
	return nil
}

func assertFinalCount(ctx context.Context, db *sql.DB, a *Assertion) error {
	where, args, err := buildWhere(a.Where)
	if err != nil {
		return fmt.Errorf("final_count: %w", err)
	}
	if !validIdentifier.MatchString(a.Table) {
		return fmt.Errorf("final_count: invalid table name %q", a.Table)
	}

	query := fmt.Sprintf("SELECT COUNT(*) FROM %s%s", a.Table, where)
	var got int64
	if err := db.QueryRowContext(ctx, query, args...).Scan(&got); err != nil {
		return fmt.Errorf("final_count: querying %s: %w", a.Table, err)
	}
	if got != a.Count {
		return fmt.Errorf("final_count: %s%s: got %d rows, want %d", a.Table, where, got, a.Count)
	}
	return nil
}

func assertFinalState(ctx context.Context, db *sql.DB, a *Assertion) error {
	where, args, err := buildWhere(a.Where)
	if err != nil {
		return fmt.Errorf("final_state: %w", err)
	}
	if !validIdentifier.MatchString(a.Table) {
		return fmt.Errorf("final_state: invalid table name %q", a.Table)
	}

	cols := make([]string, 0, len(a.Expect))
	for col := range a.Expect {
		if !validIdentifier.MatchString(col) {
			return fmt.Errorf("final_state: invalid column name %q", col)
		}
		cols = append(cols, col)
	}
	sort.Strings(cols)

	query := fmt.Sprintf("SELECT %s FROM %s%s", strings.Join(cols, ", "), a.Table, where)
	dest := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range dest {
		ptrs[i] = &dest[i]
	}
	if err := db.QueryRowContext(ctx, query, args...).Scan(ptrs...); err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("final_state: %s%s: no matching row", a.Table, where)
		}
		return fmt.Errorf("final_state: querying %s: %w", a.Table, err)
	}

	for i, col := range cols {
		if !valuesEqual(dest[i], a.Expect[col]) {
			return fmt.Errorf("final_state: %s.%s: got %v, want %v", a.Table, col, dest[i], a.Expect[col])
		}
	}
	return nil
}

// buildWhere converts the assertion's column filter into a WHERE clause,
// with columns in sorted order for stable error messages.
func buildWhere(filter map[string]any) (string, []any, error) {
	if len(filter) == 0 {
		return "", nil, nil
	}
	cols := make([]string, 0, len(filter))
	for col := range filter {
		if !validIdentifier.MatchString(col) {
			return "", nil, fmt.Errorf("invalid column name %q", col)
		}
		cols = append(cols, col)
	}
	sort.Strings(cols)

	preds := make([]string, 0, len(cols))
	var args []any
	for _, col := range cols {
		if filter[col] == nil {
			preds = append(preds, col+" IS NULL")
			continue
		}
		preds = append(preds, col+" = ?")
		args = append(args, filter[col])
	}
	return " WHERE " + strings.Join(preds, " AND "), args, nil
}

// valuesEqual compares a scanned database value to an expected YAML value,
// normalizing the integer and byte-slice representations the driver returns.
func valuesEqual(got, want any) bool {
	if want == nil {
		return got == nil
	}
	if b, ok := got.([]byte); ok {
		got = string(b)
	}
	switch w := want.(type) {
	case int:
		g, ok := asInt64(got)
		return ok && g == int64(w)
	case int64:
		g, ok := asInt64(got)
		return ok && g == w
	case float64:
		g, ok := got.(float64)
		return ok && g == w
	case string:
		g, ok := got.(string)
		return ok && g == w
	case bool:
		g, ok := asInt64(got)
		var truth int64
		if w {
			truth = 1
		}
		return ok && g == truth
	default:
		return fmt.Sprintf("%v", got) == fmt.Sprintf("%v", want)
	}
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	default:
		return 0, false
	}
}
