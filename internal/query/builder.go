package query

import (
	"fmt"
	"strings"

	"reporting-backend/internal/domain/reporting"
	appErrors "reporting-backend/internal/errors"
)

// Params describes one database query for a data source's backing table.
// Measure, PracticeID and ProviderID are explicit chart-level dimensions
// only; permission-derived values are deliberately excluded from SQL so one
// cached dataset can serve callers with different visibility.
type Params struct {
	// Table is the backing table name, resolved from the trusted data
	// source catalog. It is never caller-supplied.
	Table string

	Measure    string
	PracticeID *int
	ProviderID *int
	Frequency  string

	// Filters must have passed Validator.ValidateFields before being
	// handed to Build.
	Filters []reporting.FilterSpec
}

// Build constructs a SELECT * statement with every value bound as a
// positional parameter.
//
// The frequency clause is OR-combined over the current and legacy column
// names because older data sources were never migrated. An `in` filter with
// an empty array produces the unsatisfiable predicate `1 = 0` rather than
// being dropped: silently dropping it would turn "match nothing" into
// "match everything".
func Build(p Params) (string, []any, error) {
	var (
		clauses []string
		args    []any
	)
	next := func(value any) string {
		args = append(args, value)
		return fmt.Sprintf("$%d", len(args))
	}

	if p.Measure != "" {
		clauses = append(clauses, fmt.Sprintf("%s = %s", reporting.ColumnMeasure, next(p.Measure)))
	}
	if p.PracticeID != nil {
		clauses = append(clauses, fmt.Sprintf("%s = %s", reporting.ColumnPracticeID, next(*p.PracticeID)))
	}
	if p.ProviderID != nil {
		clauses = append(clauses, fmt.Sprintf("%s = %s", reporting.ColumnProviderID, next(*p.ProviderID)))
	}
	if p.Frequency != "" {
		first := next(p.Frequency)
		second := next(p.Frequency)
		clauses = append(clauses, fmt.Sprintf("(%s = %s OR %s = %s)",
			reporting.ColumnFrequency, first, legacyFrequencyColumn, second))
	}

	for _, filter := range p.Filters {
		clause, err := filterClause(filter, next)
		if err != nil {
			return "", nil, err
		}
		if clause != "" {
			clauses = append(clauses, clause)
		}
	}

	sql := fmt.Sprintf("SELECT * FROM %s", p.Table)
	if len(clauses) > 0 {
		sql += " WHERE " + strings.Join(clauses, " AND ")
	}
	return sql, args, nil
}

// filterClause renders one validated advanced filter. next binds a value
// and returns its placeholder.
func filterClause(f reporting.FilterSpec, next func(any) string) (string, error) {
	switch f.Operator {
	case reporting.OpEq:
		return fmt.Sprintf("%s = %s", f.Field, next(f.Value)), nil
	case reporting.OpNeq:
		return fmt.Sprintf("%s <> %s", f.Field, next(f.Value)), nil
	case reporting.OpGt:
		return fmt.Sprintf("%s > %s", f.Field, next(f.Value)), nil
	case reporting.OpGte:
		return fmt.Sprintf("%s >= %s", f.Field, next(f.Value)), nil
	case reporting.OpLt:
		return fmt.Sprintf("%s < %s", f.Field, next(f.Value)), nil
	case reporting.OpLte:
		return fmt.Sprintf("%s <= %s", f.Field, next(f.Value)), nil
	case reporting.OpLike:
		return fmt.Sprintf("%s LIKE %s", f.Field, next(fmt.Sprintf("%%%v%%", f.Value))), nil
	case reporting.OpIn, reporting.OpNotIn:
		values, err := valueList(f.Value)
		if err != nil {
			return "", appErrors.Validation("INVALID_FILTER_VALUE",
				fmt.Sprintf("filter on %q with operator %q requires an array value", f.Field, f.Operator))
		}
		if len(values) == 0 {
			if f.Operator == reporting.OpIn {
				// Fail closed: an empty membership set matches nothing.
				return "1 = 0", nil
			}
			// Excluding nothing filters nothing.
			return "", nil
		}
		placeholders := make([]string, len(values))
		for i, v := range values {
			placeholders[i] = next(v)
		}
		op := "IN"
		if f.Operator == reporting.OpNotIn {
			op = "NOT IN"
		}
		return fmt.Sprintf("%s %s (%s)", f.Field, op, strings.Join(placeholders, ", ")), nil
	}
	return "", appErrors.Validation("INVALID_FILTER_OPERATOR",
		fmt.Sprintf("unsupported filter operator %q", f.Operator))
}

// valueList normalizes the array shapes JSON decoding and direct
// construction produce for in/not_in values.
func valueList(value any) ([]any, error) {
	switch v := value.(type) {
	case []any:
		return v, nil
	case []int:
		out := make([]any, len(v))
		for i, n := range v {
			out[i] = n
		}
		return out, nil
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out, nil
	case []float64:
		out := make([]any, len(v))
		for i, n := range v {
			out[i] = n
		}
		return out, nil
	case nil:
		return nil, nil
	}
	return nil, fmt.Errorf("not an array: %T", value)
}
