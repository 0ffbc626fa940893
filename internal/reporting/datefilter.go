package reporting

import (
	"strconv"

	domain "reporting-backend/internal/domain/reporting"
)

// FilterByDateRange keeps rows whose date_index falls between the inclusive
// bounds. It runs after permission filtering, never before. Rows without a
// parseable date_index are kept: they are dimension-less aggregates, not
// out-of-range data.
func FilterByDateRange(rows []domain.Row, from, to *int) []domain.Row {
	if from == nil && to == nil {
		return rows
	}
	filtered := make([]domain.Row, 0, len(rows))
	for _, row := range rows {
		index, ok := dateIndex(row)
		if !ok {
			filtered = append(filtered, row)
			continue
		}
		if from != nil && index < *from {
			continue
		}
		if to != nil && index > *to {
			continue
		}
		filtered = append(filtered, row)
	}
	return filtered
}

// dateIndex extracts the date index, tolerating the numeric and string
// shapes the database driver and JSON round-trips produce.
func dateIndex(row domain.Row) (int, bool) {
	v, ok := row[domain.ColumnDateIndex]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case string:
		parsed, err := strconv.Atoi(n)
		if err != nil {
			return 0, false
		}
		return parsed, true
	}
	return 0, false
}
