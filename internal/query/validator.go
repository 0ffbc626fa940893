// Package query validates caller-supplied filter fields against the live
// column registry and builds parameterized SQL for the analytics cache.
//
// Column names cannot be bound as query parameters, so the allow-set check
// in this package is the sole SQL-injection defense for dynamically named
// filter fields. Filter *values* are always bound; nothing caller-supplied
// is ever interpolated into SQL text.
package query

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"reporting-backend/internal/domain/reporting"
	appErrors "reporting-backend/internal/errors"
)

// standardColumns are the well-known dimension columns every data source
// shares. They are always filterable.
var standardColumns = map[string]struct{}{
	reporting.ColumnPracticeID: {},
	reporting.ColumnProviderID: {},
	reporting.ColumnMeasure:    {},
	reporting.ColumnFrequency:  {},
	reporting.ColumnDateIndex:  {},
	legacyFrequencyColumn:      {},
}

// legacyFrequencyColumn is the pre-migration name some data sources still
// carry for the frequency dimension.
const legacyFrequencyColumn = "freq"

// Validator checks advanced filter fields against the allow-set built from
// the standard dimension columns and the data source's currently configured
// filterable columns.
type Validator struct {
	registry ColumnRegistry
	logger   *zap.Logger
}

// NewValidator creates a validator on the given registry.
func NewValidator(registry ColumnRegistry, logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{registry: registry, logger: logger}
}

// ValidateFields rejects any filter whose field is not in the allow-set.
// The registry is queried live on every call, never cached, so column
// configuration changes take effect immediately.
func (v *Validator) ValidateFields(ctx context.Context, filters []reporting.FilterSpec, dataSourceID int) error {
	if len(filters) == 0 {
		return nil
	}

	columns, err := v.registry.ColumnsFor(ctx, dataSourceID)
	if err != nil {
		return err
	}

	allowed := make(map[string]struct{}, len(standardColumns)+len(columns))
	for name := range standardColumns {
		allowed[name] = struct{}{}
	}
	for _, col := range columns {
		if col.Filterable {
			allowed[col.Name] = struct{}{}
		}
	}

	for _, filter := range filters {
		if _, ok := allowed[filter.Field]; !ok {
			v.logger.Warn("rejected filter field not in allow-set",
				zap.String("field", filter.Field),
				zap.Int("data_source_id", dataSourceID),
			)
			return appErrors.Validation("INVALID_FILTER_FIELD",
				fmt.Sprintf("filter field %q is not filterable for data source %d", filter.Field, dataSourceID))
		}
	}
	return nil
}
