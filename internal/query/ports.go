package query

import (
	"context"

	"reporting-backend/internal/domain/reporting"
)

// ColumnRegistry is the live column catalog collaborator. Implementations
// must query current configuration on every call; the validator relies on
// the registry never serving stale column sets.
type ColumnRegistry interface {
	ColumnsFor(ctx context.Context, dataSourceID int) ([]reporting.Column, error)
}

// Executor runs parameterized SQL and returns generic rows. Values are
// always bound; implementations must never interpolate arguments.
type Executor interface {
	Execute(ctx context.Context, sql string, args []any) ([]reporting.Row, error)
}
