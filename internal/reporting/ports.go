package reporting

import (
	"context"

	domain "reporting-backend/internal/domain/reporting"
)

// Catalog resolves data sources from the trusted catalog. Table names used
// in SQL come exclusively from here, never from the caller.
type Catalog interface {
	ByID(ctx context.Context, dataSourceID int) (domain.DataSource, error)
	Active(ctx context.Context) ([]domain.DataSource, error)
}

// FieldValidator checks advanced filter fields against the live allow-set.
type FieldValidator interface {
	ValidateFields(ctx context.Context, filters []domain.FilterSpec, dataSourceID int) error
}

// Executor runs parameterized SQL against the reporting database.
type Executor interface {
	Execute(ctx context.Context, sql string, args []any) ([]domain.Row, error)
}

// PermissionFilter narrows rows to what a render context may see. Every
// fetch result passes through it, cached or fresh.
type PermissionFilter interface {
	Filter(ctx context.Context, rows []domain.Row, rc domain.RenderContext) ([]domain.Row, error)
}

// AccessResolver builds a fresh render context per request.
type AccessResolver interface {
	Resolve(ctx context.Context, userID string) (domain.RenderContext, error)
}
