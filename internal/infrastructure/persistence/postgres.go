// Package persistence implements the database-facing collaborators of the
// analytics cache on PostgreSQL via pgx: the parameterized query executor,
// the live column registry, and the data-source catalog.
package persistence

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"reporting-backend/internal/domain/reporting"
	appErrors "reporting-backend/internal/errors"
)

// PgxExecutor executes parameterized SQL against the reporting database.
// Values are always bound via $n placeholders; this type never interpolates.
type PgxExecutor struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPgxExecutor creates an executor on the given connection pool.
func NewPgxExecutor(pool *pgxpool.Pool, logger *zap.Logger) *PgxExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PgxExecutor{pool: pool, logger: logger}
}

// Execute runs the query and materializes every row as a column-name map.
// Database errors propagate to the caller unchanged in meaning.
func (e *PgxExecutor) Execute(ctx context.Context, sql string, args []any) ([]reporting.Row, error) {
	rows, err := e.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, appErrors.External("DB_QUERY_FAILED", "query execution failed", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	result := make([]reporting.Row, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, appErrors.External("DB_SCAN_FAILED", "row scan failed", err)
		}
		row := make(reporting.Row, len(fields))
		for i, field := range fields {
			row[field.Name] = values[i]
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, appErrors.External("DB_QUERY_FAILED", "query execution failed", err)
	}
	return result, nil
}

// ============================================================================
// COLUMN REGISTRY
// ============================================================================

// ColumnRegistry looks up the currently configured columns of a data
// source. It is queried live on every filter validation, never cached: the
// allow-set must reflect configuration changes immediately because it is
// the sole injection defense for dynamically named filter fields.
type ColumnRegistry struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewColumnRegistry creates a registry on the given connection pool.
func NewColumnRegistry(pool *pgxpool.Pool, logger *zap.Logger) *ColumnRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ColumnRegistry{pool: pool, logger: logger}
}

// ColumnsFor returns the configured columns of a data source.
func (r *ColumnRegistry) ColumnsFor(ctx context.Context, dataSourceID int) ([]reporting.Column, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT column_name, filterable FROM data_source_columns WHERE data_source_id = $1`,
		dataSourceID,
	)
	if err != nil {
		return nil, appErrors.External("COLUMN_REGISTRY_FAILED", "column registry lookup failed", err)
	}
	defer rows.Close()

	columns := make([]reporting.Column, 0)
	for rows.Next() {
		var col reporting.Column
		if err := rows.Scan(&col.Name, &col.Filterable); err != nil {
			return nil, appErrors.External("COLUMN_REGISTRY_FAILED", "column registry scan failed", err)
		}
		columns = append(columns, col)
	}
	return columns, rows.Err()
}

// ============================================================================
// DATA SOURCE CATALOG
// ============================================================================

// Catalog resolves data sources from the catalog table.
type Catalog struct {
	pool *pgxpool.Pool
}

// NewCatalog creates a catalog reader.
func NewCatalog(pool *pgxpool.Pool) *Catalog {
	return &Catalog{pool: pool}
}

// Active returns every active data source, for the warming sweep.
func (c *Catalog) Active(ctx context.Context) ([]reporting.DataSource, error) {
	rows, err := c.pool.Query(ctx,
		`SELECT id, table_name FROM data_sources WHERE active = true ORDER BY id`,
	)
	if err != nil {
		return nil, appErrors.External("CATALOG_FAILED", "data source listing failed", err)
	}
	defer rows.Close()

	sources := make([]reporting.DataSource, 0)
	for rows.Next() {
		var ds reporting.DataSource
		if err := rows.Scan(&ds.ID, &ds.TableName); err != nil {
			return nil, appErrors.External("CATALOG_FAILED", "data source scan failed", err)
		}
		sources = append(sources, ds)
	}
	return sources, rows.Err()
}

// ByID returns one data source by id.
func (c *Catalog) ByID(ctx context.Context, dataSourceID int) (reporting.DataSource, error) {
	var ds reporting.DataSource
	err := c.pool.QueryRow(ctx,
		`SELECT id, table_name FROM data_sources WHERE id = $1`,
		dataSourceID,
	).Scan(&ds.ID, &ds.TableName)
	if err != nil {
		return reporting.DataSource{}, appErrors.New(appErrors.ErrorTypeNotFound, "DATA_SOURCE_NOT_FOUND",
			fmt.Sprintf("data source %d not found", dataSourceID)).WithCause(err).Build()
	}
	return ds, nil
}
