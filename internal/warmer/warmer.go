// Package warmer pre-populates the analytics cache with the widest possible
// datasets so that request-time lookups land on hierarchy fallback keys
// instead of the database.
package warmer

import (
	"context"
	"time"

	"go.uber.org/zap"

	domain "reporting-backend/internal/domain/reporting"
	"reporting-backend/internal/infrastructure/cache"
	"reporting-backend/internal/infrastructure/observability"
	"reporting-backend/internal/query"
	"reporting-backend/internal/reporting"
)

// WarmResult summarizes one warming run for a single data source.
type WarmResult struct {
	DataSourceID  int  `json:"dataSourceId"`
	EntriesCached int  `json:"entriesCached"`
	TotalRows     int  `json:"totalRows"`
	Skipped       bool `json:"skipped"`
}

// WarmAllResult aggregates a sweep over every active data source.
type WarmAllResult struct {
	Results       []WarmResult `json:"results"`
	EntriesCached int          `json:"entriesCached"`
	TotalRows     int          `json:"totalRows"`
	Failed        int          `json:"failed"`
}

// Warmer fetches entire backing tables and writes one cache entry per
// (measure, frequency) group at the coarsest key level. It deliberately
// applies no dimension or permission filtering: the cache stores the widest
// dataset and every read is scoped per caller afterwards.
type Warmer struct {
	store    cache.Store
	keys     *cache.KeyBuilder
	catalog  reporting.Catalog
	executor reporting.Executor
	lock     *Lock
	ttl      time.Duration
	logger   *zap.Logger
	metrics  *observability.Metrics
}

// NewWarmer wires a warmer.
func NewWarmer(
	store cache.Store,
	keys *cache.KeyBuilder,
	catalog reporting.Catalog,
	executor reporting.Executor,
	lock *Lock,
	ttl time.Duration,
	logger *zap.Logger,
	metrics *observability.Metrics,
) *Warmer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewNopMetrics()
	}
	return &Warmer{
		store:    store,
		keys:     keys,
		catalog:  catalog,
		executor: executor,
		lock:     lock,
		ttl:      ttl,
		logger:   logger,
		metrics:  metrics,
	}
}

// Warm populates the cache for one data source. If another warmer already
// holds the lock, it returns Skipped=true immediately rather than blocking;
// the lock is released on every other path, success or failure.
func (w *Warmer) Warm(ctx context.Context, dataSourceID int) (WarmResult, error) {
	token, acquired, err := w.lock.Acquire(ctx, dataSourceID)
	if err != nil {
		w.metrics.WarmRuns.WithLabelValues("failed").Inc()
		return WarmResult{DataSourceID: dataSourceID}, err
	}
	if !acquired {
		w.metrics.WarmRuns.WithLabelValues("skipped").Inc()
		w.logger.Info("warming already in progress, skipping",
			zap.Int("data_source_id", dataSourceID))
		return WarmResult{DataSourceID: dataSourceID, Skipped: true}, nil
	}
	defer w.lock.Release(ctx, dataSourceID, token)

	started := time.Now()
	result, err := w.run(ctx, dataSourceID)
	if err != nil {
		w.metrics.WarmRuns.WithLabelValues("failed").Inc()
		return result, err
	}
	w.metrics.WarmRuns.WithLabelValues("completed").Inc()
	w.metrics.WarmDuration.Observe(time.Since(started).Seconds())
	w.logger.Info("warming completed",
		zap.Int("data_source_id", dataSourceID),
		zap.Int("entries_cached", result.EntriesCached),
		zap.Int("total_rows", result.TotalRows),
		zap.Duration("elapsed", time.Since(started)))
	return result, nil
}

func (w *Warmer) run(ctx context.Context, dataSourceID int) (WarmResult, error) {
	result := WarmResult{DataSourceID: dataSourceID}

	source, err := w.catalog.ByID(ctx, dataSourceID)
	if err != nil {
		return result, err
	}

	// The whole table, unfiltered.
	sql, args, err := query.Build(query.Params{Table: source.TableName})
	if err != nil {
		return result, err
	}
	w.metrics.DatabaseQueries.Inc()
	rows, err := w.executor.Execute(ctx, sql, args)
	if err != nil {
		return result, err
	}
	result.TotalRows = len(rows)

	for group, groupRows := range groupByMeasureFrequency(rows) {
		components := domain.CacheKeyComponents{
			DataSourceID: dataSourceID,
			Measure:      group.measure,
			Frequency:    group.frequency,
		}
		_, data, err := cache.NewEntry(groupRows, components, w.ttl)
		if err != nil {
			w.logger.Warn("warm entry encoding failed, skipping group",
				zap.Int("data_source_id", dataSourceID),
				zap.String("measure", group.measure),
				zap.Error(err))
			continue
		}
		if err := w.store.Set(ctx, w.keys.BuildKey(components), data, w.ttl); err != nil {
			w.metrics.StoreErrors.WithLabelValues("set").Inc()
			w.logger.Warn("warm entry write failed, skipping group",
				zap.Int("data_source_id", dataSourceID),
				zap.String("measure", group.measure),
				zap.Error(err))
			continue
		}
		result.EntriesCached++
	}
	return result, nil
}

// WarmAll sweeps every active data source, continuing past per-source
// failures.
func (w *Warmer) WarmAll(ctx context.Context) (WarmAllResult, error) {
	sources, err := w.catalog.Active(ctx)
	if err != nil {
		return WarmAllResult{}, err
	}

	var all WarmAllResult
	for _, source := range sources {
		result, err := w.Warm(ctx, source.ID)
		if err != nil {
			all.Failed++
			w.logger.Error("warming failed for data source",
				zap.Int("data_source_id", source.ID), zap.Error(err))
			continue
		}
		all.Results = append(all.Results, result)
		all.EntriesCached += result.EntriesCached
		all.TotalRows += result.TotalRows
	}
	return all, nil
}

type measureFrequency struct {
	measure   string
	frequency string
}

// groupByMeasureFrequency buckets rows by their measure and frequency
// columns, reading the legacy frequency column as a fallback.
func groupByMeasureFrequency(rows []domain.Row) map[measureFrequency][]domain.Row {
	groups := make(map[measureFrequency][]domain.Row)
	for _, row := range rows {
		group := measureFrequency{
			measure:   stringColumn(row, domain.ColumnMeasure),
			frequency: stringColumn(row, domain.ColumnFrequency),
		}
		if group.frequency == "" {
			group.frequency = stringColumn(row, "freq")
		}
		groups[group] = append(groups[group], row)
	}
	return groups
}

func stringColumn(row domain.Row, column string) string {
	if v, ok := row[column].(string); ok {
		return v
	}
	return ""
}
