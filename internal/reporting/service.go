// Package reporting implements the fetch orchestrator: the single entry
// point that sequences cache lookup, database fallback, permission filtering
// and date filtering. No caller-facing path returns rows that skipped the
// permission filter.
package reporting

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	domain "reporting-backend/internal/domain/reporting"
	"reporting-backend/internal/infrastructure/cache"
	"reporting-backend/internal/infrastructure/observability"
	"reporting-backend/internal/query"
)

// FetchParams are the explicit, chart-level query dimensions. Only these are
// encoded into cache keys; permission-derived values never appear here.
type FetchParams struct {
	DataSourceID int
	Measure      string
	PracticeID   *int
	ProviderID   *int
	Frequency    string

	Filters []domain.FilterSpec

	// Inclusive date_index bounds, applied in memory after permission
	// filtering.
	DateFrom *int
	DateTo   *int
}

// UserContext identifies the caller and the visibility tier they claim. The
// claim is verified against resolved grants before any rows are released.
type UserContext struct {
	UserID string
	Scope  domain.PermissionScope
}

// Service is the fetch orchestrator.
type Service struct {
	store     cache.Store
	keys      *cache.KeyBuilder
	catalog   Catalog
	validator FieldValidator
	executor  Executor
	resolver  AccessResolver
	perms     PermissionFilter
	ttl       time.Duration
	logger    *zap.Logger
	metrics   *observability.Metrics
}

// NewService wires the orchestrator.
func NewService(
	store cache.Store,
	keys *cache.KeyBuilder,
	catalog Catalog,
	validator FieldValidator,
	executor Executor,
	resolver AccessResolver,
	perms PermissionFilter,
	ttl time.Duration,
	logger *zap.Logger,
	metrics *observability.Metrics,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewNopMetrics()
	}
	return &Service{
		store:     store,
		keys:      keys,
		catalog:   catalog,
		validator: validator,
		executor:  executor,
		resolver:  resolver,
		perms:     perms,
		ttl:       ttl,
		logger:    logger,
		metrics:   metrics,
	}
}

// Fetch resolves the caller's render context, obtains the widest matching
// dataset from cache or database, and narrows it through the permission and
// date filters. Store failures degrade to a miss on read and a silent skip
// on write; they never fail the request.
func (s *Service) Fetch(ctx context.Context, params FetchParams, userCtx UserContext, skipCache bool) ([]domain.Row, error) {
	rc, err := s.resolver.Resolve(ctx, userCtx.UserID)
	if err != nil {
		return nil, err
	}
	if userCtx.Scope != "" {
		// The caller may claim a scope; validation against the resolved
		// grants happens inside the permission filter.
		rc.Scope = userCtx.Scope
	}

	components := domain.CacheKeyComponents{
		DataSourceID: params.DataSourceID,
		Measure:      params.Measure,
		PracticeID:   params.PracticeID,
		ProviderID:   params.ProviderID,
		Frequency:    params.Frequency,
	}

	// Advanced filters are not part of the key space; an entry cached for
	// the bare dimensions would be wrong for a filtered query and vice
	// versa, so filtered queries bypass the cache entirely.
	useCache := !skipCache && len(params.Filters) == 0

	rows, hit := []domain.Row(nil), false
	if useCache {
		rows, hit = s.lookup(ctx, components)
	}
	if !hit {
		rows, err = s.fetchFromDatabase(ctx, params)
		if err != nil {
			return nil, err
		}
		if useCache {
			s.populate(ctx, components, rows)
		}
	}

	filtered, err := s.perms.Filter(ctx, rows, rc)
	if err != nil {
		return nil, err
	}
	return FilterByDateRange(filtered, params.DateFrom, params.DateTo), nil
}

// lookup walks the key hierarchy from most specific to least specific and
// returns the first hit. A hit at a coarser level holds a wider dataset than
// requested, so it is narrowed back to the explicit dimensions in memory.
func (s *Service) lookup(ctx context.Context, components domain.CacheKeyComponents) ([]domain.Row, bool) {
	for level, key := range s.keys.BuildHierarchy(components) {
		data, found, err := s.store.Get(ctx, key)
		if err != nil {
			s.metrics.StoreErrors.WithLabelValues("get").Inc()
			s.logger.Warn("cache read failed, treating as miss",
				zap.String("key", key), zap.Error(err))
			continue
		}
		if !found {
			continue
		}
		entry, err := cache.DecodeEntry(data)
		if err != nil {
			s.metrics.StoreErrors.WithLabelValues("decode").Inc()
			s.logger.Warn("cache entry undecodable, treating as miss",
				zap.String("key", key), zap.Error(err))
			continue
		}
		s.metrics.CacheHits.WithLabelValues(strconv.Itoa(level)).Inc()
		rows := entry.Rows
		if level > 0 {
			rows = narrowToDimensions(rows, components)
		}
		return rows, true
	}
	s.metrics.CacheMisses.Inc()
	return nil, false
}

func (s *Service) fetchFromDatabase(ctx context.Context, params FetchParams) ([]domain.Row, error) {
	if err := s.validator.ValidateFields(ctx, params.Filters, params.DataSourceID); err != nil {
		return nil, err
	}
	source, err := s.catalog.ByID(ctx, params.DataSourceID)
	if err != nil {
		return nil, err
	}
	sql, args, err := query.Build(query.Params{
		Table:      source.TableName,
		Measure:    params.Measure,
		PracticeID: params.PracticeID,
		ProviderID: params.ProviderID,
		Frequency:  params.Frequency,
		Filters:    params.Filters,
	})
	if err != nil {
		return nil, err
	}
	s.metrics.DatabaseQueries.Inc()
	return s.executor.Execute(ctx, sql, args)
}

// populate writes the fresh dataset at the single most-specific key. Write
// failures are logged and skipped; the caller still gets their rows.
func (s *Service) populate(ctx context.Context, components domain.CacheKeyComponents, rows []domain.Row) {
	_, data, err := cache.NewEntry(rows, components, s.ttl)
	if err != nil {
		s.logger.Warn("cache entry encoding failed, skipping write", zap.Error(err))
		return
	}
	key := s.keys.BuildKey(components)
	if err := s.store.Set(ctx, key, data, s.ttl); err != nil {
		s.metrics.StoreErrors.WithLabelValues("set").Inc()
		s.logger.Warn("cache write failed, skipping",
			zap.String("key", key), zap.Error(err))
	}
}

// narrowToDimensions re-applies the explicit dimensions to rows served from
// a coarser hierarchy level. Frequency is matched against both column names
// because older data sources still carry the legacy one.
func narrowToDimensions(rows []domain.Row, c domain.CacheKeyComponents) []domain.Row {
	narrowed := make([]domain.Row, 0, len(rows))
	for _, row := range rows {
		if c.Measure != "" && !stringColumnEquals(row, domain.ColumnMeasure, c.Measure) {
			continue
		}
		if c.PracticeID != nil {
			if id, ok := row.PracticeID(); !ok || id != *c.PracticeID {
				continue
			}
		}
		if c.ProviderID != nil {
			if id, ok := row.ProviderID(); !ok || id != *c.ProviderID {
				continue
			}
		}
		if c.Frequency != "" &&
			!stringColumnEquals(row, domain.ColumnFrequency, c.Frequency) &&
			!stringColumnEquals(row, "freq", c.Frequency) {
			continue
		}
		narrowed = append(narrowed, row)
	}
	return narrowed
}

func stringColumnEquals(row domain.Row, column, want string) bool {
	v, ok := row[column]
	if !ok || v == nil {
		return false
	}
	s, ok := v.(string)
	return ok && s == want
}

// ============================================================================
// MANAGEMENT OPERATIONS
// ============================================================================

// Invalidate pattern-deletes cached entries. With a measure it removes that
// measure's keys for the data source; without one it removes every key for
// the data source.
func (s *Service) Invalidate(ctx context.Context, dataSourceID int, measure string) (int, error) {
	pattern := s.keys.DataSourcePattern(dataSourceID)
	if measure != "" {
		pattern = s.keys.MeasurePattern(dataSourceID, measure)
	}
	return s.deleteByPattern(ctx, pattern)
}

// InvalidateAll removes every cached analytics entry.
func (s *Service) InvalidateAll(ctx context.Context) (int, error) {
	return s.deleteByPattern(ctx, s.keys.Prefix()+":*")
}

func (s *Service) deleteByPattern(ctx context.Context, pattern string) (int, error) {
	deleted, err := s.store.DeleteByPattern(ctx, pattern)
	if err != nil {
		s.metrics.StoreErrors.WithLabelValues("delete_by_pattern").Inc()
		return 0, err
	}
	s.logger.Info("cache invalidated",
		zap.String("pattern", pattern), zap.Int("deleted", deleted))
	return deleted, nil
}
