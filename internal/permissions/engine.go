// Package permissions implements the fail-closed row filter that runs after
// every cache or database fetch. Cached datasets are stored unfiltered, so
// this engine is the only thing standing between a shared cache entry and a
// caller who must not see all of it.
package permissions

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"reporting-backend/internal/domain/reporting"
	appErrors "reporting-backend/internal/errors"
	"reporting-backend/internal/infrastructure/observability"
)

// Engine filters analytics rows against a caller's render context.
type Engine struct {
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewEngine creates a permission filter engine.
func NewEngine(logger *zap.Logger, metrics *observability.Metrics) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewNopMetrics()
	}
	return &Engine{logger: logger, metrics: metrics}
}

// ValidateScope verifies the claimed scope against the caller's resolved
// grant flags. A claim the grants do not support is rejected before any rows
// are considered.
func (e *Engine) ValidateScope(rc reporting.RenderContext) error {
	if !rc.Scope.Valid() {
		return forbidden(rc.UserID, "INVALID_SCOPE", "unknown permission scope")
	}
	if rc.IsSuperAdmin && rc.Scope != reporting.ScopeAll {
		// A super admin context narrowed to a lesser scope indicates a
		// construction bug upstream, not a legitimate request shape.
		return forbidden(rc.UserID, "SCOPE_MISMATCH",
			"super admin context must use scope \"all\"")
	}
	switch rc.Scope {
	case reporting.ScopeAll:
		if !rc.IsSuperAdmin && !rc.HasUnrestrictedRead {
			return forbidden(rc.UserID, "SCOPE_MISMATCH",
				"caller grants do not permit scope \"all\"")
		}
	case reporting.ScopeOrganization:
		if !rc.HasOrganizationRead {
			return forbidden(rc.UserID, "SCOPE_MISMATCH",
				"caller grants do not permit scope \"organization\"")
		}
	}
	return nil
}

func forbidden(userID, code, message string) *appErrors.AppError {
	return appErrors.New(appErrors.ErrorTypeForbidden, code, message).
		WithSeverity(appErrors.SeverityCritical).
		WithUserID(userID).
		AsSecurity().
		Build()
}

// Filter returns the subset of rows the render context may see. It validates
// the claimed scope first and fails closed throughout: an empty practice
// grant yields zero rows regardless of what the dataset contains.
//
// Rows without a provider identifier are system-level aggregates. They are
// visible at organization and all scope but never through a provider-scoped
// grant, which would leak practice-wide numbers to a single provider's view.
func (e *Engine) Filter(ctx context.Context, rows []reporting.Row, rc reporting.RenderContext) ([]reporting.Row, error) {
	if err := e.ValidateScope(rc); err != nil {
		return nil, err
	}

	filtered := e.apply(rows, rc)
	e.audit(ctx, rc, rows, filtered)
	return filtered, nil
}

func (e *Engine) apply(rows []reporting.Row, rc reporting.RenderContext) []reporting.Row {
	if rc.Scope == reporting.ScopeAll {
		return rows
	}

	// Fail closed: no practice grant means no visibility, even when the
	// dataset plainly contains rows.
	if len(rc.AccessiblePractices) == 0 {
		return []reporting.Row{}
	}

	practiceSet := make(map[int]struct{}, len(rc.AccessiblePractices))
	for _, id := range rc.AccessiblePractices {
		practiceSet[id] = struct{}{}
	}
	// The provider set applies whenever it is present, regardless of scope:
	// an organization-scoped grant can still be limited to specific
	// providers.
	var providerSet map[int]struct{}
	if len(rc.AccessibleProviders) > 0 {
		providerSet = make(map[int]struct{}, len(rc.AccessibleProviders))
		for _, id := range rc.AccessibleProviders {
			providerSet[id] = struct{}{}
		}
	}

	filtered := make([]reporting.Row, 0, len(rows))
	for _, row := range rows {
		practiceID, ok := row.PracticeID()
		if !ok {
			continue
		}
		if _, ok := practiceSet[practiceID]; !ok {
			continue
		}
		providerID, hasProvider := row.ProviderID()
		if !hasProvider {
			// System aggregate. Organization scope sees it; a
			// provider-scoped grant does not.
			if rc.Scope == reporting.ScopeOrganization {
				filtered = append(filtered, row)
			}
			continue
		}
		if providerSet != nil {
			if _, ok := providerSet[providerID]; !ok {
				continue
			}
		}
		filtered = append(filtered, row)
	}
	return filtered
}

// audit emits the structured record every filter invocation produces: row
// counts and the practice sets present before and after filtering. A
// non-empty input reduced to zero output is flagged as suspicious; it usually
// means a misconfigured grant or a probing request.
func (e *Engine) audit(ctx context.Context, rc reporting.RenderContext, input, filtered []reporting.Row) {
	dropped := len(input) - len(filtered)
	if dropped > 0 {
		e.metrics.PermissionRowsDropped.Add(float64(dropped))
	}
	suspicious := len(input) > 0 && len(filtered) == 0
	if suspicious {
		e.metrics.SuspiciousEmptyResult.Inc()
	}

	fields := []zap.Field{
		zap.String("audit_id", uuid.New().String()),
		zap.String("user_id", rc.UserID),
		zap.String("scope", string(rc.Scope)),
		zap.Int("input_rows", len(input)),
		zap.Int("output_rows", len(filtered)),
		zap.Int("dropped_rows", dropped),
		zap.Ints("accessible_practices", rc.AccessiblePractices),
		zap.Ints("input_practices", practiceSetOf(input)),
		zap.Ints("output_practices", practiceSetOf(filtered)),
		zap.Bool("suspicious_empty_result", suspicious),
	}
	if suspicious {
		e.logger.Warn("permission filter produced empty result from non-empty input", fields...)
		return
	}
	e.logger.Info("permission filter applied", fields...)
}

// practiceSetOf returns the sorted set of practice identifiers present in
// rows.
func practiceSetOf(rows []reporting.Row) []int {
	set := make(map[int]struct{})
	for _, row := range rows {
		if id, ok := row.PracticeID(); ok {
			set[id] = struct{}{}
		}
	}
	ids := make([]int, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
