package permissions

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"reporting-backend/internal/domain/reporting"
	appErrors "reporting-backend/internal/errors"
)

// AccessResolver derives a user's accessible practice/provider sets and
// grant flags from the organizational hierarchy. It is consumed as an
// opaque lookup; a RenderContext is built fresh from it on every request
// and never reused across users or requests.
type AccessResolver interface {
	Resolve(ctx context.Context, userID string) (reporting.RenderContext, error)
}

// SQLAccessResolver resolves access from the user grant tables.
type SQLAccessResolver struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewSQLAccessResolver creates a resolver on the given connection pool.
func NewSQLAccessResolver(pool *pgxpool.Pool, logger *zap.Logger) *SQLAccessResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLAccessResolver{pool: pool, logger: logger}
}

// Resolve builds a fresh RenderContext for userID. The returned context's
// Scope is the widest tier the user's grants support; callers may claim a
// narrower scope but a wider claim fails scope validation.
func (r *SQLAccessResolver) Resolve(ctx context.Context, userID string) (reporting.RenderContext, error) {
	rc := reporting.RenderContext{UserID: userID, Scope: reporting.ScopeOwn}

	err := r.pool.QueryRow(ctx,
		`SELECT is_super_admin, has_unrestricted_read, has_organization_read
		   FROM user_grants WHERE user_id = $1`,
		userID,
	).Scan(&rc.IsSuperAdmin, &rc.HasUnrestrictedRead, &rc.HasOrganizationRead)
	if err != nil {
		return reporting.RenderContext{}, appErrors.External("ACCESS_RESOLVE_FAILED",
			"user grant lookup failed", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT practice_id FROM user_practice_access WHERE user_id = $1`, userID)
	if err != nil {
		return reporting.RenderContext{}, appErrors.External("ACCESS_RESOLVE_FAILED",
			"practice access lookup failed", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return reporting.RenderContext{}, appErrors.External("ACCESS_RESOLVE_FAILED",
				"practice access scan failed", err)
		}
		rc.AccessiblePractices = append(rc.AccessiblePractices, id)
	}
	if err := rows.Err(); err != nil {
		return reporting.RenderContext{}, appErrors.External("ACCESS_RESOLVE_FAILED",
			"practice access lookup failed", err)
	}

	providerRows, err := r.pool.Query(ctx,
		`SELECT provider_id FROM user_provider_access WHERE user_id = $1`, userID)
	if err != nil {
		return reporting.RenderContext{}, appErrors.External("ACCESS_RESOLVE_FAILED",
			"provider access lookup failed", err)
	}
	defer providerRows.Close()
	for providerRows.Next() {
		var id int
		if err := providerRows.Scan(&id); err != nil {
			return reporting.RenderContext{}, appErrors.External("ACCESS_RESOLVE_FAILED",
				"provider access scan failed", err)
		}
		rc.AccessibleProviders = append(rc.AccessibleProviders, id)
	}
	if err := providerRows.Err(); err != nil {
		return reporting.RenderContext{}, appErrors.External("ACCESS_RESOLVE_FAILED",
			"provider access lookup failed", err)
	}

	switch {
	case rc.IsSuperAdmin || rc.HasUnrestrictedRead:
		rc.Scope = reporting.ScopeAll
	case rc.HasOrganizationRead:
		rc.Scope = reporting.ScopeOrganization
	}
	return rc, nil
}
