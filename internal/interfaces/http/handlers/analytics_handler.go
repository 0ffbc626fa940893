// Package handlers exposes the analytics cache over HTTP: fetch, cache
// management, warming triggers and keyspace stats.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	domain "reporting-backend/internal/domain/reporting"
	appErrors "reporting-backend/internal/errors"
	"reporting-backend/internal/infrastructure/cache"
	"reporting-backend/internal/reporting"
	"reporting-backend/internal/warmer"
)

var validate = validator.New()

// FetchService is the orchestrator surface the handler depends on.
type FetchService interface {
	Fetch(ctx context.Context, params reporting.FetchParams, userCtx reporting.UserContext, skipCache bool) ([]domain.Row, error)
	Invalidate(ctx context.Context, dataSourceID int, measure string) (int, error)
	InvalidateAll(ctx context.Context) (int, error)
}

// WarmService triggers cache warming runs.
type WarmService interface {
	Warm(ctx context.Context, dataSourceID int) (warmer.WarmResult, error)
	WarmAll(ctx context.Context) (warmer.WarmAllResult, error)
}

// StatsService reads the keyspace statistics.
type StatsService interface {
	Collect(ctx context.Context) (cache.Stats, error)
}

// AnalyticsHandler handles analytics cache HTTP requests.
type AnalyticsHandler struct {
	service FetchService
	warmer  WarmService
	stats   StatsService
	logger  *zap.Logger
}

// NewAnalyticsHandler creates a new analytics handler.
func NewAnalyticsHandler(service FetchService, warmSvc WarmService, stats StatsService, logger *zap.Logger) *AnalyticsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnalyticsHandler{service: service, warmer: warmSvc, stats: stats, logger: logger}
}

// FilterRequest is one advanced filter in a fetch request.
type FilterRequest struct {
	Field    string `json:"field" validate:"required"`
	Operator string `json:"operator" validate:"required,oneof=eq neq gt gte lt lte in not_in like"`
	Value    any    `json:"value"`
}

// FetchRequest represents the request body for fetching analytics rows.
type FetchRequest struct {
	DataSourceID int             `json:"dataSourceId" validate:"required,gt=0"`
	Measure      string          `json:"measure,omitempty"`
	PracticeID   *int            `json:"practiceId,omitempty"`
	ProviderID   *int            `json:"providerId,omitempty"`
	Frequency    string          `json:"frequency,omitempty"`
	Filters      []FilterRequest `json:"filters,omitempty" validate:"omitempty,dive"`
	DateFrom     *int            `json:"dateFrom,omitempty"`
	DateTo       *int            `json:"dateTo,omitempty"`
	Scope        string          `json:"scope,omitempty" validate:"omitempty,oneof=own organization all"`
	SkipCache    bool            `json:"skipCache,omitempty"`
}

// FetchResponse represents the response for a fetch.
type FetchResponse struct {
	Rows     []domain.Row `json:"rows"`
	RowCount int          `json:"rowCount"`
}

// Fetch handles POST /api/v1/analytics/fetch.
func (h *AnalyticsHandler) Fetch(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		h.respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req FetchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := validate.Struct(req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	filters := make([]domain.FilterSpec, 0, len(req.Filters))
	for _, f := range req.Filters {
		spec, err := domain.NewFilterSpec(f.Field, domain.FilterOperator(f.Operator), f.Value)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, "Invalid filter: "+err.Error())
			return
		}
		filters = append(filters, spec)
	}

	rows, err := h.service.Fetch(r.Context(), reporting.FetchParams{
		DataSourceID: req.DataSourceID,
		Measure:      req.Measure,
		PracticeID:   req.PracticeID,
		ProviderID:   req.ProviderID,
		Frequency:    req.Frequency,
		Filters:      filters,
		DateFrom:     req.DateFrom,
		DateTo:       req.DateTo,
	}, reporting.UserContext{
		UserID: userID,
		Scope:  domain.PermissionScope(req.Scope),
	}, req.SkipCache)
	if err != nil {
		h.handleError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, FetchResponse{Rows: rows, RowCount: len(rows)})
}

// Stats handles GET /api/v1/analytics/stats.
func (h *AnalyticsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.Collect(r.Context())
	if err != nil {
		h.handleError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, stats)
}

// Invalidate handles DELETE /api/v1/analytics/cache. Without a dataSourceId
// query parameter the whole analytics keyspace is cleared.
func (h *AnalyticsHandler) Invalidate(w http.ResponseWriter, r *http.Request) {
	rawID := r.URL.Query().Get("dataSourceId")
	measure := r.URL.Query().Get("measure")

	if rawID == "" {
		if measure != "" {
			h.respondError(w, http.StatusBadRequest, "measure requires dataSourceId")
			return
		}
		deleted, err := h.service.InvalidateAll(r.Context())
		if err != nil {
			h.handleError(w, err)
			return
		}
		h.respondJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
		return
	}

	dataSourceID, err := strconv.Atoi(rawID)
	if err != nil || dataSourceID <= 0 {
		h.respondError(w, http.StatusBadRequest, "Invalid dataSourceId")
		return
	}
	deleted, err := h.service.Invalidate(r.Context(), dataSourceID, measure)
	if err != nil {
		h.handleError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}

// Warm handles POST /api/v1/analytics/warm/{dataSourceID}.
func (h *AnalyticsHandler) Warm(w http.ResponseWriter, r *http.Request) {
	rawID := chi.URLParam(r, "dataSourceID")
	dataSourceID, err := strconv.Atoi(rawID)
	if err != nil || dataSourceID <= 0 {
		h.respondError(w, http.StatusBadRequest, "Invalid data source ID")
		return
	}

	result, err := h.warmer.Warm(r.Context(), dataSourceID)
	if err != nil {
		h.handleError(w, err)
		return
	}
	status := http.StatusOK
	if result.Skipped {
		// Another warmer holds the lock; the request was accepted but did
		// no work.
		status = http.StatusAccepted
	}
	h.respondJSON(w, status, result)
}

// WarmAll handles POST /api/v1/analytics/warm.
func (h *AnalyticsHandler) WarmAll(w http.ResponseWriter, r *http.Request) {
	result, err := h.warmer.WarmAll(r.Context())
	if err != nil {
		h.handleError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, result)
}

// Helper methods

// handleError maps application errors onto HTTP statuses. Security-relevant
// rejections are logged before the response goes out.
func (h *AnalyticsHandler) handleError(w http.ResponseWriter, err error) {
	if appErrors.IsSecurity(err) {
		h.logger.Warn("security-relevant rejection", zap.Error(err))
	}
	switch {
	case appErrors.IsType(err, appErrors.ErrorTypeValidation):
		h.respondError(w, http.StatusBadRequest, err.Error())
	case appErrors.IsType(err, appErrors.ErrorTypeForbidden):
		h.respondError(w, http.StatusForbidden, "Forbidden")
	case appErrors.IsType(err, appErrors.ErrorTypeNotFound):
		h.respondError(w, http.StatusNotFound, err.Error())
	default:
		h.logger.Error("request failed", zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func (h *AnalyticsHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (h *AnalyticsHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]interface{}{
		"error":   true,
		"message": message,
		"code":    status,
	})
}
