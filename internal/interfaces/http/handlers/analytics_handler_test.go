package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	domain "reporting-backend/internal/domain/reporting"
	appErrors "reporting-backend/internal/errors"
	"reporting-backend/internal/infrastructure/cache"
	"reporting-backend/internal/reporting"
	"reporting-backend/internal/warmer"
)

type MockFetchService struct{ mock.Mock }

func (m *MockFetchService) Fetch(ctx context.Context, params reporting.FetchParams, userCtx reporting.UserContext, skipCache bool) ([]domain.Row, error) {
	args := m.Called(ctx, params, userCtx, skipCache)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Row), args.Error(1)
}

func (m *MockFetchService) Invalidate(ctx context.Context, dataSourceID int, measure string) (int, error) {
	args := m.Called(ctx, dataSourceID, measure)
	return args.Int(0), args.Error(1)
}

func (m *MockFetchService) InvalidateAll(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type MockWarmService struct{ mock.Mock }

func (m *MockWarmService) Warm(ctx context.Context, dataSourceID int) (warmer.WarmResult, error) {
	args := m.Called(ctx, dataSourceID)
	return args.Get(0).(warmer.WarmResult), args.Error(1)
}

func (m *MockWarmService) WarmAll(ctx context.Context) (warmer.WarmAllResult, error) {
	args := m.Called(ctx)
	return args.Get(0).(warmer.WarmAllResult), args.Error(1)
}

type MockStatsService struct{ mock.Mock }

func (m *MockStatsService) Collect(ctx context.Context) (cache.Stats, error) {
	args := m.Called(ctx)
	return args.Get(0).(cache.Stats), args.Error(1)
}

func newHandler() (*AnalyticsHandler, *MockFetchService, *MockWarmService, *MockStatsService) {
	service := new(MockFetchService)
	warmSvc := new(MockWarmService)
	stats := new(MockStatsService)
	return NewAnalyticsHandler(service, warmSvc, stats, zap.NewNop()), service, warmSvc, stats
}

func TestFetch_Success(t *testing.T) {
	// Arrange
	handler, service, _, _ := newHandler()
	rows := []domain.Row{{"practice_id": 114.0, "total": 50.0}}
	service.On("Fetch", mock.Anything, mock.MatchedBy(func(p reporting.FetchParams) bool {
		return p.DataSourceID == 1 && p.Measure == "Charges"
	}), reporting.UserContext{UserID: "user-1", Scope: domain.ScopeOrganization}, false).
		Return(rows, nil)

	body, _ := json.Marshal(FetchRequest{
		DataSourceID: 1,
		Measure:      "Charges",
		Scope:        "organization",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analytics/fetch", bytes.NewReader(body))
	req.Header.Set("X-User-ID", "user-1")
	rec := httptest.NewRecorder()

	// Act
	handler.Fetch(rec, req)

	// Assert
	assert.Equal(t, http.StatusOK, rec.Code)
	var resp FetchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.RowCount)
	service.AssertExpectations(t)
}

func TestFetch_MissingUserIsUnauthorized(t *testing.T) {
	handler, service, _, _ := newHandler()
	body, _ := json.Marshal(FetchRequest{DataSourceID: 1})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analytics/fetch", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	handler.Fetch(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	service.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestFetch_InvalidBodyRejected(t *testing.T) {
	handler, _, _, _ := newHandler()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analytics/fetch", bytes.NewReader([]byte("{")))
	req.Header.Set("X-User-ID", "user-1")
	rec := httptest.NewRecorder()

	handler.Fetch(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFetch_ValidationFailures(t *testing.T) {
	handler, _, _, _ := newHandler()
	cases := []struct {
		name string
		req  FetchRequest
	}{
		{"missing data source", FetchRequest{Measure: "Charges"}},
		{"bad scope", FetchRequest{DataSourceID: 1, Scope: "galaxy"}},
		{"bad operator", FetchRequest{DataSourceID: 1, Filters: []FilterRequest{
			{Field: "payer_name", Operator: "regex", Value: ".*"},
		}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body, _ := json.Marshal(tc.req)
			req := httptest.NewRequest(http.MethodPost, "/api/v1/analytics/fetch", bytes.NewReader(body))
			req.Header.Set("X-User-ID", "user-1")
			rec := httptest.NewRecorder()

			handler.Fetch(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestFetch_ForbiddenMapsTo403(t *testing.T) {
	handler, service, _, _ := newHandler()
	service.On("Fetch", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, appErrors.Forbidden("SCOPE_MISMATCH", "scope not granted"))

	body, _ := json.Marshal(FetchRequest{DataSourceID: 1, Scope: "all"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analytics/fetch", bytes.NewReader(body))
	req.Header.Set("X-User-ID", "claimer")
	rec := httptest.NewRecorder()

	handler.Fetch(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestInvalidate_WithDataSource(t *testing.T) {
	handler, service, _, _ := newHandler()
	service.On("Invalidate", mock.Anything, 3, "Charges").Return(4, nil)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/analytics/cache?dataSourceId=3&measure=Charges", nil)
	rec := httptest.NewRecorder()

	handler.Invalidate(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"deleted": 4}`, rec.Body.String())
}

func TestInvalidate_WholeKeyspace(t *testing.T) {
	handler, service, _, _ := newHandler()
	service.On("InvalidateAll", mock.Anything).Return(12, nil)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/analytics/cache", nil)
	rec := httptest.NewRecorder()

	handler.Invalidate(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"deleted": 12}`, rec.Body.String())
}

func TestInvalidate_MeasureWithoutDataSourceRejected(t *testing.T) {
	handler, _, _, _ := newHandler()
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/analytics/cache?measure=Charges", nil)
	rec := httptest.NewRecorder()

	handler.Invalidate(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWarm_SkippedReturnsAccepted(t *testing.T) {
	handler, _, warmSvc, _ := newHandler()
	warmSvc.On("Warm", mock.Anything, 2).Return(warmer.WarmResult{DataSourceID: 2, Skipped: true}, nil)

	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("dataSourceID", "2")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analytics/warm/2", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	rec := httptest.NewRecorder()

	handler.Warm(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestWarm_InvalidIDRejected(t *testing.T) {
	handler, _, warmSvc, _ := newHandler()

	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("dataSourceID", "abc")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analytics/warm/abc", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	rec := httptest.NewRecorder()

	handler.Warm(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	warmSvc.AssertNotCalled(t, "Warm", mock.Anything, mock.Anything)
}

func TestStats_ReturnsCollectedSnapshot(t *testing.T) {
	handler, _, _, stats := newHandler()
	stats.On("Collect", mock.Anything).Return(cache.Stats{
		TotalKeys:         7,
		ApproxMemoryBytes: 7000,
		SampledKeys:       7,
		ByDataSource:      map[int]int{1: 4, 2: 3},
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/analytics/stats", nil)
	rec := httptest.NewRecorder()

	handler.Stats(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var got cache.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 7, got.TotalKeys)
	assert.Equal(t, int64(7000), got.ApproxMemoryBytes)
}
