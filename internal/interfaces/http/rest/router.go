// Package rest assembles the chi router for the reporting backend.
package rest

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"reporting-backend/internal/interfaces/http/handlers"
)

// Router wires handlers and middleware into a single http.Handler.
type Router struct {
	analytics *handlers.AnalyticsHandler
	health    *handlers.HealthHandler
	registry  *prometheus.Registry
	logger    *zap.Logger
}

// NewRouter creates a router over the given handlers.
func NewRouter(
	analytics *handlers.AnalyticsHandler,
	health *handlers.HealthHandler,
	registry *prometheus.Registry,
	logger *zap.Logger,
) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{analytics: analytics, health: health, registry: registry, logger: logger}
}

// Setup configures all routes and middleware.
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	// Global middleware
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(requestLogger(rt.logger))

	// Health check and metrics
	router.Get("/health", rt.health.Health)
	if rt.registry != nil {
		router.Handle("/metrics", promhttp.HandlerFor(rt.registry, promhttp.HandlerOpts{}))
	}

	// API v1 routes
	router.Route("/api/v1/analytics", func(r chi.Router) {
		r.Post("/fetch", rt.analytics.Fetch)
		r.Get("/stats", rt.analytics.Stats)
		r.Delete("/cache", rt.analytics.Invalidate)
		r.Post("/warm", rt.analytics.WarmAll)
		r.Post("/warm/{dataSourceID}", rt.analytics.Warm)
	})

	return router
}

// requestLogger logs one structured line per request.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("elapsed", time.Since(started)),
				zap.String("request_id", chimiddleware.GetReqID(r.Context())),
			)
		})
	}
}
