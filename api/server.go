/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. CORS:       Cross-origin requests for dashboards
  4. obs:        Prometheus counters + structured access log

SECURITY NOTE:
  No authentication middleware. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - obs/metrics.go: Instrumentation middleware
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/finsight/finance-engine/obs"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, logger *log.Logger) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Model"},
		AllowCredentials: false,
	}))
	r.Use(obs.Middleware(logger))

	// Health
	r.Get("/", h.Root)
	r.Get("/health", h.Health)

	// Ingestion
	r.Route("/ingest", func(r chi.Router) {
		r.Post("/quickbooks", h.IngestQuickBooks)
		r.Post("/rootfi", h.IngestRootFi)
	})

	// Versioned API
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/metrics", func(r chi.Router) {
			r.Get("/summary", h.MetricsSummary)
			r.Get("/trend", h.MetricsTrend)
		})
		r.Get("/expenses/top_increase", h.ExpensesTopIncrease)
		r.Get("/analytics/anomalies", h.Anomalies)
		r.Post("/nlq", h.AnswerQuestion)
		r.Route("/obs", func(r chi.Router) {
			r.Get("/traces/recent", h.RecentTraces)
			r.Get("/traces/by_conv", h.TracesByConversation)
		})
	})

	// Prometheus exposition
	r.Handle("/metrics", obs.MetricsHandler())

	return r
}
