/*
metrics.go - Prometheus instrumentation

PURPOSE:
  Process-wide collectors for HTTP traffic and AI token spend, plus the
  chi middleware that records them and the /metrics exposition handler.

COLLECTORS:
  fa_requests_total       counter  {method, path, status}
  fa_request_latency_ms   histogram
  fa_ai_tokens            counter  {kind, model}  kind: prompt|completion
*/
package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Requests counts HTTP requests by method, path and status.
	Requests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fa_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// Latency tracks request latency in milliseconds.
	Latency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fa_request_latency_ms",
		Help:    "Request latency (ms)",
		Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	})

	// AITokens counts LLM tokens by kind (prompt|completion) and model.
	AITokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fa_ai_tokens",
		Help: "AI tokens used",
	}, []string{"kind", "model"})
)

// MetricsHandler serves the Prometheus exposition format.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request counters, latency and a structured access
// log line for every request.
func Middleware(logger *log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			durMS := float64(time.Since(start).Microseconds()) / 1000.0
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			Requests.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(status)).Inc()
			Latency.Observe(durMS)

			logger.Info("request_done",
				"request_id", middleware.GetReqID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"duration_ms", durMS,
			)
		})
	}
}
