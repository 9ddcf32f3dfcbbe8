/*
handlers.go - HTTP API handlers for the finance analytics service

PURPOSE:
  Exposes ingestion, metrics, analytics and the natural-language
  endpoint over REST. Handles HTTP request/response, JSON serialization,
  and delegates to the domain layers.

ENDPOINTS:
  Health:
    GET  /                              Service banner + endpoint index
    GET  /health                        Liveness check

  Ingestion:
    POST /ingest/quickbooks             Ingest a QuickBooks P&L export
    POST /ingest/rootfi                 Ingest a RootFi export

  Metrics:
    GET  /api/v1/metrics/summary        Metric rows (year/source filters)
    GET  /api/v1/metrics/trend          One metric's time series
    GET  /api/v1/expenses/top_increase  Expense movers for a year
    GET  /api/v1/analytics/anomalies    Z-score outliers for a metric

  NLQ:
    POST /api/v1/nlq                    Natural-language question
                                        (X-Model header forces the model)

  Observability:
    GET  /api/v1/obs/traces/recent      Latest reasoning traces
    GET  /api/v1/obs/traces/by_conv     Traces for one conversation

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Malformed body, bad metric name, missing required params
  - 500: Store failures
  Empty result windows are 200s with well-formed empty shapes.

SEE ALSO:
  - dto.go: Request/response envelopes
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/charmbracelet/log"

	"github.com/finsight/finance-engine/analytics"
	"github.com/finsight/finance-engine/ledger"
	"github.com/finsight/finance-engine/nlq"
	"github.com/finsight/finance-engine/statement"
	"github.com/finsight/finance-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     *sqlite.Store
	Ingester  *statement.Ingester
	Analytics *analytics.Engine
	NLQ       *nlq.Service
	Log       *log.Logger
}

// NewHandler wires the handler over the given components.
func NewHandler(store *sqlite.Store, ing *statement.Ingester, eng *analytics.Engine, svc *nlq.Service, logger *log.Logger) *Handler {
	return &Handler{Store: store, Ingester: ing, Analytics: eng, NLQ: svc, Log: logger}
}

// =============================================================================
// HEALTH
// =============================================================================

// Root returns the service banner and an endpoint index.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"service": "Finance Analytics API",
		"endpoints": map[string]string{
			"ingest_quickbooks":     "/ingest/quickbooks",
			"ingest_rootfi":         "/ingest/rootfi",
			"metrics_summary":       "/api/v1/metrics/summary?year=2024&source=rootfi",
			"metrics_trend":         "/api/v1/metrics/trend?metric=revenue&year=2024",
			"expenses_top_increase": "/api/v1/expenses/top_increase?year=2024",
			"anomalies":             "/api/v1/analytics/anomalies?metric=revenue&year=2024",
			"nlq":                   "/api/v1/nlq",
		},
	})
}

// Health is the liveness check.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// INGESTION
// =============================================================================

// IngestQuickBooks ingests a QuickBooks P&L export.
func (h *Handler) IngestQuickBooks(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	result, err := h.Ingester.IngestQuickBooks(r.Context(), req.Payload)
	if err != nil {
		writeError(w, http.StatusBadRequest, "QuickBooks ingest failed", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// IngestRootFi ingests a RootFi export.
func (h *Handler) IngestRootFi(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	result, err := h.Ingester.IngestRootFi(r.Context(), req.Payload)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Rootfi ingest failed", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// =============================================================================
// METRICS
// =============================================================================

// MetricsSummary returns metric rows, optionally filtered by year and
// source.
func (h *Handler) MetricsSummary(w http.ResponseWriter, r *http.Request) {
	year := intQuery(r, "year", 0)
	source := ledger.Source(r.URL.Query().Get("source"))
	rows, err := h.Store.Summary(r.Context(), year, source)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load summary", err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// MetricsTrend returns one metric's time series.
func (h *Handler) MetricsTrend(w http.ResponseWriter, r *http.Request) {
	metric := r.URL.Query().Get("metric")
	if !ledger.ValidMetricName(metric) {
		writeError(w, http.StatusBadRequest, "Unknown metric", nil)
		return
	}
	year := intQuery(r, "year", 0)
	source := ledger.Source(r.URL.Query().Get("source"))
	trend, err := h.Store.Trend(r.Context(), metric, year, source)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load trend", err)
		return
	}
	writeJSON(w, http.StatusOK, trend)
}

// ExpensesTopIncrease ranks expense accounts by their increase over the
// year. Years with no expense facts return an empty shape, not an
// error.
func (h *Handler) ExpensesTopIncrease(w http.ResponseWriter, r *http.Request) {
	yearStr := r.URL.Query().Get("year")
	year, err := strconv.Atoi(yearStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "year is required", err)
		return
	}
	source := ledger.Source(r.URL.Query().Get("source"))
	limit := intQuery(r, "limit", 5)
	report, err := h.Store.ExpensesIncreaseTop(r.Context(), year, source, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to rank expenses", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Anomalies scans a metric series for z-score outliers.
func (h *Handler) Anomalies(w http.ResponseWriter, r *http.Request) {
	metric := r.URL.Query().Get("metric")
	if !ledger.ValidMetricName(metric) {
		writeError(w, http.StatusBadRequest, "Unknown metric", nil)
		return
	}
	year := intQuery(r, "year", 0)
	source := ledger.Source(r.URL.Query().Get("source"))
	threshold := 2.0
	if z := r.URL.Query().Get("z"); z != "" {
		v, err := strconv.ParseFloat(z, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid z threshold", err)
			return
		}
		threshold = v
	}
	report, err := h.Analytics.Anomalies(r.Context(), metric, year, source, threshold)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Anomaly scan failed", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// =============================================================================
// NLQ
// =============================================================================

// AnswerQuestion answers one natural-language question. The X-Model
// header forces a specific model for the LLM fallback.
func (h *Handler) AnswerQuestion(w http.ResponseWriter, r *http.Request) {
	var req NLQRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required", nil)
		return
	}
	resp, err := h.NLQ.Answer(r.Context(), req.Query, req.ConversationID, r.Header.Get("X-Model"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to answer question", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// OBSERVABILITY
// =============================================================================

// RecentTraces returns the latest reasoning traces.
func (h *Handler) RecentTraces(w http.ResponseWriter, r *http.Request) {
	limit := intQuery(r, "limit", 50)
	rows, err := h.Store.RecentTraces(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load traces", err)
		return
	}
	writeJSON(w, http.StatusOK, TraceRowsResponse{Rows: rows})
}

// TracesByConversation returns every trace logged for one conversation.
func (h *Handler) TracesByConversation(w http.ResponseWriter, r *http.Request) {
	convID := r.URL.Query().Get("conversation_id")
	if convID == "" {
		writeError(w, http.StatusBadRequest, "conversation_id is required", nil)
		return
	}
	rows, err := h.Store.TracesByConversation(r.Context(), convID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load traces", err)
		return
	}
	writeJSON(w, http.StatusOK, TraceRowsResponse{Rows: rows})
}

// =============================================================================
// HELPERS
// =============================================================================

func intQuery(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
