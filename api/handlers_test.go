package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsight/finance-engine/analytics"
	"github.com/finsight/finance-engine/api"
	"github.com/finsight/finance-engine/ledger"
	"github.com/finsight/finance-engine/nlq"
	"github.com/finsight/finance-engine/statement"
	"github.com/finsight/finance-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logger := log.New(os.Stderr)
	ingester := statement.NewIngester(store)
	engine := analytics.New(store)
	service := nlq.New(store, nlq.Config{}, logger)

	handler := api.NewHandler(store, ingester, engine, service, logger)
	srv := httptest.NewServer(api.NewRouter(handler, logger))
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func rootfiPayload() map[string]any {
	var payload any
	raw := `[{
		"period_start": "2024-01-01",
		"period_end": "2024-01-31",
		"revenue": [{"name": "Sales", "value": 1000}],
		"cost_of_goods_sold": [{"name": "Parts", "value": 400}],
		"expenses": [{"name": "Rent", "value": 100}],
		"net_profit": 500
	}]`
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		panic(err)
	}
	return map[string]any{"payload": payload}
}

// =============================================================================
// HEALTH
// =============================================================================

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	var health map[string]string
	decodeBody(t, resp, &health)
	assert.Equal(t, "ok", health["status"])

	resp, err = http.Get(srv.URL + "/")
	require.NoError(t, err)
	var root map[string]any
	decodeBody(t, resp, &root)
	assert.Equal(t, true, root["ok"])
	assert.NotEmpty(t, root["endpoints"])
}

// =============================================================================
// INGEST -> QUERY FLOW
// =============================================================================

func TestIngestThenSummary(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/ingest/rootfi", rootfiPayload())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result ledger.IngestResult
	decodeBody(t, resp, &result)
	assert.Equal(t, ledger.SourceRootFi, result.Source)
	assert.Equal(t, 3, result.InsertedFacts)

	resp, err := http.Get(srv.URL + "/api/v1/metrics/summary?year=2024&source=rootfi")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var metrics []ledger.Metric
	decodeBody(t, resp, &metrics)
	require.Len(t, metrics, 1)
	assert.Equal(t, 1000.0, metrics[0].Revenue)
	assert.Equal(t, 600.0, metrics[0].GrossProfit)
	require.NotNil(t, metrics[0].NetProfit)
	assert.Equal(t, 500.0, *metrics[0].NetProfit)
}

func TestIngest_BadPayloadIs400(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/ingest/quickbooks", map[string]any{"payload": map[string]any{"bogus": 1}})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// =============================================================================
// METRICS
// =============================================================================

func TestTrend_ValidatesMetricName(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/metrics/trend?metric=bogus")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/v1/metrics/trend?metric=revenue")
	require.NoError(t, err)
	var trend ledger.Trend
	decodeBody(t, resp, &trend)
	assert.Equal(t, "revenue", trend.Metric)
	assert.NotNil(t, trend.Points)
}

func TestExpensesTopIncrease_RequiresYear(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/expenses/top_increase")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/v1/expenses/top_increase?year=2024")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var report ledger.ExpenseIncreaseReport
	decodeBody(t, resp, &report)
	assert.Equal(t, 2024, report.Year)
	assert.Nil(t, report.FirstMonth)
	assert.Empty(t, report.Top)
}

func TestAnomalies_EmptyLedgerIs200(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/analytics/anomalies?metric=revenue&year=2024")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var report analytics.AnomalyReport
	decodeBody(t, resp, &report)
	assert.Equal(t, "revenue", report.Metric)
	assert.Empty(t, report.Flags)
}

// =============================================================================
// NLQ + TRACES
// =============================================================================

func TestNLQ_RuleBasedAnswerAndTraces(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/ingest/rootfi", rootfiPayload())
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/api/v1/nlq", map[string]string{
		"query": "What was the total profit in Q1 2024?",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out nlq.Response
	decodeBody(t, resp, &out)
	assert.Contains(t, out.Answer, "Q1 2024 profit was 500.00")
	require.NotEmpty(t, out.ConversationID)

	// The trace for that conversation is queryable.
	traceResp, err := http.Get(fmt.Sprintf("%s/api/v1/obs/traces/by_conv?conversation_id=%s", srv.URL, out.ConversationID))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, traceResp.StatusCode)
	var rows struct {
		Rows []map[string]any `json:"rows"`
	}
	decodeBody(t, traceResp, &rows)
	require.Len(t, rows.Rows, 1)
	assert.Equal(t, "What was the total profit in Q1 2024?", rows.Rows[0]["question"])
}

func TestNLQ_MissingQueryIs400(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/v1/nlq", map[string]string{})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRecentTraces(t *testing.T) {
	srv := newTestServer(t)

	for i := 0; i < 2; i++ {
		resp := postJSON(t, srv.URL+"/api/v1/nlq", map[string]string{"query": "Show me revenue trends for 2024"})
		resp.Body.Close()
	}

	resp, err := http.Get(srv.URL + "/api/v1/obs/traces/recent?limit=1")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rows struct {
		Rows []map[string]any `json:"rows"`
	}
	decodeBody(t, resp, &rows)
	assert.Len(t, rows.Rows, 1)
}

// =============================================================================
// PROMETHEUS
// =============================================================================

func TestMetricsExposition(t *testing.T) {
	srv := newTestServer(t)

	// Generate one instrumented request first.
	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	buf := new(bytes.Buffer)
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "fa_requests_total")
	assert.Contains(t, buf.String(), "fa_request_latency_ms")
}
