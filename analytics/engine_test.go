package analytics_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsight/finance-engine/analytics"
	"github.com/finsight/finance-engine/ledger"
	"github.com/finsight/finance-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestEngine(t *testing.T) (*analytics.Engine, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return analytics.New(store), store
}

func seedRevenue(t *testing.T, store *sqlite.Store, values map[string]float64) {
	t.Helper()
	ctx := context.Background()
	for periodEnd, v := range values {
		require.NoError(t, store.UpsertMetric(ctx, ledger.Metric{
			PeriodEnd: periodEnd,
			Source:    ledger.SourceQuickBooks,
			Revenue:   v,
		}))
	}
}

// =============================================================================
// ANOMALY TESTS
// =============================================================================

func TestAnomalies_FlagsSpike(t *testing.T) {
	// GIVEN: A flat revenue series with one 10x spike
	// WHEN: Scanning with the default threshold
	// THEN: Only the spike is flagged, with a rounded z-score

	engine, store := newTestEngine(t)
	seedRevenue(t, store, map[string]float64{
		"2024-01-31": 100,
		"2024-02-29": 100,
		"2024-03-31": 100,
		"2024-04-30": 100,
		"2024-05-31": 100,
		"2024-06-30": 1000,
	})

	report, err := engine.Anomalies(context.Background(), "revenue", 2024, "", 2.0)
	require.NoError(t, err)

	assert.Equal(t, "revenue", report.Metric)
	assert.Len(t, report.Points, 6)
	require.NotNil(t, report.Mu)
	require.NotNil(t, report.SD)
	assert.InDelta(t, 250.0, *report.Mu, 1e-9)

	require.Len(t, report.Flags, 1)
	flag := report.Flags[0]
	assert.Equal(t, "2024-06-30", flag.PeriodEnd)
	assert.Equal(t, 1000.0, flag.Value)
	// Bessel sd of {100 x5, 1000} is ~367.4; z = 750/367.4 ~ 2.04.
	assert.Equal(t, 2.04, flag.Z)
}

func TestAnomalies_ThresholdIsInclusive(t *testing.T) {
	// GIVEN: 100/200/300, so the edge points sit at exactly |z| = 1
	// WHEN: Scanning with threshold 1.0
	// THEN: Both edge points are flagged; the midpoint (z=0) is not

	engine, store := newTestEngine(t)
	seedRevenue(t, store, map[string]float64{
		"2024-01-31": 100,
		"2024-02-29": 200,
		"2024-03-31": 300,
	})

	report, err := engine.Anomalies(context.Background(), "revenue", 2024, "", 1.0)
	require.NoError(t, err)

	require.Len(t, report.Flags, 2)
	assert.Equal(t, "2024-01-31", report.Flags[0].PeriodEnd)
	assert.Equal(t, -1.0, report.Flags[0].Z)
	assert.Equal(t, "2024-03-31", report.Flags[1].PeriodEnd)
	assert.Equal(t, 1.0, report.Flags[1].Z)
}

func TestAnomalies_TooFewPoints(t *testing.T) {
	// GIVEN: Fewer than three observations
	// WHEN: Scanning
	// THEN: No flags and no distribution stats

	engine, store := newTestEngine(t)
	seedRevenue(t, store, map[string]float64{
		"2024-01-31": 100,
		"2024-02-29": 5000,
	})

	report, err := engine.Anomalies(context.Background(), "revenue", 2024, "", 2.0)
	require.NoError(t, err)
	assert.Len(t, report.Points, 2)
	assert.Empty(t, report.Flags)
	assert.Nil(t, report.Mu)
	assert.Nil(t, report.SD)
}

func TestAnomalies_FlatSeriesNeverFlags(t *testing.T) {
	engine, store := newTestEngine(t)
	seedRevenue(t, store, map[string]float64{
		"2024-01-31": 100,
		"2024-02-29": 100,
		"2024-03-31": 100,
	})

	report, err := engine.Anomalies(context.Background(), "revenue", 2024, "", 2.0)
	require.NoError(t, err)
	assert.Empty(t, report.Flags)
	require.NotNil(t, report.SD)
	assert.Zero(t, *report.SD)
}

func TestAnomalies_NullPointsAreExcluded(t *testing.T) {
	// GIVEN: net_profit only present on some rows
	// WHEN: Scanning net_profit
	// THEN: Null points stay in the series output but not in the stats

	engine, store := newTestEngine(t)
	ctx := context.Background()
	np := func(v float64) *float64 { return &v }

	require.NoError(t, store.UpsertMetric(ctx, ledger.Metric{PeriodEnd: "2024-01-31", Source: ledger.SourceRootFi, NetProfit: np(10)}))
	require.NoError(t, store.UpsertMetric(ctx, ledger.Metric{PeriodEnd: "2024-02-29", Source: ledger.SourceRootFi, NetProfit: np(12)}))
	require.NoError(t, store.UpsertMetric(ctx, ledger.Metric{PeriodEnd: "2024-03-31", Source: ledger.SourceQuickBooks}))

	report, err := engine.Anomalies(ctx, "net_profit", 2024, "", 2.0)
	require.NoError(t, err)
	assert.Len(t, report.Points, 3)
	// Two non-null observations: below the minimum, so no stats.
	assert.Nil(t, report.Mu)
	assert.Empty(t, report.Flags)
}

func TestAnomalies_UnknownMetric(t *testing.T) {
	engine, _ := newTestEngine(t)
	_, err := engine.Anomalies(context.Background(), "nonsense", 0, "", 2.0)
	assert.Error(t, err)
}
