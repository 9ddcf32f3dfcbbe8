package statement_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsight/finance-engine/ledger"
	"github.com/finsight/finance-engine/statement"
	"github.com/finsight/finance-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestIngester(t *testing.T) (*statement.Ingester, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return statement.NewIngester(store), store
}

// qbPayload builds a two-month report with one leaf row per account.
// Each row slice is {account, janValue, febValue, totalValue}.
func qbPayload(rows [][]string) string {
	cols := `{"Column":[
		{"ColTitle":""},
		{"ColTitle":"Jan 2024","MetaData":[{"Name":"StartDate","Value":"2024-01-01"},{"Name":"EndDate","Value":"2024-01-31"}]},
		{"ColTitle":"Feb 2024","MetaData":[{"Name":"StartDate","Value":"2024-02-01"},{"Name":"EndDate","Value":"2024-02-29"}]},
		{"ColTitle":"Total"}
	]}`
	body := ""
	for i, r := range rows {
		if i > 0 {
			body += ","
		}
		body += fmt.Sprintf(`{"ColData":[{"value":"%s"},{"value":"%s"},{"value":"%s"},{"value":"%s"}]}`,
			r[0], r[1], r[2], r[3])
	}
	return fmt.Sprintf(`{"Columns":%s,"Rows":{"Row":[%s]}}`, cols, body)
}

// =============================================================================
// FLATTENING TESTS
// =============================================================================

func TestIngestQuickBooks_MonthlyColumns(t *testing.T) {
	// GIVEN: A report with Jan and Feb columns plus a Total column
	// WHEN: Ingesting a single Income row
	// THEN: One revenue fact per month; the Total column yields nothing

	ing, store := newTestIngester(t)
	ctx := context.Background()

	payload := qbPayload([][]string{{"Income", "1000", "2000", "3000"}})
	result, err := ing.IngestQuickBooks(ctx, []byte(payload))
	require.NoError(t, err)

	assert.Equal(t, ledger.SourceQuickBooks, result.Source)
	assert.Equal(t, 2, result.InsertedFacts)
	assert.Equal(t, 2, result.InsertedMetrics)
	assert.Equal(t, []string{"2024-01-31", "2024-02-29"}, result.Periods)

	metrics, err := store.Summary(ctx, 2024, ledger.SourceQuickBooks)
	require.NoError(t, err)
	require.Len(t, metrics, 2)

	assert.Equal(t, 1000.0, metrics[0].Revenue)
	assert.Equal(t, 2000.0, metrics[1].Revenue)
	// Gross profit equals revenue when no COGS is present.
	assert.Equal(t, 1000.0, metrics[0].GrossProfit)
	assert.Equal(t, 2000.0, metrics[1].GrossProfit)
	// QuickBooks cannot supply net profit.
	assert.Nil(t, metrics[0].NetProfit)
	assert.Nil(t, metrics[1].NetProfit)
}

func TestIngestQuickBooks_CategorizedMetrics(t *testing.T) {
	// GIVEN: Revenue, COGS and expense rows
	// WHEN: Ingesting
	// THEN: Metrics aggregate per category with gross = revenue - cogs

	ing, store := newTestIngester(t)
	ctx := context.Background()

	payload := qbPayload([][]string{
		{"Product Sales", "1000", "1100", "2100"},
		{"Cost of Goods Sold", "400", "450", "850"},
		{"Office Expense", "100", "120", "220"},
		{"Miscellaneous", "5", "5", "10"},
	})
	_, err := ing.IngestQuickBooks(ctx, []byte(payload))
	require.NoError(t, err)

	metrics, err := store.Summary(ctx, 2024, ledger.SourceQuickBooks)
	require.NoError(t, err)
	require.Len(t, metrics, 2)

	jan := metrics[0]
	assert.Equal(t, "2024-01-31", jan.PeriodEnd)
	assert.Equal(t, 1000.0, jan.Revenue)
	assert.Equal(t, 400.0, jan.COGS)
	assert.Equal(t, 600.0, jan.GrossProfit)
	assert.Equal(t, 100.0, jan.Expenses)
}

func TestIngestQuickBooks_GroupSummaryFallbacks(t *testing.T) {
	// GIVEN: A group with a nameless summary row and a nameless leaf
	// WHEN: Flattening
	// THEN: The header label backfills both; the summary fact is kind=total

	ing, store := newTestIngester(t)
	ctx := context.Background()

	payload := `{
		"Columns":{"Column":[
			{"ColTitle":""},
			{"ColTitle":"Jan 2024","MetaData":[{"Name":"StartDate","Value":"2024-01-01"},{"Name":"EndDate","Value":"2024-01-31"}]}
		]},
		"Rows":{"Row":[
			{
				"Header":{"ColData":[{"value":"Income"}]},
				"Rows":{"Row":[
					{"ColData":[{"value":""},{"value":"250"}]}
				]},
				"Summary":{"ColData":[{"value":""},{"value":"250"}]}
			}
		]}
	}`
	result, err := ing.IngestQuickBooks(ctx, []byte(payload))
	require.NoError(t, err)
	assert.Equal(t, 2, result.InsertedFacts)

	totals, err := store.CategoryTotals(ctx, ledger.SourceQuickBooks, "2024-01")
	require.NoError(t, err)
	// Leaf 250 + summary 250 both categorize as Income -> revenue.
	assert.Equal(t, 500.0, totals.Revenue)
}

func TestIngestQuickBooks_DataEnvelope(t *testing.T) {
	ing, _ := newTestIngester(t)
	wrapped := fmt.Sprintf(`{"data":%s}`, qbPayload([][]string{{"Income", "10", "20", "30"}}))

	result, err := ing.IngestQuickBooks(context.Background(), []byte(wrapped))
	require.NoError(t, err)
	assert.Equal(t, 2, result.InsertedFacts)
}

func TestIngestQuickBooks_UnrecognizedPayload(t *testing.T) {
	ing, _ := newTestIngester(t)

	_, err := ing.IngestQuickBooks(context.Background(), []byte(`{"Columns":{"Column":[]}}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, statement.ErrUnrecognizedPayload)

	var ingErr *statement.IngestError
	assert.ErrorAs(t, err, &ingErr)
	assert.Equal(t, ledger.SourceQuickBooks, ingErr.Source)
}

// =============================================================================
// IDEMPOTENCY TESTS
// =============================================================================

func TestIngestQuickBooks_ReingestIsIdempotent(t *testing.T) {
	// GIVEN: A payload already ingested
	// WHEN: Ingesting it again
	// THEN: Fact counts and metric sums do not inflate

	ing, store := newTestIngester(t)
	ctx := context.Background()
	payload := []byte(qbPayload([][]string{{"Income", "1000", "2000", "3000"}}))

	_, err := ing.IngestQuickBooks(ctx, payload)
	require.NoError(t, err)
	_, err = ing.IngestQuickBooks(ctx, payload)
	require.NoError(t, err)

	count, err := store.CountFacts(ctx, ledger.SourceQuickBooks)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	metrics, err := store.Summary(ctx, 2024, ledger.SourceQuickBooks)
	require.NoError(t, err)
	require.Len(t, metrics, 2)
	assert.Equal(t, 1000.0, metrics[0].Revenue)
}
