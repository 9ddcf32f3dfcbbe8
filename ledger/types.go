/*
types.go - Core domain types for the fact/metric ledger

PURPOSE:
  Defines the value types shared by the flatteners, the store and the
  analytics layer:

  Fact:   one immutable observation of an account's amount for a period.
          Facts are the audit trail; they are appended during ingestion
          and never mutated.
  Metric: the derived per-period, per-source financial summary. Metrics
          are the queryable projection and are fully replaced on every
          upsert for their (period_end, source) key.

INVARIANTS:
  - Metric.GrossProfit == Metric.Revenue - Metric.COGS after any upsert.
    The store recomputes it on write; it is never supplied independently.
  - Fact.MonthKey is derived from Fact.PeriodEnd (YYYY-MM) and is the
    aggregation grain linking Facts to Metrics.

DATES:
  Periods travel as ISO date strings (the form both source exports use).
  An empty string means "absent". MonthKey is always YYYY-MM.

SEE ALSO:
  - ledger/store.go: Store interface over these types
  - statement/: flatteners producing Facts
*/
package ledger

// Source identifies which export schema a fact or metric came from.
type Source string

const (
	SourceQuickBooks Source = "quickbooks"
	SourceRootFi     Source = "rootfi"
)

// Category is the coarse P&L bucket a fact is classified into.
type Category string

const (
	CategoryRevenue Category = "revenue"
	CategoryCOGS    Category = "cogs"
	CategoryExpense Category = "expense"
	CategoryOther   Category = "other"
)

// Kind marks whether a fact came from a leaf line item or a
// summary/subtotal row.
type Kind string

const (
	KindAmount Kind = "amount"
	KindTotal  Kind = "total"
)

// Fact is one normalized observation from a statement export.
type Fact struct {
	PeriodStart string   `json:"period_start,omitempty"`
	PeriodEnd   string   `json:"period_end"`
	MonthKey    string   `json:"month_key,omitempty"`
	Source      Source   `json:"source"`
	Account     string   `json:"account"`
	Category    Category `json:"category"`
	Kind        Kind     `json:"kind"`
	Amount      float64  `json:"amount"`
}

// Metric is the derived summary for one (period_end, source) key.
// NetProfit is nil when the source cannot supply it (QuickBooks).
type Metric struct {
	PeriodEnd   string   `json:"period_end"`
	Source      Source   `json:"source"`
	Revenue     float64  `json:"revenue"`
	COGS        float64  `json:"cogs"`
	GrossProfit float64  `json:"gross_profit"`
	Expenses    float64  `json:"expenses"`
	NetProfit   *float64 `json:"net_profit"`
}

// IngestResult summarizes one ingestion call.
type IngestResult struct {
	Source          Source   `json:"source"`
	InsertedFacts   int      `json:"inserted_facts"`
	InsertedMetrics int      `json:"inserted_metrics"`
	Periods         []string `json:"periods"`
}

// TrendPoint is one point of a metric time series. Value is nil when the
// underlying column is null (net_profit for QuickBooks periods).
type TrendPoint struct {
	PeriodEnd string   `json:"period_end"`
	Value     *float64 `json:"value"`
	Source    Source   `json:"source"`
}

// Trend is a metric time series ordered by period end.
type Trend struct {
	Metric string       `json:"metric"`
	Points []TrendPoint `json:"points"`
}

// PeriodSums aggregates metric columns over an inclusive month range.
// Missing net_profit values contribute zero.
type PeriodSums struct {
	Revenue     float64 `json:"revenue"`
	COGS        float64 `json:"cogs"`
	GrossProfit float64 `json:"gross_profit"`
	Expenses    float64 `json:"expenses"`
	NetProfit   float64 `json:"net_profit"`
}

// CategoryTotals holds per-category fact sums for one month key.
type CategoryTotals struct {
	Revenue  float64
	COGS     float64
	Expenses float64
}

// ExpenseIncrease is one account's amount change between the first and
// last expense-bearing months of a year.
type ExpenseIncrease struct {
	Account  string  `json:"account"`
	Increase float64 `json:"increase"`
	First    float64 `json:"first"`
	Last     float64 `json:"last"`
}

// ExpenseIncreaseReport is the full top-movers result. FirstMonth and
// LastMonth are nil when the year has no expense facts; Top is then
// empty, never nil.
type ExpenseIncreaseReport struct {
	Year       int               `json:"year"`
	FirstMonth *string           `json:"first_month"`
	LastMonth  *string           `json:"last_month"`
	Top        []ExpenseIncrease `json:"top"`
}

// MetricNames enumerates the queryable metric columns, in display order.
var MetricNames = []string{"revenue", "cogs", "gross_profit", "expenses", "net_profit"}

// ValidMetricName reports whether name is a queryable metric column.
func ValidMetricName(name string) bool {
	for _, m := range MetricNames {
		if m == name {
			return true
		}
	}
	return false
}
