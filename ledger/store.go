/*
store.go - Persistence contract for facts and metrics

PURPOSE:
  Defines the storage interface the ingestion and analytics layers
  depend on. The store is constructed once at startup and passed into
  every component explicitly; there is no package-level handle.

CONTRACT NOTES:
  - InsertFact computes the month key from the period end when the
    caller left it empty.
  - ReplacePeriodFacts is the idempotent re-ingestion primitive: within
    one transaction it drops every fact for (source, month_key) and
    inserts the replacement set. Re-ingesting a payload therefore never
    inflates fact counts or metric sums.
  - UpsertMetric recomputes gross_profit from revenue and cogs on every
    write; callers cannot supply it independently.
  - Query methods never fail on empty windows; they return well-formed
    empty shapes.

SEE ALSO:
  - store/sqlite/sqlite.go: SQLite implementation
*/
package ledger

import "context"

// Store is the persistence interface for the fact/metric ledger.
type Store interface {
	// InsertFact appends a single fact. No dedup is applied.
	InsertFact(ctx context.Context, f Fact) error

	// ReplacePeriodFacts atomically replaces all facts for the given
	// (source, month_key) with the provided set.
	ReplacePeriodFacts(ctx context.Context, source Source, monthKey string, facts []Fact) error

	// CategoryTotals sums fact amounts per category for one source and
	// month key.
	CategoryTotals(ctx context.Context, source Source, monthKey string) (CategoryTotals, error)

	// UpsertMetric inserts or fully replaces the metric row keyed by
	// (period_end, source), recomputing gross profit.
	UpsertMetric(ctx context.Context, m Metric) error

	// Summary returns metric rows ordered by period end ascending.
	// year == 0 and source == "" disable the respective filters.
	Summary(ctx context.Context, year int, source Source) ([]Metric, error)

	// Trend returns the time series for one metric column. The metric
	// name must be one of MetricNames.
	Trend(ctx context.Context, metric string, year int, source Source) (Trend, error)

	// SumBetween aggregates metrics whose period month falls within the
	// inclusive [monthBegin, monthEnd] range of the given year.
	SumBetween(ctx context.Context, monthBegin, monthEnd, year int, source Source) (PeriodSums, error)

	// ExpensesIncreaseTop ranks expense accounts by their amount change
	// between the year's first and last expense-bearing months.
	ExpensesIncreaseTop(ctx context.Context, year int, source Source, limit int) (ExpenseIncreaseReport, error)
}
