/*
quickbooks.go - QuickBooks P&L report flattener

PURPOSE:
  Walks a QuickBooks columnar report tree into flat facts. The report
  pairs a column list (each month carrying StartDate/EndDate metadata)
  with a recursive row tree where every node is either a group (Header +
  nested Rows + optional Summary) or a leaf (ColData).

ALGORITHM:
  1. Extract (start, end) per data column; a column with no end date
     (including the synthetic "Total" column) produces no facts.
  2. Flatten the row tree: leaves emit one record with the first column
     as the account; groups recurse carrying their header label for
     unlabeled children, then emit their Summary row (kind=total) using
     the summary's first column, the header label, or "Section Total".
  3. Cross records with qualifying columns: one fact per (record,
     column), value taken positionally, missing indexes as zero.
  4. Replace the touched periods' facts and re-aggregate a metric per
     distinct period end from the stored facts. Net profit stays null:
     it cannot be derived from the categorization heuristic alone.
*/
package statement

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/finsight/finance-engine/ledger"
)

// =============================================================================
// REPORT SHAPE
// =============================================================================

type qbCell struct {
	Value any `json:"value"`
}

type qbColList struct {
	ColData []qbCell `json:"ColData"`
}

type qbColumn struct {
	ColTitle string `json:"ColTitle"`
	MetaData []struct {
		Name  string `json:"Name"`
		Value string `json:"Value"`
	} `json:"MetaData"`
}

type qbRow struct {
	ColData []qbCell   `json:"ColData"`
	Header  *qbColList `json:"Header"`
	Summary *qbColList `json:"Summary"`
	Rows    *struct {
		Row []qbRow `json:"Row"`
	} `json:"Rows"`
}

type qbReport struct {
	Columns struct {
		Column []qbColumn `json:"Column"`
	} `json:"Columns"`
	Rows struct {
		Row []qbRow `json:"Row"`
	} `json:"Rows"`
}

// columnPeriod is the date range a data column covers. Empty strings
// mean the column carries no range (the "Total" column).
type columnPeriod struct {
	Start string
	End   string
}

// flatRecord is one flattened report row before column pairing.
type flatRecord struct {
	Account string
	Values  []any
	Summary bool
}

// =============================================================================
// FLATTENING (pure)
// =============================================================================

func cellString(v any) string {
	s, _ := v.(string)
	return s
}

// flattenQuickBooksRows walks the row tree and returns the flattened
// records for the subtree. Group headers provide the account label for
// unlabeled leaves beneath them.
func flattenQuickBooksRows(rows []qbRow, headerGroup string) []flatRecord {
	var flat []flatRecord
	for _, r := range rows {
		if r.Rows != nil && len(r.Rows.Row) > 0 {
			account := ""
			if r.Header != nil && len(r.Header.ColData) > 0 {
				account = cellString(r.Header.ColData[0].Value)
			}
			flat = append(flat, flattenQuickBooksRows(r.Rows.Row, account)...)
			if r.Summary != nil {
				s := r.Summary.ColData
				acc := ""
				if len(s) > 0 {
					acc = cellString(s[0].Value)
				}
				if acc == "" {
					acc = account
				}
				if acc == "" {
					acc = headerGroup
				}
				if acc == "" {
					acc = "Section Total"
				}
				vals := make([]any, 0, max(len(s)-1, 0))
				for _, c := range s[1:] {
					vals = append(vals, c.Value)
				}
				flat = append(flat, flatRecord{Account: acc, Values: vals, Summary: true})
			}
			continue
		}
		if len(r.ColData) == 0 {
			continue
		}
		account := cellString(r.ColData[0].Value)
		if account == "" {
			account = headerGroup
		}
		vals := make([]any, 0, len(r.ColData)-1)
		for _, c := range r.ColData[1:] {
			vals = append(vals, c.Value)
		}
		flat = append(flat, flatRecord{Account: account, Values: vals})
	}
	return flat
}

// columnPeriods extracts the date range of every data column (all
// columns after the leading account-name column).
func columnPeriods(cols []qbColumn) []columnPeriod {
	if len(cols) == 0 {
		return nil
	}
	periods := make([]columnPeriod, 0, len(cols)-1)
	for _, c := range cols[1:] {
		md := map[string]string{}
		for _, m := range c.MetaData {
			md[m.Name] = m.Value
		}
		if md["EndDate"] == "" && strings.EqualFold(c.ColTitle, "total") {
			periods = append(periods, columnPeriod{})
			continue
		}
		periods = append(periods, columnPeriod{Start: md["StartDate"], End: md["EndDate"]})
	}
	return periods
}

func decodeQuickBooks(payload []byte) (*qbReport, error) {
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	raw := payload
	if err := json.Unmarshal(payload, &env); err == nil && len(env.Data) > 0 && string(env.Data) != "null" {
		raw = env.Data
	}
	var report qbReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, err
	}
	if len(report.Rows.Row) == 0 {
		return nil, fmt.Errorf("%w: no Rows.Row in payload", ErrUnrecognizedPayload)
	}
	return &report, nil
}

// =============================================================================
// INGESTION
// =============================================================================

// IngestQuickBooks flattens a QuickBooks report payload into facts and
// re-aggregated metrics.
func (in *Ingester) IngestQuickBooks(ctx context.Context, payload []byte) (*ledger.IngestResult, error) {
	report, err := decodeQuickBooks(payload)
	if err != nil {
		return nil, &IngestError{Source: ledger.SourceQuickBooks, Err: err}
	}

	periods := columnPeriods(report.Columns.Column)
	flat := flattenQuickBooksRows(report.Rows.Row, "")

	var facts []ledger.Fact
	periodSet := map[string]bool{}
	for _, item := range flat {
		account := item.Account
		if account == "" {
			account = "Unknown"
		}
		category := in.classifier.Categorize(account)
		kind := ledger.KindAmount
		if item.Summary {
			kind = ledger.KindTotal
		}
		for i, p := range periods {
			if p.End == "" {
				continue
			}
			amt := 0.0
			if i < len(item.Values) {
				amt = NormalizeAmount(item.Values[i])
			}
			if p.Start == "" {
				continue
			}
			mk, err := ledger.MonthKey(p.End)
			if err != nil {
				return nil, &IngestError{Source: ledger.SourceQuickBooks,
					Err: fmt.Errorf("column %d (%s): %w", i+1, account, err)}
			}
			periodSet[p.End] = true
			facts = append(facts, ledger.Fact{
				PeriodStart: p.Start,
				PeriodEnd:   p.End,
				MonthKey:    mk,
				Source:      ledger.SourceQuickBooks,
				Account:     account,
				Category:    category,
				Kind:        kind,
				Amount:      amt,
			})
		}
	}

	if err := in.replaceFactsByMonth(ctx, ledger.SourceQuickBooks, facts); err != nil {
		return nil, &IngestError{Source: ledger.SourceQuickBooks, Err: err}
	}

	periodEnds := make([]string, 0, len(periodSet))
	for pe := range periodSet {
		periodEnds = append(periodEnds, pe)
	}
	sort.Strings(periodEnds)

	metrics := 0
	for _, pe := range periodEnds {
		mk, _ := ledger.MonthKey(pe)
		totals, err := in.store.CategoryTotals(ctx, ledger.SourceQuickBooks, mk)
		if err != nil {
			return nil, &IngestError{Source: ledger.SourceQuickBooks, Err: err}
		}
		m := ledger.Metric{
			PeriodEnd: pe,
			Source:    ledger.SourceQuickBooks,
			Revenue:   totals.Revenue,
			COGS:      totals.COGS,
			Expenses:  totals.Expenses,
		}
		if err := in.store.UpsertMetric(ctx, m); err != nil {
			return nil, &IngestError{Source: ledger.SourceQuickBooks, Err: err}
		}
		metrics++
	}

	return &ledger.IngestResult{
		Source:          ledger.SourceQuickBooks,
		InsertedFacts:   len(facts),
		InsertedMetrics: metrics,
		Periods:         periodEnds,
	}, nil
}
