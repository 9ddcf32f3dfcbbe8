/*
rootfi.go - RootFi income statement flattener

PURPOSE:
  Walks RootFi's per-period report objects into flat facts. Each period
  carries three categorized arrays (revenue, cost_of_goods_sold,
  expenses) of recursively nested {name, value, line_items} trees.

ALGORITHM:
  Every node visited - parents and leaves alike - yields one fact whose
  account is the slash-joined path ("revenue / Sales / Online"). RootFi
  exports mix subtotal and leaf semantics across levels, so all levels
  are preserved and downstream consumers filter by path depth when they
  need leaf-only data. The period's metric totals, by contrast, come
  from the direct children of each category array only, so nested
  amounts are never double counted into metrics.

  Periods missing explicit start/end dates fall back to a platform_id of
  the form "YYYY-MM-DD_YYYY-MM-DD"; periods with neither are skipped.
  A net_profit field on the period, when present, is normalized and
  stored on the metric; otherwise net profit stays null.
*/
package statement

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/finsight/finance-engine/ledger"
)

var platformIDRe = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})_(\d{4}-\d{2}-\d{2})`)

// =============================================================================
// REPORT SHAPE
// =============================================================================

type rfLineItem struct {
	Name      string       `json:"name"`
	Value     any          `json:"value"`
	LineItems []rfLineItem `json:"line_items"`
}

type rfPeriod struct {
	PlatformID      string       `json:"platform_id"`
	PeriodStart     string       `json:"period_start"`
	PeriodEnd       string       `json:"period_end"`
	Revenue         []rfLineItem `json:"revenue"`
	CostOfGoodsSold []rfLineItem `json:"cost_of_goods_sold"`
	Expenses        []rfLineItem `json:"expenses"`
	NetProfit       any          `json:"net_profit"`
}

// pathValue is one flattened tree node: its slash-joined account path
// and normalized amount.
type pathValue struct {
	Account string
	Amount  float64
}

// =============================================================================
// FLATTENING (pure)
// =============================================================================

// flattenLineItems returns the path/value pairs for a line-item subtree.
// Unnamed nodes keep the literal account "Unnamed".
func flattenLineItems(node rfLineItem, path []string) []pathValue {
	full := "Unnamed"
	if node.Name != "" {
		full = strings.Join(append(append([]string{}, path...), node.Name), " / ")
	}
	out := []pathValue{{Account: full, Amount: NormalizeAmount(node.Value)}}
	childPath := append(append([]string{}, path...), node.Name)
	for _, child := range node.LineItems {
		out = append(out, flattenLineItems(child, childPath)...)
	}
	return out
}

// decodeRootFiPeriods accepts the payload as a bare array, {"data":
// [...]}, or {"data": {"data"|"items": [...]}}.
func decodeRootFiPeriods(payload []byte) ([]rfPeriod, error) {
	var periods []rfPeriod
	if err := json.Unmarshal(payload, &periods); err == nil {
		return periods, nil
	}
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(payload, &env); err != nil || len(env.Data) == 0 {
		return nil, fmt.Errorf("%w: no period list", ErrUnrecognizedPayload)
	}
	if err := json.Unmarshal(env.Data, &periods); err == nil {
		return periods, nil
	}
	var inner struct {
		Data  []rfPeriod `json:"data"`
		Items []rfPeriod `json:"items"`
	}
	if err := json.Unmarshal(env.Data, &inner); err == nil {
		if len(inner.Data) > 0 {
			return inner.Data, nil
		}
		if len(inner.Items) > 0 {
			return inner.Items, nil
		}
	}
	return nil, fmt.Errorf("%w: no period list", ErrUnrecognizedPayload)
}

// periodRange resolves a period's date range, falling back to the
// platform_id encoding. ok is false when no end date is available.
func periodRange(p rfPeriod) (start, end string, ok bool) {
	start, end = p.PeriodStart, p.PeriodEnd
	if end == "" {
		if m := platformIDRe.FindStringSubmatch(p.PlatformID); m != nil {
			start, end = m[1], m[2]
		}
	}
	return start, end, end != ""
}

// =============================================================================
// INGESTION
// =============================================================================

// IngestRootFi flattens a RootFi report payload into facts and one
// metric per period.
func (in *Ingester) IngestRootFi(ctx context.Context, payload []byte) (*ledger.IngestResult, error) {
	periods, err := decodeRootFiPeriods(payload)
	if err != nil {
		return nil, &IngestError{Source: ledger.SourceRootFi, Err: err}
	}

	var facts []ledger.Fact
	var metrics []ledger.Metric
	periodSet := map[string]bool{}

	categories := []struct {
		root     string
		category ledger.Category
		items    func(rfPeriod) []rfLineItem
	}{
		{"revenue", ledger.CategoryRevenue, func(p rfPeriod) []rfLineItem { return p.Revenue }},
		{"cogs", ledger.CategoryCOGS, func(p rfPeriod) []rfLineItem { return p.CostOfGoodsSold }},
		{"expense", ledger.CategoryExpense, func(p rfPeriod) []rfLineItem { return p.Expenses }},
	}

	for _, p := range periods {
		ps, pe, ok := periodRange(p)
		if !ok {
			continue
		}
		mk, err := ledger.MonthKey(pe)
		if err != nil {
			return nil, &IngestError{Source: ledger.SourceRootFi, Err: err}
		}
		periodSet[pe] = true

		var totals [3]float64
		for ci, c := range categories {
			for _, item := range c.items(p) {
				// Only the direct array entry contributes to the
				// period total; nested children are facts only.
				totals[ci] += NormalizeAmount(item.Value)
				for _, pv := range flattenLineItems(item, []string{c.root}) {
					facts = append(facts, ledger.Fact{
						PeriodStart: ps,
						PeriodEnd:   pe,
						MonthKey:    mk,
						Source:      ledger.SourceRootFi,
						Account:     pv.Account,
						Category:    c.category,
						Kind:        ledger.KindAmount,
						Amount:      pv.Amount,
					})
				}
			}
		}

		var netProfit *float64
		if p.NetProfit != nil {
			np := NormalizeAmount(p.NetProfit)
			netProfit = &np
		}
		metrics = append(metrics, ledger.Metric{
			PeriodEnd: pe,
			Source:    ledger.SourceRootFi,
			Revenue:   totals[0],
			COGS:      totals[1],
			Expenses:  totals[2],
			NetProfit: netProfit,
		})
	}

	if err := in.replaceFactsByMonth(ctx, ledger.SourceRootFi, facts); err != nil {
		return nil, &IngestError{Source: ledger.SourceRootFi, Err: err}
	}

	sort.Slice(metrics, func(i, j int) bool {
		return metrics[i].PeriodEnd < metrics[j].PeriodEnd
	})
	for _, m := range metrics {
		if err := in.store.UpsertMetric(ctx, m); err != nil {
			return nil, &IngestError{Source: ledger.SourceRootFi, Err: err}
		}
	}

	periodEnds := make([]string, 0, len(periodSet))
	for pe := range periodSet {
		periodEnds = append(periodEnds, pe)
	}
	sort.Strings(periodEnds)

	return &ledger.IngestResult{
		Source:          ledger.SourceRootFi,
		InsertedFacts:   len(facts),
		InsertedMetrics: len(metrics),
		Periods:         periodEnds,
	}, nil
}
