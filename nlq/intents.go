/*
intents.go - Rule-based question matching

PURPOSE:
  Deterministic fast path for the natural-language endpoint. Each intent
  is a regex over the lowercased question; the first match runs its
  ledger queries and formats an answer directly, so common questions
  never touch the LLM.

INTENTS:
  quarter profit    "total (profit|net profit|gross profit) in Q1 [2024]"
  revenue trend     "revenue trend(s) ... 2024"
  expense movers    "which expense(s) ... highest increase ... 2024"
  quarter compare   "compare Q1 and Q2 [2024]"

  Years default to the current UTC year where the pattern allows
  omitting them.
*/
package nlq

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/finsight/finance-engine/ledger"
	"github.com/finsight/finance-engine/statement"
)

var (
	reQuarterProfit  = regexp.MustCompile(`total (profit|net profit|gross profit) in (q[1-4])(?:\s*(\d{4}))?`)
	reRevenueTrend   = regexp.MustCompile(`revenue (trend|trends).*(\d{4})`)
	reExpenseMovers  = regexp.MustCompile(`which (expense|expenses).*highest increase.*(\d{4})`)
	reQuarterCompare = regexp.MustCompile(`compare\s*(q[1-4])\s*and\s*(q[1-4])(?:\s*(\d{4}))?`)
)

// intentResult is a rule-based answer plus its supporting data and the
// tool-call trace entries that produced it.
type intentResult struct {
	Answer string
	Data   any
	Trace  []map[string]any
}

func yearOr(yearStr string, fallback int) int {
	if yearStr == "" {
		return fallback
	}
	y, err := strconv.Atoi(yearStr)
	if err != nil {
		return fallback
	}
	return y
}

// resolveIntent tries each rule in order against the question and runs
// the first match. A nil result with a nil error means no rule matched.
func (s *Service) resolveIntent(ctx context.Context, question string) (*intentResult, error) {
	qn := strings.ToLower(strings.TrimSpace(question))
	now := time.Now().UTC().Year()

	if m := reQuarterProfit.FindStringSubmatch(qn); m != nil {
		qtr := strings.ToUpper(m[2])
		year := yearOr(m[3], now)
		a, b, err := statement.QuarterMonths(qtr)
		if err != nil {
			return nil, err
		}
		sumsRootFi, err := s.store.SumBetween(ctx, a, b, year, ledger.SourceRootFi)
		if err != nil {
			return nil, err
		}
		sumsQB, err := s.store.SumBetween(ctx, a, b, year, ledger.SourceQuickBooks)
		if err != nil {
			return nil, err
		}
		// RootFi carries true net profit; fall back to QuickBooks gross
		// when RootFi has nothing for the window.
		profit := sumsRootFi.NetProfit
		if profit == 0 {
			profit = sumsQB.GrossProfit
		}
		return &intentResult{
			Answer: fmt.Sprintf("%s %d profit was %s (net from Rootfi if available, otherwise gross).",
				qtr, year, commafy(profit, 2)),
			Data: map[string]any{"rootfi": sumsRootFi, "quickbooks": sumsQB},
			Trace: []map[string]any{{
				"tool": "get_total_profit",
				"args": map[string]any{"quarter": qtr, "year": year},
			}},
		}, nil
	}

	if m := reRevenueTrend.FindStringSubmatch(qn); m != nil {
		year := yearOr(m[2], now)
		trend, err := s.store.Trend(ctx, "revenue", year, "")
		if err != nil {
			return nil, err
		}
		var total float64
		byMonth := map[string]float64{}
		for _, p := range trend.Points {
			v := 0.0
			if p.Value != nil {
				v = *p.Value
			}
			total += v
			if len(p.PeriodEnd) >= 7 {
				if mnum, err := strconv.Atoi(p.PeriodEnd[5:7]); err == nil {
					byMonth[statement.MonthName(mnum)] += v
				}
			}
		}
		answer := fmt.Sprintf("Revenue trend for %d: total %s.", year, commafy(total, 2))
		if len(byMonth) > 0 {
			type mv struct {
				name  string
				value float64
			}
			ranked := make([]mv, 0, len(byMonth))
			for name, v := range byMonth {
				ranked = append(ranked, mv{name, v})
			}
			sort.Slice(ranked, func(i, j int) bool {
				if ranked[i].value != ranked[j].value {
					return ranked[i].value > ranked[j].value
				}
				return ranked[i].name < ranked[j].name
			})
			if len(ranked) > 3 {
				ranked = ranked[:3]
			}
			parts := make([]string, 0, len(ranked))
			for _, r := range ranked {
				parts = append(parts, fmt.Sprintf("%s (%s)", r.name, commafy(r.value, 0)))
			}
			answer += " Top months: " + strings.Join(parts, ", ")
		}
		return &intentResult{
			Answer: answer,
			Data:   map[string]any{"points": trend.Points, "by_month": byMonth},
			Trace: []map[string]any{{
				"tool": "revenue_trend",
				"args": map[string]any{"year": year},
			}},
		}, nil
	}

	if m := reExpenseMovers.FindStringSubmatch(qn); m != nil {
		year := yearOr(m[2], now)
		detail, err := s.store.ExpensesIncreaseTop(ctx, year, "", 5)
		if err != nil {
			return nil, err
		}
		answer := fmt.Sprintf("No expense categories found for %d.", year)
		if len(detail.Top) > 0 {
			top := detail.Top[0]
			answer = fmt.Sprintf("In %d, '%s' had the highest increase: +%s.",
				year, top.Account, commafy(top.Increase, 2))
		}
		return &intentResult{
			Answer: answer,
			Data:   detail,
			Trace: []map[string]any{{
				"tool": "top_expense_increase",
				"args": map[string]any{"year": year},
			}},
		}, nil
	}

	if m := reQuarterCompare.FindStringSubmatch(qn); m != nil {
		q1 := strings.ToUpper(m[1])
		q2 := strings.ToUpper(m[2])
		year := yearOr(m[3], now)
		a1, b1, err := statement.QuarterMonths(q1)
		if err != nil {
			return nil, err
		}
		a2, b2, err := statement.QuarterMonths(q2)
		if err != nil {
			return nil, err
		}
		s1, err := s.store.SumBetween(ctx, a1, b1, year, "")
		if err != nil {
			return nil, err
		}
		s2, err := s.store.SumBetween(ctx, a2, b2, year, "")
		if err != nil {
			return nil, err
		}
		answer := fmt.Sprintf(
			"%s vs %s %d: Revenue %s → %s, Gross Profit %s → %s, Expenses %s → %s.",
			q1, q2, year,
			commafy(s1.Revenue, 0), commafy(s2.Revenue, 0),
			commafy(s1.GrossProfit, 0), commafy(s2.GrossProfit, 0),
			commafy(s1.Expenses, 0), commafy(s2.Expenses, 0),
		)
		return &intentResult{
			Answer: answer,
			Data:   map[string]any{"q1": s1, "q2": s2, "year": year},
			Trace: []map[string]any{{
				"tool": "compare_quarters",
				"args": map[string]any{"q1": q1, "q2": q2, "year": year},
			}},
		}, nil
	}

	return nil, nil
}
