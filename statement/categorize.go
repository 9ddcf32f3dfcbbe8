/*
categorize.go - Account-name categorization rules

PURPOSE:
  Classifies free-text account labels into P&L categories using an
  ordered list of substring rules. The rules are best-effort string
  heuristics, not an exact taxonomy: the first matching rule wins and
  anything unmatched is CategoryOther.

EXTENDING:
  The rule list is data, not code. A new source format with different
  labels gets its own Classifier without touching the flatteners.
*/
package statement

import (
	"strings"

	"github.com/finsight/finance-engine/ledger"
)

// MatchMode selects how a rule pattern is compared to the account name.
type MatchMode int

const (
	MatchContains MatchMode = iota
	MatchPrefix
)

// Rule maps one account-name pattern to a category.
type Rule struct {
	Pattern  string
	Mode     MatchMode
	Category ledger.Category
}

// Classifier categorizes account names by checking rules in order.
type Classifier struct {
	rules []Rule
}

// NewClassifier builds a classifier from an ordered rule list.
func NewClassifier(rules []Rule) *Classifier {
	return &Classifier{rules: rules}
}

// DefaultClassifier returns the QuickBooks account-name heuristic:
// income/revenue/sales labels are revenue, known COGS labels are cogs,
// expense-flavored labels are expense, everything else (including
// "Total ..." rollups) is other.
func DefaultClassifier() *Classifier {
	return NewClassifier([]Rule{
		{Pattern: "income", Mode: MatchContains, Category: ledger.CategoryRevenue},
		{Pattern: "revenue", Mode: MatchPrefix, Category: ledger.CategoryRevenue},
		{Pattern: "sales", Mode: MatchContains, Category: ledger.CategoryRevenue},
		{Pattern: "cost of goods sold", Mode: MatchContains, Category: ledger.CategoryCOGS},
		{Pattern: "payroll expense - cos", Mode: MatchContains, Category: ledger.CategoryCOGS},
		{Pattern: "direct parts", Mode: MatchContains, Category: ledger.CategoryCOGS},
		{Pattern: "expense", Mode: MatchContains, Category: ledger.CategoryExpense},
		{Pattern: "shipping", Mode: MatchContains, Category: ledger.CategoryExpense},
		{Pattern: "technology", Mode: MatchContains, Category: ledger.CategoryExpense},
	})
}

// Categorize returns the category for an account label. Matching is
// case-insensitive; ties resolve to the earliest rule.
func (c *Classifier) Categorize(account string) ledger.Category {
	a := strings.ToLower(account)
	for _, r := range c.rules {
		switch r.Mode {
		case MatchPrefix:
			if strings.HasPrefix(a, r.Pattern) {
				return r.Category
			}
		default:
			if strings.Contains(a, r.Pattern) {
				return r.Category
			}
		}
	}
	return ledger.CategoryOther
}
