package statement_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/finsight/finance-engine/ledger"
	"github.com/finsight/finance-engine/statement"
)

func TestDefaultClassifier_Categories(t *testing.T) {
	c := statement.DefaultClassifier()

	for _, tc := range []struct {
		account string
		want    ledger.Category
	}{
		// Revenue labels
		{"Income", ledger.CategoryRevenue},
		{"Other Income", ledger.CategoryRevenue},
		{"Revenue - Online", ledger.CategoryRevenue},
		{"Product Sales", ledger.CategoryRevenue},

		// COGS labels win over the generic expense rule
		{"Cost of Goods Sold", ledger.CategoryCOGS},
		{"Payroll Expense - COS", ledger.CategoryCOGS},
		{"Direct Parts", ledger.CategoryCOGS},

		// Expense labels
		{"Office Expense", ledger.CategoryExpense},
		{"Shipping", ledger.CategoryExpense},
		{"Technology", ledger.CategoryExpense},

		// Everything else
		{"Net Other", ledger.CategoryOther},
		{"", ledger.CategoryOther},
	} {
		assert.Equal(t, tc.want, c.Categorize(tc.account), "account=%q", tc.account)
	}
}

func TestClassifier_PrefixVsContains(t *testing.T) {
	// GIVEN: "revenue" is a prefix rule, not a contains rule
	// WHEN: The word appears mid-label with no other signal
	// THEN: The label is not revenue

	c := statement.DefaultClassifier()
	assert.Equal(t, ledger.CategoryOther, c.Categorize("Deferred revenue"))
	assert.Equal(t, ledger.CategoryRevenue, c.Categorize("revenue share"))
}

func TestClassifier_CustomRules(t *testing.T) {
	c := statement.NewClassifier([]statement.Rule{
		{Pattern: "freight", Mode: statement.MatchContains, Category: ledger.CategoryCOGS},
	})
	assert.Equal(t, ledger.CategoryCOGS, c.Categorize("Freight In"))
	assert.Equal(t, ledger.CategoryOther, c.Categorize("Income"))
}
