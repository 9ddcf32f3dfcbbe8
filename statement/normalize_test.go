package statement_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsight/finance-engine/statement"
)

// =============================================================================
// AMOUNT NORMALIZATION TESTS
// =============================================================================

func TestNormalizeAmount_Strings(t *testing.T) {
	// GIVEN: Amount strings in the forms both exports produce
	// WHEN: Normalizing them
	// THEN: Commas strip, whitespace trims, garbage becomes zero

	assert.Equal(t, 1234.5, statement.NormalizeAmount("1,234.50"))
	assert.Equal(t, -200.0, statement.NormalizeAmount(" -200 "))
	assert.Equal(t, 0.0, statement.NormalizeAmount(""))
	assert.Equal(t, 0.0, statement.NormalizeAmount("n/a"))
	assert.Equal(t, 0.0, statement.NormalizeAmount("12.3.4"))
}

func TestNormalizeAmount_NonStrings(t *testing.T) {
	assert.Equal(t, 42.5, statement.NormalizeAmount(42.5))
	assert.Equal(t, 7.0, statement.NormalizeAmount(7))
	assert.Equal(t, 0.0, statement.NormalizeAmount(nil))
	assert.Equal(t, 0.0, statement.NormalizeAmount([]string{"x"}))
}

// =============================================================================
// QUARTER TESTS
// =============================================================================

func TestQuarterMonths(t *testing.T) {
	a, b, err := statement.QuarterMonths("Q1")
	require.NoError(t, err)
	assert.Equal(t, 1, a)
	assert.Equal(t, 3, b)

	a, b, err = statement.QuarterMonths("q4")
	require.NoError(t, err)
	assert.Equal(t, 10, a)
	assert.Equal(t, 12, b)

	_, _, err = statement.QuarterMonths("Q5")
	assert.Error(t, err)
}

func TestMonthName(t *testing.T) {
	assert.Equal(t, "Jan", statement.MonthName(1))
	assert.Equal(t, "Dec", statement.MonthName(12))
	assert.Equal(t, "?", statement.MonthName(13))
}
