/*
normalize.go - Scalar normalization for statement ingestion

PURPOSE:
  Converts the heterogeneous scalar representations found in financial
  exports into canonical forms:

  NormalizeAmount: anything -> float64, failing to zero. Exports are
    full of placeholder cells ("", "N/A", nulls); a bad cell must never
    abort ingestion of a whole report.
  QuarterMonths: "Q1".."Q4" -> inclusive month range.

  Month keys are derived by ledger.MonthKey; unlike amounts, an
  unparseable period is an ingestion bug and aborts the call.

SEE ALSO:
  - statement/quickbooks.go, statement/rootfi.go: callers
  - ledger/period.go: month-key derivation
*/
package statement

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Month name tables for answer formatting.
var monthNames = [...]string{"Jan", "Feb", "Mar", "Apr", "May", "Jun",
	"Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}

// MonthName returns the short English name for a 1-based month number,
// or "?" when out of range.
func MonthName(n int) string {
	if n < 1 || n > 12 {
		return "?"
	}
	return monthNames[n-1]
}

// NormalizeAmount converts a raw export cell to a float64. Nil becomes
// zero, numbers pass through, strings are trimmed and parsed after
// stripping thousands-separator commas. Anything unparseable is zero.
func NormalizeAmount(raw any) float64 {
	switch v := raw.(type) {
	case nil:
		return 0
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(v), ",", "")
		if s == "" {
			return 0
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return 0
		}
		f, _ := d.Float64()
		return f
	default:
		return 0
	}
}

// QuarterMonths maps "Q1".."Q4" (case-insensitive) to the inclusive
// (startMonth, endMonth) range.
func QuarterMonths(q string) (int, int, error) {
	switch strings.ToUpper(strings.TrimSpace(q)) {
	case "Q1":
		return 1, 3, nil
	case "Q2":
		return 4, 6, nil
	case "Q3":
		return 7, 9, nil
	case "Q4":
		return 10, 12, nil
	default:
		return 0, 0, fmt.Errorf("unknown quarter %q", q)
	}
}
