/*
period.go - Month-key derivation

PURPOSE:
  Derives the "YYYY-MM" aggregation key that links Facts to Metrics.
  Lives next to the types it serves so both the flatteners and the
  store derive keys the same way.
*/
package ledger

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ErrBadPeriod marks a period string that could not be parsed.
var ErrBadPeriod = errors.New("unparseable period")

var monthKeyRe = regexp.MustCompile(`^\d{4}-\d{2}$`)

// MonthKey derives the "YYYY-MM" aggregation key from an ISO-8601 date
// or datetime string (optional trailing Z), or passes through a string
// already in YYYY-MM form.
func MonthKey(s string) (string, error) {
	trimmed := strings.TrimSuffix(strings.TrimSpace(s), "Z")
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t.Format("2006-01"), nil
		}
	}
	if monthKeyRe.MatchString(trimmed) {
		return trimmed, nil
	}
	return "", fmt.Errorf("%w: %q", ErrBadPeriod, s)
}
