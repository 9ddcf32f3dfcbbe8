/*
ingest.go - Ingestion service driving flatteners into the ledger

PURPOSE:
  Owns the store-facing half of ingestion. The flatteners themselves are
  pure (payload in, fact slices out); this service groups their output
  by month key, replaces each touched period's facts atomically, and
  upserts the derived metrics.

IDEMPOTENCY:
  Re-ingesting the same payload replaces rather than duplicates: every
  touched (source, month_key) is cleared and refilled in one store
  transaction before its metric is recomputed.

ERROR POLICY:
  Malformed amounts never error (they normalize to zero). Malformed
  periods and unrecognized payload shapes abort the call with an
  IngestError naming the source.
*/
package statement

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/finsight/finance-engine/ledger"
)

// ErrUnrecognizedPayload marks a payload neither flattener understands.
var ErrUnrecognizedPayload = errors.New("unrecognized payload shape")

// IngestError is a structured ingestion failure naming its source.
type IngestError struct {
	Source ledger.Source
	Err    error
}

func (e *IngestError) Error() string {
	return fmt.Sprintf("%s ingest failed: %v", e.Source, e.Err)
}

func (e *IngestError) Unwrap() error { return e.Err }

// Ingester flattens statement payloads into the ledger.
type Ingester struct {
	store      ledger.Store
	classifier *Classifier
}

// NewIngester builds an ingester over the given store using the default
// account classifier.
func NewIngester(store ledger.Store) *Ingester {
	return &Ingester{store: store, classifier: DefaultClassifier()}
}

// NewIngesterWithClassifier builds an ingester with custom
// categorization rules.
func NewIngesterWithClassifier(store ledger.Store, c *Classifier) *Ingester {
	return &Ingester{store: store, classifier: c}
}

// replaceFactsByMonth groups facts by month key and replaces each
// period's facts in the store.
func (in *Ingester) replaceFactsByMonth(ctx context.Context, source ledger.Source, facts []ledger.Fact) error {
	byMonth := make(map[string][]ledger.Fact)
	for _, f := range facts {
		byMonth[f.MonthKey] = append(byMonth[f.MonthKey], f)
	}
	months := make([]string, 0, len(byMonth))
	for mk := range byMonth {
		months = append(months, mk)
	}
	sort.Strings(months)
	for _, mk := range months {
		if err := in.store.ReplacePeriodFacts(ctx, source, mk, byMonth[mk]); err != nil {
			return err
		}
	}
	return nil
}
