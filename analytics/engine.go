/*
engine.go - Statistical analytics over aggregated metrics

PURPOSE:
  Z-score anomaly detection on any metric series. Pulls the full trend
  for a metric from the ledger and flags points whose deviation from the
  series mean exceeds a threshold.

ALGORITHM:
  1. Load the (period_end, value) trend, dropping null points.
  2. Fewer than 3 observations: return the points with no flags and no
     distribution stats, there is nothing meaningful to test.
  3. Compute mean and sample standard deviation (n-1 denominator).
  4. sd == 0 means a perfectly flat series: no flags.
  5. Otherwise flag every point with |value-mu|/sd >= threshold, with
     the z-score rounded to two decimals.
*/
package analytics

import (
	"context"
	"math"

	"github.com/finsight/finance-engine/ledger"
)

// Engine answers analytical questions the ledger's SQL cannot express
// directly.
type Engine struct {
	store ledger.Store
}

// New builds an analytics engine over the given store.
func New(store ledger.Store) *Engine {
	return &Engine{store: store}
}

// AnomalyFlag is one data point flagged as anomalous.
type AnomalyFlag struct {
	PeriodEnd string  `json:"period_end"`
	Value     float64 `json:"value"`
	Z         float64 `json:"z"`
}

// AnomalyReport is the full anomaly scan result. Mu and SD are omitted
// when the series is too short to establish a distribution.
type AnomalyReport struct {
	Metric string              `json:"metric"`
	Points []ledger.TrendPoint `json:"points"`
	Flags  []AnomalyFlag       `json:"flags"`
	Mu     *float64            `json:"mu,omitempty"`
	SD     *float64            `json:"sd,omitempty"`
}

// Anomalies scans a metric series for z-score outliers. Year 0 and an
// empty source scan the whole ledger; threshold is the minimum |z| to
// flag.
func (e *Engine) Anomalies(ctx context.Context, metric string, year int, source ledger.Source, threshold float64) (*AnomalyReport, error) {
	trend, err := e.store.Trend(ctx, metric, year, source)
	if err != nil {
		return nil, err
	}

	report := &AnomalyReport{
		Metric: metric,
		Points: trend.Points,
		Flags:  []AnomalyFlag{},
	}

	type obs struct {
		periodEnd string
		value     float64
	}
	var series []obs
	for _, p := range trend.Points {
		if p.Value != nil {
			series = append(series, obs{p.PeriodEnd, *p.Value})
		}
	}
	if len(series) < 3 {
		return report, nil
	}

	var sum float64
	for _, o := range series {
		sum += o.value
	}
	mu := sum / float64(len(series))

	var ss float64
	for _, o := range series {
		d := o.value - mu
		ss += d * d
	}
	sd := math.Sqrt(ss / float64(len(series)-1))

	report.Mu = &mu
	report.SD = &sd
	if sd == 0 {
		return report, nil
	}

	for _, o := range series {
		z := (o.value - mu) / sd
		if math.Abs(z) >= threshold {
			report.Flags = append(report.Flags, AnomalyFlag{
				PeriodEnd: o.periodEnd,
				Value:     o.value,
				Z:         math.Round(z*100) / 100,
			})
		}
	}
	return report, nil
}
