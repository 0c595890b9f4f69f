package trend

import (
	"time"

	"github.com/ovnwatch/ovnwatch/internal/types"
)

// MetricFamily names one of the fixed historical metric groups.
type MetricFamily string

const (
	FamilyAssignments MetricFamily = "assignment_status"
	FamilyOVNRules    MetricFamily = "ovn_rules"
	FamilyPerformance MetricFamily = "performance_tests"
)

// MetricNames lists the metrics tracked per family, in report order.
func MetricNames(family MetricFamily) []string {
	switch family {
	case FamilyAssignments:
		return []string{"unique_egressips", "avg_pod_count"}
	case FamilyOVNRules:
		return []string{"avg_snat_rules", "avg_lrp_rules", "avg_consistency"}
	case FamilyPerformance:
		return []string{"pass_rate", "avg_execution_time"}
	default:
		return nil
	}
}

// Aggregate is one time bucket (typically a day) of a family's metrics.
// Absent metrics are simply missing from Values.
type Aggregate struct {
	Date   time.Time          `json:"date"`
	Values map[string]float64 `json:"values"`
}

// Config holds the classification band. A percent change inside
// [-Band, +Band] is considered stable.
type Config struct {
	Band float64
}

// DefaultConfig returns the ±10% band the tool has always used.
func DefaultConfig() Config {
	return Config{Band: 10}
}

// Aggregator classifies directional trends over historical aggregates.
// The method is a two-window average comparison: split at the midpoint,
// average each half, compare. It is deliberately simple and robust to
// noise; it is an approximation, not a regression fit.
type Aggregator struct {
	cfg Config
}

// New builds an aggregator with the given band.
func New(cfg Config) *Aggregator {
	return &Aggregator{cfg: cfg}
}

// Classify derives the trend direction of one metric series. Fewer than
// two points is insufficient data, never a fabricated trend.
func (a *Aggregator) Classify(series []types.TrendPoint) types.TrendResult {
	result := types.TrendResult{Series: series}
	if len(series) < 2 {
		result.Direction = types.TrendInsufficient
		return result
	}

	mid := len(series) / 2
	firstAvg := average(series[:mid])
	secondAvg := average(series[mid:])

	// A zero first-half average makes percent change undefined; treat it
	// as no change rather than an error.
	pct := 0.0
	if firstAvg != 0 {
		pct = (secondAvg - firstAvg) / firstAvg * 100
	}
	result.PercentChange = pct

	switch {
	case pct > a.cfg.Band:
		result.Direction = types.TrendIncreasing
	case pct < -a.cfg.Band:
		result.Direction = types.TrendDecreasing
	default:
		result.Direction = types.TrendStable
	}
	return result
}

// Analyze classifies every metric of a family across a time-ordered
// aggregate sequence. Buckets missing a metric are skipped for that
// metric's series.
func (a *Aggregator) Analyze(family MetricFamily, rows []Aggregate) map[string]types.TrendResult {
	results := make(map[string]types.TrendResult)

	for _, name := range MetricNames(family) {
		var series []types.TrendPoint
		for _, row := range rows {
			if v, ok := row.Values[name]; ok {
				series = append(series, types.TrendPoint{Date: row.Date, Value: v})
			}
		}
		results[name] = a.Classify(series)
	}
	return results
}

func average(points []types.TrendPoint) float64 {
	sum := 0.0
	for _, p := range points {
		sum += p.Value
	}
	return sum / float64(len(points))
}
