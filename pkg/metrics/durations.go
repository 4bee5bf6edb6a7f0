package metrics

import (
	"math"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
)

// durationCollector exposes the duration ring buffer as a summary metric.
// Percentiles are computed from the buffered values at each scrape rather
// than by a streaming estimator, so the quantiles always reflect exactly
// the retained window.
type durationCollector struct {
	ring *durationRing
}

var durationDesc = prometheus.NewDesc(
	"request_duration_ms",
	"Recent mission request durations in milliseconds.",
	nil, nil,
)

func (c *durationCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- durationDesc
}

func (c *durationCollector) Collect(ch chan<- prometheus.Metric) {
	vals := c.ring.snapshot()

	var sum float64
	for _, v := range vals {
		sum += v
	}

	quantiles := map[float64]float64{
		0.5:  percentile(vals, 0.5),
		0.9:  percentile(vals, 0.9),
		0.99: percentile(vals, 0.99),
	}

	ch <- prometheus.MustNewConstSummary(durationDesc, uint64(len(vals)), sum, quantiles)
}

// percentile computes the nearest-rank percentile of vals. Returns NaN for
// an empty input, matching summary semantics for no observations.
func percentile(vals []float64, q float64) float64 {
	if len(vals) == 0 {
		return math.NaN()
	}
	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	sort.Float64s(sorted)

	idx := int(math.Ceil(q*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
