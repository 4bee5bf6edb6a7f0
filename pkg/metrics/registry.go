// Package metrics provides the process-wide metrics registry: mission
// counters, the active-agents gauge, and request-duration percentiles
// derived from a bounded ring buffer at scrape time.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// durationRingCapacity bounds the number of recent durations retained for
// percentile computation.
const durationRingCapacity = 1000

// Registry holds all process metrics. Safe for concurrent use. Lifecycle is
// the process lifetime; nothing persists across restarts.
type Registry struct {
	reg *prometheus.Registry

	MissionsTotal     prometheus.Counter
	MissionsSuccess   prometheus.Counter
	MissionsFailed    prometheus.Counter
	RedTeamFlagsTotal prometheus.Counter
	CostTotal         prometheus.Counter
	SwarmAgentsActive prometheus.Gauge

	durations *durationRing
}

// NewRegistry creates a Registry with all metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		MissionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "missions_total",
			Help: "Total missions received.",
		}),
		MissionsSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "missions_success",
			Help: "Missions that reached completed status.",
		}),
		MissionsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "missions_failed",
			Help: "Missions that reached failed status.",
		}),
		RedTeamFlagsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "red_team_flags_total",
			Help: "Safety flags raised across all missions.",
		}),
		CostTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cost_total",
			Help: "Cumulative actual cost in USD.",
		}),
		SwarmAgentsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "swarm_agents_active",
			Help: "Agents currently executing upstream calls.",
		}),
		durations: newDurationRing(durationRingCapacity),
	}

	reg.MustRegister(
		r.MissionsTotal,
		r.MissionsSuccess,
		r.MissionsFailed,
		r.RedTeamFlagsTotal,
		r.CostTotal,
		r.SwarmAgentsActive,
		&durationCollector{ring: r.durations},
	)

	return r
}

// ObserveDuration records one request duration in milliseconds.
func (r *Registry) ObserveDuration(ms float64) {
	r.durations.add(ms)
}

// Handler returns the scrape handler for GET /metrics. The exposition
// format is the text format (content type text/plain; version=0.0.4).
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// durationRing is a fixed-capacity ring buffer of recent durations.
type durationRing struct {
	mu   sync.Mutex
	vals []float64
	next int
	full bool
}

func newDurationRing(capacity int) *durationRing {
	return &durationRing{vals: make([]float64, capacity)}
}

func (d *durationRing) add(v float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.vals[d.next] = v
	d.next++
	if d.next == len(d.vals) {
		d.next = 0
		d.full = true
	}
}

// snapshot returns a copy of the recorded values, oldest data included.
func (d *durationRing) snapshot() []float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := d.next
	if d.full {
		n = len(d.vals)
	}
	out := make([]float64, n)
	copy(out, d.vals[:n])
	return out
}
