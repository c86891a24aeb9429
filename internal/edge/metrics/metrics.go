package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the edge router. Lookup duration is the
// number to watch: the registry sits on the critical path of every request.
type Metrics struct {
	RequestsRouted   prometheus.Counter
	RequestsRejected prometheus.Counter
	CacheHits        prometheus.Counter
	LookupDuration   prometheus.Histogram
}

// New creates a Metrics instance with all edge router metrics registered.
func New() *Metrics {
	return &Metrics{
		RequestsRouted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "relaypad_edge_requests_routed_total",
			Help: "Total number of requests forwarded to a backend",
		}),
		RequestsRejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "relaypad_edge_requests_rejected_total",
			Help: "Total number of requests rejected (reserved, unknown or inactive host)",
		}),
		CacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "relaypad_edge_lookup_cache_hits_total",
			Help: "Total number of host lookups served from the in-process cache",
		}),
		LookupDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "relaypad_edge_lookup_duration_seconds",
			Help:    "Duration of registry lookups on the routing path",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// ObserveLookup records the duration of one registry lookup.
func (m *Metrics) ObserveLookup(start time.Time) {
	m.LookupDuration.Observe(time.Since(start).Seconds())
}
