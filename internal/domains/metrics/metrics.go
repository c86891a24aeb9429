package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the domain lifecycle module.
// Tracks state transitions and the durations of the external-service paths.
type Metrics struct {
	DomainsAdded      prometheus.Counter
	DomainsActivated  prometheus.Counter
	DomainsRemoved    prometheus.Counter
	VerifyFailures    prometheus.Counter
	VerifyDuration    prometheus.Histogram
	ProvisionDuration prometheus.Histogram
}

// New creates a Metrics instance with all domain module metrics registered.
func New() *Metrics {
	return &Metrics{
		DomainsAdded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "relaypad_domains_added_total",
			Help: "Total number of custom domains added",
		}),
		DomainsActivated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "relaypad_domains_activated_total",
			Help: "Total number of custom domains that reached ACTIVE",
		}),
		DomainsRemoved: promauto.NewCounter(prometheus.CounterOpts{
			Name: "relaypad_domains_removed_total",
			Help: "Total number of custom domains removed",
		}),
		VerifyFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "relaypad_domain_verify_failures_total",
			Help: "Total number of verify calls that did not confirm DNS delegation",
		}),
		VerifyDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "relaypad_domain_verify_duration_seconds",
			Help:    "Duration of verify operations (DNS resolution plus CDN calls)",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		ProvisionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "relaypad_domain_provision_duration_seconds",
			Help:    "Duration of CDN tenant provisioning calls",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
	}
}

// ObserveVerify records the duration of a verify operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveVerify(start time.Time) {
	m.VerifyDuration.Observe(time.Since(start).Seconds())
}

// ObserveProvision records the duration of a provisioning call.
func (m *Metrics) ObserveProvision(start time.Time) {
	m.ProvisionDuration.Observe(time.Since(start).Seconds())
}
