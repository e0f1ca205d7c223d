package serve

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "batchserve"

// Metrics holds the Prometheus collectors for batching and routing.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	requestsTotal    *prometheus.CounterVec
	batchesTotal     *prometheus.CounterVec
	batchItems       *prometheus.HistogramVec
	batchMembers     *prometheus.HistogramVec
	batchFailures    *prometheus.CounterVec
	computeDuration  *prometheus.HistogramVec
	routingDecisions *prometheus.CounterVec
}

// NewMetrics registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "requests_total",
				Help:      "Requests accepted by an aggregator",
			},
			[]string{"replica"},
		),
		batchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "batches_total",
				Help:      "Batches dispatched to the compute function, by close reason",
			},
			[]string{"replica", "reason"},
		),
		batchItems: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "batch_items",
				Help:      "Flattened items per dispatched batch",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
			},
			[]string{"replica"},
		),
		batchMembers: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "batch_members",
				Help:      "Requests per dispatched batch",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
			},
			[]string{"replica"},
		),
		batchFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "batch_failures_total",
				Help:      "Failed batches, by failure kind",
			},
			[]string{"replica", "kind"},
		),
		computeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "compute_duration_seconds",
				Help:      "Duration of compute calls",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"replica"},
		),
		routingDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "routing_decisions_total",
				Help:      "Routing decisions, by policy and outcome (chosen or empty)",
			},
			[]string{"policy", "outcome"},
		),
	}
}

func (m *Metrics) observeRequest(replica string) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(replica).Inc()
}

func (m *Metrics) observeBatch(replica string, reason CloseReason, members, items int, elapsed time.Duration, failure string) {
	if m == nil {
		return
	}
	m.batchesTotal.WithLabelValues(replica, string(reason)).Inc()
	m.batchItems.WithLabelValues(replica).Observe(float64(items))
	m.batchMembers.WithLabelValues(replica).Observe(float64(members))
	m.computeDuration.WithLabelValues(replica).Observe(elapsed.Seconds())
	if failure != "" {
		m.batchFailures.WithLabelValues(replica, failure).Inc()
	}
}

func (m *Metrics) observeRouting(policy string, empty bool) {
	if m == nil {
		return
	}
	outcome := "chosen"
	if empty {
		outcome = "empty"
	}
	m.routingDecisions.WithLabelValues(policy, outcome).Inc()
}
