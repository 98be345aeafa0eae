// Package metrics exposes Prometheus instruments for payment operations.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "paygate"

// Payments groups the instruments. A nil *Payments is valid and records nothing.
type Payments struct {
	operations  *prometheus.CounterVec
	transitions *prometheus.CounterVec
	outbound    *prometheus.HistogramVec
}

// New registers the instruments with reg.
func New(reg prometheus.Registerer) *Payments {
	p := &Payments{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Pay and verify operations by provider and outcome.",
		}, []string{"provider", "operation", "outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "paid_transitions_total",
			Help:      "Records moved from pending to paid.",
		}, []string{"provider"}),
		outbound: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "outbound_request_seconds",
			Help:      "Latency of calls to payment providers.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"host", "status"}),
	}
	reg.MustRegister(p.operations, p.transitions, p.outbound)
	return p
}

func (p *Payments) Operation(provider, operation string, ok bool) {
	if p == nil {
		return
	}
	outcome := "failure"
	if ok {
		outcome = "success"
	}
	p.operations.WithLabelValues(provider, operation, outcome).Inc()
}

func (p *Payments) Paid(provider string) {
	if p == nil {
		return
	}
	p.transitions.WithLabelValues(provider).Inc()
}

// Outbound records one provider call. status is the HTTP status code or
// "error" for transport failures.
func (p *Payments) Outbound(host, status string, seconds float64) {
	if p == nil {
		return
	}
	p.outbound.WithLabelValues(host, status).Observe(seconds)
}
