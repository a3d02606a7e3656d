package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "payrecon"

type Metrics struct {
	Registry *prometheus.Registry

	DepositsInitiated   prometheus.Counter
	DepositsCompleted   prometheus.Counter
	DepositsReplayed    prometheus.Counter
	PayoutsReserved     prometheus.Counter
	PayoutsSubmitted    prometheus.Counter
	PayoutsCompleted    prometheus.Counter
	PayoutsFailed       prometheus.Counter
	PayoutsStuck        prometheus.Counter
	PayoutCompensations prometheus.Counter
	PollAttempts        prometheus.Counter
	PollersActive       prometheus.Gauge
	GatewayErrors       *prometheus.CounterVec
	Events              *prometheus.CounterVec
	PollDuration        prometheus.Histogram
}

// NewMetrics registers every collector on a fresh registry, so tests and
// binaries never share global state.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	counter := func(name, help string) prometheus.Counter {
		return f.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help})
	}

	return &Metrics{
		Registry:            reg,
		DepositsInitiated:   counter("deposits_initiated_total", "Gateway orders created for deposits."),
		DepositsCompleted:   counter("deposits_completed_total", "Deposits captured and credited."),
		DepositsReplayed:    counter("deposits_replayed_total", "Capture requests answered as already captured."),
		PayoutsReserved:     counter("payouts_reserved_total", "Payouts whose funds were reserved."),
		PayoutsSubmitted:    counter("payouts_submitted_total", "Payouts accepted by the gateway."),
		PayoutsCompleted:    counter("payouts_completed_total", "Payouts the gateway reported as successful."),
		PayoutsFailed:       counter("payouts_failed_total", "Payouts that ended failed."),
		PayoutsStuck:        counter("payouts_stuck_total", "Payouts escalated after polling gave up."),
		PayoutCompensations: counter("payout_compensations_total", "Reserved funds credited back."),
		PollAttempts:        counter("poll_attempts_total", "Payout status queries."),
		PollersActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pollers_active",
			Help:      "Payout status pollers currently running.",
		}),
		GatewayErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_errors_total",
			Help:      "Gateway call failures by operation and code.",
		}, []string{"operation", "code"}),
		Events: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Domain events seen by the consumers, by name.",
		}, []string{"event"}),
		PollDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_duration_seconds",
			Help:      "Time from first poll to a terminal or stuck payout.",
			Buckets:   []float64{1, 5, 15, 30, 60, 300, 900, 3600},
		}),
	}
}
