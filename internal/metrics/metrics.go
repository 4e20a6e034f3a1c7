// Package metrics exposes Prometheus collectors for the automator.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Submission results
const (
	ResultSuccess  = "success"
	ResultRejected = "rejected"
	ResultNetwork  = "network_error"
	ResultFailed   = "failed"
)

// Metrics holds the collectors, registered on an explicit registry
type Metrics struct {
	registry *prometheus.Registry

	submissions           *prometheus.CounterVec
	verifications         *prometheus.CounterVec
	runningAutomations    prometheus.Gauge
	balanceRefreshFailure prometheus.Counter
	submitDuration        prometheus.Histogram
}

// New creates a registry with process collectors and the automator metrics
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		submissions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "slot_automator_submissions_total",
			Help: "Bet transactions submitted, by result",
		}, []string{"result"}),
		verifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "slot_automator_verifications_total",
			Help: "Oracle verification attempts, by outcome",
		}, []string{"outcome"}),
		runningAutomations: factory.NewGauge(prometheus.GaugeOpts{
			Name: "slot_automator_running_automations",
			Help: "Wallets with a running betting loop",
		}),
		balanceRefreshFailure: factory.NewCounter(prometheus.CounterOpts{
			Name: "slot_automator_balance_refresh_failures_total",
			Help: "Failed wallet balance reads",
		}),
		submitDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "slot_automator_submit_duration_seconds",
			Help:    "Time from tick to relay answer",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Submission counts one submission attempt and its duration
func (m *Metrics) Submission(result string, seconds float64) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(result).Inc()
	m.submitDuration.Observe(seconds)
}

// Verification counts one oracle attempt; outcome is won, no_jackpot or error
func (m *Metrics) Verification(outcome string) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(outcome).Inc()
}

// SetRunning sets the number of running automations
func (m *Metrics) SetRunning(n int) {
	if m == nil {
		return
	}
	m.runningAutomations.Set(float64(n))
}

// BalanceRefreshFailed counts one failed balance read
func (m *Metrics) BalanceRefreshFailed() {
	if m == nil {
		return
	}
	m.balanceRefreshFailure.Inc()
}
