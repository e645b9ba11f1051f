// Package metrics exposes the limiter's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	FailuresRecorded *prometheus.CounterVec
	Lockouts         *prometheus.CounterVec
	Denied           *prometheus.CounterVec
	Unblocks         *prometheus.CounterVec
	Resets           *prometheus.CounterVec
	StoreErrors      *prometheus.CounterVec
	SweepRuns        *prometheus.CounterVec
	SweptRecords     prometheus.Counter
	SweepDuration    prometheus.Histogram
}

// New registers the collectors on reg. Pass prometheus.DefaultRegisterer in
// the server and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		FailuresRecorded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bastion_login_failures_recorded_total",
			Help: "Total number of failed logins recorded, by key type",
		}, []string{"key_type"}),
		Lockouts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bastion_lockouts_total",
			Help: "Total number of failures that placed a key in a lock tier",
		}, []string{"key_type"}),
		Denied: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bastion_login_denied_total",
			Help: "Total number of login attempts refused by the limiter",
		}, []string{"reason"}),
		Unblocks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bastion_unblocks_total",
			Help: "Total number of administrative unblocks",
		}, []string{"key_type"}),
		Resets: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bastion_resets_total",
			Help: "Total number of attempt record resets, by scope",
		}, []string{"scope"}),
		StoreErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bastion_attempt_store_errors_total",
			Help: "Total number of attempt store failures, by operation",
		}, []string{"operation"}),
		SweepRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bastion_idle_sweep_runs_total",
			Help: "Total number of idle sweeps",
		}, []string{"status"}),
		SweptRecords: factory.NewCounter(prometheus.CounterOpts{
			Name: "bastion_idle_sweep_records_deleted_total",
			Help: "Total number of idle attempt records deleted",
		}),
		SweepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name: "bastion_idle_sweep_duration_seconds",
			Help: "Duration of idle sweeps in seconds",
		}),
	}
}

func (m *Metrics) IncrementFailures(keyType string) {
	m.FailuresRecorded.WithLabelValues(keyType).Inc()
}

func (m *Metrics) IncrementLockouts(keyType string) {
	m.Lockouts.WithLabelValues(keyType).Inc()
}

func (m *Metrics) IncrementDenied(reason string) {
	m.Denied.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncrementUnblocks(keyType string) {
	m.Unblocks.WithLabelValues(keyType).Inc()
}

func (m *Metrics) IncrementResets(scope string) {
	m.Resets.WithLabelValues(scope).Inc()
}

func (m *Metrics) IncrementStoreErrors(operation string) {
	m.StoreErrors.WithLabelValues(operation).Inc()
}

func (m *Metrics) IncrementSweepRuns(status string) {
	m.SweepRuns.WithLabelValues(status).Inc()
}

func (m *Metrics) AddSweptRecords(count int64) {
	m.SweptRecords.Add(float64(count))
}

func (m *Metrics) ObserveSweepDuration(seconds float64) {
	m.SweepDuration.Observe(seconds)
}
