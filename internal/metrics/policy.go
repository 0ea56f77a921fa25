// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus metrics of the policy helper. All methods are
// safe on a nil receiver so components can run without metrics.
type Metrics struct {
	// Decision metrics
	Decisions *prometheus.CounterVec
	Blocks    *prometheus.CounterVec
	Errors    *prometheus.CounterVec

	// Boot synchronization metrics
	InitPollRounds prometheus.Counter
	InitState      prometheus.Gauge
	TablesOpen     *prometheus.GaugeVec
}

// NewMetrics creates an unregistered metric set.
func NewMetrics() *Metrics {
	return &Metrics{
		Decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "uidpolicy_decisions_total",
			Help: "Policy decisions by outcome (allowed, blocked, error)",
		}, []string{"outcome"}),
		Blocks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "uidpolicy_decision_reasons_total",
			Help: "Policy decisions by deciding rule",
		}, []string{"reason", "blocked"}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "uidpolicy_errors_total",
			Help: "Policy helper errors by kind",
		}, []string{"kind"}),
		InitPollRounds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "uidpolicy_init_poll_rounds_total",
			Help: "Polling rounds spent waiting for the external map loader",
		}),
		InitState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "uidpolicy_init_state",
			Help: "Boot synchronization state (0 unloaded, 1 triggered, 2 polling, 3 ready)",
		}),
		TablesOpen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "uidpolicy_table_open",
			Help: "Whether each shared table is open (1) or not (0)",
		}, []string{"table"}),
	}
}

// Collectors returns every collector for registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Decisions,
		m.Blocks,
		m.Errors,
		m.InitPollRounds,
		m.InitState,
		m.TablesOpen,
	}
}

// Register registers all collectors with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// ObserveDecision records a completed decision.
func (m *Metrics) ObserveDecision(blocked bool, reason string) {
	if m == nil {
		return
	}
	outcome := "allowed"
	b := "false"
	if blocked {
		outcome = "blocked"
		b = "true"
	}
	m.Decisions.WithLabelValues(outcome).Inc()
	m.Blocks.WithLabelValues(reason, b).Inc()
}

// ObserveInitError records a failed initialization step.
func (m *Metrics) ObserveInitError(kind string) {
	if m == nil {
		return
	}
	m.Errors.WithLabelValues(kind).Inc()
}

// ObserveError records a failed decision.
func (m *Metrics) ObserveError(kind string) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues("error").Inc()
	m.Errors.WithLabelValues(kind).Inc()
}

// ObservePollRound counts one loader polling round.
func (m *Metrics) ObservePollRound() {
	if m == nil {
		return
	}
	m.InitPollRounds.Inc()
}

// SetInitState publishes the boot synchronization state.
func (m *Metrics) SetInitState(state int) {
	if m == nil {
		return
	}
	m.InitState.Set(float64(state))
}

// SetTableOpen publishes whether table is open.
func (m *Metrics) SetTableOpen(table string, open bool) {
	if m == nil {
		return
	}
	v := 0.0
	if open {
		v = 1
	}
	m.TablesOpen.WithLabelValues(table).Set(v)
}
