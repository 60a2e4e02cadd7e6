// Package metrics exposes Prometheus instrumentation for the node.
//
// Usage:
//
//	m := metrics.New(prometheus.NewRegistry())
//	m.ObserveDecision("deny")
//	m.ObserveRun("sh", exitCode, timedOut, elapsed)
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is safe to use through a nil pointer; every method is then a no-op.
type Metrics struct {
	// Invocations counts capability invocations.
	// Labels: command, status (ok|error)
	Invocations *prometheus.CounterVec

	// Decisions counts policy outcomes for system.run.
	// Labels: action (allow|deny|prompt), approved (true|false)
	Decisions *prometheus.CounterVec

	// Runs counts finished process runs.
	// Labels: shell, outcome (exited|failed|timeout)
	Runs *prometheus.CounterVec

	// RunDuration measures wall time of process runs in seconds.
	// Labels: shell
	RunDuration *prometheus.HistogramVec

	// BridgeSessions tracks open bridge connections.
	BridgeSessions prometheus.Gauge
}

// New registers all collectors with reg, or with the default registry when
// reg is nil. Registering twice with the same registry panics.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		Invocations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kai_node_invocations_total",
				Help: "Capability invocations by command and status",
			},
			[]string{"command", "status"},
		),
		Decisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kai_node_exec_decisions_total",
				Help: "Exec policy decisions by action",
			},
			[]string{"action", "approved"},
		),
		Runs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kai_node_exec_runs_total",
				Help: "Process runs by shell and outcome",
			},
			[]string{"shell", "outcome"},
		),
		RunDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kai_node_exec_run_duration_seconds",
				Help:    "Wall time of process runs in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
			},
			[]string{"shell"},
		),
		BridgeSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "kai_node_bridge_sessions",
				Help: "Open bridge sessions",
			},
		),
	}
}

func (m *Metrics) ObserveInvocation(command string, ok bool) {
	if m == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "error"
	}
	m.Invocations.WithLabelValues(command, status).Inc()
}

func (m *Metrics) ObserveDecision(action string, approved bool) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(action, strconv.FormatBool(approved)).Inc()
}

// ObserveRun records one finished run. A negative exit code without a
// timeout counts as a start failure.
func (m *Metrics) ObserveRun(shell string, exitCode int, timedOut bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "exited"
	switch {
	case timedOut:
		outcome = "timeout"
	case exitCode < 0:
		outcome = "failed"
	}
	m.Runs.WithLabelValues(shell, outcome).Inc()
	m.RunDuration.WithLabelValues(shell).Observe(elapsed.Seconds())
}

func (m *Metrics) SessionOpened() {
	if m != nil {
		m.BridgeSessions.Inc()
	}
}

func (m *Metrics) SessionClosed() {
	if m != nil {
		m.BridgeSessions.Dec()
	}
}
