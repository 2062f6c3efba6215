package dispatch

import "github.com/prometheus/client_golang/prometheus"

// Metrics collects dispatcher counters. All methods must be safe for
// concurrent use.
type Metrics interface {
	IncQueued()
	IncCompleted()
	IncFailed()
	SetActiveWorkers(n int)
}

// NopMetrics discards all observations.
type NopMetrics struct{}

func (NopMetrics) IncQueued()           {}
func (NopMetrics) IncCompleted()        {}
func (NopMetrics) IncFailed()           {}
func (NopMetrics) SetActiveWorkers(int) {}

// PrometheusMetrics adapts prometheus collectors to the Metrics
// interface. Nil fields are skipped, so callers can wire only the
// series they care about.
type PrometheusMetrics struct {
	TasksQueued    prometheus.Counter
	TasksCompleted prometheus.Counter
	TasksFailed    prometheus.Counter
	ActiveWorkers  prometheus.Gauge
}

func (m *PrometheusMetrics) IncQueued() {
	if m.TasksQueued != nil {
		m.TasksQueued.Inc()
	}
}

func (m *PrometheusMetrics) IncCompleted() {
	if m.TasksCompleted != nil {
		m.TasksCompleted.Inc()
	}
}

func (m *PrometheusMetrics) IncFailed() {
	if m.TasksFailed != nil {
		m.TasksFailed.Inc()
	}
}

func (m *PrometheusMetrics) SetActiveWorkers(n int) {
	if m.ActiveWorkers != nil {
		m.ActiveWorkers.Set(float64(n))
	}
}
