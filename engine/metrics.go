package engine

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/visualscript/metric"
)

// engineMetrics holds Prometheus metrics for graph execution.
type engineMetrics struct {
	bursts            prometheus.Counter
	steps             prometheus.Counter
	nodeExecutions    *prometheus.CounterVec // By node_type
	nodeErrors        *prometheus.CounterVec // By node_type
	stepLimitExceeded prometheus.Counter
	asyncPending      prometheus.Gauge
	burstDuration     prometheus.Histogram
}

// newEngineMetrics creates and registers engine metrics with the provided registry.
func newEngineMetrics(registry *metric.MetricsRegistry) (*engineMetrics, error) {
	if registry == nil {
		return nil, nil // Metrics disabled
	}

	m := &engineMetrics{
		bursts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "visualscript",
			Subsystem: "engine",
			Name:      "bursts_total",
			Help:      "Total number of synchronous execution bursts",
		}),
		steps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "visualscript",
			Subsystem: "engine",
			Name:      "steps_total",
			Help:      "Total number of fiber steps executed",
		}),
		nodeExecutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "visualscript",
			Subsystem: "engine",
			Name:      "node_executions_total",
			Help:      "Total number of node executions",
		}, []string{"node_type"}),
		nodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "visualscript",
			Subsystem: "engine",
			Name:      "node_errors_total",
			Help:      "Total number of node executions that failed",
		}, []string{"node_type"}),
		stepLimitExceeded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "visualscript",
			Subsystem: "engine",
			Name:      "step_limit_exceeded_total",
			Help:      "Total number of bursts aborted at the step limit",
		}),
		asyncPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "visualscript",
			Subsystem: "engine",
			Name:      "async_pending",
			Help:      "Current number of async operations awaiting completion",
		}),
		burstDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "visualscript",
			Subsystem: "engine",
			Name:      "burst_duration_seconds",
			Help:      "Synchronous execution burst duration in seconds",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}),
	}

	if err := registry.RegisterCounter("engine", "bursts", m.bursts); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("engine", "steps", m.steps); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("engine", "node_executions", m.nodeExecutions); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("engine", "node_errors", m.nodeErrors); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("engine", "step_limit_exceeded", m.stepLimitExceeded); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge("engine", "async_pending", m.asyncPending); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogram("engine", "burst_duration", m.burstDuration); err != nil {
		return nil, err
	}

	return m, nil
}

// recordBurst records one ExecuteAllSync call.
func (m *engineMetrics) recordBurst(steps int, duration float64, limitExceeded bool) {
	if m == nil {
		return
	}
	m.bursts.Inc()
	m.steps.Add(float64(steps))
	m.burstDuration.Observe(duration)
	if limitExceeded {
		m.stepLimitExceeded.Inc()
	}
}

// recordExecution records a node execution and whether it failed.
func (m *engineMetrics) recordExecution(nodeType string, failed bool) {
	if m == nil {
		return
	}
	m.nodeExecutions.WithLabelValues(nodeType).Inc()
	if failed {
		m.nodeErrors.WithLabelValues(nodeType).Inc()
	}
}

// setAsyncPending sets the outstanding async operation count.
func (m *engineMetrics) setAsyncPending(count int) {
	if m != nil {
		m.asyncPending.Set(float64(count))
	}
}

var metricNames = []string{
	"bursts", "steps", "node_executions", "node_errors",
	"step_limit_exceeded", "async_pending", "burst_duration",
}

// UnregisterMetrics removes the engine metrics from registry so a replacement
// engine can register again, as a graph reload does
func UnregisterMetrics(registry *metric.MetricsRegistry) {
	if registry == nil {
		return
	}
	for _, name := range metricNames {
		registry.Unregister("engine", name)
	}
}
