package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains platform-level metrics shared by the runner and its stores
type Metrics struct {
	GraphsLoaded     *prometheus.CounterVec
	ValidationIssues *prometheus.CounterVec
	StoreOperations  *prometheus.CounterVec

	NATSConnected  prometheus.Gauge
	NATSReconnects prometheus.Counter
}

// NewMetrics creates the platform metrics
func NewMetrics() *Metrics {
	return &Metrics{
		GraphsLoaded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "visualscript",
				Subsystem: "graph",
				Name:      "loaded_total",
				Help:      "Total number of graph loads",
			},
			[]string{"status"},
		),

		ValidationIssues: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "visualscript",
				Subsystem: "graph",
				Name:      "validation_issues_total",
				Help:      "Total number of structural issues reported by graph validation",
			},
			[]string{"type", "severity"},
		),

		StoreOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "visualscript",
				Subsystem: "store",
				Name:      "operations_total",
				Help:      "Total number of graph store operations",
			},
			[]string{"operation", "status"},
		),

		NATSConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "visualscript",
				Subsystem: "nats",
				Name:      "connected",
				Help:      "NATS connection status (0=disconnected, 1=connected)",
			},
		),

		NATSReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "visualscript",
				Subsystem: "nats",
				Name:      "reconnects_total",
				Help:      "Total number of NATS reconnections",
			},
		),
	}
}

func (c *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.GraphsLoaded,
		c.ValidationIssues,
		c.StoreOperations,
		c.NATSConnected,
		c.NATSReconnects,
	}
}

// RecordGraphLoad counts a graph load
func (c *Metrics) RecordGraphLoad(success bool) {
	c.GraphsLoaded.WithLabelValues(status(success)).Inc()
}

// RecordValidationIssue counts one validation issue
func (c *Metrics) RecordValidationIssue(issueType, severity string) {
	c.ValidationIssues.WithLabelValues(issueType, severity).Inc()
}

// RecordStoreOperation counts a graph store operation
func (c *Metrics) RecordStoreOperation(operation string, success bool) {
	c.StoreOperations.WithLabelValues(operation, status(success)).Inc()
}

// RecordNATSStatus updates NATS connection status
func (c *Metrics) RecordNATSStatus(connected bool) {
	value := 0.0
	if connected {
		value = 1.0
	}
	c.NATSConnected.Set(value)
}

// RecordNATSReconnect increments reconnection counter
func (c *Metrics) RecordNATSReconnect() {
	c.NATSReconnects.Inc()
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
