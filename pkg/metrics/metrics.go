package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector provides Prometheus metrics collection for Cortex operations.
type MetricsCollector struct {
	operationsTotal    *prometheus.CounterVec
	operationDuration  *prometheus.HistogramVec
	errorsTotal        *prometheus.CounterVec
	storageCount       *prometheus.GaugeVec
	autolinkerCycles   prometheus.Counter
	autolinkerEdges    prometheus.Counter
	autolinkerBacklog  prometheus.Gauge
	registry           *prometheus.Registry
}

// NewCollector creates a new Prometheus metrics collector.
func NewCollector() *MetricsCollector {
	registry := prometheus.NewRegistry()

	operationsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cortex_operations_total",
			Help: "Total number of cortex operations by type and status",
		},
		[]string{"operation", "status"},
	)

	operationDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cortex_operation_duration_seconds",
			Help:    "Duration of cortex operations by type and stage",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
		},
		[]string{"operation", "stage"},
	)

	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cortex_errors_total",
			Help: "Total number of errors by operation and error type",
		},
		[]string{"operation", "error_type"},
	)

	storageCount := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cortex_storage_count",
			Help: "Current count of stored items by type",
		},
		[]string{"type"},
	)

	autolinkerCycles := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cortex_autolinker_cycles_total",
		Help: "Total number of completed auto-linker cycles",
	})

	autolinkerEdges := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cortex_autolinker_edges_created_total",
		Help: "Total number of edges created by the auto-linker",
	})

	autolinkerBacklog := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cortex_autolinker_backlog_size",
		Help: "Number of nodes created or updated after the auto-linker cursor",
	})

	registry.MustRegister(operationsTotal)
	registry.MustRegister(operationDuration)
	registry.MustRegister(errorsTotal)
	registry.MustRegister(storageCount)
	registry.MustRegister(autolinkerCycles)
	registry.MustRegister(autolinkerEdges)
	registry.MustRegister(autolinkerBacklog)

	return &MetricsCollector{
		operationsTotal:   operationsTotal,
		operationDuration: operationDuration,
		errorsTotal:       errorsTotal,
		storageCount:      storageCount,
		autolinkerCycles:  autolinkerCycles,
		autolinkerEdges:   autolinkerEdges,
		autolinkerBacklog: autolinkerBacklog,
		registry:          registry,
	}
}

// RecordOperation records the completion of an operation.
func (m *MetricsCollector) RecordOperation(ctx context.Context, operation string, status string, durationMs int64) {
	m.operationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordStage records the duration of a specific stage within an operation.
func (m *MetricsCollector) RecordStage(ctx context.Context, operation string, stage string, durationMs int64) {
	m.operationDuration.WithLabelValues(operation, stage).Observe(float64(durationMs) / 1000.0)
}

// RecordError records an error occurrence.
func (m *MetricsCollector) RecordError(ctx context.Context, operation string, errorType string) {
	m.errorsTotal.WithLabelValues(operation, errorType).Inc()
}

// SetStorageCount sets the current count for a storage type.
func (m *MetricsCollector) SetStorageCount(ctx context.Context, storageType string, count int64) {
	m.storageCount.WithLabelValues(storageType).Set(float64(count))
}

// RecordAutoLinkerCycle records one completed auto-linker cycle and the
// edges it created, and refreshes the backlog gauge.
func (m *MetricsCollector) RecordAutoLinkerCycle(edgesCreated int, backlogSize int) {
	m.autolinkerCycles.Inc()
	m.autolinkerEdges.Add(float64(edgesCreated))
	m.autolinkerBacklog.Set(float64(backlogSize))
}

// Registry returns the Prometheus registry for HTTP exposure.
func (m *MetricsCollector) Registry() *prometheus.Registry {
	return m.registry
}
