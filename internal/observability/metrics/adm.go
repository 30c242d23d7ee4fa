// Package metrics provides Prometheus metrics for the audio device adapter
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Direction label values.
const (
	DirectionRecording = "recording"
	DirectionPlayout   = "playout"
)

// ShutdownTimeout bounds the graceful shutdown of the metrics endpoint.
const ShutdownTimeout = 5 * time.Second

// ADMMetrics contains Prometheus metrics for device adapter operations
type ADMMetrics struct {
	registry *prometheus.Registry

	// Data path
	quantaTotal       *prometheus.CounterVec
	underrunsTotal    *prometheus.CounterVec
	deliveryFailures  *prometheus.CounterVec
	callbackDuration  *prometheus.HistogramVec
	delayMilliseconds *prometheus.GaugeVec

	// Buffers
	bufferReallocations *prometheus.CounterVec
	bufferBytes         *prometheus.GaugeVec
	bufferGeneration    *prometheus.GaugeVec

	// Control path
	unsupportedCalls *prometheus.CounterVec
	threadViolations *prometheus.CounterVec
	delegationErrors *prometheus.CounterVec

	// Lifetime
	moduleReferences *prometheus.GaugeVec
	refusedDisposals *prometheus.CounterVec

	// Transport
	transportDropped *prometheus.CounterVec

	collectors []prometheus.Collector
}

// NewADMMetrics creates and registers new device adapter metrics
func NewADMMetrics(registry *prometheus.Registry) (*ADMMetrics, error) {
	m := &ADMMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *ADMMetrics) initMetrics() {
	m.quantaTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adm_quanta_total",
			Help: "Total number of 10 ms audio quanta moved through the adapter",
		},
		[]string{"module_id", "direction"},
	)

	m.underrunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adm_playout_underruns_total",
			Help: "Playout requests the sink could not satisfy",
		},
		[]string{"module_id"},
	)

	m.deliveryFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adm_delivery_failures_total",
			Help: "Quanta dropped on the data path",
		},
		[]string{"module_id", "direction", "reason"},
	)

	m.callbackDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "adm_callback_duration_seconds",
			Help:    "Time spent in data path callbacks",
			Buckets: prometheus.ExponentialBuckets(0.00001, 2, 14), // 10us to ~80ms
		},
		[]string{"module_id", "direction"},
	)

	m.delayMilliseconds = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "adm_delay_milliseconds",
			Help: "Last delay reported by the external device",
		},
		[]string{"module_id", "direction"},
	)

	m.bufferReallocations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adm_buffer_reallocations_total",
			Help: "Sample buffer reallocations",
		},
		[]string{"module_id", "direction", "status"},
	)

	m.bufferBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "adm_buffer_bytes",
			Help: "Current sample buffer size in bytes",
		},
		[]string{"module_id", "direction"},
	)

	m.bufferGeneration = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "adm_buffer_generation",
			Help: "Current sample buffer generation",
		},
		[]string{"module_id", "direction"},
	)

	m.unsupportedCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adm_unsupported_calls_total",
			Help: "Calls to operations the device does not support",
		},
		[]string{"operation"},
	)

	m.threadViolations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adm_thread_violations_total",
			Help: "Control path calls made from a goroutine other than the bound one",
		},
		[]string{"operation"},
	)

	m.delegationErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adm_delegation_errors_total",
			Help: "Failure statuses returned by the external device",
		},
		[]string{"module_id", "operation"},
	)

	m.moduleReferences = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "adm_module_references",
			Help: "Current reference count of a module",
		},
		[]string{"module_id"},
	)

	m.refusedDisposals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adm_refused_disposals_total",
			Help: "Dispose calls refused because other holders remained",
		},
		[]string{"module_id"},
	)

	m.transportDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adm_transport_dropped_bytes_total",
			Help: "Bytes dropped by the transport",
		},
		[]string{"transport", "reason"},
	)

	m.collectors = []prometheus.Collector{
		m.quantaTotal,
		m.underrunsTotal,
		m.deliveryFailures,
		m.callbackDuration,
		m.delayMilliseconds,
		m.bufferReallocations,
		m.bufferBytes,
		m.bufferGeneration,
		m.unsupportedCalls,
		m.threadViolations,
		m.delegationErrors,
		m.moduleReferences,
		m.refusedDisposals,
		m.transportDropped,
	}
}

// Describe implements the Collector interface
func (m *ADMMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *ADMMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// RecordQuantum counts one quantum moved in direction.
func (m *ADMMetrics) RecordQuantum(moduleID, direction string, duration time.Duration) {
	m.quantaTotal.WithLabelValues(moduleID, direction).Inc()
	m.callbackDuration.WithLabelValues(moduleID, direction).Observe(duration.Seconds())
}

// RecordUnderrun counts a playout underrun.
func (m *ADMMetrics) RecordUnderrun(moduleID string) {
	m.underrunsTotal.WithLabelValues(moduleID).Inc()
}

// RecordDeliveryFailure counts a dropped quantum.
func (m *ADMMetrics) RecordDeliveryFailure(moduleID, direction, reason string) {
	m.deliveryFailures.WithLabelValues(moduleID, direction, reason).Inc()
}

// SetDelay records the last delay in milliseconds.
func (m *ADMMetrics) SetDelay(moduleID, direction string, ms uint16) {
	m.delayMilliseconds.WithLabelValues(moduleID, direction).Set(float64(ms))
}

// RecordBufferReallocation counts a reallocation attempt and, on success,
// updates the size and generation gauges.
func (m *ADMMetrics) RecordBufferReallocation(moduleID, direction string, bytes int, generation uint64, err error) {
	if err != nil {
		m.bufferReallocations.WithLabelValues(moduleID, direction, "failure").Inc()
		return
	}
	m.bufferReallocations.WithLabelValues(moduleID, direction, "success").Inc()
	m.bufferBytes.WithLabelValues(moduleID, direction).Set(float64(bytes))
	m.bufferGeneration.WithLabelValues(moduleID, direction).Set(float64(generation))
}

// RecordUnsupportedCall counts a call to an unsupported operation.
func (m *ADMMetrics) RecordUnsupportedCall(operation string) {
	m.unsupportedCalls.WithLabelValues(operation).Inc()
}

// RecordThreadViolation counts an affinity violation.
func (m *ADMMetrics) RecordThreadViolation(operation string) {
	m.threadViolations.WithLabelValues(operation).Inc()
}

// RecordDelegationError counts a failure status from the external device.
func (m *ADMMetrics) RecordDelegationError(moduleID, operation string) {
	m.delegationErrors.WithLabelValues(moduleID, operation).Inc()
}

// SetModuleReferences records the current reference count.
func (m *ADMMetrics) SetModuleReferences(moduleID string, refs int32) {
	m.moduleReferences.WithLabelValues(moduleID).Set(float64(refs))
}

// RemoveModule drops the per-module series once a module is destroyed.
func (m *ADMMetrics) RemoveModule(moduleID string) {
	labels := prometheus.Labels{"module_id": moduleID}
	for _, vec := range []interface {
		DeletePartialMatch(prometheus.Labels) int
	}{
		m.quantaTotal, m.underrunsTotal, m.deliveryFailures, m.callbackDuration,
		m.delayMilliseconds, m.bufferReallocations, m.bufferBytes, m.bufferGeneration,
		m.delegationErrors, m.moduleReferences, m.refusedDisposals,
	} {
		vec.DeletePartialMatch(labels)
	}
}

// RecordRefusedDisposal counts a refused Dispose.
func (m *ADMMetrics) RecordRefusedDisposal(moduleID string) {
	m.refusedDisposals.WithLabelValues(moduleID).Inc()
}

// RecordTransportDropped counts bytes dropped by a transport.
func (m *ADMMetrics) RecordTransportDropped(transport, reason string, bytes int) {
	m.transportDropped.WithLabelValues(transport, reason).Add(float64(bytes))
}
