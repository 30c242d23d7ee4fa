package adm

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xfrag/webrtc/internal/logging"
	"github.com/xfrag/webrtc/internal/observability/metrics"
)

// MetricsCollector records adapter metrics. The zero value is a no-op.
type MetricsCollector struct {
	metrics *metrics.ADMMetrics
	enabled bool
}

var (
	globalMetrics     atomic.Pointer[MetricsCollector]
	globalMetricsOnce sync.Once
	metricsLogger     *slog.Logger
)

// InitMetrics installs the global metrics collector. Only the first call has
// an effect.
func InitMetrics(metricsInstance *metrics.ADMMetrics) {
	globalMetricsOnce.Do(func() {
		metricsLogger = logging.ForService("adm")
		if metricsLogger == nil {
			metricsLogger = slog.Default()
		}
		metricsLogger = metricsLogger.With("component", "metrics")

		globalMetrics.Store(&MetricsCollector{
			metrics: metricsInstance,
			enabled: metricsInstance != nil,
		})

		if metricsInstance != nil {
			metricsLogger.Info("metrics collector initialized")
		} else {
			metricsLogger.Debug("metrics collector disabled")
		}
	})
}

// GetMetrics returns the global collector or a no-op one.
func GetMetrics() *MetricsCollector {
	mc := globalMetrics.Load()
	if mc == nil {
		return &MetricsCollector{}
	}
	return mc
}

func (mc *MetricsCollector) active() bool {
	return mc.enabled && mc.metrics != nil
}

// RecordQuantum records one quantum moved through the data path.
func (mc *MetricsCollector) RecordQuantum(moduleID string, direction Direction, duration time.Duration) {
	if !mc.active() {
		return
	}
	mc.metrics.RecordQuantum(moduleID, direction.String(), duration)
}

// RecordUnderrun records a playout underrun.
func (mc *MetricsCollector) RecordUnderrun(moduleID string) {
	if !mc.active() {
		return
	}
	mc.metrics.RecordUnderrun(moduleID)
}

// RecordDeliveryFailure records a dropped quantum.
func (mc *MetricsCollector) RecordDeliveryFailure(moduleID string, direction Direction, reason string) {
	if !mc.active() {
		return
	}
	mc.metrics.RecordDeliveryFailure(moduleID, direction.String(), reason)
}

// RecordDelay records the last delay reported by the device.
func (mc *MetricsCollector) RecordDelay(moduleID string, direction Direction, ms uint16) {
	if !mc.active() {
		return
	}
	mc.metrics.SetDelay(moduleID, direction.String(), ms)
}

// RecordBufferReallocation records a reallocation attempt.
func (mc *MetricsCollector) RecordBufferReallocation(moduleID string, direction Direction, region Region, err error) {
	if !mc.active() {
		return
	}
	mc.metrics.RecordBufferReallocation(moduleID, direction.String(), len(region.Bytes), region.Generation, err)
}

// RecordUnsupportedCall records a call to an unsupported operation.
func (mc *MetricsCollector) RecordUnsupportedCall(operation string) {
	if !mc.active() {
		return
	}
	mc.metrics.RecordUnsupportedCall(operation)
}

// RecordThreadViolation records an affinity violation.
func (mc *MetricsCollector) RecordThreadViolation(operation string) {
	if !mc.active() {
		return
	}
	mc.metrics.RecordThreadViolation(operation)
}

// RecordDelegationError records a failure status from the external device.
func (mc *MetricsCollector) RecordDelegationError(moduleID, operation string) {
	if !mc.active() {
		return
	}
	mc.metrics.RecordDelegationError(moduleID, operation)
}

// RecordReferences records the module reference count.
func (mc *MetricsCollector) RecordReferences(moduleID string, refs int32) {
	if !mc.active() {
		return
	}
	mc.metrics.SetModuleReferences(moduleID, refs)
}

// RecordRefusedDisposal records a refused Dispose.
func (mc *MetricsCollector) RecordRefusedDisposal(moduleID string) {
	if !mc.active() {
		return
	}
	mc.metrics.RecordRefusedDisposal(moduleID)
}

// RemoveModule drops the module's series after destruction.
func (mc *MetricsCollector) RemoveModule(moduleID string) {
	if !mc.active() {
		return
	}
	mc.metrics.RemoveModule(moduleID)
	if metricsLogger != nil {
		metricsLogger.Debug("module metrics removed", "module_id", moduleID)
	}
}

// RecordTransportDropped records bytes a transport discarded.
func (mc *MetricsCollector) RecordTransportDropped(transport, reason string, bytes int) {
	if !mc.active() {
		return
	}
	mc.metrics.RecordTransportDropped(transport, reason, bytes)
}
