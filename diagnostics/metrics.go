package diagnostics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collectors follow the package-level promauto pattern: registered against
// the default registry at init time, updated through small methods so
// callers never touch prometheus types directly.
var (
	telemetrySentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deviceclient_telemetry_sent_total",
			Help: "Total outbound telemetry messages by terminal confirmation.",
		},
		[]string{"confirmation"},
	)

	twinReportedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deviceclient_twin_reported_total",
			Help: "Total reported-state items by terminal status.",
		},
		[]string{"status"},
	)

	methodInvocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deviceclient_method_invocations_total",
			Help: "Total direct-method invocations dispatched, by handler shape.",
		},
		[]string{"shape"},
	)

	outboundQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "deviceclient_outbound_queue_depth",
			Help: "Current number of outbound telemetry entries awaiting send.",
		},
	)
)

// RecordTelemetrySent increments the confirmation counter.
func RecordTelemetrySent(confirmation string) {
	telemetrySentTotal.WithLabelValues(confirmation).Inc()
}

// RecordTwinReported increments the reported-state status counter.
func RecordTwinReported(status string) {
	twinReportedTotal.WithLabelValues(status).Inc()
}

// RecordMethodInvocation increments the method-shape counter.
func RecordMethodInvocation(shape string) {
	methodInvocationsTotal.WithLabelValues(shape).Inc()
}

// SetOutboundQueueDepth reports the current queue depth.
func SetOutboundQueueDepth(n int) {
	outboundQueueDepth.Set(float64(n))
}
