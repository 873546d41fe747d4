package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Command results recorded on CommandsTotal.
const (
	ResultApplied  = "applied"
	ResultRejected = "rejected"
)

var (
	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "panel",
			Subsystem: "command",
			Name:      "total",
			Help:      "Inbound commands processed, by message kind and result",
		},
		[]string{"kind", "result"},
	)

	CommandLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "panel",
			Subsystem: "command",
			Name:      "latency_seconds",
			Help:      "Time from enqueue to completion of an engine job",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12), // 100us to ~200ms
		},
		[]string{"kind"},
	)

	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "panel",
			Name:      "errors_total",
			Help:      "Errors returned by the engine, by error code",
		},
		[]string{"code"},
	)

	OutboundEvents = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "panel",
			Subsystem: "interaction",
			Name:      "events_published_total",
			Help:      "Outbound set_view events published",
		},
	)

	ActivationsWhileDisabled = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "panel",
			Subsystem: "interaction",
			Name:      "activations_while_disabled_total",
			Help:      "Activations received while the interaction gate was disabled",
		},
	)

	InteractionEnabled = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "panel",
			Subsystem: "interaction",
			Name:      "enabled",
			Help:      "1 when the interaction gate is enabled",
		},
	)

	LayoutReloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "panel",
			Subsystem: "layout",
			Name:      "reloads_total",
			Help:      "Layout reload attempts, by result",
		},
		[]string{"result"},
	)
)

// ObserveCommand records the outcome and latency of one engine job.
func ObserveCommand(kind string, started time.Time, code string) {
	result := ResultApplied
	if code != "" {
		result = ResultRejected
		ErrorsTotal.WithLabelValues(code).Inc()
	}
	CommandsTotal.WithLabelValues(kind, result).Inc()
	CommandLatency.WithLabelValues(kind).Observe(time.Since(started).Seconds())
}

// SetInteractionEnabled mirrors the gate state onto the gauge.
func SetInteractionEnabled(enabled bool) {
	if enabled {
		InteractionEnabled.Set(1)
		return
	}
	InteractionEnabled.Set(0)
}

// ObserveReload records a layout reload attempt.
func ObserveReload(err error) {
	if err != nil {
		LayoutReloads.WithLabelValues(ResultRejected).Inc()
		return
	}
	LayoutReloads.WithLabelValues(ResultApplied).Inc()
}
