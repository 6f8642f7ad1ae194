package classification

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// classifyDuration tracks end-to-end classify latency.
	// Labels: outcome (ok, invalid, error)
	classifyDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sdc",
			Subsystem: "classification",
			Name:      "duration_seconds",
			Help:      "Duration of classify calls in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	// entitiesTotal counts kept entities.
	// Labels: source (fused, pattern, statistical), label
	entitiesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sdc",
			Subsystem: "classification",
			Name:      "entities_total",
			Help:      "Total number of entities returned by the classifier",
		},
		[]string{"source", "label"},
	)

	// degradedTotal counts classify calls answered without the statistical model.
	degradedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sdc",
			Subsystem: "classification",
			Name:      "degraded_total",
			Help:      "Total number of classify calls served pattern-only because the statistical model was unavailable",
		},
	)

	// statisticalState mirrors State (0=unloaded, 1=loading, 2=loaded, 3=degraded).
	statisticalState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "sdc",
			Subsystem: "classification",
			Name:      "statistical_state",
			Help:      "Statistical model state (0=unloaded, 1=loading, 2=loaded, 3=degraded)",
		},
	)
)
