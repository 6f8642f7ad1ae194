package training

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sdc",
		Subsystem: "training",
		Name:      "runs_total",
		Help:      "Training runs by terminal status and error code.",
	}, []string{"status", "code"})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "sdc",
		Subsystem: "training",
		Name:      "run_duration_seconds",
		Help:      "Wall time of completed training runs.",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
	})

	lastF1 = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "sdc",
		Subsystem: "training",
		Name:      "last_f1",
		Help:      "F1 of the most recent completed run per lineage.",
	}, []string{"lineage"})
)
