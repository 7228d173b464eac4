package presenter

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/lingodesk/bellhop/internal/pkg/metrics"
)

var (
	effectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "presenter",
			Name:      "effects_total",
			Help:      "Perceptible effects produced by kind of effect",
		},
		[]string{"effect"},
	)

	suppressionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "presenter",
			Name:      "suppressions_total",
			Help:      "Effects suppressed by policy reason",
		},
		[]string{"reason"},
	)
)

func recordEffect(effect string) {
	effectsTotal.WithLabelValues(effect).Inc()
}

func recordSuppression(reason string) {
	suppressionsTotal.WithLabelValues(reason).Inc()
}
