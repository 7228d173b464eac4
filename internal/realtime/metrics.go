package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/lingodesk/bellhop/internal/pkg/metrics"
)

var (
	connectionUp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metrics.Namespace,
			Subsystem: "realtime",
			Name:      "connection_up",
			Help:      "Whether the push channel is currently connected",
		},
	)

	framesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "realtime",
			Name:      "frames_total",
			Help:      "Frames received from the push channel by outcome",
		},
		[]string{"outcome"},
	)

	reconnectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "realtime",
			Name:      "reconnects_total",
			Help:      "Reconnect attempts scheduled after unexpected closures",
		},
	)
)

func setConnectionUp(up bool) {
	if up {
		connectionUp.Set(1)
		return
	}
	connectionUp.Set(0)
}

func recordFrame(outcome string) {
	framesTotal.WithLabelValues(outcome).Inc()
}

func recordReconnectScheduled() {
	reconnectsTotal.Inc()
}
