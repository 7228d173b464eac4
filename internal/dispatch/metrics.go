package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/lingodesk/bellhop/internal/pkg/metrics"
)

var (
	eventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "dispatch",
			Name:      "events_total",
			Help:      "Push events handled by outcome",
		},
		[]string{"outcome"},
	)

	unreadGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metrics.Namespace,
			Subsystem: "dispatch",
			Name:      "unread",
			Help:      "Locally tracked unread notification count",
		},
	)

	subscriberPanicsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "dispatch",
			Name:      "subscriber_panics_total",
			Help:      "Subscriber callbacks recovered from a panic",
		},
	)
)

func recordEvent(outcome string) {
	eventsTotal.WithLabelValues(outcome).Inc()
}

func setUnread(count int) {
	unreadGauge.Set(float64(count))
}

func recordSubscriberPanic() {
	subscriberPanicsTotal.Inc()
}
