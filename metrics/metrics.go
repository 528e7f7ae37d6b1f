package metrics

import (
	"github.com/freshbasket/notification-sync/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "notification_sync"

// Metrics holds the collectors used by a single session.
type Metrics struct {
	EventsReceived *prometheus.CounterVec
	EventsDropped  *prometheus.CounterVec
	APIRequests    *prometheus.CounterVec
	Toasts         prometheus.Counter
	Reconnects     prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EventsReceived: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_received_total",
				Help:      "Total number of events received from the event transport",
			},
			[]string{"event"},
		),
		EventsDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_dropped_total",
				Help:      "Total number of events that were not applied",
			},
			[]string{"event", "reason"},
		),
		APIRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_requests_total",
				Help:      "Total number of admin API requests",
			},
			[]string{"operation", "outcome"},
		),
		Toasts: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "toasts_total",
				Help:      "Total number of toast notifications raised",
			},
		),
		Reconnects: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transport_reconnects_total",
				Help:      "Total number of event transport reconnection attempts",
			},
		),
	}
}

// RegisterStore exposes the counters held by s as gauges.
func RegisterStore(reg prometheus.Registerer, s *store.Store) {
	factory := promauto.With(reg)
	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "notifications_unread",
			Help:      "Unread notification count last reported by the server",
		},
		func() float64 { return float64(s.TotalUnread()) },
	)
	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Total notification count last reported by the server",
		},
		func() float64 { return float64(s.TotalDoc()) },
	)
	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "notifications_held",
			Help:      "Number of notifications held locally",
		},
		func() float64 { return float64(s.Len()) },
	)
}

// Outcome returns the outcome label for an API request.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
