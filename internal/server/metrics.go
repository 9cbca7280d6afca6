package server

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Tyrowin/relaychat/internal/chat"
)

const metricsNamespace = "relaychat"

// Metrics records relay activity in a dedicated Prometheus registry. It
// implements chat.Observer.
type Metrics struct {
	registry         *prometheus.Registry
	connections      prometheus.Gauge
	participants     prometheus.Gauge
	events           *prometheus.CounterVec
	deliveries       *prometheus.CounterVec
	deliveryFailures *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		connections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "connections",
			Help:      "Number of open WebSocket connections, joined or not",
		}),

		participants: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "participants",
			Help:      "Number of joined participants",
		}),

		events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "events_total",
			Help:      "Inbound events by type and outcome",
		}, []string{"type", "outcome"}),

		deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "deliveries_total",
			Help:      "Outbound events queued to a connection",
		}, []string{"type"}),

		deliveryFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "delivery_failures_total",
			Help:      "Outbound events a connection could not accept",
		}, []string{"type"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) EventHandled(kind chat.EventType, err error) {
	m.events.WithLabelValues(string(kind), outcome(err)).Inc()
}

func (m *Metrics) Delivered(kind chat.EventType, recipients, failures int) {
	m.deliveries.WithLabelValues(string(kind)).Add(float64(recipients - failures))
	if failures > 0 {
		m.deliveryFailures.WithLabelValues(string(kind)).Add(float64(failures))
	}
}

func (m *Metrics) PresenceChanged(connections, participants int) {
	m.connections.Set(float64(connections))
	m.participants.Set(float64(participants))
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, chat.ErrMalformedEvent):
		return "malformed"
	case errors.Is(err, chat.ErrAlreadyJoined),
		errors.Is(err, chat.ErrInvalidDisplayName),
		errors.Is(err, chat.ErrMessageTooLong):
		return "rejected"
	default:
		return "dropped"
	}
}
