// Package metrics exposes prometheus collectors for the messaging gateway.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ripple_active_connections",
		Help: "Number of websocket connections currently registered with the hub.",
	})

	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ripple_events_total",
		Help: "Inbound gateway events processed, by event type.",
	}, []string{"type"})

	BroadcastsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ripple_broadcasts_total",
		Help: "Channel broadcasts emitted, by event name.",
	}, []string{"event"})

	MessagesSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ripple_messages_sent_total",
		Help: "Messages accepted and persisted by the lifecycle handler.",
	})
)
