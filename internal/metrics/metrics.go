// Package metrics exposes prometheus instruments for the stream session and
// the dispatch loop.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "chatsync"

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	EventsReceived    *prometheus.CounterVec
	CommandsSent      *prometheus.CounterVec
	CommandsDropped   *prometheus.CounterVec
	ReconnectAttempts prometheus.Counter
	Connected         prometheus.Gauge
}

// New creates the collectors and registers them on reg. A nil reg leaves
// them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_received_total",
			Help:      "Inbound stream events by name.",
		}, []string{"event"}),
		CommandsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_sent_total",
			Help:      "Outbound commands written to the stream.",
		}, []string{"command"}),
		CommandsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_dropped_total",
			Help:      "Outbound commands dropped because the stream was down or the write failed.",
		}, []string{"command"}),
		ReconnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnect_attempts_total",
			Help:      "Automatic reconnection dials.",
		}),
		Connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected",
			Help:      "1 while the stream connection is up.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.EventsReceived, m.CommandsSent, m.CommandsDropped, m.ReconnectAttempts, m.Connected)
	}
	return m
}

func (m *Metrics) EventReceived(name string) {
	if m == nil {
		return
	}
	m.EventsReceived.WithLabelValues(name).Inc()
}

func (m *Metrics) CommandSent(name string) {
	if m == nil {
		return
	}
	m.CommandsSent.WithLabelValues(name).Inc()
}

func (m *Metrics) CommandDropped(name string) {
	if m == nil {
		return
	}
	m.CommandsDropped.WithLabelValues(name).Inc()
}

func (m *Metrics) Reconnecting() {
	if m == nil {
		return
	}
	m.ReconnectAttempts.Inc()
}

func (m *Metrics) SetConnected(up bool) {
	if m == nil {
		return
	}
	if up {
		m.Connected.Set(1)
	} else {
		m.Connected.Set(0)
	}
}
