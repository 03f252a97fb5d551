package ircore

import "github.com/prometheus/client_golang/prometheus"

// Metrics is the set of prometheus collectors exported across every
// Server a Core manages (the observability surface). Construct
// one with NewMetrics and register it with a prometheus.Registerer; a
// Core created via NewCore always carries its own.
type Metrics struct {
	MessagesIn  *prometheus.CounterVec
	MessagesOut *prometheus.CounterVec

	Connected *prometheus.GaugeVec

	QueueDepth *prometheus.GaugeVec

	ReconnectsTotal *prometheus.CounterVec
	BatchesActive   *prometheus.GaugeVec

	LagSeconds *prometheus.GaugeVec
}

// NewMetrics builds an unregistered Metrics set labeled by server name.
func NewMetrics() *Metrics {
	return &Metrics{
		MessagesIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ircore",
			Name:      "messages_in_total",
			Help:      "Inbound wire messages processed, by server and command.",
		}, []string{"server", "command"}),

		MessagesOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ircore",
			Name:      "messages_out_total",
			Help:      "Outbound wire messages sent, by server and command.",
		}, []string{"server", "command"}),

		Connected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ircore",
			Name:      "connected",
			Help:      "1 if the server's connection is currently registered, else 0.",
		}, []string{"server"}),

		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ircore",
			Name:      "outqueue_depth",
			Help:      "Out-queue depth by server and priority class.",
		}, []string{"server", "priority"}),

		ReconnectsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ircore",
			Name:      "reconnects_total",
			Help:      "Reconnect attempts by server.",
		}, []string{"server"}),

		BatchesActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ircore",
			Name:      "batches_active",
			Help:      "Open (unterminated) batches by server.",
		}, []string{"server"}),

		LagSeconds: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ircore",
			Name:      "lag_seconds",
			Help:      "Most recent PING/PONG round-trip time by server.",
		}, []string{"server"}),
	}
}

// Collectors returns every collector for registration with a
// prometheus.Registerer.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.MessagesIn, m.MessagesOut, m.Connected, m.QueueDepth,
		m.ReconnectsTotal, m.BatchesActive, m.LagSeconds,
	}
}

func (m *Metrics) observeIn(server, command string) {
	if m == nil {
		return
	}
	m.MessagesIn.WithLabelValues(server, command).Inc()
}

func (m *Metrics) observeOut(server, command string) {
	if m == nil {
		return
	}
	m.MessagesOut.WithLabelValues(server, command).Inc()
}

func (m *Metrics) setConnected(server string, connected bool) {
	if m == nil {
		return
	}
	v := 0.0
	if connected {
		v = 1.0
	}
	m.Connected.WithLabelValues(server).Set(v)
}

func (m *Metrics) observeQueueDepth(server string, immediate, high, low int) {
	if m == nil {
		return
	}
	m.QueueDepth.WithLabelValues(server, "immediate").Set(float64(immediate))
	m.QueueDepth.WithLabelValues(server, "high").Set(float64(high))
	m.QueueDepth.WithLabelValues(server, "low").Set(float64(low))
}

func (m *Metrics) observeReconnect(server string) {
	if m == nil {
		return
	}
	m.ReconnectsTotal.WithLabelValues(server).Inc()
}

func (m *Metrics) setBatchesActive(server string, n int) {
	if m == nil {
		return
	}
	m.BatchesActive.WithLabelValues(server).Set(float64(n))
}

func (m *Metrics) observeLag(server string, seconds float64) {
	if m == nil {
		return
	}
	m.LagSeconds.WithLabelValues(server).Set(seconds)
}
