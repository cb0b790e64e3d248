package metrics

import "github.com/prometheus/client_golang/prometheus"

// Outcome labels for inbound processing.
const (
	OutcomeProcessed   = "processed"
	OutcomePassthrough = "passthrough"
	OutcomeDuplicate   = "duplicate"
	OutcomeMalformed   = "malformed"
	OutcomeEngineError = "engine_error"
	OutcomePublishFail = "publish_error"
	OutcomeConflict    = "conflict"
	OutcomeStoreError  = "store_error"
	OutcomePanic       = "panic"
)

// AskerMetrics exposes counters/histograms for the conversation flow.
type AskerMetrics struct {
	inboundTotal   *prometheus.CounterVec
	outboundTotal  *prometheus.CounterVec
	transitions    *prometheus.CounterVec
	listenRestarts *prometheus.CounterVec
	handleLatency  *prometheus.HistogramVec
}

// NewAskerMetrics registers the collectors on reg, or the default registerer when nil.
func NewAskerMetrics(reg prometheus.Registerer) *AskerMetrics {
	m := &AskerMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "asker",
			Subsystem: "router",
			Name:      "inbound_total",
			Help:      "Inbound contact messages by outcome",
		}, []string{"outcome"}),
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "asker",
			Subsystem: "router",
			Name:      "outbound_total",
			Help:      "Published outbound messages",
		}, []string{"channel", "kind"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "asker",
			Subsystem: "engine",
			Name:      "state_entered_total",
			Help:      "Form states entered by committed decisions",
		}, []string{"state"}),
		listenRestarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "asker",
			Subsystem: "supervisor",
			Name:      "listen_restarts_total",
			Help:      "Subscription restarts after a listen failure",
		}, []string{"channel"}),
		handleLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "asker",
			Subsystem: "router",
			Name:      "handle_latency_seconds",
			Help:      "Latency of processing one inbound message",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.outboundTotal, m.transitions, m.listenRestarts, m.handleLatency)
	return m
}

func (m *AskerMetrics) ObserveInbound(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(outcome).Inc()
	m.handleLatency.WithLabelValues(outcome).Observe(seconds)
}

func (m *AskerMetrics) ObserveOutbound(channel, kind string) {
	if m == nil {
		return
	}
	m.outboundTotal.WithLabelValues(channel, kind).Inc()
}

func (m *AskerMetrics) ObserveStateEntered(state string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(state).Inc()
}

func (m *AskerMetrics) ObserveListenRestart(channel string) {
	if m == nil {
		return
	}
	m.listenRestarts.WithLabelValues(channel).Inc()
}
