package metrics

import "github.com/prometheus/client_golang/prometheus"

// Dispatch outcomes.
const (
	DispatchOutcomeSent     = "sent"
	DispatchOutcomeResolved = "resolved"
	DispatchOutcomeError    = "error"
)

// Reply outcomes.
const (
	ReplyOutcomeReceived  = "received"
	ReplyOutcomeFailed    = "failed"
	ReplyOutcomeDuplicate = "duplicate"
	ReplyOutcomeUnmatched = "unmatched"
	ReplyOutcomeError     = "error"
)

// NegotiationMetrics counts carrier traffic and shipment outcomes.
type NegotiationMetrics struct {
	dispatches *prometheus.CounterVec
	replies    *prometheus.CounterVec
	completed  *prometheus.CounterVec
}

// NewNegotiationMetrics registers the negotiation counters on reg.
func NewNegotiationMetrics(reg prometheus.Registerer) *NegotiationMetrics {
	if reg == nil {
		return &NegotiationMetrics{}
	}
	dispatches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dispatch_requests_total",
		Help:      "Outbound carrier requests by kind, channel and outcome.",
	}, []string{"kind", "channel", "outcome"})
	replies := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "replies_total",
		Help:      "Inbound carrier replies by quote type and outcome.",
	}, []string{"quote_type", "outcome"})
	completed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "shipments_completed_total",
		Help:      "Shipments moved to complete, by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(dispatches, replies, completed)
	return &NegotiationMetrics{
		dispatches: dispatches,
		replies:    replies,
		completed:  completed,
	}
}

func (m *NegotiationMetrics) IncDispatch(kind, channel, outcome string) {
	if m == nil || m.dispatches == nil {
		return
	}
	m.dispatches.WithLabelValues(normalizeLabel(kind), normalizeLabel(channel), normalizeLabel(outcome)).Inc()
}

func (m *NegotiationMetrics) IncReply(quoteType, outcome string) {
	if m == nil || m.replies == nil {
		return
	}
	m.replies.WithLabelValues(normalizeLabel(quoteType), normalizeLabel(outcome)).Inc()
}

func (m *NegotiationMetrics) IncCompleted(outcome string) {
	if m == nil || m.completed == nil {
		return
	}
	m.completed.WithLabelValues(normalizeLabel(outcome)).Inc()
}
