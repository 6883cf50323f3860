package metrics

import "github.com/prometheus/client_golang/prometheus"

// Prometheus metrics for the ingestion and send pipelines.
var (
	InboundReceivedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "smsbridge_inbound_received_total",
			Help: "Total number of inbound messages logged",
		},
	)

	InboundForwardedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "smsbridge_inbound_forwarded_total",
			Help: "Total number of inbound messages forwarded to the external processor",
		},
	)

	ForwardFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "smsbridge_forward_failures_total",
			Help: "Total number of failed forwarding attempts",
		},
	)

	OutboundSentTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "smsbridge_outbound_sent_total",
			Help: "Total number of outbound messages accepted by the carrier",
		},
	)

	OutboundErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "smsbridge_outbound_errors_total",
			Help: "Total number of outbound sends rejected by the carrier",
		},
	)
)

// Register registers all metrics with the default registry.
func Register() {
	prometheus.MustRegister(InboundReceivedTotal)
	prometheus.MustRegister(InboundForwardedTotal)
	prometheus.MustRegister(ForwardFailuresTotal)
	prometheus.MustRegister(OutboundSentTotal)
	prometheus.MustRegister(OutboundErrorsTotal)
}
