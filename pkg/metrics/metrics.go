package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// SlapsReceived counts every envelope POSTed to a salmon endpoint.
	SlapsReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fedbridge_slaps_received_total",
		Help: "Inbound salmon slaps received.",
	})

	// SlapsRejected counts rejected envelopes by cause.
	SlapsRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fedbridge_slaps_rejected_total",
		Help: "Inbound salmon slaps rejected, by cause.",
	}, []string{"cause"})

	// SlapsRelayed counts envelopes handed to the dispatcher.
	SlapsRelayed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fedbridge_slaps_relayed_total",
		Help: "Inbound salmon slaps accepted and dispatched.",
	})

	// RelayRecordsCreated counts newly inserted relay records.
	RelayRecordsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fedbridge_relay_records_created_total",
		Help: "Relay records created (idempotent duplicates excluded).",
	})

	// Webmentions counts delivery attempts by result (sent, failed,
	// no_endpoint).
	Webmentions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fedbridge_webmentions_total",
		Help: "Outbound webmention deliveries, by result.",
	}, []string{"result"})

	// KeysGenerated counts domain key pairs generated.
	KeysGenerated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fedbridge_magic_keys_generated_total",
		Help: "Magic signature key pairs generated.",
	})
)

func init() {
	prometheus.MustRegister(
		SlapsReceived,
		SlapsRejected,
		SlapsRelayed,
		RelayRecordsCreated,
		Webmentions,
		KeysGenerated,
	)
}
