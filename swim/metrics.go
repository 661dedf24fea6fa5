package swim

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	DropReasonSendBufferFull = "send_buffer_full"
	DropReasonMalformed      = "malformed"
	DropReasonNonText        = "non_text"
	DropReasonWriteRefused   = "write_refused"
)

var (
	envelopesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swim_channel_envelopes_sent_total",
			Help: "Envelopes written to a transport, by kind",
		},
		[]string{"kind"},
	)

	envelopesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swim_channel_envelopes_received_total",
			Help: "Envelopes decoded from a transport, by kind",
		},
		[]string{"kind"},
	)

	envelopesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swim_channel_dropped_total",
			Help: "Inbound or outbound messages discarded, by reason",
		},
		[]string{"reason"},
	)

	reconnectsScheduled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "swim_channel_reconnects_total",
			Help: "Reconnect attempts scheduled after a transport closed",
		},
	)

	sendBufferSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "swim_channel_send_buffer_size",
			Help: "Envelopes buffered while disconnected, by host",
		},
		[]string{"host"},
	)

	sendBufferBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "swim_channel_send_buffer_bytes",
			Help: "Encoded bytes buffered while disconnected, by host",
		},
		[]string{"host"},
	)

	openChannels = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "swim_client_channels",
			Help: "Channels currently held by clients",
		},
	)
)
