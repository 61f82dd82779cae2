// Package metrics exposes Prometheus instrumentation for the relay.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_sessions_active",
		Help: "Currently connected client sessions",
	})

	SessionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_sessions_total",
		Help: "Total client sessions accepted",
	})

	AudioChunksForwarded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_audio_chunks_forwarded_total",
		Help: "Audio chunks forwarded to the transcription provider",
	})

	AudioChunksDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_audio_chunks_dropped_total",
		Help: "Audio chunks dropped instead of forwarded",
	}, []string{"reason"})

	TranscriptsDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_transcripts_delivered_total",
		Help: "Transcript events delivered to clients",
	})

	UpstreamConnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_upstream_connects_total",
		Help: "Outbound provider connections opened",
	})

	UpstreamErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_upstream_errors_total",
		Help: "Provider connection failures by kind",
	}, []string{"kind"})

	MalformedMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_malformed_messages_total",
		Help: "Messages dropped because they could not be parsed",
	}, []string{"source"})
)
