// Package metrics holds the client-side Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	APIRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "investdesk_api_requests_total",
		Help: "API requests by method, path and status class",
	}, []string{"method", "path", "status"})

	APILatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "investdesk_api_latency_seconds",
		Help:    "API request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"path"})

	SessionExpirations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "investdesk_session_expirations_total",
		Help: "401 responses that cleared the session",
	})

	MalformedResponses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "investdesk_malformed_responses_total",
		Help: "Responses rejected by shape validation",
	}, []string{"path"})

	StreamMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "investdesk_stream_messages_total",
		Help: "Push channel messages delivered",
	}, []string{"stream"})

	StreamDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "investdesk_stream_dropped_total",
		Help: "Push channel messages dropped as unparseable",
	}, []string{"stream"})

	StreamReconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "investdesk_stream_reconnects_total",
		Help: "Push channel reconnect attempts",
	}, []string{"stream"})

	PollSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "investdesk_poll_skipped_ticks_total",
		Help: "Poll ticks skipped because a fetch was still in flight",
	}, []string{"resource"})

	PollErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "investdesk_poll_errors_total",
		Help: "Failed poll fetches",
	}, []string{"resource"})
)
