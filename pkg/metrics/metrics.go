// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// LLMRequestDuration tracks upstream call duration by mode (complete, stream).
	LLMRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_request_duration_seconds",
			Help:    "Upstream LLM request duration",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 30, 45, 60, 90, 120},
		},
		[]string{"mode", "status"},
	)

	// LLMTokensTotal tracks total LLM tokens reported by the upstream.
	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Total LLM tokens processed",
		},
		[]string{"model", "direction"},
	)

	// ReplyStreamsActive tracks reply streams currently being relayed.
	ReplyStreamsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reply_streams_active",
			Help: "Number of reply streams being relayed",
		},
	)

	// RepliesTotal tracks finished reply pipelines.
	RepliesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "replies_total",
			Help: "Reply pipelines by branch and outcome",
		},
		[]string{"branch", "status"},
	)

	// SummaryFailuresTotal tracks swallowed summary derivation failures.
	SummaryFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "summary_failures_total",
			Help: "Summary derivations that failed and were skipped",
		},
	)

	// ConversationsTotal tracks total conversations created.
	ConversationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "conversations_total",
			Help: "Total conversations created",
		},
	)

	// MessagesTotal tracks total messages created.
	MessagesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Total messages created",
		},
	)

	// EventsPublishedTotal tracks conversation events sent to the event log.
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_published_total",
			Help: "Conversation events published",
		},
		[]string{"type", "status"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordLLMRequest records metrics for one upstream call.
func RecordLLMRequest(mode, status string, duration float64) {
	LLMRequestDuration.WithLabelValues(mode, status).Observe(duration)
}

// RecordLLMTokens records token usage reported by the upstream.
func RecordLLMTokens(model string, tokensIn, tokensOut int) {
	LLMTokensTotal.WithLabelValues(model, "in").Add(float64(tokensIn))
	LLMTokensTotal.WithLabelValues(model, "out").Add(float64(tokensOut))
}

// RecordReply records the outcome of a reply pipeline.
func RecordReply(branch, status string) {
	RepliesTotal.WithLabelValues(branch, status).Inc()
}

// IncrementReplyStreams increments the active reply stream count.
func IncrementReplyStreams() {
	ReplyStreamsActive.Inc()
}

// DecrementReplyStreams decrements the active reply stream count.
func DecrementReplyStreams() {
	ReplyStreamsActive.Dec()
}
