// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Intake metrics
	InboundMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "molebot_inbound_messages_total",
			Help: "Inbound messages by channel and handling outcome",
		},
		[]string{"channel", "outcome"},
	)

	RateLimitTrips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "molebot_rate_limit_trips_total",
			Help: "Messages dropped by the rate gate",
		},
		[]string{"warned"}, // "true" on the first trip of a window
	)

	Commands = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "molebot_commands_total",
			Help: "Commands executed",
		},
		[]string{"command"},
	)

	// Backend metrics
	AIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "molebot_ai_requests_total",
			Help: "AI backend requests by model and result",
		},
		[]string{"model", "result"},
	)

	AIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "molebot_ai_request_duration_seconds",
			Help:    "AI backend request latency",
			Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 20, 40, 80},
		},
		[]string{"model"},
	)

	// Content metrics
	Extractions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "molebot_extractions_total",
			Help: "Media extraction results by kind",
		},
		[]string{"kind", "result"},
	)

	Searches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "molebot_searches_total",
			Help: "External resource searches by outcome",
		},
		[]string{"outcome"},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "molebot_sessions_active",
			Help: "One-to-one sessions currently active",
		},
	)
)
