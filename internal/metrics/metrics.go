package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "firesync_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "firesync_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	AuthDenied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "firesync_auth_denied_total",
			Help: "Requests rejected by the namespace gate",
		},
		[]string{"reason"},
	)

	// Pipeline metrics
	MessagesFannedOut = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "firesync_messages_fanned_out_total",
			Help: "Member copies written by group fan-out",
		},
	)

	MessagesDrained = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "firesync_messages_drained_total",
			Help: "Messages moved from a member queue to its inbox",
		},
	)

	FanoutFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "firesync_fanout_failures_total",
			Help: "Fan-outs that left the source message in place after a failed member write",
		},
	)

	TriggerInvocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "firesync_trigger_invocations_total",
			Help: "Trigger handler invocations",
		},
		[]string{"trigger", "outcome"}, // "ok", "error" or "panic"
	)

	TriggerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "firesync_trigger_duration_seconds",
			Help:    "Trigger handler duration",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		},
		[]string{"trigger"},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "firesync_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)

	// Infrastructure metrics
	StoreLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "firesync_store_latency_seconds",
			Help:    "Store operation latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		},
		[]string{"backend", "op"},
	)

	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "firesync_store_errors_total",
			Help: "Failed store operations",
		},
		[]string{"backend", "op"},
	)
)
