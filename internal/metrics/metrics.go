// Package metrics holds the Prometheus collectors of the comment and notification pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AdmissionOutcomes counts comment admission decisions
	AdmissionOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comment_admission_total",
			Help: "Total number of comment admission decisions",
		},
		[]string{"outcome"}, // outcome: admitted, frozen, throttled, unauthorized
	)

	// AbuseDetections counts IP bursts that crossed the distinct-author threshold
	AbuseDetections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "abuse_detections_total",
			Help: "Total number of multi-account bursts detected",
		},
	)

	// AccountsFrozen counts accounts frozen by the abuse detector
	AccountsFrozen = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "abuse_accounts_frozen_total",
			Help: "Total number of account freezes imposed",
		},
	)

	// NotificationsCreated counts notification rows written by fan-out
	NotificationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_created_total",
			Help: "Total number of notifications created",
		},
		[]string{"type"},
	)

	// FanoutFailures counts fan-out calls that returned an error
	FanoutFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_fanout_failures_total",
			Help: "Total number of failed notification fan-outs",
		},
		[]string{"event"}, // event: comment, page_update
	)

	// DigestEmails counts emails handled by the digest scheduler
	DigestEmails = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "digest_emails_total",
			Help: "Total number of notification emails by pass and status",
		},
		[]string{"pass", "status"}, // status: sent, failed, skipped
	)

	// TickDuration observes the duration of one scheduler tick
	TickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "digest_tick_duration_seconds",
			Help:    "Digest scheduler tick duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		},
	)

	// TickBackoffs counts ticks that failed and triggered the extended backoff
	TickBackoffs = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "digest_tick_backoffs_total",
			Help: "Total number of scheduler ticks that entered error backoff",
		},
	)

	// CacheLookups counts cache lookups by cache name and result
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_lookups_total",
			Help: "Total number of cache lookups",
		},
		[]string{"cache", "result"}, // result: hit, miss
	)

	// HTTPRequestDuration observes API request latency
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)
)

// RecordAdmission records one admission decision
func RecordAdmission(outcome string) {
	AdmissionOutcomes.WithLabelValues(outcome).Inc()
}

// RecordFreeze records one detected burst and the number of accounts it froze
func RecordFreeze(frozen int) {
	AbuseDetections.Inc()
	AccountsFrozen.Add(float64(frozen))
}

// RecordNotificationCreated records one created notification
func RecordNotificationCreated(notificationType string) {
	NotificationsCreated.WithLabelValues(notificationType).Inc()
}

// RecordFanoutFailure records a failed fan-out
func RecordFanoutFailure(event string) {
	FanoutFailures.WithLabelValues(event).Inc()
}

// RecordDigestEmail records the outcome of one email delivery attempt
func RecordDigestEmail(pass, status string) {
	DigestEmails.WithLabelValues(pass, status).Inc()
}

// RecordTick records a scheduler tick duration
func RecordTick(duration time.Duration) {
	TickDuration.Observe(duration.Seconds())
}

// RecordHTTPRequestDuration records an API request
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// RecordCacheLookup records a cache hit or miss
func RecordCacheLookup(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheLookups.WithLabelValues(cache, result).Inc()
}
