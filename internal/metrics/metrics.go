// Package metrics declares the prometheus collectors of the service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Engine
	RecommendationsServed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "persona_recommendations_total",
			Help: "Recommendations returned, by endpoint",
		},
		[]string{"endpoint"}, // "next", "ranked", "intent"
	)

	RecommendationScore = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "persona_recommendation_score",
			Help:    "Like probability of the top recommendation",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		},
	)

	FeedbackTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "persona_feedback_total",
			Help: "Feedback events accepted, by label",
		},
		[]string{"label"},
	)

	SkipsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "persona_skips_total",
			Help: "Tracks skipped without feedback",
		},
	)

	DuplicateFeedback = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "persona_duplicate_feedback_total",
			Help: "Feedback rejected because the track was already rated",
		},
	)

	Bootstraps = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "persona_bootstraps_total",
			Help: "Sessions bootstrapped from synthetic ratings",
		},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "persona_active_sessions",
			Help: "Sessions held in memory",
		},
	)

	// Catalog
	CatalogRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "persona_catalog_requests_total",
			Help: "Catalog API requests, by endpoint and outcome",
		},
		[]string{"endpoint", "outcome"}, // outcome: "ok", "error", "rejected"
	)

	CatalogCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "persona_catalog_cache_total",
			Help: "Candidate batch cache lookups",
		},
		[]string{"result"}, // "hit", "miss"
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "persona_circuit_breaker_state",
			Help: "Breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// Worker
	AnalyzerJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "persona_analyzer_jobs_total",
			Help: "Preview analysis jobs, by outcome",
		},
		[]string{"outcome"}, // "ok", "error", "dropped"
	)

	AnalyzerDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "persona_analyzer_duration_seconds",
			Help:    "Time spent downloading and decoding one preview",
			Buckets: prometheus.DefBuckets,
		},
	)

	// HTTP
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "persona_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// ObserveHTTP records one request.
func ObserveHTTP(method, route, status string, d time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, route, status).Observe(d.Seconds())
}
