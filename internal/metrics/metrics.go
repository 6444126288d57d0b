// Cinetrace - Per-User Behavioral Telemetry for Media Catalog UIs
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cinetrace

// Package metrics provides Prometheus instrumentation for production
// observability: API latency and throughput, ingestion outcomes, and record
// store behavior (conflicts, resolver retries, breaker state).
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_rate_limit_hits_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"endpoint"},
	)

	// Ingestion Metrics
	TrackingEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracking_events_total",
			Help: "Total number of tracking events by type and outcome",
		},
		[]string{"type", "result"}, // result: "accepted", "noop", "rejected", "failed"
	)

	TrackingAggregationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tracking_aggregation_duration_seconds",
			Help:    "Time to fold one event into the user record",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"type"},
	)

	TrackingSessionsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tracking_sessions_created_total",
			Help: "Total number of session entries created",
		},
	)

	TrackingResolveRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tracking_resolve_retries_total",
			Help: "Total number of session resolver retry iterations after a create race",
		},
	)

	// Record Store Metrics
	StoreConflictsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "store_conflicts_total",
			Help: "Total number of atomic updates rejected by the store",
		},
	)

	StoreBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "store_breaker_state",
			Help: "Record store circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)
)

// RecordAPIRequest records metrics for one completed API request.
func RecordAPIRequest(method, endpoint string, statusCode int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest adjusts the active request gauge.
func TrackActiveRequest(active bool) {
	if active {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordEvent records an ingestion outcome for one event.
func RecordEvent(eventType, result string) {
	TrackingEventsTotal.WithLabelValues(eventType, result).Inc()
}

// ObserveAggregation records how long one event took to aggregate.
func ObserveAggregation(eventType string, duration time.Duration) {
	TrackingAggregationDuration.WithLabelValues(eventType).Observe(duration.Seconds())
}

// SetStoreBreakerState updates the breaker state gauge from a gobreaker state
// string.
func SetStoreBreakerState(state string) {
	switch state {
	case "closed":
		StoreBreakerState.Set(0)
	case "half-open":
		StoreBreakerState.Set(1)
	case "open":
		StoreBreakerState.Set(2)
	}
}
