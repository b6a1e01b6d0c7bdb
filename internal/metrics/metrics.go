// Studyhall - Real-Time Study Group Collaboration Backend
// Copyright 2026 Studyhall Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/studyhall-app/studyhall

// Package metrics provides Prometheus instrumentation for the real-time
// layer (connections, frames, broadcasts), the persistence layer, and the
// HTTP surface. All collectors register through promauto at init time and
// are scraped from GET /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Real-time layer

	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "studyhall_ws_connections_active",
			Help: "Current number of live WebSocket connections",
		},
	)

	RoomsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "studyhall_ws_rooms_active",
			Help: "Current number of rooms with at least one live connection",
		},
	)

	FramesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studyhall_ws_frames_received_total",
			Help: "Total inbound frames by type (unknown types counted as 'unknown')",
		},
		[]string{"type"},
	)

	FramesRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studyhall_ws_frames_rejected_total",
			Help: "Total inbound frames rejected, by reason",
		},
		[]string{"reason"}, // "unauthorized", "validation", "persistence", "malformed", "rate_limited"
	)

	BroadcastsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studyhall_ws_broadcasts_delivered_total",
			Help: "Total frames delivered to individual connections via room broadcast",
		},
		[]string{"type"},
	)

	BroadcastsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "studyhall_ws_broadcasts_dropped_total",
			Help: "Broadcast deliveries dropped because a connection's send queue was full",
		},
	)

	// Persistence layer

	StoreOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "studyhall_store_operation_duration_seconds",
			Help:    "Duration of BadgerDB store operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	StoreOpErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studyhall_store_operation_errors_total",
			Help: "Total BadgerDB store operation errors",
		},
		[]string{"operation"},
	)

	// HTTP surface

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "studyhall_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studyhall_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
)

// ObserveHTTPRequest records one HTTP request observation.
func ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	code := strconv.Itoa(status)
	HTTPRequestDuration.WithLabelValues(method, path, code).Observe(duration.Seconds())
	HTTPRequestsTotal.WithLabelValues(method, path, code).Inc()
}
