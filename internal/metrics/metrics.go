// Camwatch - Live Camera Dashboard Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camwatch

// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Backend request/response API
	BackendRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "camwatch_backend_requests_total",
			Help: "Total number of backend API requests",
		},
		[]string{"operation", "result"}, // result: "success", "app_error", "rejected", "transport_error"
	)

	BackendRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "camwatch_backend_request_duration_seconds",
			Help:    "Duration of backend API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Command dispatcher
	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "camwatch_commands_total",
			Help: "Total number of dispatched camera commands",
		},
		[]string{"command", "outcome"},
	)

	BatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "camwatch_batches_total",
			Help: "Total number of start-all/stop-all batches run",
		},
		[]string{"command"},
	)

	RegistryCameras = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "camwatch_registry_cameras",
			Help: "Number of cameras in the registry",
		},
	)

	RegistryActiveCameras = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "camwatch_registry_active_cameras",
			Help: "Number of cameras the backend reports as active",
		},
	)

	// Push channel
	ChannelState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "camwatch_channel_state",
			Help: "Push channel state (0=disconnected, 1=connecting, 2=connected)",
		},
	)

	ChannelReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "camwatch_channel_connects_total",
			Help: "Total number of successful push channel connects",
		},
	)

	ChannelDialFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "camwatch_channel_dial_failures_total",
			Help: "Total number of failed push channel dial attempts",
		},
	)

	ChannelMessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "camwatch_channel_messages_sent_total",
			Help: "Total number of outbound push channel messages",
		},
		[]string{"type"},
	)

	ChannelMessagesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "camwatch_channel_messages_dropped_total",
			Help: "Outbound messages dropped because the channel was not connected",
		},
		[]string{"type"},
	)

	ChannelEventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "camwatch_channel_events_received_total",
			Help: "Total number of inbound push channel events",
		},
		[]string{"type"},
	)

	FramesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "camwatch_frames_dropped_total",
			Help: "Frame events dropped because an event subscriber was full",
		},
	)

	// DeliveryRate is the locally observed delivery rate per camera.
	DeliveryRate = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "camwatch_delivery_rate_fps",
			Help: "Frames per second observed arriving at this client",
		},
		[]string{"camera_id"},
	)

	// CaptureRate is the backend-reported capture rate from the latest frame.
	CaptureRate = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "camwatch_capture_rate_fps",
			Help: "Frames per second the backend reports capturing",
		},
		[]string{"camera_id"},
	)

	// Rendering and dashboard viewers
	RendersTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "camwatch_renders_total",
			Help: "Total number of dashboard views rendered",
		},
	)

	ViewersConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "camwatch_viewers_connected",
			Help: "Current number of dashboard viewer WebSocket connections",
		},
	)

	ViewerMessagesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "camwatch_viewer_messages_dropped_total",
			Help: "Dashboard messages dropped because a viewer was too slow",
		},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_consecutive_failures",
			Help: "Current number of consecutive failures",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)
)

// RecordBackendRequest records one backend API call.
func RecordBackendRequest(operation, result string, duration time.Duration) {
	BackendRequestsTotal.WithLabelValues(operation, result).Inc()
	BackendRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordCommand records the outcome of one dispatched command.
func RecordCommand(command string, success bool) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	CommandsTotal.WithLabelValues(command, outcome).Inc()
}

// UpdateRegistryGauges sets the camera gauges from a registry snapshot.
func UpdateRegistryGauges(total, active int) {
	RegistryCameras.Set(float64(total))
	RegistryActiveCameras.Set(float64(active))
}

// ForgetCamera deletes the per-camera series for a removed camera.
func ForgetCamera(cameraID string) {
	DeliveryRate.DeleteLabelValues(cameraID)
	CaptureRate.DeleteLabelValues(cameraID)
}
