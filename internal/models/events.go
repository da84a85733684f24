// Camwatch - Live Camera Dashboard Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camwatch

package models

import (
	"github.com/goccy/go-json"
)

// Push channel event names. Outbound events are sent by the client,
// inbound events by the backend.
const (
	EventStartStream   = "start_stream"
	EventStopStream    = "stop_stream"
	EventFrame         = "frame"
	EventCameraRemoved = "camera_removed"
	EventConnected     = "connected"
	EventStreamStarted = "stream_started"
	EventStreamStopped = "stream_stopped"
)

// Envelope is the single JSON text message shape carried on the push channel.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// StreamRequest is the payload of start_stream and stop_stream.
type StreamRequest struct {
	CameraID string `json:"camera_id"`
}

// FramePayload is the payload of an inbound frame event.
// Frame is an opaque text-encoded image and is never decoded by the client.
type FramePayload struct {
	CameraID  string  `json:"camera_id"`
	Frame     string  `json:"frame"`
	FPS       float64 `json:"fps"`
	Timestamp float64 `json:"timestamp,omitempty"`
}

// CameraRef is the payload of camera_removed, stream_started and stream_stopped.
type CameraRef struct {
	CameraID string `json:"camera_id"`
	Status   string `json:"status,omitempty"`
}

// NewEnvelope marshals data into an envelope of the given type.
func NewEnvelope(eventType string, data interface{}) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: eventType, Data: raw}, nil
}
