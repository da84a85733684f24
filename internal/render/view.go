// Camwatch - Live Camera Dashboard Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camwatch

// Package render turns registry, rate and frame snapshots into a View.
//
// Render is a pure function. Coordinator is the only reader of the registry
// and rate estimator on the display path; it never mutates either.
package render

import (
	"fmt"
	"strconv"
	"time"

	"github.com/tomtom215/camwatch/internal/models"
)

const (
	urlDisplayLimit = 40

	statusLive    = "LIVE"
	statusOffline = "OFFLINE"
	notAvailable  = "N/A"

	emptyListMessage = "No cameras added yet"
	noStreamsTitle   = "No Active Streams"
	noStreamsHint    = "Add a camera and start streaming"
	initialRateLine  = "0 FPS"
)

// View is the full dashboard description.
type View struct {
	Cameras      []CameraItem `json:"cameras"`
	EmptyMessage string       `json:"empty_message,omitempty"`
	Tiles        []Tile       `json:"tiles"`
	Placeholder  *Placeholder `json:"placeholder,omitempty"`
	ChannelState string       `json:"channel_state"`
	ActiveCount  int          `json:"active_count"`
	TotalCount   int          `json:"total_count"`
	GeneratedAt  time.Time    `json:"generated_at"`
}

// CameraItem is one row of the camera list.
type CameraItem struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Location  string `json:"location"`
	Direction string `json:"direction"`
	URL       string `json:"url"`
	Status    string `json:"status"`
	Active    bool   `json:"active"`
}

// Tile is the video card of an active camera.
type Tile struct {
	CameraID    string     `json:"camera_id"`
	Name        string     `json:"name"`
	Frame       string     `json:"frame,omitempty"`
	Loading     bool       `json:"loading"`
	RateLine    string     `json:"rate_line"`
	CaptureFPS  float64    `json:"capture_fps"`
	DeliveryFPS int        `json:"delivery_fps"`
	FrameAt     *time.Time `json:"frame_at,omitempty"`
}

// Placeholder replaces the tile grid when nothing is streaming.
type Placeholder struct {
	Title string `json:"title"`
	Hint  string `json:"hint"`
}

// Inputs is everything Render reads.
type Inputs struct {
	Cameras      []models.Camera
	Rates        map[string]int
	Frames       map[string]Frame
	ChannelState string
	Now          time.Time
}

// Render builds the View for in.
func Render(in Inputs) View {
	v := View{
		Cameras:      make([]CameraItem, 0, len(in.Cameras)),
		Tiles:        make([]Tile, 0, len(in.Cameras)),
		ChannelState: in.ChannelState,
		TotalCount:   len(in.Cameras),
		GeneratedAt:  in.Now,
	}

	for _, cam := range in.Cameras {
		v.Cameras = append(v.Cameras, cameraItem(cam))
		if cam.Active {
			v.Tiles = append(v.Tiles, tile(cam, in.Rates[cam.ID], in.Frames))
		}
	}
	v.ActiveCount = len(v.Tiles)

	if len(in.Cameras) == 0 {
		v.EmptyMessage = emptyListMessage
	}
	if len(v.Tiles) == 0 {
		v.Placeholder = &Placeholder{Title: noStreamsTitle, Hint: noStreamsHint}
	}
	return v
}

func cameraItem(cam models.Camera) CameraItem {
	status := statusOffline
	if cam.Active {
		status = statusLive
	}
	return CameraItem{
		ID:        cam.ID,
		Name:      cam.Name,
		Location:  orNA(cam.Location),
		Direction: orNA(string(cam.Direction)),
		URL:       TruncateURL(cam.URL),
		Status:    status,
		Active:    cam.Active,
	}
}

func tile(cam models.Camera, delivery int, frames map[string]Frame) Tile {
	t := Tile{
		CameraID:    cam.ID,
		Name:        cam.Name,
		DeliveryFPS: delivery,
	}

	f, ok := frames[cam.ID]
	if !ok {
		t.Loading = true
		t.RateLine = initialRateLine
		return t
	}

	at := f.ArrivedAt
	t.Frame = f.Data
	t.FrameAt = &at
	t.CaptureFPS = f.CaptureFPS
	t.RateLine = RateLine(f.CaptureFPS, delivery)
	return t
}

// RateLine formats the capture and delivery rates shown on a tile.
func RateLine(capture float64, delivery int) string {
	return fmt.Sprintf("Capture: %s | Stream: %d FPS", strconv.FormatFloat(capture, 'f', -1, 64), delivery)
}

// TruncateURL shortens long source addresses for the camera list.
func TruncateURL(u string) string {
	r := []rune(u)
	if len(r) <= urlDisplayLimit {
		return u
	}
	return string(r[:urlDisplayLimit]) + "..."
}

func orNA(s string) string {
	if s == "" {
		return notAvailable
	}
	return s
}
