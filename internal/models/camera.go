// Camwatch - Live Camera Dashboard Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camwatch

package models

import (
	"fmt"
	"strings"
)

// Direction is the compass heading a camera faces. The zero value means unset.
type Direction string

// Compass directions accepted by the backend.
const (
	DirectionUnset     Direction = ""
	DirectionNorth     Direction = "N"
	DirectionNorthEast Direction = "NE"
	DirectionEast      Direction = "E"
	DirectionSouthEast Direction = "SE"
	DirectionSouth     Direction = "S"
	DirectionSouthWest Direction = "SW"
	DirectionWest      Direction = "W"
	DirectionNorthWest Direction = "NW"
)

// Directions lists the compass enumeration in clockwise order.
var Directions = []Direction{
	DirectionNorth, DirectionNorthEast, DirectionEast, DirectionSouthEast,
	DirectionSouth, DirectionSouthWest, DirectionWest, DirectionNorthWest,
}

// ParseDirection normalizes s and checks it against the compass enumeration.
// An empty string yields DirectionUnset.
func ParseDirection(s string) (Direction, error) {
	d := Direction(strings.ToUpper(strings.TrimSpace(s)))
	if d.Valid() {
		return d, nil
	}
	return DirectionUnset, fmt.Errorf("invalid direction %q", s)
}

// Valid reports whether d is unset or one of the compass directions.
func (d Direction) Valid() bool {
	if d == DirectionUnset {
		return true
	}
	for _, known := range Directions {
		if d == known {
			return true
		}
	}
	return false
}

// Camera is the last server-confirmed state of one video source.
//
// ID is assigned by the backend and never changes. Active mirrors the last
// confirmed server state, never the state a command asked for.
type Camera struct {
	ID        string    `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	Location  string    `json:"location,omitempty" yaml:"location,omitempty"`
	Direction Direction `json:"direction,omitempty" yaml:"direction,omitempty"`
	URL       string    `json:"url" yaml:"url"`
	Active    bool      `json:"active" yaml:"active"`

	// FPS is the backend's own capture rate at snapshot time.
	FPS float64 `json:"fps" yaml:"fps"`
}

// CameraList is the body of GET /api/cameras.
type CameraList struct {
	Cameras []Camera `json:"cameras"`
}

// CameraSpec is the body of POST /api/cameras.
type CameraSpec struct {
	Name      string    `json:"name" validate:"max=100"`
	Location  string    `json:"location" validate:"max=100"`
	Direction Direction `json:"direction" validate:"omitempty,oneof=N NE E SE S SW W NW"`
	RTSPURL   string    `json:"rtsp_url" validate:"required"`
}

// CommandResult is the structured reply to every mutating request.
//
// Error is set on application-level failures; the backend also answers
// validation and lookup failures with only an "error" key and a non-2xx status.
type CommandResult struct {
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
	Message  string `json:"message,omitempty"`
	CameraID string `json:"camera_id,omitempty"`
}
