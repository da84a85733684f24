// Camwatch - Live Camera Dashboard Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camwatch

package render

import (
	"time"

	"github.com/tomtom215/camwatch/internal/registry"
)

// RateSource is the read side of the rate estimator.
type RateSource interface {
	Snapshot() map[string]int
}

// Coordinator snapshots its sources and renders them.
type Coordinator struct {
	registry registry.Reader
	rates    RateSource
	frames   *FrameTable
	state    func() string
	now      func() time.Time
}

// NewCoordinator creates a Coordinator. state reports the channel state and
// may be nil.
func NewCoordinator(reg registry.Reader, rates RateSource, frames *FrameTable, state func() string) *Coordinator {
	if state == nil {
		state = func() string { return "disconnected" }
	}
	return &Coordinator{
		registry: reg,
		rates:    rates,
		frames:   frames,
		state:    state,
		now:      time.Now,
	}
}

// Frames returns the frame table the coordinator reads.
func (c *Coordinator) Frames() *FrameTable {
	return c.frames
}

// Build renders the current state.
func (c *Coordinator) Build() View {
	return Render(Inputs{
		Cameras:      c.registry.All(),
		Rates:        c.rates.Snapshot(),
		Frames:       c.frames.Snapshot(),
		ChannelState: c.state(),
		Now:          c.now(),
	})
}
