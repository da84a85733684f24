// Camwatch - Live Camera Dashboard Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camwatch

// Package rate converts per-camera frame arrivals into a delivery rate.
//
// The estimator is a fixed-window counter: arrivals accumulate for one window
// and the total is published when the window closes. The published value
// therefore moves in steps, once per window, and never between boundaries.
package rate

import (
	"sync"
	"time"
)

// DefaultWindow is the window length used when none is configured.
const DefaultWindow = time.Second

// Sample is the per-camera counter state.
type Sample struct {
	Count       int
	WindowStart time.Time
	Rate        int
}

// Estimator tracks one Sample per camera id.
type Estimator struct {
	mu      sync.Mutex
	window  time.Duration
	samples map[string]*Sample
}

// New creates an estimator. A non-positive window falls back to DefaultWindow.
func New(window time.Duration) *Estimator {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Estimator{
		window:  window,
		samples: make(map[string]*Sample),
	}
}

// Window returns the configured window length.
func (e *Estimator) Window() time.Duration {
	return e.window
}

// RecordArrival counts one frame for id observed at now.
//
// If now is at least one window past the window start, the count accumulated
// so far is published as the rate and a new window opens at now. The arrival
// itself is then counted in the window it falls into. The first arrival for an
// unseen camera opens its first window.
func (e *Estimator) RecordArrival(id string, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.samples[id]
	if !ok {
		e.samples[id] = &Sample{Count: 1, WindowStart: now}
		return
	}

	e.closeWindow(s, now)
	s.Count++
}

// Sweep closes every window that has run its full length by now. A camera
// that stopped receiving frames decays to 0 after one silent window.
func (e *Estimator) Sweep(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, s := range e.samples {
		e.closeWindow(s, now)
	}
}

// closeWindow must be called with mu held.
func (e *Estimator) closeWindow(s *Sample, now time.Time) {
	if now.Sub(s.WindowStart) >= e.window {
		s.Rate = s.Count
		s.Count = 0
		s.WindowStart = now
	}
}

// CurrentRate returns the last published rate for id, or 0 if unseen.
func (e *Estimator) CurrentRate(id string) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	if s, ok := e.samples[id]; ok {
		return s.Rate
	}
	return 0
}

// Forget drops all state for id.
func (e *Estimator) Forget(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.samples, id)
}

// Snapshot returns the published rate of every tracked camera.
func (e *Estimator) Snapshot() map[string]int {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[string]int, len(e.samples))
	for id, s := range e.samples {
		out[id] = s.Rate
	}
	return out
}

// Sample returns a copy of the raw counter state for id.
func (e *Estimator) Sample(id string) (Sample, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if s, ok := e.samples[id]; ok {
		return *s, true
	}
	return Sample{}, false
}
