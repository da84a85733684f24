// Camwatch - Live Camera Dashboard Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camwatch

package render

import (
	"sync"
	"time"
)

// Frame is the most recent frame received for one camera.
type Frame struct {
	Data       string
	CaptureFPS float64
	ArrivedAt  time.Time
}

// FrameTable keeps only the latest frame per camera. Older frames are
// overwritten, never queued.
type FrameTable struct {
	mu     sync.RWMutex
	frames map[string]Frame
}

// NewFrameTable creates an empty table.
func NewFrameTable() *FrameTable {
	return &FrameTable{frames: make(map[string]Frame)}
}

// Put stores f as the latest frame for id.
func (t *FrameTable) Put(id string, f Frame) {
	t.mu.Lock()
	t.frames[id] = f
	t.mu.Unlock()
}

// Get returns the latest frame for id.
func (t *FrameTable) Get(id string) (Frame, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	f, ok := t.frames[id]
	return f, ok
}

// Drop forgets id. Dropping an unknown id is a no-op.
func (t *FrameTable) Drop(id string) {
	t.mu.Lock()
	delete(t.frames, id)
	t.mu.Unlock()
}

// Retain drops every frame whose camera is not in ids.
func (t *FrameTable) Retain(ids []string) {
	keep := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		keep[id] = struct{}{}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for id := range t.frames {
		if _, ok := keep[id]; !ok {
			delete(t.frames, id)
		}
	}
}

// Snapshot returns a copy of the table.
func (t *FrameTable) Snapshot() map[string]Frame {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]Frame, len(t.frames))
	for id, f := range t.frames {
		out[id] = f
	}
	return out
}

// Len returns the number of cameras with a frame.
func (t *FrameTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.frames)
}
