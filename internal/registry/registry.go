// Camwatch - Live Camera Dashboard Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camwatch

// Package registry holds the client's mirror of the backend camera list.
//
// The registry is written only from server acknowledgments: full snapshots
// after a command succeeds, and single removals reported on the push channel.
// Callers that only need to read receive a Reader; the command dispatcher and
// the channel manager are the only holders of a Writer.
package registry

import (
	"sync"

	"github.com/tomtom215/camwatch/internal/models"
)

// Reader is the read-only view handed to rendering and status code.
type Reader interface {
	Get(id string) (models.Camera, bool)
	All() []models.Camera
	ActiveIDs() []string
	Len() int
	Version() uint64
}

// Writer is the mutation surface. Only components that apply server
// acknowledgments hold one.
type Writer interface {
	ReplaceAll(cameras []models.Camera)
	Remove(id string) bool
}

// ReadWriter combines both views for the session that wires components.
type ReadWriter interface {
	Reader
	Writer
}

var _ ReadWriter = (*Registry)(nil)

// Registry maps camera id to the last server-confirmed Camera.
//
// Each ReplaceAll builds a fresh index and swaps it in under the write lock,
// so a reader sees either the previous snapshot or the new one.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	byID    map[string]models.Camera
	version uint64

	hookMu   sync.RWMutex
	onChange func()
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{byID: make(map[string]models.Camera)}
}

// OnChange registers fn to be called after every mutation, outside the lock.
func (r *Registry) OnChange(fn func()) {
	r.hookMu.Lock()
	defer r.hookMu.Unlock()
	r.onChange = fn
}

// ReplaceAll replaces the whole mapping with cameras, keeping snapshot order.
// A duplicated id keeps its first position and its last value.
func (r *Registry) ReplaceAll(cameras []models.Camera) {
	order := make([]string, 0, len(cameras))
	byID := make(map[string]models.Camera, len(cameras))
	for _, cam := range cameras {
		if _, seen := byID[cam.ID]; !seen {
			order = append(order, cam.ID)
		}
		byID[cam.ID] = cam
	}

	r.mu.Lock()
	r.order = order
	r.byID = byID
	r.version++
	r.mu.Unlock()

	r.notify()
}

// Remove drops one camera. It reports whether the id was present; removing
// an unknown id is a no-op and does not bump the version.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	if _, ok := r.byID[id]; !ok {
		r.mu.Unlock()
		return false
	}

	order := make([]string, 0, len(r.order)-1)
	for _, existing := range r.order {
		if existing != id {
			order = append(order, existing)
		}
	}
	byID := make(map[string]models.Camera, len(r.byID)-1)
	for k, v := range r.byID {
		if k != id {
			byID[k] = v
		}
	}
	r.order = order
	r.byID = byID
	r.version++
	r.mu.Unlock()

	r.notify()
	return true
}

// Get returns the camera with id.
func (r *Registry) Get(id string) (models.Camera, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cam, ok := r.byID[id]
	return cam, ok
}

// All returns a copy of every camera in snapshot order.
func (r *Registry) All() []models.Camera {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Camera, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// ActiveIDs returns the ids of cameras marked active, in snapshot order.
func (r *Registry) ActiveIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []string
	for _, id := range r.order {
		if r.byID[id].Active {
			ids = append(ids, id)
		}
	}
	return ids
}

// Len returns the number of cameras.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Version increases by one on every mutation.
func (r *Registry) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

func (r *Registry) notify() {
	r.hookMu.RLock()
	fn := r.onChange
	r.hookMu.RUnlock()
	if fn != nil {
		fn()
	}
}
