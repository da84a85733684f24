// Camwatch - Live Camera Dashboard Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camwatch

package channel

import (
	"sync"
	"time"
)

// State is the connection state of the push channel.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// Event is one item of the inbound stream: FrameEvent, RemovalEvent or StateChange.
type Event interface {
	isEvent()
}

// FrameEvent is a frame pushed for a subscribed camera.
type FrameEvent struct {
	CameraID   string
	Frame      string
	CaptureFPS float64
	ArrivedAt  time.Time
}

// RemovalEvent reports a camera removed by another client.
type RemovalEvent struct {
	CameraID string
}

// StateChange reports one connection state transition.
type StateChange struct {
	From State
	To   State
	At   time.Time
	Err  error
}

func (FrameEvent) isEvent()   {}
func (RemovalEvent) isEvent() {}
func (StateChange) isEvent()  {}

// Subscription receives events published by a Manager until closed.
type Subscription struct {
	ch   chan Event
	done chan struct{}
	once sync.Once
	m    *Manager
}

// C returns the event channel. It is never closed; select on the caller's
// context or Done alongside it.
func (s *Subscription) C() <-chan Event {
	return s.ch
}

// Done is closed once Close has been called.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Close detaches the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		close(s.done)
		s.m.removeSubscription(s)
	})
}
