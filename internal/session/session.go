// Camwatch - Live Camera Dashboard Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camwatch

/*
Package session wires the sync core together for one client session.

A Session owns the registry, rate estimator, frame table, backend client,
channel manager, dispatcher and render coordinator. Nothing is global: every
component receives its collaborators from New.

Run drives three loops until its context ends:

  - the channel manager (connect, resubscribe, read)
  - the event pump, which applies frame, removal and state events
  - the render loop, which rebuilds the View whenever something changed,
    at most dashboard.max_fps times per second
*/
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	xrate "golang.org/x/time/rate"

	"github.com/tomtom215/camwatch/internal/backend"
	"github.com/tomtom215/camwatch/internal/channel"
	"github.com/tomtom215/camwatch/internal/config"
	"github.com/tomtom215/camwatch/internal/dispatch"
	"github.com/tomtom215/camwatch/internal/logging"
	"github.com/tomtom215/camwatch/internal/metrics"
	"github.com/tomtom215/camwatch/internal/rate"
	"github.com/tomtom215/camwatch/internal/registry"
	"github.com/tomtom215/camwatch/internal/render"
)

// Publisher receives rendered views and notices. The viewer hub implements it.
type Publisher interface {
	PublishView(v render.View)
	PublishNotice(n dispatch.Notice)
}

// Deps overrides collaborators, mainly for tests. Zero values are built from config.
type Deps struct {
	API       backend.API
	Publisher Publisher
	Clock     func() time.Time
}

// Session is the session-scoped context object.
type Session struct {
	cfg *config.Config

	registry   *registry.Registry
	estimator  *rate.Estimator
	frames     *render.FrameTable
	api        backend.API
	channel    *channel.Manager
	dispatcher *dispatch.Dispatcher
	renderer   *render.Coordinator

	publisher Publisher

	clock      func() time.Time
	invalidate chan struct{}
	limiter    *xrate.Limiter

	viewMu sync.RWMutex
	view   render.View
}

// New builds a session from cfg.
func New(cfg *config.Config, deps Deps) (*Session, error) {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.API == nil {
		deps.API = backend.NewCircuitBreakerClient(&cfg.Backend)
	}

	opts, err := channel.OptionsFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve stream url: %w", err)
	}
	opts.Clock = deps.Clock

	maxFPS := cfg.Dashboard.MaxFPS
	if maxFPS <= 0 {
		maxFPS = 10
	}

	s := &Session{
		cfg:        cfg,
		registry:   registry.New(),
		estimator:  rate.New(cfg.Rate.Window),
		frames:     render.NewFrameTable(),
		api:        deps.API,
		publisher:  deps.Publisher,
		clock:      deps.Clock,
		invalidate: make(chan struct{}, 1),
		limiter:    xrate.NewLimiter(xrate.Limit(maxFPS), 1),
	}

	s.channel = channel.NewManager(opts, s.registry, s.estimator)
	s.dispatcher = dispatch.New(dispatch.Deps{
		API:       s.api,
		Registry:  s.registry,
		Channel:   s.channel,
		Estimator: s.estimator,
		Notifier:  dispatch.NotifierFunc(s.notify),
	}, cfg.Batch.Delay)
	s.renderer = render.NewCoordinator(s.registry, s.estimator, s.frames, func() string {
		return s.channel.State().String()
	})

	s.registry.OnChange(s.onRegistryChange)
	s.view = s.renderer.Build()

	return s, nil
}

// Dispatcher returns the session's command dispatcher.
func (s *Session) Dispatcher() *dispatch.Dispatcher {
	return s.dispatcher
}

// Registry returns the read-only registry view.
func (s *Session) Registry() registry.Reader {
	return s.registry
}

// ChannelState returns the push channel state.
func (s *Session) ChannelState() channel.State {
	return s.channel.State()
}

// View returns the most recently rendered view.
func (s *Session) View() render.View {
	s.viewMu.RLock()
	defer s.viewMu.RUnlock()
	return s.view
}

// Invalidate schedules a re-render. Multiple calls before the render loop
// runs collapse into one.
func (s *Session) Invalidate() {
	select {
	case s.invalidate <- struct{}{}:
	default:
	}
}

func (s *Session) notify(n dispatch.Notice) {
	dispatch.LogNotifier{}.Notify(n)
	if p := s.publisher; p != nil {
		p.PublishNotice(n)
	}
}

func (s *Session) onRegistryChange() {
	active := s.registry.ActiveIDs()
	s.frames.Retain(active)
	metrics.UpdateRegistryGauges(s.registry.Len(), len(active))
	s.Invalidate()
}

// String implements fmt.Stringer for supervisor logs.
func (s *Session) String() string {
	return "camwatch-session"
}

// Run loads the camera list and runs the session until ctx is canceled.
// A failed initial load is logged; the reconnect refresh retries it.
func (s *Session) Run(ctx context.Context) error {
	logging.Info().Str("backend", s.cfg.Backend.URL).Msg("Session starting")

	events := s.channel.Events(s.cfg.Channel.EventBuffer)
	defer events.Close()

	if err := s.dispatcher.Refresh(ctx); err != nil {
		logging.Warn().Err(err).Msg("Initial camera load failed")
	}
	s.Invalidate()

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		_ = s.channel.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		s.pumpEvents(ctx, events)
	}()
	go func() {
		defer wg.Done()
		s.renderLoop(ctx)
	}()

	wg.Wait()
	logging.Info().Msg("Session stopped")
	return ctx.Err()
}

func (s *Session) pumpEvents(ctx context.Context, events *channel.Subscription) {
	wasConnected := false
	var refreshWG sync.WaitGroup
	defer refreshWG.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events.C():
			switch e := ev.(type) {
			case channel.FrameEvent:
				s.frames.Put(e.CameraID, render.Frame{
					Data:       e.Frame,
					CaptureFPS: e.CaptureFPS,
					ArrivedAt:  e.ArrivedAt,
				})
				metrics.CaptureRate.WithLabelValues(e.CameraID).Set(e.CaptureFPS)

			case channel.RemovalEvent:
				s.frames.Drop(e.CameraID)
				metrics.ForgetCamera(e.CameraID)

			case channel.StateChange:
				switch {
				case e.To == channel.Connected:
					wasConnected = true
					s.notify(dispatch.Notice{Level: dispatch.LevelSuccess, Message: "Connected to server"})
					refreshWG.Add(1)
					go func() {
						defer refreshWG.Done()
						if err := s.dispatcher.Refresh(ctx); err != nil {
							if ctx.Err() == nil {
								logging.Warn().Err(err).Msg("Camera reload after connect failed")
							}
							return
						}
						// The reload may mark cameras active that the connect-time
						// resubscribe never saw.
						if err := s.channel.Resubscribe(); err != nil && !errors.Is(err, channel.ErrNotConnected) {
							logging.Warn().Err(err).Msg("Resubscribe after reload failed")
						}
					}()
				case e.To == channel.Disconnected && wasConnected:
					wasConnected = false
					s.notify(dispatch.Notice{Level: dispatch.LevelError, Message: "Disconnected from server"})
				}
			}
			s.Invalidate()
		}
	}
}

func (s *Session) renderLoop(ctx context.Context) {
	window := s.estimator.Window()
	sweep := time.NewTicker(window)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sweep.C:
			s.estimator.Sweep(s.clock())
		case <-s.invalidate:
		}

		if err := s.limiter.Wait(ctx); err != nil {
			return
		}
		// Anything that arrived while throttled is covered by this render.
		select {
		case <-s.invalidate:
		default:
		}
		s.renderNow()
	}
}

func (s *Session) renderNow() {
	v := s.renderer.Build()

	s.viewMu.Lock()
	s.view = v
	s.viewMu.Unlock()

	metrics.RendersTotal.Inc()
	for _, t := range v.Tiles {
		metrics.DeliveryRate.WithLabelValues(t.CameraID).Set(float64(t.DeliveryFPS))
	}

	if p := s.publisher; p != nil {
		p.PublishView(v)
	}
}
