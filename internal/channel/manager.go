// Camwatch - Live Camera Dashboard Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camwatch

/*
Package channel owns the single persistent push connection to the backend.

WebSocket Endpoint: ws://{backend}/stream

The Manager dials, keeps the connection alive with pings, reconnects after a
fixed delay for as long as its context lives, and re-issues start_stream for
every active camera each time it connects. Inbound frames feed the rate
estimator and are published on a typed event stream together with removals
and connection state changes.
*/
package channel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/camwatch/internal/config"
	"github.com/tomtom215/camwatch/internal/logging"
	"github.com/tomtom215/camwatch/internal/metrics"
	"github.com/tomtom215/camwatch/internal/models"
	"github.com/tomtom215/camwatch/internal/rate"
	"github.com/tomtom215/camwatch/internal/registry"
)

// ErrNotConnected is returned by Subscribe and Unsubscribe while the channel is down.
// The request is dropped, not queued; the next connect resubscribes from the registry.
var ErrNotConnected = errors.New("channel not connected")

const maxMessageSize = 8 << 20

// Options configures a Manager.
type Options struct {
	URL              string
	ReconnectDelay   time.Duration
	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration
	PingInterval     time.Duration

	// Clock stamps frame arrivals. Defaults to time.Now.
	Clock func() time.Time
}

// OptionsFromConfig builds Options from the loaded configuration.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	u, err := cfg.StreamURL()
	if err != nil {
		return Options{}, err
	}
	return Options{
		URL:              u,
		ReconnectDelay:   cfg.Channel.ReconnectDelay,
		HandshakeTimeout: cfg.Channel.HandshakeTimeout,
		ReadTimeout:      cfg.Channel.ReadTimeout,
		PingInterval:     cfg.Channel.PingInterval,
	}, nil
}

// Manager owns the push connection and the set of live subscriptions.
type Manager struct {
	opts      Options
	registry  registry.ReadWriter
	estimator *rate.Estimator

	state atomic.Int32

	// connMu serializes every write to conn and guards subscribed.
	connMu     sync.Mutex
	conn       *websocket.Conn
	subscribed map[string]struct{}

	subsMu sync.RWMutex
	subs   map[*Subscription]struct{}
}

// NewManager creates a disconnected manager. Call Run to start it.
func NewManager(opts Options, reg registry.ReadWriter, est *rate.Estimator) *Manager {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = time.Second
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 10 * time.Second
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 60 * time.Second
	}
	if opts.PingInterval <= 0 || opts.PingInterval >= opts.ReadTimeout {
		opts.PingInterval = opts.ReadTimeout * 9 / 10
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Manager{
		opts:       opts,
		registry:   reg,
		estimator:  est,
		subscribed: make(map[string]struct{}),
		subs:       make(map[*Subscription]struct{}),
	}
}

// State returns the current connection state.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// IsConnected reports whether the channel is connected.
func (m *Manager) IsConnected() bool {
	return m.State() == Connected
}

// Subscribed returns the camera ids with a live subscription.
func (m *Manager) Subscribed() []string {
	m.connMu.Lock()
	defer m.connMu.Unlock()

	ids := make([]string, 0, len(m.subscribed))
	for id := range m.subscribed {
		ids = append(ids, id)
	}
	return ids
}

// Events returns a new subscription to the inbound event stream.
func (m *Manager) Events(buffer int) *Subscription {
	if buffer < 1 {
		buffer = 1
	}
	s := &Subscription{
		ch:   make(chan Event, buffer),
		done: make(chan struct{}),
		m:    m,
	}
	m.subsMu.Lock()
	m.subs[s] = struct{}{}
	m.subsMu.Unlock()
	return s
}

func (m *Manager) removeSubscription(s *Subscription) {
	m.subsMu.Lock()
	delete(m.subs, s)
	m.subsMu.Unlock()
}

func (m *Manager) subscribers() []*Subscription {
	m.subsMu.RLock()
	defer m.subsMu.RUnlock()

	out := make([]*Subscription, 0, len(m.subs))
	for s := range m.subs {
		out = append(out, s)
	}
	return out
}

// publish delivers ev to every subscriber. Lossy events are dropped for a
// subscriber whose buffer is full; the rest wait for room or cancellation.
func (m *Manager) publish(ctx context.Context, ev Event, lossy bool) {
	for _, s := range m.subscribers() {
		if lossy {
			select {
			case s.ch <- ev:
			default:
				metrics.FramesDropped.Inc()
			}
			continue
		}
		select {
		case s.ch <- ev:
		case <-s.done:
		case <-ctx.Done():
		}
	}
}

// Subscribe asks the backend to push frames for id.
func (m *Manager) Subscribe(id string) error {
	return m.send(models.EventStartStream, id, true)
}

// Unsubscribe asks the backend to stop pushing frames for id.
func (m *Manager) Unsubscribe(id string) error {
	return m.send(models.EventStopStream, id, false)
}

func (m *Manager) send(eventType, id string, subscribe bool) error {
	m.connMu.Lock()
	defer m.connMu.Unlock()

	if m.conn == nil {
		metrics.ChannelMessagesDropped.WithLabelValues(eventType).Inc()
		logging.Debug().Str("type", eventType).Str("camera_id", id).Msg("[channel] Not connected, dropping request")
		return ErrNotConnected
	}

	if _, ok := m.subscribed[id]; ok == subscribe {
		return nil
	}

	if err := m.writeLocked(eventType, id); err != nil {
		return err
	}
	if subscribe {
		m.subscribed[id] = struct{}{}
	} else {
		delete(m.subscribed, id)
	}
	return nil
}

// writeLocked must be called with connMu held and conn non-nil.
func (m *Manager) writeLocked(eventType, id string) error {
	env, err := models.NewEnvelope(eventType, models.StreamRequest{CameraID: id})
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", eventType, err)
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", eventType, err)
	}
	if err := m.conn.SetWriteDeadline(time.Now().Add(m.opts.HandshakeTimeout)); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	if err := m.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("failed to send %s: %w", eventType, err)
	}
	metrics.ChannelMessagesSent.WithLabelValues(eventType).Inc()
	return nil
}

// Run connects and keeps the channel connected until ctx is canceled.
// It always returns nil once ctx ends.
func (m *Manager) Run(ctx context.Context) error {
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		m.setState(stopCtx, Disconnected, nil)
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}

		m.setState(ctx, Connecting, nil)

		conn, err := m.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			metrics.ChannelDialFailures.Inc()
			logging.Warn().Err(err).Str("url", m.opts.URL).Msg("[channel] Connect failed")
			m.setState(ctx, Disconnected, err)
		} else {
			metrics.ChannelReconnects.Inc()
			m.attach(conn)
			m.setState(ctx, Connected, nil)

			err = m.readLoop(ctx, conn)
			m.detach(conn)
			if ctx.Err() != nil {
				return nil
			}
			logging.Info().Err(err).Msg("[channel] Connection lost")
			m.setState(ctx, Disconnected, err)
		}

		logging.Debug().Dur("delay", m.opts.ReconnectDelay).Msg("[channel] Reconnecting")
		select {
		case <-time.After(m.opts.ReconnectDelay):
		case <-ctx.Done():
			return nil
		}
	}
}

func (m *Manager) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout:  m.opts.HandshakeTimeout,
		EnableCompression: true,
	}

	conn, resp, err := dialer.DialContext(ctx, m.opts.URL, nil)
	if resp != nil && resp.Body != nil {
		if cerr := resp.Body.Close(); cerr != nil {
			logging.Debug().Err(cerr).Msg("[channel] Failed to close handshake response body")
		}
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}

	conn.SetReadLimit(maxMessageSize)
	return conn, nil
}

// attach installs conn and resubscribes every camera the registry marks
// active. Holding connMu across both steps means a concurrent Subscribe is
// either dropped before the registry is read or deduplicated after.
func (m *Manager) attach(conn *websocket.Conn) {
	m.connMu.Lock()
	defer m.connMu.Unlock()

	m.conn = conn
	m.subscribed = make(map[string]struct{})

	n := m.resubscribeLocked()
	logging.Info().Int("cameras", n).Str("url", m.opts.URL).Msg("[channel] Connected")
}

// Resubscribe sends start_stream for every active camera not yet subscribed
// on the current connection. Call it after the registry is reloaded.
func (m *Manager) Resubscribe() error {
	m.connMu.Lock()
	defer m.connMu.Unlock()

	if m.conn == nil {
		return ErrNotConnected
	}
	if n := m.resubscribeLocked(); n > 0 {
		logging.Info().Int("cameras", n).Msg("[channel] Subscribed cameras activated by reload")
	}
	return nil
}

// resubscribeLocked must be called with connMu held and conn non-nil.
// It returns the number of start_stream messages sent.
func (m *Manager) resubscribeLocked() int {
	sent := 0
	for _, id := range m.registry.ActiveIDs() {
		if _, ok := m.subscribed[id]; ok {
			continue
		}
		if err := m.writeLocked(models.EventStartStream, id); err != nil {
			logging.Warn().Err(err).Str("camera_id", id).Msg("[channel] Resubscribe failed")
			continue
		}
		m.subscribed[id] = struct{}{}
		sent++
	}
	return sent
}

func (m *Manager) detach(conn *websocket.Conn) {
	m.connMu.Lock()
	defer m.connMu.Unlock()

	if m.conn == conn {
		m.conn = nil
		m.subscribed = make(map[string]struct{})
	}

	if err := conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		logging.Debug().Err(err).Msg("[channel] Failed to send close message")
	}
	_ = conn.Close()
}

func (m *Manager) readLoop(ctx context.Context, conn *websocket.Conn) error {
	done := make(chan struct{})
	defer close(done)

	readTimeout := m.opts.ReadTimeout
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	go m.pingLoop(ctx, conn, done)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		m.handleMessage(ctx, message)
	}
}

// pingLoop keeps the connection alive and unblocks ReadMessage on shutdown.
func (m *Manager) pingLoop(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(m.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			_ = conn.Close()
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(m.opts.HandshakeTimeout)); err != nil {
				logging.Debug().Err(err).Msg("[channel] Ping failed")
				_ = conn.Close()
				return
			}
		}
	}
}

func (m *Manager) handleMessage(ctx context.Context, data []byte) {
	var env models.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		logging.Debug().Err(err).Msg("[channel] Failed to parse message")
		return
	}
	metrics.ChannelEventsReceived.WithLabelValues(env.Type).Inc()

	switch env.Type {
	case models.EventFrame:
		var p models.FramePayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.CameraID == "" {
			logging.Debug().Err(err).Msg("[channel] Invalid frame payload")
			return
		}
		if _, ok := m.registry.Get(p.CameraID); !ok {
			logging.Debug().Str("camera_id", p.CameraID).Msg("[channel] Frame for unknown camera")
			return
		}
		now := m.opts.Clock()
		m.estimator.RecordArrival(p.CameraID, now)
		m.publish(ctx, FrameEvent{
			CameraID:   p.CameraID,
			Frame:      p.Frame,
			CaptureFPS: p.FPS,
			ArrivedAt:  now,
		}, true)

	case models.EventCameraRemoved:
		var ref models.CameraRef
		if err := json.Unmarshal(env.Data, &ref); err != nil || ref.CameraID == "" {
			logging.Debug().Err(err).Msg("[channel] Invalid camera_removed payload")
			return
		}
		m.registry.Remove(ref.CameraID)
		m.estimator.Forget(ref.CameraID)
		m.connMu.Lock()
		delete(m.subscribed, ref.CameraID)
		m.connMu.Unlock()
		logging.Info().Str("camera_id", ref.CameraID).Msg("[channel] Camera removed remotely")
		m.publish(ctx, RemovalEvent{CameraID: ref.CameraID}, false)

	case models.EventConnected, models.EventStreamStarted, models.EventStreamStopped:
		var ref models.CameraRef
		_ = json.Unmarshal(env.Data, &ref)
		logging.Debug().Str("type", env.Type).Str("camera_id", ref.CameraID).Str("status", ref.Status).Msg("[channel] Server notice")

	default:
		logging.Debug().Str("type", env.Type).Msg("[channel] Unknown message type")
	}
}

// setState records a transition and publishes it. Repeating the current
// state is not a transition and publishes nothing.
func (m *Manager) setState(ctx context.Context, to State, cause error) {
	from := State(m.state.Swap(int32(to)))
	if from == to {
		return
	}
	metrics.ChannelState.Set(float64(to))
	m.publish(ctx, StateChange{From: from, To: to, At: time.Now(), Err: cause}, false)
}
