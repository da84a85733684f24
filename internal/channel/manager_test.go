// Camwatch - Live Camera Dashboard Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camwatch

package channel

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/camwatch/internal/config"
	"github.com/tomtom215/camwatch/internal/models"
	"github.com/tomtom215/camwatch/internal/rate"
	"github.com/tomtom215/camwatch/internal/registry"
)

// mockPushServer accepts push connections and records what the client sends.
type mockPushServer struct {
	server   *httptest.Server
	upgrader websocket.Upgrader
	conns    chan *mockConn
}

type mockConn struct {
	conn     *websocket.Conn
	received chan models.Envelope
}

func newMockPushServer(t *testing.T) *mockPushServer {
	t.Helper()
	mock := &mockPushServer{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
		conns: make(chan *mockConn, 8),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/stream" {
			http.NotFound(w, r)
			return
		}
		conn, err := mock.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		mc := &mockConn{conn: conn, received: make(chan models.Envelope, 64)}
		go func() {
			for {
				_, data, err := conn.ReadMessage()
				if err != nil {
					return
				}
				var env models.Envelope
				if json.Unmarshal(data, &env) == nil {
					mc.received <- env
				}
			}
		}()
		mock.conns <- mc
	}))
	t.Cleanup(mock.server.Close)
	return mock
}

func (m *mockPushServer) url() string {
	return "ws" + strings.TrimPrefix(m.server.URL, "http") + "/stream"
}

func (m *mockPushServer) accept(t *testing.T) *mockConn {
	t.Helper()
	select {
	case mc := <-m.conns:
		return mc
	case <-time.After(3 * time.Second):
		t.Fatal("client did not connect")
		return nil
	}
}

func (mc *mockConn) send(t *testing.T, eventType string, data interface{}) {
	t.Helper()
	env, err := models.NewEnvelope(eventType, data)
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	if err := mc.conn.WriteJSON(env); err != nil {
		t.Fatalf("server write: %v", err)
	}
}

// drain collects everything the client sends within d.
func (mc *mockConn) drain(d time.Duration) []models.Envelope {
	var out []models.Envelope
	deadline := time.After(d)
	for {
		select {
		case env := <-mc.received:
			out = append(out, env)
		case <-deadline:
			return out
		}
	}
}

func countStarts(envs []models.Envelope, id string) int {
	n := 0
	for _, env := range envs {
		if env.Type != models.EventStartStream {
			continue
		}
		var req models.StreamRequest
		if json.Unmarshal(env.Data, &req) == nil && req.CameraID == id {
			n++
		}
	}
	return n
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestManager(t *testing.T, url string, reg *registry.Registry, est *rate.Estimator, clock func() time.Time) *Manager {
	t.Helper()
	return NewManager(Options{
		URL:              url,
		ReconnectDelay:   100 * time.Millisecond,
		HandshakeTimeout: time.Second,
		ReadTimeout:      5 * time.Second,
		PingInterval:     time.Second,
		Clock:            clock,
	}, reg, est)
}

func startManager(t *testing.T, m *Manager) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = m.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(3 * time.Second):
			t.Error("Run did not return after cancel")
		}
	})
}

func waitForState(t *testing.T, sub *Subscription, want State) StateChange {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case ev := <-sub.C():
			if sc, ok := ev.(StateChange); ok && sc.To == want {
				return sc
			}
		case <-timeout:
			t.Fatalf("timed out waiting for state %s", want)
			return StateChange{}
		}
	}
}

func TestState_String(t *testing.T) {
	tests := map[State]string{
		Disconnected: "disconnected",
		Connecting:   "connecting",
		Connected:    "connected",
		State(42):    "unknown",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", s, got, want)
		}
	}
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := &config.Config{
		Backend: config.BackendConfig{URL: "https://cams.example.com"},
		Channel: config.ChannelConfig{
			StreamPath:       "/stream",
			ReconnectDelay:   2 * time.Second,
			HandshakeTimeout: 5 * time.Second,
			ReadTimeout:      30 * time.Second,
			PingInterval:     10 * time.Second,
		},
	}
	opts, err := OptionsFromConfig(cfg)
	if err != nil {
		t.Fatalf("OptionsFromConfig: %v", err)
	}
	if opts.URL != "wss://cams.example.com/stream" {
		t.Errorf("URL = %q", opts.URL)
	}
	if opts.ReconnectDelay != 2*time.Second || opts.PingInterval != 10*time.Second {
		t.Errorf("opts = %+v", opts)
	}
}

func TestNewManager_Defaults(t *testing.T) {
	m := NewManager(Options{URL: "ws://x/stream"}, registry.New(), rate.New(0))
	if m.opts.ReconnectDelay != time.Second {
		t.Errorf("ReconnectDelay = %v", m.opts.ReconnectDelay)
	}
	if m.opts.PingInterval >= m.opts.ReadTimeout {
		t.Errorf("PingInterval %v must be below ReadTimeout %v", m.opts.PingInterval, m.opts.ReadTimeout)
	}
	if m.State() != Disconnected {
		t.Errorf("initial state = %s", m.State())
	}
}

func TestManager_SubscribeWhileDisconnected(t *testing.T) {
	m := NewManager(Options{URL: "ws://127.0.0.1:1/stream"}, registry.New(), rate.New(0))

	if err := m.Subscribe("cam_1"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe() = %v, want ErrNotConnected", err)
	}
	if err := m.Unsubscribe("cam_1"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Unsubscribe() = %v, want ErrNotConnected", err)
	}
	if len(m.Subscribed()) != 0 {
		t.Errorf("dropped request must not create a subscription")
	}
}

func TestManager_ConnectResubscribesActiveCameras(t *testing.T) {
	mock := newMockPushServer(t)
	reg := registry.New()
	reg.ReplaceAll([]models.Camera{
		{ID: "cam_1", Active: true},
		{ID: "cam_2", Active: false},
		{ID: "cam_3", Active: true},
	})

	m := newTestManager(t, mock.url(), reg, rate.New(0), nil)
	sub := m.Events(16)
	defer sub.Close()
	startManager(t, m)

	waitForState(t, sub, Connecting)
	waitForState(t, sub, Connected)
	mc := mock.accept(t)

	envs := mc.drain(200 * time.Millisecond)
	if countStarts(envs, "cam_1") != 1 || countStarts(envs, "cam_3") != 1 {
		t.Errorf("expected one start_stream each for cam_1 and cam_3, got %+v", envs)
	}
	if countStarts(envs, "cam_2") != 0 {
		t.Errorf("inactive camera must not be subscribed")
	}
	if !m.IsConnected() {
		t.Error("IsConnected() = false")
	}
}

func TestManager_ResubscribeAfterReload(t *testing.T) {
	reg := registry.New()
	if err := newTestManager(t, "ws://127.0.0.1:1/stream", reg, rate.New(0), nil).Resubscribe(); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Resubscribe() while disconnected = %v", err)
	}

	mock := newMockPushServer(t)
	m := newTestManager(t, mock.url(), reg, rate.New(0), nil)
	sub := m.Events(16)
	defer sub.Close()
	startManager(t, m)

	waitForState(t, sub, Connected)
	mc := mock.accept(t)

	reg.ReplaceAll([]models.Camera{{ID: "cam_1", Active: true}, {ID: "cam_2"}})
	for i := 0; i < 2; i++ {
		if err := m.Resubscribe(); err != nil {
			t.Fatalf("Resubscribe() = %v", err)
		}
	}

	envs := mc.drain(200 * time.Millisecond)
	if countStarts(envs, "cam_1") != 1 || countStarts(envs, "cam_2") != 0 {
		t.Errorf("expected exactly one start_stream for cam_1, got %+v", envs)
	}
}

func TestManager_SubscribeAndUnsubscribe(t *testing.T) {
	mock := newMockPushServer(t)
	m := newTestManager(t, mock.url(), registry.New(), rate.New(0), nil)
	sub := m.Events(16)
	defer sub.Close()
	startManager(t, m)

	waitForState(t, sub, Connected)
	mc := mock.accept(t)

	if err := m.Subscribe("cam_1"); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := m.Subscribe("cam_1"); err != nil {
		t.Fatalf("second Subscribe: %v", err)
	}
	if err := m.Unsubscribe("cam_1"); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}

	envs := mc.drain(200 * time.Millisecond)
	if len(envs) != 2 {
		t.Fatalf("got %d messages, want 2: %+v", len(envs), envs)
	}
	if envs[0].Type != models.EventStartStream || envs[1].Type != models.EventStopStream {
		t.Errorf("messages = %+v", envs)
	}
	if len(m.Subscribed()) != 0 {
		t.Errorf("Subscribed() = %v, want empty", m.Subscribed())
	}
}

func TestManager_ReconnectSubscribesFromFinalRegistryState(t *testing.T) {
	mock := newMockPushServer(t)
	reg := registry.New()
	reg.ReplaceAll([]models.Camera{{ID: "A", Active: true}})

	m := newTestManager(t, mock.url(), reg, rate.New(0), nil)
	sub := m.Events(32)
	defer sub.Close()
	startManager(t, m)

	waitForState(t, sub, Connected)
	first := mock.accept(t)
	if n := countStarts(first.drain(100*time.Millisecond), "A"); n != 1 {
		t.Fatalf("first connection: %d start_stream for A, want 1", n)
	}

	_ = first.conn.Close()
	waitForState(t, sub, Disconnected)

	// Flip A several times while the channel is down; each Subscribe is dropped.
	reg.ReplaceAll([]models.Camera{{ID: "A", Active: false}})
	_ = m.Subscribe("A")
	reg.ReplaceAll([]models.Camera{{ID: "A", Active: true}})
	_ = m.Subscribe("A")
	reg.ReplaceAll([]models.Camera{{ID: "A", Active: false}})
	reg.ReplaceAll([]models.Camera{{ID: "A", Active: true}})

	waitForState(t, sub, Connected)
	second := mock.accept(t)
	if n := countStarts(second.drain(300*time.Millisecond), "A"); n != 1 {
		t.Errorf("after reconnect: %d start_stream for A, want exactly 1", n)
	}
}

func TestManager_FrameEventsFeedEstimator(t *testing.T) {
	mock := newMockPushServer(t)
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	est := rate.New(time.Second)
	reg := registry.New()
	reg.ReplaceAll([]models.Camera{{ID: "front-door"}})

	m := newTestManager(t, mock.url(), reg, est, clock.Now)
	sub := m.Events(64)
	defer sub.Close()
	startManager(t, m)

	waitForState(t, sub, Connected)
	mc := mock.accept(t)

	readFrame := func() FrameEvent {
		t.Helper()
		timeout := time.After(3 * time.Second)
		for {
			select {
			case ev := <-sub.C():
				if fe, ok := ev.(FrameEvent); ok {
					return fe
				}
			case <-timeout:
				t.Fatal("timed out waiting for frame event")
				return FrameEvent{}
			}
		}
	}

	for i := 0; i < 10; i++ {
		mc.send(t, models.EventFrame, models.FramePayload{CameraID: "front-door", Frame: "AAAA", FPS: 12.5})
		fe := readFrame()
		if fe.CameraID != "front-door" || fe.CaptureFPS != 12.5 || fe.Frame != "AAAA" {
			t.Fatalf("frame event = %+v", fe)
		}
		clock.Advance(50 * time.Millisecond)
	}

	if got := est.CurrentRate("front-door"); got != 0 {
		t.Errorf("rate before window boundary = %d, want 0", got)
	}

	clock.Advance(600 * time.Millisecond)
	mc.send(t, models.EventFrame, models.FramePayload{CameraID: "front-door", Frame: "BBBB", FPS: 12.5})
	readFrame()

	if got := est.CurrentRate("front-door"); got != 10 {
		t.Errorf("rate after window boundary = %d, want 10", got)
	}
}

func TestManager_RemovalEvent(t *testing.T) {
	mock := newMockPushServer(t)
	reg := registry.New()
	reg.ReplaceAll([]models.Camera{{ID: "cam_1", Active: true}, {ID: "cam_2"}})
	est := rate.New(time.Second)
	est.RecordArrival("cam_1", time.Now())

	m := newTestManager(t, mock.url(), reg, est, nil)
	sub := m.Events(16)
	defer sub.Close()
	startManager(t, m)

	waitForState(t, sub, Connected)
	mc := mock.accept(t)

	mc.send(t, models.EventCameraRemoved, models.CameraRef{CameraID: "cam_1"})
	mc.send(t, models.EventCameraRemoved, models.CameraRef{CameraID: "never-seen"})

	var removed []string
	timeout := time.After(3 * time.Second)
	for len(removed) < 2 {
		select {
		case ev := <-sub.C():
			if re, ok := ev.(RemovalEvent); ok {
				removed = append(removed, re.CameraID)
			}
		case <-timeout:
			t.Fatalf("timed out, removals so far: %v", removed)
		}
	}

	if _, ok := reg.Get("cam_1"); ok {
		t.Error("cam_1 still in registry")
	}
	if reg.Len() != 1 {
		t.Errorf("registry Len = %d, want 1", reg.Len())
	}
	if _, ok := est.Sample("cam_1"); ok {
		t.Error("estimator still tracks cam_1")
	}
	for _, id := range m.Subscribed() {
		if id == "cam_1" {
			t.Error("cam_1 still subscribed")
		}
	}

	// A frame already in flight when the removal landed is discarded.
	mc.send(t, models.EventFrame, models.FramePayload{CameraID: "cam_1", Frame: "AAAA"})
	select {
	case ev := <-sub.C():
		t.Errorf("unexpected event after removal: %#v", ev)
	case <-time.After(200 * time.Millisecond):
	}
	if _, ok := est.Sample("cam_1"); ok {
		t.Error("late frame revived estimator state for cam_1")
	}
}

func TestManager_IgnoresNoticesAndGarbage(t *testing.T) {
	mock := newMockPushServer(t)
	reg := registry.New()
	reg.ReplaceAll([]models.Camera{{ID: "cam_1"}})

	m := newTestManager(t, mock.url(), reg, rate.New(0), nil)
	sub := m.Events(16)
	defer sub.Close()
	startManager(t, m)

	waitForState(t, sub, Connected)
	mc := mock.accept(t)

	mc.send(t, models.EventConnected, map[string]string{"status": "connected"})
	mc.send(t, models.EventStreamStarted, models.CameraRef{CameraID: "cam_1", Status: "streaming"})
	mc.send(t, "mystery", nil)
	_ = mc.conn.WriteMessage(websocket.TextMessage, []byte("{not json"))
	mc.send(t, models.EventFrame, map[string]string{"frame": "no id"})

	select {
	case ev := <-sub.C():
		t.Errorf("unexpected event %#v", ev)
	case <-time.After(200 * time.Millisecond):
	}
	if reg.Len() != 1 || !m.IsConnected() {
		t.Error("notices must not change state")
	}
}

func TestManager_FullSubscriberDropsFrames(t *testing.T) {
	m := NewManager(Options{URL: "ws://x/stream"}, registry.New(), rate.New(0))
	sub := m.Events(1)
	defer sub.Close()

	ctx := context.Background()
	m.publish(ctx, FrameEvent{CameraID: "a"}, true)
	m.publish(ctx, FrameEvent{CameraID: "b"}, true)

	ev := <-sub.C()
	if fe := ev.(FrameEvent); fe.CameraID != "a" {
		t.Errorf("kept frame = %s, want a", fe.CameraID)
	}
	select {
	case ev := <-sub.C():
		t.Errorf("second frame should have been dropped, got %#v", ev)
	default:
	}
}

func TestSubscription_CloseUnblocksPublish(t *testing.T) {
	m := NewManager(Options{URL: "ws://x/stream"}, registry.New(), rate.New(0))
	sub := m.Events(1)
	m.publish(context.Background(), RemovalEvent{CameraID: "a"}, false)

	done := make(chan struct{})
	go func() {
		m.publish(context.Background(), RemovalEvent{CameraID: "b"}, false)
		close(done)
	}()

	sub.Close()
	sub.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a closed subscription")
	}
	if len(m.subscribers()) != 0 {
		t.Error("closed subscription still registered")
	}
}
