// Camwatch - Live Camera Dashboard Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camwatch

package dashboard

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/camwatch/internal/dispatch"
	"github.com/tomtom215/camwatch/internal/models"
	"github.com/tomtom215/camwatch/internal/registry"
	ws "github.com/tomtom215/camwatch/internal/websocket"
)

// stubAPI is a backend that accepts every command and records starts.
type stubAPI struct {
	mu      sync.Mutex
	cameras []models.Camera
	started []string
}

func (s *stubAPI) ListCameras(context.Context) ([]models.Camera, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Camera(nil), s.cameras...), nil
}

func (s *stubAPI) AddCamera(context.Context, models.CameraSpec) (*models.CommandResult, error) {
	return &models.CommandResult{Success: true}, nil
}

func (s *stubAPI) StartCamera(_ context.Context, id string) (*models.CommandResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = append(s.started, id)
	return &models.CommandResult{Success: true}, nil
}

func (s *stubAPI) StopCamera(context.Context, string) (*models.CommandResult, error) {
	return &models.CommandResult{Success: true}, nil
}

func (s *stubAPI) RemoveCamera(context.Context, string) (*models.CommandResult, error) {
	return &models.CommandResult{Success: true}, nil
}

func (s *stubAPI) startCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.started)
}

func newBatchServer(t *testing.T, lifetime context.Context) (*stubAPI, *httptest.Server) {
	t.Helper()
	api := &stubAPI{cameras: []models.Camera{{ID: "A"}, {ID: "B"}, {ID: "C"}}}
	reg := registry.New()
	reg.ReplaceAll(api.cameras)
	d := dispatch.New(dispatch.Deps{
		API:      api,
		Registry: reg,
		Notifier: dispatch.NotifierFunc(func(dispatch.Notice) {}),
	}, 100*time.Millisecond)

	h := NewHandler(&fakeViews{}, d, ws.NewHub(), nil).WithLifetime(lifetime)
	server := httptest.NewServer(NewRouter(h, DefaultMiddlewareConfig()))
	t.Cleanup(server.Close)
	return api, server
}

func waitForStarts(api *stubAPI, want int, within time.Duration) int {
	deadline := time.Now().Add(within)
	for api.startCount() < want && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	return api.startCount()
}

func TestStartAll_CompletesAfterClientGoesAway(t *testing.T) {
	api, server := newBatchServer(t, context.Background())

	client := &http.Client{Timeout: 120 * time.Millisecond}
	resp, err := client.Post(server.URL+"/api/cameras/start-all", "application/json", nil)
	if err == nil {
		resp.Body.Close()
		t.Fatal("expected client timeout")
	}

	if n := waitForStarts(api, 3, 2*time.Second); n != 3 {
		t.Errorf("starts = %d, want 3", n)
	}
}

func TestStartAll_StopsWhenLifetimeEnds(t *testing.T) {
	lifetime, cancel := context.WithCancel(context.Background())
	api, server := newBatchServer(t, lifetime)

	done := make(chan struct{})
	go func() {
		defer close(done)
		resp, err := http.Post(server.URL+"/api/cameras/start-all", "application/json", nil)
		if err == nil {
			resp.Body.Close()
		}
	}()

	if n := waitForStarts(api, 1, time.Second); n != 1 {
		t.Fatalf("starts = %d, want 1 before cancel", n)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("start-all did not return after shutdown")
	}
	if n := api.startCount(); n >= 3 {
		t.Errorf("starts = %d, batch should stop at shutdown", n)
	}
}
