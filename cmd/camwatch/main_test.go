// Camwatch - Live Camera Dashboard Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camwatch

package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/tomtom215/camwatch/internal/config"
	"github.com/tomtom215/camwatch/internal/models"
)

type fakeBackend struct {
	server *httptest.Server

	mu      sync.Mutex
	cameras []models.Camera
	calls   []string
	added   models.CameraSpec
}

func newFakeBackend(t *testing.T, cams ...models.Camera) *fakeBackend {
	t.Helper()
	fb := &fakeBackend{cameras: cams}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/cameras", func(w http.ResponseWriter, r *http.Request) {
		fb.mu.Lock()
		defer fb.mu.Unlock()
		_ = json.NewEncoder(w).Encode(models.CameraList{Cameras: fb.cameras})
	})
	mux.HandleFunc("POST /api/cameras", func(w http.ResponseWriter, r *http.Request) {
		fb.mu.Lock()
		defer fb.mu.Unlock()
		_ = json.NewDecoder(r.Body).Decode(&fb.added)
		id := "cam_new"
		fb.cameras = append(fb.cameras, models.Camera{ID: id, Name: fb.added.Name, URL: fb.added.RTSPURL})
		fb.calls = append(fb.calls, "add")
		_ = json.NewEncoder(w).Encode(models.CommandResult{Success: true, CameraID: id})
	})
	mux.HandleFunc("POST /api/cameras/{id}/{action}", func(w http.ResponseWriter, r *http.Request) {
		fb.command(w, r.PathValue("action"), r.PathValue("id"))
	})
	mux.HandleFunc("DELETE /api/cameras/{id}", func(w http.ResponseWriter, r *http.Request) {
		fb.command(w, "remove", r.PathValue("id"))
	})

	fb.server = httptest.NewServer(mux)
	t.Cleanup(fb.server.Close)
	return fb
}

func (fb *fakeBackend) command(w http.ResponseWriter, action, id string) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.calls = append(fb.calls, action+":"+id)
	for i := range fb.cameras {
		if fb.cameras[i].ID != id {
			continue
		}
		switch action {
		case "start":
			fb.cameras[i].Active = true
		case "stop":
			fb.cameras[i].Active = false
		case "remove":
			fb.cameras = append(fb.cameras[:i], fb.cameras[i+1:]...)
		}
		_ = json.NewEncoder(w).Encode(models.CommandResult{Success: true, CameraID: id})
		return
	}
	w.WriteHeader(http.StatusNotFound)
	_ = json.NewEncoder(w).Encode(models.CommandResult{Error: "Camera not found"})
}

func (fb *fakeBackend) callLog() []string {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return append([]string(nil), fb.calls...)
}

// isolateEnv keeps the config loader away from the developer's environment
// and restores anything the global flags set.
func isolateEnv(t *testing.T) {
	t.Helper()
	t.Setenv("CAMWATCH_BACKEND_URL", "")
	_ = os.Unsetenv("CAMWATCH_BACKEND_URL")
	t.Setenv(config.ConfigPathEnvVar, t.TempDir()+"/missing.yaml")
	t.Setenv("CAMWATCH_BATCH_DELAY", "0s")
	t.Setenv("LOG_LEVEL", "error")

	saved := config.DotEnvPath
	config.DotEnvPath = ""
	t.Cleanup(func() { config.DotEnvPath = saved })
}

// run executes the CLI and returns its output and the exit code it asked for.
func run(t *testing.T, args ...string) (string, int, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp(&out)
	app.ExitErrHandler = func(*cli.Context, error) {}

	err := app.Run(append([]string{"camwatch"}, args...))
	code := 0
	var exitErr cli.ExitCoder
	if errors.As(err, &exitErr) {
		code = exitErr.ExitCode()
	} else if err != nil {
		code = 1
	}
	return out.String(), code, err
}

func TestList_Table(t *testing.T) {
	isolateEnv(t)
	fb := newFakeBackend(t,
		models.Camera{ID: "cam_1", Name: "Porch", Active: true, URL: "rtsp://porch/live"},
		models.Camera{ID: "cam_2", Name: "Yard", URL: "rtsp://yard/live"},
	)

	out, code, err := run(t, "--backend", fb.server.URL, "list")
	if code != 0 {
		t.Fatalf("exit %d: %v", code, err)
	}
	for _, want := range []string{"ID", "STATUS", "cam_1", "LIVE", "cam_2", "OFFLINE", "N/A"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestList_Empty(t *testing.T) {
	isolateEnv(t)
	fb := newFakeBackend(t)

	out, code, _ := run(t, "--backend", fb.server.URL, "list")
	if code != 0 || !strings.Contains(out, "No cameras added yet") {
		t.Errorf("exit %d, output %q", code, out)
	}
}

func TestList_YAMLAndJSON(t *testing.T) {
	isolateEnv(t)
	fb := newFakeBackend(t, models.Camera{ID: "cam_1", Name: "Porch", Direction: "N", URL: "rtsp://p"})

	out, code, err := run(t, "--backend", fb.server.URL, "list", "--output", "yaml")
	if code != 0 {
		t.Fatalf("exit %d: %v", code, err)
	}
	var doc struct {
		Cameras []models.Camera `yaml:"cameras"`
	}
	if err := yaml.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("yaml: %v\n%s", err, out)
	}
	if len(doc.Cameras) != 1 || doc.Cameras[0].Direction != models.Direction("N") {
		t.Errorf("yaml cameras = %+v", doc.Cameras)
	}

	out, _, _ = run(t, "--backend", fb.server.URL, "list", "-o", "json")
	var list models.CameraList
	if err := json.Unmarshal([]byte(out), &list); err != nil || len(list.Cameras) != 1 {
		t.Errorf("json = %q, %v", out, err)
	}
}

func TestList_BadFormatAndUnreachableBackend(t *testing.T) {
	isolateEnv(t)

	if _, code, _ := run(t, "list", "--output", "xml"); code != 2 {
		t.Errorf("bad format exit = %d, want 2", code)
	}

	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()
	if _, code, _ := run(t, "--backend", url, "list"); code != 1 {
		t.Errorf("unreachable exit = %d, want 1", code)
	}
}

func TestCameraCommands(t *testing.T) {
	isolateEnv(t)
	fb := newFakeBackend(t, models.Camera{ID: "cam_1", Name: "Porch"})

	tests := []struct {
		args   []string
		notice string
		call   string
	}{
		{[]string{"start", "cam_1"}, "[success] Camera started", "start:cam_1"},
		{[]string{"stop", "cam_1"}, "[warning] Camera stopped", "stop:cam_1"},
		{[]string{"remove", "cam_1"}, "[warning] Camera removed", "remove:cam_1"},
	}
	for _, tt := range tests {
		t.Run(tt.args[0], func(t *testing.T) {
			out, code, err := run(t, append([]string{"--backend", fb.server.URL}, tt.args...)...)
			if code != 0 {
				t.Fatalf("exit %d: %v (%s)", code, err, out)
			}
			if !strings.Contains(out, tt.notice) {
				t.Errorf("output = %q, want %q", out, tt.notice)
			}
			calls := fb.callLog()
			if calls[len(calls)-1] != tt.call {
				t.Errorf("last call = %v, want %s", calls, tt.call)
			}
		})
	}
}

func TestCameraCommands_Failures(t *testing.T) {
	isolateEnv(t)
	fb := newFakeBackend(t)

	out, code, _ := run(t, "--backend", fb.server.URL, "start", "ghost")
	if code != 1 || !strings.Contains(out, "[error] Camera not found") {
		t.Errorf("exit %d, output %q", code, out)
	}

	if _, code, _ := run(t, "--backend", fb.server.URL, "stop"); code != 2 {
		t.Errorf("missing id exit = %d, want 2", code)
	}
}

func TestAdd(t *testing.T) {
	isolateEnv(t)
	fb := newFakeBackend(t, models.Camera{ID: "cam_1", Name: "Porch"})

	out, code, err := run(t, "--backend", fb.server.URL, "add", "--url", "  rtsp://gate/1 ", "-d", "ne")
	if code != 0 {
		t.Fatalf("exit %d: %v (%s)", code, err, out)
	}
	if !strings.Contains(out, "Camera added successfully") {
		t.Errorf("output = %q", out)
	}
	fb.mu.Lock()
	added := fb.added
	fb.mu.Unlock()
	if added.Name != "Camera 2" || added.RTSPURL != "rtsp://gate/1" || added.Direction != models.Direction("NE") {
		t.Errorf("added = %+v", added)
	}

	out, code, _ = run(t, "--backend", fb.server.URL, "add")
	if code != 1 || !strings.Contains(out, "Please enter RTSP URL") {
		t.Errorf("exit %d, output %q", code, out)
	}
}

func TestBatchCommands(t *testing.T) {
	isolateEnv(t)
	fb := newFakeBackend(t,
		models.Camera{ID: "cam_1", Name: "A"},
		models.Camera{ID: "cam_2", Name: "B"},
	)

	out, code, err := run(t, "--backend", fb.server.URL, "start-all")
	if code != 0 {
		t.Fatalf("exit %d: %v (%s)", code, err, out)
	}
	if !strings.Contains(out, "2 of 2 cameras succeeded") {
		t.Errorf("output = %q", out)
	}

	var starts []string
	for _, c := range fb.callLog() {
		if strings.HasPrefix(c, "start:") {
			starts = append(starts, c)
		}
	}
	if len(starts) != 2 || starts[0] != "start:cam_1" || starts[1] != "start:cam_2" {
		t.Errorf("starts = %v", starts)
	}

	if out, code, _ := run(t, "--backend", fb.server.URL, "stop-all"); code != 0 || !strings.Contains(out, "2 of 2") {
		t.Errorf("stop-all exit %d, output %q", code, out)
	}
}

func TestBuildWatch(t *testing.T) {
	isolateEnv(t)
	t.Setenv("CAMWATCH_BACKEND_URL", "http://127.0.0.1:1")
	t.Setenv("CAMWATCH_DASHBOARD_PORT", "18085")

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}

	app, err := buildWatch(context.Background(), cfg)
	if err != nil {
		t.Fatalf("buildWatch: %v", err)
	}
	if app.server == nil || app.server.Addr != "127.0.0.1:18085" {
		t.Errorf("server = %+v", app.server)
	}

	cfg.Dashboard.Enabled = false
	app, err = buildWatch(context.Background(), cfg)
	if err != nil || app.server != nil {
		t.Errorf("dashboard disabled: server = %v, err = %v", app.server, err)
	}
}

func TestRunWatch_StopsOnCancel(t *testing.T) {
	isolateEnv(t)
	t.Setenv("CAMWATCH_BACKEND_URL", "http://127.0.0.1:1")

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	cfg.Dashboard.Enabled = false
	cfg.Dashboard.ShutdownTimeout = 2 * time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- runWatch(ctx, cfg) }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("runWatch() = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("runWatch did not return after cancel")
	}
}
