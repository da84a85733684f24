// Camwatch - Live Camera Dashboard Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camwatch

/*
Package backend is the request/response client for the camera backend.

Endpoints:

	GET    /api/cameras              -> {"cameras": [...]}
	POST   /api/cameras              -> {"success", "camera_id", "message"}
	POST   /api/cameras/{id}/start   -> {"success", "error"?}
	POST   /api/cameras/{id}/stop    -> {"success", "error"?}
	DELETE /api/cameras/{id}         -> {"success", "error"?}

Two kinds of failure are kept apart. A transport failure (network error,
timeout, unreadable reply, open circuit) is returned as an error wrapping
ErrTransport. An application failure (the backend answered and said no) is
returned as a CommandResult with Success=false and the backend's message.
*/
package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/camwatch/internal/models"
)

// ErrTransport marks failures where no authoritative answer was received.
var ErrTransport = errors.New("backend unreachable")

// APIError is a non-2xx reply to a read request.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned status %d", e.Status)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.Status, e.Message)
}

// API is the set of backend operations the dispatcher needs.
// Both Client and CircuitBreakerClient implement it.
type API interface {
	ListCameras(ctx context.Context) ([]models.Camera, error)
	AddCamera(ctx context.Context, spec models.CameraSpec) (*models.CommandResult, error)
	StartCamera(ctx context.Context, id string) (*models.CommandResult, error)
	StopCamera(ctx context.Context, id string) (*models.CommandResult, error)
	RemoveCamera(ctx context.Context, id string) (*models.CommandResult, error)
}

var _ API = (*Client)(nil)

// Client talks to the backend over plain HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for baseURL (e.g. http://localhost:5000).
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// BaseURL returns the normalized backend URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ListCameras fetches the full camera snapshot.
func (c *Client) ListCameras(ctx context.Context) ([]models.Camera, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/api/cameras", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: list cameras: %w", ErrTransport, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Status: resp.StatusCode, Message: readErrorMessage(resp.Body)}
	}

	var list models.CameraList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("%w: failed to decode camera list: %w", ErrTransport, err)
	}
	if list.Cameras == nil {
		list.Cameras = []models.Camera{}
	}
	return list.Cameras, nil
}

// AddCamera registers a new camera.
func (c *Client) AddCamera(ctx context.Context, spec models.CameraSpec) (*models.CommandResult, error) {
	return c.command(ctx, "add camera", http.MethodPost, "/api/cameras", spec)
}

// StartCamera asks the backend to start capturing id.
func (c *Client) StartCamera(ctx context.Context, id string) (*models.CommandResult, error) {
	return c.command(ctx, "start camera", http.MethodPost, "/api/cameras/"+url.PathEscape(id)+"/start", nil)
}

// StopCamera asks the backend to stop capturing id.
func (c *Client) StopCamera(ctx context.Context, id string) (*models.CommandResult, error) {
	return c.command(ctx, "stop camera", http.MethodPost, "/api/cameras/"+url.PathEscape(id)+"/stop", nil)
}

// RemoveCamera deletes id from the backend.
func (c *Client) RemoveCamera(ctx context.Context, id string) (*models.CommandResult, error) {
	return c.command(ctx, "remove camera", http.MethodDelete, "/api/cameras/"+url.PathEscape(id), nil)
}

// command performs a mutating request and maps the reply onto a CommandResult.
// Any reply with a decodable body is authoritative, whatever the status code.
func (c *Client) command(ctx context.Context, op, method, path string, body interface{}) (*models.CommandResult, error) {
	resp, err := c.doRequest(ctx, method, path, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrTransport, op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: failed to read response: %w", ErrTransport, op, err)
	}

	var result models.CommandResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("%w: %s returned status %d: %s", ErrTransport, op, resp.StatusCode, truncate(string(raw), 200))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		result.Success = false
		if result.Error == "" {
			result.Error = fmt.Sprintf("%s returned status %d", op, resp.StatusCode)
		}
	}
	return &result, nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func readErrorMessage(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil {
		return ""
	}
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		return body.Error
	}
	return truncate(strings.TrimSpace(string(raw)), 200)
}

// truncate shortens s to n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
