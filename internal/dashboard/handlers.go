// Camwatch - Live Camera Dashboard Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camwatch

package dashboard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/camwatch/internal/backend"
	"github.com/tomtom215/camwatch/internal/channel"
	"github.com/tomtom215/camwatch/internal/dispatch"
	"github.com/tomtom215/camwatch/internal/logging"
	"github.com/tomtom215/camwatch/internal/models"
	"github.com/tomtom215/camwatch/internal/render"
	ws "github.com/tomtom215/camwatch/internal/websocket"
)

// maxBodySize caps POST /api/cameras bodies.
const maxBodySize = 64 * 1024

// ViewSource exposes the session state viewers read.
type ViewSource interface {
	View() render.View
	ChannelState() channel.State
}

// Commands is the dispatcher surface the dashboard forwards to.
type Commands interface {
	AddCamera(ctx context.Context, spec models.CameraSpec) dispatch.Result
	Start(ctx context.Context, id string) dispatch.Result
	Stop(ctx context.Context, id string) dispatch.Result
	Remove(ctx context.Context, id string) dispatch.Result
	StartAll(ctx context.Context) []dispatch.Result
	StopAll(ctx context.Context) []dispatch.Result
}

// ErrorBody is the JSON body of a rejected request.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HealthBody is the JSON body of GET /health.
type HealthBody struct {
	Status  string `json:"status"`
	Channel string `json:"channel"`
}

// BatchBody is the JSON body of start-all and stop-all.
type BatchBody struct {
	Results   []dispatch.Result `json:"results"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
}

// Handler serves the dashboard HTTP and WebSocket endpoints.
type Handler struct {
	views       ViewSource
	commands    Commands
	hub         *ws.Hub
	corsOrigins []string

	// lifetime ends batches; the request context does not.
	lifetime context.Context
}

// NewHandler creates a Handler. corsOrigins also gates WebSocket upgrades.
func NewHandler(views ViewSource, commands Commands, hub *ws.Hub, corsOrigins []string) *Handler {
	return &Handler{
		views:       views,
		commands:    commands,
		hub:         hub,
		corsOrigins: corsOrigins,
		lifetime:    context.Background(),
	}
}

// WithLifetime sets the context whose cancellation stops running batches.
// It is normally the process shutdown context.
func (h *Handler) WithLifetime(ctx context.Context) *Handler {
	h.lifetime = ctx
	return h
}

// batchContext keeps the request's values but not its cancellation: a batch
// runs to completion even if the caller goes away, and stops only when the
// handler's lifetime ends.
func (h *Handler) batchContext(r *http.Request) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	stop := context.AfterFunc(h.lifetime, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// Health reports liveness and the push channel state.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthBody{
		Status:  "ok",
		Channel: h.views.ChannelState().String(),
	})
}

// View returns the most recently rendered view.
func (h *Handler) View(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.views.View())
}

// AddCamera decodes a CameraSpec and forwards it to the dispatcher.
func (h *Handler) AddCamera(w http.ResponseWriter, r *http.Request) {
	var spec models.CameraSpec
	body := http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(body).Decode(&spec); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", "Request body must be a camera JSON object")
		return
	}

	respondResult(w, h.commands.AddCamera(r.Context(), spec))
}

// StartCamera forwards a start command for {id}.
func (h *Handler) StartCamera(w http.ResponseWriter, r *http.Request) {
	h.forward(w, r, h.commands.Start)
}

// StopCamera forwards a stop command for {id}.
func (h *Handler) StopCamera(w http.ResponseWriter, r *http.Request) {
	h.forward(w, r, h.commands.Stop)
}

// RemoveCamera forwards a remove command for {id}.
func (h *Handler) RemoveCamera(w http.ResponseWriter, r *http.Request) {
	h.forward(w, r, h.commands.Remove)
}

// StartAll starts every known camera and reports each result.
func (h *Handler) StartAll(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.batchContext(r)
	defer cancel()
	respondJSON(w, http.StatusOK, newBatchBody(h.commands.StartAll(ctx)))
}

// StopAll stops every known camera and reports each result.
func (h *Handler) StopAll(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.batchContext(r)
	defer cancel()
	respondJSON(w, http.StatusOK, newBatchBody(h.commands.StopAll(ctx)))
}

func (h *Handler) forward(w http.ResponseWriter, r *http.Request, cmd func(context.Context, string) dispatch.Result) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "MISSING_ID", "Camera id is required")
		return
	}
	respondResult(w, cmd(r.Context(), id))
}

// WebSocket upgrades a viewer connection and hands it to the hub.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := h.getUpgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("Viewer WebSocket upgrade failed")
		return
	}

	client := ws.NewClient(h.hub, conn)
	h.hub.Register <- client
	client.Start()
}

func (h *Handler) getUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkWebSocketOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
}

// checkWebSocketOrigin accepts browser origins listed in the CORS origins.
// Same-host requests without an Origin header come from local tools.
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	for _, allowed := range h.corsOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}

	logging.Warn().Str("origin", sanitizeLogValue(origin)).Msg("Viewer WebSocket rejected from unauthorized origin")
	return false
}

func newBatchBody(results []dispatch.Result) BatchBody {
	body := BatchBody{Results: results}
	if body.Results == nil {
		body.Results = []dispatch.Result{}
	}
	for _, r := range results {
		if r.Success {
			body.Succeeded++
		} else {
			body.Failed++
		}
	}
	return body
}

// resultStatus maps a command outcome to an HTTP status.
func resultStatus(res dispatch.Result) int {
	switch {
	case res.Success:
		return http.StatusOK
	case errors.Is(res.Err, dispatch.ErrInvalidSpec):
		return http.StatusBadRequest
	case errors.Is(res.Err, backend.ErrTransport):
		return http.StatusBadGateway
	default:
		return http.StatusUnprocessableEntity
	}
}

func respondResult(w http.ResponseWriter, res dispatch.Result) {
	respondJSON(w, resultStatus(res), res)
}

func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	data, err := json.Marshal(body)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("Failed to write JSON response")
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorBody{Code: code, Message: message})
}

// sanitizeLogValue escapes control characters so client-supplied values
// cannot forge log lines.
func sanitizeLogValue(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7F {
			fmt.Fprintf(&b, "\\x%02x", r)
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
