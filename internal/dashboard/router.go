// Camwatch - Live Camera Dashboard Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camwatch

// Package dashboard serves the local viewer surface: the latest rendered
// view, a viewer WebSocket, command endpoints and Prometheus metrics.
package dashboard

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/camwatch/internal/config"
)

// MiddlewareConfigFrom maps the dashboard configuration onto middleware settings.
func MiddlewareConfigFrom(cfg *config.DashboardConfig) *MiddlewareConfig {
	mc := DefaultMiddlewareConfig()
	if cfg == nil {
		return mc
	}
	mc.CORSAllowedOrigins = cfg.CORSOrigins
	if cfg.RateLimitReqs > 0 {
		mc.RateLimitRequests = cfg.RateLimitReqs
	}
	if cfg.RateLimitWindow > 0 {
		mc.RateLimitWindow = cfg.RateLimitWindow
	}
	return mc
}

// NewRouter builds the chi router for the dashboard.
//
// Route groups:
//   - /health, /metrics: no rate limit
//   - /ws: viewer WebSocket
//   - /api: view and camera commands, rate limited per IP
func NewRouter(h *Handler, mc *MiddlewareConfig) http.Handler {
	mw := NewMiddleware(mc)

	r := chi.NewRouter()
	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(mw.CORS())

	r.Get("/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws", h.WebSocket)

	r.Route("/api", func(r chi.Router) {
		r.Use(SecurityHeaders())
		r.Use(mw.RateLimit())

		r.Get("/view", h.View)

		r.Route("/cameras", func(r chi.Router) {
			r.Post("/", h.AddCamera)
			r.Post("/start-all", h.StartAll)
			r.Post("/stop-all", h.StopAll)
			r.Post("/{id}/start", h.StartCamera)
			r.Post("/{id}/stop", h.StopCamera)
			r.Delete("/{id}", h.RemoveCamera)
		})
	})

	return r
}
