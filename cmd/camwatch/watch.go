// Camwatch - Live Camera Dashboard Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camwatch

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/tomtom215/camwatch/internal/config"
	"github.com/tomtom215/camwatch/internal/dashboard"
	"github.com/tomtom215/camwatch/internal/logging"
	"github.com/tomtom215/camwatch/internal/session"
	"github.com/tomtom215/camwatch/internal/supervisor"
	"github.com/tomtom215/camwatch/internal/supervisor/services"
	ws "github.com/tomtom215/camwatch/internal/websocket"
)

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Run the live camera session and the local dashboard",
		Description: `Connects to the backend push channel, keeps the camera list in sync and
renders the dashboard view. Viewers connect to the dashboard at /ws.

Examples:
  camwatch --backend http://nvr.local:5000 watch
  camwatch watch --no-dashboard`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "no-dashboard",
				Usage: "Do not start the local dashboard HTTP server",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if c.Bool("no-dashboard") {
				cfg.Dashboard.Enabled = false
			}

			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, cfg)
		},
	}
}

// watchApp is the set of supervised components behind the watch command.
type watchApp struct {
	session *session.Session
	hub     *ws.Hub
	server  *http.Server
	tree    *supervisor.SupervisorTree
}

func buildWatch(ctx context.Context, cfg *config.Config) (*watchApp, error) {
	hub := ws.NewHub()

	sess, err := session.New(cfg, session.Deps{Publisher: hub})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Dashboard.ShutdownTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("create supervisor tree: %w", err)
	}

	app := &watchApp{session: sess, hub: hub, tree: tree}
	tree.AddSessionService(services.NewSessionService(sess))
	tree.AddViewerService(services.NewWebSocketHubService(hub))

	if cfg.Dashboard.Enabled {
		handler := dashboard.NewHandler(sess, sess.Dispatcher(), hub, cfg.Dashboard.CORSOrigins).WithLifetime(ctx)
		app.server = &http.Server{
			Addr:              cfg.DashboardAddr(),
			Handler:           dashboard.NewRouter(handler, dashboard.MiddlewareConfigFrom(&cfg.Dashboard)),
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
		}
		tree.AddAPIService(services.NewHTTPServerService(app.server, cfg.Dashboard.ShutdownTimeout))
		logging.Info().Str("addr", app.server.Addr).Msg("Dashboard server service added")
	}

	return app, nil
}

func runWatch(ctx context.Context, cfg *config.Config) error {
	app, err := buildWatch(ctx, cfg)
	if err != nil {
		return err
	}

	logging.Info().
		Str("backend", cfg.Backend.URL).
		Bool("dashboard", cfg.Dashboard.Enabled).
		Msg("Starting supervisor tree")

	err = app.tree.Serve(ctx)

	if unstopped, _ := app.tree.UnstoppedServiceReport(); len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Unstopped service")
		}
	}

	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("supervisor tree: %w", err)
	}
	logging.Info().Msg("camwatch stopped")
	return nil
}
