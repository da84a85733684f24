// Camwatch - Live Camera Dashboard Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camwatch

/*
Package supervisor runs the long-lived parts of camwatch under suture v4.

The tree has three layers so a failure in one does not restart the others:

	RootSupervisor ("camwatch")
	├── SessionSupervisor ("session-layer")
	│   └── SessionService
	├── ViewerSupervisor ("viewer-layer")
	│   └── WebSocketHubService
	└── APISupervisor ("api-layer")
	    └── HTTPServerService (when dashboard.enabled)

Supervisor events are logged through sutureslog into the zerolog-backed slog
handler from internal/logging.

# Usage

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
	    return err
	}
	tree.AddSessionService(services.NewSessionService(sess))
	tree.AddViewerService(services.NewWebSocketHubService(hub))
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))

	return tree.Serve(ctx)

Services return ctx.Err() on shutdown and any other error to request a
restart with suture's backoff.
*/
package supervisor
