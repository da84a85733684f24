// Camwatch - Live Camera Dashboard Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camwatch

/*
Package services adapts camwatch components to suture's Serve pattern.

	type Service interface {
	    Serve(ctx context.Context) error
	}

Available services:
  - SessionService wraps session.Session.Run
  - WebSocketHubService wraps websocket.Hub.RunWithContext
  - HTTPServerService wraps *http.Server with graceful shutdown

Every wrapper returns ctx.Err() on shutdown and implements fmt.Stringer so
suture's event log names the service.
*/
package services
