// Camwatch - Live Camera Dashboard Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camwatch

/*
Package websocket fans rendered dashboard views out to local viewers.

The hub-and-spoke layout is the usual one:

	┌──────────┐
	│   Hub    │ ← PublishView / PublishNotice
	└────┬─────┘
	     │
	┌────┴─────┬─────────┬─────────┐
	│ Viewer1  │ Viewer2 │ Viewer3 │
	└──────────┴─────────┴─────────┘

Each viewer has a readPump (control messages, close detection) and a
writePump (messages, keep-alive pings). When views pile up in a viewer's
queue the writePump sends only the newest. A viewer that keeps sending
malformed or unknown messages is closed with a policy violation.

Message Types:

  - view: a full render.View, sent on every render and once on connect
  - notice: a dispatch.Notice ({level, message}), the toast equivalent
  - ping / pong: application-level keep-alive initiated by the viewer
  - resync: sent by a viewer to get the latest view again

A viewer whose send buffer is full is disconnected rather than slowing the
hub down. Views are snapshots, so a reconnecting viewer loses nothing.
*/
package websocket
