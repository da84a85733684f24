// Camwatch - Live Camera Dashboard Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camwatch

/*
Package models defines the wire types shared with the camera backend.

HTTP command API (JSON):
  - Camera, CameraList: GET /api/cameras
  - CameraSpec: POST /api/cameras
  - CommandResult: reply to every mutating request

Push channel (JSON envelopes {"type": ..., "data": ...}):
  - Envelope with the Event* type constants
  - StreamRequest: start_stream / stop_stream sent by the client
  - FramePayload: frame pushed by the backend
  - CameraRef: camera_removed and the informational notices

Camera.Active is always the last state the backend confirmed.
*/
package models
