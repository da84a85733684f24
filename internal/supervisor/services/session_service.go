// Camwatch - Live Camera Dashboard Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camwatch

package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomtom215/camwatch/internal/logging"
)

// Runner is satisfied by *session.Session.
type Runner interface {
	Run(ctx context.Context) error
}

// SessionService runs the camera session under supervision.
//
// The session owns the push channel's own reconnect loop, so a restart
// here only happens when Run returns before shutdown.
type SessionService struct {
	session Runner
	name    string
}

// NewSessionService wraps a session.
func NewSessionService(session Runner) *SessionService {
	return &SessionService{
		session: session,
		name:    "camera-session",
	}
}

// Serve implements suture.Service.
func (s *SessionService) Serve(ctx context.Context) error {
	err := s.session.Run(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err == nil {
		err = errors.New("session exited")
	}
	logging.Warn().Err(err).Str("service", s.name).Msg("Session stopped unexpectedly, restarting")
	return fmt.Errorf("%s: %w", s.name, err)
}

// String implements fmt.Stringer for supervisor logs.
func (s *SessionService) String() string {
	return s.name
}
