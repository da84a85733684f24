// Camwatch - Live Camera Dashboard Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camwatch

package dispatch

import (
	"github.com/tomtom215/camwatch/internal/logging"
)

// Level classifies a user-facing notice.
type Level string

const (
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
)

// Notice is one user-facing message.
type Notice struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
}

// Notifier surfaces command outcomes to the operator.
type Notifier interface {
	Notify(n Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(n Notice)

// Notify calls f(n).
func (f NotifierFunc) Notify(n Notice) {
	f(n)
}

// LogNotifier writes notices to the global logger.
type LogNotifier struct{}

// Notify logs n at a level matching its severity.
func (LogNotifier) Notify(n Notice) {
	switch n.Level {
	case LevelError:
		logging.Error().Str("notice", string(n.Level)).Msg(n.Message)
	case LevelWarning:
		logging.Warn().Str("notice", string(n.Level)).Msg(n.Message)
	default:
		logging.Info().Str("notice", string(n.Level)).Msg(n.Message)
	}
}
