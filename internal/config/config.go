// Camwatch - Live Camera Dashboard Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camwatch

// Package config loads camwatch configuration.
//
// Configuration Loading Order (Koanf v2):
//  1. Defaults: built-in values from defaultConfig()
//  2. .env file: loaded into the process environment when present
//  3. Config file: optional YAML (camwatch.yaml, or CAMWATCH_CONFIG)
//  4. Environment variables: override any setting
//
// Example:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    logging.Fatal().Err(err).Msg("Failed to load configuration")
//	}
package config

import (
	"time"
)

// Config holds all camwatch settings.
type Config struct {
	Backend   BackendConfig   `koanf:"backend"`
	Channel   ChannelConfig   `koanf:"channel"`
	Batch     BatchConfig     `koanf:"batch"`
	Rate      RateConfig      `koanf:"rate"`
	Dashboard DashboardConfig `koanf:"dashboard"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// BackendConfig points at the camera backend's request/response API.
type BackendConfig struct {
	URL     string        `koanf:"url" validate:"required"`
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`
	Breaker BreakerConfig `koanf:"breaker"`
}

// BreakerConfig tunes the circuit breaker in front of the backend API.
type BreakerConfig struct {
	MaxRequests  uint32        `koanf:"max_requests" validate:"gte=1"`
	Interval     time.Duration `koanf:"interval" validate:"gte=0"`
	Timeout      time.Duration `koanf:"timeout" validate:"gt=0"`
	MinRequests  uint32        `koanf:"min_requests" validate:"gte=1"`
	FailureRatio float64       `koanf:"failure_ratio" validate:"gt=0,lte=1"`
}

// ChannelConfig controls the persistent push connection.
type ChannelConfig struct {
	// URL overrides the push endpoint. Empty derives ws(s)://<backend host><stream_path>.
	URL              string        `koanf:"url"`
	StreamPath       string        `koanf:"stream_path" validate:"required,startswith=/"`
	ReconnectDelay   time.Duration `koanf:"reconnect_delay" validate:"gt=0"`
	HandshakeTimeout time.Duration `koanf:"handshake_timeout" validate:"gt=0"`
	ReadTimeout      time.Duration `koanf:"read_timeout" validate:"gt=0"`
	PingInterval     time.Duration `koanf:"ping_interval" validate:"gt=0"`
	EventBuffer      int           `koanf:"event_buffer" validate:"gte=1"`
}

// BatchConfig controls start-all/stop-all pacing.
type BatchConfig struct {
	Delay time.Duration `koanf:"delay" validate:"gte=0"`
}

// RateConfig controls the delivery rate window.
type RateConfig struct {
	Window time.Duration `koanf:"window" validate:"gt=0"`
}

// DashboardConfig controls the local viewer HTTP surface.
type DashboardConfig struct {
	Enabled         bool          `koanf:"enabled"`
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"gte=1,lte=65535"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs" validate:"gte=1"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window" validate:"gte=1s"`
	MaxFPS          float64       `koanf:"max_fps" validate:"gt=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// Load reads configuration from defaults, .env, config file and environment.
func Load() (*Config, error) {
	return LoadWithKoanf()
}
