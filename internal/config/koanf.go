// Camwatch - Live Camera Dashboard Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camwatch

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths searched for a config file, first match wins.
var DefaultConfigPaths = []string{
	"camwatch.yaml",
	"camwatch.yml",
	"/etc/camwatch/config.yaml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CAMWATCH_CONFIG"

// DotEnvPath is the optional dotenv file read before the environment layer.
var DotEnvPath = ".env"

func defaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			URL:     "http://localhost:5000",
			Timeout: 30 * time.Second,
			Breaker: BreakerConfig{
				MaxRequests:  3,
				Interval:     time.Minute,
				Timeout:      30 * time.Second,
				MinRequests:  5,
				FailureRatio: 0.6,
			},
		},
		Channel: ChannelConfig{
			URL:              "",
			StreamPath:       "/stream",
			ReconnectDelay:   time.Second,
			HandshakeTimeout: 10 * time.Second,
			ReadTimeout:      60 * time.Second,
			PingInterval:     30 * time.Second,
			EventBuffer:      64,
		},
		Batch: BatchConfig{
			Delay: 500 * time.Millisecond,
		},
		Rate: RateConfig{
			Window: time.Second,
		},
		Dashboard: DashboardConfig{
			Enabled:         true,
			Host:            "127.0.0.1",
			Port:            8085,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
			MaxFPS:          10,
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// LoadWithKoanf layers defaults, config file and environment, then validates.
// Precedence: ENV > File > Defaults. A .env file only feeds the ENV layer,
// so real environment variables win over it.
func LoadWithKoanf() (*Config, error) {
	if err := loadDotEnv(DotEnvPath); err != nil {
		return nil, err
	}

	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// CAMWATCH_BACKEND_URL -> backend.url, LOG_LEVEL -> logging.level
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadDotEnv reads path into the environment without overriding variables
// that are already set. A missing file is not an error.
func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths are parsed as comma-separated lists when they come from env.
var sliceConfigPaths = []string{
	"dashboard.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps environment variable names (lowercased) to koanf paths.
// Unmapped variables are ignored so unrelated environment does not leak in.
var envMappings = map[string]string{
	"camwatch_backend_url":              "backend.url",
	"camwatch_backend_timeout":          "backend.timeout",
	"camwatch_breaker_max_requests":     "backend.breaker.max_requests",
	"camwatch_breaker_interval":         "backend.breaker.interval",
	"camwatch_breaker_timeout":          "backend.breaker.timeout",
	"camwatch_breaker_min_requests":     "backend.breaker.min_requests",
	"camwatch_breaker_failure_ratio":    "backend.breaker.failure_ratio",
	"camwatch_channel_url":              "channel.url",
	"camwatch_stream_path":              "channel.stream_path",
	"camwatch_reconnect_delay":          "channel.reconnect_delay",
	"camwatch_handshake_timeout":        "channel.handshake_timeout",
	"camwatch_read_timeout":             "channel.read_timeout",
	"camwatch_ping_interval":            "channel.ping_interval",
	"camwatch_event_buffer":             "channel.event_buffer",
	"camwatch_batch_delay":              "batch.delay",
	"camwatch_rate_window":              "rate.window",
	"camwatch_dashboard_enabled":        "dashboard.enabled",
	"camwatch_dashboard_host":           "dashboard.host",
	"camwatch_dashboard_port":           "dashboard.port",
	"camwatch_cors_origins":             "dashboard.cors_origins",
	"camwatch_rate_limit_requests":      "dashboard.rate_limit_reqs",
	"camwatch_rate_limit_window":        "dashboard.rate_limit_window",
	"camwatch_dashboard_max_fps":        "dashboard.max_fps",
	"camwatch_dashboard_shutdown_grace": "dashboard.shutdown_timeout",
	"log_level":                         "logging.level",
	"log_format":                        "logging.format",
	"log_caller":                        "logging.caller",
}

func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}
