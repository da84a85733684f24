// Camwatch - Live Camera Dashboard Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camwatch

package config

import (
	"fmt"

	"github.com/tomtom215/camwatch/internal/validation"
)

// Validate checks struct tags first, then the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if verr := validation.ValidateStruct(c); verr != nil {
		return verr
	}

	if err := c.validateBackend(); err != nil {
		return err
	}

	return c.validateChannel()
}

func (c *Config) validateBackend() error {
	return validateHTTPURL(c.Backend.URL, "backend.url")
}

func (c *Config) validateChannel() error {
	if c.Channel.URL != "" {
		if err := validateWebSocketURL(c.Channel.URL, "channel.url"); err != nil {
			return err
		}
	}
	if c.Channel.PingInterval >= c.Channel.ReadTimeout {
		return fmt.Errorf("channel.ping_interval (%v) must be shorter than channel.read_timeout (%v)",
			c.Channel.PingInterval, c.Channel.ReadTimeout)
	}
	return nil
}

// StreamURL returns the push channel endpoint, derived from the backend URL
// unless channel.url is set.
func (c *Config) StreamURL() (string, error) {
	if c.Channel.URL != "" {
		return c.Channel.URL, nil
	}
	return deriveWebSocketURL(c.Backend.URL, c.Channel.StreamPath)
}

// DashboardAddr returns host:port for the dashboard listener.
func (c *Config) DashboardAddr() string {
	return fmt.Sprintf("%s:%d", c.Dashboard.Host, c.Dashboard.Port)
}
