// Camwatch - Live Camera Dashboard Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camwatch

// Package main is the camwatch command line client.
//
// camwatch talks to a camera streaming backend over its HTTP command API and
// its WebSocket push channel.
//
// # Commands
//
//	camwatch watch                 run the live session and the local dashboard
//	camwatch list [--output yaml]  print the backend's camera list
//	camwatch add --url rtsp://...  register a camera
//	camwatch start ID              start one camera
//	camwatch stop ID               stop one camera
//	camwatch remove ID             delete one camera
//	camwatch start-all             start every camera, one by one
//	camwatch stop-all              stop every camera, one by one
//
// # Configuration
//
// Settings are layered with koanf (highest priority wins):
//   - command line flags (--backend, --config, --log-level)
//   - environment variables (CAMWATCH_BACKEND_URL, LOG_LEVEL, ...)
//   - .env in the working directory
//   - config file (CAMWATCH_CONFIG, camwatch.yaml, /etc/camwatch/config.yaml)
//   - built-in defaults
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/tomtom215/camwatch/internal/config"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "camwatch: %v\n", err)
		os.Exit(1)
	}
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:    "camwatch",
		Usage:   "Live camera dashboard client",
		Version: fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, BuildDate),
		Writer:  out,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "backend",
				Aliases: []string{"b"},
				Usage:   "Camera backend base URL",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML config file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level: trace, debug, info, warn, error",
			},
		},
		Before:   applyGlobalFlags,
		Commands: commands(),
	}
}

// applyGlobalFlags pushes flag values into the environment layer so the
// config loader sees them above every other source.
func applyGlobalFlags(c *cli.Context) error {
	overrides := map[string]string{
		"backend":   "CAMWATCH_BACKEND_URL",
		"config":    config.ConfigPathEnvVar,
		"log-level": "LOG_LEVEL",
	}
	for flag, envVar := range overrides {
		if !c.IsSet(flag) {
			continue
		}
		if err := os.Setenv(envVar, c.String(flag)); err != nil {
			return fmt.Errorf("set %s: %w", envVar, err)
		}
	}
	return nil
}

func commands() []*cli.Command {
	return []*cli.Command{
		watchCommand(),
		listCommand(),
		addCommand(),
		cameraCommand("start", "Start streaming one camera", opStart),
		cameraCommand("stop", "Stop streaming one camera", opStop),
		cameraCommand("remove", "Delete one camera from the backend", opRemove),
		batchCommand("start-all", "Start every camera, one at a time", opStartAll),
		batchCommand("stop-all", "Stop every camera, one at a time", opStopAll),
	}
}
