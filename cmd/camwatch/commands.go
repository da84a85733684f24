// Camwatch - Live Camera Dashboard Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camwatch

package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/tomtom215/camwatch/internal/backend"
	"github.com/tomtom215/camwatch/internal/config"
	"github.com/tomtom215/camwatch/internal/dispatch"
	"github.com/tomtom215/camwatch/internal/logging"
	"github.com/tomtom215/camwatch/internal/models"
	"github.com/tomtom215/camwatch/internal/registry"
	"github.com/tomtom215/camwatch/internal/render"
)

type cameraOp func(*dispatch.Dispatcher, context.Context, string) dispatch.Result

type batchOp func(*dispatch.Dispatcher, context.Context) []dispatch.Result

var (
	opStart    cameraOp = (*dispatch.Dispatcher).Start
	opStop     cameraOp = (*dispatch.Dispatcher).Stop
	opRemove   cameraOp = (*dispatch.Dispatcher).Remove
	opStartAll batchOp  = (*dispatch.Dispatcher).StartAll
	opStopAll  batchOp  = (*dispatch.Dispatcher).StopAll
)

// loadConfig loads layered configuration and initializes logging from it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})
	return cfg, nil
}

// oneShot is the command-line counterpart of a session: a dispatcher with
// no push channel, printing notices to the terminal.
type oneShot struct {
	cfg        *config.Config
	registry   *registry.Registry
	dispatcher *dispatch.Dispatcher
}

func newOneShot(c *cli.Context) (*oneShot, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	out := c.App.Writer
	reg := registry.New()
	d := dispatch.New(dispatch.Deps{
		API:      backend.NewCircuitBreakerClient(&cfg.Backend),
		Registry: reg,
		Notifier: dispatch.NotifierFunc(func(n dispatch.Notice) {
			fmt.Fprintf(out, "[%s] %s\n", n.Level, n.Message)
		}),
	}, cfg.Batch.Delay)

	return &oneShot{cfg: cfg, registry: reg, dispatcher: d}, nil
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "Print the backend's camera list",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Value:   "table",
				Usage:   "Output format: table, json, yaml",
			},
		},
		Action: func(c *cli.Context) error {
			format := strings.ToLower(c.String("output"))
			switch format {
			case "table", "json", "yaml":
			default:
				return cli.Exit(fmt.Sprintf("unknown output format %q", format), 2)
			}

			s, err := newOneShot(c)
			if err != nil {
				return err
			}
			if err := s.dispatcher.Refresh(c.Context); err != nil {
				return cli.Exit(fmt.Sprintf("Failed to load cameras: %v", err), 1)
			}
			return writeCameras(c.App.Writer, format, s.registry.All())
		},
	}
}

func writeCameras(w io.Writer, format string, cams []models.Camera) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(models.CameraList{Cameras: cams})
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(map[string][]models.Camera{"cameras": cams}); err != nil {
			return err
		}
		return enc.Close()
	}

	view := render.Render(render.Inputs{Cameras: cams})
	if len(view.Cameras) == 0 {
		_, err := fmt.Fprintln(w, view.EmptyMessage)
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tLOCATION\tDIRECTION\tURL")
	for _, cam := range view.Cameras {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			cam.ID, cam.Name, cam.Status, cam.Location, cam.Direction, cam.URL)
	}
	return tw.Flush()
}

func addCommand() *cli.Command {
	return &cli.Command{
		Name:      "add",
		Usage:     "Register a new camera",
		ArgsUsage: " ",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Aliases: []string{"u"}, Usage: "RTSP URL of the camera"},
			&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "Display name (default: Camera N)"},
			&cli.StringFlag{Name: "location", Aliases: []string{"l"}, Usage: "Free-text location"},
			&cli.StringFlag{Name: "direction", Aliases: []string{"d"}, Usage: "Compass direction: N NE E SE S SW W NW"},
		},
		Action: func(c *cli.Context) error {
			s, err := newOneShot(c)
			if err != nil {
				return err
			}
			// The default name counts existing cameras.
			if err := s.dispatcher.Refresh(c.Context); err != nil {
				logging.Warn().Err(err).Msg("Could not load existing cameras")
			}

			res := s.dispatcher.AddCamera(c.Context, models.CameraSpec{
				Name:      c.String("name"),
				Location:  c.String("location"),
				Direction: models.Direction(strings.ToUpper(c.String("direction"))),
				RTSPURL:   c.String("url"),
			})
			return exitOnFailure(res)
		},
	}
}

func cameraCommand(name, usage string, op cameraOp) *cli.Command {
	return &cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: "CAMERA_ID",
		Action: func(c *cli.Context) error {
			id := strings.TrimSpace(c.Args().First())
			if id == "" || c.NArg() != 1 {
				return cli.Exit(fmt.Sprintf("usage: camwatch %s CAMERA_ID", name), 2)
			}

			s, err := newOneShot(c)
			if err != nil {
				return err
			}
			return exitOnFailure(op(s.dispatcher, c.Context, id))
		},
	}
}

func batchCommand(name, usage string, op batchOp) *cli.Command {
	return &cli.Command{
		Name:  name,
		Usage: usage,
		Action: func(c *cli.Context) error {
			s, err := newOneShot(c)
			if err != nil {
				return err
			}
			if err := s.dispatcher.Refresh(c.Context); err != nil {
				return cli.Exit(fmt.Sprintf("Failed to load cameras: %v", err), 1)
			}

			results := op(s.dispatcher, c.Context)
			failed := 0
			for _, r := range results {
				if !r.Success {
					failed++
				}
			}
			fmt.Fprintf(c.App.Writer, "%d of %d cameras succeeded\n", len(results)-failed, len(results))
			if failed > 0 {
				return cli.Exit("", 1)
			}
			return nil
		},
	}
}

func exitOnFailure(res dispatch.Result) error {
	if res.Success {
		return nil
	}
	// The notice already printed the message.
	return cli.Exit("", 1)
}
