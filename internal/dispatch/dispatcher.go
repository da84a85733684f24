// Camwatch - Live Camera Dashboard Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camwatch

/*
Package dispatch issues camera commands against the backend and reconciles
the replies into the registry and the push channel.

The registry is never updated optimistically. A command that the backend
accepts triggers a full resync (GET /api/cameras) and, for start/stop/remove,
the matching subscribe or unsubscribe on the push channel. A command that
fails leaves local state untouched.

Commands run one at a time. StartAll and StopAll walk the registry snapshot
taken when they are called, with a fixed delay between calls; a failure on
one camera is reported and the batch moves on. A batch cannot be aborted
except by shutting down the process.
*/
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tomtom215/camwatch/internal/backend"
	"github.com/tomtom215/camwatch/internal/logging"
	"github.com/tomtom215/camwatch/internal/metrics"
	"github.com/tomtom215/camwatch/internal/models"
	"github.com/tomtom215/camwatch/internal/registry"
	"github.com/tomtom215/camwatch/internal/validation"
)

// ErrInvalidSpec is returned by AddCamera when the spec is rejected locally.
var ErrInvalidSpec = errors.New("invalid camera spec")

// DefaultBatchDelay is the pause between calls in StartAll and StopAll.
const DefaultBatchDelay = 500 * time.Millisecond

// Subscriber is the outbound half of the push channel.
type Subscriber interface {
	Subscribe(id string) error
	Unsubscribe(id string) error
}

// RateForgetter drops delivery rate state for a camera.
type RateForgetter interface {
	Forget(id string)
}

// Result is the outcome of one command.
type Result struct {
	CameraID string `json:"camera_id,omitempty"`
	Success  bool   `json:"success"`
	Message  string `json:"message,omitempty"`
	Err      error  `json:"-"`
}

// Deps are the collaborators a Dispatcher drives.
type Deps struct {
	API       backend.API
	Registry  registry.ReadWriter
	Channel   Subscriber
	Estimator RateForgetter
	Notifier  Notifier
}

// Dispatcher runs camera commands. Safe for concurrent use; commands are
// serialized internally.
type Dispatcher struct {
	api        backend.API
	registry   registry.ReadWriter
	channel    Subscriber
	estimator  RateForgetter
	notifier   Notifier
	batchDelay time.Duration

	mu sync.Mutex
}

// New creates a Dispatcher. A nil Notifier logs notices; a nil Channel or
// Estimator is skipped.
func New(deps Deps, batchDelay time.Duration) *Dispatcher {
	if deps.Notifier == nil {
		deps.Notifier = LogNotifier{}
	}
	if batchDelay < 0 {
		batchDelay = DefaultBatchDelay
	}
	return &Dispatcher{
		api:        deps.API,
		registry:   deps.Registry,
		channel:    deps.Channel,
		estimator:  deps.Estimator,
		notifier:   deps.Notifier,
		batchDelay: batchDelay,
	}
}

// Refresh replaces the registry with the backend's current camera list.
func (d *Dispatcher) Refresh(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.resync(ctx)
}

// resync must be called with mu held.
func (d *Dispatcher) resync(ctx context.Context) error {
	cameras, err := d.api.ListCameras(ctx)
	if err != nil {
		return fmt.Errorf("failed to load cameras: %w", err)
	}
	d.registry.ReplaceAll(cameras)
	metrics.UpdateRegistryGauges(d.registry.Len(), len(d.registry.ActiveIDs()))
	return nil
}

// resyncAfter refreshes after an accepted command. A failed refresh does not
// change the command's outcome; the next resync corrects the registry.
func (d *Dispatcher) resyncAfter(ctx context.Context, op string) {
	if err := d.resync(ctx); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("command", op).Msg("Resync after command failed")
	}
}

// AddCamera registers a new camera. An empty name becomes "Camera N" where
// N is one more than the number of cameras currently known.
func (d *Dispatcher) AddCamera(ctx context.Context, spec models.CameraSpec) Result {
	ctx = logging.ContextWithNewCorrelationID(ctx)
	const op = "add"

	spec.RTSPURL = strings.TrimSpace(spec.RTSPURL)
	if spec.RTSPURL == "" {
		return d.reject(ctx, op, "", "Please enter RTSP URL", ErrInvalidSpec)
	}
	if verrs := validation.ValidateStruct(spec); verrs != nil {
		return d.reject(ctx, op, "", verrs.Error(), fmt.Errorf("%w: %w", ErrInvalidSpec, verrs))
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if strings.TrimSpace(spec.Name) == "" {
		spec.Name = fmt.Sprintf("Camera %d", d.registry.Len()+1)
	}

	res, err := d.api.AddCamera(ctx, spec)
	if err != nil {
		return d.reject(ctx, op, "", "Failed to add camera", err)
	}
	if !res.Success {
		return d.reject(ctx, op, res.CameraID, res.Error, nil)
	}

	d.resyncAfter(ctx, op)
	logging.Ctx(ctx).Info().Str("camera_id", res.CameraID).Str("name", spec.Name).Msg("Camera added")
	return d.accept(op, res.CameraID, LevelSuccess, "Camera added successfully")
}

// Start asks the backend to start id. On success the registry is resynced
// and a subscription is requested before the next command can run.
func (d *Dispatcher) Start(ctx context.Context, id string) Result {
	ctx = logging.ContextWithNewCorrelationID(ctx)
	const op = "start"

	d.mu.Lock()
	defer d.mu.Unlock()

	res, err := d.api.StartCamera(ctx, id)
	if err != nil {
		return d.reject(ctx, op, id, "Failed to start camera", err)
	}
	if !res.Success {
		return d.reject(ctx, op, id, res.Error, nil)
	}

	d.resyncAfter(ctx, op)
	d.subscribe(ctx, id)
	logging.Ctx(ctx).Info().Str("camera_id", id).Msg("Camera started")
	return d.accept(op, id, LevelSuccess, "Camera started")
}

// Stop asks the backend to stop id. On success the subscription is dropped
// and the registry resynced.
func (d *Dispatcher) Stop(ctx context.Context, id string) Result {
	ctx = logging.ContextWithNewCorrelationID(ctx)
	const op = "stop"

	d.mu.Lock()
	defer d.mu.Unlock()

	res, err := d.api.StopCamera(ctx, id)
	if err != nil {
		return d.reject(ctx, op, id, "Failed to stop camera", err)
	}
	if !res.Success {
		return d.reject(ctx, op, id, res.Error, nil)
	}

	d.unsubscribe(ctx, id)
	d.resyncAfter(ctx, op)
	logging.Ctx(ctx).Info().Str("camera_id", id).Msg("Camera stopped")
	return d.accept(op, id, LevelWarning, "Camera stopped")
}

// Remove deletes id from the backend and forgets its rate state.
func (d *Dispatcher) Remove(ctx context.Context, id string) Result {
	ctx = logging.ContextWithNewCorrelationID(ctx)
	const op = "remove"

	d.mu.Lock()
	defer d.mu.Unlock()

	res, err := d.api.RemoveCamera(ctx, id)
	if err != nil {
		return d.reject(ctx, op, id, "Failed to remove camera", err)
	}
	if !res.Success {
		return d.reject(ctx, op, id, res.Error, nil)
	}

	d.unsubscribe(ctx, id)
	if d.estimator != nil {
		d.estimator.Forget(id)
	}
	metrics.ForgetCamera(id)
	d.resyncAfter(ctx, op)
	logging.Ctx(ctx).Info().Str("camera_id", id).Msg("Camera removed")
	return d.accept(op, id, LevelWarning, "Camera removed")
}

// StartAll starts every camera in the registry, in registry order.
func (d *Dispatcher) StartAll(ctx context.Context) []Result {
	return d.batch(ctx, "start_all", d.Start)
}

// StopAll stops every camera in the registry, in registry order.
func (d *Dispatcher) StopAll(ctx context.Context) []Result {
	return d.batch(ctx, "stop_all", d.Stop)
}

// batch runs cmd for every id captured at call time, pausing batchDelay
// between calls. ctx should end only at process shutdown; the results
// collected so far are returned.
func (d *Dispatcher) batch(ctx context.Context, name string, cmd func(context.Context, string) Result) []Result {
	cameras := d.registry.All()
	ids := make([]string, len(cameras))
	for i, cam := range cameras {
		ids[i] = cam.ID
	}

	metrics.BatchesTotal.WithLabelValues(name).Inc()
	logging.Info().Str("batch", name).Int("cameras", len(ids)).Msg("Batch started")

	results := make([]Result, 0, len(ids))
	for i, id := range ids {
		if i > 0 && d.batchDelay > 0 {
			select {
			case <-time.After(d.batchDelay):
			case <-ctx.Done():
				logging.Warn().Str("batch", name).Int("completed", len(results)).Msg("Batch interrupted by shutdown")
				return results
			}
		}
		results = append(results, cmd(ctx, id))
	}

	failed := 0
	for _, r := range results {
		if !r.Success {
			failed++
		}
	}
	logging.Info().Str("batch", name).Int("cameras", len(ids)).Int("failed", failed).Msg("Batch finished")
	return results
}

func (d *Dispatcher) subscribe(ctx context.Context, id string) {
	if d.channel == nil {
		return
	}
	if err := d.channel.Subscribe(id); err != nil {
		logging.Ctx(ctx).Debug().Err(err).Str("camera_id", id).Msg("Subscribe deferred to reconnect")
	}
}

func (d *Dispatcher) unsubscribe(ctx context.Context, id string) {
	if d.channel == nil {
		return
	}
	if err := d.channel.Unsubscribe(id); err != nil {
		logging.Ctx(ctx).Debug().Err(err).Str("camera_id", id).Msg("Unsubscribe dropped")
	}
}

func (d *Dispatcher) accept(op, id string, level Level, message string) Result {
	metrics.RecordCommand(op, true)
	d.notifier.Notify(Notice{Level: level, Message: message})
	return Result{CameraID: id, Success: true, Message: message}
}

// reject reports a failed command. err is nil for application failures,
// where message is the backend's own text.
func (d *Dispatcher) reject(ctx context.Context, op, id, message string, err error) Result {
	metrics.RecordCommand(op, false)
	if message == "" {
		message = fmt.Sprintf("Failed to %s camera", op)
	}

	event := logging.Ctx(ctx).Warn().Str("command", op).Str("camera_id", id)
	if err != nil {
		event = event.Err(err)
	}
	event.Msg(message)

	d.notifier.Notify(Notice{Level: LevelError, Message: message})
	if err == nil {
		err = errors.New(message)
	}
	return Result{CameraID: id, Success: false, Message: message, Err: err}
}
