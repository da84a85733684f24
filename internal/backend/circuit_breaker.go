// Camwatch - Live Camera Dashboard Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camwatch

package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/camwatch/internal/config"
	"github.com/tomtom215/camwatch/internal/logging"
	"github.com/tomtom215/camwatch/internal/metrics"
	"github.com/tomtom215/camwatch/internal/models"
)

var _ API = (*CircuitBreakerClient)(nil)

// CircuitBreakerClient wraps Client with a circuit breaker.
// Only transport failures count against the breaker; a backend that answers
// "no" is healthy.
type CircuitBreakerClient struct {
	client *Client
	cb     *gobreaker.CircuitBreaker[interface{}]
	name   string
}

// NewCircuitBreakerClient creates a breaker-guarded client from cfg.
func NewCircuitBreakerClient(cfg *config.BackendConfig) *CircuitBreakerClient {
	return WrapClient(NewClient(cfg.URL, cfg.Timeout), cfg.Breaker)
}

// WrapClient puts an existing client behind a breaker tuned by bc.
func WrapClient(client *Client, bc config.BreakerConfig) *CircuitBreakerClient {
	cbName := "camera-backend"

	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0)
	metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(cbName).Set(0)

	minRequests := bc.MinRequests
	failureRatio := bc.FailureRatio

	cb := gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: bc.MaxRequests,
		Interval:    bc.Interval,
		Timeout:     bc.Timeout,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < minRequests {
				return false
			}

			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			shouldTrip := ratio >= failureRatio

			if shouldTrip {
				logging.Warn().Uint32("failures", counts.TotalFailures).Float64("failure_rate", ratio*100).Msg("[CIRCUIT BREAKER] Opening circuit")
			}

			return shouldTrip
		},

		IsSuccessful: func(err error) bool {
			var apiErr *APIError
			return err == nil || errors.As(err, &apiErr)
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr := stateToString(from)
			toStr := stateToString(to)

			logging.Info().Str("from", fromStr).Str("to", toStr).Msg("[CIRCUIT BREAKER] State transition")

			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()

			if to == gobreaker.StateClosed {
				metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)
			}
		},
	})

	return &CircuitBreakerClient{
		client: client,
		cb:     cb,
		name:   cbName,
	}
}

// State returns the breaker state as a string (closed, half-open, open).
func (cbc *CircuitBreakerClient) State() string {
	return stateToString(cbc.cb.State())
}

// execute runs fn under the breaker and records request metrics for op.
func (cbc *CircuitBreakerClient) execute(op string, fn func() (interface{}, error)) (interface{}, error) {
	start := time.Now()
	result, err := cbc.cb.Execute(fn)
	elapsed := time.Since(start)

	if err != nil {
		var apiErr *APIError
		switch {
		case errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests):
			metrics.CircuitBreakerRequests.WithLabelValues(cbc.name, "rejected").Inc()
			metrics.RecordBackendRequest(op, "rejected", elapsed)
			logging.Warn().Err(err).Str("operation", op).Msg("[CIRCUIT BREAKER] Request rejected")
			return nil, fmt.Errorf("%w: %s: %w", ErrTransport, op, err)
		case errors.As(err, &apiErr):
			metrics.CircuitBreakerRequests.WithLabelValues(cbc.name, "success").Inc()
			metrics.RecordBackendRequest(op, "app_error", elapsed)
		default:
			metrics.CircuitBreakerRequests.WithLabelValues(cbc.name, "failure").Inc()
			metrics.RecordBackendRequest(op, "transport_error", elapsed)
			counts := cbc.cb.Counts()
			metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(cbc.name).Set(float64(counts.ConsecutiveFailures))
		}
		return nil, err
	}

	metrics.CircuitBreakerRequests.WithLabelValues(cbc.name, "success").Inc()
	metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(cbc.name).Set(0)
	if res, ok := result.(*models.CommandResult); ok && !res.Success {
		metrics.RecordBackendRequest(op, "app_error", elapsed)
	} else {
		metrics.RecordBackendRequest(op, "success", elapsed)
	}

	return result, nil
}

// castResult safely type-casts the circuit breaker result.
func castResult[T any](result interface{}, err error) (*T, error) {
	if err != nil {
		return nil, err
	}
	typed, ok := result.(*T)
	if !ok {
		return nil, fmt.Errorf("circuit breaker: unexpected result type %T", result)
	}
	return typed, nil
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// ListCameras fetches the camera snapshot with circuit breaker protection.
func (cbc *CircuitBreakerClient) ListCameras(ctx context.Context) ([]models.Camera, error) {
	list, err := castResult[[]models.Camera](cbc.execute("list_cameras", func() (interface{}, error) {
		cams, err := cbc.client.ListCameras(ctx)
		if err != nil {
			return nil, err
		}
		return &cams, nil
	}))
	if err != nil {
		return nil, err
	}
	return *list, nil
}

// AddCamera registers a camera with circuit breaker protection.
func (cbc *CircuitBreakerClient) AddCamera(ctx context.Context, spec models.CameraSpec) (*models.CommandResult, error) {
	return castResult[models.CommandResult](cbc.execute("add_camera", func() (interface{}, error) {
		return cbc.client.AddCamera(ctx, spec)
	}))
}

// StartCamera starts a camera with circuit breaker protection.
func (cbc *CircuitBreakerClient) StartCamera(ctx context.Context, id string) (*models.CommandResult, error) {
	return castResult[models.CommandResult](cbc.execute("start_camera", func() (interface{}, error) {
		return cbc.client.StartCamera(ctx, id)
	}))
}

// StopCamera stops a camera with circuit breaker protection.
func (cbc *CircuitBreakerClient) StopCamera(ctx context.Context, id string) (*models.CommandResult, error) {
	return castResult[models.CommandResult](cbc.execute("stop_camera", func() (interface{}, error) {
		return cbc.client.StopCamera(ctx, id)
	}))
}

// RemoveCamera removes a camera with circuit breaker protection.
func (cbc *CircuitBreakerClient) RemoveCamera(ctx context.Context, id string) (*models.CommandResult, error) {
	return castResult[models.CommandResult](cbc.execute("remove_camera", func() (interface{}, error) {
		return cbc.client.RemoveCamera(ctx, id)
	}))
}
