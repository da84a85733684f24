// Camwatch - Live Camera Dashboard Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camwatch

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	io_prometheus_client "github.com/prometheus/client_model/go"
)

func getCounterValue(counter prometheus.Counter) float64 {
	var m io_prometheus_client.Metric
	if err := counter.Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}

func getGaugeValue(gauge prometheus.Gauge) float64 {
	var m io_prometheus_client.Metric
	if err := gauge.Write(&m); err != nil {
		return 0
	}
	return m.GetGauge().GetValue()
}

func TestRecordCommand(t *testing.T) {
	okBefore := getCounterValue(CommandsTotal.WithLabelValues("start", "success"))
	failBefore := getCounterValue(CommandsTotal.WithLabelValues("start", "failure"))

	RecordCommand("start", true)
	RecordCommand("start", false)
	RecordCommand("start", false)

	if got := getCounterValue(CommandsTotal.WithLabelValues("start", "success")); got != okBefore+1 {
		t.Errorf("success counter = %v, want %v", got, okBefore+1)
	}
	if got := getCounterValue(CommandsTotal.WithLabelValues("start", "failure")); got != failBefore+2 {
		t.Errorf("failure counter = %v, want %v", got, failBefore+2)
	}
}

func TestRecordBackendRequest(t *testing.T) {
	before := getCounterValue(BackendRequestsTotal.WithLabelValues("list", "success"))

	RecordBackendRequest("list", "success", 25*time.Millisecond)

	if got := getCounterValue(BackendRequestsTotal.WithLabelValues("list", "success")); got != before+1 {
		t.Errorf("requests counter = %v, want %v", got, before+1)
	}
}

func TestUpdateRegistryGauges(t *testing.T) {
	UpdateRegistryGauges(5, 2)

	if got := getGaugeValue(RegistryCameras); got != 5 {
		t.Errorf("RegistryCameras = %v, want 5", got)
	}
	if got := getGaugeValue(RegistryActiveCameras); got != 2 {
		t.Errorf("RegistryActiveCameras = %v, want 2", got)
	}
}

func TestForgetCamera(t *testing.T) {
	DeliveryRate.WithLabelValues("cam_9").Set(12)
	CaptureRate.WithLabelValues("cam_9").Set(15)

	ForgetCamera("cam_9")

	if DeliveryRate.DeleteLabelValues("cam_9") {
		t.Error("delivery series should already be gone")
	}
	if CaptureRate.DeleteLabelValues("cam_9") {
		t.Error("capture series should already be gone")
	}
}
