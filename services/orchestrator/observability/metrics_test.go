// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

// ============================================================================
// Test Helper: Create isolated metrics for testing
// ============================================================================

// newTestMetrics creates a PipelineMetrics instance backed by a private
// registry. This avoids conflicts with the global Prometheus registry and
// allows parallel testing.
func newTestMetrics(t *testing.T) (*PipelineMetrics, *prometheus.Registry) {
	t.Helper()

	reg := prometheus.NewRegistry()

	m := &PipelineMetrics{
		MessagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "messages_total",
				Help:      "Total processed messages by workflow status",
			},
			[]string{"status"},
		),
		GateRejectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "gate_rejections_total",
				Help:      "Requests rejected by the rate-limit/security gate",
			},
			[]string{"reason"},
		),
		EscalationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "escalations_total",
				Help:      "Escalation tickets opened",
			},
			[]string{"webhook_called"},
		),
	}

	reg.MustRegister(m.MessagesTotal, m.GateRejectionsTotal, m.EscalationsTotal)
	return m, reg
}

func TestMessagesCounter(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.MessagesTotal.WithLabelValues("success").Inc()
	m.MessagesTotal.WithLabelValues("success").Inc()
	m.MessagesTotal.WithLabelValues("escalated").Inc()

	assert.Equal(t, float64(2), testutil.ToFloat64(m.MessagesTotal.WithLabelValues("success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.MessagesTotal.WithLabelValues("escalated")))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.MessagesTotal.WithLabelValues("error")))
}

func TestGateRejectionLabels(t *testing.T) {
	m, _ := newTestMetrics(t)

	for _, reason := range []string{"rate_limit", "injection", "invalid_phone", "rate_limit"} {
		m.GateRejectionsTotal.WithLabelValues(reason).Inc()
	}

	assert.Equal(t, float64(2), testutil.ToFloat64(m.GateRejectionsTotal.WithLabelValues("rate_limit")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.GateRejectionsTotal.WithLabelValues("injection")))
}

// Record helpers must be safe before InitMetrics has run.
func TestRecordHelpersNilSafe(t *testing.T) {
	saved := DefaultMetrics
	DefaultMetrics = nil
	defer func() { DefaultMetrics = saved }()

	assert.NotPanics(t, func() {
		RecordMessage("success")
		RecordGateRejection("rate_limit")
		RecordResolution("match", true, false)
		RecordPendingTransition("single_confirm", "confirmed")
		RecordGuardrailIssue("pii", "critical")
		RecordEscalation(false)
		ObserveStage("resolve", 0.05)
		RecordPendingExpired("lazy")
	})
}
