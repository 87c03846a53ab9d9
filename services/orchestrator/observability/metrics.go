// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides metrics and instrumentation for the
// concierge pipeline.
//
// # Description
//
// This package implements Prometheus metrics for monitoring message
// processing. Metrics include:
//   - Request counters (by workflow status)
//   - Gate rejections (rate limit, security)
//   - Resolution outcomes (match, no candidates, ambiguous, confirmation)
//   - Guardrail findings and escalations
//   - Stage latency histograms
//
// # Integration
//
// Metrics are exposed via the /metrics endpoint. Use with Prometheus +
// Grafana for dashboards and alerting.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

// Namespace for all metrics
const metricsNamespace = "concierge"

// Subsystem for pipeline metrics
const pipelineSubsystem = "pipeline"

// PipelineMetrics holds all Prometheus metrics for message processing.
//
// # Description
//
// Provides counters and histograms for monitoring the resolution pipeline.
// Initialize once at startup via InitMetrics(); promauto panics on a second
// registration against the default registry.
//
// # Thread Safety
//
// All operations are thread-safe.
type PipelineMetrics struct {
	// MessagesTotal counts processed messages.
	// Labels: status (success, escalated, error)
	MessagesTotal *prometheus.CounterVec

	// GateRejectionsTotal counts requests stopped at the gate.
	// Labels: reason (rate_limit, injection, invalid_phone)
	GateRejectionsTotal *prometheus.CounterVec

	// ResolutionsTotal counts resolver outcomes.
	// Labels: outcome (match, no_candidates), ambiguous (true/false),
	// needs_confirmation (true/false)
	ResolutionsTotal *prometheus.CounterVec

	// PendingTransitionsTotal counts disambiguation transitions.
	// Labels: pending (single_confirm, multi_select, context_switch),
	// result (confirmed, rejected, indecisive, selected, new_question)
	PendingTransitionsTotal *prometheus.CounterVec

	// GuardrailIssuesTotal counts guardrail findings.
	// Labels: type (pii, unauthorized_promise, ...), severity
	GuardrailIssuesTotal *prometheus.CounterVec

	// EscalationsTotal counts escalation tickets.
	// Labels: webhook_called (true/false)
	EscalationsTotal *prometheus.CounterVec

	// StageDurationSeconds measures per-stage latency.
	// Labels: stage (gate, state_load, resolve, dialog, enrich, generate,
	// guardrail, state_save)
	StageDurationSeconds *prometheus.HistogramVec

	// PendingExpiredTotal counts pending objects cleared by TTL.
	// Labels: source (lazy, sweeper)
	PendingExpiredTotal *prometheus.CounterVec
}

// DefaultMetrics is the singleton instance of PipelineMetrics.
// Initialized by InitMetrics(); nil until then. Callers go through the
// record helpers below, which tolerate a nil singleton so unit tests do not
// have to touch the global registry.
var DefaultMetrics *PipelineMetrics

// InitMetrics initializes and registers the default metrics instance.
// Call once at startup; a second call panics on duplicate registration.
func InitMetrics() *PipelineMetrics {
	DefaultMetrics = &PipelineMetrics{
		MessagesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "messages_total",
				Help:      "Total processed messages by workflow status",
			},
			[]string{"status"},
		),

		GateRejectionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "gate_rejections_total",
				Help:      "Requests rejected by the rate-limit/security gate",
			},
			[]string{"reason"},
		),

		ResolutionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "resolutions_total",
				Help:      "Product resolution outcomes",
			},
			[]string{"outcome", "ambiguous", "needs_confirmation"},
		),

		PendingTransitionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "pending_transitions_total",
				Help:      "Disambiguation state machine transitions",
			},
			[]string{"pending", "result"},
		),

		GuardrailIssuesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "guardrail_issues_total",
				Help:      "Guardrail findings by type and severity",
			},
			[]string{"type", "severity"},
		),

		EscalationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "escalations_total",
				Help:      "Escalation tickets opened",
			},
			[]string{"webhook_called"},
		),

		StageDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "stage_duration_seconds",
				Help:      "Per-stage pipeline latency in seconds",
				Buckets:   []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"stage"},
		),

		PendingExpiredTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "pending_expired_total",
				Help:      "Pending disambiguation objects cleared by TTL",
			},
			[]string{"source"},
		),
	}
	return DefaultMetrics
}

// =============================================================================
// Record Helpers (nil-safe)
// =============================================================================

// RecordMessage increments the message counter for a workflow status.
func RecordMessage(status string) {
	if DefaultMetrics == nil {
		return
	}
	DefaultMetrics.MessagesTotal.WithLabelValues(status).Inc()
}

// RecordGateRejection increments the gate rejection counter.
func RecordGateRejection(reason string) {
	if DefaultMetrics == nil {
		return
	}
	DefaultMetrics.GateRejectionsTotal.WithLabelValues(reason).Inc()
}

// RecordResolution increments the resolution outcome counter.
func RecordResolution(outcome string, ambiguous, needsConfirmation bool) {
	if DefaultMetrics == nil {
		return
	}
	DefaultMetrics.ResolutionsTotal.
		WithLabelValues(outcome, boolLabel(ambiguous), boolLabel(needsConfirmation)).Inc()
}

// RecordPendingTransition increments the state machine transition counter.
func RecordPendingTransition(pending, result string) {
	if DefaultMetrics == nil {
		return
	}
	DefaultMetrics.PendingTransitionsTotal.WithLabelValues(pending, result).Inc()
}

// RecordGuardrailIssue increments the guardrail finding counter.
func RecordGuardrailIssue(issueType, severity string) {
	if DefaultMetrics == nil {
		return
	}
	DefaultMetrics.GuardrailIssuesTotal.WithLabelValues(issueType, severity).Inc()
}

// RecordEscalation increments the escalation counter.
func RecordEscalation(webhookCalled bool) {
	if DefaultMetrics == nil {
		return
	}
	DefaultMetrics.EscalationsTotal.WithLabelValues(boolLabel(webhookCalled)).Inc()
}

// ObserveStage records one stage latency sample.
func ObserveStage(stage string, seconds float64) {
	if DefaultMetrics == nil {
		return
	}
	DefaultMetrics.StageDurationSeconds.WithLabelValues(stage).Observe(seconds)
}

// RecordPendingExpired increments the TTL expiry counter.
func RecordPendingExpired(source string) {
	if DefaultMetrics == nil {
		return
	}
	DefaultMetrics.PendingExpiredTotal.WithLabelValues(source).Inc()
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
