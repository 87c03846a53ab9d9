// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package gate implements the per-conversation rate limiter and the
// deterministic message security screen.
//
// # Description
//
// The gate is the first pipeline stage. It enforces a sliding-window
// request cap per conversation key, rejects messages carrying known
// prompt-injection phrasing, and normalizes the supplied phone number.
// It makes no network calls; its only side effect is the in-memory
// timestamp ledger.
//
// # Thread Safety
//
// Safe for concurrent use. The read-prune-append on a key's ledger happens
// under one mutex, so concurrent requests for the same key cannot interleave
// mid-decision.
package gate

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianConcierge/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianConcierge/services/orchestrator/observability"
)

// =============================================================================
// Errors
// =============================================================================

// RateLimitError rejects a request that exceeded the sliding-window cap.
// No state beyond the ledger is mutated.
type RateLimitError struct {
	Key        string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return "rate limit exceeded for conversation key"
}

// SecurityReason classifies why the security screen rejected a message.
type SecurityReason string

const (
	ReasonInjection    SecurityReason = "injection"
	ReasonInvalidPhone SecurityReason = "invalid_phone"
)

// SecurityError rejects a request that failed the deterministic screen.
type SecurityError struct {
	Reason SecurityReason
}

func (e *SecurityError) Error() string {
	return "message rejected by security screen: " + string(e.Reason)
}

// =============================================================================
// Gate
// =============================================================================

// defaultInjectionMarkers is the fixed, case-insensitive substring screen.
// Matching is deliberately dumb; anything cleverer belongs in a model, and
// the gate must stay deterministic.
var defaultInjectionMarkers = []string{
	"ignore previous instructions",
	"ignore all previous instructions",
	"disregard your instructions",
	"you are now",
	"system prompt",
	"ignore as instrucoes anteriores",
	"ignore as instruções anteriores",
	"esqueca suas instrucoes",
	"esqueça suas instruções",
}

// Config controls the sliding window.
type Config struct {
	// Window is the sliding-window span. Default 10s.
	Window time.Duration

	// MaxRequests is the per-key cap within one window. Default 5.
	MaxRequests int

	// InjectionMarkers overrides the default screen list. Empty keeps the
	// default.
	InjectionMarkers []string
}

func applyConfigDefaults(cfg Config) Config {
	if cfg.Window <= 0 {
		cfg.Window = 10 * time.Second
	}
	if cfg.MaxRequests <= 0 {
		cfg.MaxRequests = 5
	}
	if len(cfg.InjectionMarkers) == 0 {
		cfg.InjectionMarkers = defaultInjectionMarkers
	}
	return cfg
}

// Sanitized is the gate's accepted output.
type Sanitized struct {
	Message string
	// Phone is the digits-only phone, empty when none was supplied.
	Phone string
}

// Gate is the rate-limit and security screen service. Construct once per
// process with New and inject it into the pipeline.
type Gate struct {
	cfg Config
	now func() time.Time

	mu     sync.Mutex
	ledger map[string][]time.Time
}

// New creates a Gate with defaults applied.
func New(cfg Config) *Gate {
	return &Gate{
		cfg:    applyConfigDefaults(cfg),
		now:    time.Now,
		ledger: make(map[string][]time.Time),
	}
}

// Check validates one inbound request.
//
// # Description
//
// Runs the sliding-window rate limit for the conversation key, then the
// message screen. Returns the trimmed message and normalized phone on
// success; a *RateLimitError or *SecurityError otherwise. A rejected
// request still consumes no ledger slot beyond the rate-limit record
// itself.
//
// # Inputs
//
//   - key: Conversation key the window is scoped to.
//   - message: Raw inbound text.
//   - phone: Raw phone as supplied, or empty when the channel has none.
//
// # Outputs
//
//   - Sanitized: Trimmed message plus digits-only phone.
//   - error: *RateLimitError, *SecurityError, or nil.
func (g *Gate) Check(key, message, phone string) (Sanitized, error) {
	if err := g.allow(key); err != nil {
		observability.RecordGateRejection("rate_limit")
		slog.Warn("Rate limit exceeded", "key", key)
		return Sanitized{}, err
	}

	msg := strings.TrimSpace(message)
	lower := strings.ToLower(msg)
	for _, marker := range g.cfg.InjectionMarkers {
		if strings.Contains(lower, marker) {
			observability.RecordGateRejection("injection")
			slog.Warn("Injection marker in message", "key", key)
			return Sanitized{}, &SecurityError{Reason: ReasonInjection}
		}
	}

	normalized := ""
	if phone != "" {
		normalized = datatypes.NormalizePhone(phone)
		if normalized == "" {
			observability.RecordGateRejection("invalid_phone")
			return Sanitized{}, &SecurityError{Reason: ReasonInvalidPhone}
		}
	}

	return Sanitized{Message: msg, Phone: normalized}, nil
}

// allow runs the sliding-window check and records the request timestamp.
// The prune-count-append sequence is atomic under the ledger mutex.
func (g *Gate) allow(key string) error {
	now := g.now()
	cutoff := now.Add(-g.cfg.Window)

	g.mu.Lock()
	defer g.mu.Unlock()

	stamps := g.ledger[key]
	kept := stamps[:0]
	for _, ts := range stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= g.cfg.MaxRequests {
		g.ledger[key] = kept
		retry := g.cfg.Window - now.Sub(kept[0])
		if retry < 0 {
			retry = 0
		}
		return &RateLimitError{Key: key, RetryAfter: retry}
	}

	g.ledger[key] = append(kept, now)
	return nil
}

// Reset drops the ledger for one key. Used by the operator reset surface.
func (g *Gate) Reset(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.ledger, key)
}
