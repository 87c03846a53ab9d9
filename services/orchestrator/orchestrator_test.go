// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package orchestrator

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyConfigDefaults(t *testing.T) {
	cfg := applyConfigDefaults(Config{})

	assert.Equal(t, 12210, cfg.Port)
	assert.Equal(t, "aleutian-otel-collector:4317", cfg.OTelEndpoint)
	assert.Equal(t, 1*time.Hour, cfg.SweepInterval)
	require.NotNil(t, cfg.EscalateOnHardFailure)
	assert.True(t, *cfg.EscalateOnHardFailure)
}

func TestApplyConfigDefaultsPreservesExplicitValues(t *testing.T) {
	off := false
	cfg := applyConfigDefaults(Config{
		Port:                  9000,
		SweepInterval:         5 * time.Minute,
		EscalateOnHardFailure: &off,
	})

	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, 5*time.Minute, cfg.SweepInterval)
	assert.False(t, *cfg.EscalateOnHardFailure)
}

// New is exercised once per test process; the metrics registry is global
// and rejects duplicate registration.
func TestNewBuildsServableRouter(t *testing.T) {
	t.Setenv("OLLAMA_BASE_URL", "http://localhost:11434")

	svc, err := New(Config{GinMode: "test", LLMBackend: "ollama"}, nil)
	require.NoError(t, err)
	require.NotNil(t, svc.Router())

	w := httptest.NewRecorder()
	svc.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	// Unauthenticated surfaces only; /v1 routes are registered but the
	// message endpoint would call out to the model.
	w = httptest.NewRecorder()
	svc.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
