// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianConcierge/pkg/extensions"
	"github.com/AleutianAI/AleutianConcierge/services/orchestrator/state"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// rejectingProvider denies every token, admin surface included.
type rejectingProvider struct{}

func (rejectingProvider) Validate(_ context.Context, _ string) (*extensions.AuthInfo, error) {
	return nil, extensions.ErrUnauthorized
}

func newRouter(opts extensions.ServiceOptions) *gin.Engine {
	opts.ApplyDefaults()
	router := gin.New()
	SetupRoutes(router, nil, state.NewMemoryStore(), nil, nil, nil, nil, opts)
	return router
}

func get(router *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHealthIsUnauthenticated(t *testing.T) {
	router := newRouter(extensions.ServiceOptions{AuthProvider: rejectingProvider{}})

	assert.Equal(t, http.StatusOK, get(router, "/health").Code)
}

func TestMetricsIsUnauthenticated(t *testing.T) {
	router := newRouter(extensions.ServiceOptions{AuthProvider: rejectingProvider{}})

	w := get(router, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Body.String())
}

func TestAdminRoutesRejectUnauthorized(t *testing.T) {
	router := newRouter(extensions.ServiceOptions{AuthProvider: rejectingProvider{}})

	assert.Equal(t, http.StatusUnauthorized, get(router, "/v1/conversations").Code)
}

func TestAdminRoutesAllowLocalDefault(t *testing.T) {
	// The default nop provider marks callers as admin, so a local
	// deployment gets the operator surface without configuration.
	router := newRouter(extensions.ServiceOptions{})

	assert.Equal(t, http.StatusOK, get(router, "/v1/conversations").Code)
}
