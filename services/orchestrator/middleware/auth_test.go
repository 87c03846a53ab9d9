// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianConcierge/pkg/extensions"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type rejectingProvider struct{}

func (rejectingProvider) Validate(_ context.Context, token string) (*extensions.AuthInfo, error) {
	if token == "good-token" {
		return &extensions.AuthInfo{UserID: "u1"}, nil
	}
	return nil, fmt.Errorf("bad token: %w", extensions.ErrUnauthorized)
}

type failingProvider struct{}

func (failingProvider) Validate(_ context.Context, _ string) (*extensions.AuthInfo, error) {
	return nil, errors.New("identity service down")
}

func setupRouter(provider extensions.AuthProvider) *gin.Engine {
	router := gin.New()
	router.Use(AuthMiddleware(provider))
	router.GET("/probe", func(c *gin.Context) {
		info := GetAuthInfo(c)
		c.JSON(http.StatusOK, gin.H{"user_id": info.UserID})
	})
	router.GET("/admin", RequireAdmin(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return router
}

func TestNopProviderAllowsBareRequests(t *testing.T) {
	router := setupRouter(&extensions.NopAuthProvider{})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/probe", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "local-user")
}

func TestRejectedTokenIs401(t *testing.T) {
	router := setupRouter(rejectingProvider{})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/probe", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestValidTokenPasses(t *testing.T) {
	router := setupRouter(rejectingProvider{})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/probe", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "u1")
}

func TestProviderFailureIs503(t *testing.T) {
	router := setupRouter(failingProvider{})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/probe", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRequireAdminBlocksNonAdmins(t *testing.T) {
	router := setupRouter(rejectingProvider{})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/admin", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequireAdminAllowsAdmins(t *testing.T) {
	router := setupRouter(&extensions.NopAuthProvider{})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/admin", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"", ""},
		{"Bearer abc", "abc"},
		{"bearer abc", "abc"},
		{"Basic abc", ""},
		{"Bearer", ""},
		{"Bearer  spaced ", "spaced"},
	}
	for _, tt := range tests {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request, _ = http.NewRequest("GET", "/", nil)
		if tt.header != "" {
			c.Request.Header.Set("Authorization", tt.header)
		}
		assert.Equal(t, tt.want, extractBearerToken(c), "header %q", tt.header)
	}
}
