// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers contains the Gin HTTP handlers for the concierge API.
package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianConcierge/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianConcierge/services/orchestrator/gate"
	"github.com/AleutianAI/AleutianConcierge/services/orchestrator/services"
)

// HandleMessage is the main conversational endpoint, POST /v1/messages.
//
// # Description
//
// Binds and validates the message request, runs the pipeline, and maps
// the pipeline's rejection errors onto HTTP statuses:
//
//   - rate limit exceeded  → 429 with Retry-After
//   - security rejection   → 403
//   - invalid request body → 400
//
// Internal pipeline failures never surface as HTTP 5xx here; the pipeline
// reports them inside the response body as workflow_status "error".
func HandleMessage(pipeline *services.MessagePipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.MessageRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: "invalid request body"})
			return
		}

		resp, err := pipeline.Process(c.Request.Context(), &req)
		if err != nil {
			var rateErr *gate.RateLimitError
			var secErr *gate.SecurityError
			switch {
			case errors.As(err, &rateErr):
				c.Header("Retry-After", fmt.Sprintf("%.0f", rateErr.RetryAfter.Seconds()))
				c.JSON(http.StatusTooManyRequests, datatypes.ErrorResponse{Error: "rate limit exceeded"})
			case errors.As(err, &secErr):
				c.JSON(http.StatusForbidden, datatypes.ErrorResponse{Error: "request rejected"})
			default:
				c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: err.Error()})
			}
			return
		}

		c.JSON(http.StatusOK, resp)
	}
}

// HealthCheck reports liveness, GET /health.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func logAndError(c *gin.Context, status int, msg string, err error) {
	slog.Error(msg, "error", err)
	c.JSON(status, datatypes.ErrorResponse{Error: msg})
}
