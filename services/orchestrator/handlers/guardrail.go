// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianConcierge/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianConcierge/services/orchestrator/enrich"
	"github.com/AleutianAI/AleutianConcierge/services/orchestrator/guardrail"
)

// CheckGuardrail returns a handler that dry-runs the guardrail batteries
// over an operator-supplied text.
//
// # Description
//
// Admin-only. Scans the text exactly as the pipeline would scan a drafted
// reply: PII battery, promise battery, promise arbitration against the
// authorized rules for the (optional) product. No conversation state is
// read or written, no escalation ticket is opened. Used to tune the rules
// file and to check a reply template before it ships.
func CheckGuardrail(validator *guardrail.Validator, rules enrich.RulesProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.GuardrailCheckRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			logAndError(c, http.StatusBadRequest, "invalid request body", err)
			return
		}

		if validator == nil {
			logAndError(c, http.StatusServiceUnavailable, "guardrail not configured", nil)
			return
		}

		var authorized []datatypes.AuthorizedRule
		if rules != nil {
			fetched, err := rules.AuthorizedRules(c.Request.Context(), req.ProductID)
			if err != nil {
				// Same degradation as the pipeline: an unavailable rules
				// source means every promise gets flagged.
				slog.Warn("Authorized-rules lookup failed during guardrail check", "error", err)
			} else {
				authorized = fetched
			}
		}

		verdict, err := validator.Validate(c.Request.Context(), req.Text, authorized)
		if err != nil {
			logAndError(c, http.StatusInternalServerError, "guardrail scan failed", err)
			return
		}

		c.JSON(http.StatusOK, datatypes.GuardrailCheckResult{
			Issues:        verdict.Issues,
			WouldEscalate: verdict.Escalate,
			SanitizedText: verdict.SanitizedReply,
		})
	}
}
