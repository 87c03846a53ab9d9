// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides data structures for the concierge orchestrator.
//
// This file contains the request and response types for the inbound message
// endpoint (POST /v1/messages). For conversation state types, see state.go.
package datatypes

import (
	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Constants for Security Compliance
// =============================================================================

const (
	// MaxMessageContentBytes is the maximum size of a single inbound message.
	// Unbounded message input mitigation.
	MaxMessageContentBytes = 32 * 1024 // 32KB

	// MaxTeamIDLength bounds the tenant identifier.
	MaxTeamIDLength = 128
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// messageValidate is the validator instance for message datatypes.
// Initialized in init() with custom validators.
var messageValidate *validator.Validate

func init() {
	messageValidate = validator.New()
	_ = messageValidate.RegisterValidation("maxbytes", validateMaxBytes)
}

// validateMaxBytes checks byte length (not rune count) so oversized payloads
// cannot slip past a rune-based max tag.
func validateMaxBytes(fl validator.FieldLevel) bool {
	content := fl.Field().String()
	return len(content) <= MaxMessageContentBytes
}

// =============================================================================
// Inbound Message Request
// =============================================================================

// MessageRequest represents an inbound conversational message.
//
// # Description
//
// MessageRequest is the body of POST /v1/messages. One of Phone or Email
// should identify the customer; when both are absent the conversation is
// keyed by team alone. UserConfirmation carries an out-of-band answer to a
// pending disambiguation question when the channel splits confirmation from
// free text (most channels leave it empty and answer inline in Message).
//
// # Validation
//
// Uses go-playground/validator:
//   - TeamID: required, 1-128 chars
//   - Message: required, max 32768 bytes
//   - Email: optional, must parse as an email address when present
type MessageRequest struct {
	TeamID           string `json:"team_id" binding:"required" validate:"required,min=1,max=128"`
	Message          string `json:"message" binding:"required" validate:"required,maxbytes"`
	Phone            string `json:"phone,omitempty" validate:"omitempty,max=32"`
	Email            string `json:"email,omitempty" validate:"omitempty,email"`
	UserConfirmation string `json:"user_confirmation,omitempty" validate:"omitempty,max=256"`
}

// Validate runs struct-level validation on the request.
func (r *MessageRequest) Validate() error {
	return messageValidate.Struct(r)
}

// =============================================================================
// Workflow Status
// =============================================================================

// WorkflowStatus classifies how a pipeline invocation ended.
type WorkflowStatus string

const (
	// WorkflowSuccess means a reply was produced and released.
	WorkflowSuccess WorkflowStatus = "success"

	// WorkflowEscalated means the reply was handed to a human and the
	// returned text is the sanitized copy.
	WorkflowEscalated WorkflowStatus = "escalated"

	// WorkflowError means the pipeline failed hard and the returned text
	// is a generic could-not-process message.
	WorkflowError WorkflowStatus = "error"
)

// =============================================================================
// Outbound Message Response
// =============================================================================

// MessageResponse is the body returned by POST /v1/messages.
//
// # Description
//
// Response carries the released (or sanitized) reply text. AgentUsed names
// the role-played agent template that produced the draft ("sales",
// "support", "greeting"). TicketID is set only when an escalation ticket
// was opened; ValidationIssues is set only when the guardrail flagged the
// draft.
type MessageResponse struct {
	Response         string            `json:"response"`
	WorkflowStatus   WorkflowStatus    `json:"workflow_status"`
	AgentUsed        string            `json:"agent_used"`
	NeedsHuman       bool              `json:"needs_human"`
	TicketID         string            `json:"ticket_id,omitempty"`
	ValidationIssues []ValidationIssue `json:"validation_issues,omitempty"`
}

// ErrorResponse is the generic error body for rejected requests.
type ErrorResponse struct {
	Error string `json:"error"`
}

// =============================================================================
// Product Ingestion Request (admin surface)
// =============================================================================

// ProductIngestRequest upserts one product document into the search index.
//
// Long descriptions are chunked server-side; the caller submits the full
// text in one request.
type ProductIngestRequest struct {
	TeamID      string   `json:"team_id" binding:"required" validate:"required,min=1,max=128"`
	ProductID   string   `json:"product_id" binding:"required" validate:"required,min=1,max=128"`
	Name        string   `json:"name" binding:"required" validate:"required,min=1,max=512"`
	Description string   `json:"description" validate:"omitempty,maxbytes"`
	Price       float64  `json:"price,omitempty" validate:"omitempty,gte=0"`
	Currency    string   `json:"currency,omitempty" validate:"omitempty,len=3"`
	Tags        []string `json:"tags,omitempty" validate:"omitempty,dive,max=64"`
}

// Validate runs struct-level validation on the ingestion request.
func (r *ProductIngestRequest) Validate() error {
	return messageValidate.Struct(r)
}
