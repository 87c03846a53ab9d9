// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import "time"

// =============================================================================
// Guardrail Types
// =============================================================================

// IssueType classifies a guardrail finding.
type IssueType string

const (
	IssuePII                 IssueType = "pii"
	IssueUnauthorizedPromise IssueType = "unauthorized_promise"
	IssueIrrelevant          IssueType = "irrelevant"
	IssueTone                IssueType = "tone"
	IssueHallucination       IssueType = "hallucination"
)

// IssueSeverity ranks a guardrail finding.
type IssueSeverity string

const (
	SeverityCritical IssueSeverity = "critical"
	SeverityHigh     IssueSeverity = "high"
	SeverityMedium   IssueSeverity = "medium"
	SeverityLow      IssueSeverity = "low"
)

// ValidationIssue is one finding against a drafted reply. Ephemeral;
// produced by the guardrail, surfaced in the response and the escalation
// ticket, never persisted with the conversation.
type ValidationIssue struct {
	Type        IssueType     `json:"type"`
	Severity    IssueSeverity `json:"severity"`
	Description string        `json:"description"`
}

// =============================================================================
// Operator Guardrail Check
// =============================================================================

// GuardrailCheckRequest is the operator dry-run request: scan a candidate
// reply text against the guardrail batteries without touching any
// conversation. ProductID is optional and scopes the authorized-rules
// lookup for promise arbitration.
type GuardrailCheckRequest struct {
	Text      string `json:"text" binding:"required"`
	ProductID string `json:"product_id"`
}

// GuardrailCheckResult mirrors the guardrail verdict: the findings, the
// escalation decision they would trigger, and the PII-masked copy.
type GuardrailCheckResult struct {
	Issues        []ValidationIssue `json:"issues"`
	WouldEscalate bool              `json:"would_escalate"`
	SanitizedText string            `json:"sanitized_text"`
}

// =============================================================================
// Escalation Ticket
// =============================================================================

// EscalationTicket is the structured payload handed to the human-handoff
// webhook. WebhookCalled records whether delivery succeeded; the ticket id
// is locally valid either way.
type EscalationTicket struct {
	TicketID        string            `json:"ticket_id"`
	TeamID          string            `json:"team_id"`
	ConversationKey string            `json:"conversation_key"`
	Reason          string            `json:"reason"`
	Issues          []ValidationIssue `json:"issues,omitempty"`
	SanitizedReply  string            `json:"sanitized_reply,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	WebhookCalled   bool              `json:"webhook_called"`
}
