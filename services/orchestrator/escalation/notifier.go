// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package escalation hands conversations off to humans. Delivery is
// fire-and-acknowledge: a ticket id is always minted locally, and a
// failed webhook call only clears the webhook_called flag.
package escalation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/AleutianConcierge/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianConcierge/services/orchestrator/observability"
)

var tracer = otel.Tracer("concierge.escalation")

// Notifier raises an escalation ticket for a conversation.
type Notifier interface {
	Escalate(ctx context.Context, ticket datatypes.EscalationTicket) (datatypes.EscalationTicket, error)
}

// WebhookNotifier posts tickets to an operator-configured webhook.
type WebhookNotifier struct {
	httpClient *http.Client
	webhookURL string
	now        func() time.Time
}

var _ Notifier = (*WebhookNotifier)(nil)

// NewWebhookNotifier builds a notifier. An empty webhookURL is valid:
// tickets are then minted locally only, with WebhookCalled=false.
func NewWebhookNotifier(webhookURL string, timeout time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookNotifier{
		httpClient: &http.Client{Timeout: timeout},
		webhookURL: strings.TrimSpace(webhookURL),
		now:        time.Now,
	}
}

// Escalate stamps the ticket with an id and creation time, attempts
// webhook delivery, and returns the finalized ticket. The returned
// error reports delivery failure for logging; the ticket itself is
// valid either way.
func (n *WebhookNotifier) Escalate(ctx context.Context, ticket datatypes.EscalationTicket) (datatypes.EscalationTicket, error) {
	ctx, span := tracer.Start(ctx, "Escalate")
	defer span.End()

	ticket.TicketID = uuid.NewString()
	ticket.CreatedAt = n.now().UTC()
	ticket.WebhookCalled = false
	span.SetAttributes(
		attribute.String("ticket.id", ticket.TicketID),
		attribute.String("team.id", ticket.TeamID),
	)

	deliveryErr := n.deliver(ctx, &ticket)
	if deliveryErr != nil {
		slog.Warn("escalation webhook delivery failed, ticket remains locally valid",
			"ticket_id", ticket.TicketID, "error", deliveryErr)
	}
	observability.RecordEscalation(ticket.WebhookCalled)
	return ticket, deliveryErr
}

func (n *WebhookNotifier) deliver(ctx context.Context, ticket *datatypes.EscalationTicket) error {
	if n.webhookURL == "" {
		return nil
	}

	payload, err := json.Marshal(ticket)
	if err != nil {
		return fmt.Errorf("failed to marshal escalation ticket: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build escalation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("escalation webhook call failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("escalation webhook returned status %d", resp.StatusCode)
	}
	ticket.WebhookCalled = true
	return nil
}
