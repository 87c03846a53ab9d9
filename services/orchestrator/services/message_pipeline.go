// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package services provides business logic services for the orchestrator.
//
// This package contains service structs that encapsulate business logic,
// separating it from HTTP handlers. Services are responsible for:
//   - Sequencing the message pipeline (gate, state, resolution,
//     disambiguation, enrichment, reply generation, guardrail)
//   - Applying business rules and converting component failures into the
//     documented degraded behavior
//   - Managing escalation hand-offs
//
// Services are designed to be:
//   - Testable: Dependencies are injected via constructors
//   - Composable: Services can call other services
//   - Traceable: All methods accept context for distributed tracing
package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianConcierge/services/llm"
	"github.com/AleutianAI/AleutianConcierge/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianConcierge/services/orchestrator/dialog"
	"github.com/AleutianAI/AleutianConcierge/services/orchestrator/enrich"
	"github.com/AleutianAI/AleutianConcierge/services/orchestrator/escalation"
	"github.com/AleutianAI/AleutianConcierge/services/orchestrator/gate"
	"github.com/AleutianAI/AleutianConcierge/services/orchestrator/guardrail"
	"github.com/AleutianAI/AleutianConcierge/services/orchestrator/observability"
	"github.com/AleutianAI/AleutianConcierge/services/orchestrator/resolver"
	"github.com/AleutianAI/AleutianConcierge/services/orchestrator/state"
)

// pipelineTracer is the OpenTelemetry tracer for MessagePipeline operations.
var pipelineTracer = otel.Tracer("concierge.orchestrator.services.pipeline")

const genericFailureReply = "Desculpe, não consegui processar sua mensagem agora. Pode tentar de novo em instantes?"

// greetingMarkers short-circuit the pipeline before any state or search
// work. Checked against the whole (trimmed, lowercased) message, so "bom
// dia, quanto custa o curso?" is NOT a greeting.
var greetingMarkers = []string{
	"oi", "olá", "ola", "bom dia", "boa tarde", "boa noite", "tudo bem",
	"hello", "hi", "hey", "good morning", "good afternoon",
}

// Config adjusts pipeline-wide knobs.
type Config struct {
	// StageTimeout bounds each external stage (oracles, search, reply
	// generation). Defaults to 30s.
	StageTimeout time.Duration

	// EscalateOnHardFailure opens a ticket when the pipeline fails hard,
	// so a human sees conversations the system could not serve.
	EscalateOnHardFailure bool
}

func applyConfigDefaults(cfg *Config) {
	if cfg.StageTimeout <= 0 {
		cfg.StageTimeout = 30 * time.Second
	}
}

// MessagePipeline sequences one inbound customer message end to end.
//
// # Description
//
// The flow is: security gate → greeting short-circuit → conversation
// state load (with lazy pending expiry) → disambiguation branch when a
// pending question is outstanding, otherwise intent classification and
// product resolution → context enrichment → reply generation → guardrail
// validation → release or escalate.
//
// The pipeline is stateless between calls; all conversation state lives
// in the injected store, read then written once per request. Concurrent
// messages for the same conversation key can clobber each other's
// pending object; the gate's per-key rate limit makes that window small
// but it is an accepted limitation, not a guarantee.
//
// # Thread Safety
//
// Safe for concurrent use.
type MessagePipeline struct {
	gate      *gate.Gate
	store     state.ConversationStore
	resolver  *resolver.Resolver
	machine   *dialog.Machine
	enricher  *enrich.Enricher
	validator *guardrail.Validator
	notifier  escalation.Notifier
	customer  enrich.CustomerClient
	intents   llm.IntentOracle
	replies   llm.ReplyGenerator
	cfg       Config
	now       func() time.Time
}

// NewMessagePipeline wires the pipeline. customer and notifier may be
// nil; their stages then degrade the same way a transport failure would.
func NewMessagePipeline(
	g *gate.Gate,
	store state.ConversationStore,
	res *resolver.Resolver,
	machine *dialog.Machine,
	enricher *enrich.Enricher,
	validator *guardrail.Validator,
	notifier escalation.Notifier,
	customer enrich.CustomerClient,
	intents llm.IntentOracle,
	replies llm.ReplyGenerator,
	cfg Config,
) *MessagePipeline {
	applyConfigDefaults(&cfg)
	return &MessagePipeline{
		gate:      g,
		store:     store,
		resolver:  res,
		machine:   machine,
		enricher:  enricher,
		validator: validator,
		notifier:  notifier,
		customer:  customer,
		intents:   intents,
		replies:   replies,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Process handles one inbound message end-to-end.
//
// # Outputs
//
//   - *datatypes.MessageResponse: Always non-nil on a nil error. Hard
//     internal failures are reported inside the response as
//     workflow_status "error" with a generic reply, never as a Go error.
//   - error: Non-nil only for request rejection: validation failure,
//     *gate.RateLimitError, or *gate.SecurityError. The HTTP layer maps
//     these to 400/429/403.
func (p *MessagePipeline) Process(ctx context.Context, req *datatypes.MessageRequest) (*datatypes.MessageResponse, error) {
	ctx, span := pipelineTracer.Start(ctx, "MessagePipeline.Process")
	defer span.End()

	if err := req.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation failed")
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	key := datatypes.ConversationKey(req.TeamID, req.Phone, req.Email)
	span.SetAttributes(
		attribute.String("team.id", req.TeamID),
		attribute.String("conversation.key", key),
	)

	// Stage: gate.
	start := p.now()
	sanitized, err := p.gate.Check(key, req.Message, req.Phone)
	observability.ObserveStage("gate", p.now().Sub(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "gate rejection")
		return nil, err
	}

	// Greeting short-circuit: no state load, no search.
	if isGreeting(sanitized.Message) {
		return p.greet(ctx, key, req.TeamID, sanitized.Message), nil
	}

	st, err := state.LoadOrCreate(ctx, p.store, key, req.TeamID)
	if err != nil {
		slog.Error("conversation state load failed", "key", key, "error", err)
		span.RecordError(err)
		return p.hardFailure(ctx, key, req.TeamID, "state load failed"), nil
	}
	if st.ExpirePending(p.now()) {
		observability.RecordPendingExpired("lazy")
	}

	resp := p.processTurn(ctx, st, req, sanitized)

	if err := p.store.Save(ctx, st); err != nil {
		// The reply was already produced; losing one state write is
		// preferable to failing the turn.
		slog.Error("conversation state save failed", "key", key, "error", err)
		span.RecordError(err)
	}

	observability.RecordMessage(string(resp.WorkflowStatus))
	span.SetAttributes(attribute.String("workflow.status", string(resp.WorkflowStatus)))
	return resp, nil
}

// processTurn runs everything between state load and state save.
func (p *MessagePipeline) processTurn(ctx context.Context, st *datatypes.ConversationState, req *datatypes.MessageRequest, sanitized gate.Sanitized) *datatypes.MessageResponse {
	// An out-of-band confirmation answers the pending question; the free
	// text message answers it inline otherwise.
	replyText := sanitized.Message
	if req.UserConfirmation != "" {
		replyText = req.UserConfirmation
	}

	if st.HasPending() {
		resp, done := p.handlePending(ctx, st, replyText, sanitized.Phone)
		if done {
			return resp
		}
		// A rejected confirmation or a brand-new question falls through
		// to normal resolution of the original message.
	}

	return p.resolveAndReply(ctx, st, sanitized)
}

// handlePending drives the disambiguation machine. The second return is
// false when the turn should continue through normal resolution.
func (p *MessagePipeline) handlePending(ctx context.Context, st *datatypes.ConversationState, replyText, phone string) (*datatypes.MessageResponse, bool) {
	// The multi-select holds the question the customer originally asked;
	// capture it before the machine clears the pending object, so the
	// eventual reply answers that question rather than the bare "2".
	var originalMessage string
	if st.PendingMultiSelect != nil {
		originalMessage = st.PendingMultiSelect.OriginalMessage
	}

	start := p.now()
	dctx, cancel := context.WithTimeout(ctx, p.cfg.StageTimeout)
	defer cancel()
	outcome, err := p.machine.HandleReply(dctx, st, replyText)
	observability.ObserveStage("dialog", p.now().Sub(start).Seconds())
	if err != nil {
		// No pending object despite HasPending is a programming error;
		// treat the message as a fresh turn.
		slog.Error("disambiguation dispatch failed", "key", st.Key, "error", err)
		return nil, false
	}

	switch outcome.Kind {
	case dialog.OutcomeConfirmed, dialog.OutcomeSelected:
		message := replyText
		if outcome.Kind == dialog.OutcomeSelected && originalMessage != "" {
			message = originalMessage
		}
		return p.settleProduct(ctx, st, outcome, message, phone), true

	case dialog.OutcomeIndecisive:
		// Re-ask the same question verbatim.
		return &datatypes.MessageResponse{
			Response:       outcome.Question,
			WorkflowStatus: datatypes.WorkflowSuccess,
			AgentUsed:      string(agentForState(st)),
		}, true

	case dialog.OutcomeRejected:
		if outcome.ProductID != "" {
			// A rejected context switch keeps the conversation on the
			// from-product. Falling through would re-resolve the "no"
			// itself and re-arm the identical switch question.
			return p.settleProduct(ctx, st, outcome, replyText, phone), true
		}
		return nil, false

	case dialog.OutcomeNewQuestion:
		return nil, false
	}
	return nil, false
}

// settleProduct applies an outcome's product and mode to the state and
// runs the enrichment-and-reply tail for it.
func (p *MessagePipeline) settleProduct(ctx context.Context, st *datatypes.ConversationState, outcome dialog.Outcome, message, phone string) *datatypes.MessageResponse {
	st.SetCurrentProduct(outcome.ProductID, p.now())
	if outcome.Mode == datatypes.ModeSupport {
		now := p.now().UTC()
		st.ActiveSupportProductID = outcome.ProductID
		st.SupportModeSince = &now
	} else if outcome.Mode == datatypes.ModeSales {
		st.ActiveSupportProductID = ""
		st.SupportModeSince = nil
	}
	return p.enrichAndReply(ctx, st, message, phone, outcome.ProductID, outcome.ProductName)
}

// resolveAndReply is the fresh-resolution path: intent, search, thresholds,
// history arming, then enrichment and generation.
func (p *MessagePipeline) resolveAndReply(ctx context.Context, st *datatypes.ConversationState, sanitized gate.Sanitized) *datatypes.MessageResponse {
	intent := p.classifyIntent(ctx, sanitized.Message)
	if intent.Intent != "" {
		st.LastIntent = intent.Intent
	}

	events := p.fetchEvents(ctx, st.TeamID, sanitized.Phone)
	historical := make(map[string]bool, len(events))
	for _, e := range events {
		historical[e.ProductID] = true
	}

	start := p.now()
	rctx, cancel := context.WithTimeout(ctx, p.cfg.StageTimeout)
	defer cancel()
	resolution, err := p.resolver.Resolve(rctx, resolver.Query{
		Message:              sanitized.Message,
		TeamID:               st.TeamID,
		HistoricalProducts:   historical,
		CurrentProductID:     st.CurrentProductID,
		IntentConfidence:     intent.Confidence,
		ExplicitProductNamed: intent.ExplicitProductName != "",
	})
	observability.ObserveStage("resolve", p.now().Sub(start).Seconds())
	if err != nil {
		slog.Error("product resolution failed", "key", st.Key, "error", err)
		return p.hardFailure(ctx, st.Key, st.TeamID, "resolution failed")
	}

	if resolution.Kind == datatypes.ResolutionNoCandidates {
		if question, armed := p.armFromEvents(st, events, sanitized.Message); armed {
			return question
		}
		return p.hardFailure(ctx, st.Key, st.TeamID, "no product candidates")
	}

	if resolution.IsAmbiguous || resolution.NeedsConfirmation {
		if question, armed := p.armFromEvents(st, events, sanitized.Message); armed {
			return question
		}
		// No history to lean on: double-check the best match directly.
		st.SetPendingConfirmation(&datatypes.PendingProductConfirmation{
			SuggestedProductID:   resolution.Best.ProductID,
			SuggestedProductName: resolution.Best.Name,
			Reason:               "low-confidence resolution",
			Timestamp:            p.now().UTC(),
		})
		return &datatypes.MessageResponse{
			Response:       dialog.ConfirmationQuestion(st.PendingConfirmation),
			WorkflowStatus: datatypes.WorkflowSuccess,
			AgentUsed:      string(agentForState(st)),
		}
	}

	// Confident match. A support conversation pivoting to a different
	// product asks before switching context.
	if st.ActiveSupportProductID != "" && resolution.Best.ProductID != st.ActiveSupportProductID {
		// State stores product ids, not display names, so the question
		// names the support product by its id on the from side.
		question := dialog.ArmContextSwitch(st,
			st.ActiveSupportProductID, st.ActiveSupportProductID, datatypes.ModeSupport,
			resolution.Best.ProductID, resolution.Best.Name, datatypes.ModeSales,
			p.now(),
		)
		return &datatypes.MessageResponse{
			Response:       question,
			WorkflowStatus: datatypes.WorkflowSuccess,
			AgentUsed:      string(llm.AgentSupport),
		}
	}

	st.SetCurrentProduct(resolution.Best.ProductID, p.now())
	return p.enrichAndReply(ctx, st, sanitized.Message, sanitized.Phone, resolution.Best.ProductID, resolution.Best.Name)
}

// armFromEvents arms a history-driven pending question when the customer
// has platform events to disambiguate against.
func (p *MessagePipeline) armFromEvents(st *datatypes.ConversationState, events []enrich.HistoricalEvent, message string) (*datatypes.MessageResponse, bool) {
	products := make([]dialog.HistoricalProduct, 0, len(events))
	seen := make(map[string]bool, len(events))
	for _, e := range events {
		if seen[e.ProductID] {
			continue
		}
		seen[e.ProductID] = true
		products = append(products, dialog.HistoricalProduct{
			ProductID:   e.ProductID,
			ProductName: e.ProductName,
			EventType:   e.EventType,
		})
	}

	question, armed := dialog.ArmFromHistory(st, products, message, st.LastIntent, p.now())
	if !armed {
		return nil, false
	}
	return &datatypes.MessageResponse{
		Response:       question,
		WorkflowStatus: datatypes.WorkflowSuccess,
		AgentUsed:      string(agentForState(st)),
	}, true
}

// enrichAndReply runs enrichment, generation and the guardrail for a
// settled product.
func (p *MessagePipeline) enrichAndReply(ctx context.Context, st *datatypes.ConversationState, message, phone, productID, productName string) *datatypes.MessageResponse {
	mode := datatypes.ModeSales
	if st.PurchasedProducts[productID] || st.ActiveSupportProductID == productID {
		mode = datatypes.ModeSupport
	}

	start := p.now()
	enriched, err := p.enricher.Enrich(ctx, enrich.Request{
		TeamID:      st.TeamID,
		Phone:       phone,
		Message:     message,
		ProductID:   productID,
		ProductName: productName,
		Mode:        mode,
	})
	observability.ObserveStage("enrich", p.now().Sub(start).Seconds())
	if err != nil {
		slog.Error("enrichment failed", "key", st.Key, "error", err)
		return p.hardFailure(ctx, st.Key, st.TeamID, "enrichment failed")
	}

	// Opportunistic purchase-cache refresh.
	if len(enriched.PurchasedProducts) > 0 {
		st.PurchasedProducts = make(map[string]bool, len(enriched.PurchasedProducts))
		for _, id := range enriched.PurchasedProducts {
			st.PurchasedProducts[id] = true
		}
	}
	if enriched.Ownership == datatypes.OwnershipOwner && mode == datatypes.ModeSales {
		// The customer already owns the product they asked about; serve
		// them as support from here on.
		mode = datatypes.ModeSupport
		now := p.now().UTC()
		st.ActiveSupportProductID = productID
		st.SupportModeSince = &now
	}

	agent := llm.AgentSales
	if mode == datatypes.ModeSupport {
		agent = llm.AgentSupport
	}

	ruleTexts := make([]string, 0, len(enriched.Rules))
	for _, r := range enriched.Rules {
		ruleTexts = append(ruleTexts, fmt.Sprintf("[%s] %s", r.Category, r.Description))
	}

	start = p.now()
	gctx, cancel := context.WithTimeout(ctx, p.cfg.StageTimeout)
	defer cancel()
	draft, err := p.replies.GenerateReply(gctx, agent, message, llm.ReplyContext{
		ProductName:      productName,
		ProductMetadata:  enriched.Metadata,
		AuthorizedRules:  ruleTexts,
		OwnershipStatus:  string(enriched.Ownership),
		StrategyGuidance: enriched.Strategy.Guidance,
	})
	observability.ObserveStage("generate", p.now().Sub(start).Seconds())
	if err != nil {
		slog.Error("reply generation failed", "key", st.Key, "error", err)
		return p.hardFailure(ctx, st.Key, st.TeamID, "reply generation failed")
	}

	return p.release(ctx, st, agent, draft, enriched.Rules)
}

// release runs the guardrail and either returns the reply or escalates.
func (p *MessagePipeline) release(ctx context.Context, st *datatypes.ConversationState, agent llm.AgentName, draft string, rules []datatypes.AuthorizedRule) *datatypes.MessageResponse {
	start := p.now()
	verdict, err := p.validator.Validate(ctx, draft, rules)
	observability.ObserveStage("guardrail", p.now().Sub(start).Seconds())
	if err != nil {
		slog.Error("guardrail validation failed", "key", st.Key, "error", err)
		return p.hardFailure(ctx, st.Key, st.TeamID, "guardrail failed")
	}

	if !verdict.Escalate {
		return &datatypes.MessageResponse{
			Response:         verdict.SanitizedReply,
			WorkflowStatus:   datatypes.WorkflowSuccess,
			AgentUsed:        string(agent),
			ValidationIssues: verdict.Issues,
		}
	}

	ticket := p.escalate(ctx, datatypes.EscalationTicket{
		TeamID:          st.TeamID,
		ConversationKey: st.Key,
		Reason:          "guardrail escalation",
		Issues:          verdict.Issues,
		SanitizedReply:  verdict.SanitizedReply,
	})
	return &datatypes.MessageResponse{
		// The escalated reply is always the sanitized copy, never the raw
		// draft.
		Response:         verdict.SanitizedReply,
		WorkflowStatus:   datatypes.WorkflowEscalated,
		AgentUsed:        string(agent),
		NeedsHuman:       true,
		TicketID:         ticket.TicketID,
		ValidationIssues: verdict.Issues,
	}
}

// greet answers a bare greeting without touching state or search.
func (p *MessagePipeline) greet(ctx context.Context, key, teamID, message string) *datatypes.MessageResponse {
	gctx, cancel := context.WithTimeout(ctx, p.cfg.StageTimeout)
	defer cancel()
	reply, err := p.replies.GenerateReply(gctx, llm.AgentGreeting, message, llm.ReplyContext{})
	if err != nil {
		slog.Warn("greeting generation failed, using canned greeting", "key", key, "error", err)
		reply = "Olá! Como posso ajudar?"
	}
	observability.RecordMessage(string(datatypes.WorkflowSuccess))
	return &datatypes.MessageResponse{
		Response:       reply,
		WorkflowStatus: datatypes.WorkflowSuccess,
		AgentUsed:      string(llm.AgentGreeting),
	}
}

// hardFailure builds the generic could-not-process response and, when
// configured, opens an operator ticket so the conversation is not lost.
func (p *MessagePipeline) hardFailure(ctx context.Context, key, teamID, reason string) *datatypes.MessageResponse {
	resp := &datatypes.MessageResponse{
		Response:       genericFailureReply,
		WorkflowStatus: datatypes.WorkflowError,
	}
	if p.cfg.EscalateOnHardFailure {
		ticket := p.escalate(ctx, datatypes.EscalationTicket{
			TeamID:          teamID,
			ConversationKey: key,
			Reason:          fmt.Sprintf("pipeline failure: %s", reason),
		})
		resp.TicketID = ticket.TicketID
		resp.NeedsHuman = true
	}
	return resp
}

func (p *MessagePipeline) escalate(ctx context.Context, ticket datatypes.EscalationTicket) datatypes.EscalationTicket {
	if p.notifier == nil {
		return ticket
	}
	out, err := p.notifier.Escalate(ctx, ticket)
	if err != nil {
		slog.Warn("escalation delivery failed", "ticket_id", out.TicketID, "error", err)
	}
	return out
}

func (p *MessagePipeline) classifyIntent(ctx context.Context, message string) llm.IntentResult {
	if p.intents == nil {
		return llm.IntentResult{}
	}
	start := p.now()
	ictx, cancel := context.WithTimeout(ctx, p.cfg.StageTimeout)
	defer cancel()
	res, err := p.intents.ClassifyIntent(ictx, message)
	observability.ObserveStage("intent", p.now().Sub(start).Seconds())
	if err != nil {
		slog.Warn("intent classification failed, proceeding without intent", "error", err)
		return llm.IntentResult{}
	}
	return res
}

func (p *MessagePipeline) fetchEvents(ctx context.Context, teamID, phone string) []enrich.HistoricalEvent {
	if p.customer == nil || phone == "" {
		return nil
	}
	ectx, cancel := context.WithTimeout(ctx, p.cfg.StageTimeout)
	defer cancel()
	events, err := p.customer.Events(ectx, teamID, phone)
	if err != nil {
		slog.Warn("historical events fetch failed, proceeding without history", "error", err)
		return nil
	}
	return events
}

// agentForState names the agent template a follow-up question is asked
// under, for the agent_used response field.
func agentForState(st *datatypes.ConversationState) llm.AgentName {
	if st.ActiveSupportProductID != "" {
		return llm.AgentSupport
	}
	return llm.AgentSales
}

func isGreeting(message string) bool {
	normalized := strings.ToLower(strings.TrimSpace(message))
	normalized = strings.TrimRight(normalized, "!.? ")
	for _, marker := range greetingMarkers {
		if normalized == marker {
			return true
		}
	}
	return false
}
