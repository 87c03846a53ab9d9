// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package dialog interprets a customer's reply to an outstanding
// disambiguation question and transitions the conversation state.
//
// # Description
//
// The machine owns three responsibilities only: choosing which oracle to
// consult for the pending object that is set, validating what the oracle
// returns (indices must fall in the declared 1-based range), and performing
// the state mutation (clear on resolve, re-arm on indecisive). It never
// invents a product id that was not in the pending object, and an oracle
// failure of any kind degrades to the indecisive branch.
package dialog

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/AleutianConcierge/services/llm"
	"github.com/AleutianAI/AleutianConcierge/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianConcierge/services/orchestrator/observability"
)

var tracer = otel.Tracer("concierge.orchestrator.dialog")

// =============================================================================
// Outcomes
// =============================================================================

// OutcomeKind is the result of one reply interpretation.
type OutcomeKind string

const (
	// OutcomeConfirmed resolves a single-confirm or context-switch pending
	// in the affirmative.
	OutcomeConfirmed OutcomeKind = "confirmed"

	// OutcomeRejected resolves a pending in the negative.
	OutcomeRejected OutcomeKind = "rejected"

	// OutcomeIndecisive re-arms the same pending object unchanged.
	OutcomeIndecisive OutcomeKind = "indecisive"

	// OutcomeSelected resolves a multi-select to one listed product.
	OutcomeSelected OutcomeKind = "selected"

	// OutcomeNewQuestion abandons the multi-select; the reply is a fresh
	// message and should go through normal resolution.
	OutcomeNewQuestion OutcomeKind = "new_question"
)

// Outcome is what the pipeline acts on after a reply interpretation.
type Outcome struct {
	Kind OutcomeKind

	// ProductID/ProductName identify the product the conversation should
	// continue with. Set for OutcomeConfirmed and OutcomeSelected.
	ProductID   string
	ProductName string

	// Mode is set when a context switch was confirmed.
	Mode datatypes.ConversationMode

	// Question is the clarifying text to send back for indecisive
	// re-arms, so the pipeline can re-ask without regenerating.
	Question string
}

// =============================================================================
// Machine
// =============================================================================

// Machine is the disambiguation state machine service.
type Machine struct {
	confirmOracle   llm.ConfirmationOracle
	selectionOracle llm.SelectionOracle
}

// New creates a Machine over the two classifier oracles.
func New(confirm llm.ConfirmationOracle, selection llm.SelectionOracle) *Machine {
	return &Machine{confirmOracle: confirm, selectionOracle: selection}
}

// HandleReply interprets reply against whichever pending object s carries.
//
// # Description
//
// Exactly one pending object can be set (the state type enforces that);
// the machine dispatches on it. Calling HandleReply with no pending object
// is a programming error and returns one.
//
// # Outputs
//
//   - Outcome: The transition result. State s is already mutated.
//   - error: Non-nil only when no pending object was set.
func (m *Machine) HandleReply(ctx context.Context, s *datatypes.ConversationState, reply string) (Outcome, error) {
	ctx, span := tracer.Start(ctx, "Machine.HandleReply")
	defer span.End()

	switch {
	case s.PendingConfirmation != nil:
		out := m.handleSingleConfirm(ctx, s, reply)
		span.SetAttributes(attribute.String("pending", "single_confirm"), attribute.String("outcome", string(out.Kind)))
		observability.RecordPendingTransition("single_confirm", string(out.Kind))
		return out, nil
	case s.PendingMultiSelect != nil:
		out := m.handleMultiSelect(ctx, s, reply)
		span.SetAttributes(attribute.String("pending", "multi_select"), attribute.String("outcome", string(out.Kind)))
		observability.RecordPendingTransition("multi_select", string(out.Kind))
		return out, nil
	case s.PendingSwitch != nil:
		out := m.handleContextSwitch(ctx, s, reply)
		span.SetAttributes(attribute.String("pending", "context_switch"), attribute.String("outcome", string(out.Kind)))
		observability.RecordPendingTransition("context_switch", string(out.Kind))
		return out, nil
	}
	return Outcome{}, fmt.Errorf("no pending disambiguation object on conversation %q", s.Key)
}

func (m *Machine) handleSingleConfirm(ctx context.Context, s *datatypes.ConversationState, reply string) Outcome {
	pending := s.PendingConfirmation
	question := ConfirmationQuestion(pending)

	res, err := m.confirmOracle.ClassifyConfirmation(ctx, question, reply)
	if err != nil {
		slog.Warn("Confirmation oracle failed, treating reply as indecisive", "error", err)
		res.Verdict = llm.VerdictIndecisive
	}

	switch res.Verdict {
	case llm.VerdictConfirmed:
		s.ClearPending()
		return Outcome{
			Kind:        OutcomeConfirmed,
			ProductID:   pending.SuggestedProductID,
			ProductName: pending.SuggestedProductName,
		}
	case llm.VerdictRejected:
		s.ClearPending()
		return Outcome{Kind: OutcomeRejected}
	default:
		// Re-arm: the object stays untouched, same content and timestamp.
		return Outcome{Kind: OutcomeIndecisive, Question: question}
	}
}

func (m *Machine) handleMultiSelect(ctx context.Context, s *datatypes.ConversationState, reply string) Outcome {
	pending := s.PendingMultiSelect

	options := make([]string, len(pending.Products))
	for i, p := range pending.Products {
		options[i] = p.ProductName
	}

	res, err := m.selectionOracle.ClassifySelection(ctx, options, pending.OriginalMessage, reply)
	if err != nil {
		slog.Warn("Selection oracle failed, keeping list pending", "error", err)
		return Outcome{Kind: OutcomeIndecisive, Question: SelectionQuestion(pending)}
	}

	if res.IsNewQuestion {
		// The customer moved on; drop the stale question so the fresh
		// message goes through normal resolution.
		s.ClearPending()
		return Outcome{Kind: OutcomeNewQuestion}
	}

	if res.IsSelection && res.SelectedIndex != nil {
		opt, ok := pending.OptionByIndex(*res.SelectedIndex)
		if !ok {
			slog.Warn("Selection oracle returned out-of-range index, keeping list pending",
				"index", *res.SelectedIndex, "options", len(pending.Products))
			return Outcome{Kind: OutcomeIndecisive, Question: SelectionQuestion(pending)}
		}
		s.ClearPending()
		return Outcome{
			Kind:        OutcomeSelected,
			ProductID:   opt.ProductID,
			ProductName: opt.ProductName,
		}
	}

	// Not a selection and not a new question: re-ask with the same list.
	return Outcome{Kind: OutcomeIndecisive, Question: SelectionQuestion(pending)}
}

func (m *Machine) handleContextSwitch(ctx context.Context, s *datatypes.ConversationState, reply string) Outcome {
	pending := s.PendingSwitch
	question := SwitchQuestion(pending)

	res, err := m.confirmOracle.ClassifyConfirmation(ctx, question, reply)
	if err != nil {
		slog.Warn("Confirmation oracle failed, treating reply as indecisive", "error", err)
		res.Verdict = llm.VerdictIndecisive
	}

	switch res.Verdict {
	case llm.VerdictConfirmed:
		s.ClearPending()
		return Outcome{
			Kind:        OutcomeConfirmed,
			ProductID:   pending.ToProductID,
			ProductName: pending.ToProductName,
			Mode:        pending.ToMode,
		}
	case llm.VerdictRejected:
		s.ClearPending()
		return Outcome{
			Kind:        OutcomeRejected,
			ProductID:   pending.FromProductID,
			ProductName: pending.FromProductName,
			Mode:        pending.FromMode,
		}
	default:
		return Outcome{Kind: OutcomeIndecisive, Question: question}
	}
}

// =============================================================================
// Question Rendering
// =============================================================================

// ConfirmationQuestion renders the question a single-confirm pending asks.
func ConfirmationQuestion(p *datatypes.PendingProductConfirmation) string {
	return fmt.Sprintf("Você está falando sobre %s?", p.SuggestedProductName)
}

// SelectionQuestion renders the numbered list a multi-select pending asks.
func SelectionQuestion(p *datatypes.PendingMultiProductSelection) string {
	out := "Sobre qual desses você quer falar?\n"
	for _, opt := range p.Products {
		out += fmt.Sprintf("%d. %s\n", opt.Index, opt.ProductName)
	}
	return out
}

// SwitchQuestion renders the question a context-switch pending asks.
func SwitchQuestion(p *datatypes.PendingContextSwitch) string {
	return fmt.Sprintf("Quer mudar de %s para %s?", p.FromProductName, p.ToProductName)
}
