// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dialog

import (
	"fmt"
	"time"

	"github.com/AleutianAI/AleutianConcierge/services/orchestrator/datatypes"
)

// HistoricalProduct is one product from the customer's platform event set,
// used to arm a pending question.
type HistoricalProduct struct {
	ProductID   string
	ProductName string
	EventType   datatypes.ProductEventType
}

// ArmFromHistory arms the appropriate pending object for a message that
// named no product but has purchase history to lean on.
//
// # Description
//
// Exactly one historical product arms a single confirmation; two or more
// arm a multi-product selection with a 1-based contiguous index list. Zero
// products arm nothing. Returns the question to send to the customer and
// whether anything was armed.
func ArmFromHistory(s *datatypes.ConversationState, products []HistoricalProduct, message, intent string, now time.Time) (string, bool) {
	switch len(products) {
	case 0:
		return "", false
	case 1:
		p := products[0]
		pending := &datatypes.PendingProductConfirmation{
			SuggestedProductID:   p.ProductID,
			SuggestedProductName: p.ProductName,
			EventType:            p.EventType,
			Reason:               "single historical product, none explicitly named",
			Timestamp:            now.UTC(),
		}
		s.SetPendingConfirmation(pending)
		return ConfirmationQuestion(pending), true
	default:
		options := make([]datatypes.PendingProductOption, len(products))
		for i, p := range products {
			options[i] = datatypes.PendingProductOption{
				Index:       i + 1,
				ProductID:   p.ProductID,
				ProductName: p.ProductName,
				EventType:   p.EventType,
			}
		}
		pending := &datatypes.PendingMultiProductSelection{
			Products:        options,
			OriginalMessage: message,
			OriginalIntent:  intent,
			Timestamp:       now.UTC(),
		}
		s.SetPendingMultiSelect(pending)
		return SelectionQuestion(pending), true
	}
}

// ArmContextSwitch arms a context-switch question when the resolver picked
// a different product than the active support context.
func ArmContextSwitch(s *datatypes.ConversationState, fromID, fromName string, fromMode datatypes.ConversationMode, toID, toName string, toMode datatypes.ConversationMode, now time.Time) string {
	pending := &datatypes.PendingContextSwitch{
		FromProductID:   fromID,
		FromProductName: fromName,
		FromMode:        fromMode,
		ToProductID:     toID,
		ToProductName:   toName,
		ToMode:          toMode,
		Timestamp:       now.UTC(),
	}
	s.SetPendingSwitch(pending)
	return SwitchQuestion(pending)
}

// ConfirmationPrompt is a short operator-facing description of whatever is
// pending, used by the inspection CLI.
func ConfirmationPrompt(s *datatypes.ConversationState) string {
	switch {
	case s.PendingConfirmation != nil:
		return ConfirmationQuestion(s.PendingConfirmation)
	case s.PendingMultiSelect != nil:
		return SelectionQuestion(s.PendingMultiSelect)
	case s.PendingSwitch != nil:
		return SwitchQuestion(s.PendingSwitch)
	}
	return fmt.Sprintf("conversation %s has no pending question", s.Key)
}
