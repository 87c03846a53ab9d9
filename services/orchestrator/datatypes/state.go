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

import (
	"strings"
	"time"
	"unicode"
)

// =============================================================================
// Schema Versioning
// =============================================================================

const (
	// ConversationSchemaVersion is the current persisted schema version.
	// Version 1 was the unversioned JSON blob; version 2 added the explicit
	// version field and the pending-object timestamps.
	ConversationSchemaVersion = 2

	// PendingObjectTTL is how long a pending disambiguation question stays
	// answerable. A reply arriving after this window is treated as a fresh
	// message, not as an answer to a stale question.
	PendingObjectTTL = 24 * time.Hour
)

// =============================================================================
// Pending Disambiguation Objects
// =============================================================================

// ProductEventType classifies the historical event that surfaced a product
// for confirmation.
type ProductEventType string

const (
	EventApproved  ProductEventType = "APPROVED"
	EventAbandoned ProductEventType = "ABANDONED"
	EventRefund    ProductEventType = "REFUND"
)

// PendingProductConfirmation is an outstanding "did you mean X?" question,
// created when exactly one historical product was found and the user did not
// explicitly name one.
type PendingProductConfirmation struct {
	SuggestedProductID   string           `json:"suggested_product_id"`
	SuggestedProductName string           `json:"suggested_product_name"`
	EventType            ProductEventType `json:"event_type"`
	Reason               string           `json:"reason,omitempty"`
	Timestamp            time.Time        `json:"timestamp"`
}

// PendingProductOption is one entry in a multi-product selection list.
// Index is 1-based and contiguous within the list.
type PendingProductOption struct {
	Index       int              `json:"index"`
	ProductID   string           `json:"product_id"`
	ProductName string           `json:"product_name"`
	EventType   ProductEventType `json:"event_type"`
}

// PendingMultiProductSelection is an outstanding "which of these N?"
// question, created when two or more historical products were found.
type PendingMultiProductSelection struct {
	Products        []PendingProductOption `json:"products"`
	OriginalMessage string                 `json:"original_message"`
	OriginalIntent  string                 `json:"original_intent,omitempty"`
	Timestamp       time.Time              `json:"timestamp"`
}

// OptionByIndex returns the option with the given 1-based index, or false if
// the index falls outside the declared list. Out-of-range indices are never
// clamped.
func (p *PendingMultiProductSelection) OptionByIndex(idx int) (PendingProductOption, bool) {
	if idx < 1 || idx > len(p.Products) {
		return PendingProductOption{}, false
	}
	return p.Products[idx-1], true
}

// ConversationMode distinguishes the support and sales conversation tracks.
type ConversationMode string

const (
	ModeSupport ConversationMode = "support"
	ModeSales   ConversationMode = "sales"
)

// PendingContextSwitch is an outstanding "switch from X to Y?" question.
type PendingContextSwitch struct {
	FromProductID   string           `json:"from_product_id"`
	FromProductName string           `json:"from_product_name"`
	FromMode        ConversationMode `json:"from_mode"`
	ToProductID     string           `json:"to_product_id"`
	ToProductName   string           `json:"to_product_name"`
	ToMode          ConversationMode `json:"to_mode"`
	Timestamp       time.Time        `json:"timestamp"`
}

// =============================================================================
// Conversation State
// =============================================================================

// ProductHistoryEntry records one product the conversation touched.
type ProductHistoryEntry struct {
	ProductID string    `json:"product_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ConversationState is the per-conversation durable record.
//
// # Description
//
// One ConversationState exists per conversation key (normalized phone,
// lowercased email, or "team:<id>" fallback). It holds the currently
// discussed product, an append-only product history (oldest first), a
// cached set of purchased products, the active support context, and at most
// ONE pending disambiguation object.
//
// # Invariants
//
//   - At most one of PendingConfirmation, PendingMultiSelect and
//     PendingSwitch is non-nil at any time. Mutate the pending slots only
//     through the Set*/ClearPending methods; they enforce exclusivity.
//   - ProductHistory is append-only and ordered oldest first.
//
// # Thread Safety
//
// Not safe for concurrent mutation. The pipeline processes one message per
// conversation at a time (read-then-write per request); concurrent messages
// for the same key can clobber each other's pending object, which is an
// accepted limitation of the store contract, not of this type.
type ConversationState struct {
	SchemaVersion int    `json:"schema_version"`
	Key           string `json:"key"`
	TeamID        string `json:"team_id"`

	CurrentProductID string                `json:"current_product_id,omitempty"`
	ProductHistory   []ProductHistoryEntry `json:"product_history,omitempty"`

	// PurchasedProducts is an opportunistically refreshed cache keyed by
	// product id.
	PurchasedProducts map[string]bool `json:"purchased_products,omitempty"`

	ActiveSupportProductID string     `json:"active_support_product_id,omitempty"`
	SupportModeSince       *time.Time `json:"support_mode_since,omitempty"`

	PendingConfirmation *PendingProductConfirmation   `json:"pending_product_confirmation,omitempty"`
	PendingMultiSelect  *PendingMultiProductSelection `json:"pending_multi_product_selection,omitempty"`
	PendingSwitch       *PendingContextSwitch         `json:"pending_context_switch,omitempty"`

	LastIntent string    `json:"last_intent,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NewConversationState creates the lazily initialized record for a key.
func NewConversationState(key, teamID string) *ConversationState {
	now := time.Now().UTC()
	return &ConversationState{
		SchemaVersion:     ConversationSchemaVersion,
		Key:               key,
		TeamID:            teamID,
		PurchasedProducts: make(map[string]bool),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// SetCurrentProduct updates the current product and appends to the history
// when the product actually changes.
func (s *ConversationState) SetCurrentProduct(productID string, at time.Time) {
	if productID == "" || productID == s.CurrentProductID {
		return
	}
	s.CurrentProductID = productID
	s.ProductHistory = append(s.ProductHistory, ProductHistoryEntry{
		ProductID: productID,
		Timestamp: at.UTC(),
	})
}

// SetPendingConfirmation arms a single-product confirmation, displacing any
// other pending object.
func (s *ConversationState) SetPendingConfirmation(p *PendingProductConfirmation) {
	s.PendingConfirmation = p
	s.PendingMultiSelect = nil
	s.PendingSwitch = nil
}

// SetPendingMultiSelect arms a multi-product selection, displacing any other
// pending object.
func (s *ConversationState) SetPendingMultiSelect(p *PendingMultiProductSelection) {
	s.PendingMultiSelect = p
	s.PendingConfirmation = nil
	s.PendingSwitch = nil
}

// SetPendingSwitch arms a context-switch confirmation, displacing any other
// pending object.
func (s *ConversationState) SetPendingSwitch(p *PendingContextSwitch) {
	s.PendingSwitch = p
	s.PendingConfirmation = nil
	s.PendingMultiSelect = nil
}

// ClearPending drops whichever pending object is set.
func (s *ConversationState) ClearPending() {
	s.PendingConfirmation = nil
	s.PendingMultiSelect = nil
	s.PendingSwitch = nil
}

// HasPending reports whether any disambiguation question is outstanding.
func (s *ConversationState) HasPending() bool {
	return s.PendingConfirmation != nil || s.PendingMultiSelect != nil || s.PendingSwitch != nil
}

// PendingTimestamp returns the creation time of the outstanding pending
// object, or the zero time when none is set.
func (s *ConversationState) PendingTimestamp() time.Time {
	switch {
	case s.PendingConfirmation != nil:
		return s.PendingConfirmation.Timestamp
	case s.PendingMultiSelect != nil:
		return s.PendingMultiSelect.Timestamp
	case s.PendingSwitch != nil:
		return s.PendingSwitch.Timestamp
	}
	return time.Time{}
}

// ExpirePending clears a pending object whose question has gone stale.
// Returns true if something was cleared.
func (s *ConversationState) ExpirePending(now time.Time) bool {
	if !s.HasPending() {
		return false
	}
	if now.Sub(s.PendingTimestamp()) <= PendingObjectTTL {
		return false
	}
	s.ClearPending()
	return true
}

// =============================================================================
// Conversation Keys
// =============================================================================

// NormalizePhone strips every non-digit rune. The empty result means the
// supplied phone was not a phone at all.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ConversationKey derives the durable key for a request. Precedence:
// normalized phone, then lowercased email, then the team fallback.
func ConversationKey(teamID, phone, email string) string {
	if p := NormalizePhone(phone); p != "" {
		return p
	}
	if e := strings.ToLower(strings.TrimSpace(email)); e != "" {
		return e
	}
	return "team:" + teamID
}
