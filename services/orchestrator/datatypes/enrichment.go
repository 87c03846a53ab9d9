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

// =============================================================================
// Enrichment Types
// =============================================================================

// AuthorizedRule is one business rule a reply is allowed to promise.
type AuthorizedRule struct {
	ProductID   string `json:"product_id,omitempty"`
	Category    string `json:"category"`
	Description string `json:"description"`
}

// OwnershipStatus reports the customer's relationship to a product.
type OwnershipStatus string

const (
	OwnershipOwner       OwnershipStatus = "owner"
	OwnershipRefunded    OwnershipStatus = "refunded"
	OwnershipNonCustomer OwnershipStatus = "non_customer"
	OwnershipUnknown     OwnershipStatus = "unknown"
)

// SalesStrategy is the approach the reply generator should take.
type SalesStrategy struct {
	Name       string `json:"name"`
	Guidance   string `json:"guidance"`
	IsFallback bool   `json:"is_fallback"`
}

// EnrichedContext is the aggregate handed to reply generation.
//
// # Description
//
// EnrichedContext is assembled by parallel fetches that degrade
// independently: a failed fetch leaves its field at the documented safe
// default (empty rules, OwnershipUnknown, fallback strategy, empty
// purchase set) and sets Degraded. It is a request-scoped struct with
// named fields, assembled progressively by the pipeline; nothing reads it
// by string key.
type EnrichedContext struct {
	ProductID   string            `json:"product_id"`
	ProductName string            `json:"product_name"`
	Metadata    map[string]string `json:"metadata,omitempty"`

	Rules     []AuthorizedRule `json:"rules,omitempty"`
	Ownership OwnershipStatus  `json:"ownership"`
	Strategy  SalesStrategy    `json:"strategy"`

	// PurchasedProducts is the customer's full purchased set, used to
	// refresh the conversation-state cache opportunistically.
	PurchasedProducts []string `json:"purchased_products,omitempty"`

	// Degraded lists the fetches that fell back to defaults this turn.
	Degraded []string `json:"degraded,omitempty"`
}
