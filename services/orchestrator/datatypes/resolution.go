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
// Product Resolution Types
// =============================================================================

// RankedCandidate is one product considered during resolution. It lives for
// a single resolver invocation and is never persisted.
//
// CombinedScore arrives from the hybrid search collaborator as an already
// fused vector+lexical score; the resolver treats it as opaque except for
// the additive history boost.
type RankedCandidate struct {
	ProductID     string            `json:"product_id"`
	Name          string            `json:"name"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	LexicalScore  float64           `json:"lexical_score"`
	VectorScore   float64           `json:"vector_score"`
	CombinedScore float64           `json:"combined_score"`
	BoostApplied  bool              `json:"boost_applied"`
}

// BestMatch is the product a resolution settled on.
type BestMatch struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	Score     float64 `json:"score"`
}

// ResolutionKind discriminates the resolver outcome variants, making the
// no-candidates path visible in signatures instead of thrown past them.
type ResolutionKind string

const (
	// ResolutionMatch means a best match was produced.
	ResolutionMatch ResolutionKind = "match"

	// ResolutionNoCandidates means the search collaborator returned nothing
	// usable; no product-based reply is possible.
	ResolutionNoCandidates ResolutionKind = "no_candidates"
)

// Resolution is the outcome of one ProductResolver invocation.
//
// IsAmbiguous and NeedsConfirmation are independent signals: a match can be
// unambiguous (wide gap to the runner-up) and still sit below the
// confirmation bar.
type Resolution struct {
	Kind              ResolutionKind    `json:"kind"`
	Best              BestMatch         `json:"best_match"`
	Candidates        []RankedCandidate `json:"candidates,omitempty"`
	IsAmbiguous       bool              `json:"is_ambiguous"`
	NeedsConfirmation bool              `json:"needs_confirmation"`
}
