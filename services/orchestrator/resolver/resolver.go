// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package resolver fuses lexical and vector candidate scores into one
// product decision per message.
//
// # Description
//
// The resolver obtains hybrid-search candidates, optionally rescores them
// through a reranker, applies the purchase-history boost, sorts, and
// derives two independent signals: ambiguity (top-two score gap) and
// confirmation (absolute confidence of the best match). A conversational
// continuity override can suppress both signals for short follow-ups.
package resolver

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/AleutianConcierge/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianConcierge/services/orchestrator/observability"
)

var tracer = otel.Tracer("concierge.orchestrator.resolver")

// =============================================================================
// Policy Constants
// =============================================================================

// These are policy constants, not derived quantities. Change them only as a
// product decision.
const (
	// HistoryBoost is added to a candidate's score when the customer has a
	// historical event for it. Purely additive; never lowers other scores.
	HistoryBoost = 0.15

	// AmbiguityGap is the top-two score gap below which the match is
	// ambiguous. A fixed tie-break threshold, not a statistical test.
	AmbiguityGap = 0.05

	// ConfirmationThreshold is the score below which the best match needs
	// an explicit confirmation. Independent of ambiguity.
	ConfirmationThreshold = 0.9

	// NameMatchThreshold is the acceptance similarity for name-based
	// fallback resolution.
	NameMatchThreshold = 0.9

	// maxFollowupLength is the longest message the continuity override
	// still treats as a follow-up.
	maxFollowupLength = 60

	// defaultCandidateLimit caps candidates fetched per resolution.
	defaultCandidateLimit = 15
)

// otherProductMarkers defeat the continuity override: the customer is
// explicitly reaching for a different product.
var otherProductMarkers = []string{
	"outro produto",
	"outra produto",
	"outro curso",
	"outra curso",
	"produto diferente",
	"other product",
	"another product",
	"different product",
	"something else",
}

// =============================================================================
// Resolver
// =============================================================================

// Config adjusts non-policy knobs of the resolver.
type Config struct {
	// CandidateLimit caps candidates per search. Default 15.
	CandidateLimit int
}

// Query is one resolution request.
type Query struct {
	Message string
	TeamID  string

	// HistoricalProducts is the customer's platform-side event set; members
	// receive the history boost.
	HistoricalProducts map[string]bool

	// CurrentProductID enables the continuity override when set.
	CurrentProductID string

	// IntentConfidence and ExplicitProductNamed come from the upstream
	// intent oracle; a confidently named product also overrides.
	IntentConfidence     float64
	ExplicitProductNamed bool
}

// Resolver is the product resolution service. Construct once with New and
// inject where needed.
type Resolver struct {
	searcher Searcher // nil when the deployment runs without an index
	reranker Reranker // nil when the deployment has none
	cfg      Config
}

// New creates a Resolver. searcher and reranker may be nil; a nil
// searcher resolves everything to the NoCandidates variant.
func New(searcher Searcher, reranker Reranker, cfg Config) *Resolver {
	if cfg.CandidateLimit <= 0 {
		cfg.CandidateLimit = defaultCandidateLimit
	}
	return &Resolver{searcher: searcher, reranker: reranker, cfg: cfg}
}

// Resolve picks the best product for a message.
//
// # Description
//
// Runs search, optional rerank, boost, sort and the two threshold rules.
// Zero usable candidates is not an error return: it is the
// ResolutionNoCandidates variant, so callers must branch on Kind. The error
// return covers only search transport failure.
//
// # Inputs
//
//   - ctx: Context for cancellation and timeout.
//   - q: The resolution request.
//
// # Outputs
//
//   - datatypes.Resolution: Match or NoCandidates variant.
//   - error: Non-nil only when the search collaborator failed outright.
func (r *Resolver) Resolve(ctx context.Context, q Query) (datatypes.Resolution, error) {
	ctx, span := tracer.Start(ctx, "Resolver.Resolve")
	defer span.End()
	span.SetAttributes(attribute.String("team_id", q.TeamID))

	// A deployment without a search index resolves nothing rather than
	// panicking; callers already branch on the NoCandidates variant.
	if r.searcher == nil {
		observability.RecordResolution("no_candidates", false, false)
		return datatypes.Resolution{Kind: datatypes.ResolutionNoCandidates}, nil
	}

	candidates, err := r.searcher.Search(ctx, q.Message, q.TeamID, r.cfg.CandidateLimit)
	if err != nil {
		span.RecordError(err)
		return datatypes.Resolution{}, err
	}
	if len(candidates) == 0 {
		observability.RecordResolution("no_candidates", false, false)
		return datatypes.Resolution{Kind: datatypes.ResolutionNoCandidates}, nil
	}

	r.applyRerank(ctx, q.Message, candidates)

	for i := range candidates {
		if q.HistoricalProducts[candidates[i].ProductID] {
			candidates[i].CombinedScore += HistoryBoost
			candidates[i].BoostApplied = true
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].CombinedScore > candidates[j].CombinedScore
	})

	best := candidates[0]
	res := datatypes.Resolution{
		Kind: datatypes.ResolutionMatch,
		Best: datatypes.BestMatch{
			ProductID: best.ProductID,
			Name:      best.Name,
			Score:     best.CombinedScore,
		},
		Candidates:        candidates,
		NeedsConfirmation: best.CombinedScore < ConfirmationThreshold,
	}
	if len(candidates) > 1 {
		res.IsAmbiguous = best.CombinedScore-candidates[1].CombinedScore < AmbiguityGap
	}

	if r.continuityOverride(q) {
		slog.Debug("Continuity override applied",
			"current_product", q.CurrentProductID,
			"message_len", len(q.Message))
		res.IsAmbiguous = false
		res.NeedsConfirmation = false
	}

	observability.RecordResolution("match", res.IsAmbiguous, res.NeedsConfirmation)
	span.SetAttributes(
		attribute.String("best_product", res.Best.ProductID),
		attribute.Float64("best_score", res.Best.Score),
		attribute.Bool("ambiguous", res.IsAmbiguous),
		attribute.Bool("needs_confirmation", res.NeedsConfirmation),
	)
	return res, nil
}

// applyRerank replaces candidate scores with reranker relevance scores.
// Any failure keeps the hybrid scores; a reranker outage must never fail
// the resolution.
func (r *Resolver) applyRerank(ctx context.Context, message string, candidates []datatypes.RankedCandidate) {
	if r.reranker == nil {
		return
	}

	docs := make([]string, len(candidates))
	for i, c := range candidates {
		docs[i] = c.Name
	}

	scores, err := r.reranker.Rerank(ctx, message, docs)
	if err != nil {
		slog.Warn("Reranker failed, keeping hybrid scores", "error", err)
		return
	}
	for i := range candidates {
		candidates[i].CombinedScore = scores[i]
	}
}

// continuityOverride reports whether ambiguity and confirmation should be
// suppressed. Raw embedding similarity on short follow-ups ("e parcelado?")
// is a weaker signal than conversational continuity.
func (r *Resolver) continuityOverride(q Query) bool {
	if q.ExplicitProductNamed && q.IntentConfidence >= 0.8 {
		return true
	}
	if q.CurrentProductID == "" {
		return false
	}
	if len(q.Message) > maxFollowupLength {
		return false
	}
	lower := strings.ToLower(q.Message)
	for _, marker := range otherProductMarkers {
		if strings.Contains(lower, marker) {
			return false
		}
	}
	return true
}

// ResolveByName finds a product by display name, for name-based fallback
// resolution. Only a candidate at or above NameMatchThreshold is accepted.
func (r *Resolver) ResolveByName(ctx context.Context, name, teamID string) (datatypes.BestMatch, bool, error) {
	ctx, span := tracer.Start(ctx, "Resolver.ResolveByName")
	defer span.End()

	if r.searcher == nil {
		return datatypes.BestMatch{}, false, nil
	}

	candidates, err := r.searcher.Search(ctx, name, teamID, 3)
	if err != nil {
		span.RecordError(err)
		return datatypes.BestMatch{}, false, err
	}
	if len(candidates) == 0 || candidates[0].CombinedScore < NameMatchThreshold {
		return datatypes.BestMatch{}, false, nil
	}
	best := candidates[0]
	return datatypes.BestMatch{
		ProductID: best.ProductID,
		Name:      best.Name,
		Score:     best.CombinedScore,
	}, true, nil
}
