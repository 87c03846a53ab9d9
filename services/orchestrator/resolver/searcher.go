// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"

	"github.com/AleutianAI/AleutianConcierge/services/orchestrator/datatypes"
)

// Searcher returns ranked product candidates for a message.
type Searcher interface {
	Search(ctx context.Context, message, teamID string, limit int) ([]datatypes.RankedCandidate, error)
}

// WeaviateSearcher implements Searcher with a hybrid (vector + BM25) query
// over the Product class.
//
// # Thread Safety
//
// Safe for concurrent use. The underlying Weaviate client handles
// connection pooling.
type WeaviateSearcher struct {
	client   *weaviate.Client
	embedder Embedder

	// alpha weights the vector side of the hybrid fusion. 0 is pure BM25,
	// 1 is pure vector.
	alpha float32

	// maxEmbedLength truncates over-long messages before embedding.
	maxEmbedLength int
}

var _ Searcher = (*WeaviateSearcher)(nil)

// NewWeaviateSearcher builds the production searcher.
func NewWeaviateSearcher(client *weaviate.Client, embedder Embedder) *WeaviateSearcher {
	return &WeaviateSearcher{
		client:         client,
		embedder:       embedder,
		alpha:          0.7,
		maxEmbedLength: 2048,
	}
}

// productQueryResponse is the typed shape of the hybrid query result.
type productQueryResponse struct {
	Get struct {
		Product []struct {
			ProductID  string  `json:"product_id"`
			Name       string  `json:"name"`
			Price      float64 `json:"price"`
			Currency   string  `json:"currency"`
			Additional struct {
				Score string `json:"score"`
			} `json:"_additional"`
		} `json:"Product"`
	} `json:"Get"`
}

// Search implements Searcher.
//
// # Description
//
// Embeds the message, runs one hybrid query filtered by team, and collapses
// chunk-level hits to one candidate per product_id keeping the best score.
// Weaviate's fused score arrives as the candidate's CombinedScore; the
// resolver treats it as opaque input.
func (s *WeaviateSearcher) Search(ctx context.Context, message, teamID string, limit int) ([]datatypes.RankedCandidate, error) {
	ctx, span := tracer.Start(ctx, "WeaviateSearcher.Search")
	defer span.End()

	query := message
	if len(query) > s.maxEmbedLength {
		query = query[:s.maxEmbedLength]
	}

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed message: %w", err)
	}

	teamFilter := filters.Where().
		WithPath([]string{"team_id"}).
		WithOperator(filters.Equal).
		WithValueString(teamID)

	hybrid := s.client.GraphQL().HybridArgumentBuilder().
		WithQuery(query).
		WithVector(vector).
		WithAlpha(s.alpha)

	fields := []graphql.Field{
		{Name: "product_id"},
		{Name: "name"},
		{Name: "price"},
		{Name: "currency"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "score"},
		}},
	}

	// Fetch chunk-level hits over-provisioned so the per-product collapse
	// still fills the requested limit.
	result, err := s.client.GraphQL().Get().
		WithClassName(datatypes.ProductClassName).
		WithFields(fields...).
		WithWhere(teamFilter).
		WithHybrid(hybrid).
		WithLimit(limit * 3).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("weaviate hybrid search failed: %w", err)
	}

	parsed, err := datatypes.ParseGraphQLResponse[productQueryResponse](result)
	if err != nil {
		return nil, fmt.Errorf("failed to parse search results: %w", err)
	}

	byProduct := make(map[string]int)
	candidates := make([]datatypes.RankedCandidate, 0, limit)
	for _, hit := range parsed.Get.Product {
		score, perr := strconv.ParseFloat(hit.Additional.Score, 64)
		if perr != nil {
			slog.Warn("Unparseable hybrid score, skipping hit", "product_id", hit.ProductID, "score", hit.Additional.Score)
			continue
		}

		if idx, seen := byProduct[hit.ProductID]; seen {
			if score > candidates[idx].CombinedScore {
				candidates[idx].CombinedScore = score
			}
			continue
		}

		md := map[string]string{}
		if hit.Currency != "" {
			md["currency"] = hit.Currency
			md["price"] = strconv.FormatFloat(hit.Price, 'f', 2, 64)
		}
		byProduct[hit.ProductID] = len(candidates)
		candidates = append(candidates, datatypes.RankedCandidate{
			ProductID:     hit.ProductID,
			Name:          hit.Name,
			Metadata:      md,
			CombinedScore: score,
		})
		if len(candidates) >= limit {
			break
		}
	}

	slog.Debug("Hybrid product search completed", "team", teamID, "candidates", len(candidates))
	return candidates, nil
}
