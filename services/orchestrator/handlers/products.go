// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/tmc/langchaingo/textsplitter"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/AleutianAI/AleutianConcierge/pkg/validation"
	"github.com/AleutianAI/AleutianConcierge/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianConcierge/services/orchestrator/resolver"
)

var (
	productChunkSize    = 1000
	productChunkOverlap = int(float64(productChunkSize) * 0.10)
	productSeparators   = []string{"\n\n", "\n", " ", ""}
)

// IngestProduct upserts one product into the search index, POST /v1/products.
//
// # Description
//
// Chunks the product description, embeds each chunk, and batch-writes the
// chunks into Weaviate with deterministic ids derived from the chunk
// content. Re-ingesting the same product overwrites the same objects, so
// the endpoint is idempotent for unchanged descriptions.
//
// A product with an empty description still gets one chunk built from its
// name, so every product is findable by name alone.
//
// # Limitations
//
// Chunks are embedded one at a time. Product descriptions are short
// enough (a few chunks each) that a batch embedding round trip has not
// been worth the extra surface.
func IngestProduct(client *weaviate.Client, embedder resolver.Embedder) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.ProductIngestRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: err.Error()})
			return
		}
		// Identifiers end up in index filters; charset-check them beyond
		// the struct tags.
		if err := validation.ValidateIdentifiers([]string{req.TeamID, req.ProductID}); err != nil {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: err.Error()})
			return
		}
		if client == nil || embedder == nil {
			c.JSON(http.StatusServiceUnavailable, datatypes.ErrorResponse{Error: "search index not configured"})
			return
		}

		created, err := runProductIngestion(c.Request.Context(), client, embedder, &req)
		if err != nil {
			logAndError(c, http.StatusInternalServerError, "product ingestion failed", err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"product_id":     req.ProductID,
			"chunks_created": created,
		})
	}
}

func runProductIngestion(
	ctx context.Context,
	client *weaviate.Client,
	embedder resolver.Embedder,
	req *datatypes.ProductIngestRequest,
) (int, error) {
	text := req.Description
	if text == "" {
		text = req.Name
	}

	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(productChunkSize),
		textsplitter.WithChunkOverlap(productChunkOverlap),
		textsplitter.WithSeparators(productSeparators),
	)
	chunks, err := splitter.SplitText(text)
	if err != nil {
		return 0, fmt.Errorf("failed to split product description: %w", err)
	}
	if len(chunks) == 0 {
		slog.Warn("no chunks produced for product", "product_id", req.ProductID)
		return 0, nil
	}

	tags := make([]string, len(req.Tags))
	copy(tags, req.Tags)

	objects := make([]*models.Object, len(chunks))
	for i, chunk := range chunks {
		vector, err := embedder.Embed(ctx, chunk)
		if err != nil {
			return 0, fmt.Errorf("failed to embed chunk %d: %w", i, err)
		}

		// Deterministic id from product + chunk content so re-ingestion
		// upserts instead of duplicating.
		hash := sha256.Sum256([]byte(req.ProductID + "\x00" + chunk))
		chunkUUID, _ := uuid.FromBytes(hash[:16])

		objects[i] = &models.Object{
			Class:  datatypes.ProductClassName,
			ID:     strfmt.UUID(chunkUUID.String()),
			Vector: vector,
			Properties: map[string]interface{}{
				"product_id":  req.ProductID,
				"name":        req.Name,
				"content":     chunk,
				"team_id":     req.TeamID,
				"chunk_index": i,
				"price":       req.Price,
				"currency":    req.Currency,
				"tags":        tags,
				"ingested_at": time.Now().UnixMilli(),
			},
		}
	}

	resp, err := client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to save product chunks: %w", err)
	}

	created := 0
	for _, item := range resp {
		if item.Result != nil && item.Result.Status != nil && *item.Result.Status == "SUCCESS" {
			created++
			continue
		}
		if item.Result != nil && item.Result.Errors != nil && len(item.Result.Errors.Error) > 0 {
			for _, errItem := range item.Result.Errors.Error {
				slog.Warn("weaviate batch item failed", "product_id", req.ProductID, "error", errItem.Message)
			}
		} else {
			slog.Warn("weaviate batch item failed without detail", "product_id", req.ProductID)
		}
	}

	slog.Info("ingested product", "product_id", req.ProductID, "chunks_created", created, "chunks_total", len(chunks))
	return created, nil
}
