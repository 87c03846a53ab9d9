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
	"context"
	"log/slog"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
)

// ProductClassName is the Weaviate class holding product documents.
const ProductClassName = "Product"

// GetProductSchema returns the class definition for product documents.
//
// # Description
//
// Products are stored one object per description chunk, all sharing the
// same product_id. Vectors are supplied at ingest time (Vectorizer "none");
// hybrid queries fuse BM25 over name/content with the supplied vector.
func GetProductSchema() *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	return &models.Class{
		Class:       ProductClassName,
		Description: "A product document chunk used for conversational resolution.",
		Vectorizer:  "none",
		InvertedIndexConfig: &models.InvertedIndexConfig{
			IndexNullState:      true,
			IndexPropertyLength: false,
			IndexTimestamps:     true,
		},
		Properties: []*models.Property{
			{
				Name:            "product_id",
				DataType:        []string{"text"},
				Description:     "Platform-side product identifier shared by all chunks of one product.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:         "name",
				DataType:     []string{"text"},
				Description:  "Display name of the product.",
				Tokenization: "word",
			},
			{
				Name:         "content",
				DataType:     []string{"text"},
				Description:  "Description chunk text.",
				Tokenization: "word",
			},
			{
				Name:            "team_id",
				DataType:        []string{"text"},
				Description:     "Tenant owning this product.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "chunk_index",
				DataType:        []string{"int"},
				Description:     "Position of this chunk within the product description.",
				IndexFilterable: indexFilterable,
			},
			{
				Name:        "price",
				DataType:    []string{"number"},
				Description: "List price, 0 when unknown.",
			},
			{
				Name:         "currency",
				DataType:     []string{"text"},
				Description:  "ISO 4217 currency code.",
				Tokenization: "field",
			},
			{
				Name:         "tags",
				DataType:     []string{"text[]"},
				Description:  "Free-form tags used for keyword matching.",
				Tokenization: "word",
			},
			{
				Name:            "ingested_at",
				DataType:        []string{"number"},
				Description:     "Timestamp (Unix ms) of when the chunk was ingested.",
				IndexFilterable: indexFilterable,
			},
		},
	}
}

// EnsureSchema creates the Product class if it does not already exist.
// Idempotent; safe to call at every startup.
func EnsureSchema(ctx context.Context, client *weaviate.Client) error {
	exists, err := client.Schema().ClassExistenceChecker().
		WithClassName(ProductClassName).
		Do(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	slog.Info("Creating Weaviate class", "class", ProductClassName)
	return client.Schema().ClassCreator().
		WithClass(GetProductSchema()).
		Do(ctx)
}
