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
	"encoding/json"
	"fmt"

	"github.com/weaviate/weaviate/entities/models"
)

// =============================================================================
// Generic GraphQL Response Parser
// =============================================================================

// ParseGraphQLResponse parses a Weaviate GraphQL response into the target type.
//
// # Description
//
// This generic function encapsulates the marshal/unmarshal pattern required
// to convert Weaviate's dynamic response (map[string]models.JSONObject) into
// a strongly-typed Go struct. The target type T must have json tags matching
// the expected response shape.
//
// # Example
//
//	type ProductResponse struct {
//	    Get struct {
//	        Product []struct {
//	            ProductID string `json:"product_id"`
//	            Name      string `json:"name"`
//	        } `json:"Product"`
//	    } `json:"Get"`
//	}
//
//	resp, err := client.GraphQL().Get().WithClassName("Product").Do(ctx)
//	if err != nil { ... }
//
//	parsed, err := ParseGraphQLResponse[ProductResponse](resp)
//
// # Limitations
//
//   - Requires the target type to exactly match the expected response
//     structure. Type mismatches produce zero values, not errors.
func ParseGraphQLResponse[T any](resp *models.GraphQLResponse) (*T, error) {
	if resp == nil {
		return nil, fmt.Errorf("nil GraphQL response")
	}
	if len(resp.Errors) > 0 && resp.Errors[0] != nil {
		return nil, fmt.Errorf("graphql error: %s", resp.Errors[0].Message)
	}

	respBytes, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal GraphQL data: %w", err)
	}

	var parsed T
	if err := json.Unmarshal(respBytes, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse GraphQL response: %w", err)
	}
	return &parsed, nil
}
