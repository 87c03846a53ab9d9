// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianConcierge/services/orchestrator/datatypes"
)

// conversationSummary mirrors the list endpoint's per-row shape.
type conversationSummary struct {
	Key              string `json:"key"`
	CurrentProductID string `json:"current_product_id,omitempty"`
	Mode             string `json:"mode,omitempty"`
	HasPending       bool   `json:"has_pending"`
	UpdatedAt        string `json:"updated_at"`
}

// adminClient wraps the concierge admin HTTP API.
type adminClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func newAdminClient(baseURL, token string) *adminClient {
	return &adminClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *adminClient) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed (is the server running at %s?): %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr datatypes.ErrorResponse
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}

	if out != nil {
		return json.Unmarshal(raw, out)
	}
	return nil
}

func (c *adminClient) listConversations(ctx context.Context) ([]conversationSummary, error) {
	var resp struct {
		Conversations []conversationSummary `json:"conversations"`
	}
	err := c.do(ctx, http.MethodGet, "/v1/conversations", nil, &resp)
	return resp.Conversations, err
}

func (c *adminClient) getConversation(ctx context.Context, key string) (*datatypes.ConversationState, error) {
	var st datatypes.ConversationState
	if err := c.do(ctx, http.MethodGet, "/v1/conversations/"+url.PathEscape(key), nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *adminClient) deleteConversation(ctx context.Context, key string) error {
	return c.do(ctx, http.MethodDelete, "/v1/conversations/"+url.PathEscape(key), nil, nil)
}

func (c *adminClient) ingestProduct(ctx context.Context, req *datatypes.ProductIngestRequest) (int, error) {
	var resp struct {
		ChunksCreated int `json:"chunks_created"`
	}
	err := c.do(ctx, http.MethodPost, "/v1/products", req, &resp)
	return resp.ChunksCreated, err
}

func (c *adminClient) checkGuardrail(ctx context.Context, text, productID string) (*datatypes.GuardrailCheckResult, error) {
	var res datatypes.GuardrailCheckResult
	req := datatypes.GuardrailCheckRequest{Text: text, ProductID: productID}
	if err := c.do(ctx, http.MethodPost, "/v1/guardrail/check", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *adminClient) health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}
