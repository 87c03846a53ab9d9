// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package enrich

import (
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

// HistoricalEvent is one platform event tying a customer to a product.
type HistoricalEvent struct {
	ProductID   string                     `json:"product_id"`
	ProductName string                     `json:"product_name"`
	EventType   datatypes.ProductEventType `json:"event_type"`
}

// CustomerClient exposes the platform's view of a customer.
type CustomerClient interface {
	// Ownership reports the customer's relationship to one product.
	Ownership(ctx context.Context, teamID, phone, productID string) (datatypes.OwnershipStatus, error)

	// Purchases lists every product id the customer owns.
	Purchases(ctx context.Context, teamID, phone string) ([]string, error)

	// Events lists the customer's historical product events (approved,
	// abandoned, refund), used to arm disambiguation questions.
	Events(ctx context.Context, teamID, phone string) ([]HistoricalEvent, error)
}

// HTTPCustomerClient calls the platform customer API.
type HTTPCustomerClient struct {
	httpClient *http.Client
	baseURL    string
}

var _ CustomerClient = (*HTTPCustomerClient)(nil)

// NewHTTPCustomerClient builds a client against baseURL.
func NewHTTPCustomerClient(baseURL string, timeout time.Duration) *HTTPCustomerClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPCustomerClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
	}
}

func (c *HTTPCustomerClient) get(ctx context.Context, path string, query url.Values, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to build customer request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("customer API call failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read customer response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("customer API returned status %d: %s", resp.StatusCode, string(body))
	}
	return json.Unmarshal(body, target)
}

// Ownership implements CustomerClient.
func (c *HTTPCustomerClient) Ownership(ctx context.Context, teamID, phone, productID string) (datatypes.OwnershipStatus, error) {
	q := url.Values{"team_id": {teamID}, "phone": {phone}, "product_id": {productID}}
	var out struct {
		Status string `json:"status"`
	}
	if err := c.get(ctx, "/v1/customers/ownership", q, &out); err != nil {
		return datatypes.OwnershipUnknown, err
	}

	switch datatypes.OwnershipStatus(out.Status) {
	case datatypes.OwnershipOwner, datatypes.OwnershipRefunded, datatypes.OwnershipNonCustomer:
		return datatypes.OwnershipStatus(out.Status), nil
	}
	return datatypes.OwnershipUnknown, nil
}

// Purchases implements CustomerClient.
func (c *HTTPCustomerClient) Purchases(ctx context.Context, teamID, phone string) ([]string, error) {
	q := url.Values{"team_id": {teamID}, "phone": {phone}}
	var out struct {
		ProductIDs []string `json:"product_ids"`
	}
	if err := c.get(ctx, "/v1/customers/purchases", q, &out); err != nil {
		return nil, err
	}
	return out.ProductIDs, nil
}

// Events implements CustomerClient.
func (c *HTTPCustomerClient) Events(ctx context.Context, teamID, phone string) ([]HistoricalEvent, error) {
	q := url.Values{"team_id": {teamID}, "phone": {phone}}
	var out struct {
		Events []HistoricalEvent `json:"events"`
	}
	if err := c.get(ctx, "/v1/customers/events", q, &out); err != nil {
		return nil, err
	}
	return out.Events, nil
}
