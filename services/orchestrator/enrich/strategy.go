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
	"strings"
	"time"

	"github.com/AleutianAI/AleutianConcierge/services/orchestrator/datatypes"
)

// StrategyProvider suggests a sales approach for a product inquiry.
type StrategyProvider interface {
	Strategy(ctx context.Context, teamID, productID, message string) (datatypes.SalesStrategy, error)
}

// HTTPStrategyProvider calls the strategy service, falling back to a
// deterministic keyword table when the service is unreachable.
//
// # Limitations
//
//   - The fallback table is intentionally coarse. It exists so sales
//     conversations keep moving when the strategy service is down, not
//     to match its quality.
type HTTPStrategyProvider struct {
	httpClient *http.Client
	baseURL    string
}

var _ StrategyProvider = (*HTTPStrategyProvider)(nil)

// NewHTTPStrategyProvider builds a provider against baseURL.
func NewHTTPStrategyProvider(baseURL string, timeout time.Duration) *HTTPStrategyProvider {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPStrategyProvider{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
	}
}

// Strategy implements StrategyProvider. A transport or decode failure
// returns the keyword fallback together with the error so the caller
// can decide whether to record the degradation.
func (p *HTTPStrategyProvider) Strategy(ctx context.Context, teamID, productID, message string) (datatypes.SalesStrategy, error) {
	payload, err := json.Marshal(map[string]string{
		"team_id":    teamID,
		"product_id": productID,
		"message":    message,
	})
	if err != nil {
		return FallbackStrategy(message), fmt.Errorf("failed to marshal strategy request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/strategy", strings.NewReader(string(payload)))
	if err != nil {
		return FallbackStrategy(message), fmt.Errorf("failed to build strategy request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return FallbackStrategy(message), fmt.Errorf("strategy service call failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return FallbackStrategy(message), fmt.Errorf("failed to read strategy response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return FallbackStrategy(message), fmt.Errorf("strategy service returned status %d: %s", resp.StatusCode, string(body))
	}

	var out datatypes.SalesStrategy
	if err := json.Unmarshal(body, &out); err != nil {
		return FallbackStrategy(message), fmt.Errorf("failed to decode strategy response: %w", err)
	}
	return out, nil
}

// fallbackTable maps message keywords to a canned approach. First hit
// wins, checked in order.
var fallbackTable = []struct {
	keywords []string
	name     string
	guidance string
}{
	{
		keywords: []string{"preço", "preco", "caro", "valor", "price", "expensive"},
		name:     "value_framing",
		guidance: "Acknowledge the price concern and restate the concrete outcomes the product delivers before any discount talk.",
	},
	{
		keywords: []string{"dúvida", "duvida", "como funciona", "how does", "what is"},
		name:     "educate",
		guidance: "Answer the question plainly, then offer one relevant next step.",
	},
	{
		keywords: []string{"comprar", "quero", "buy", "checkout", "pagar"},
		name:     "close",
		guidance: "The customer is ready. Remove friction and point to the purchase flow.",
	},
}

// FallbackStrategy returns the deterministic keyword-table strategy for
// a message. Always succeeds.
func FallbackStrategy(message string) datatypes.SalesStrategy {
	lower := strings.ToLower(message)
	for _, entry := range fallbackTable {
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				return datatypes.SalesStrategy{
					Name:       entry.name,
					Guidance:   entry.guidance,
					IsFallback: true,
				}
			}
		}
	}
	return datatypes.SalesStrategy{
		Name:       "consultative",
		Guidance:   "Understand what the customer is trying to achieve before pitching.",
		IsFallback: true,
	}
}
