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
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianConcierge/services/orchestrator/datatypes"
)

var tracer = otel.Tracer("concierge.enrich")

// Config controls enricher behavior.
type Config struct {
	// FetchTimeout bounds each individual fetch. Defaults to 5s.
	FetchTimeout time.Duration
}

func applyConfigDefaults(cfg *Config) {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 5 * time.Second
	}
}

// Enricher assembles the context a reply is generated against.
//
// # Description
//
// Enricher fans out to the rules file, the customer API, and the
// strategy service in parallel. Each fetch that fails leaves its field
// at its safe default and records the field name in Degraded; a turn is
// never failed because enrichment data was unavailable.
//
// # Thread Safety
//
// Safe for concurrent use. Each Enrich call works on its own
// EnrichedContext.
type Enricher struct {
	rules    RulesProvider
	customer CustomerClient
	strategy StrategyProvider
	cfg      Config
}

// NewEnricher wires an enricher. Any provider may be nil; its field
// then always takes the safe default without being counted as degraded.
func NewEnricher(rules RulesProvider, customer CustomerClient, strategy StrategyProvider, cfg Config) *Enricher {
	applyConfigDefaults(&cfg)
	return &Enricher{rules: rules, customer: customer, strategy: strategy, cfg: cfg}
}

// Request identifies the turn being enriched.
type Request struct {
	TeamID      string
	Phone       string
	Message     string
	ProductID   string
	ProductName string
	Mode        datatypes.ConversationMode
}

// Enrich runs the fan-out and returns the assembled context. The error
// is always nil today; the signature leaves room for a future hard
// dependency.
func (e *Enricher) Enrich(ctx context.Context, req Request) (*datatypes.EnrichedContext, error) {
	ctx, span := tracer.Start(ctx, "Enrich")
	defer span.End()
	span.SetAttributes(
		attribute.String("product.id", req.ProductID),
		attribute.String("conversation.mode", string(req.Mode)),
	)

	enriched := &datatypes.EnrichedContext{
		ProductID:   req.ProductID,
		ProductName: req.ProductName,
		Ownership:   datatypes.OwnershipUnknown,
	}

	// Degraded is appended from multiple goroutines; collect per-fetch
	// results into slots and merge after Wait instead of locking.
	var (
		degradedRules     bool
		degradedOwnership bool
		degradedStrategy  bool
		degradedPurchases bool
	)

	g, gctx := errgroup.WithContext(ctx)

	if e.rules != nil {
		g.Go(func() error {
			fctx, cancel := context.WithTimeout(gctx, e.cfg.FetchTimeout)
			defer cancel()
			rules, err := e.rules.AuthorizedRules(fctx, req.ProductID)
			if err != nil {
				slog.Warn("rules fetch failed, continuing without rules", "error", err)
				degradedRules = true
				return nil
			}
			enriched.Rules = rules
			return nil
		})
	}

	if e.customer != nil && req.Phone != "" {
		g.Go(func() error {
			fctx, cancel := context.WithTimeout(gctx, e.cfg.FetchTimeout)
			defer cancel()
			status, err := e.customer.Ownership(fctx, req.TeamID, req.Phone, req.ProductID)
			if err != nil {
				slog.Warn("ownership fetch failed, treating customer as unknown", "error", err)
				degradedOwnership = true
				return nil
			}
			enriched.Ownership = status
			return nil
		})

		g.Go(func() error {
			fctx, cancel := context.WithTimeout(gctx, e.cfg.FetchTimeout)
			defer cancel()
			purchases, err := e.customer.Purchases(fctx, req.TeamID, req.Phone)
			if err != nil {
				slog.Warn("purchases fetch failed, continuing without purchase set", "error", err)
				degradedPurchases = true
				return nil
			}
			enriched.PurchasedProducts = purchases
			return nil
		})
	}

	if e.strategy != nil && req.Mode == datatypes.ModeSales {
		g.Go(func() error {
			fctx, cancel := context.WithTimeout(gctx, e.cfg.FetchTimeout)
			defer cancel()
			strat, err := e.strategy.Strategy(fctx, req.TeamID, req.ProductID, req.Message)
			if err != nil {
				slog.Warn("strategy fetch failed, using keyword fallback", "error", err)
				degradedStrategy = true
			}
			enriched.Strategy = strat
			return nil
		})
	}

	// Fetch goroutines never return errors; Wait only orders the merge.
	_ = g.Wait()

	if degradedRules {
		enriched.Degraded = append(enriched.Degraded, "rules")
	}
	if degradedOwnership {
		enriched.Degraded = append(enriched.Degraded, "ownership")
	}
	if degradedStrategy {
		enriched.Degraded = append(enriched.Degraded, "strategy")
	}
	if degradedPurchases {
		enriched.Degraded = append(enriched.Degraded, "purchases")
	}

	if len(enriched.Degraded) > 0 {
		span.SetAttributes(attribute.StringSlice("enrich.degraded", enriched.Degraded))
	}
	return enriched, nil
}
