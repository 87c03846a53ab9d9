// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"github.com/AleutianAI/AleutianConcierge/pkg/extensions"
	"github.com/AleutianAI/AleutianConcierge/services/orchestrator/enrich"
	"github.com/AleutianAI/AleutianConcierge/services/orchestrator/guardrail"
	"github.com/AleutianAI/AleutianConcierge/services/orchestrator/handlers"
	"github.com/AleutianAI/AleutianConcierge/services/orchestrator/middleware"
	"github.com/AleutianAI/AleutianConcierge/services/orchestrator/resolver"
	"github.com/AleutianAI/AleutianConcierge/services/orchestrator/services"
	"github.com/AleutianAI/AleutianConcierge/services/orchestrator/state"
)

// SetupRoutes wires every HTTP endpoint onto the router.
//
// /health and /metrics are unauthenticated. Everything under /v1 passes
// through the auth provider; the conversation administration and product
// ingestion surfaces additionally require the admin flag.
func SetupRoutes(router *gin.Engine, pipeline *services.MessagePipeline,
	store state.ConversationStore, client *weaviate.Client,
	embedder resolver.Embedder, validator *guardrail.Validator,
	rules enrich.RulesProvider, opts extensions.ServiceOptions) {

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(opts.AuthProvider))
	{
		v1.POST("/messages", handlers.HandleMessage(pipeline))

		// Operator administration routes
		conversations := v1.Group("/conversations")
		conversations.Use(middleware.RequireAdmin())
		{
			conversations.GET("", handlers.ListConversations(store))
			conversations.GET("/:key", handlers.GetConversation(store))
			conversations.DELETE("/:key", handlers.DeleteConversation(store))
		}

		products := v1.Group("/products")
		products.Use(middleware.RequireAdmin())
		{
			products.POST("", handlers.IngestProduct(client, embedder))
		}

		guard := v1.Group("/guardrail")
		guard.Use(middleware.RequireAdmin())
		{
			guard.POST("/check", handlers.CheckGuardrail(validator, rules))
		}
	}
}
