// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command concierge starts the Aleutian concierge HTTP server.
//
// This is the main entry point for the containerized service. It reads
// configuration from environment variables and starts the server.
//
// # Environment Variables
//
//   - CONCIERGE_PORT: HTTP server port (default: 12210)
//   - LLM_BACKEND: model provider - ollama, openai (default: ollama)
//   - WEAVIATE_SERVICE_URL: product index URL (optional)
//   - EMBEDDER_URL / EMBEDDER_MODEL: embedding endpoint for the index
//   - RERANKER_URL: cross-encoder endpoint (optional)
//   - CUSTOMER_API_URL: platform customer-data service (optional)
//   - STRATEGY_API_URL: sales-strategy service (optional)
//   - AUTHORIZED_RULES_PATH: rules file watched for hot reload (optional)
//   - ESCALATION_WEBHOOK_URL: ticket delivery webhook (optional)
//   - CONVERSATION_STORE_PATH: BadgerDB directory (default: in-memory)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: collector (default: aleutian-otel-collector:4317)
//
// # Usage
//
//	# Build
//	go build -o concierge ./cmd/concierge
//
//	# Run
//	./concierge
//
//	# Or via container
//	podman-compose up concierge
package main

import (
	"log"
	"log/slog"
	"os"
	"strconv"

	"github.com/AleutianAI/AleutianConcierge/services/orchestrator"
)

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := orchestrator.Config{
		Port:                 getEnvInt("CONCIERGE_PORT", 12210),
		LLMBackend:           os.Getenv("LLM_BACKEND"),
		WeaviateURL:          os.Getenv("WEAVIATE_SERVICE_URL"),
		EmbedderURL:          os.Getenv("EMBEDDER_URL"),
		EmbedderModel:        os.Getenv("EMBEDDER_MODEL"),
		RerankerURL:          os.Getenv("RERANKER_URL"),
		CustomerAPIURL:       os.Getenv("CUSTOMER_API_URL"),
		StrategyAPIURL:       os.Getenv("STRATEGY_API_URL"),
		RulesPath:            os.Getenv("AUTHORIZED_RULES_PATH"),
		EscalationWebhookURL: os.Getenv("ESCALATION_WEBHOOK_URL"),
		BadgerPath:           os.Getenv("CONVERSATION_STORE_PATH"),
		OTelEndpoint:         getEnvString("OTEL_EXPORTER_OTLP_ENDPOINT", "aleutian-otel-collector:4317"),
	}

	slog.Info("Starting concierge",
		"port", cfg.Port,
		"llm_backend", cfg.LLMBackend,
		"weaviate_url", cfg.WeaviateURL,
	)

	// Default (no-op) extension options; hosted builds pass custom
	// ServiceOptions here
	svc, err := orchestrator.New(cfg, nil)
	if err != nil {
		log.Fatalf("Failed to create concierge service: %v", err)
	}

	// Run the server (blocks until shutdown)
	if err := svc.Run(); err != nil {
		log.Fatalf("Concierge server error: %v", err)
	}
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
