package llm

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("concierge.llm")

type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopK        *int     `json:"top_k"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// LLMClient defines the standard interface for any LLM backend.
type LLMClient interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)
}

// NewClientFromEnv selects a backend by LLM_BACKEND ("ollama" or "openai",
// default ollama) and wraps it with the client-side throttle.
func NewClientFromEnv() (LLMClient, error) {
	backend := os.Getenv("LLM_BACKEND")
	if backend == "" {
		backend = "ollama"
	}

	var (
		client LLMClient
		err    error
	)
	switch backend {
	case "ollama":
		client, err = NewOllamaClient()
	case "openai":
		client, err = NewOpenAIClient()
	default:
		return nil, fmt.Errorf("unknown LLM backend %q", backend)
	}
	if err != nil {
		return nil, err
	}
	return NewThrottledClient(client, 0), nil
}

// Float32Ptr is a convenience for building GenerationParams.
func Float32Ptr(v float32) *float32 { return &v }

// IntPtr is a convenience for building GenerationParams.
func IntPtr(v int) *int { return &v }
