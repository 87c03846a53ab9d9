package llm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/sashabaranov/go-openai"
)

const openaiKeySecretPath = "/run/secrets/openai_api_key"

// OpenAIClient generates text through any OpenAI-compatible chat API.
//
// # Thread Safety
//
// Safe for concurrent use. The underlying SDK client is stateless per
// request.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient builds a client from the environment. The API key is
// read from OPENAI_API_KEY, falling back to the container secret mount;
// the model from OPENAI_MODEL, defaulting to gpt-4o-mini.
func NewOpenAIClient() (*OpenAIClient, error) {
	apiKey, err := resolveOpenAIKey()
	if err != nil {
		return nil, err
	}

	model := os.Getenv("OPENAI_MODEL")
	if model == "" {
		model = "gpt-4o-mini"
		slog.Warn("OPENAI_MODEL not set, defaulting to gpt-4o-mini")
	}

	slog.Info("Initializing OpenAI client", "model", model)
	return &OpenAIClient{client: openai.NewClient(apiKey), model: model}, nil
}

func resolveOpenAIKey() (string, error) {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		return key, nil
	}
	raw, err := os.ReadFile(openaiKeySecretPath)
	if err != nil {
		return "", fmt.Errorf("OPENAI_API_KEY not set and secret %s unreadable: %w", openaiKeySecretPath, err)
	}
	slog.Info("Read the OpenAI API key from the secret mount")
	return strings.TrimSpace(string(raw)), nil
}

// Generate implements LLMClient. The prompt is sent as a single user
// message; the classification oracles carry their own instructions, so
// no system persona is injected.
func (o *OpenAIClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	ctx, span := tracer.Start(ctx, "OpenAIClient.Generate")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", o.model))

	req := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if params.Temperature != nil {
		req.Temperature = *params.Temperature
	}
	if params.MaxTokens != nil {
		req.MaxCompletionTokens = *params.MaxTokens
	}
	if params.TopP != nil {
		req.TopP = *params.TopP
	}
	if len(params.Stop) > 0 {
		req.Stop = params.Stop
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		return "", fmt.Errorf("openai API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		span.SetStatus(codes.Error, "no choices")
		return "", fmt.Errorf("openai returned no choices")
	}

	slog.Debug("Received response from OpenAI", "finish_reason", resp.Choices[0].FinishReason)
	return resp.Choices[0].Message.Content, nil
}
