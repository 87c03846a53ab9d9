package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// ThrottledClient wraps an LLMClient with a client-side request limiter so
// a burst of oracle calls cannot saturate the backend.
type ThrottledClient struct {
	inner   LLMClient
	limiter *rate.Limiter
}

// NewThrottledClient wraps inner with a limiter. requestsPerSecond <= 0
// selects the default of 5 rps with a burst of 10.
func NewThrottledClient(inner LLMClient, requestsPerSecond float64) *ThrottledClient {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 5
	}
	burst := int(requestsPerSecond * 2)
	if burst < 1 {
		burst = 1
	}
	return &ThrottledClient{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
	}
}

// Generate implements the LLMClient interface. Blocks until a token is
// available or the context expires.
func (t *ThrottledClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("llm throttle wait: %w", err)
	}
	return t.inner.Generate(ctx, prompt, params)
}
