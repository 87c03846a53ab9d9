package llm

import (
	"context"
	"fmt"
	"strings"
)

// AgentName identifies the role-played template a reply came from.
type AgentName string

const (
	AgentSales    AgentName = "sales"
	AgentSupport  AgentName = "support"
	AgentGreeting AgentName = "greeting"
)

// ReplyContext is what the generator may lean on when drafting.
type ReplyContext struct {
	ProductName       string
	ProductMetadata   map[string]string
	AuthorizedRules   []string
	OwnershipStatus   string
	StrategyGuidance  string
	ConversationHints []string
}

// ReplyGenerator drafts the conversational reply for a resolved turn.
type ReplyGenerator interface {
	GenerateReply(ctx context.Context, agent AgentName, message string, rc ReplyContext) (string, error)
}

// AgentReplyGenerator implements ReplyGenerator over an LLMClient with one
// prompt template per agent role.
type AgentReplyGenerator struct {
	client LLMClient
}

var _ ReplyGenerator = (*AgentReplyGenerator)(nil)

// NewAgentReplyGenerator wraps client with the agent templates.
func NewAgentReplyGenerator(client LLMClient) *AgentReplyGenerator {
	return &AgentReplyGenerator{client: client}
}

const salesTemplate = `You are a friendly sales assistant for an online product business.
Product under discussion: %s
Product details:
%s
You may ONLY promise what these authorized rules allow:
%s
Sales approach: %s
Customer message: %q
Reply in the customer's language, briefly and helpfully. Never invent discounts, payment terms or guarantees outside the authorized rules.`

const supportTemplate = `You are a patient support assistant for an online product business.
Product under discussion: %s
Customer status: %s
You may ONLY promise what these authorized rules allow:
%s
Customer message: %q
Reply in the customer's language. Be concrete about next steps; never promise refunds or timelines outside the authorized rules.`

const greetingTemplate = `You are a warm assistant for an online product business.
The customer opened the conversation with a greeting: %q
Greet them back in their language, in one or two short sentences, and invite them to say what they need. Do not mention any product, price or offer.`

// GenerateReply implements ReplyGenerator.
func (g *AgentReplyGenerator) GenerateReply(ctx context.Context, agent AgentName, message string, rc ReplyContext) (string, error) {
	var prompt string
	switch agent {
	case AgentSupport:
		prompt = fmt.Sprintf(supportTemplate,
			rc.ProductName,
			rc.OwnershipStatus,
			bulleted(rc.AuthorizedRules),
			message,
		)
	case AgentSales:
		prompt = fmt.Sprintf(salesTemplate,
			rc.ProductName,
			formatMetadata(rc.ProductMetadata),
			bulleted(rc.AuthorizedRules),
			rc.StrategyGuidance,
			message,
		)
	case AgentGreeting:
		prompt = fmt.Sprintf(greetingTemplate, message)
	default:
		return "", fmt.Errorf("no template for agent %q", agent)
	}

	params := GenerationParams{
		Temperature: Float32Ptr(0.6),
		MaxTokens:   IntPtr(512),
	}
	reply, err := g.client.Generate(ctx, prompt, params)
	if err != nil {
		return "", fmt.Errorf("reply generation failed: %w", err)
	}
	return strings.TrimSpace(reply), nil
}

func formatMetadata(md map[string]string) string {
	if len(md) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for k, v := range md {
		fmt.Fprintf(&b, "- %s: %s\n", k, v)
	}
	return b.String()
}
