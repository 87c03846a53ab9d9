package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

// This file contains the classification oracles the conversation pipeline
// consults. Every oracle returns a small typed result parsed from free-form
// model output; a parse failure degrades to the most conservative result
// instead of erroring, so a flaky model can never wedge the state machine.

// =============================================================================
// Results
// =============================================================================

// ConfirmationVerdict is the outcome of a yes/no/unclear classification.
type ConfirmationVerdict string

const (
	VerdictConfirmed  ConfirmationVerdict = "confirmed"
	VerdictRejected   ConfirmationVerdict = "rejected"
	VerdictIndecisive ConfirmationVerdict = "indecisive"
)

// ConfirmationResult is returned by the confirmation oracle.
type ConfirmationResult struct {
	Verdict ConfirmationVerdict `json:"verdict"`
}

// SelectionResult is returned by the multi-product selection oracle.
// SelectedIndex is 1-based; nil when the reply picked nothing.
type SelectionResult struct {
	SelectedIndex *int `json:"selected_index"`
	IsSelection   bool `json:"is_selection"`
	IsNewQuestion bool `json:"is_new_question"`
}

// IntentResult is returned by the intent oracle.
type IntentResult struct {
	Intent              string  `json:"intent"`
	Confidence          float64 `json:"confidence"`
	ExplicitProductName string  `json:"explicit_product_name"`
}

// UnauthorizedPromise is one promise the arbiter rejected.
type UnauthorizedPromise struct {
	Promise  string `json:"promise"`
	Reason   string `json:"reason"`
	Severity string `json:"severity"`
}

// ArbiterResult is returned by the promise-authorization oracle.
type ArbiterResult struct {
	Unauthorized []UnauthorizedPromise `json:"unauthorized"`
	Confidence   float64               `json:"confidence"`
}

// =============================================================================
// Oracle Interfaces
// =============================================================================

// ConfirmationOracle classifies a reply to a pending yes/no question.
type ConfirmationOracle interface {
	ClassifyConfirmation(ctx context.Context, question, reply string) (ConfirmationResult, error)
}

// SelectionOracle classifies a reply to a pending numbered-list question.
type SelectionOracle interface {
	ClassifySelection(ctx context.Context, options []string, originalMessage, reply string) (SelectionResult, error)
}

// IntentOracle classifies the intent of a free message.
type IntentOracle interface {
	ClassifyIntent(ctx context.Context, message string) (IntentResult, error)
}

// PromiseArbiter judges flagged promise language against authorized rules.
type PromiseArbiter interface {
	JudgePromises(ctx context.Context, promises, authorizedRules []string) (ArbiterResult, error)
}

// =============================================================================
// LLM-Backed Implementation
// =============================================================================

// Oracles implements every oracle interface over one LLMClient.
type Oracles struct {
	client LLMClient
}

var _ ConfirmationOracle = (*Oracles)(nil)
var _ SelectionOracle = (*Oracles)(nil)
var _ IntentOracle = (*Oracles)(nil)
var _ PromiseArbiter = (*Oracles)(nil)

// NewOracles wraps client with the classification prompts.
func NewOracles(client LLMClient) *Oracles {
	return &Oracles{client: client}
}

// classifierParams keeps classification deterministic and short.
func classifierParams() GenerationParams {
	return GenerationParams{
		Temperature: Float32Ptr(0.0),
		MaxTokens:   IntPtr(256),
	}
}

const confirmationPrompt = `You classify a customer's reply to a pending yes/no question.
Question asked to the customer: %q
Customer reply: %q
The reply may be in Portuguese or English ("sim", "isso", "yes" mean confirmed; "nao", "não", "no" mean rejected).
Answer ONLY with JSON: {"verdict":"confirmed"} or {"verdict":"rejected"} or {"verdict":"indecisive"}`

// ClassifyConfirmation implements ConfirmationOracle.
func (o *Oracles) ClassifyConfirmation(ctx context.Context, question, reply string) (ConfirmationResult, error) {
	prompt := fmt.Sprintf(confirmationPrompt, question, reply)
	raw, err := o.client.Generate(ctx, prompt, classifierParams())
	if err != nil {
		return ConfirmationResult{Verdict: VerdictIndecisive}, err
	}

	var res ConfirmationResult
	if perr := parseOracleJSON(raw, &res); perr != nil || !validVerdict(res.Verdict) {
		slog.Warn("Confirmation oracle output unparseable, degrading to indecisive", "raw", truncate(raw, 200))
		return ConfirmationResult{Verdict: VerdictIndecisive}, nil
	}
	return res, nil
}

func validVerdict(v ConfirmationVerdict) bool {
	switch v {
	case VerdictConfirmed, VerdictRejected, VerdictIndecisive:
		return true
	}
	return false
}

const selectionPrompt = `A customer was shown this numbered product list:
%s
Their original message was: %q
Their reply: %q
Decide whether the reply picks one option (by number or by name), or asks a new unrelated question.
Answer ONLY with JSON: {"selected_index": <1-based number or null>, "is_selection": <bool>, "is_new_question": <bool>}`

// ClassifySelection implements SelectionOracle.
func (o *Oracles) ClassifySelection(ctx context.Context, options []string, originalMessage, reply string) (SelectionResult, error) {
	var list strings.Builder
	for i, opt := range options {
		fmt.Fprintf(&list, "%d. %s\n", i+1, opt)
	}

	prompt := fmt.Sprintf(selectionPrompt, list.String(), originalMessage, reply)
	raw, err := o.client.Generate(ctx, prompt, classifierParams())
	if err != nil {
		return SelectionResult{}, err
	}

	var res SelectionResult
	if perr := parseOracleJSON(raw, &res); perr != nil {
		slog.Warn("Selection oracle output unparseable, degrading to no-selection", "raw", truncate(raw, 200))
		return SelectionResult{}, nil
	}
	return res, nil
}

const intentPrompt = `Classify the intent of this customer message: %q
Intents: "buy_question", "support_request", "refund_request", "greeting", "other".
If the message explicitly names a product, put the name in explicit_product_name, else "".
Answer ONLY with JSON: {"intent": "...", "confidence": <0..1>, "explicit_product_name": "..."}`

// ClassifyIntent implements IntentOracle.
func (o *Oracles) ClassifyIntent(ctx context.Context, message string) (IntentResult, error) {
	prompt := fmt.Sprintf(intentPrompt, message)
	raw, err := o.client.Generate(ctx, prompt, classifierParams())
	if err != nil {
		return IntentResult{Intent: "other"}, err
	}

	var res IntentResult
	if perr := parseOracleJSON(raw, &res); perr != nil || res.Intent == "" {
		slog.Warn("Intent oracle output unparseable, degrading to other", "raw", truncate(raw, 200))
		return IntentResult{Intent: "other"}, nil
	}
	return res, nil
}

const arbiterPrompt = `A drafted customer reply contains promise-like statements. Judge each against the authorized rules.
Promises:
%s
Authorized rules:
%s
Answer ONLY with JSON: {"unauthorized":[{"promise":"...","reason":"...","severity":"high|medium|low"}],"confidence":<0..1>}`

// JudgePromises implements PromiseArbiter.
//
// A parse failure degrades conservatively: every flagged promise comes back
// unauthorized at high severity.
func (o *Oracles) JudgePromises(ctx context.Context, promises, authorizedRules []string) (ArbiterResult, error) {
	prompt := fmt.Sprintf(arbiterPrompt, bulleted(promises), bulleted(authorizedRules))
	raw, err := o.client.Generate(ctx, prompt, classifierParams())
	if err != nil {
		return conservativeArbiterResult(promises), err
	}

	var res ArbiterResult
	if perr := parseOracleJSON(raw, &res); perr != nil {
		slog.Warn("Promise arbiter output unparseable, flagging all promises", "raw", truncate(raw, 200))
		return conservativeArbiterResult(promises), nil
	}
	return res, nil
}

func conservativeArbiterResult(promises []string) ArbiterResult {
	res := ArbiterResult{Confidence: 0}
	for _, p := range promises {
		res.Unauthorized = append(res.Unauthorized, UnauthorizedPromise{
			Promise:  p,
			Reason:   "arbiter unavailable, flagged conservatively",
			Severity: "high",
		})
	}
	return res
}

func bulleted(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for _, it := range items {
		b.WriteString("- ")
		b.WriteString(it)
		b.WriteString("\n")
	}
	return b.String()
}

// =============================================================================
// JSON Extraction
// =============================================================================

// parseOracleJSON pulls the first JSON object out of free-form model output.
// Models wrap answers in prose and code fences often enough that a plain
// Unmarshal is not good enough.
func parseOracleJSON(raw string, target any) error {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end == -1 || end < start {
		return fmt.Errorf("no JSON object in oracle output")
	}
	return json.Unmarshal([]byte(raw[start:end+1]), target)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
