// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package guardrail

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianConcierge/services/llm"
	"github.com/AleutianAI/AleutianConcierge/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianConcierge/services/orchestrator/guardrail/enforcement"
	"github.com/AleutianAI/AleutianConcierge/services/orchestrator/observability"
)

var tracer = otel.Tracer("concierge.guardrail")

const piiMask = "[REDACTED]"

// Result is the verdict on one drafted reply.
type Result struct {
	Issues []datatypes.ValidationIssue
	// Escalate is true when any issue is critical or two or more are high.
	Escalate bool
	// SanitizedReply is the draft with every PII match masked. It is what
	// the caller must return to the user whenever Escalate is true.
	SanitizedReply string
}

// Validator scans drafted replies against the embedded PII and promise
// batteries before they are released.
//
// # Description
//
// The batteries are compiled-regex classifications loaded from an
// embedded YAML file at construction. PII matches are critical and
// masked in a sanitized copy of the draft. Promise matches are handed,
// with the authorized-rules list, to the promise arbiter oracle; spans
// the arbiter rejects become unauthorized_promise issues. The arbiter
// is allowed to fail: transport or parse failure degrades to flagging
// every matched promise as high severity.
//
// # Thread Safety
//
// Safe for concurrent use once constructed. The compiled batteries are
// read-only after NewValidator returns.
type Validator struct {
	classifications []Classification
	arbiter         llm.PromiseArbiter
}

// NewValidator loads and compiles the embedded batteries. The arbiter
// may be nil; every promise match is then treated as unauthorized/high.
func NewValidator(arbiter llm.PromiseArbiter) (*Validator, error) {
	var file GuardBatteryFile
	if err := yaml.Unmarshal(enforcement.ReplyGuardPatterns, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal the embedded guard file: %w", err)
	}
	if err := file.CompileRegexes(); err != nil {
		return nil, fmt.Errorf("failed to compile a guard regex: %w", err)
	}
	file.SortByPriority()
	return &Validator{classifications: file.Classifications, arbiter: arbiter}, nil
}

// Validate scans draft and returns the issues, the escalation decision,
// and the PII-sanitized copy. The sanitized copy is produced whether or
// not the result escalates.
func (v *Validator) Validate(ctx context.Context, draft string, rules []datatypes.AuthorizedRule) (Result, error) {
	ctx, span := tracer.Start(ctx, "Validate")
	defer span.End()

	res := Result{SanitizedReply: draft}

	var promiseSpans []string
	for _, classifier := range v.classifications {
		for _, pattern := range classifier.Patterns {
			matches := pattern.compiledPattern.FindAllString(res.SanitizedReply, -1)
			if len(matches) == 0 {
				continue
			}
			switch classifier.Kind {
			case KindPII:
				for range matches {
					res.Issues = append(res.Issues, datatypes.ValidationIssue{
						Type:        datatypes.IssuePII,
						Severity:    datatypes.SeverityCritical,
						Description: pattern.Description,
					})
				}
				// Masking runs against the sanitized copy so later
				// patterns never re-match already redacted spans.
				res.SanitizedReply = pattern.compiledPattern.ReplaceAllString(res.SanitizedReply, piiMask)
			case KindPromise:
				promiseSpans = append(promiseSpans, matches...)
			}
		}
	}

	if len(promiseSpans) > 0 {
		res.Issues = append(res.Issues, v.judgePromises(ctx, promiseSpans, rules)...)
	}

	res.Escalate = shouldEscalate(res.Issues)

	for _, issue := range res.Issues {
		observability.RecordGuardrailIssue(string(issue.Type), string(issue.Severity))
	}
	span.SetAttributes(
		attribute.Int("guardrail.issues", len(res.Issues)),
		attribute.Bool("guardrail.escalate", res.Escalate),
	)
	return res, nil
}

func (v *Validator) judgePromises(ctx context.Context, spans []string, rules []datatypes.AuthorizedRule) []datatypes.ValidationIssue {
	if v.arbiter == nil {
		return conservativePromiseIssues(spans)
	}

	ruleTexts := make([]string, 0, len(rules))
	for _, r := range rules {
		ruleTexts = append(ruleTexts, fmt.Sprintf("[%s] %s", r.Category, r.Description))
	}

	verdict, err := v.arbiter.JudgePromises(ctx, spans, ruleTexts)
	if err != nil {
		slog.Warn("promise arbiter failed, flagging all matched promises", "error", err, "promises", len(spans))
		if len(verdict.Unauthorized) == 0 {
			return conservativePromiseIssues(spans)
		}
	}

	var issues []datatypes.ValidationIssue
	for _, p := range verdict.Unauthorized {
		issues = append(issues, datatypes.ValidationIssue{
			Type:        datatypes.IssueUnauthorizedPromise,
			Severity:    severityFromArbiter(p.Severity),
			Description: fmt.Sprintf("unauthorized promise %q: %s", p.Promise, p.Reason),
		})
	}
	return issues
}

func conservativePromiseIssues(spans []string) []datatypes.ValidationIssue {
	issues := make([]datatypes.ValidationIssue, 0, len(spans))
	for _, span := range spans {
		issues = append(issues, datatypes.ValidationIssue{
			Type:        datatypes.IssueUnauthorizedPromise,
			Severity:    datatypes.SeverityHigh,
			Description: fmt.Sprintf("promise %q could not be verified against authorized rules", span),
		})
	}
	return issues
}

func severityFromArbiter(s string) datatypes.IssueSeverity {
	switch datatypes.IssueSeverity(strings.ToLower(s)) {
	case datatypes.SeverityCritical, datatypes.SeverityHigh, datatypes.SeverityMedium, datatypes.SeverityLow:
		return datatypes.IssueSeverity(strings.ToLower(s))
	}
	return datatypes.SeverityHigh
}

func shouldEscalate(issues []datatypes.ValidationIssue) bool {
	highs := 0
	for _, issue := range issues {
		switch issue.Severity {
		case datatypes.SeverityCritical:
			return true
		case datatypes.SeverityHigh:
			highs++
		}
	}
	return highs >= 2
}
