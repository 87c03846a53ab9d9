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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianConcierge/services/llm"
	"github.com/AleutianAI/AleutianConcierge/services/orchestrator/datatypes"
)

type fakeArbiter struct {
	result       llm.ArbiterResult
	err          error
	gotPromises  []string
	gotRuleTexts []string
}

func (f *fakeArbiter) JudgePromises(_ context.Context, promises, rules []string) (llm.ArbiterResult, error) {
	f.gotPromises = promises
	f.gotRuleTexts = rules
	return f.result, f.err
}

func newValidator(t *testing.T, arbiter llm.PromiseArbiter) *Validator {
	t.Helper()
	v, err := NewValidator(arbiter)
	require.NoError(t, err)
	return v
}

func TestValidateCleanReplyPasses(t *testing.T) {
	v := newValidator(t, &fakeArbiter{})
	res, err := v.Validate(context.Background(), "O curso cobre os módulos 1 a 4. Qualquer dúvida me avise!", nil)
	require.NoError(t, err)
	assert.Empty(t, res.Issues)
	assert.False(t, res.Escalate)
}

func TestValidateNationalIDEscalatesAndMasks(t *testing.T) {
	v := newValidator(t, &fakeArbiter{})
	draft := "Confirmei seu cadastro com o documento 123.456.789-09, tudo certo."

	res, err := v.Validate(context.Background(), draft, nil)
	require.NoError(t, err)

	require.NotEmpty(t, res.Issues)
	assert.Equal(t, datatypes.IssuePII, res.Issues[0].Type)
	assert.Equal(t, datatypes.SeverityCritical, res.Issues[0].Severity)
	assert.True(t, res.Escalate)
	assert.NotContains(t, res.SanitizedReply, "123.456.789-09")
	assert.Contains(t, res.SanitizedReply, piiMask)
}

func TestValidateEmailIsMasked(t *testing.T) {
	v := newValidator(t, &fakeArbiter{})
	res, err := v.Validate(context.Background(), "Pode escrever para suporte@exemplo.com.br quando quiser.", nil)
	require.NoError(t, err)
	assert.True(t, res.Escalate)
	assert.NotContains(t, res.SanitizedReply, "suporte@exemplo.com.br")
}

func TestValidateAuthorizedPromisePasses(t *testing.T) {
	arbiter := &fakeArbiter{result: llm.ArbiterResult{Confidence: 0.95}}
	v := newValidator(t, arbiter)
	rules := []datatypes.AuthorizedRule{{Category: "refund", Description: "7-day refund window"}}

	res, err := v.Validate(context.Background(), "Você tem reembolso garantido em até 7 dias após a compra.", rules)
	require.NoError(t, err)

	// The promise battery fired and the arbiter cleared it.
	assert.NotEmpty(t, arbiter.gotPromises)
	require.Len(t, arbiter.gotRuleTexts, 1)
	assert.Contains(t, arbiter.gotRuleTexts[0], "refund")
	assert.Empty(t, res.Issues)
	assert.False(t, res.Escalate)
}

func TestValidateUnauthorizedPromisesEscalateAtTwoHighs(t *testing.T) {
	arbiter := &fakeArbiter{result: llm.ArbiterResult{
		Unauthorized: []llm.UnauthorizedPromise{
			{Promise: "50% de desconto", Reason: "no discount rule", Severity: "high"},
			{Promise: "garantia vitalícia", Reason: "no guarantee rule", Severity: "high"},
		},
		Confidence: 0.9,
	}}
	v := newValidator(t, arbiter)

	res, err := v.Validate(context.Background(), "Te dou 50% de desconto e garantia vitalícia!", nil)
	require.NoError(t, err)

	require.Len(t, res.Issues, 2)
	for _, issue := range res.Issues {
		assert.Equal(t, datatypes.IssueUnauthorizedPromise, issue.Type)
		assert.Equal(t, datatypes.SeverityHigh, issue.Severity)
	}
	assert.True(t, res.Escalate)
}

func TestValidateSingleHighDoesNotEscalate(t *testing.T) {
	arbiter := &fakeArbiter{result: llm.ArbiterResult{
		Unauthorized: []llm.UnauthorizedPromise{
			{Promise: "oferta limitada", Reason: "not authorized", Severity: "high"},
		},
	}}
	v := newValidator(t, arbiter)

	res, err := v.Validate(context.Background(), "Aproveite, é uma oferta limitada.", nil)
	require.NoError(t, err)
	require.Len(t, res.Issues, 1)
	assert.False(t, res.Escalate)
}

func TestValidateArbiterFailureIsConservative(t *testing.T) {
	arbiter := &fakeArbiter{err: errors.New("llm unreachable")}
	v := newValidator(t, arbiter)

	res, err := v.Validate(context.Background(), "Curso grátis com garantia total.", nil)
	require.NoError(t, err)

	// Two promise patterns matched; both come back as high and together
	// they escalate.
	require.GreaterOrEqual(t, len(res.Issues), 2)
	for _, issue := range res.Issues {
		assert.Equal(t, datatypes.IssueUnauthorizedPromise, issue.Type)
		assert.Equal(t, datatypes.SeverityHigh, issue.Severity)
	}
	assert.True(t, res.Escalate)
}

func TestValidateNilArbiterTreatsPromisesAsUnauthorized(t *testing.T) {
	v := newValidator(t, nil)
	res, err := v.Validate(context.Background(), "Tudo com garantia estendida.", nil)
	require.NoError(t, err)
	require.Len(t, res.Issues, 1)
	assert.Equal(t, datatypes.SeverityHigh, res.Issues[0].Severity)
}

func TestSeverityFromArbiterDefaultsToHigh(t *testing.T) {
	assert.Equal(t, datatypes.SeverityCritical, severityFromArbiter("CRITICAL"))
	assert.Equal(t, datatypes.SeverityLow, severityFromArbiter("low"))
	assert.Equal(t, datatypes.SeverityHigh, severityFromArbiter("weird"))
	assert.Equal(t, datatypes.SeverityHigh, severityFromArbiter(""))
}

func TestShouldEscalatePolicy(t *testing.T) {
	tests := []struct {
		name       string
		severities []datatypes.IssueSeverity
		want       bool
	}{
		{"no issues", nil, false},
		{"single critical", []datatypes.IssueSeverity{datatypes.SeverityCritical}, true},
		{"single high", []datatypes.IssueSeverity{datatypes.SeverityHigh}, false},
		{"two highs", []datatypes.IssueSeverity{datatypes.SeverityHigh, datatypes.SeverityHigh}, true},
		{"high plus mediums", []datatypes.IssueSeverity{datatypes.SeverityHigh, datatypes.SeverityMedium, datatypes.SeverityMedium}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issues := make([]datatypes.ValidationIssue, 0, len(tt.severities))
			for _, s := range tt.severities {
				issues = append(issues, datatypes.ValidationIssue{Severity: s})
			}
			assert.Equal(t, tt.want, shouldEscalate(issues))
		})
	}
}
