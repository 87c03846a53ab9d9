// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationKey(t *testing.T) {
	tests := []struct {
		name   string
		teamID string
		phone  string
		email  string
		want   string
	}{
		{"phone wins", "t1", "+55 (11) 98765-4321", "a@b.com", "5511987654321"},
		{"email when phone empty", "t1", "", "Ana@Example.COM", "ana@example.com"},
		{"email when phone has no digits", "t1", "n/a", "a@b.com", "a@b.com"},
		{"team fallback", "t1", "", "", "team:t1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ConversationKey(tt.teamID, tt.phone, tt.email))
		})
	}
}

func TestPendingExclusivity(t *testing.T) {
	s := NewConversationState("5511987654321", "t1")
	now := time.Now()

	s.SetPendingConfirmation(&PendingProductConfirmation{
		SuggestedProductID: "p1",
		Timestamp:          now,
	})
	s.SetPendingMultiSelect(&PendingMultiProductSelection{
		Products:  []PendingProductOption{{Index: 1, ProductID: "p1"}},
		Timestamp: now,
	})

	assert.Nil(t, s.PendingConfirmation)
	require.NotNil(t, s.PendingMultiSelect)

	s.SetPendingSwitch(&PendingContextSwitch{FromProductID: "p1", ToProductID: "p2", Timestamp: now})
	assert.Nil(t, s.PendingMultiSelect)
	require.NotNil(t, s.PendingSwitch)

	s.SetPendingConfirmation(&PendingProductConfirmation{SuggestedProductID: "p2", Timestamp: now})
	assert.Nil(t, s.PendingSwitch)
	require.NotNil(t, s.PendingConfirmation)

	count := 0
	if s.PendingConfirmation != nil {
		count++
	}
	if s.PendingMultiSelect != nil {
		count++
	}
	if s.PendingSwitch != nil {
		count++
	}
	assert.Equal(t, 1, count)

	s.ClearPending()
	assert.False(t, s.HasPending())
}

func TestExpirePending(t *testing.T) {
	s := NewConversationState("k", "t1")
	armed := time.Now().Add(-25 * time.Hour)
	s.SetPendingConfirmation(&PendingProductConfirmation{SuggestedProductID: "p1", Timestamp: armed})

	assert.True(t, s.ExpirePending(time.Now()))
	assert.False(t, s.HasPending())

	s.SetPendingConfirmation(&PendingProductConfirmation{SuggestedProductID: "p1", Timestamp: time.Now()})
	assert.False(t, s.ExpirePending(time.Now()))
	assert.True(t, s.HasPending())
}

func TestSetCurrentProductHistory(t *testing.T) {
	s := NewConversationState("k", "t1")
	t0 := time.Now()

	s.SetCurrentProduct("p1", t0)
	s.SetCurrentProduct("p1", t0.Add(time.Minute)) // no-op, unchanged product
	s.SetCurrentProduct("p2", t0.Add(2*time.Minute))

	require.Len(t, s.ProductHistory, 2)
	assert.Equal(t, "p1", s.ProductHistory[0].ProductID)
	assert.Equal(t, "p2", s.ProductHistory[1].ProductID)
	assert.Equal(t, "p2", s.CurrentProductID)
}

func TestOptionByIndex(t *testing.T) {
	p := &PendingMultiProductSelection{
		Products: []PendingProductOption{
			{Index: 1, ProductID: "p1"},
			{Index: 2, ProductID: "p2"},
		},
	}

	opt, ok := p.OptionByIndex(2)
	require.True(t, ok)
	assert.Equal(t, "p2", opt.ProductID)

	for _, idx := range []int{0, -1, 3, 99} {
		_, ok := p.OptionByIndex(idx)
		assert.False(t, ok, "index %d must be rejected", idx)
	}
}

func TestMessageRequestValidate(t *testing.T) {
	valid := MessageRequest{TeamID: "t1", Message: "quero saber do curso"}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name string
		req  MessageRequest
	}{
		{"missing team", MessageRequest{Message: "oi"}},
		{"missing message", MessageRequest{TeamID: "t1"}},
		{"bad email", MessageRequest{TeamID: "t1", Message: "oi", Email: "not-an-email"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.req.Validate())
		})
	}
}
