// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ttl

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianConcierge/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianConcierge/services/orchestrator/state"
)

// fakeClock is a settable Clock for tests.
type fakeClock struct {
	t time.Time
}

func (f *fakeClock) Now() time.Time { return f.t }

func seedConversation(t *testing.T, store state.ConversationStore, key string, pendingAge time.Duration, now time.Time) {
	t.Helper()
	s := datatypes.NewConversationState(key, "t1")
	s.SetPendingConfirmation(&datatypes.PendingProductConfirmation{
		SuggestedProductID: "p1",
		Timestamp:          now.Add(-pendingAge),
	})
	require.NoError(t, store.Save(context.Background(), s))
}

func TestSweepExpiresOnlyStalePending(t *testing.T) {
	store := state.NewMemoryStore()
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}

	seedConversation(t, store, "stale", 25*time.Hour, clock.t)
	seedConversation(t, store, "fresh", 1*time.Hour, clock.t)

	sw := NewSweeper(store, NewCheckedClock(clock), SweeperConfig{})
	result, err := sw.RunNow(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, result.Scanned)
	assert.Equal(t, 1, result.Expired)

	stale, err := store.Load(context.Background(), "stale")
	require.NoError(t, err)
	assert.False(t, stale.HasPending())

	fresh, err := store.Load(context.Background(), "fresh")
	require.NoError(t, err)
	assert.True(t, fresh.HasPending())
}

func TestSweepSkipsOnInsaneClock(t *testing.T) {
	store := state.NewMemoryStore()
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)} // before min valid

	seedConversation(t, store, "stale", 48*time.Hour, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))

	sw := NewSweeper(store, NewCheckedClock(clock), SweeperConfig{})
	_, err := sw.RunNow(context.Background())
	require.Error(t, err)

	s, err := store.Load(context.Background(), "stale")
	require.NoError(t, err)
	assert.True(t, s.HasPending(), "a failed clock check must not expire anything")
}

func TestSweeperStartStop(t *testing.T) {
	store := state.NewMemoryStore()
	sw := NewSweeper(store, nil, SweeperConfig{Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, sw.Start(ctx))
	assert.Error(t, sw.Start(ctx), "second start must fail")
	require.NoError(t, sw.Stop())
	require.NoError(t, sw.Stop(), "stop is idempotent")

	// Restart after a stop works.
	require.NoError(t, sw.Start(ctx))
	require.NoError(t, sw.Stop())
}

func TestCheckedClockJumpDetection(t *testing.T) {
	fc := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	cc := NewCheckedClock(fc)

	_, err := cc.CheckedNow()
	require.NoError(t, err)

	fc.t = fc.t.Add(-2 * time.Hour)
	_, err = cc.CheckedNow()
	assert.Error(t, err, "backward jump beyond tolerance must fail")

	cc.ResetJumpDetection()
	_, err = cc.CheckedNow()
	assert.NoError(t, err)
}
