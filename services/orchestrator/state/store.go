// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package state persists per-conversation state.
//
// # Description
//
// A ConversationStore maps conversation keys to ConversationState records
// serialized as versioned JSON. Two implementations exist: a BadgerDB store
// for production and an in-memory store for tests and single-shot tooling.
//
// The store contract is read-then-write per request with no optimistic
// concurrency check. Concurrent messages for the same key can clobber each
// other's pending object; the pipeline accepts that limitation.
package state

import (
	"context"
	"errors"

	"github.com/AleutianAI/AleutianConcierge/services/orchestrator/datatypes"
)

// ErrNotFound is returned by Load when no record exists for the key.
var ErrNotFound = errors.New("conversation state not found")

// ConversationStore is the persistence contract for conversation state.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use; atomicity is per
// operation only, not across a Load/Save pair.
type ConversationStore interface {
	// Load fetches the state for a key. Returns ErrNotFound when the
	// conversation has never been seen.
	Load(ctx context.Context, key string) (*datatypes.ConversationState, error)

	// Save upserts the state under its own key, stamping UpdatedAt.
	Save(ctx context.Context, s *datatypes.ConversationState) error

	// Delete removes a conversation. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// ForEach visits every stored conversation. Used by the TTL sweeper;
	// the visited value is a private copy the callback may mutate freely.
	// Returning an error from the callback stops iteration.
	ForEach(ctx context.Context, fn func(*datatypes.ConversationState) error) error

	// Close releases underlying resources.
	Close() error
}

// LoadOrCreate fetches the state for a key, lazily creating the record on
// first contact. The created record is not persisted until the first Save.
func LoadOrCreate(ctx context.Context, store ConversationStore, key, teamID string) (*datatypes.ConversationState, error) {
	s, err := store.Load(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return datatypes.NewConversationState(key, teamID), nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}
