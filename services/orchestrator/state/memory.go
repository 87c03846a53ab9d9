// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package state

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianConcierge/services/orchestrator/datatypes"
)

// MemoryStore is a map-backed ConversationStore for tests and tooling.
// Records are stored as serialized JSON so Load hands out copies, matching
// the isolation behavior of the durable store.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

var _ ConversationStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// Load implements ConversationStore.
func (m *MemoryStore) Load(ctx context.Context, key string) (*datatypes.ConversationState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	raw, ok := m.data[key]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	var s datatypes.ConversationState
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Save implements ConversationStore.
func (m *MemoryStore) Save(ctx context.Context, s *datatypes.ConversationState) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.SchemaVersion = datatypes.ConversationSchemaVersion
	s.UpdatedAt = time.Now().UTC()

	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.data[s.Key] = raw
	m.mu.Unlock()
	return nil
}

// Delete implements ConversationStore.
func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	return nil
}

// ForEach implements ConversationStore.
func (m *MemoryStore) ForEach(ctx context.Context, fn func(*datatypes.ConversationState) error) error {
	m.mu.RLock()
	snapshot := make([][]byte, 0, len(m.data))
	for _, raw := range m.data {
		snapshot = append(snapshot, raw)
	}
	m.mu.RUnlock()

	for _, raw := range snapshot {
		if err := ctx.Err(); err != nil {
			return err
		}
		var s datatypes.ConversationState
		if err := json.Unmarshal(raw, &s); err != nil {
			continue
		}
		if err := fn(&s); err != nil {
			return err
		}
	}
	return nil
}

// Close implements ConversationStore.
func (m *MemoryStore) Close() error {
	return nil
}
