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
	"errors"
	"fmt"
	"log/slog"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/AleutianConcierge/services/orchestrator/datatypes"
)

// keyPrefix namespaces conversation records inside the shared DB.
var keyPrefix = []byte("conv:")

// BadgerConfig configures the durable store.
type BadgerConfig struct {
	// Path is the on-disk directory. Empty selects an in-memory DB, which
	// is what the tests and conciergectl dry runs use.
	Path string

	// SyncWrites forces fsync per write. Default false; conversation state
	// tolerates losing the last turn on a crash.
	SyncWrites bool
}

// BadgerStore is the durable ConversationStore backed by BadgerDB.
type BadgerStore struct {
	db *badger.DB
}

var _ ConversationStore = (*BadgerStore)(nil)

// NewBadgerStore opens (or creates) the store at cfg.Path.
func NewBadgerStore(cfg BadgerConfig) (*BadgerStore, error) {
	opts := badger.DefaultOptions(cfg.Path).
		WithSyncWrites(cfg.SyncWrites).
		WithLogger(nil)
	if cfg.Path == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger store: %w", err)
	}

	slog.Info("Conversation store opened", "path", cfg.Path, "in_memory", cfg.Path == "")
	return &BadgerStore{db: db}, nil
}

func storageKey(key string) []byte {
	return append(append([]byte{}, keyPrefix...), key...)
}

// Load implements ConversationStore.
func (b *BadgerStore) Load(ctx context.Context, key string) (*datatypes.ConversationState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var s datatypes.ConversationState
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(storageKey(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &s)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation %q: %w", key, err)
	}

	if s.SchemaVersion != datatypes.ConversationSchemaVersion {
		// Version 1 records lack pending timestamps; treat any pending
		// object from before the versioned schema as stale.
		slog.Warn("Migrating conversation state schema",
			"key", key, "from", s.SchemaVersion, "to", datatypes.ConversationSchemaVersion)
		s.ClearPending()
		s.SchemaVersion = datatypes.ConversationSchemaVersion
	}
	return &s, nil
}

// Save implements ConversationStore.
func (b *BadgerStore) Save(ctx context.Context, s *datatypes.ConversationState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.Key == "" {
		return fmt.Errorf("cannot save conversation state with empty key")
	}

	s.SchemaVersion = datatypes.ConversationSchemaVersion
	s.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation %q: %w", s.Key, err)
	}

	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(storageKey(s.Key), data)
	})
	if err != nil {
		return fmt.Errorf("failed to save conversation %q: %w", s.Key, err)
	}
	return nil
}

// Delete implements ConversationStore.
func (b *BadgerStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(storageKey(key))
	})
	if err != nil {
		return fmt.Errorf("failed to delete conversation %q: %w", key, err)
	}
	return nil
}

// ForEach implements ConversationStore.
func (b *BadgerStore) ForEach(ctx context.Context, fn func(*datatypes.ConversationState) error) error {
	return b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = keyPrefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.ValidForPrefix(keyPrefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var s datatypes.ConversationState
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &s)
			})
			if err != nil {
				slog.Warn("Skipping undecodable conversation record",
					"key", string(it.Item().Key()), "error", err)
				continue
			}
			if err := fn(&s); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close implements ConversationStore.
func (b *BadgerStore) Close() error {
	return b.db.Close()
}
