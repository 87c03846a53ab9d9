// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package enrich aggregates the context the reply generator needs for a
// resolved product: authorized business rules, customer ownership status,
// a sales strategy and the purchased-product set.
package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianConcierge/services/orchestrator/datatypes"
)

// RulesProvider returns the business rules a reply is allowed to promise
// for a product.
type RulesProvider interface {
	AuthorizedRules(ctx context.Context, productID string) ([]datatypes.AuthorizedRule, error)
}

// rulesFile is the YAML shape of the rules file.
type rulesFile struct {
	Rules []datatypes.AuthorizedRule `yaml:"rules"`
}

// FileRules loads authorized rules from a YAML file and hot-reloads it on
// change.
//
// # Description
//
// Rules with an empty product_id apply to every product. The watcher
// reloads on write/create events; a reload failure keeps the last good
// rule set and logs a warning instead of dropping rules mid-flight.
//
// # Thread Safety
//
// Safe for concurrent use.
type FileRules struct {
	path string

	mu    sync.RWMutex
	rules []datatypes.AuthorizedRule

	watcher *fsnotify.Watcher
}

var _ RulesProvider = (*FileRules)(nil)

// NewFileRules loads path and starts watching it. Call Close on shutdown.
func NewFileRules(path string) (*FileRules, error) {
	fr := &FileRules{path: path}
	if err := fr.reload(); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create rules watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch rules file: %w", err)
	}
	fr.watcher = watcher

	go fr.watchLoop()
	slog.Info("Authorized rules loaded", "path", path, "count", len(fr.rules))
	return fr, nil
}

func (f *FileRules) reload() error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return fmt.Errorf("failed to read rules file: %w", err)
	}

	var parsed rulesFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse rules file: %w", err)
	}

	f.mu.Lock()
	f.rules = parsed.Rules
	f.mu.Unlock()
	return nil
}

func (f *FileRules) watchLoop() {
	for {
		select {
		case event, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := f.reload(); err != nil {
				slog.Warn("Rules reload failed, keeping previous rules", "error", err)
				continue
			}
			f.mu.RLock()
			count := len(f.rules)
			f.mu.RUnlock()
			slog.Info("Authorized rules reloaded", "path", f.path, "count", count)
		case err, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("Rules watcher error", "error", err)
		}
	}
}

// AuthorizedRules implements RulesProvider.
func (f *FileRules) AuthorizedRules(ctx context.Context, productID string) ([]datatypes.AuthorizedRule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	var out []datatypes.AuthorizedRule
	for _, r := range f.rules {
		if r.ProductID == "" || r.ProductID == productID {
			out = append(out, r)
		}
	}
	return out, nil
}

// Close stops the watcher.
func (f *FileRules) Close() error {
	if f.watcher != nil {
		return f.watcher.Close()
	}
	return nil
}

// StaticRules is a fixed in-memory RulesProvider for tests and deployments
// without a rules file.
type StaticRules []datatypes.AuthorizedRule

var _ RulesProvider = (StaticRules)(nil)

// AuthorizedRules implements RulesProvider.
func (s StaticRules) AuthorizedRules(_ context.Context, productID string) ([]datatypes.AuthorizedRule, error) {
	var out []datatypes.AuthorizedRule
	for _, r := range s {
		if r.ProductID == "" || r.ProductID == productID {
			out = append(out, r)
		}
	}
	return out, nil
}
