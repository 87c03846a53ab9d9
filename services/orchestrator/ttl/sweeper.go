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
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianConcierge/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianConcierge/services/orchestrator/observability"
	"github.com/AleutianAI/AleutianConcierge/services/orchestrator/state"
)

// =============================================================================
// Pending-Object Sweeper
// =============================================================================

// SweeperConfig holds configuration for the background sweeper.
//
// # Fields
//
//   - Interval: How often to run sweep cycles. Default: 1 hour.
//   - MaxPerCycle: Cap on conversations mutated per cycle. Default: 1000.
type SweeperConfig struct {
	Interval    time.Duration
	MaxPerCycle int
}

// DefaultSweeperConfig returns production defaults.
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Interval:    1 * time.Hour,
		MaxPerCycle: 1000,
	}
}

// SweepResult summarizes one sweep cycle.
type SweepResult struct {
	Scanned   int
	Expired   int
	StartTime time.Time
	EndTime   time.Time
}

// DurationMs returns the cycle duration in milliseconds.
func (r SweepResult) DurationMs() int64 {
	return r.EndTime.Sub(r.StartTime).Milliseconds()
}

// Sweeper runs background expiry of stale pending objects.
//
// # Description
//
// The pipeline already clears an expired pending object lazily when it
// loads a conversation. The sweeper covers conversations nobody messages
// again: it walks the store on an interval and clears pending objects past
// their TTL, so operator views and exports never show answerable-looking
// questions that are actually dead.
//
// # Thread Safety
//
// All public methods are thread-safe. Uses the ticker + done channel
// pattern for graceful shutdown.
type Sweeper struct {
	store state.ConversationStore
	clock *CheckedClock
	cfg   SweeperConfig

	mu      sync.Mutex
	done    chan struct{}
	running bool
}

// NewSweeper creates a sweeper over the given store.
func NewSweeper(store state.ConversationStore, clock *CheckedClock, cfg SweeperConfig) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultSweeperConfig().Interval
	}
	if cfg.MaxPerCycle <= 0 {
		cfg.MaxPerCycle = DefaultSweeperConfig().MaxPerCycle
	}
	if clock == nil {
		clock = NewCheckedClock(SystemClock{})
	}
	return &Sweeper{
		store: store,
		clock: clock,
		cfg:   cfg,
		done:  make(chan struct{}),
	}
}

// Start begins the background sweep loop. Returns an error when already
// running.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("sweeper is already running")
	}
	s.running = true
	s.done = make(chan struct{})
	s.mu.Unlock()

	slog.Info("Pending-object sweeper starting",
		"interval", s.cfg.Interval.String(),
		"max_per_cycle", s.cfg.MaxPerCycle,
	)

	go s.runLoop(ctx)
	return nil
}

// Stop signals the loop to exit. Safe to call multiple times; does not
// interrupt an in-progress cycle.
func (s *Sweeper) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	slog.Info("Pending-object sweeper stopping")
	close(s.done)
	s.running = false
	return nil
}

// RunNow triggers an immediate sweep cycle outside the schedule.
func (s *Sweeper) RunNow(ctx context.Context) (SweepResult, error) {
	return s.sweep(ctx)
}

func (s *Sweeper) runLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.executeSweep(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Pending-object sweeper stopped (context cancelled)")
			return
		case <-s.done:
			slog.Info("Pending-object sweeper stopped (stop requested)")
			return
		case <-ticker.C:
			s.executeSweep(ctx)
		}
	}
}

func (s *Sweeper) executeSweep(ctx context.Context) {
	result, err := s.sweep(ctx)
	if err != nil {
		slog.Error("Pending-object sweep failed", "error", err)
		return
	}
	if result.Expired > 0 {
		slog.Info("Pending-object sweep completed",
			"scanned", result.Scanned,
			"expired", result.Expired,
			"duration_ms", result.DurationMs(),
		)
	} else {
		slog.Debug("Pending-object sweep completed (nothing expired)")
	}
}

// sweep performs one cycle. A clock sanity failure skips the cycle rather
// than expiring against a bogus time.
func (s *Sweeper) sweep(ctx context.Context) (SweepResult, error) {
	result := SweepResult{StartTime: s.clock.Now()}

	now, err := s.clock.CheckedNow()
	if err != nil {
		return result, fmt.Errorf("clock sanity check failed: %w", err)
	}

	var expired []*datatypes.ConversationState
	err = s.store.ForEach(ctx, func(cs *datatypes.ConversationState) error {
		result.Scanned++
		if cs.ExpirePending(now) {
			expired = append(expired, cs)
		}
		if len(expired) >= s.cfg.MaxPerCycle {
			return errCycleFull
		}
		return nil
	})
	if err != nil && err != errCycleFull {
		return result, fmt.Errorf("store iteration failed: %w", err)
	}

	for _, cs := range expired {
		if err := s.store.Save(ctx, cs); err != nil {
			slog.Warn("Failed to persist expired pending clear", "key", cs.Key, "error", err)
			continue
		}
		result.Expired++
		observability.RecordPendingExpired("sweeper")
	}

	result.EndTime = s.clock.Now()
	return result, nil
}

// errCycleFull stops iteration once the per-cycle cap is reached.
var errCycleFull = fmt.Errorf("sweep cycle cap reached")
