// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ttl expires stale pending disambiguation objects. A pending
// question that nobody answered within its TTL must stop being answerable;
// otherwise an unrelated message days later could "confirm" it.
package ttl

import (
	"fmt"
	"sync"
	"time"
)

// =============================================================================
// Clock Sanity Checking
// =============================================================================

// Clock abstracts time for the sweeper so tests can drive it.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// CheckedClock wraps a Clock with sanity bounds.
//
// # Description
//
// If the system clock is manipulated, TTL sweeps misbehave in both
// directions: a future clock expires fresh pending questions, a past clock
// never expires anything. CheckedClock validates that the reported time is
// within configured bounds and has not jumped unreasonably since the last
// read; sweeps skip the cycle when the check fails.
//
// # Thread Safety
//
// Safe for concurrent use.
type CheckedClock struct {
	inner Clock

	minValid        time.Time
	maxValid        time.Time
	maxBackwardJump time.Duration
	maxForwardJump  time.Duration

	mu       sync.Mutex
	lastSeen time.Time
}

// NewCheckedClock wraps inner with production bounds.
func NewCheckedClock(inner Clock) *CheckedClock {
	return &CheckedClock{
		inner:           inner,
		minValid:        time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		maxValid:        time.Date(2035, 12, 31, 0, 0, 0, 0, time.UTC),
		maxBackwardJump: time.Hour,
		maxForwardJump:  2 * time.Hour,
	}
}

// Now implements Clock. It always returns the inner time; use CheckedNow
// where a sanity failure must abort the operation.
func (c *CheckedClock) Now() time.Time { return c.inner.Now() }

// CheckedNow returns the current time after validating it.
func (c *CheckedClock) CheckedNow() (time.Time, error) {
	now := c.inner.Now()

	if now.Before(c.minValid) {
		return time.Time{}, fmt.Errorf("clock reads %s, before minimum valid time %s", now, c.minValid)
	}
	if now.After(c.maxValid) {
		return time.Time{}, fmt.Errorf("clock reads %s, after maximum valid time %s", now, c.maxValid)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.lastSeen.IsZero() {
		delta := now.Sub(c.lastSeen)
		if delta < -c.maxBackwardJump {
			return time.Time{}, fmt.Errorf("clock jumped backward by %s", -delta)
		}
		// Forward jumps only matter between sweeps of the same process;
		// anything beyond the sweep interval plus slack is suspicious.
		if delta > c.maxForwardJump+24*time.Hour {
			return time.Time{}, fmt.Errorf("clock jumped forward by %s", delta)
		}
	}
	c.lastSeen = now
	return now, nil
}

// ResetJumpDetection clears the jump baseline after a known legitimate time
// change (NTP sync, resume from sleep).
func (c *CheckedClock) ResetJumpDetection() {
	c.mu.Lock()
	c.lastSeen = time.Time{}
	c.mu.Unlock()
}
