// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package extensions defines the seams hosted deployments plug into.
//
// The open-source concierge ships no-op implementations: every request is
// authenticated as a local operator. Hosted deployments provide real
// providers (API keys per team, identity-backed tokens) through
// ServiceOptions at construction time.
package extensions

import (
	"context"
	"errors"
)

// ErrUnauthorized is returned when token validation fails. Providers wrap
// it so the HTTP layer can map any authentication failure to 401:
//
//	return nil, fmt.Errorf("invalid token format: %w", extensions.ErrUnauthorized)
var ErrUnauthorized = errors.New("unauthorized")

// AuthInfo is the identity attached to an authenticated request.
type AuthInfo struct {
	// UserID uniquely identifies the caller.
	UserID string

	// TeamIDs lists the teams this caller may act for. Empty means all
	// (the open-source local operator).
	TeamIDs []string

	// Admin grants access to the operator surface (conversation
	// inspection, reset, ingestion).
	Admin bool
}

// AllowsTeam reports whether the identity may act for teamID.
func (a *AuthInfo) AllowsTeam(teamID string) bool {
	if a == nil {
		return false
	}
	if len(a.TeamIDs) == 0 {
		return true
	}
	for _, id := range a.TeamIDs {
		if id == teamID {
			return true
		}
	}
	return false
}

// AuthProvider validates bearer tokens.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type AuthProvider interface {
	// Validate checks a bearer token and returns the caller's identity.
	// Returns ErrUnauthorized (possibly wrapped) for invalid tokens;
	// other errors signal provider failure, not rejection.
	Validate(ctx context.Context, token string) (*AuthInfo, error)
}

// NopAuthProvider is the open-source default: every request, with or
// without a token, is the local operator with full access.
type NopAuthProvider struct{}

var _ AuthProvider = (*NopAuthProvider)(nil)

// Validate implements AuthProvider.
func (p *NopAuthProvider) Validate(_ context.Context, _ string) (*AuthInfo, error) {
	return &AuthInfo{UserID: "local-user", Admin: true}, nil
}
