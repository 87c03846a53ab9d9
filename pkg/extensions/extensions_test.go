// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package extensions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNopAuthProviderAlwaysValidates(t *testing.T) {
	p := &NopAuthProvider{}

	info, err := p.Validate(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "local-user", info.UserID)
	assert.True(t, info.Admin)

	info, err = p.Validate(context.Background(), "any-token")
	require.NoError(t, err)
	assert.True(t, info.AllowsTeam("team-1"))
}

func TestAuthInfoAllowsTeam(t *testing.T) {
	var nilInfo *AuthInfo
	assert.False(t, nilInfo.AllowsTeam("team-1"))

	scoped := &AuthInfo{UserID: "u1", TeamIDs: []string{"team-1", "team-2"}}
	assert.True(t, scoped.AllowsTeam("team-2"))
	assert.False(t, scoped.AllowsTeam("team-9"))

	unscoped := &AuthInfo{UserID: "u2"}
	assert.True(t, unscoped.AllowsTeam("anything"))
}

func TestApplyDefaults(t *testing.T) {
	var opts ServiceOptions
	opts.ApplyDefaults()
	require.NotNil(t, opts.AuthProvider)
}
