// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePersonalityLevel(t *testing.T) {
	tests := []struct {
		input string
		want  PersonalityLevel
	}{
		{"full", PersonalityFull},
		{"f", PersonalityFull},
		{"minimal", PersonalityMinimal},
		{"min", PersonalityMinimal},
		{"m", PersonalityMinimal},
		{"machine", PersonalityMachine},
		{"quiet", PersonalityMachine},
		{"Q", PersonalityMachine},
		{"garbage", PersonalityFull},
		{"", PersonalityFull},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ParsePersonalityLevel(tt.input), "input %q", tt.input)
	}
}

func TestSetPersonalityLevel(t *testing.T) {
	orig := GetPersonality().Level
	defer SetPersonalityLevel(orig)

	SetPersonalityLevel(PersonalityMachine)
	assert.Equal(t, PersonalityMachine, GetPersonality().Level)
}

func TestIconRenderFallsBackToPlainString(t *testing.T) {
	assert.Equal(t, string(IconArrow), Icon(IconArrow).Render())
}

func TestConfirmRefusesNonInteractive(t *testing.T) {
	orig := GetPersonality().Level
	defer SetPersonalityLevel(orig)
	SetPersonalityLevel(PersonalityMachine)

	ok, err := Confirm("Delete?", "")
	assert.False(t, ok)
	assert.Error(t, err)
}
