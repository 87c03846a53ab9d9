// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"fmt"

	"github.com/charmbracelet/huh"
)

// Confirm asks the user a yes/no question before a destructive action.
//
// Non-interactive contexts (piped stdin, machine personality) never
// prompt: the answer is false, and callers must offer an explicit
// --yes flag for scripted use.
func Confirm(title, description string) (bool, error) {
	if !IsInteractive() {
		return false, fmt.Errorf("refusing to prompt in a non-interactive session (pass --yes to proceed)")
	}

	var confirmed bool
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(title).
			Description(description).
			Affirmative("Yes").
			Negative("No").
			Value(&confirmed),
	))
	if err := form.Run(); err != nil {
		return false, err
	}
	return confirmed, nil
}
