// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation utilities for security-critical operations.
//
// This package contains validators for user-provided identifiers that end up
// in search-index filters and downstream service calls. Using these
// validators prevents injection through identifier fields (GraphQL filter
// injection, path traversal in keys).
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// identifierPattern matches valid product and team identifiers.
// Allows: letters, digits, dots, hyphens, underscores.
// Max length: 128 characters.
var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._\-]{0,127}$`)

// ValidateIdentifier validates a product or team identifier before it is
// used in an index filter or a downstream request path.
//
// Valid identifiers:
//   - 1-128 characters
//   - Letters and digits
//   - Dots (.), hyphens (-), underscores (_) after the first character
//
// Returns an error if the identifier is invalid.
//
// Example:
//
//	if err := validation.ValidateIdentifier(req.ProductID); err != nil {
//	    return fmt.Errorf("invalid product id: %w", err)
//	}
func ValidateIdentifier(id string) error {
	if id == "" {
		return fmt.Errorf("identifier cannot be empty")
	}

	if !identifierPattern.MatchString(id) {
		return fmt.Errorf("invalid identifier format: %q (must be 1-128 alphanumeric chars, dots, hyphens, or underscores)", id)
	}

	return nil
}

// ValidateIdentifiers validates multiple identifiers.
// Returns an error listing all invalid identifiers if any fail validation.
func ValidateIdentifiers(ids []string) error {
	var invalid []string
	for _, id := range ids {
		if err := ValidateIdentifier(id); err != nil {
			invalid = append(invalid, id)
		}
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid identifiers: %v", invalid)
	}
	return nil
}

// SanitizeIdentifier normalizes and validates an identifier. Returns the
// trimmed identifier if valid, or an error if invalid.
func SanitizeIdentifier(id string) (string, error) {
	normalized := strings.TrimSpace(id)
	if err := ValidateIdentifier(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}
