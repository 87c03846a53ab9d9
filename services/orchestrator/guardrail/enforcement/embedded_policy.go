// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
This file is the bridge between the build system and the runtime guard. It
uses the Go embed package to bake reply_guard_patterns.yaml directly into
the compiled binary, so the reply batteries are immutable at runtime and
travel with the executable.
*/

package enforcement

import (
	_ "embed"
)

// ReplyGuardPatterns holds the raw byte content of the
// 'reply_guard_patterns.yaml' file.
//
// The variable is populated at compile time by the embed directive. Baking
// the YAML into the binary ensures the PII and promise batteries cannot be
// tampered with on the host filesystem without recompiling.
//
// Usage:
//
//	err := yaml.Unmarshal(enforcement.ReplyGuardPatterns, &targetStruct)
//
//go:embed reply_guard_patterns.yaml
var ReplyGuardPatterns []byte
