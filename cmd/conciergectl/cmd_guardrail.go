// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianConcierge/pkg/ux"
)

// runCheckGuardrail dry-runs a candidate reply text against the server's
// guardrail batteries. The text is the joined positional arguments.
func runCheckGuardrail(cmd *cobra.Command, args []string) {
	text := strings.TrimSpace(strings.Join(args, " "))
	if text == "" {
		ux.Error("Nothing to check: pass the reply text as an argument")
		return
	}

	client := newAdminClient(serverURL, authToken)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	res, err := client.checkGuardrail(ctx, text, guardrailProductID)
	if err != nil {
		ux.Error("Guardrail check failed: " + err.Error())
		return
	}

	if len(res.Issues) == 0 {
		ux.Success("No issues found")
		return
	}

	ux.Title(fmt.Sprintf("%d issue(s) found", len(res.Issues)))
	for _, issue := range res.Issues {
		ux.Warning(fmt.Sprintf("[%s/%s] %s", issue.Type, issue.Severity, issue.Description))
	}
	if res.WouldEscalate {
		ux.Error("This reply would escalate to a human")
	}
	if res.SanitizedText != text {
		ux.Info("Sanitized: " + res.SanitizedText)
	}
}
