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
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianConcierge/pkg/ux"
	"github.com/AleutianAI/AleutianConcierge/services/orchestrator/datatypes"
)

func runIngestProduct(cmd *cobra.Command, args []string) {
	raw, err := os.ReadFile(ingestFile)
	if err != nil {
		ux.Error("Cannot read product file: " + err.Error())
		return
	}

	var req datatypes.ProductIngestRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		ux.Error("Invalid product JSON: " + err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		ux.Error("Invalid product definition: " + err.Error())
		return
	}

	client := newAdminClient(serverURL, authToken)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	chunks, err := client.ingestProduct(ctx, &req)
	if err != nil {
		ux.Error("Ingestion failed: " + err.Error())
		return
	}

	ux.Success(fmt.Sprintf("Ingested %q (%s): %d chunks indexed", req.Name, req.ProductID, chunks))
}
