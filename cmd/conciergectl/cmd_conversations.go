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
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianConcierge/pkg/ux"
	"github.com/AleutianAI/AleutianConcierge/services/orchestrator/datatypes"
)

func runListConversations(cmd *cobra.Command, args []string) {
	client := newAdminClient(serverURL, authToken)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	summaries, err := client.listConversations(ctx)
	if err != nil {
		ux.Error(err.Error())
		return
	}
	if len(summaries) == 0 {
		ux.Info("No stored conversations.")
		return
	}

	ux.Title(fmt.Sprintf("Conversations (%d)", len(summaries)))
	for _, s := range summaries {
		pending := ""
		if s.HasPending {
			pending = " [pending question]"
		}
		ux.Info(fmt.Sprintf("%s  product=%s mode=%s updated=%s%s",
			s.Key, orDash(s.CurrentProductID), s.Mode, s.UpdatedAt, pending))
	}
}

func runGetConversation(cmd *cobra.Command, args []string) {
	client := newAdminClient(serverURL, authToken)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	st, err := client.getConversation(ctx, args[0])
	if err != nil {
		ux.Error(err.Error())
		return
	}

	ux.Title("Conversation " + st.Key)
	ux.KeyValue("team", st.TeamID)
	ux.KeyValue("current product", orDash(st.CurrentProductID))
	ux.KeyValue("active support product", orDash(st.ActiveSupportProductID))
	ux.KeyValue("last intent", orDash(st.LastIntent))
	ux.KeyValue("updated", st.UpdatedAt.Format(time.RFC3339))
	ux.KeyValue("history entries", fmt.Sprintf("%d", len(st.ProductHistory)))
	ux.KeyValue("purchased products", fmt.Sprintf("%d", len(st.PurchasedProducts)))

	printPending(st)
}

func printPending(st *datatypes.ConversationState) {
	switch {
	case st.PendingConfirmation != nil:
		p := st.PendingConfirmation
		ux.KeyValue("pending", "product confirmation")
		ux.KeyValue("  suggested", fmt.Sprintf("%s (%s)", p.SuggestedProductName, p.SuggestedProductID))
		ux.KeyValue("  armed at", p.Timestamp.Format(time.RFC3339))
	case st.PendingMultiSelect != nil:
		p := st.PendingMultiSelect
		ux.KeyValue("pending", fmt.Sprintf("multi-product selection (%d options)", len(p.Products)))
		for _, opt := range p.Products {
			ux.KeyValue(fmt.Sprintf("  %d.", opt.Index), fmt.Sprintf("%s (%s)", opt.ProductName, opt.ProductID))
		}
		ux.KeyValue("  armed at", p.Timestamp.Format(time.RFC3339))
	case st.PendingSwitch != nil:
		p := st.PendingSwitch
		ux.KeyValue("pending", "context switch")
		ux.KeyValue("  from", fmt.Sprintf("%s (%s)", p.FromProductName, p.FromProductID))
		ux.KeyValue("  to", fmt.Sprintf("%s (%s)", p.ToProductName, p.ToProductID))
		ux.KeyValue("  armed at", p.Timestamp.Format(time.RFC3339))
	default:
		ux.KeyValue("pending", "none")
	}
}

func runResetConversation(cmd *cobra.Command, args []string) {
	key := args[0]

	if !assumeYes {
		ok, err := ux.Confirm(
			fmt.Sprintf("Reset conversation %q?", key),
			"The stored state is deleted; the next message starts a fresh conversation.")
		if err != nil {
			ux.Error(err.Error())
			return
		}
		if !ok {
			ux.Muted("Aborted.")
			return
		}
	}

	client := newAdminClient(serverURL, authToken)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := client.deleteConversation(ctx, key); err != nil {
		ux.Error(err.Error())
		return
	}
	ux.Success("Conversation " + key + " reset")
}

func runHealth(cmd *cobra.Command, args []string) {
	client := newAdminClient(serverURL, authToken)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.health(ctx); err != nil {
		ux.Error("Server unreachable: " + err.Error())
		return
	}
	ux.Success("Server is up at " + serverURL)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
