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
	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianConcierge/pkg/ux"
)

// --- Global Command Variables ---
var (
	serverURL          string
	authToken          string
	personalityLevel   string
	assumeYes          bool
	ingestFile         string
	guardrailProductID string

	rootCmd = &cobra.Command{
		Use:   "conciergectl",
		Short: "Operate a running Aleutian concierge server",
		Long: `conciergectl talks to the admin API of a concierge server:
inspect and reset stuck conversations, ingest products into the
search index, dry-run the reply guardrail, and check server health.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if personalityLevel != "" {
				ux.SetPersonalityLevel(ux.ParsePersonalityLevel(personalityLevel))
			} else {
				ux.InitPersonality()
			}
		},
	}

	// --- Conversations ---
	conversationsCmd = &cobra.Command{
		Use:     "conversations",
		Short:   "Inspect and reset conversation state",
		Aliases: []string{"conv"},
	}
	listConversationsCmd = &cobra.Command{
		Use:   "list",
		Short: "List every stored conversation with a compact summary",
		Run:   runListConversations,
	}
	getConversationCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Show the full stored state for one conversation key",
		Args:  cobra.ExactArgs(1),
		Run:   runGetConversation,
	}
	resetConversationCmd = &cobra.Command{
		Use:   "reset [key]",
		Short: "Delete a conversation's state so the next message starts fresh",
		Args:  cobra.ExactArgs(1),
		Run:   runResetConversation,
	}

	// --- Products ---
	productsCmd = &cobra.Command{
		Use:   "products",
		Short: "Manage the product search index",
	}
	ingestProductCmd = &cobra.Command{
		Use:   "ingest",
		Short: "Ingest a product definition (JSON file) into the search index",
		Run:   runIngestProduct,
	}

	// --- Guardrail ---
	guardrailCmd = &cobra.Command{
		Use:   "guardrail",
		Short: "Exercise the reply guardrail",
	}
	checkGuardrailCmd = &cobra.Command{
		Use:   "check [text]",
		Short: "Scan a candidate reply text against the PII and promise batteries",
		Args:  cobra.MinimumNArgs(1),
		Run:   runCheckGuardrail,
	}

	// --- Health ---
	healthCmd = &cobra.Command{
		Use:   "health",
		Short: "Check that the concierge server is up",
		Run:   runHealth,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:12210",
		"Concierge server base URL")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", "",
		"Bearer token for the admin API (hosted deployments)")
	rootCmd.PersistentFlags().StringVar(&personalityLevel, "personality", "",
		"Output style: full (default), minimal, or machine (scripting)")

	rootCmd.AddCommand(conversationsCmd)
	conversationsCmd.AddCommand(listConversationsCmd)
	conversationsCmd.AddCommand(getConversationCmd)
	conversationsCmd.AddCommand(resetConversationCmd)
	resetConversationCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false,
		"Skip the confirmation prompt")

	rootCmd.AddCommand(productsCmd)
	productsCmd.AddCommand(ingestProductCmd)
	ingestProductCmd.Flags().StringVarP(&ingestFile, "file", "f", "",
		"Path to the product JSON file (required)")
	_ = ingestProductCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(guardrailCmd)
	guardrailCmd.AddCommand(checkGuardrailCmd)
	checkGuardrailCmd.Flags().StringVarP(&guardrailProductID, "product", "p", "",
		"Product id scoping the authorized-rules lookup")

	rootCmd.AddCommand(healthCmd)
}
