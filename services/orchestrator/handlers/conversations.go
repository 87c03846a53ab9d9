// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianConcierge/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianConcierge/services/orchestrator/state"
)

// GetConversation returns the stored state for one conversation key,
// GET /v1/conversations/:key.
//
// # Description
//
// Operator surface for debugging stuck conversations: the full state
// object is returned as stored, including any armed pending object and
// its timestamp. The key is the same identity key the pipeline derives
// (phone digits, email, or "team:<id>").
func GetConversation(store state.ConversationStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.Param("key")
		st, err := store.Load(c.Request.Context(), key)
		if err != nil {
			if errors.Is(err, state.ErrNotFound) {
				c.JSON(http.StatusNotFound, datatypes.ErrorResponse{Error: "conversation not found"})
				return
			}
			logAndError(c, http.StatusInternalServerError, "failed to load conversation", err)
			return
		}
		c.JSON(http.StatusOK, st)
	}
}

// ListConversations returns every stored conversation key with a compact
// summary, GET /v1/conversations.
func ListConversations(store state.ConversationStore) gin.HandlerFunc {
	type summary struct {
		Key              string `json:"key"`
		CurrentProductID string `json:"current_product_id,omitempty"`
		Mode             string `json:"mode,omitempty"`
		HasPending       bool   `json:"has_pending"`
		UpdatedAt        string `json:"updated_at"`
	}
	return func(c *gin.Context) {
		out := make([]summary, 0, 16)
		err := store.ForEach(c.Request.Context(), func(s *datatypes.ConversationState) error {
			mode := datatypes.ModeSales
			if s.ActiveSupportProductID != "" {
				mode = datatypes.ModeSupport
			}
			out = append(out, summary{
				Key:              s.Key,
				CurrentProductID: s.CurrentProductID,
				Mode:             string(mode),
				HasPending:       s.HasPending(),
				UpdatedAt:        s.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
			})
			return nil
		})
		if err != nil {
			logAndError(c, http.StatusInternalServerError, "failed to list conversations", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"conversations": out, "count": len(out)})
	}
}

// DeleteConversation removes a conversation's stored state,
// DELETE /v1/conversations/:key. Deleting an unknown key succeeds.
func DeleteConversation(store state.ConversationStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.Param("key")
		if err := store.Delete(c.Request.Context(), key); err != nil {
			logAndError(c, http.StatusInternalServerError, "failed to delete conversation", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": key})
	}
}
