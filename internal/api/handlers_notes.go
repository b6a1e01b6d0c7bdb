// Studyhall - Real-Time Study Group Collaboration Backend
// Copyright 2026 Studyhall Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/studyhall-app/studyhall

package api

import (
	"errors"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/studyhall-app/studyhall/internal/logging"
	"github.com/studyhall-app/studyhall/internal/store"
)

type updateNoteRequest struct {
	Content string `json:"content"`
}

// GetNote returns the group's shared note, creating an empty one on first
// access.
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	identity, groupID, ok := h.requireMember(w, r)
	if !ok {
		return
	}

	note, err := h.store.Note(r.Context(), groupID, identity.UserID)
	if errors.Is(err, store.ErrGroupNotFound) {
		rw.NotFound("group not found")
		return
	}
	if err != nil {
		logging.Error().Err(err).Int64("group_id", groupID).Msg("failed to fetch note")
		rw.InternalError("failed to fetch note")
		return
	}

	rw.Success(note)
}

// UpdateNote replaces the group's shared note. Concurrent writers resolve
// last write wins, matching the live `note_update` frame.
func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	identity, groupID, ok := h.requireMember(w, r)
	if !ok {
		return
	}

	var req updateNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rw.BadRequest("invalid request body")
		return
	}

	note, err := h.store.UpsertNote(r.Context(), groupID, req.Content, identity.UserID)
	if errors.Is(err, store.ErrGroupNotFound) {
		rw.NotFound("group not found")
		return
	}
	if err != nil {
		logging.Error().Err(err).Int64("group_id", groupID).Msg("failed to update note")
		rw.InternalError("failed to update note")
		return
	}

	rw.Success(note)
}
