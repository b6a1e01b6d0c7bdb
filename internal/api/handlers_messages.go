// Studyhall - Real-Time Study Group Collaboration Backend
// Copyright 2026 Studyhall Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/studyhall-app/studyhall

package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/studyhall-app/studyhall/internal/logging"
	"github.com/studyhall-app/studyhall/internal/models"
	"github.com/studyhall-app/studyhall/internal/store"
)

type createMessageRequest struct {
	Content string `json:"content"`
}

// requireMember resolves the identity and group and enforces membership.
// On failure the response has been written and ok is false.
func (h *Handler) requireMember(w http.ResponseWriter, r *http.Request) (identity models.Identity, groupID int64, ok bool) {
	rw := NewResponseWriter(w, r)
	identity, authed := identityFrom(r)
	if !authed {
		rw.Unauthorized("authentication required")
		return identity, 0, false
	}

	groupID, err := groupIDParam(r)
	if err != nil {
		rw.BadRequest("invalid group id")
		return identity, 0, false
	}

	member, err := h.store.IsMember(r.Context(), identity.UserID, groupID)
	if err != nil {
		logging.Error().Err(err).Int64("group_id", groupID).Msg("membership check failed")
		rw.InternalError("failed to verify membership")
		return identity, 0, false
	}
	if !member {
		rw.Forbidden("not a member of this group")
		return identity, 0, false
	}
	return identity, groupID, true
}

// ListMessages returns a page of a group's message history in append order.
// Clients call this to hydrate before the live connection delivers
// incremental updates.
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	_, groupID, ok := h.requireMember(w, r)
	if !ok {
		return
	}

	limit, offset := h.parsePagination(r)
	messages, err := h.store.Messages(r.Context(), groupID, limit, offset)
	if err != nil {
		logging.Error().Err(err).Int64("group_id", groupID).Msg("failed to fetch messages")
		rw.InternalError("failed to fetch messages")
		return
	}

	rw.SuccessWithPagination(messages, &PaginationMeta{
		Count:   len(messages),
		Offset:  offset,
		Limit:   limit,
		HasMore: len(messages) == limit,
	})
}

// CreateMessage durably appends a message over REST. The REST twin of the
// live `message` frame: same validation and persistence, no broadcast.
func (h *Handler) CreateMessage(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	identity, groupID, ok := h.requireMember(w, r)
	if !ok {
		return
	}

	var req createMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rw.BadRequest("invalid request body")
		return
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		rw.Error(http.StatusBadRequest, ErrCodeValidationFailed, "message content is required and cannot be empty")
		return
	}

	msg, err := h.store.AppendMessage(r.Context(), groupID, identity, content)
	if errors.Is(err, store.ErrGroupNotFound) {
		rw.NotFound("group not found")
		return
	}
	if err != nil {
		logging.Error().Err(err).Int64("group_id", groupID).Msg("failed to append message")
		rw.InternalError("failed to save message")
		return
	}

	rw.Created(msg)
}

// parsePagination reads limit/offset query parameters, clamping the limit to
// the configured page size bounds.
func (h *Handler) parsePagination(r *http.Request) (limit, offset int) {
	limit = h.config.API.DefaultPageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > h.config.API.MaxPageSize {
		limit = h.config.API.MaxPageSize
	}

	if raw := r.URL.Query().Get("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
