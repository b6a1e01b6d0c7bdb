// Studyhall - Real-Time Study Group Collaboration Backend
// Copyright 2026 Studyhall Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/studyhall-app/studyhall

package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/studyhall-app/studyhall/internal/logging"
	"github.com/studyhall-app/studyhall/internal/store"
)

type createGroupRequest struct {
	Name      string `json:"name"`
	ClassName string `json:"className"`
}

type joinGroupRequest struct {
	InviteCode string `json:"inviteCode"`
}

// CreateGroup creates a study group; the caller becomes its first member.
func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	identity, ok := identityFrom(r)
	if !ok {
		rw.Unauthorized("authentication required")
		return
	}

	var req createGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rw.BadRequest("invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		rw.Error(http.StatusBadRequest, ErrCodeValidationFailed, "group name is required")
		return
	}

	group, err := h.store.CreateGroup(r.Context(), req.Name, strings.TrimSpace(req.ClassName), identity.UserID)
	if err != nil {
		logging.Error().Err(err).Msg("failed to create group")
		rw.InternalError("failed to create group")
		return
	}

	rw.Created(group)
}

// ListGroups returns the groups the caller belongs to, with member counts.
func (h *Handler) ListGroups(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	identity, ok := identityFrom(r)
	if !ok {
		rw.Unauthorized("authentication required")
		return
	}

	groups, err := h.store.GroupsForUser(r.Context(), identity.UserID)
	if err != nil {
		logging.Error().Err(err).Msg("failed to list groups")
		rw.InternalError("failed to fetch groups")
		return
	}

	rw.Success(groups)
}

// JoinGroup adds the caller to a group by invite code.
func (h *Handler) JoinGroup(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	identity, ok := identityFrom(r)
	if !ok {
		rw.Unauthorized("authentication required")
		return
	}

	var req joinGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rw.BadRequest("invalid request body")
		return
	}
	code := strings.ToLower(strings.TrimSpace(req.InviteCode))
	if code == "" {
		rw.Error(http.StatusBadRequest, ErrCodeValidationFailed, "invite code is required")
		return
	}

	group, err := h.store.JoinGroupByCode(r.Context(), code, identity.UserID)
	switch {
	case errors.Is(err, store.ErrInviteNotFound):
		rw.NotFound("invalid invite code")
		return
	case errors.Is(err, store.ErrAlreadyMember):
		rw.Conflict("already a member of this group")
		return
	case err != nil:
		logging.Error().Err(err).Msg("failed to join group")
		rw.InternalError("failed to join group")
		return
	}

	rw.Success(group)
}
