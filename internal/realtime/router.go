// Studyhall - Real-Time Study Group Collaboration Backend
// Copyright 2026 Studyhall Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/studyhall-app/studyhall

package realtime

import (
	"context"
	"strings"

	"github.com/goccy/go-json"

	"github.com/studyhall-app/studyhall/internal/logging"
	"github.com/studyhall-app/studyhall/internal/metrics"
	"github.com/studyhall-app/studyhall/internal/models"
)

// Membership is the membership oracle: the authoritative answer to "does
// this user belong to this group". The router consults it on every join and
// every send; results are never cached across frames, so a member removed
// mid-session is rejected on their next frame.
type Membership interface {
	IsMember(ctx context.Context, userID, groupID int64) (bool, error)
}

// Gateway is the persistence gateway. Both calls are synchronous; a failure
// is surfaced to the sender and suppresses the broadcast, so other members
// never see an event that was not durably recorded.
type Gateway interface {
	AppendMessage(ctx context.Context, groupID int64, author models.Identity, content string) (*models.ChatMessage, error)
	UpsertNote(ctx context.Context, groupID int64, content string, editorID int64) (*models.SharedNote, error)
}

// Router dispatches inbound frames to their handlers. It holds no per-frame
// state; the connection itself has no state machine beyond connected and
// terminated.
type Router struct {
	hub        *Hub
	membership Membership
	gateway    Gateway
}

// NewRouter creates the event router.
func NewRouter(hub *Hub, membership Membership, gateway Gateway) *Router {
	return &Router{hub: hub, membership: membership, gateway: gateway}
}

// Dispatch parses one inbound frame and routes it. Malformed payloads and
// unknown types are logged and dropped; nothing here ever closes the
// connection or escapes to other members.
func (r *Router) Dispatch(ctx context.Context, c *Client, data []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		metrics.FramesRejected.WithLabelValues("malformed").Inc()
		logging.Warn().Err(err).Int64("user_id", c.identity.UserID).Msg("dropping malformed frame")
		return
	}

	switch frame.Type {
	case FrameTypeJoinGroup:
		metrics.FramesReceived.WithLabelValues(FrameTypeJoinGroup).Inc()
		r.handleJoinGroup(ctx, c, int64(frame.GroupID))
	case FrameTypeMessage:
		metrics.FramesReceived.WithLabelValues(FrameTypeMessage).Inc()
		r.handleMessage(ctx, c, int64(frame.GroupID), frame.Content)
	case FrameTypeNoteUpdate:
		metrics.FramesReceived.WithLabelValues(FrameTypeNoteUpdate).Inc()
		r.handleNoteUpdate(ctx, c, int64(frame.GroupID), frame.Content)
	default:
		metrics.FramesReceived.WithLabelValues("unknown").Inc()
		logging.Warn().
			Str("frame_type", frame.Type).
			Int64("user_id", c.identity.UserID).
			Msg("dropping frame with unknown type")
	}
}

// authorize is the single membership check every handler goes through.
// It reports whether the sender may act in the group and has already sent
// the error frame when not.
func (r *Router) authorize(ctx context.Context, c *Client, groupID int64) bool {
	ok, err := r.membership.IsMember(ctx, c.identity.UserID, groupID)
	if err != nil {
		metrics.FramesRejected.WithLabelValues("persistence").Inc()
		logging.Error().Err(err).Int64("group_id", groupID).Msg("membership check failed")
		c.sendError("could not verify group membership")
		return false
	}
	if !ok {
		metrics.FramesRejected.WithLabelValues("unauthorized").Inc()
		c.sendError("not a member of this group")
		return false
	}
	return true
}

// handleJoinGroup adds the connection to the room's live set after
// re-validating membership. Joining an already-joined room is a no-op
// success.
func (r *Router) handleJoinGroup(ctx context.Context, c *Client, groupID int64) {
	if c.joinedRooms[groupID] {
		return
	}
	if !r.authorize(ctx, c, groupID) {
		return
	}

	if !r.hub.Join(groupID, c) {
		return
	}
	c.joinedRooms[groupID] = true
	logging.Debug().
		Int64("group_id", groupID).
		Int64("user_id", c.identity.UserID).
		Msg("joined room")
}

// handleMessage validates, persists, then broadcasts a chat message to every
// live member of the room including the sender, so the sender's UI
// reconciles through the same event path as everyone else.
func (r *Router) handleMessage(ctx context.Context, c *Client, groupID int64, content string) {
	content = strings.TrimSpace(content)
	if content == "" {
		metrics.FramesRejected.WithLabelValues("validation").Inc()
		c.sendError("message content cannot be empty")
		return
	}
	if !r.authorize(ctx, c, groupID) {
		return
	}

	msg, err := r.gateway.AppendMessage(ctx, groupID, c.identity, content)
	if err != nil {
		metrics.FramesRejected.WithLabelValues("persistence").Inc()
		logging.Error().Err(err).Int64("group_id", groupID).Msg("failed to persist message")
		c.sendError("failed to save message")
		return
	}

	payload, err := marshalMessage(msg)
	if err != nil {
		logging.Error().Err(err).Msg("failed to marshal message frame")
		c.sendError("failed to deliver message")
		return
	}
	r.hub.Broadcast(groupID, FrameTypeMessage, payload, nil)
}

// handleNoteUpdate persists a note edit (last write wins, no merge) and
// broadcasts it to every live member except the sender.
func (r *Router) handleNoteUpdate(ctx context.Context, c *Client, groupID int64, content string) {
	if !r.authorize(ctx, c, groupID) {
		return
	}

	note, err := r.gateway.UpsertNote(ctx, groupID, content, c.identity.UserID)
	if err != nil {
		metrics.FramesRejected.WithLabelValues("persistence").Inc()
		logging.Error().Err(err).Int64("group_id", groupID).Msg("failed to persist note")
		c.sendError("failed to save note")
		return
	}

	payload, err := marshalNoteUpdate(note.GroupID, note.Content)
	if err != nil {
		logging.Error().Err(err).Msg("failed to marshal note frame")
		return
	}
	r.hub.Broadcast(groupID, FrameTypeNoteUpdate, payload, c)
}
