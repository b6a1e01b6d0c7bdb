// Studyhall - Real-Time Study Group Collaboration Backend
// Copyright 2026 Studyhall Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/studyhall-app/studyhall

// Package realtime implements the connection/room multiplexer: one
// authenticated WebSocket session per client, a room registry that fans
// events out to authorized members, and the router that dispatches inbound
// frames to handlers.
//
// Wire protocol: JSON text frames. Client to server:
//
//	{"type":"join_group","groupId":7}
//	{"type":"message","groupId":7,"content":"hi"}
//	{"type":"note_update","groupId":7,"content":"outline v1"}
//
// Server to client:
//
//	{"type":"connected","userId":1,"userName":"Ada"}
//	{"type":"message","id":"...","groupId":7,"userId":1,"userName":"Ada","content":"hi","createdAt":"..."}
//	{"type":"note_update","groupId":7,"content":"outline v1"}
//	{"type":"error","message":"..."}
package realtime

import (
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/studyhall-app/studyhall/internal/models"
)

// Frame type tags shared by both directions.
const (
	FrameTypeConnected  = "connected"
	FrameTypeError      = "error"
	FrameTypeJoinGroup  = "join_group"
	FrameTypeMessage    = "message"
	FrameTypeNoteUpdate = "note_update"
)

// GroupID tolerates clients sending the group id as either a JSON number or
// a numeric string; browser clients routinely do both.
type GroupID int64

// UnmarshalJSON implements json.Unmarshaler.
func (g *GroupID) UnmarshalJSON(data []byte) error {
	var n int64
	if err := json.Unmarshal(data, &n); err == nil {
		*g = GroupID(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("group id must be a number or numeric string")
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("group id %q is not numeric", s)
	}
	*g = GroupID(n)
	return nil
}

// inboundFrame is the envelope every client frame is parsed into.
type inboundFrame struct {
	Type    string  `json:"type"`
	GroupID GroupID `json:"groupId"`
	Content string  `json:"content"`
}

// connectedFrame is the first frame after a successful handshake. It echoes
// the identity the connection is bound to.
type connectedFrame struct {
	Type     string `json:"type"`
	UserID   int64  `json:"userId"`
	UserName string `json:"userName"`
}

// errorFrame reports a recoverable failure to the offending sender only.
type errorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// messageFrame carries a persisted chat message to every live member of the
// room, the sender included.
type messageFrame struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	GroupID   int64  `json:"groupId"`
	UserID    int64  `json:"userId"`
	UserName  string `json:"userName"`
	Content   string `json:"content"`
	CreatedAt string `json:"createdAt"`
}

// noteUpdateFrame carries a note edit to every live member except the sender,
// who already holds the authoritative local text.
type noteUpdateFrame struct {
	Type    string `json:"type"`
	GroupID int64  `json:"groupId"`
	Content string `json:"content"`
}

// marshalConnected encodes the handshake acknowledgement.
func marshalConnected(identity models.Identity) ([]byte, error) {
	return json.Marshal(connectedFrame{
		Type:     FrameTypeConnected,
		UserID:   identity.UserID,
		UserName: identity.Name,
	})
}

// marshalError encodes a unicast error frame.
func marshalError(message string) ([]byte, error) {
	return json.Marshal(errorFrame{Type: FrameTypeError, Message: message})
}

// marshalMessage encodes a persisted chat message for broadcast. Every copy
// is the same byte slice, so all recipients see identical id, content, and
// author name.
func marshalMessage(msg *models.ChatMessage) ([]byte, error) {
	return json.Marshal(messageFrame{
		Type:      FrameTypeMessage,
		ID:        msg.ID,
		GroupID:   msg.GroupID,
		UserID:    msg.AuthorID,
		UserName:  msg.AuthorName,
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt.Format(time.RFC3339Nano),
	})
}

// marshalNoteUpdate encodes a note edit for broadcast.
func marshalNoteUpdate(groupID int64, content string) ([]byte, error) {
	return json.Marshal(noteUpdateFrame{
		Type:    FrameTypeNoteUpdate,
		GroupID: groupID,
		Content: content,
	})
}
