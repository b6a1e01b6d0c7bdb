// Studyhall - Real-Time Study Group Collaboration Backend
// Copyright 2026 Studyhall Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/studyhall-app/studyhall

// Package models defines the shared data types for Studyhall: verified
// identities, study groups, chat messages, and the single shared note
// each group co-edits.
package models

import "time"

// Identity is the verified (user id, display name) pair bound to a live
// connection at handshake. It is immutable for the connection's lifetime.
type Identity struct {
	UserID int64  `json:"userId"`
	Name   string `json:"name"`
}

// Group is a study group. Each group is also a broadcast room: the group ID
// doubles as the room ID for the real-time layer.
type Group struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	ClassName  string    `json:"className,omitempty"`
	InviteCode string    `json:"inviteCode"`
	CreatedBy  int64     `json:"createdBy"`
	CreatedAt  time.Time `json:"createdAt"`

	// MemberCount is populated on reads that include membership totals.
	MemberCount int `json:"memberCount,omitempty"`
}

// ChatMessage is a durably persisted chat message. The server assigns ID and
// CreatedAt; AuthorID always comes from the sender's verified identity, never
// from the client payload. Messages are immutable once created.
type ChatMessage struct {
	ID         string    `json:"id"`
	GroupID    int64     `json:"groupId"`
	AuthorID   int64     `json:"userId"`
	AuthorName string    `json:"userName"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"createdAt"`
}

// SharedNote is the single co-edited note of a group. Exactly one row exists
// per group, created lazily on first access. Updates are last-write-wins:
// no merge, no conflict detection.
type SharedNote struct {
	GroupID      int64     `json:"groupId"`
	Title        string    `json:"title"`
	Content      string    `json:"content"`
	LastEditedBy int64     `json:"lastEditedBy"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Membership records that a user belongs to a group. The store is the source
// of truth for membership; the real-time layer re-checks it on every join and
// send rather than caching it.
type Membership struct {
	GroupID  int64     `json:"groupId"`
	UserID   int64     `json:"userId"`
	JoinedAt time.Time `json:"joinedAt"`
}
