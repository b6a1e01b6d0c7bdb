// Studyhall - Real-Time Study Group Collaboration Backend
// Copyright 2026 Studyhall Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/studyhall-app/studyhall

package realtime

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/studyhall-app/studyhall/internal/models"
)

// stubMembership answers membership checks from a fixed set and counts calls.
type stubMembership struct {
	members map[[2]int64]bool // [userID, groupID]
	err     error
	calls   int
}

func (s *stubMembership) IsMember(_ context.Context, userID, groupID int64) (bool, error) {
	s.calls++
	if s.err != nil {
		return false, s.err
	}
	return s.members[[2]int64{userID, groupID}], nil
}

// stubGateway records persistence calls and can be told to fail.
type stubGateway struct {
	appendErr error
	upsertErr error
	appended  []string
	notes     []string
}

func (s *stubGateway) AppendMessage(_ context.Context, groupID int64, author models.Identity, content string) (*models.ChatMessage, error) {
	if s.appendErr != nil {
		return nil, s.appendErr
	}
	s.appended = append(s.appended, content)
	return &models.ChatMessage{
		ID:         "m1",
		GroupID:    groupID,
		AuthorID:   author.UserID,
		AuthorName: author.Name,
		Content:    content,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

func (s *stubGateway) UpsertNote(_ context.Context, groupID int64, content string, editorID int64) (*models.SharedNote, error) {
	if s.upsertErr != nil {
		return nil, s.upsertErr
	}
	s.notes = append(s.notes, content)
	return &models.SharedNote{
		GroupID:      groupID,
		Content:      content,
		LastEditedBy: editorID,
		UpdatedAt:    time.Now().UTC(),
	}, nil
}

type routerFixture struct {
	hub        *Hub
	router     *Router
	membership *stubMembership
	gateway    *stubGateway
	cancel     context.CancelFunc
}

func setupRouter(t *testing.T) *routerFixture {
	t.Helper()
	hub, cancel := setupHub(t)
	membership := &stubMembership{members: make(map[[2]int64]bool)}
	gateway := &stubGateway{}
	return &routerFixture{
		hub:        hub,
		router:     NewRouter(hub, membership, gateway),
		membership: membership,
		gateway:    gateway,
		cancel:     cancel,
	}
}

func (f *routerFixture) newMember(t *testing.T, userID int64, name string, groupID int64) *Client {
	t.Helper()
	client := NewClient(f.hub, f.router, nil, models.Identity{UserID: userID, Name: name}, testRealtimeConfig())
	registerClient(f.hub, client)
	f.membership.members[[2]int64{userID, groupID}] = true
	return client
}

// drainOne pops the next queued frame and decodes it into a generic map.
func drainOne(t *testing.T, c *Client) map[string]interface{} {
	t.Helper()
	select {
	case payload := <-c.send:
		var frame map[string]interface{}
		if err := json.Unmarshal(payload, &frame); err != nil {
			t.Fatalf("invalid frame %q: %v", payload, err)
		}
		return frame
	case <-time.After(time.Second):
		t.Fatal("no frame queued")
		return nil
	}
}

func assertNoFrame(t *testing.T, c *Client) {
	t.Helper()
	select {
	case payload := <-c.send:
		t.Fatalf("unexpected frame %q", payload)
	default:
	}
}

func TestRouterJoinGroup(t *testing.T) {
	f := setupRouter(t)
	defer f.cancel()

	client := f.newMember(t, 1, "ada", 7)
	f.router.Dispatch(context.Background(), client, []byte(`{"type":"join_group","groupId":7}`))

	if !f.hub.InRoom(7, client) {
		t.Fatal("member not in room after join_group")
	}
	assertNoFrame(t, client)

	// A second join is a silent no-op and skips the membership check.
	before := f.membership.calls
	f.router.Dispatch(context.Background(), client, []byte(`{"type":"join_group","groupId":7}`))
	if f.membership.calls != before {
		t.Error("duplicate join re-checked membership")
	}
}

func TestRouterJoinGroupRejectsNonMember(t *testing.T) {
	f := setupRouter(t)
	defer f.cancel()

	client := NewClient(f.hub, f.router, nil, models.Identity{UserID: 9, Name: "eve"}, testRealtimeConfig())
	registerClient(f.hub, client)

	f.router.Dispatch(context.Background(), client, []byte(`{"type":"join_group","groupId":7}`))

	if f.hub.InRoom(7, client) {
		t.Fatal("non-member joined the room")
	}
	frame := drainOne(t, client)
	if frame["type"] != FrameTypeError {
		t.Fatalf("frame type = %v, want error", frame["type"])
	}
	if !strings.Contains(frame["message"].(string), "not a member") {
		t.Errorf("unexpected error message %v", frame["message"])
	}
}

func TestRouterJoinGroupSkipsTornDownClient(t *testing.T) {
	f := setupRouter(t)
	defer f.cancel()

	client := f.newMember(t, 1, "ada", 7)
	f.hub.Unregister <- client
	time.Sleep(20 * time.Millisecond)

	f.router.Dispatch(context.Background(), client, []byte(`{"type":"join_group","groupId":7}`))

	if client.joinedRooms[7] {
		t.Fatal("torn-down client marked as joined")
	}
	if f.hub.InRoom(7, client) {
		t.Fatal("torn-down client joined the room")
	}

	// A retry on a fresh session must re-check membership, so the refused
	// join cannot leave a stale local record behind.
	before := f.membership.calls
	f.router.Dispatch(context.Background(), client, []byte(`{"type":"join_group","groupId":7}`))
	if f.membership.calls == before {
		t.Error("retried join skipped the membership check")
	}
}

func TestRouterJoinGroupAcceptsStringGroupID(t *testing.T) {
	f := setupRouter(t)
	defer f.cancel()

	client := f.newMember(t, 1, "ada", 7)
	f.router.Dispatch(context.Background(), client, []byte(`{"type":"join_group","groupId":"7"}`))

	if !f.hub.InRoom(7, client) {
		t.Fatal("numeric-string group id not accepted")
	}
}

func TestRouterMessageBroadcastIncludesSender(t *testing.T) {
	f := setupRouter(t)
	defer f.cancel()

	sender := f.newMember(t, 1, "ada", 7)
	other := f.newMember(t, 2, "grace", 7)
	f.hub.Join(7, sender)
	f.hub.Join(7, other)

	f.router.Dispatch(context.Background(), sender, []byte(`{"type":"message","groupId":7,"content":"hi"}`))

	if len(f.gateway.appended) != 1 || f.gateway.appended[0] != "hi" {
		t.Fatalf("persisted = %v, want [hi]", f.gateway.appended)
	}

	for _, c := range []*Client{sender, other} {
		frame := drainOne(t, c)
		if frame["type"] != FrameTypeMessage {
			t.Fatalf("frame type = %v, want message", frame["type"])
		}
		if frame["content"] != "hi" || frame["userName"] != "ada" {
			t.Errorf("frame = %v", frame)
		}
		if frame["id"] == "" || frame["createdAt"] == "" {
			t.Errorf("frame missing id or createdAt: %v", frame)
		}
	}
}

func TestRouterMessageRejectsEmptyContent(t *testing.T) {
	f := setupRouter(t)
	defer f.cancel()

	sender := f.newMember(t, 1, "ada", 7)
	f.hub.Join(7, sender)

	f.router.Dispatch(context.Background(), sender, []byte(`{"type":"message","groupId":7,"content":"   "}`))

	if len(f.gateway.appended) != 0 {
		t.Fatal("whitespace-only message was persisted")
	}
	frame := drainOne(t, sender)
	if frame["type"] != FrameTypeError {
		t.Fatalf("frame type = %v, want error", frame["type"])
	}
}

func TestRouterMessagePersistenceFailureSuppressesBroadcast(t *testing.T) {
	f := setupRouter(t)
	defer f.cancel()

	sender := f.newMember(t, 1, "ada", 7)
	other := f.newMember(t, 2, "grace", 7)
	f.hub.Join(7, sender)
	f.hub.Join(7, other)
	f.gateway.appendErr = errors.New("disk full")

	f.router.Dispatch(context.Background(), sender, []byte(`{"type":"message","groupId":7,"content":"hi"}`))

	frame := drainOne(t, sender)
	if frame["type"] != FrameTypeError {
		t.Fatalf("sender frame type = %v, want error", frame["type"])
	}
	assertNoFrame(t, other)
}

func TestRouterNoteUpdateExcludesSender(t *testing.T) {
	f := setupRouter(t)
	defer f.cancel()

	sender := f.newMember(t, 1, "ada", 7)
	other := f.newMember(t, 2, "grace", 7)
	f.hub.Join(7, sender)
	f.hub.Join(7, other)

	f.router.Dispatch(context.Background(), sender, []byte(`{"type":"note_update","groupId":7,"content":"outline"}`))

	if len(f.gateway.notes) != 1 || f.gateway.notes[0] != "outline" {
		t.Fatalf("persisted notes = %v, want [outline]", f.gateway.notes)
	}

	frame := drainOne(t, other)
	if frame["type"] != FrameTypeNoteUpdate || frame["content"] != "outline" {
		t.Fatalf("frame = %v", frame)
	}
	assertNoFrame(t, sender)
}

func TestRouterNoteUpdateRequiresMembership(t *testing.T) {
	f := setupRouter(t)
	defer f.cancel()

	client := NewClient(f.hub, f.router, nil, models.Identity{UserID: 9, Name: "eve"}, testRealtimeConfig())
	registerClient(f.hub, client)

	f.router.Dispatch(context.Background(), client, []byte(`{"type":"note_update","groupId":7,"content":"x"}`))

	if len(f.gateway.notes) != 0 {
		t.Fatal("non-member note edit was persisted")
	}
	frame := drainOne(t, client)
	if frame["type"] != FrameTypeError {
		t.Fatalf("frame type = %v, want error", frame["type"])
	}
}

func TestRouterMembershipRevokedMidSession(t *testing.T) {
	f := setupRouter(t)
	defer f.cancel()

	sender := f.newMember(t, 1, "ada", 7)
	f.hub.Join(7, sender)

	// Revoke between frames; the next send must be rejected.
	f.membership.members[[2]int64{1, 7}] = false
	f.router.Dispatch(context.Background(), sender, []byte(`{"type":"message","groupId":7,"content":"hi"}`))

	if len(f.gateway.appended) != 0 {
		t.Fatal("revoked member's message was persisted")
	}
	frame := drainOne(t, sender)
	if frame["type"] != FrameTypeError {
		t.Fatalf("frame type = %v, want error", frame["type"])
	}
}

func TestRouterDropsMalformedAndUnknownFrames(t *testing.T) {
	f := setupRouter(t)
	defer f.cancel()

	client := f.newMember(t, 1, "ada", 7)
	f.hub.Join(7, client)

	frames := [][]byte{
		[]byte(`{not json`),
		[]byte(`{"type":"presence_ping","groupId":7}`),
		[]byte(`{"type":"join_group","groupId":"abc"}`),
	}
	for _, data := range frames {
		f.router.Dispatch(context.Background(), client, data)
	}

	// Dropped frames produce no error frames and no persistence.
	assertNoFrame(t, client)
	if len(f.gateway.appended) != 0 || len(f.gateway.notes) != 0 {
		t.Error("dropped frame reached the gateway")
	}
}

func TestRouterMembershipErrorSendsError(t *testing.T) {
	f := setupRouter(t)
	defer f.cancel()

	client := f.newMember(t, 1, "ada", 7)
	f.membership.err = errors.New("store closed")

	f.router.Dispatch(context.Background(), client, []byte(`{"type":"message","groupId":7,"content":"hi"}`))

	frame := drainOne(t, client)
	if frame["type"] != FrameTypeError {
		t.Fatalf("frame type = %v, want error", frame["type"])
	}
	if len(f.gateway.appended) != 0 {
		t.Error("message persisted despite failed membership check")
	}
}
