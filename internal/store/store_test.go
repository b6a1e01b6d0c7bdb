// Studyhall - Real-Time Study Group Collaboration Backend
// Copyright 2026 Studyhall Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/studyhall-app/studyhall

package store

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/studyhall-app/studyhall/internal/config"
	"github.com/studyhall-app/studyhall/internal/logging"
	"github.com/studyhall-app/studyhall/internal/models"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{
		Level:  "info",
		Format: "console",
		Output: io.Discard,
	})
}

// openTestStore opens an in-memory store that closes with the test.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(&config.StoreConfig{InMemory: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := st.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return st
}

func mustCreateGroup(t *testing.T, st *Store, name string, creatorID int64) *models.Group {
	t.Helper()
	group, err := st.CreateGroup(context.Background(), name, "CS 101", creatorID)
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	return group
}

func TestCreateGroup(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	group := mustCreateGroup(t, st, "Algorithms", 1)

	if group.ID <= 0 {
		t.Errorf("group ID = %d, want positive", group.ID)
	}
	if group.Name != "Algorithms" || group.ClassName != "CS 101" {
		t.Errorf("group = %+v", group)
	}
	if len(group.InviteCode) != inviteCodeLength {
		t.Errorf("invite code %q, want %d characters", group.InviteCode, inviteCodeLength)
	}
	if group.InviteCode != strings.ToLower(group.InviteCode) {
		t.Errorf("invite code %q not lowercase", group.InviteCode)
	}
	if group.MemberCount != 1 {
		t.Errorf("MemberCount = %d, want 1 (creator)", group.MemberCount)
	}

	// The creator is a member immediately.
	member, err := st.IsMember(ctx, 1, group.ID)
	if err != nil {
		t.Fatalf("IsMember: %v", err)
	}
	if !member {
		t.Error("creator is not a member of the new group")
	}

	// Group ids are unique across creates.
	second := mustCreateGroup(t, st, "Databases", 1)
	if second.ID == group.ID {
		t.Errorf("duplicate group id %d", second.ID)
	}
	if second.InviteCode == group.InviteCode {
		t.Errorf("duplicate invite code %q", second.InviteCode)
	}
}

func TestGenerateInviteCode(t *testing.T) {
	for i := 0; i < 500; i++ {
		code, err := generateInviteCode()
		if err != nil {
			t.Fatalf("generateInviteCode: %v", err)
		}
		if len(code) != inviteCodeLength {
			t.Fatalf("code %q length = %d, want %d", code, len(code), inviteCodeLength)
		}
		for _, c := range code {
			if !strings.ContainsRune(inviteCodeAlphabet, c) {
				t.Fatalf("code %q contains %q, not in alphabet", code, c)
			}
		}
	}
}

func TestGroupNotFound(t *testing.T) {
	st := openTestStore(t)

	_, err := st.Group(context.Background(), 999)
	if !errors.Is(err, ErrGroupNotFound) {
		t.Fatalf("Group(999) err = %v, want ErrGroupNotFound", err)
	}
}

func TestJoinGroupByCode(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	group := mustCreateGroup(t, st, "Algorithms", 1)

	joined, err := st.JoinGroupByCode(ctx, group.InviteCode, 2)
	if err != nil {
		t.Fatalf("JoinGroupByCode: %v", err)
	}
	if joined.ID != group.ID {
		t.Errorf("joined group %d, want %d", joined.ID, group.ID)
	}
	if joined.MemberCount != 2 {
		t.Errorf("MemberCount = %d, want 2", joined.MemberCount)
	}

	member, err := st.IsMember(ctx, 2, group.ID)
	if err != nil {
		t.Fatalf("IsMember: %v", err)
	}
	if !member {
		t.Error("joiner is not a member")
	}

	// Joining twice conflicts.
	_, err = st.JoinGroupByCode(ctx, group.InviteCode, 2)
	if !errors.Is(err, ErrAlreadyMember) {
		t.Errorf("second join err = %v, want ErrAlreadyMember", err)
	}

	// Unknown code.
	_, err = st.JoinGroupByCode(ctx, "zzzzzz", 3)
	if !errors.Is(err, ErrInviteNotFound) {
		t.Errorf("unknown code err = %v, want ErrInviteNotFound", err)
	}
}

func TestGroupsForUser(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	first := mustCreateGroup(t, st, "Algorithms", 1)
	second := mustCreateGroup(t, st, "Databases", 2)
	if _, err := st.JoinGroupByCode(ctx, second.InviteCode, 1); err != nil {
		t.Fatalf("JoinGroupByCode: %v", err)
	}

	groups, err := st.GroupsForUser(ctx, 1)
	if err != nil {
		t.Fatalf("GroupsForUser: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("got %d groups, want 2", len(groups))
	}
	seen := map[int64]bool{}
	for _, g := range groups {
		seen[g.ID] = true
	}
	if !seen[first.ID] || !seen[second.ID] {
		t.Errorf("groups = %v, want ids %d and %d", seen, first.ID, second.ID)
	}

	// A user with no memberships gets an empty list, not an error.
	none, err := st.GroupsForUser(ctx, 99)
	if err != nil {
		t.Fatalf("GroupsForUser(99): %v", err)
	}
	if len(none) != 0 {
		t.Errorf("got %d groups for non-member, want 0", len(none))
	}
}

func TestRemoveMember(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	group := mustCreateGroup(t, st, "Algorithms", 1)
	if _, err := st.JoinGroupByCode(ctx, group.InviteCode, 2); err != nil {
		t.Fatalf("JoinGroupByCode: %v", err)
	}

	if err := st.RemoveMember(ctx, 2, group.ID); err != nil {
		t.Fatalf("RemoveMember: %v", err)
	}
	member, err := st.IsMember(ctx, 2, group.ID)
	if err != nil {
		t.Fatalf("IsMember: %v", err)
	}
	if member {
		t.Error("removed user still a member")
	}

	count, err := st.MemberCount(ctx, group.ID)
	if err != nil {
		t.Fatalf("MemberCount: %v", err)
	}
	if count != 1 {
		t.Errorf("MemberCount = %d, want 1", count)
	}
}

func TestAppendAndListMessages(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	author := models.Identity{UserID: 1, Name: "ada"}

	group := mustCreateGroup(t, st, "Algorithms", 1)

	contents := []string{"first", "second", "third", "fourth", "fifth"}
	var ids []string
	for _, content := range contents {
		msg, err := st.AppendMessage(ctx, group.ID, author, content)
		if err != nil {
			t.Fatalf("AppendMessage(%q): %v", content, err)
		}
		if msg.ID == "" {
			t.Fatal("message has empty id")
		}
		if msg.AuthorName != "ada" {
			t.Errorf("AuthorName = %q, want ada", msg.AuthorName)
		}
		ids = append(ids, msg.ID)
	}

	// Full history comes back in append order.
	msgs, err := st.Messages(ctx, group.ID, 50, 0)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(msgs) != len(contents) {
		t.Fatalf("got %d messages, want %d", len(msgs), len(contents))
	}
	for i, msg := range msgs {
		if msg.Content != contents[i] {
			t.Errorf("message[%d] = %q, want %q", i, msg.Content, contents[i])
		}
		if msg.ID != ids[i] {
			t.Errorf("message[%d] id = %q, want %q", i, msg.ID, ids[i])
		}
	}

	// Pagination windows slide over the same order.
	page, err := st.Messages(ctx, group.ID, 2, 1)
	if err != nil {
		t.Fatalf("Messages(limit=2, offset=1): %v", err)
	}
	if len(page) != 2 || page[0].Content != "second" || page[1].Content != "third" {
		t.Errorf("page = %v", page)
	}

	// Offset past the end yields an empty page.
	empty, err := st.Messages(ctx, group.ID, 10, 100)
	if err != nil {
		t.Fatalf("Messages(offset=100): %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("got %d messages past the end, want 0", len(empty))
	}
}

func TestAppendMessageUnknownGroup(t *testing.T) {
	st := openTestStore(t)

	_, err := st.AppendMessage(context.Background(), 999, models.Identity{UserID: 1, Name: "ada"}, "hi")
	if !errors.Is(err, ErrGroupNotFound) {
		t.Fatalf("err = %v, want ErrGroupNotFound", err)
	}
}

func TestMessagesAreScopedPerGroup(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	author := models.Identity{UserID: 1, Name: "ada"}

	first := mustCreateGroup(t, st, "Algorithms", 1)
	second := mustCreateGroup(t, st, "Databases", 1)

	if _, err := st.AppendMessage(ctx, first.ID, author, "to first"); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	if _, err := st.AppendMessage(ctx, second.ID, author, "to second"); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	msgs, err := st.Messages(ctx, first.ID, 50, 0)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Content != "to first" {
		t.Errorf("first group history = %v", msgs)
	}
}

func TestNoteLazyCreation(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	group := mustCreateGroup(t, st, "Algorithms", 1)

	note, err := st.Note(ctx, group.ID, 1)
	if err != nil {
		t.Fatalf("Note: %v", err)
	}
	if note.Content != "" {
		t.Errorf("fresh note content = %q, want empty", note.Content)
	}
	if note.Title != defaultNoteTitle {
		t.Errorf("fresh note title = %q, want %q", note.Title, defaultNoteTitle)
	}
	if note.GroupID != group.ID {
		t.Errorf("note group = %d, want %d", note.GroupID, group.ID)
	}

	_, err = st.Note(ctx, 999, 1)
	if !errors.Is(err, ErrGroupNotFound) {
		t.Errorf("Note(999) err = %v, want ErrGroupNotFound", err)
	}
}

func TestNoteLastWriteWins(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	group := mustCreateGroup(t, st, "Algorithms", 1)

	if _, err := st.UpsertNote(ctx, group.ID, "draft one", 1); err != nil {
		t.Fatalf("UpsertNote: %v", err)
	}
	final, err := st.UpsertNote(ctx, group.ID, "draft two", 2)
	if err != nil {
		t.Fatalf("UpsertNote: %v", err)
	}
	if final.Content != "draft two" {
		t.Errorf("content = %q, want %q", final.Content, "draft two")
	}
	if final.LastEditedBy != 2 {
		t.Errorf("LastEditedBy = %d, want 2", final.LastEditedBy)
	}

	// The stored note is the whole replacement, no merge.
	note, err := st.Note(ctx, group.ID, 1)
	if err != nil {
		t.Fatalf("Note: %v", err)
	}
	if note.Content != "draft two" {
		t.Errorf("persisted content = %q, want %q", note.Content, "draft two")
	}
}

func TestPing(t *testing.T) {
	st := openTestStore(t)

	if err := st.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	if err := st.Ping(canceled); err == nil {
		t.Error("Ping with canceled context succeeded")
	}
}
