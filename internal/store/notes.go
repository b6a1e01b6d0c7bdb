// Studyhall - Real-Time Study Group Collaboration Backend
// Copyright 2026 Studyhall Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/studyhall-app/studyhall

package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/studyhall-app/studyhall/internal/metrics"
	"github.com/studyhall-app/studyhall/internal/models"
)

const noteKeyPrefix = "note:"

// defaultNoteTitle is the title every lazily created note starts with.
const defaultNoteTitle = "Shared Notes"

func noteKey(groupID int64) []byte {
	return []byte(noteKeyPrefix + strconv.FormatInt(groupID, 10))
}

// Note fetches a group's shared note, creating an empty one on first access.
// The requester is recorded as the last editor of a freshly created note.
func (s *Store) Note(ctx context.Context, groupID int64, requesterID int64) (*models.SharedNote, error) {
	note, err := s.getNote(groupID)
	if err == nil {
		return note, nil
	}
	if !errors.Is(err, ErrNoteNotFound) {
		return nil, err
	}

	if _, err := s.Group(ctx, groupID); err != nil {
		return nil, err
	}
	return s.UpsertNote(ctx, groupID, "", requesterID)
}

// UpsertNote overwrites the single note of a group unconditionally: last
// write wins, no merge, no conflict detection. Concurrent editors can clobber
// each other; acceptable for small trusted groups.
func (s *Store) UpsertNote(ctx context.Context, groupID int64, content string, editorID int64) (*models.SharedNote, error) {
	start := time.Now()
	defer func() {
		metrics.StoreOpDuration.WithLabelValues("upsert_note").Observe(time.Since(start).Seconds())
	}()

	note := &models.SharedNote{
		GroupID:      groupID,
		Title:        defaultNoteTitle,
		Content:      content,
		LastEditedBy: editorID,
		UpdatedAt:    time.Now().UTC(),
	}

	data, err := json.Marshal(note)
	if err != nil {
		return nil, fmt.Errorf("marshal note: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(noteKey(groupID), data)
	})
	if err != nil {
		metrics.StoreOpErrors.WithLabelValues("upsert_note").Inc()
		return nil, fmt.Errorf("upsert note: %w", err)
	}
	return note, nil
}

func (s *Store) getNote(groupID int64) (*models.SharedNote, error) {
	var note models.SharedNote
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(noteKey(groupID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNoteNotFound
		}
		if err != nil {
			return fmt.Errorf("get note: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &note)
		})
	})
	if err != nil {
		return nil, err
	}
	return &note, nil
}
