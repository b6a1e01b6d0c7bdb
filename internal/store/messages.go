// Studyhall - Real-Time Study Group Collaboration Backend
// Copyright 2026 Studyhall Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/studyhall-app/studyhall

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/studyhall-app/studyhall/internal/metrics"
	"github.com/studyhall-app/studyhall/internal/models"
)

const messageKeyPrefix = "message:"

// messageKey zero-pads the sequence so keys sort in append order.
func messageKey(groupID int64, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%d:%020d", messageKeyPrefix, groupID, seq))
}

// AppendMessage durably appends a chat message and returns the persisted
// record with server-assigned ID and timestamp. The author fields come from
// the caller's verified identity, never from a client payload. Content is
// stored as given; callers validate and trim first.
func (s *Store) AppendMessage(ctx context.Context, groupID int64, author models.Identity, content string) (*models.ChatMessage, error) {
	start := time.Now()
	defer func() {
		metrics.StoreOpDuration.WithLabelValues("append_message").Observe(time.Since(start).Seconds())
	}()

	if _, err := s.Group(ctx, groupID); err != nil {
		return nil, err
	}

	seq, err := s.messageSeq(groupID)
	if err != nil {
		return nil, err
	}
	n, err := seq.Next()
	if err != nil {
		return nil, fmt.Errorf("failed to allocate message sequence: %w", err)
	}

	msg := &models.ChatMessage{
		ID:         uuid.New().String(),
		GroupID:    groupID,
		AuthorID:   author.UserID,
		AuthorName: author.Name,
		Content:    content,
		CreatedAt:  time.Now().UTC(),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(groupID, n), data)
	})
	if err != nil {
		metrics.StoreOpErrors.WithLabelValues("append_message").Inc()
		return nil, fmt.Errorf("append message: %w", err)
	}
	return msg, nil
}

// Messages returns up to limit messages of a group in append order, skipping
// offset records. The caller has already checked membership.
func (s *Store) Messages(ctx context.Context, groupID int64, limit, offset int) ([]*models.ChatMessage, error) {
	start := time.Now()
	defer func() {
		metrics.StoreOpDuration.WithLabelValues("list_messages").Observe(time.Since(start).Seconds())
	}()

	if limit <= 0 {
		return []*models.ChatMessage{}, nil
	}

	messages := make([]*models.ChatMessage, 0, limit)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(fmt.Sprintf("%s%d:", messageKeyPrefix, groupID))
		skipped := 0
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if skipped < offset {
				skipped++
				continue
			}
			if len(messages) >= limit {
				break
			}
			var msg models.ChatMessage
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &msg)
			})
			if err != nil {
				return fmt.Errorf("unmarshal message: %w", err)
			}
			messages = append(messages, &msg)
		}
		return nil
	})
	if err != nil {
		metrics.StoreOpErrors.WithLabelValues("list_messages").Inc()
		return nil, err
	}
	return messages, nil
}
