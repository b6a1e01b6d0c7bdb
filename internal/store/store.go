// Studyhall - Real-Time Study Group Collaboration Backend
// Copyright 2026 Studyhall Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/studyhall-app/studyhall

// Package store persists Studyhall's durable state in BadgerDB: groups,
// group membership, chat messages, and the one shared note per group.
//
// The real-time layer treats this package as two interfaces: the membership
// oracle (IsMember) and the persistence gateway (AppendMessage, UpsertNote).
// Both are synchronous from the caller's perspective; failures are returned,
// never retried here.
//
// Key layout:
//
//	group:<id>              -> models.Group
//	invite:<code>           -> group id (decimal string)
//	member:<gid>:<uid>      -> models.Membership
//	user_groups:<uid>:<gid> -> group id (reverse index for listing)
//	message:<gid>:<seq>     -> models.ChatMessage (seq zero-padded, append order)
//	note:<gid>              -> models.SharedNote
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/studyhall-app/studyhall/internal/config"
	"github.com/studyhall-app/studyhall/internal/logging"
)

// Sentinel errors surfaced to the API and real-time layers.
var (
	ErrGroupNotFound  = errors.New("group not found")
	ErrInviteNotFound = errors.New("invite code not found")
	ErrAlreadyMember  = errors.New("already a member of this group")
	ErrNoteNotFound   = errors.New("note not found")
)

// Store is the BadgerDB-backed persistence layer.
type Store struct {
	db *badger.DB

	// groupSeq allocates group IDs.
	groupSeq *badger.Sequence

	// messageSeqs holds one lazily created sequence per group so message keys
	// sort in append order. Guarded by seqMu.
	seqMu       sync.Mutex
	messageSeqs map[int64]*badger.Sequence
}

// Open opens (or creates) the store at the configured path.
func Open(cfg *config.StoreConfig) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Path).
		WithLogger(badgerLogger{}).
		WithInMemory(cfg.InMemory)
	if cfg.InMemory {
		opts.Dir = ""
		opts.ValueDir = ""
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger store: %w", err)
	}

	groupSeq, err := db.GetSequence([]byte("seq:group"), 16)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open group sequence: %w", err)
	}

	return &Store{
		db:          db,
		groupSeq:    groupSeq,
		messageSeqs: make(map[int64]*badger.Sequence),
	}, nil
}

// Close releases sequences and closes the underlying database.
func (s *Store) Close() error {
	s.seqMu.Lock()
	for _, seq := range s.messageSeqs {
		if err := seq.Release(); err != nil {
			logging.Warn().Err(err).Msg("failed to release message sequence")
		}
	}
	s.messageSeqs = nil
	s.seqMu.Unlock()

	if err := s.groupSeq.Release(); err != nil {
		logging.Warn().Err(err).Msg("failed to release group sequence")
	}
	return s.db.Close()
}

// Ping verifies the database is open and answering reads.
func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte("seq:group"))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

// messageSeq returns the per-group message sequence, creating it on first use.
func (s *Store) messageSeq(groupID int64) (*badger.Sequence, error) {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()

	if seq, ok := s.messageSeqs[groupID]; ok {
		return seq, nil
	}
	key := fmt.Sprintf("seq:message:%d", groupID)
	seq, err := s.db.GetSequence([]byte(key), 64)
	if err != nil {
		return nil, fmt.Errorf("failed to open message sequence for group %d: %w", groupID, err)
	}
	s.messageSeqs[groupID] = seq
	return seq, nil
}

// badgerLogger routes Badger's internal logging through zerolog.
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...interface{}) {
	logging.Error().Msgf("badger: "+format, args...)
}

func (badgerLogger) Warningf(format string, args ...interface{}) {
	logging.Warn().Msgf("badger: "+format, args...)
}

func (badgerLogger) Infof(format string, args ...interface{}) {
	logging.Debug().Msgf("badger: "+format, args...)
}

func (badgerLogger) Debugf(format string, args ...interface{}) {
	logging.Debug().Msgf("badger: "+format, args...)
}
