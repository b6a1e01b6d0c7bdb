// Studyhall - Real-Time Study Group Collaboration Backend
// Copyright 2026 Studyhall Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/studyhall-app/studyhall

package store

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/studyhall-app/studyhall/internal/models"
)

const (
	groupKeyPrefix      = "group:"
	inviteKeyPrefix     = "invite:"
	memberKeyPrefix     = "member:"
	userGroupsKeyPrefix = "user_groups:"
)

// inviteCodeLength matches the 6-character codes users share out of band.
const inviteCodeLength = 6

const inviteCodeAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

func groupKey(groupID int64) []byte {
	return []byte(groupKeyPrefix + strconv.FormatInt(groupID, 10))
}

func memberKey(groupID, userID int64) []byte {
	return []byte(fmt.Sprintf("%s%d:%d", memberKeyPrefix, groupID, userID))
}

func userGroupsKey(userID, groupID int64) []byte {
	return []byte(fmt.Sprintf("%s%d:%d", userGroupsKeyPrefix, userID, groupID))
}

// CreateGroup creates a group with a fresh invite code and adds the creator
// as its first member.
func (s *Store) CreateGroup(ctx context.Context, name, className string, creatorID int64) (*models.Group, error) {
	id, err := s.groupSeq.Next()
	if err != nil {
		return nil, fmt.Errorf("failed to allocate group id: %w", err)
	}

	code, err := generateInviteCode()
	if err != nil {
		return nil, err
	}

	group := &models.Group{
		ID:         int64(id) + 1, // sequences start at zero; group ids start at one
		Name:       name,
		ClassName:  className,
		InviteCode: code,
		CreatedBy:  creatorID,
		CreatedAt:  time.Now().UTC(),
	}

	data, err := json.Marshal(group)
	if err != nil {
		return nil, fmt.Errorf("marshal group: %w", err)
	}

	membership := models.Membership{GroupID: group.ID, UserID: creatorID, JoinedAt: group.CreatedAt}
	memberData, err := json.Marshal(&membership)
	if err != nil {
		return nil, fmt.Errorf("marshal membership: %w", err)
	}

	gid := strconv.FormatInt(group.ID, 10)
	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(groupKey(group.ID), data); err != nil {
			return fmt.Errorf("set group: %w", err)
		}
		if err := txn.Set([]byte(inviteKeyPrefix+code), []byte(gid)); err != nil {
			return fmt.Errorf("set invite: %w", err)
		}
		if err := txn.Set(memberKey(group.ID, creatorID), memberData); err != nil {
			return fmt.Errorf("set membership: %w", err)
		}
		if err := txn.Set(userGroupsKey(creatorID, group.ID), []byte(gid)); err != nil {
			return fmt.Errorf("set user index: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	group.MemberCount = 1
	return group, nil
}

// Group fetches a group by ID.
func (s *Store) Group(ctx context.Context, groupID int64) (*models.Group, error) {
	var group models.Group
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(groupKey(groupID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrGroupNotFound
		}
		if err != nil {
			return fmt.Errorf("get group: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &group)
		})
	})
	if err != nil {
		return nil, err
	}
	return &group, nil
}

// GroupsForUser lists every group the user belongs to, with member counts.
func (s *Store) GroupsForUser(ctx context.Context, userID int64) ([]*models.Group, error) {
	var groupIDs []int64

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(fmt.Sprintf("%s%d:", userGroupsKeyPrefix, userID))
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				id, err := strconv.ParseInt(string(val), 10, 64)
				if err != nil {
					return fmt.Errorf("corrupt user index entry: %w", err)
				}
				groupIDs = append(groupIDs, id)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	groups := make([]*models.Group, 0, len(groupIDs))
	for _, id := range groupIDs {
		group, err := s.Group(ctx, id)
		if errors.Is(err, ErrGroupNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		count, err := s.MemberCount(ctx, id)
		if err != nil {
			return nil, err
		}
		group.MemberCount = count
		groups = append(groups, group)
	}
	return groups, nil
}

// JoinGroupByCode adds the user to the group identified by the invite code.
// Returns ErrInviteNotFound for unknown codes and ErrAlreadyMember when the
// user already belongs to the group.
func (s *Store) JoinGroupByCode(ctx context.Context, code string, userID int64) (*models.Group, error) {
	var groupID int64

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(inviteKeyPrefix + code))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrInviteNotFound
		}
		if err != nil {
			return fmt.Errorf("get invite: %w", err)
		}
		return item.Value(func(val []byte) error {
			groupID, err = strconv.ParseInt(string(val), 10, 64)
			if err != nil {
				return fmt.Errorf("corrupt invite entry: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	member, err := s.IsMember(ctx, userID, groupID)
	if err != nil {
		return nil, err
	}
	if member {
		return nil, ErrAlreadyMember
	}

	if err := s.addMember(groupID, userID); err != nil {
		return nil, err
	}

	group, err := s.Group(ctx, groupID)
	if err != nil {
		return nil, err
	}
	count, err := s.MemberCount(ctx, groupID)
	if err != nil {
		return nil, err
	}
	group.MemberCount = count
	return group, nil
}

// IsMember reports whether the user currently belongs to the group. This is
// the membership oracle the real-time layer consults on every join and send;
// results are never cached there.
func (s *Store) IsMember(ctx context.Context, userID, groupID int64) (bool, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(memberKey(groupID, userID))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get membership: %w", err)
	}
	return true, nil
}

// RemoveMember deletes a user's membership in a group. The live room set is
// unaffected; the next membership re-check simply starts failing.
func (s *Store) RemoveMember(ctx context.Context, userID, groupID int64) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(memberKey(groupID, userID)); err != nil {
			return fmt.Errorf("delete membership: %w", err)
		}
		if err := txn.Delete(userGroupsKey(userID, groupID)); err != nil {
			return fmt.Errorf("delete user index: %w", err)
		}
		return nil
	})
}

// MemberCount counts members of a group by scanning the membership prefix.
func (s *Store) MemberCount(ctx context.Context, groupID int64) (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(fmt.Sprintf("%s%d:", memberKeyPrefix, groupID))
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) addMember(groupID, userID int64) error {
	membership := models.Membership{GroupID: groupID, UserID: userID, JoinedAt: time.Now().UTC()}
	data, err := json.Marshal(&membership)
	if err != nil {
		return fmt.Errorf("marshal membership: %w", err)
	}

	gid := strconv.FormatInt(groupID, 10)
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(memberKey(groupID, userID), data); err != nil {
			return fmt.Errorf("set membership: %w", err)
		}
		if err := txn.Set(userGroupsKey(userID, groupID), []byte(gid)); err != nil {
			return fmt.Errorf("set user index: %w", err)
		}
		return nil
	})
}

// generateInviteCode produces a short random code, the kind members read out
// loud to invite classmates.
func generateInviteCode() (string, error) {
	// 256 is not a multiple of the alphabet size, so bytes past the
	// largest full multiple are rejected to keep the draw uniform.
	const limit = 256 - 256%len(inviteCodeAlphabet)

	code := make([]byte, 0, inviteCodeLength)
	buf := make([]byte, inviteCodeLength)
	for len(code) < inviteCodeLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to generate invite code: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			code = append(code, inviteCodeAlphabet[int(b)%len(inviteCodeAlphabet)])
			if len(code) == inviteCodeLength {
				break
			}
		}
	}
	return string(code), nil
}
