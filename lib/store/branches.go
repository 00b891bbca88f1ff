// Copyright 2026 The TimeLoop Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"

	"github.com/timeloop-rec/timeloop/lib/codec"
	"github.com/timeloop-rec/timeloop/lib/ids"
	"github.com/timeloop-rec/timeloop/lib/kv"
)

// PutBranch creates or updates a branch pointer record. lib/branch is
// responsible for the DAG-level rules (cyclic-parent rejection,
// unreferenced-only delete); Store only persists the record.
func (s *Store) PutBranch(branch Branch) error {
	s.pendingWrites.Add(1)
	defer s.pendingWrites.Add(-1)

	s.mu.Lock()
	defer s.mu.Unlock()

	key := branchKey(branch.ID)
	data, err := codec.MarshalRecord(s.format, branch)
	if err != nil {
		return &Error{Kind: IoError, Op: "put_branch", Key: branch.ID.String(), Err: err}
	}
	value, err := s.sealValue(key, data)
	if err != nil {
		return err
	}
	if err := s.kv.Put(key, value); err != nil {
		return &Error{Kind: IoError, Op: "put_branch", Key: branch.ID.String(), Err: err}
	}
	return nil
}

// GetBranch returns the branch record for id.
func (s *Store) GetBranch(id ids.BranchID) (Branch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getBranchLocked(id)
}

func (s *Store) getBranchLocked(id ids.BranchID) (Branch, error) {
	key := branchKey(id)
	value, found, err := s.kv.Get(key)
	if err != nil {
		return Branch{}, &Error{Kind: IoError, Op: "get_branch", Key: id.String(), Err: err}
	}
	if !found {
		return Branch{}, &Error{Kind: BranchNotFound, Op: "get_branch", Key: id.String()}
	}
	plaintext, err := s.openValue(key, value)
	if err != nil {
		return Branch{}, err
	}
	var branch Branch
	if err := codec.UnmarshalRecord(s.format, plaintext, &branch); err != nil {
		return Branch{}, &Error{Kind: CorruptFormat, Op: "get_branch", Key: id.String(), Err: err}
	}
	return branch, nil
}

// ListBranches returns every branch record whose ParentSessionID
// equals parent, if parent is non-zero, or every branch record if
// parent is the zero SessionID.
func (s *Store) ListBranches(parent ids.SessionID) ([]Branch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listBranchesLocked(parent)
}

func (s *Store) listBranchesLocked(parent ids.SessionID) ([]Branch, error) {
	prefix := branchPrefix()
	upper := kv.PrefixUpperBound(prefix)

	var result []Branch
	err := s.kv.Iterate(context.Background(), prefix, upper, func(key, value []byte) error {
		plaintext, err := s.openValue(key, value)
		if err != nil {
			return err
		}
		var branch Branch
		if err := codec.UnmarshalRecord(s.format, plaintext, &branch); err != nil {
			return &Error{Kind: CorruptFormat, Op: "list_branches", Key: string(key), Err: err}
		}
		if parent.IsZero() || branch.ParentSessionID.Equal(parent) {
			result = append(result, branch)
		}
		return nil
	})
	if err != nil {
		return nil, &Error{Kind: IoError, Op: "list_branches", Err: err}
	}
	return result, nil
}

// DeleteBranch removes a branch record unconditionally. lib/branch
// enforces the "only when unreferenced" rule before calling this.
func (s *Store) DeleteBranch(id ids.BranchID) error {
	s.pendingWrites.Add(1)
	defer s.pendingWrites.Add(-1)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.kv.Delete(branchKey(id)); err != nil {
		return &Error{Kind: IoError, Op: "delete_branch", Key: id.String(), Err: err}
	}
	return nil
}
