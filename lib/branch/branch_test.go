// Copyright 2026 The TimeLoop Authors
// SPDX-License-Identifier: Apache-2.0

package branch_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/timeloop-rec/timeloop/lib/branch"
	"github.com/timeloop-rec/timeloop/lib/ids"
	"github.com/timeloop-rec/timeloop/lib/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "store"), store.Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return s
}

func mustOpenSession(t *testing.T, s *store.Store, name string) store.Session {
	t.Helper()
	session := store.Session{
		ID:        ids.NewSessionID(),
		Name:      name,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
		State:     store.SessionOpen,
	}
	if err := s.PutSession(session); err != nil {
		t.Fatalf("PutSession: %v", err)
	}
	return session
}

func appendN(t *testing.T, s *store.Store, id ids.SessionID, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if _, err := s.AppendEvent(id, store.KindKeyPress, time.Time{}, store.KeyPress{Code: "x"}); err != nil {
			t.Fatalf("AppendEvent: %v", err)
		}
	}
}

func TestBranchAtCurrentSequence(t *testing.T) {
	s := openTestStore(t)
	m := branch.New(s)
	parent := mustOpenSession(t, s, "parent")
	appendN(t, s, parent.ID, 3)

	record, err := m.Branch(parent.ID, nil, "feature")
	if err != nil {
		t.Fatalf("Branch: %v", err)
	}
	if record.BranchPointSequence != 3 {
		t.Errorf("BranchPointSequence = %d, want 3", record.BranchPointSequence)
	}

	branchSession, err := s.GetSession(record.ID.AsSessionID())
	if err != nil {
		t.Fatalf("GetSession(branch): %v", err)
	}
	if branchSession.Parent == nil || branchSession.Parent.SessionID != parent.ID {
		t.Errorf("branch session Parent = %+v, want SessionID=%s", branchSession.Parent, parent.ID)
	}
}

func TestBranchRejectsOutOfRangeSequence(t *testing.T) {
	s := openTestStore(t)
	m := branch.New(s)
	parent := mustOpenSession(t, s, "parent")
	appendN(t, s, parent.ID, 2)

	bad := uint64(10)
	_, err := m.Branch(parent.ID, &bad, "bad")
	if !store.IsInvalidBranchPoint(err) {
		t.Fatalf("Branch with out-of-range sequence error = %v, want InvalidBranchPoint", err)
	}

	zero := uint64(0)
	_, err = m.Branch(parent.ID, &zero, "zero")
	if !store.IsInvalidBranchPoint(err) {
		t.Fatalf("Branch at sequence 0 error = %v, want InvalidBranchPoint", err)
	}
}

func TestListBranchesFiltersByParent(t *testing.T) {
	s := openTestStore(t)
	m := branch.New(s)
	parentA := mustOpenSession(t, s, "a")
	parentB := mustOpenSession(t, s, "b")
	appendN(t, s, parentA.ID, 1)
	appendN(t, s, parentB.ID, 1)

	if _, err := m.Branch(parentA.ID, nil, "a1"); err != nil {
		t.Fatalf("Branch: %v", err)
	}
	if _, err := m.Branch(parentA.ID, nil, "a2"); err != nil {
		t.Fatalf("Branch: %v", err)
	}
	if _, err := m.Branch(parentB.ID, nil, "b1"); err != nil {
		t.Fatalf("Branch: %v", err)
	}

	got, err := m.ListBranches(parentA.ID)
	if err != nil {
		t.Fatalf("ListBranches: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ListBranches(a) = %d branches, want 2", len(got))
	}
}

func TestMergeAppendSinceBranchPointCopiesOnlyNewEvents(t *testing.T) {
	s := openTestStore(t)
	m := branch.New(s)
	parent := mustOpenSession(t, s, "parent")
	appendN(t, s, parent.ID, 3)

	record, err := m.Branch(parent.ID, nil, "feature")
	if err != nil {
		t.Fatalf("Branch: %v", err)
	}
	appendN(t, s, record.ID.AsSessionID(), 2)

	target := mustOpenSession(t, s, "target")
	result, err := m.Merge(record.ID, target.ID, branch.MergeAppendSinceBranchPoint)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if result.EventsCopied != 2 {
		t.Fatalf("EventsCopied = %d, want 2", result.EventsCopied)
	}

	updated, err := s.GetSession(target.ID)
	if err != nil {
		t.Fatalf("GetSession(target): %v", err)
	}
	// append_since_branch_point renumbers and records provenance just
	// like append_all: 1 marker + 2 copied events.
	if updated.LastSequence != 3 {
		t.Errorf("target LastSequence = %d, want 3 (1 marker + 2 events)", updated.LastSequence)
	}
}

func TestMergeAppendAllInsertsProvenanceMarker(t *testing.T) {
	s := openTestStore(t)
	m := branch.New(s)
	parent := mustOpenSession(t, s, "parent")
	appendN(t, s, parent.ID, 2)

	record, err := m.Branch(parent.ID, nil, "feature")
	if err != nil {
		t.Fatalf("Branch: %v", err)
	}
	appendN(t, s, record.ID.AsSessionID(), 1)

	target := mustOpenSession(t, s, "target")
	result, err := m.Merge(record.ID, target.ID, branch.MergeAppendAll)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	// 2 inherited + 1 own = 3 events copied, plus 1 marker = 4 appended.
	if result.EventsCopied != 3 {
		t.Fatalf("EventsCopied = %d, want 3", result.EventsCopied)
	}

	updated, err := s.GetSession(target.ID)
	if err != nil {
		t.Fatalf("GetSession(target): %v", err)
	}
	if updated.LastSequence != 4 {
		t.Errorf("target LastSequence = %d, want 4 (1 marker + 3 events)", updated.LastSequence)
	}
}

func TestMergeDryRunDoesNotMutateTarget(t *testing.T) {
	s := openTestStore(t)
	m := branch.New(s)
	parent := mustOpenSession(t, s, "parent")
	appendN(t, s, parent.ID, 2)
	record, err := m.Branch(parent.ID, nil, "feature")
	if err != nil {
		t.Fatalf("Branch: %v", err)
	}

	target := mustOpenSession(t, s, "target")
	result, err := m.Merge(record.ID, target.ID, branch.MergeDryRun)
	if err != nil {
		t.Fatalf("Merge dry run: %v", err)
	}
	if result.EventsCopied != 2 {
		t.Fatalf("EventsCopied = %d, want 2", result.EventsCopied)
	}

	updated, err := s.GetSession(target.ID)
	if err != nil {
		t.Fatalf("GetSession(target): %v", err)
	}
	if updated.LastSequence != 0 {
		t.Errorf("dry run mutated target: LastSequence = %d, want 0", updated.LastSequence)
	}
}

func TestDeleteRejectsBranchWithDependents(t *testing.T) {
	s := openTestStore(t)
	m := branch.New(s)
	root := mustOpenSession(t, s, "root")
	appendN(t, s, root.ID, 1)

	first, err := m.Branch(root.ID, nil, "first")
	if err != nil {
		t.Fatalf("Branch: %v", err)
	}
	appendN(t, s, first.ID.AsSessionID(), 1)
	if _, err := m.Branch(first.ID.AsSessionID(), nil, "second"); err != nil {
		t.Fatalf("Branch (second): %v", err)
	}

	err = m.Delete(first.ID)
	if !store.IsBranchInUse(err) {
		t.Fatalf("Delete branch with dependent error = %v, want BranchInUse", err)
	}
}

func TestDeleteSucceedsWhenUnreferenced(t *testing.T) {
	s := openTestStore(t)
	m := branch.New(s)
	root := mustOpenSession(t, s, "root")
	appendN(t, s, root.ID, 1)

	leaf, err := m.Branch(root.ID, nil, "leaf")
	if err != nil {
		t.Fatalf("Branch: %v", err)
	}
	if err := m.Delete(leaf.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.GetBranch(leaf.ID); !store.IsBranchNotFound(err) {
		t.Fatalf("GetBranch after delete error = %v, want BranchNotFound", err)
	}
}
