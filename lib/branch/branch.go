// Copyright 2026 The TimeLoop Authors
// SPDX-License-Identifier: Apache-2.0

package branch

import (
	"context"
	"encoding/json"
	"time"

	"github.com/timeloop-rec/timeloop/lib/ids"
	"github.com/timeloop-rec/timeloop/lib/store"
)

// MergePolicy selects how Merge combines a branch's events into a
// target session.
type MergePolicy int

const (
	// MergeAppendAll copies every branch event (including the portion
	// shared with the parent, if any) onto the target, renumbering
	// sequences and recording the first copied event's original
	// sequence in a SessionMeta{Tag: "merged_from"} marker inserted
	// immediately before the copied events.
	MergeAppendAll MergePolicy = iota
	// MergeAppendSinceBranchPoint copies only the branch's own events —
	// numbered independently from the parent, starting at 1 — omitting
	// the inherited parent prefix. Renumbers sequences and records
	// provenance with the same SessionMeta{Tag: "merged_from"} marker
	// as MergeAppendAll.
	MergeAppendSinceBranchPoint
	// MergeDryRun reports what would be copied without mutating the
	// target.
	MergeDryRun
)

// Manager creates, lists, merges, and deletes branches, and enforces
// the DAG-level rules (branch-point validity, acyclicity,
// delete-only-when-unreferenced) that lib/store's raw branch record
// storage does not know about.
type Manager struct {
	store *store.Store
}

// New returns a Manager backed by s.
func New(s *store.Store) *Manager { return &Manager{store: s} }

// Branch creates a new branch of parentSessionID at atSequence (or the
// parent's current last_sequence, if nil), and creates the branch's
// own (initially empty) Session record.
func (m *Manager) Branch(parentSessionID ids.SessionID, atSequence *uint64, name string) (store.Branch, error) {
	parent, err := m.store.GetSession(parentSessionID)
	if err != nil {
		return store.Branch{}, err
	}

	point := parent.LastSequence
	if atSequence != nil {
		point = *atSequence
	}
	if point < 1 || point > parent.LastSequence {
		return store.Branch{}, &store.Error{Kind: store.InvalidBranchPoint, Op: "branch", Key: parentSessionID.String()}
	}

	cyclic, err := m.ancestryHasCycle(parentSessionID)
	if err != nil {
		return store.Branch{}, err
	}
	if cyclic {
		return store.Branch{}, &store.Error{Kind: store.CyclicBranch, Op: "branch", Key: parentSessionID.String()}
	}

	branchID := ids.NewBranchID()
	now := m.store.Now()

	record := store.Branch{
		ID:                  branchID,
		ParentSessionID:     parentSessionID,
		BranchPointSequence: point,
		CreatedAt:           now,
		Name:                name,
	}

	branchSession := store.Session{
		ID:        branchID.AsSessionID(),
		Name:      name,
		CreatedAt: now,
		State:     store.SessionOpen,
		Parent: &store.SessionParent{
			SessionID:           parentSessionID,
			BranchPointSequence: point,
		},
	}

	if err := m.store.PutSession(branchSession); err != nil {
		return store.Branch{}, err
	}
	if err := m.store.PutBranch(record); err != nil {
		return store.Branch{}, err
	}
	return record, nil
}

// ancestryHasCycle walks start's parent chain, returning true if it
// ever revisits an id — which should be structurally impossible given
// that Branch never lets a parent chain be mutated after creation, but
// is checked explicitly per the "cyclic parent/branch references"
// design note.
func (m *Manager) ancestryHasCycle(start ids.SessionID) (bool, error) {
	visited := map[ids.SessionID]bool{start: true}
	current := start
	for {
		session, err := m.store.GetSession(current)
		if err != nil {
			return false, err
		}
		if session.Parent == nil {
			return false, nil
		}
		next := session.Parent.SessionID
		if visited[next] {
			return true, nil
		}
		visited[next] = true
		current = next
	}
}

// ListBranches returns every branch of parentSessionID.
func (m *Manager) ListBranches(parentSessionID ids.SessionID) ([]store.Branch, error) {
	return m.store.ListBranches(parentSessionID)
}

// MergeResult reports what Merge did (or, for MergeDryRun, would do).
type MergeResult struct {
	EventsCopied int
	FirstTarget  uint64
	LastTarget   uint64
}

// Merge copies sourceBranchID's events onto targetSessionID under
// policy. append_since_branch_point copies only the branch's own
// events (numbered independently from the parent, starting at 1),
// excluding the inherited parent prefix; append_all copies every
// event the branch's read view produces (parent prefix included).
// Both policies
// assign fresh target sequence numbers and record provenance with a
// SessionMeta{Tag: "merged_from"} marker immediately before the copied
// run. dry_run computes the result without writing, and without a
// marker.
func (m *Manager) Merge(sourceBranchID ids.BranchID, targetSessionID ids.SessionID, policy MergePolicy) (MergeResult, error) {
	if _, err := m.store.GetBranch(sourceBranchID); err != nil {
		return MergeResult{}, err
	}
	target, err := m.store.GetSession(targetSessionID)
	if err != nil {
		return MergeResult{}, err
	}

	var toCopy []store.Event
	sourceSessionID := sourceBranchID.AsSessionID()

	switch policy {
	case MergeAppendSinceBranchPoint:
		// The branch's own events are numbered independently starting
		// at 1 (never continuing the parent's numbering), so "since
		// the branch point" means the branch's entire own segment,
		// excluding the inherited parent prefix that ReadEvents would
		// otherwise splice in. ReadOwnEvents never follows Parent, so
		// an unbounded Range here yields exactly that segment.
		for event, err := range m.store.ReadOwnEvents(context.Background(), sourceSessionID, store.Range{}) {
			if err != nil {
				return MergeResult{}, err
			}
			toCopy = append(toCopy, event)
		}
	case MergeAppendAll, MergeDryRun:
		for event, err := range m.store.ReadEvents(context.Background(), sourceSessionID, store.Range{}) {
			if err != nil {
				return MergeResult{}, err
			}
			toCopy = append(toCopy, event)
		}
	}

	result := MergeResult{EventsCopied: len(toCopy)}
	if len(toCopy) == 0 {
		return result, nil
	}
	result.FirstTarget = target.LastSequence + 1

	if policy == MergeDryRun {
		result.LastTarget = target.LastSequence + 1 + uint64(len(toCopy))
		return result, nil
	}

	markerPayload, err := json.Marshal(store.MergedFromPayload{
		SourceBranchID:   sourceBranchID,
		OriginalSequence: toCopy[0].Sequence,
	})
	if err != nil {
		return MergeResult{}, err
	}
	marker := store.SessionMeta{Tag: "merged_from", Payload: markerPayload}
	if _, err := m.store.AppendEvent(targetSessionID, store.KindSessionMeta, time.Time{}, marker); err != nil {
		return MergeResult{}, err
	}

	for _, event := range toCopy {
		payload, err := m.store.DecodePayload(event)
		if err != nil {
			return MergeResult{}, err
		}
		appended, err := m.store.AppendEvent(targetSessionID, event.Kind, event.Timestamp, dereferenced(payload))
		if err != nil {
			return MergeResult{}, err
		}
		result.LastTarget = appended.Sequence
	}
	return result, nil
}

// dereferenced unwraps the pointer DecodePayload returns back into a
// plain value, so AppendEvent's re-encode round-trips identically to
// how a caller building the event fresh would have passed it.
func dereferenced(payload any) any {
	switch v := payload.(type) {
	case *store.KeyPress:
		return *v
	case *store.Command:
		return *v
	case *store.FileChange:
		return *v
	case *store.TerminalState:
		return *v
	case *store.SessionMeta:
		return *v
	default:
		return payload
	}
}

// Delete removes a branch record, but only if no other branch lists it
// as parent.
func (m *Manager) Delete(branchID ids.BranchID) error {
	if _, err := m.store.GetBranch(branchID); err != nil {
		return err
	}

	branchSessionID := branchID.AsSessionID()
	dependents, err := m.store.ListBranches(ids.SessionID{})
	if err != nil {
		return err
	}
	for _, other := range dependents {
		if other.ID.Equal(branchID) {
			continue
		}
		if other.ParentSessionID.Equal(branchSessionID) {
			return &store.Error{Kind: store.BranchInUse, Op: "delete_branch", Key: branchID.String()}
		}
	}

	return m.store.DeleteBranch(branchID)
}
