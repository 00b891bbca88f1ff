// Copyright 2026 The TimeLoop Authors
// SPDX-License-Identifier: Apache-2.0

package store

import "github.com/timeloop-rec/timeloop/lib/ids"

// DeleteEvent removes a single event by sequence number. It exists for
// completeness of the append-only enforcement surface (spec §4.2.3,
// §8 property 8): in an append-only store this always fails with
// AppendOnlyViolation. AppendEvent itself never overwrites — every
// call assigns a fresh, previously-unused sequence — so DeleteEvent is
// the only path that can mutate an existing event key, and is the one
// this guard needs to cover.
func (s *Store) DeleteEvent(sessionID ids.SessionID, sequence uint64) error {
	if s.appendOnly {
		return &Error{Kind: AppendOnlyViolation, Op: "delete_event", Key: sessionID.String()}
	}

	s.pendingWrites.Add(1)
	defer s.pendingWrites.Add(-1)

	s.mu.Lock()
	defer s.mu.Unlock()

	key := eventKey(sessionID, sequence)
	if err := s.kv.Delete(key); err != nil {
		return &Error{Kind: IoError, Op: "delete_event", Key: string(key), Err: err}
	}
	return nil
}
