// Copyright 2026 The TimeLoop Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"fmt"

	"github.com/timeloop-rec/timeloop/lib/ids"
	"github.com/timeloop-rec/timeloop/lib/kv"
)

// Compact rewrites sessionID's event prefix that is eligible under the
// store's configured CompactionPolicy into an equivalent, smaller
// stream. If sessionID is nil, every session is considered. Compact
// bypasses the append-only restriction (it is the store's own
// mechanism for shrinking an append-only log, not an external
// mutation) and is idempotent: running it again immediately is a
// no-op.
func (s *Store) Compact(sessionID *ids.SessionID) error {
	var targets []ids.SessionID
	if sessionID != nil {
		targets = []ids.SessionID{*sessionID}
	} else {
		sessions, err := s.ListSessions()
		if err != nil {
			return err
		}
		for _, session := range sessions {
			targets = append(targets, session.ID)
		}
	}

	for _, id := range targets {
		if err := s.compactSession(id); err != nil {
			return err
		}
	}
	return nil
}

// compactSession rewrites id's eligible event prefix. Per the
// concurrency model, only the final atomic swap needs the exclusive
// writer guard: the read of the current events and the scratch-prefix
// rewrite proceed under the shared (read) guard, same as any other
// reader, and only the last step — deleting the live prefix and
// writing the rewritten events and updated session in one KV
// transaction — takes the exclusive guard.
func (s *Store) compactSession(id ids.SessionID) error {
	if s.compaction.Kind == CompactionNone {
		return nil
	}

	rewritten, err := s.prepareCompactionRewrite(id)
	if err != nil || rewritten == nil {
		return err
	}

	return s.applyCompactionRewrite(id, rewritten)
}

// prepareCompactionRewrite reads id's current events and computes its
// coalesced replacement under the shared guard, writing the candidate
// events to the scratch prefix so the exclusive phase only has to move
// already-encoded bytes. Returns a nil slice (and nil error) when there
// is nothing to compact.
func (s *Store) prepareCompactionRewrite(id ids.SessionID) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	original, err := s.collectOwnEventsLocked(id)
	if err != nil {
		return nil, err
	}
	if len(original) == 0 {
		return nil, nil
	}

	eligible := s.eligibleCount(original)
	if eligible == 0 {
		return nil, nil
	}

	coalesced, err := coalesceEvents(s.formatMarshaler(), original[:eligible])
	if err != nil {
		return nil, err
	}
	rewritten := append(coalesced, original[eligible:]...)

	if len(rewritten) == len(original) {
		// Nothing merged: either already compacted, or this policy's
		// eligible prefix contained no coalescible runs. Idempotent no-op.
		return nil, nil
	}

	for i := range rewritten {
		rewritten[i].Sequence = uint64(i + 1)
	}

	scratchPuts := make([]kv.Entry, 0, len(rewritten))
	for _, event := range rewritten {
		key := compactScratchKey(id, event.Sequence)
		value, err := s.encodeEvent(key, event)
		if err != nil {
			return nil, err
		}
		scratchPuts = append(scratchPuts, kv.Entry{Key: key, Value: value})
	}
	if err := s.kv.PutBatch(scratchPuts); err != nil {
		return nil, &Error{Kind: IoError, Op: "compact", Key: id.String(), Err: fmt.Errorf("writing scratch prefix: %w", err)}
	}
	if err := s.kv.Flush(); err != nil {
		return nil, &Error{Kind: IoError, Op: "compact", Key: id.String(), Err: fmt.Errorf("flushing scratch prefix: %w", err)}
	}

	return rewritten, nil
}

// applyCompactionRewrite performs the brief exclusive-guard swap:
// delete id's live event prefix and replace it with rewritten (under
// its final, non-scratch keys) and id's updated session record, all in
// one KV transaction.
func (s *Store) applyCompactionRewrite(id ids.SessionID, rewritten []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.getSessionLocked(id)
	if err != nil {
		s.cleanupScratch(id)
		return err
	}

	finalPuts := make([]kv.Entry, 0, len(rewritten)+1)
	for _, event := range rewritten {
		key := eventKey(id, event.Sequence)
		value, err := s.encodeEvent(key, event)
		if err != nil {
			s.cleanupScratch(id)
			return err
		}
		finalPuts = append(finalPuts, kv.Entry{Key: key, Value: value})
	}
	session.LastSequence = uint64(len(rewritten))
	sessionValue, err := s.encodeSession(sessionKey(id), session)
	if err != nil {
		s.cleanupScratch(id)
		return err
	}
	finalPuts = append(finalPuts, kv.Entry{Key: sessionKey(id), Value: sessionValue})

	eventsPrefix := eventPrefix(id)
	deletes := []kv.KeyRange{{From: eventsPrefix, To: kv.PrefixUpperBound(eventsPrefix)}}
	if err := s.kv.ApplyBatch(finalPuts, deletes); err != nil {
		s.cleanupScratch(id)
		return &Error{Kind: IoError, Op: "compact", Key: id.String(), Err: fmt.Errorf("swapping compacted events into place: %w", err)}
	}

	s.cleanupScratch(id)
	return nil
}

// cleanupScratch deletes any leftover c/<session_id>/* keys. Called
// after a successful swap (the scratch keys have already been
// superseded) and on every error path, per the "scratch files ...
// unlinked on all error paths" resource rule.
func (s *Store) cleanupScratch(id ids.SessionID) {
	prefix := compactScratchPrefix(id)
	if err := s.kv.DeleteRange(prefix, kv.PrefixUpperBound(prefix)); err != nil {
		s.logger.Error("compact: failed to clean up scratch prefix", "session", id.String(), "error", err)
	}
}

// collectOwnEventsLocked returns sessionID's own events (never
// following Parent) in sequence order, fully materialized. Compaction
// needs random access to look ahead across runs, unlike ReadEvents'
// lazy scan.
func (s *Store) collectOwnEventsLocked(id ids.SessionID) ([]Event, error) {
	prefix := eventPrefix(id)
	upper := kv.PrefixUpperBound(prefix)

	var events []Event
	err := s.kv.Iterate(context.Background(), prefix, upper, func(key, value []byte) error {
		event, err := s.decodeEvent(key, value)
		if err != nil {
			return err
		}
		events = append(events, event)
		return nil
	})
	if err != nil {
		return nil, &Error{Kind: IoError, Op: "compact", Key: id.String(), Err: err}
	}
	return events, nil
}

// eligibleCount returns how many of events (a prefix, in sequence
// order) are eligible for coalescing under the store's compaction
// policy.
func (s *Store) eligibleCount(events []Event) int {
	switch s.compaction.Kind {
	case CompactionEventThreshold:
		if len(events) >= s.compaction.Count {
			return len(events)
		}
		return 0
	case CompactionSizeThreshold:
		var total int64
		for _, event := range events {
			total += int64(len(event.Payload))
		}
		if total >= s.compaction.Bytes {
			return len(events)
		}
		return 0
	case CompactionTimeWindow:
		cutoff := s.clock.Now().Add(-s.compaction.OlderThan)
		n := 0
		for n < len(events) {
			runEnd := n + 1
			if events[n].Kind == KindKeyPress {
				for runEnd < len(events) && events[runEnd].Kind == KindKeyPress {
					runEnd++
				}
			}
			if !events[n].Timestamp.Before(cutoff) {
				break
			}
			n = runEnd
		}
		return n
	default:
		return 0
	}
}

// coalesceEvents applies the compactor's merge rules to a contiguous
// prefix of events: adjacent TerminalState events collapse to the
// newest of the run; consecutive KeyPress events collapse to one
// run-merged event. Command, FileChange, and SessionMeta events are
// never coalesced.
func coalesceEvents(format formatMarshaler, events []Event) ([]Event, error) {
	out := make([]Event, 0, len(events))
	i := 0
	for i < len(events) {
		kind := events[i].Kind
		j := i + 1
		for j < len(events) && events[j].Kind == kind && (kind == KindTerminalState || kind == KindKeyPress) {
			j++
		}

		switch {
		case kind == KindTerminalState:
			out = append(out, events[j-1])
		case kind == KindKeyPress && j-i > 1:
			merged, err := mergeKeyPressRun(format, events[i:j])
			if err != nil {
				return nil, err
			}
			out = append(out, merged)
		default:
			out = append(out, events[i:j]...)
		}
		i = j
	}
	return out, nil
}

func mergeKeyPressRun(format formatMarshaler, run []Event) (Event, error) {
	firstPayload, err := DecodePayload(format, run[0])
	if err != nil {
		return Event{}, err
	}
	first, ok := firstPayload.(*KeyPress)
	if !ok {
		return Event{}, fmt.Errorf("store: compact: expected *KeyPress, got %T", firstPayload)
	}

	count := 0
	lastEnd := run[0].Timestamp
	for _, event := range run {
		decoded, err := DecodePayload(format, event)
		if err != nil {
			return Event{}, err
		}
		if keyPress, ok := decoded.(*KeyPress); ok {
			count += max(keyPress.RunCount, 1)
			lastEnd = event.Timestamp.Add(keyPress.RunDuration)
		}
	}

	merged := KeyPress{
		Code:        first.Code,
		Modifiers:   first.Modifiers,
		RunCount:    count,
		RunDuration: lastEnd.Sub(run[0].Timestamp),
	}
	payload, err := EncodePayload(format, KindKeyPress, merged)
	if err != nil {
		return Event{}, err
	}

	event := run[0]
	event.Payload = payload
	return event, nil
}
