// Copyright 2026 The TimeLoop Authors
// SPDX-License-Identifier: Apache-2.0

package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/timeloop-rec/timeloop/lib/codec"
	"github.com/timeloop-rec/timeloop/lib/ids"
	"github.com/timeloop-rec/timeloop/lib/store"
)

func openTestStore(t *testing.T, opts store.Options) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "store"), opts)
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

func collectEvents(t *testing.T, s *store.Store, id ids.SessionID, r store.Range) []store.Event {
	t.Helper()
	var events []store.Event
	for event, err := range s.ReadEvents(context.Background(), id, r) {
		if err != nil {
			t.Fatalf("ReadEvents: %v", err)
		}
		events = append(events, event)
	}
	return events
}

func TestPutSessionAndGetSessionRoundTrip(t *testing.T) {
	s := openTestStore(t, store.Options{})
	session := mustOpenSession(t, s, "alpha")

	got, err := s.GetSession(session.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Name != "alpha" {
		t.Errorf("Name = %q, want alpha", got.Name)
	}
	if got.State != store.SessionOpen {
		t.Errorf("State = %v, want SessionOpen", got.State)
	}
}

func TestGetSessionMissingReturnsSessionNotFound(t *testing.T) {
	s := openTestStore(t, store.Options{})
	_, err := s.GetSession(ids.NewSessionID())
	if !store.IsSessionNotFound(err) {
		t.Fatalf("GetSession error = %v, want SessionNotFound", err)
	}
}

func TestAppendEventAssignsMonotonicSequence(t *testing.T) {
	s := openTestStore(t, store.Options{})
	session := mustOpenSession(t, s, "seq")

	for i := 0; i < 3; i++ {
		event, err := s.AppendEvent(session.ID, store.KindKeyPress, time.Time{}, store.KeyPress{Code: "a"})
		if err != nil {
			t.Fatalf("AppendEvent[%d]: %v", i, err)
		}
		if event.Sequence != uint64(i+1) {
			t.Errorf("AppendEvent[%d].Sequence = %d, want %d", i, event.Sequence, i+1)
		}
	}

	got, err := s.GetSession(session.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.LastSequence != 3 || got.EventCount != 3 {
		t.Errorf("session after 3 appends = %+v, want LastSequence=3 EventCount=3", got)
	}
}

func TestAppendEventOnClosedSessionFails(t *testing.T) {
	s := openTestStore(t, store.Options{})
	session := mustOpenSession(t, s, "closes")
	session.State = store.SessionClosed
	if err := s.PutSession(session); err != nil {
		t.Fatalf("PutSession: %v", err)
	}

	_, err := s.AppendEvent(session.ID, store.KindKeyPress, time.Time{}, store.KeyPress{Code: "x"})
	if !store.IsSessionClosed(err) {
		t.Fatalf("AppendEvent on closed session error = %v, want SessionClosed", err)
	}
}

func TestReadEventsOrderedBySequence(t *testing.T) {
	s := openTestStore(t, store.Options{})
	session := mustOpenSession(t, s, "ordered")

	for i := 0; i < 5; i++ {
		if _, err := s.AppendEvent(session.ID, store.KindKeyPress, time.Time{}, store.KeyPress{Code: string(rune('a' + i))}); err != nil {
			t.Fatalf("AppendEvent[%d]: %v", i, err)
		}
	}

	events := collectEvents(t, s, session.ID, store.Range{})
	if len(events) != 5 {
		t.Fatalf("got %d events, want 5", len(events))
	}
	for i, event := range events {
		if event.Sequence != uint64(i+1) {
			t.Errorf("events[%d].Sequence = %d, want %d", i, event.Sequence, i+1)
		}
	}
}

func TestReadEventsRangeBySequence(t *testing.T) {
	s := openTestStore(t, store.Options{})
	session := mustOpenSession(t, s, "ranged")

	for i := 0; i < 5; i++ {
		if _, err := s.AppendEvent(session.ID, store.KindKeyPress, time.Time{}, store.KeyPress{Code: "a"}); err != nil {
			t.Fatalf("AppendEvent[%d]: %v", i, err)
		}
	}

	from := uint64(2)
	to := uint64(4)
	events := collectEvents(t, s, session.ID, store.Range{FromSequence: &from, ToSequence: &to})
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	if events[0].Sequence != 2 || events[len(events)-1].Sequence != 4 {
		t.Errorf("range = [%d, %d], want [2, 4]", events[0].Sequence, events[len(events)-1].Sequence)
	}
}

func TestBranchReadViewIncludesParentPrefix(t *testing.T) {
	s := openTestStore(t, store.Options{})
	parent := mustOpenSession(t, s, "parent")

	for i := 0; i < 3; i++ {
		if _, err := s.AppendEvent(parent.ID, store.KindKeyPress, time.Time{}, store.KeyPress{Code: "p"}); err != nil {
			t.Fatalf("AppendEvent parent[%d]: %v", i, err)
		}
	}

	branchID := ids.NewBranchID()
	branchSession := store.Session{
		ID:        branchID.AsSessionID(),
		Name:      "branch",
		CreatedAt: time.Now().UTC(),
		State:     store.SessionOpen,
		Parent: &store.SessionParent{
			SessionID:           parent.ID,
			BranchPointSequence: 2,
		},
	}
	if err := s.PutSession(branchSession); err != nil {
		t.Fatalf("PutSession branch: %v", err)
	}
	if _, err := s.AppendEvent(branchSession.ID, store.KindKeyPress, time.Time{}, store.KeyPress{Code: "b"}); err != nil {
		t.Fatalf("AppendEvent branch: %v", err)
	}

	events := collectEvents(t, s, branchSession.ID, store.Range{})
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3 (2 inherited + 1 own)", len(events))
	}
	if events[0].SessionID != parent.ID || events[1].SessionID != parent.ID {
		t.Errorf("first two events should belong to the parent session")
	}
	if events[2].SessionID != branchSession.ID {
		t.Errorf("third event should belong to the branch's own session")
	}
}

func TestAppendOnlyRejectsDelete(t *testing.T) {
	s := openTestStore(t, store.Options{AppendOnly: true})
	session := mustOpenSession(t, s, "append-only")
	event, err := s.AppendEvent(session.ID, store.KindKeyPress, time.Time{}, store.KeyPress{Code: "a"})
	if err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}

	err = s.DeleteEvent(session.ID, event.Sequence)
	if !store.IsAppendOnlyViolation(err) {
		t.Fatalf("DeleteEvent on append-only store error = %v, want AppendOnlyViolation", err)
	}
}

func TestDeleteEventAllowedWhenNotAppendOnly(t *testing.T) {
	s := openTestStore(t, store.Options{})
	session := mustOpenSession(t, s, "mutable")
	event, err := s.AppendEvent(session.ID, store.KindKeyPress, time.Time{}, store.KeyPress{Code: "a"})
	if err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}
	if err := s.DeleteEvent(session.ID, event.Sequence); err != nil {
		t.Fatalf("DeleteEvent: %v", err)
	}
}

func TestPayloadRoundTripsThroughBothFormats(t *testing.T) {
	for _, format := range []codec.Format{codec.CompactBinary, codec.TextJSON} {
		s := openTestStore(t, store.Options{Format: format})
		session := mustOpenSession(t, s, "codec")

		want := store.Command{Line: "ls -la", Output: "total 0", ExitCode: 0, Duration: 2 * time.Second}
		event, err := s.AppendEvent(session.ID, store.KindCommand, time.Time{}, want)
		if err != nil {
			t.Fatalf("[%s] AppendEvent: %v", format, err)
		}

		decoded, err := s.DecodePayload(event)
		if err != nil {
			t.Fatalf("[%s] DecodePayload: %v", format, err)
		}
		got, ok := decoded.(*store.Command)
		if !ok {
			t.Fatalf("[%s] DecodePayload returned %T, want *store.Command", format, decoded)
		}
		if *got != want {
			t.Errorf("[%s] round trip = %+v, want %+v", format, *got, want)
		}
	}
}

func TestCompactCoalescesKeyPressRuns(t *testing.T) {
	s := openTestStore(t, store.Options{Compaction: store.CompactionPolicy{Kind: store.CompactionEventThreshold, Count: 1}})
	session := mustOpenSession(t, s, "compactable")

	for i := 0; i < 4; i++ {
		if _, err := s.AppendEvent(session.ID, store.KindKeyPress, time.Time{}, store.KeyPress{Code: "x"}); err != nil {
			t.Fatalf("AppendEvent[%d]: %v", i, err)
		}
	}
	if _, err := s.AppendEvent(session.ID, store.KindCommand, time.Time{}, store.Command{Line: "echo hi"}); err != nil {
		t.Fatalf("AppendEvent command: %v", err)
	}

	if err := s.Compact(&session.ID); err != nil {
		t.Fatalf("Compact: %v", err)
	}

	events := collectEvents(t, s, session.ID, store.Range{})
	if len(events) != 2 {
		t.Fatalf("got %d events after compaction, want 2 (merged run + command)", len(events))
	}
	payload, err := s.DecodePayload(events[0])
	if err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	merged, ok := payload.(*store.KeyPress)
	if !ok {
		t.Fatalf("DecodePayload returned %T, want *store.KeyPress", payload)
	}
	if merged.RunCount != 4 {
		t.Errorf("merged.RunCount = %d, want 4", merged.RunCount)
	}
	if events[0].Sequence != 1 || events[1].Sequence != 2 {
		t.Errorf("compacted sequences = [%d, %d], want [1, 2]", events[0].Sequence, events[1].Sequence)
	}
}

func TestBackupRestoreRoundTrip(t *testing.T) {
	src := openTestStore(t, store.Options{})
	session := mustOpenSession(t, src, "backup-me")
	if _, err := src.AppendEvent(session.ID, store.KindKeyPress, time.Time{}, store.KeyPress{Code: "a"}); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}

	backupPath := filepath.Join(t.TempDir(), "backup.tlbk")
	if err := src.Backup(backupPath, nil); err != nil {
		t.Fatalf("Backup: %v", err)
	}

	dst := openTestStore(t, store.Options{})
	if err := dst.Restore(backupPath); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	restored, err := dst.GetSession(session.ID)
	if err != nil {
		t.Fatalf("GetSession after restore: %v", err)
	}
	if restored.Name != "backup-me" {
		t.Errorf("restored session Name = %q, want backup-me", restored.Name)
	}

	events := collectEvents(t, dst, session.ID, store.Range{})
	if len(events) != 1 {
		t.Fatalf("got %d restored events, want 1", len(events))
	}
}

func TestRestoreRemapsCollidingSessionID(t *testing.T) {
	src := openTestStore(t, store.Options{})
	session := mustOpenSession(t, src, "collides")
	if _, err := src.AppendEvent(session.ID, store.KindKeyPress, time.Time{}, store.KeyPress{Code: "a"}); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}
	backupPath := filepath.Join(t.TempDir(), "backup.tlbk")
	if err := src.Backup(backupPath, nil); err != nil {
		t.Fatalf("Backup: %v", err)
	}

	dst := openTestStore(t, store.Options{})
	colliding := store.Session{ID: session.ID, Name: "already-here", CreatedAt: time.Now().UTC(), State: store.SessionOpen}
	if err := dst.PutSession(colliding); err != nil {
		t.Fatalf("PutSession: %v", err)
	}

	if err := dst.Restore(backupPath); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	sessions, err := dst.ListSessions()
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("got %d sessions after colliding restore, want 2", len(sessions))
	}
}

func TestPendingWritesReflectsInFlightWrites(t *testing.T) {
	s := openTestStore(t, store.Options{})
	if s.PendingWrites() != 0 {
		t.Fatalf("PendingWrites() = %d before any write, want 0", s.PendingWrites())
	}
	mustOpenSession(t, s, "counted")
	if s.PendingWrites() != 0 {
		t.Fatalf("PendingWrites() = %d after write completed, want 0", s.PendingWrites())
	}
}

func TestCompressedStoreRoundTrips(t *testing.T) {
	s := openTestStore(t, store.Options{Compression: store.CompressionZstd})
	session := mustOpenSession(t, s, "compressed")

	for i := 0; i < 20; i++ {
		if _, err := s.AppendEvent(session.ID, store.KindKeyPress, time.Time{}, store.KeyPress{Code: "x"}); err != nil {
			t.Fatalf("AppendEvent: %v", err)
		}
	}

	got, err := s.GetSession(session.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Name != "compressed" {
		t.Errorf("Name = %q, want %q", got.Name, "compressed")
	}

	events := collectEvents(t, s, session.ID, store.Range{})
	if len(events) != 20 {
		t.Fatalf("got %d events, want 20", len(events))
	}
}

func TestReopenWithMismatchedCompressionFails(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "store")
	s, err := store.Open(dir, store.Options{Compression: store.CompressionZstd})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	_, err = store.Open(dir, store.Options{})
	if !store.IsFormatMismatch(err) {
		t.Fatalf("reopen without --compress error = %v, want FormatMismatch", err)
	}
}
