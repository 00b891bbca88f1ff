// Copyright 2026 The TimeLoop Authors
// SPDX-License-Identifier: Apache-2.0

package session_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/timeloop-rec/timeloop/lib/session"
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

func TestOpenSessionThenClose(t *testing.T) {
	s := openTestStore(t)
	m := session.New(s)

	opened, err := m.OpenSession("demo")
	if err != nil {
		t.Fatalf("OpenSession: %v", err)
	}
	if opened.State != store.SessionOpen {
		t.Errorf("State = %v, want SessionOpen", opened.State)
	}

	if err := m.CloseSession(opened.ID); err != nil {
		t.Fatalf("CloseSession: %v", err)
	}

	closed, err := s.GetSession(opened.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if closed.State != store.SessionClosed {
		t.Errorf("State after close = %v, want SessionClosed", closed.State)
	}
	if closed.ClosedAt == nil {
		t.Error("ClosedAt should be set after close")
	}
}

func TestCloseSessionIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	m := session.New(s)
	opened, err := m.OpenSession("demo")
	if err != nil {
		t.Fatalf("OpenSession: %v", err)
	}
	if err := m.CloseSession(opened.ID); err != nil {
		t.Fatalf("CloseSession: %v", err)
	}
	if err := m.CloseSession(opened.ID); err != nil {
		t.Fatalf("second CloseSession should be a no-op, got: %v", err)
	}
}

func TestAppendThenSummary(t *testing.T) {
	s := openTestStore(t)
	m := session.New(s)
	opened, err := m.OpenSession("summarised")
	if err != nil {
		t.Fatalf("OpenSession: %v", err)
	}

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if _, err := m.AppendAt(opened.ID, store.KindKeyPress, base, store.KeyPress{Code: "a"}); err != nil {
		t.Fatalf("AppendAt: %v", err)
	}
	if _, err := m.AppendAt(opened.ID, store.KindCommand, base.Add(time.Second), store.Command{Line: "ls"}); err != nil {
		t.Fatalf("AppendAt: %v", err)
	}
	if _, err := m.AppendAt(opened.ID, store.KindFileChange, base.Add(2*time.Second), store.FileChange{Path: "a.txt", ChangeType: store.FileCreated}); err != nil {
		t.Fatalf("AppendAt: %v", err)
	}

	summary, err := m.Summary(opened.ID)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if summary.CommandCount != 1 {
		t.Errorf("CommandCount = %d, want 1", summary.CommandCount)
	}
	if summary.KeyPressCount != 1 {
		t.Errorf("KeyPressCount = %d, want 1", summary.KeyPressCount)
	}
	if summary.FileChangeCount != 1 {
		t.Errorf("FileChangeCount = %d, want 1", summary.FileChangeCount)
	}
	if summary.Duration != 2*time.Second {
		t.Errorf("Duration = %v, want 2s", summary.Duration)
	}
}

func TestListReturnsAllSessions(t *testing.T) {
	s := openTestStore(t)
	m := session.New(s)
	if _, err := m.OpenSession("one"); err != nil {
		t.Fatalf("OpenSession: %v", err)
	}
	if _, err := m.OpenSession("two"); err != nil {
		t.Fatalf("OpenSession: %v", err)
	}

	sessions, err := m.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("List returned %d sessions, want 2", len(sessions))
	}
}
