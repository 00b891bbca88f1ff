// Copyright 2026 The TimeLoop Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"time"

	"github.com/timeloop-rec/timeloop/lib/ids"
	"github.com/timeloop-rec/timeloop/lib/store"
)

// Manager is the session lifecycle manager: create/open/close, append
// event, summarise, list. It holds no state beyond a reference to the
// Store it manages.
type Manager struct {
	store *store.Store
}

// New returns a Manager backed by s.
func New(s *store.Store) *Manager { return &Manager{store: s} }

// OpenSession creates a new, empty, Open session named name and
// persists it.
func (m *Manager) OpenSession(name string) (store.Session, error) {
	session := store.Session{
		ID:        ids.NewSessionID(),
		Name:      name,
		CreatedAt: m.store.Now(),
		State:     store.SessionOpen,
	}
	if err := m.store.PutSession(session); err != nil {
		return store.Session{}, err
	}
	return session, nil
}

// CloseSession transitions id from Open to Closed. Calling it on an
// already-Closed session is a no-op success (idempotent).
func (m *Manager) CloseSession(id ids.SessionID) error {
	session, err := m.store.GetSession(id)
	if err != nil {
		return err
	}
	if session.State == store.SessionClosed {
		return nil
	}
	now := m.store.Now()
	session.ClosedAt = &now
	session.State = store.SessionClosed
	return m.store.PutSession(session)
}

// Append appends a new event of kind to session id, timestamped now.
// Fails with a store.SessionClosed error if the session has been
// closed.
func (m *Manager) Append(id ids.SessionID, kind store.EventKind, payload any) (store.Event, error) {
	return m.store.AppendEvent(id, kind, time.Time{}, payload)
}

// AppendAt is Append with an explicit timestamp, for ingress
// collaborators (the terminal, the watcher) that know the true event
// time rather than the time the manager happens to observe it.
func (m *Manager) AppendAt(id ids.SessionID, kind store.EventKind, timestamp time.Time, payload any) (store.Event, error) {
	return m.store.AppendEvent(id, kind, timestamp, payload)
}

// List returns every session, chronologically ordered.
func (m *Manager) List() ([]store.Session, error) {
	return m.store.ListSessions()
}

// Summary aggregates counts and timing for a session's event stream
// without materialising it: it walks the lazy ReadEvents sequence
// exactly once, accumulating counters as it goes.
type Summary struct {
	Duration        time.Duration
	CommandCount    int
	KeyPressCount   int
	FileChangeCount int
	FirstSequence   uint64
	LastSequence    uint64
}

// Summary computes id's Summary by a single lazy walk over its events
// (including, for a branch, the inherited parent prefix).
func (m *Manager) Summary(id ids.SessionID) (Summary, error) {
	var summary Summary
	var firstTime, lastTime time.Time
	seen := false

	for event, err := range m.store.ReadEvents(context.Background(), id, store.Range{}) {
		if err != nil {
			if store.IsCorruptFormat(err) {
				continue
			}
			return Summary{}, err
		}
		if !seen {
			firstTime = event.Timestamp
			summary.FirstSequence = event.Sequence
			seen = true
		}
		lastTime = event.Timestamp
		summary.LastSequence = event.Sequence

		switch event.Kind {
		case store.KindCommand:
			summary.CommandCount++
		case store.KindKeyPress:
			payload, err := m.store.DecodePayload(event)
			if err == nil {
				if kp, ok := payload.(*store.KeyPress); ok {
					n := kp.RunCount
					if n == 0 {
						n = 1
					}
					summary.KeyPressCount += n
					continue
				}
			}
			summary.KeyPressCount++
		case store.KindFileChange:
			summary.FileChangeCount++
		}
	}

	if seen {
		summary.Duration = lastTime.Sub(firstTime)
	}
	return summary, nil
}
