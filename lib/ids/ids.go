// Copyright 2026 The TimeLoop Authors
// SPDX-License-Identifier: Apache-2.0

// Package ids provides the opaque 128-bit identifiers used throughout the
// event store: EventID, SessionID, and BranchID. Each is a distinct Go type
// wrapping a github.com/google/uuid.UUID so the compiler catches an event id
// passed where a session id belongs, mirroring the way distinct reference
// types (Agent, Machine, Service, ...) wrap a shared representation in
// entity-oriented codebases.
//
// All three types implement encoding.TextMarshaler / TextUnmarshaler, so the
// text_json codec renders them as canonical 36-character UUID strings, and
// String returns the same form for use as a key suffix in the KV backend.
package ids

import (
	"fmt"

	"github.com/google/uuid"
)

// SessionID identifies a recording session or, for a branch, the branch's
// own identity (a branch is itself a session for read purposes).
type SessionID struct{ id uuid.UUID }

// EventID identifies a single recorded event, unique within its session.
type EventID struct{ id uuid.UUID }

// BranchID identifies a branch record.
type BranchID struct{ id uuid.UUID }

// NewSessionID generates a fresh random session identifier.
func NewSessionID() SessionID { return SessionID{id: uuid.New()} }

// NewEventID generates a fresh random event identifier.
func NewEventID() EventID { return EventID{id: uuid.New()} }

// NewBranchID generates a fresh random branch identifier.
func NewBranchID() BranchID { return BranchID{id: uuid.New()} }

// ParseSessionID parses a canonical UUID string into a SessionID.
func ParseSessionID(raw string) (SessionID, error) {
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return SessionID{}, fmt.Errorf("ids: invalid session id %q: %w", raw, err)
	}
	return SessionID{id: parsed}, nil
}

// ParseEventID parses a canonical UUID string into an EventID.
func ParseEventID(raw string) (EventID, error) {
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return EventID{}, fmt.Errorf("ids: invalid event id %q: %w", raw, err)
	}
	return EventID{id: parsed}, nil
}

// ParseBranchID parses a canonical UUID string into a BranchID.
func ParseBranchID(raw string) (BranchID, error) {
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return BranchID{}, fmt.Errorf("ids: invalid branch id %q: %w", raw, err)
	}
	return BranchID{id: parsed}, nil
}

func (s SessionID) String() string { return s.id.String() }
func (e EventID) String() string   { return e.id.String() }
func (b BranchID) String() string  { return b.id.String() }

// IsZero reports whether the identifier is the unset zero value.
func (s SessionID) IsZero() bool { return s.id == uuid.Nil }
func (e EventID) IsZero() bool   { return e.id == uuid.Nil }
func (b BranchID) IsZero() bool  { return b.id == uuid.Nil }

func (s SessionID) MarshalText() ([]byte, error) { return []byte(s.id.String()), nil }
func (e EventID) MarshalText() ([]byte, error)   { return []byte(e.id.String()), nil }
func (b BranchID) MarshalText() ([]byte, error)  { return []byte(b.id.String()), nil }

func (s *SessionID) UnmarshalText(data []byte) error {
	parsed, err := ParseSessionID(string(data))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func (e *EventID) UnmarshalText(data []byte) error {
	parsed, err := ParseEventID(string(data))
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}

func (b *BranchID) UnmarshalText(data []byte) error {
	parsed, err := ParseBranchID(string(data))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// Equal reports whether two identifiers refer to the same session.
func (s SessionID) Equal(other SessionID) bool { return s.id == other.id }

// Equal reports whether two identifiers refer to the same event.
func (e EventID) Equal(other EventID) bool { return e.id == other.id }

// Equal reports whether two identifiers refer to the same branch.
func (b BranchID) Equal(other BranchID) bool { return b.id == other.id }

// AsSessionID reinterprets a BranchID as the SessionID of the branch's
// own event stream. A branch is itself a session for read/append
// purposes (spec: "a branch is itself a session for read purposes");
// rather than track two independent 128-bit identifiers per branch,
// the branch's session identity and its branch-pointer identity share
// the same underlying value.
func (b BranchID) AsSessionID() SessionID { return SessionID{id: b.id} }

// AsBranchID reinterprets a SessionID as a BranchID. Valid only for a
// SessionID that was originally produced by AsSessionID.
func (s SessionID) AsBranchID() BranchID { return BranchID{id: s.id} }
