// Copyright 2026 The TimeLoop Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/timeloop-rec/timeloop/lib/ids"
)

// SessionState is the lifecycle state of a Session.
type SessionState int

const (
	SessionOpen SessionState = iota
	SessionClosed
)

func (s SessionState) String() string {
	switch s {
	case SessionOpen:
		return "open"
	case SessionClosed:
		return "closed"
	default:
		return fmt.Sprintf("SessionState(%d)", int(s))
	}
}

func (s SessionState) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }

func (s *SessionState) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	switch name {
	case "open":
		*s = SessionOpen
	case "closed":
		*s = SessionClosed
	default:
		return fmt.Errorf("store: unknown session state %q", name)
	}
	return nil
}

// SessionParent records that a Session is a branch: it shares its
// parent's history up to BranchPointSequence.
type SessionParent struct {
	SessionID           ids.SessionID `json:"session_id"`
	BranchPointSequence uint64        `json:"branch_point_sequence"`
}

// Session is a recording: the entity that owns a totally-ordered
// stream of events. A branch is represented as a Session with a
// non-nil Parent.
type Session struct {
	ID           ids.SessionID   `json:"id"`
	Name         string          `json:"name"`
	CreatedAt    time.Time       `json:"created_at"`
	ClosedAt     *time.Time      `json:"closed_at,omitempty"`
	Parent       *SessionParent  `json:"parent,omitempty"`
	EventCount   uint64          `json:"event_count"`
	LastSequence uint64          `json:"last_sequence"`
	State        SessionState    `json:"state"`
}

// Branch is a pointer entity recording that BranchID's session history
// forks from ParentSessionID at BranchPointSequence. The branch's own
// events are stored as an ordinary Session keyed by an id equal to
// BranchID's session identity; Branch itself carries only the pointer
// metadata that lib/branch needs to enumerate and validate branches.
type Branch struct {
	ID                  ids.BranchID  `json:"id"`
	ParentSessionID     ids.SessionID `json:"parent_session_id"`
	BranchPointSequence uint64        `json:"branch_point_sequence"`
	CreatedAt           time.Time     `json:"created_at"`
	Name                string        `json:"name"`
}

// EventKind discriminates the variant carried in an Event's Payload.
type EventKind string

const (
	KindKeyPress      EventKind = "key_press"
	KindCommand       EventKind = "command"
	KindFileChange    EventKind = "file_change"
	KindTerminalState EventKind = "terminal_state"
	KindSessionMeta   EventKind = "session_meta"
)

// Event is the atomic recorded fact: one entry in a session's
// totally-ordered log. Payload holds the kind-specific fields encoded
// in the store's configured format; use DecodePayload to recover a
// typed value and one of KeyPress/Command/FileChange/TerminalState/
// SessionMeta to build one.
type Event struct {
	ID        ids.EventID   `json:"id"`
	SessionID ids.SessionID `json:"session_id"`
	Timestamp time.Time     `json:"timestamp"`
	Sequence  uint64        `json:"sequence"`
	Kind      EventKind     `json:"kind"`
	Payload   []byte        `json:"payload"`
}

// KeyPress is the payload of a KindKeyPress event: a single terminal
// keystroke, or (after compaction run-merges a sequence of them) a
// run of keystrokes collapsed into one event.
type KeyPress struct {
	Code      string   `json:"code"`
	Modifiers []string `json:"modifiers,omitempty"`

	// RunCount is the number of original keystrokes this event
	// represents. Zero and one both mean "a single, unmerged
	// keystroke"; compaction sets it when it run-merges consecutive
	// KeyPress events.
	RunCount int `json:"run_count,omitempty"`

	// RunDuration is the span from the first to the last keystroke in
	// the run. Zero for an unmerged keystroke.
	RunDuration time.Duration `json:"run_duration,omitempty"`
}

// Command is the payload of a KindCommand event: a completed shell
// invocation and its result.
type Command struct {
	Line     string        `json:"line"`
	Output   string        `json:"output"`
	ExitCode int           `json:"exit_code"`
	Duration time.Duration `json:"duration"`
}

// FileChangeType discriminates the kind of filesystem mutation a
// FileChange event records.
type FileChangeType string

const (
	FileCreated  FileChangeType = "created"
	FileModified FileChangeType = "modified"
	FileDeleted  FileChangeType = "deleted"
	FileRenamed  FileChangeType = "renamed"
)

// FileChange is the payload of a KindFileChange event, produced by the
// (out-of-scope) filesystem watcher collaborator.
type FileChange struct {
	Path         string         `json:"path"`
	ChangeType   FileChangeType `json:"change_type"`
	RenamedFrom  string         `json:"renamed_from,omitempty"`
	ContentHash  string         `json:"content_hash,omitempty"`
}

// TerminalState is the payload of a KindTerminalState event: a
// point-in-time snapshot of cursor position and terminal dimensions.
type TerminalState struct {
	CursorRow int `json:"cursor_row"`
	CursorCol int `json:"cursor_col"`
	Cols      int `json:"cols"`
	Rows      int `json:"rows"`
}

// SessionMeta is the payload of a KindSessionMeta event: a free-form
// tagged annotation. The store uses tag "merged_from" internally to
// record provenance when lib/branch's Merge renumbers sequences; other
// tags are for callers.
type SessionMeta struct {
	Tag     string          `json:"tag"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// MergedFromPayload is the Payload of a SessionMeta{Tag: "merged_from"}
// marker: it records the original (source-branch) sequence number of
// the event immediately following the marker, so provenance survives
// merge's renumbering.
type MergedFromPayload struct {
	SourceBranchID  ids.BranchID `json:"source_branch_id"`
	OriginalSequence uint64      `json:"original_sequence"`
}

// EncodePayload marshals a kind-specific payload value with the given
// format. The caller must pass a value matching kind (e.g. KeyPress
// for KindKeyPress); mismatches are not detected here and will fail to
// round-trip on decode.
func EncodePayload(format formatMarshaler, kind EventKind, payload any) ([]byte, error) {
	data, err := format.marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("store: encoding %s payload: %w", kind, err)
	}
	return data, nil
}

// DecodePayload decodes an Event's Payload into a value appropriate
// for its Kind, returning one of *KeyPress, *Command, *FileChange,
// *TerminalState, or *SessionMeta as an any. Returns a CorruptFormat
// error if the kind is unrecognised or the payload does not decode;
// fields absent from the payload are not checked and are left at their
// zero values.
func DecodePayload(format formatMarshaler, event Event) (any, error) {
	switch event.Kind {
	case KindKeyPress:
		var v KeyPress
		if err := decodeInto(format, event, &v); err != nil {
			return nil, err
		}
		return &v, nil
	case KindCommand:
		var v Command
		if err := decodeInto(format, event, &v); err != nil {
			return nil, err
		}
		return &v, nil
	case KindFileChange:
		var v FileChange
		if err := decodeInto(format, event, &v); err != nil {
			return nil, err
		}
		return &v, nil
	case KindTerminalState:
		var v TerminalState
		if err := decodeInto(format, event, &v); err != nil {
			return nil, err
		}
		return &v, nil
	case KindSessionMeta:
		var v SessionMeta
		if err := decodeInto(format, event, &v); err != nil {
			return nil, err
		}
		return &v, nil
	default:
		return nil, &Error{Kind: CorruptFormat, Op: "decode_payload", Key: string(event.Kind), Err: fmt.Errorf("unknown event kind %q", event.Kind)}
	}
}

func decodeInto(format formatMarshaler, event Event, v any) error {
	if err := format.unmarshal(event.Payload, v); err != nil {
		return &Error{Kind: CorruptFormat, Op: "decode_payload", Key: string(event.Kind), Err: err}
	}
	return nil
}
