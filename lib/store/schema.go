// Copyright 2026 The TimeLoop Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"encoding/binary"
	"fmt"

	"github.com/timeloop-rec/timeloop/lib/ids"
)

// Key prefixes. Keys are plain ASCII/UTF-8 up to the point where a
// binary sort key (sequence or timestamp) is appended, so that
// SQLite's default memcmp BLOB ordering gives byte-wise ordering that
// matches the intended chronological/numeric ordering.
const (
	prefixSession      = "s/"
	prefixEvent        = "e/"
	prefixBranch       = "b/"
	prefixSessionIndex = "idx/s/"
	prefixCompactScratch = "c/"
	prefixMeta         = "meta/"
)

const (
	metaFormatVersion     = "meta/format_version"
	metaSalt              = "meta/salt"
	metaArgon2Params      = "meta/argon2_params"
	metaPersistenceFormat = "meta/persistence_format"
)

// sessionKey returns the KV key for a Session record: s/<session_id>.
func sessionKey(id ids.SessionID) []byte {
	return []byte(prefixSession + id.String())
}

// sessionPrefix is the prefix of every s/* key, used to bound the
// "list all sessions" fallback scan (chronological listing normally
// uses the idx/s/ index instead).
func sessionPrefix() []byte { return []byte(prefixSession) }

// eventKey returns the KV key for a single event: e/<session_id>/<sequence>.
func eventKey(session ids.SessionID, sequence uint64) []byte {
	key := make([]byte, 0, len(prefixEvent)+36+1+8)
	key = append(key, prefixEvent...)
	key = append(key, session.String()...)
	key = append(key, '/')
	key = binary.BigEndian.AppendUint64(key, sequence)
	return key
}

// eventPrefix returns the prefix bounding all events of one session:
// e/<session_id>/.
func eventPrefix(session ids.SessionID) []byte {
	return []byte(prefixEvent + session.String() + "/")
}

// compactScratchKey returns the scratch-prefix key for a session's
// compaction rewrite: c/<session_id>/<sequence>.
func compactScratchKey(session ids.SessionID, sequence uint64) []byte {
	key := make([]byte, 0, len(prefixCompactScratch)+36+1+8)
	key = append(key, prefixCompactScratch...)
	key = append(key, session.String()...)
	key = append(key, '/')
	key = binary.BigEndian.AppendUint64(key, sequence)
	return key
}

// compactScratchPrefix bounds all scratch keys for one session's
// in-progress compaction: c/<session_id>/.
func compactScratchPrefix(session ids.SessionID) []byte {
	return []byte(prefixCompactScratch + session.String() + "/")
}

// branchKey returns the KV key for a Branch record: b/<branch_id>.
func branchKey(id ids.BranchID) []byte {
	return []byte(prefixBranch + id.String())
}

func branchPrefix() []byte { return []byte(prefixBranch) }

// sessionIndexKey returns the chronological-listing index marker key:
// idx/s/<created_at_unix_nano:big-endian>/<session_id>.
func sessionIndexKey(createdAtUnixNano int64, id ids.SessionID) []byte {
	key := make([]byte, 0, len(prefixSessionIndex)+8+1+36)
	key = append(key, prefixSessionIndex...)
	key = binary.BigEndian.AppendUint64(key, uint64(createdAtUnixNano))
	key = append(key, '/')
	key = append(key, id.String()...)
	return key
}

func sessionIndexPrefix() []byte { return []byte(prefixSessionIndex) }

// sequenceFromEventKey extracts the big-endian sequence suffix from an
// event key produced by eventKey or compactScratchKey.
func sequenceFromEventKey(key []byte) (uint64, error) {
	if len(key) < 8 {
		return 0, fmt.Errorf("store: malformed event key %q", key)
	}
	return binary.BigEndian.Uint64(key[len(key)-8:]), nil
}

// sessionIDFromIndexKey extracts the session id suffix from a chronological
// index key produced by sessionIndexKey.
func sessionIDFromIndexKey(key []byte) (ids.SessionID, error) {
	// idx/s/ + 8 bytes + / + uuid
	const headerLen = len(prefixSessionIndex) + 8 + 1
	if len(key) <= headerLen {
		return ids.SessionID{}, fmt.Errorf("store: malformed session index key %q", key)
	}
	return ids.ParseSessionID(string(key[headerLen:]))
}
