// Copyright 2026 The TimeLoop Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"

	"github.com/timeloop-rec/timeloop/lib/codec"
	"github.com/timeloop-rec/timeloop/lib/crypto"
	"github.com/timeloop-rec/timeloop/lib/ids"
)

var backupMagic = [4]byte{'T', 'L', 'B', 'K'}

const backupVersion uint16 = 1
const backupFlagEncrypted uint16 = 1 << 0
const backupHeaderLen = 4 + 2 + 2

// backupChecksumLen is the size of the BLAKE3 digest appended after
// the header+payload, guarding a backup file against silent
// truncation or bit rot independent of whether the payload itself is
// encrypted (the checksum covers ciphertext, not plaintext, so it
// verifies before any passphrase is needed).
const backupChecksumLen = 32

type backupRecordKind string

const (
	backupRecordSession backupRecordKind = "session"
	backupRecordEvent   backupRecordKind = "event"
	backupRecordBranch  backupRecordKind = "branch"
)

// backupRecord is the wire wrapper for one length-prefixed record in a
// backup body. Exactly one of Session/Event/Branch is set, per Kind.
type backupRecord struct {
	Kind    backupRecordKind `json:"kind"`
	Session *Session         `json:"session,omitempty"`
	Event   *Event           `json:"event,omitempty"`
	Branch  *Branch          `json:"branch,omitempty"`
}

// Backup writes a single self-describing file containing every
// session (or only those in sessionIDs, if non-empty), their events,
// and every branch record. If the store is encrypted, the body is
// sealed as one envelope under the store's key. Writing proceeds by
// write-to-tempfile + atomic rename.
func (s *Store) Backup(path string, sessionIDs []ids.SessionID) error {
	s.mu.RLock()
	sessions, err := s.selectSessionsLocked(sessionIDs)
	if err != nil {
		s.mu.RUnlock()
		return err
	}

	var body bytes.Buffer
	for _, session := range sessions {
		if err := writeBackupRecord(&body, s.format, backupRecord{Kind: backupRecordSession, Session: &session}); err != nil {
			s.mu.RUnlock()
			return &Error{Kind: IoError, Op: "backup", Err: err}
		}
		events, err := s.collectOwnEventsLocked(session.ID)
		if err != nil {
			s.mu.RUnlock()
			return err
		}
		for i := range events {
			if err := writeBackupRecord(&body, s.format, backupRecord{Kind: backupRecordEvent, Event: &events[i]}); err != nil {
				s.mu.RUnlock()
				return &Error{Kind: IoError, Op: "backup", Err: err}
			}
		}
	}
	branches, err := s.listBranchesLocked(ids.SessionID{})
	if err != nil {
		s.mu.RUnlock()
		return err
	}
	for i := range branches {
		if err := writeBackupRecord(&body, s.format, backupRecord{Kind: backupRecordBranch, Branch: &branches[i]}); err != nil {
			s.mu.RUnlock()
			return &Error{Kind: IoError, Op: "backup", Err: err}
		}
	}
	s.mu.RUnlock()

	flags := uint16(0)
	if s.encrypted {
		flags |= backupFlagEncrypted
	}
	header := make([]byte, 0, backupHeaderLen)
	header = append(header, backupMagic[:]...)
	header = binary.BigEndian.AppendUint16(header, backupVersion)
	header = binary.BigEndian.AppendUint16(header, flags)

	payload := body.Bytes()
	if s.encrypted {
		sealed, err := crypto.Seal(s.key, header, payload)
		if err != nil {
			return &Error{Kind: IoError, Op: "backup", Err: err}
		}
		payload = sealed
	}

	file := append(header, payload...)
	checksum := blake3.Sum256(file)
	file = append(file, checksum[:]...)

	return writeFileAtomic(path, file)
}

// Restore reads a backup produced by Backup and inserts its records
// into the store. Encrypted backups are decrypted with the store's own
// derived key; the header carries no salt or KDF parameters, so only a
// store holding the same key as the one that wrote the backup (same
// passphrase and same salt) can restore it, and any other store fails
// with AuthenticationFailed.
// On a session or branch id collision with an existing record, a
// fresh id is assigned and every reference to the old id (branch
// parent pointers, event session ids) is remapped before insertion.
func (s *Store) Restore(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return &Error{Kind: IoError, Op: "restore", Err: err}
	}
	if len(raw) < backupHeaderLen+backupChecksumLen {
		return &Error{Kind: CorruptFormat, Op: "restore", Err: fmt.Errorf("file shorter than header and checksum")}
	}

	fileEnd := len(raw) - backupChecksumLen
	wantChecksum := raw[fileEnd:]
	gotChecksum := blake3.Sum256(raw[:fileEnd])
	if !bytes.Equal(gotChecksum[:], wantChecksum) {
		return &Error{Kind: CorruptFormat, Op: "restore", Err: fmt.Errorf("checksum mismatch: file is truncated or corrupt")}
	}
	raw = raw[:fileEnd]

	header := raw[:backupHeaderLen]
	if !bytes.Equal(header[:4], backupMagic[:]) {
		return &Error{Kind: CorruptFormat, Op: "restore", Err: fmt.Errorf("bad magic")}
	}
	version := binary.BigEndian.Uint16(header[4:6])
	if version != backupVersion {
		return &Error{Kind: CorruptFormat, Op: "restore", Err: fmt.Errorf("unsupported backup version %d", version)}
	}
	flags := binary.BigEndian.Uint16(header[6:8])
	body := raw[backupHeaderLen:]

	if flags&backupFlagEncrypted != 0 {
		if !s.encrypted {
			return &Error{Kind: AuthenticationFailed, Op: "restore", Err: fmt.Errorf("backup is encrypted but store has no passphrase")}
		}
		plaintext, err := crypto.Open(s.key, header, body)
		if err != nil {
			return &Error{Kind: AuthenticationFailed, Op: "restore", Err: err}
		}
		body = plaintext
	}

	records, err := decodeBackupBody(s.format, body)
	if err != nil {
		return err
	}

	sessionRemap, err := s.buildSessionRemap(records)
	if err != nil {
		return err
	}

	for _, record := range records {
		switch record.Kind {
		case backupRecordSession:
			session := *record.Session
			session.ID = remapSession(sessionRemap, session.ID)
			if session.Parent != nil {
				session.Parent.SessionID = remapSession(sessionRemap, session.Parent.SessionID)
			}
			if err := s.PutSession(session); err != nil {
				return err
			}
		case backupRecordEvent:
			event := *record.Event
			event.SessionID = remapSession(sessionRemap, event.SessionID)
			if err := s.restoreInsertEvent(event); err != nil {
				return err
			}
		case backupRecordBranch:
			branch := *record.Branch
			branch.ParentSessionID = remapSession(sessionRemap, branch.ParentSessionID)
			if newID, ok := sessionRemap[branch.ID.AsSessionID()]; ok {
				branch.ID = newID.AsBranchID()
			} else if _, err := s.GetBranch(branch.ID); err == nil {
				branch.ID = ids.NewBranchID()
			}
			if err := s.PutBranch(branch); err != nil {
				return err
			}
		}
	}
	return nil
}

// buildSessionRemap decides, for every session id appearing in
// records, whether it collides with an id already present in the
// store, and if so assigns it a fresh replacement. Every reference to
// a remapped id (session records' own ID and Parent.SessionID, and
// event SessionID) uses this single map, so a chain of parent
// references is resolved consistently regardless of encounter order.
func (s *Store) buildSessionRemap(records []backupRecord) (map[ids.SessionID]ids.SessionID, error) {
	remap := make(map[ids.SessionID]ids.SessionID)
	for _, record := range records {
		if record.Kind != backupRecordSession {
			continue
		}
		id := record.Session.ID
		if _, already := remap[id]; already {
			continue
		}
		if _, err := s.GetSession(id); err == nil {
			remap[id] = ids.NewSessionID()
		} else if !IsSessionNotFound(err) {
			return nil, err
		}
	}
	return remap, nil
}

func remapSession(remap map[ids.SessionID]ids.SessionID, id ids.SessionID) ids.SessionID {
	if id.IsZero() {
		return id
	}
	if newID, ok := remap[id]; ok {
		return newID
	}
	return id
}

// restoreInsertEvent writes event directly under its (possibly
// remapped) SessionID and original Sequence, bypassing AppendEvent's
// auto-numbering — restore must preserve the backed-up sequence
// numbers exactly.
func (s *Store) restoreInsertEvent(event Event) error {
	s.pendingWrites.Add(1)
	defer s.pendingWrites.Add(-1)

	s.mu.Lock()
	defer s.mu.Unlock()

	key := eventKey(event.SessionID, event.Sequence)
	value, err := s.encodeEvent(key, event)
	if err != nil {
		return err
	}
	if err := s.kv.Put(key, value); err != nil {
		return &Error{Kind: IoError, Op: "restore", Key: string(key), Err: err}
	}
	return nil
}

func (s *Store) selectSessionsLocked(sessionIDs []ids.SessionID) ([]Session, error) {
	if len(sessionIDs) == 0 {
		return s.listSessionsLocked()
	}
	sessions := make([]Session, 0, len(sessionIDs))
	for _, id := range sessionIDs {
		session, err := s.getSessionLocked(id)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}

func writeBackupRecord(buf *bytes.Buffer, format codec.Format, record backupRecord) error {
	data, err := codec.MarshalRecord(format, record)
	if err != nil {
		return err
	}
	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(data)))
	buf.Write(lenPrefix[:])
	buf.Write(data)
	return nil
}

func decodeBackupBody(format codec.Format, body []byte) ([]backupRecord, error) {
	var records []backupRecord
	for len(body) > 0 {
		if len(body) < 4 {
			return nil, &Error{Kind: CorruptFormat, Op: "restore", Err: fmt.Errorf("truncated record length prefix")}
		}
		length := binary.BigEndian.Uint32(body[:4])
		body = body[4:]
		if uint64(len(body)) < uint64(length) {
			return nil, &Error{Kind: CorruptFormat, Op: "restore", Err: fmt.Errorf("truncated record body")}
		}
		data := body[:length]
		body = body[length:]

		var record backupRecord
		if err := codec.UnmarshalRecord(format, data, &record); err != nil {
			return nil, &Error{Kind: CorruptFormat, Op: "restore", Err: err}
		}
		records = append(records, record)
	}
	return records, nil
}

// writeFileAtomic writes data to path via a tempfile in the same
// directory followed by an atomic rename, so a crash mid-write never
// leaves a partial backup file at path.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return &Error{Kind: IoError, Op: "backup", Err: err}
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return &Error{Kind: IoError, Op: "backup", Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &Error{Kind: IoError, Op: "backup", Err: err}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return &Error{Kind: IoError, Op: "backup", Err: err}
	}
	return nil
}
