// Copyright 2026 The TimeLoop Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/timeloop-rec/timeloop/lib/clock"
	"github.com/timeloop-rec/timeloop/lib/codec"
	"github.com/timeloop-rec/timeloop/lib/crypto"
	"github.com/timeloop-rec/timeloop/lib/ids"
	"github.com/timeloop-rec/timeloop/lib/kv"
	"github.com/timeloop-rec/timeloop/lib/secret"
)

// formatMarshaler adapts a codec.Format into the marshal/unmarshal
// pair record.go's payload helpers need, without record.go importing
// lib/codec directly for every call site.
type formatMarshaler struct{ format codec.Format }

func (f formatMarshaler) marshal(v any) ([]byte, error) { return codec.MarshalRecord(f.format, v) }
func (f formatMarshaler) unmarshal(data []byte, v any) error {
	return codec.UnmarshalRecord(f.format, data, v)
}

// Store is the central component: one KV instance plus the codec,
// crypto, and concurrency discipline layered on top of it. A Store is
// safe for concurrent use by multiple goroutines.
type Store struct {
	dir        string
	format     codec.Format
	appendOnly bool
	compaction CompactionPolicy
	clock      clock.Clock
	logger     *slog.Logger

	encrypted  bool
	key        *secret.Buffer
	compressed bool

	mu sync.RWMutex
	kv *kv.KV

	pendingWrites atomic.Int32
}

// Range bounds a ReadEvents scan. A nil field is unbounded on that
// side. Sequence bounds are inclusive; time bounds are inclusive on
// FromTime and exclusive on ToTime.
type Range struct {
	FromSequence *uint64
	ToSequence   *uint64
	FromTime     *time.Time
	ToTime       *time.Time
}

func (r Range) includesSequence(seq uint64) bool {
	if r.FromSequence != nil && seq < *r.FromSequence {
		return false
	}
	if r.ToSequence != nil && seq > *r.ToSequence {
		return false
	}
	return true
}

func (r Range) includesTime(t time.Time) bool {
	if r.FromTime != nil && t.Before(*r.FromTime) {
		return false
	}
	if r.ToTime != nil && !t.Before(*r.ToTime) {
		return false
	}
	return true
}

// Open opens (creating if necessary) the store directory at dir.
// A new store is initialised from opts; an existing store's persisted
// format and encryption settings are validated against opts, returning
// FormatMismatch on disagreement (AuthenticationFailed when an encrypted
// store is opened without a passphrase).
func Open(dir string, opts Options) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, &Error{Kind: IoError, Op: "open", Err: fmt.Errorf("creating store directory: %w", err)}
	}

	clk := opts.clock()
	logger := opts.logger()

	fresh := !metaExists(dir)
	var meta *metaFile
	var params crypto.Params
	if fresh {
		var err error
		meta, params, err = newMetaFile(opts.Format, opts.Encryption, opts.Compression)
		if err != nil {
			return nil, &Error{Kind: IoError, Op: "open", Err: err}
		}
		if err := writeMetaFile(dir, meta); err != nil {
			return nil, &Error{Kind: IoError, Op: "open", Err: err}
		}
	} else {
		var err error
		meta, err = readMetaFile(dir)
		if err != nil {
			return nil, &Error{Kind: IoError, Op: "open", Err: err}
		}
		persisted, err := codec.ParseFormat(meta.PersistenceFormat)
		if err != nil {
			return nil, &Error{Kind: CorruptFormat, Op: "open", Err: err}
		}
		if persisted != opts.Format {
			return nil, &Error{Kind: FormatMismatch, Op: "open",
				Err: fmt.Errorf("store was created with format %s, requested %s", persisted, opts.Format)}
		}
		if meta.Encrypted && opts.Encryption.Mode != EncryptionPassword {
			return nil, &Error{Kind: AuthenticationFailed, Op: "open", Err: fmt.Errorf("store is encrypted, no passphrase supplied")}
		}
		if !meta.Encrypted && opts.Encryption.Mode == EncryptionPassword {
			return nil, &Error{Kind: FormatMismatch, Op: "open", Err: fmt.Errorf("store is not encrypted, passphrase supplied")}
		}
		if meta.Compressed != (opts.Compression == CompressionZstd) {
			return nil, &Error{Kind: FormatMismatch, Op: "open",
				Err: fmt.Errorf("store was created with compressed=%t, requested compressed=%t", meta.Compressed, opts.Compression == CompressionZstd)}
		}
		if meta.Encrypted {
			params, err = meta.kdfParams()
			if err != nil {
				return nil, &Error{Kind: IoError, Op: "open", Err: err}
			}
		}
	}

	var key *secret.Buffer
	if meta.Encrypted {
		if opts.Encryption.Passphrase == nil {
			return nil, &Error{Kind: AuthenticationFailed, Op: "open", Err: fmt.Errorf("encryption requires a passphrase")}
		}
		derived, err := crypto.DeriveKey(opts.Encryption.Passphrase, params)
		if err != nil {
			return nil, &Error{Kind: IoError, Op: "open", Err: err}
		}
		key = derived
	}

	backend, err := openKVWithRetry(kv.Config{Path: kvPath(dir), Logger: logger}, clk, opts.OpenTimeout)
	if err != nil {
		if key != nil {
			key.Close()
		}
		return nil, err
	}

	format, err := codec.ParseFormat(meta.PersistenceFormat)
	if err != nil {
		backend.Close()
		if key != nil {
			key.Close()
		}
		return nil, &Error{Kind: CorruptFormat, Op: "open", Err: err}
	}

	logger.Info("store opened", "dir", dir, "format", format, "encrypted", meta.Encrypted, "compressed", meta.Compressed, "fresh", fresh)

	return &Store{
		dir:        dir,
		format:     format,
		appendOnly: opts.AppendOnly,
		compaction: opts.Compaction,
		clock:      clk,
		logger:     logger,
		encrypted:  meta.Encrypted,
		key:        key,
		compressed: meta.Compressed,
		kv:         backend,
	}, nil
}

// openKVWithRetry implements spec §4.2.1: up to 5 attempts, exponential
// backoff 100ms*2^n, classifying failures via isLockError. timeout, if
// positive, bounds the loop's total wall time as observed through clk.
// The attempt loop and backoff schedule are clock.Retry's; this function
// only supplies the retry predicate (stop on a non-lock error or once
// timeout has elapsed) and captures the opened backend out of the
// closure, since Retry's fn returns only an error.
func openKVWithRetry(cfg kv.Config, clk clock.Clock, timeout time.Duration) (*kv.KV, error) {
	const maxAttempts = 5
	const baseDelay = 100 * time.Millisecond

	start := clk.Now()
	var backend *kv.KV
	var nonLockErr error

	shouldRetry := func(err error) bool {
		if !isLockError(err) {
			nonLockErr = err
			return false
		}
		return timeout <= 0 || clk.Now().Sub(start) < timeout
	}

	err := clock.Retry(clk, maxAttempts, baseDelay, shouldRetry, func() error {
		opened, err := kv.Open(cfg)
		if err != nil {
			return err
		}
		backend = opened
		return nil
	})
	if err == nil {
		return backend, nil
	}
	if nonLockErr != nil {
		return nil, &Error{Kind: IoError, Op: "open", Err: nonLockErr}
	}
	return nil, &Error{Kind: LockContended, Op: "open",
		Err: fmt.Errorf("another instance of TimeLoop may be running; close other instances or wait: %w", err)}
}

// Close releases the store's resources, zeroising the derived
// encryption key if one is held.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if s.kv != nil {
		err = s.kv.Close()
	}
	if s.key != nil {
		s.key.Close()
	}
	return err
}

// PendingWrites returns the number of writer operations currently in
// flight. Observational only; taken without any guard.
func (s *Store) PendingWrites() int32 { return s.pendingWrites.Load() }

// Now returns the store's injected clock's current time, truncated to
// millisecond precision like every persisted timestamp. Callers
// outside this package that need to stamp a record consistently with
// AppendEvent's own timestamping (lib/branch's Branch, for one) should
// use this instead of time.Now().
func (s *Store) Now() time.Time { return s.clock.Now().UTC().Truncate(time.Millisecond) }

// Flush forces durability of all buffered writes.
func (s *Store) Flush() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.kv.Flush(); err != nil {
		return &Error{Kind: IoError, Op: "flush", Err: err}
	}
	return nil
}

func (s *Store) formatMarshaler() formatMarshaler { return formatMarshaler{format: s.format} }

// DecodePayload decodes event's Payload into its kind-specific typed
// value, using the store's configured format. See the package-level
// DecodePayload for the returned type per Kind.
func (s *Store) DecodePayload(event Event) (any, error) {
	return DecodePayload(s.formatMarshaler(), event)
}

// sealValue prepares plaintext for storage: compress, then encrypt.
// Either stage may be a no-op depending on how the store was opened.
func (s *Store) sealValue(key, plaintext []byte) ([]byte, error) {
	if s.compressed {
		plaintext = compressValue(plaintext)
	}
	if !s.encrypted {
		return plaintext, nil
	}
	sealed, err := crypto.Seal(s.key, key, plaintext)
	if err != nil {
		return nil, &Error{Kind: IoError, Op: "encrypt", Key: string(key), Err: err}
	}
	return sealed, nil
}

// openValue reverses sealValue: decrypt, then decompress.
func (s *Store) openValue(key, sealed []byte) ([]byte, error) {
	plaintext := sealed
	if s.encrypted {
		opened, err := crypto.Open(s.key, key, sealed)
		if err != nil {
			return nil, &Error{Kind: AuthenticationFailed, Op: "decrypt", Key: string(key), Err: err}
		}
		plaintext = opened
	}
	if s.compressed {
		decompressed, err := decompressValue(plaintext)
		if err != nil {
			return nil, &Error{Kind: CorruptFormat, Op: "decompress", Key: string(key), Err: err}
		}
		plaintext = decompressed
	}
	return plaintext, nil
}

// encodeSession marshals and, if the store is encrypted, seals a
// Session record for storage under key.
func (s *Store) encodeSession(key []byte, session Session) ([]byte, error) {
	data, err := codec.MarshalRecord(s.format, session)
	if err != nil {
		return nil, &Error{Kind: IoError, Op: "encode_session", Key: session.ID.String(), Err: err}
	}
	return s.sealValue(key, data)
}

func (s *Store) decodeSession(key, value []byte) (Session, error) {
	plaintext, err := s.openValue(key, value)
	if err != nil {
		return Session{}, err
	}
	var session Session
	if err := codec.UnmarshalRecord(s.format, plaintext, &session); err != nil {
		return Session{}, &Error{Kind: CorruptFormat, Op: "decode_session", Key: string(key), Err: err}
	}
	return session, nil
}

func (s *Store) encodeEvent(key []byte, event Event) ([]byte, error) {
	data, err := codec.MarshalRecord(s.format, event)
	if err != nil {
		return nil, &Error{Kind: IoError, Op: "encode_event", Key: event.ID.String(), Err: err}
	}
	return s.sealValue(key, data)
}

func (s *Store) decodeEvent(key, value []byte) (Event, error) {
	plaintext, err := s.openValue(key, value)
	if err != nil {
		return Event{}, err
	}
	var event Event
	if err := codec.UnmarshalRecord(s.format, plaintext, &event); err != nil {
		return Event{}, &Error{Kind: CorruptFormat, Op: "decode_event", Key: string(key), Err: err}
	}
	return event, nil
}

// PutSession creates or updates a session record. Used both to create
// a new session (open_session) and to persist changes to an existing
// one (close_session, branch creation, sequence bumps done outside of
// AppendEvent's own batch).
func (s *Store) PutSession(session Session) error {
	s.pendingWrites.Add(1)
	defer s.pendingWrites.Add(-1)

	s.mu.Lock()
	defer s.mu.Unlock()

	key := sessionKey(session.ID)
	value, err := s.encodeSession(key, session)
	if err != nil {
		return err
	}
	indexKey := sessionIndexKey(session.CreatedAt.UnixNano(), session.ID)
	indexValue, err := s.sealValue(indexKey, []byte{})
	if err != nil {
		return err
	}

	err = s.kv.PutBatch([]kv.Entry{
		{Key: key, Value: value},
		{Key: indexKey, Value: indexValue},
	})
	if err != nil {
		return &Error{Kind: IoError, Op: "put_session", Key: session.ID.String(), Err: err}
	}
	return nil
}

// GetSession returns the session record for id.
func (s *Store) GetSession(id ids.SessionID) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getSessionLocked(id)
}

func (s *Store) getSessionLocked(id ids.SessionID) (Session, error) {
	key := sessionKey(id)
	value, found, err := s.kv.Get(key)
	if err != nil {
		return Session{}, &Error{Kind: IoError, Op: "get_session", Key: id.String(), Err: err}
	}
	if !found {
		return Session{}, &Error{Kind: SessionNotFound, Op: "get_session", Key: id.String()}
	}
	return s.decodeSession(key, value)
}

// ListSessions returns every session, in chronological (created_at)
// order.
func (s *Store) ListSessions() ([]Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listSessionsLocked()
}

func (s *Store) listSessionsLocked() ([]Session, error) {
	prefix := sessionIndexPrefix()
	upper := kv.PrefixUpperBound(prefix)

	var result []Session
	err := s.kv.Iterate(context.Background(), prefix, upper, func(key, _ []byte) error {
		id, err := sessionIDFromIndexKey(key)
		if err != nil {
			return err
		}
		session, err := s.getSessionLocked(id)
		if err != nil {
			return err
		}
		result = append(result, session)
		return nil
	})
	if err != nil {
		return nil, &Error{Kind: IoError, Op: "list_sessions", Err: err}
	}
	return result, nil
}

// AppendEvent appends a new event to sessionID, assigning the next
// sequence number and updating the session's last_sequence/event_count
// in the same atomic batch. timestamp is truncated to millisecond
// resolution; a zero timestamp is replaced with the store's clock.
func (s *Store) AppendEvent(sessionID ids.SessionID, kind EventKind, timestamp time.Time, payload any) (Event, error) {
	s.pendingWrites.Add(1)
	defer s.pendingWrites.Add(-1)

	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.getSessionLocked(sessionID)
	if err != nil {
		return Event{}, err
	}
	if session.State == SessionClosed {
		return Event{}, &Error{Kind: SessionClosedKind, Op: "append_event", Key: sessionID.String()}
	}

	if timestamp.IsZero() {
		timestamp = s.clock.Now()
	}
	timestamp = timestamp.UTC().Truncate(time.Millisecond)

	encodedPayload, err := EncodePayload(s.formatMarshaler(), kind, payload)
	if err != nil {
		return Event{}, &Error{Kind: IoError, Op: "append_event", Key: sessionID.String(), Err: err}
	}

	sequence := session.LastSequence + 1
	event := Event{
		ID:        ids.NewEventID(),
		SessionID: sessionID,
		Timestamp: timestamp,
		Sequence:  sequence,
		Kind:      kind,
		Payload:   encodedPayload,
	}

	eKey := eventKey(sessionID, sequence)
	eValue, err := s.encodeEvent(eKey, event)
	if err != nil {
		return Event{}, err
	}

	session.LastSequence = sequence
	session.EventCount++
	sKey := sessionKey(sessionID)
	sValue, err := s.encodeSession(sKey, session)
	if err != nil {
		return Event{}, err
	}

	err = s.kv.PutBatch([]kv.Entry{
		{Key: eKey, Value: eValue},
		{Key: sKey, Value: sValue},
	})
	if err != nil {
		return Event{}, &Error{Kind: IoError, Op: "append_event", Key: sessionID.String(), Err: err}
	}
	return event, nil
}

// ReadEvents returns a lazy, finite, non-restartable sequence of
// sessionID's events matching r, in sequence order. If sessionID names
// a branch (its session record has a non-nil Parent), the sequence
// transparently begins with the parent's events up to
// Parent.BranchPointSequence (with their original sequence numbers)
// before continuing with sessionID's own events, per the data model's
// branch-view invariant.
//
// ctx is polled before each row of the KV scan; if it is cancelled the
// sequence yields one final error of kind Cancelled (IsCancelled reports
// true for it) and ends.
func (s *Store) ReadEvents(ctx context.Context, sessionID ids.SessionID, r Range) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		s.mu.RLock()
		defer s.mu.RUnlock()

		session, err := s.getSessionLocked(sessionID)
		if err != nil {
			yield(Event{}, err)
			return
		}

		if session.Parent != nil {
			parentRange := r
			bound := session.Parent.BranchPointSequence
			if parentRange.ToSequence == nil || *parentRange.ToSequence > bound {
				parentRange.ToSequence = &bound
			}
			cont := true
			for event, err := range s.readEventsLocked(ctx, session.Parent.SessionID, parentRange) {
				if !yield(event, err) {
					cont = false
					break
				}
			}
			if !cont {
				return
			}
		}

		for event, err := range s.readEventsLocked(ctx, sessionID, r) {
			if !yield(event, err) {
				return
			}
		}
	}
}

// ReadOwnEvents returns a lazy, finite, non-restartable sequence of
// sessionID's own events matching r, in sequence order, never
// following Parent even if sessionID names a branch. Unlike
// ReadEvents, r's sequence bounds are interpreted purely in
// sessionID's own local numbering space (a branch's own events are
// numbered independently starting at 1, never continuing the parent's
// numbering) — callers that mean "everything after the branch point"
// in that local space should pass an unbounded Range, since a branch's
// own events are by construction never inherited from the parent.
func (s *Store) ReadOwnEvents(ctx context.Context, sessionID ids.SessionID, r Range) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		s.mu.RLock()
		defer s.mu.RUnlock()

		for event, err := range s.readEventsLocked(ctx, sessionID, r) {
			if !yield(event, err) {
				return
			}
		}
	}
}

// readEventsLocked scans one session's own e/* keys (never following
// Parent) under the caller's already-held read lock.
func (s *Store) readEventsLocked(ctx context.Context, sessionID ids.SessionID, r Range) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		prefix := eventPrefix(sessionID)
		upper := kv.PrefixUpperBound(prefix)

		from := prefix
		if r.FromSequence != nil {
			from = eventKey(sessionID, *r.FromSequence)
		}

		stop := false
		err := s.kv.Iterate(ctx, from, upper, func(key, value []byte) error {
			sequence, err := sequenceFromEventKey(key)
			if err != nil {
				return err
			}
			if !r.includesSequence(sequence) {
				return nil
			}
			event, decodeErr := s.decodeEvent(key, value)
			if decodeErr != nil {
				if !yield(Event{}, decodeErr) {
					stop = true
					return errStopIteration
				}
				return nil
			}
			if !r.includesTime(event.Timestamp) {
				return nil
			}
			if !yield(event, nil) {
				stop = true
				return errStopIteration
			}
			return nil
		})
		if stop {
			return
		}
		if err != nil {
			if err == context.Canceled || err == context.DeadlineExceeded {
				yield(Event{}, &Error{Kind: Cancelled, Op: "read_events", Key: sessionID.String(), Err: err})
				return
			}
			yield(Event{}, &Error{Kind: IoError, Op: "read_events", Key: sessionID.String(), Err: err})
		}
	}
}

// errStopIteration is a sentinel used internally to unwind kv.Iterate
// when the caller of ReadEvents stops consuming early (range-over-func
// break). It is never returned to a caller of ReadEvents.
var errStopIteration = fmt.Errorf("store: iteration stopped by consumer")
