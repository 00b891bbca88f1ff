// Copyright 2026 The TimeLoop Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"log/slog"
	"time"

	"github.com/timeloop-rec/timeloop/lib/clock"
	"github.com/timeloop-rec/timeloop/lib/codec"
	"github.com/timeloop-rec/timeloop/lib/crypto"
	"github.com/timeloop-rec/timeloop/lib/secret"
)

// CompactionKind selects a CompactionPolicy variant.
type CompactionKind int

const (
	CompactionNone CompactionKind = iota
	CompactionSizeThreshold
	CompactionEventThreshold
	CompactionTimeWindow
)

// CompactionPolicy configures when Store.Compact considers a session's
// event prefix eligible for rewrite. Exactly one field is meaningful,
// selected by Kind; the others are ignored.
type CompactionPolicy struct {
	Kind CompactionKind

	// Bytes is the threshold for CompactionSizeThreshold, compared with
	// the summed encoded payload size of one session's events.
	Bytes int64

	// Count is the event-count threshold for CompactionEventThreshold.
	Count int

	// OlderThan is the age threshold for CompactionTimeWindow: events
	// (or, for KeyPress runs, the run's earliest event) older than this
	// are eligible.
	OlderThan time.Duration
}

// CompressionMode selects whether a store's values are compressed
// before being sealed at rest.
type CompressionMode int

const (
	// CompressionNone stores every value uncompressed.
	CompressionNone CompressionMode = iota
	// CompressionZstd compresses each value with zstd before sealing
	// (if encryption is also enabled) or writing it to the KV backend.
	// Coalesced KeyPress runs produced by compaction are the values
	// most likely to benefit, since they concatenate many small,
	// highly repetitive payloads into one record.
	CompressionZstd
)

// EncryptionMode selects whether a store's values are sealed at rest.
type EncryptionMode int

const (
	// EncryptionNone stores every value in cleartext.
	EncryptionNone EncryptionMode = iota
	// EncryptionPassword derives a key from a passphrase via Argon2id
	// and seals every value written to the KV backend with
	// ChaCha20-Poly1305. The salt and KDF parameters are kept in
	// cleartext in meta.toml.
	EncryptionPassword
)

// EncryptionOptions configures at-rest encryption for a new or
// existing store.
type EncryptionOptions struct {
	Mode EncryptionMode

	// Passphrase supplies the key material for EncryptionPassword. The
	// store borrows it only long enough to derive a key at Open and
	// does not close it; the caller owns Passphrase's lifetime.
	Passphrase *secret.Buffer

	// KDFParams overrides the Argon2id cost parameters for a new
	// store. Ignored when opening an existing store, which always uses
	// its persisted parameters. If zero-valued for a new store,
	// crypto.DefaultParams() is used.
	KDFParams crypto.Params
}

// Options configures Store.Open.
type Options struct {
	// Format selects the persistence format for a new store. When
	// opening an existing store it is compared against the persisted
	// format: a mismatch is reported as FormatMismatch.
	Format codec.Format

	// AppendOnly forbids delete or in-place overwrite of event keys
	// when true.
	AppendOnly bool

	// Compaction configures automatic-eligibility compaction. Compact
	// must still be called explicitly; Compaction only determines
	// which sessions it treats as eligible.
	Compaction CompactionPolicy

	// Encryption configures at-rest encryption.
	Encryption EncryptionOptions

	// Compression configures at-rest compression. When opening an
	// existing store it is compared against the persisted setting: a
	// mismatch is reported as FormatMismatch.
	Compression CompressionMode

	// OpenTimeout bounds the total wall time of the open-with-retry
	// loop. Zero means use the default (5 retries, 100ms*2^n).
	OpenTimeout time.Duration

	// Clock is the time source used for retry backoff, timestamp
	// assignment, and TimeWindow compaction eligibility. Nil uses
	// clock.Real().
	Clock clock.Clock

	// Logger receives operational messages. Nil uses a discard logger.
	Logger *slog.Logger
}

func (o *Options) clock() clock.Clock {
	if o.Clock == nil {
		return clock.Real()
	}
	return o.Clock
}

func (o *Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return o.Logger
}
