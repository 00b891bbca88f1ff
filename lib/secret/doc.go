// Copyright 2026 The TimeLoop Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret provides a memory-safe buffer for sensitive data: store
// passphrases and the key derived from them.
//
// [Buffer] allocates memory outside the Go heap via mmap(MAP_ANONYMOUS),
// locks it into physical RAM via mlock (preventing swap), and marks it
// excluded from core dumps via madvise(MADV_DONTDUMP). On Close, the memory
// is zeroed, unlocked, and unmapped. Because the memory lives outside the Go
// heap, the garbage collector cannot copy or relocate it, so a stray copy of
// the derived encryption key never lingers in a moved/compacted heap
// segment.
//
// Constructors:
//
//   - [New] -- allocates a zero-filled buffer of a given size
//   - [NewFromBytes] -- copies into protected memory, zeroing the source
//   - [ReadFromPath] -- reads a passphrase from a file path, or stdin if "-"
//
// Access via [Buffer.Bytes] (slice into the mmap region) or [Buffer.String]
// (heap copy, for API boundaries that require a string). After Close,
// any access panics. Close is idempotent.
//
// Depends on golang.org/x/sys/unix and, for echo-free terminal reads in
// [ReadFromPath], golang.org/x/term. Used by lib/crypto to hold the
// Argon2id-derived store key for the lifetime of an open Store, and by
// cmd/timeloop to hold a passphrase read from TIMELOOP_PASSPHRASE or stdin.
package secret
