// Copyright 2026 The TimeLoop Authors
// SPDX-License-Identifier: Apache-2.0

// Package store is the central component of TimeLoop: it wraps one
// lib/kv instance, owns the codec and crypto choices for that instance,
// enforces the key-schema invariants, serialises writers behind a
// readers-writer guard, tracks a pending-writes counter, and implements
// compaction and backup/restore.
//
// Store does not know about sessions or branches as first-class
// concepts beyond the record types it persists — lib/session and
// lib/branch are thin managers built on top of the operations exported
// here (PutSession/GetSession/ListSessions, AppendEvent/ReadEvents).
// This mirrors the teacher's layering: a low-level storage engine
// (lib/sqlitepool) with no opinion about what a "workspace" or
// "sandbox" is, and higher-level managers built above it.
//
// Every exported error is a *store.Error carrying a Kind from the
// taxonomy in errors.go; callers that need to branch on failure mode
// use the IsXxx predicates rather than string matching or type
// switches on wrapped errors.
package store
