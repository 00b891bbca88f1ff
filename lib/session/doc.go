// Copyright 2026 The TimeLoop Authors
// SPDX-License-Identifier: Apache-2.0

// Package session implements the recording lifecycle atop lib/store:
// open, close (idempotent), append, lazy summary, and listing. It adds
// no persistent state of its own — everything it does is expressed in
// terms of store.Session records and store.Event appends, mirroring
// how the teacher's higher-level managers are thin wrappers over a
// lower-level storage engine.
package session
