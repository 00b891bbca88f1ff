// Copyright 2026 The TimeLoop Authors
// SPDX-License-Identifier: Apache-2.0

// Package kv provides the ordered key-value backend the event store is
// built on.
//
// There is no embedded ordered key-value engine in timeloop's dependency
// stack, so this package implements one on top of a single
// zombiezen.com/go/sqlite connection: a single table,
//
//	CREATE TABLE kv (k BLOB PRIMARY KEY, v BLOB NOT NULL) WITHOUT ROWID;
//
// SQLite's BLOB collation orders keys byte-wise, which is exactly the
// ordering timeloop's big-endian binary keys need for chronological
// iteration — no secondary index or comparator is required.
//
// [KV] is a single connection, not a pool (contrast lib/sqlitepool,
// which this package's pragma handling is grounded on): the store above
// it holds its own sync.RWMutex to serialize writers and admit
// concurrent readers, so a connection pool would only add contention
// without adding parallelism SQLite could exploit. busy_timeout is set
// to 0 so a lock conflict fails fast with SQLite's own "database is
// locked" error text instead of blocking inside the driver — the
// store's Open retry loop owns backoff instead.
package kv
