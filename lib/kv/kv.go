// Copyright 2026 The TimeLoop Authors
// SPDX-License-Identifier: Apache-2.0

package kv

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// Config holds the parameters for opening a KV store.
type Config struct {
	// Path is the filesystem path to the backing SQLite file. The
	// parent directory must exist. The file is created if it does not
	// exist.
	Path string

	// Logger receives operational messages (open/close, checkpoint
	// errors). If nil, a no-op logger is used.
	Logger *slog.Logger
}

// KV is a single-connection, ordered, byte-key/byte-value store backed
// by SQLite. It is not safe for concurrent use by multiple goroutines —
// the caller (lib/store's readers-writer guard) is responsible for
// serializing access.
type KV struct {
	conn   *sqlite.Conn
	logger *slog.Logger
	path   string
}

const schema = `CREATE TABLE IF NOT EXISTS kv (
	k BLOB PRIMARY KEY,
	v BLOB NOT NULL
) WITHOUT ROWID;`

// Open opens (creating if necessary) the KV store at cfg.Path and
// applies timeloop's standard pragmas. The caller must call Close when
// the store is no longer needed.
//
// Open does not retry on a locked database — the store's Open path
// wraps this call with lib/clock.Retry to apply the backoff schedule.
func Open(cfg Config) (*KV, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("kv: Path is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	conn, err := sqlite.OpenConn(cfg.Path, sqlite.OpenReadWrite|sqlite.OpenCreate|sqlite.OpenWAL)
	if err != nil {
		return nil, fmt.Errorf("kv: opening %s: %w", cfg.Path, err)
	}

	if err := prepareConnection(conn); err != nil {
		conn.Close()
		return nil, err
	}

	logger.Info("kv store opened", "path", cfg.Path)

	return &KV{conn: conn, logger: logger, path: cfg.Path}, nil
}

func prepareConnection(conn *sqlite.Conn) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		// Fail fast on contention; the store owns retry/backoff.
		"PRAGMA busy_timeout=0",
		"PRAGMA foreign_keys=OFF",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("kv: %s: %w", pragma, err)
		}
	}

	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return fmt.Errorf("kv: creating schema: %w", err)
	}

	return nil
}

// Get returns the value stored under key. found is false if key is not
// present.
func (kv *KV) Get(key []byte) (value []byte, found bool, err error) {
	err = sqlitex.Execute(kv.conn, "SELECT v FROM kv WHERE k = ?", &sqlitex.ExecOptions{
		Args: []any{key},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			found = true
			value = make([]byte, stmt.ColumnLen(0))
			stmt.ColumnBytes(0, value)
			return nil
		},
	})
	if err != nil {
		return nil, false, fmt.Errorf("kv: get: %w", err)
	}
	return value, found, nil
}

// Put stores value under key, overwriting any existing value.
func (kv *KV) Put(key, value []byte) error {
	err := sqlitex.Execute(kv.conn, "INSERT INTO kv (k, v) VALUES (?, ?) ON CONFLICT(k) DO UPDATE SET v = excluded.v", &sqlitex.ExecOptions{
		Args: []any{key, value},
	})
	if err != nil {
		return fmt.Errorf("kv: put: %w", err)
	}
	return nil
}

// Delete removes key. It is not an error if key does not exist.
func (kv *KV) Delete(key []byte) error {
	err := sqlitex.Execute(kv.conn, "DELETE FROM kv WHERE k = ?", &sqlitex.ExecOptions{
		Args: []any{key},
	})
	if err != nil {
		return fmt.Errorf("kv: delete: %w", err)
	}
	return nil
}

// Entry is a single key-value pair, used by PutBatch.
type Entry struct {
	Key   []byte
	Value []byte
}

// PutBatch writes every entry in a single transaction. Either all
// writes are visible afterward, or (on error) none are.
func (kv *KV) PutBatch(entries []Entry) (err error) {
	release := sqlitex.Save(kv.conn)
	defer release(&err)

	for _, entry := range entries {
		if putErr := kv.Put(entry.Key, entry.Value); putErr != nil {
			return putErr
		}
	}
	return nil
}

// DeleteRange deletes every key in [from, to). Used by compaction to
// atomically drop a scratch prefix's superseded records.
func (kv *KV) DeleteRange(from, to []byte) error {
	err := sqlitex.Execute(kv.conn, "DELETE FROM kv WHERE k >= ? AND k < ?", &sqlitex.ExecOptions{
		Args: []any{from, to},
	})
	if err != nil {
		return fmt.Errorf("kv: delete range: %w", err)
	}
	return nil
}

// KeyRange is an exclusive-upper-bound key range [From, To) as used by
// ApplyBatch's deletes.
type KeyRange struct {
	From, To []byte
}

// ApplyBatch deletes every key covered by deletes, then writes every
// entry in puts, all within a single transaction. Deletes are applied
// before puts so a caller can atomically replace a key range with new
// contents (compaction's scratch-to-live rename) in one call.
func (kv *KV) ApplyBatch(puts []Entry, deletes []KeyRange) (err error) {
	release := sqlitex.Save(kv.conn)
	defer release(&err)

	for _, r := range deletes {
		if delErr := kv.DeleteRange(r.From, r.To); delErr != nil {
			return delErr
		}
	}
	for _, entry := range puts {
		if putErr := kv.Put(entry.Key, entry.Value); putErr != nil {
			return putErr
		}
	}
	return nil
}

// IterFunc is called once per key in ascending order during Iterate. If
// it returns an error, iteration stops and Iterate returns that error.
type IterFunc func(key, value []byte) error

// Iterate walks every key k such that from <= k < to, in ascending
// order, calling fn for each. If to is nil, iteration continues to the
// end of the keyspace. ctx is polled between result rows (not between
// every byte) so a large scan can be cancelled promptly without adding
// per-row overhead.
func (kv *KV) Iterate(ctx context.Context, from, to []byte, fn IterFunc) error {
	query := "SELECT k, v FROM kv WHERE k >= ? ORDER BY k"
	args := []any{from}
	if to != nil {
		query = "SELECT k, v FROM kv WHERE k >= ? AND k < ? ORDER BY k"
		args = []any{from, to}
	}

	var iterErr error
	err := sqlitex.Execute(kv.conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			select {
			case <-ctx.Done():
				iterErr = ctx.Err()
				return iterErr
			default:
			}

			key := make([]byte, stmt.ColumnLen(0))
			stmt.ColumnBytes(0, key)
			value := make([]byte, stmt.ColumnLen(1))
			stmt.ColumnBytes(1, value)

			if err := fn(key, value); err != nil {
				iterErr = err
				return err
			}
			return nil
		},
	})
	if iterErr != nil {
		return iterErr
	}
	if err != nil {
		return fmt.Errorf("kv: iterate: %w", err)
	}
	return nil
}

// PrefixUpperBound returns the smallest byte string that is strictly
// greater than every string with the given prefix, suitable as the
// exclusive "to" bound of an Iterate call. Returns nil if prefix is all
// 0xFF bytes (or empty), meaning there is no finite upper bound short
// of the end of the keyspace.
func PrefixUpperBound(prefix []byte) []byte {
	upper := bytes.Clone(prefix)
	for i := len(upper) - 1; i >= 0; i-- {
		if upper[i] != 0xFF {
			upper[i]++
			return upper[:i+1]
		}
	}
	return nil
}

// Flush forces a WAL checkpoint, folding the write-ahead log back into
// the main database file. Called after a batch of writes when the
// caller wants the on-disk file itself (not just the WAL) to reflect
// recent changes, e.g. before a filesystem-level backup of the raw
// store directory.
func (kv *KV) Flush() error {
	if err := sqlitex.ExecuteTransient(kv.conn, "PRAGMA wal_checkpoint(TRUNCATE)", nil); err != nil {
		return fmt.Errorf("kv: flush: %w", err)
	}
	return nil
}

// Close closes the underlying connection.
func (kv *KV) Close() error {
	err := kv.conn.Close()
	if err != nil {
		kv.logger.Error("kv store close error", "path", kv.path, "error", err)
		return fmt.Errorf("kv: closing %s: %w", kv.path, err)
	}
	kv.logger.Info("kv store closed", "path", kv.path)
	return nil
}
