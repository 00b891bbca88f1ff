// Copyright 2026 The TimeLoop Authors
// SPDX-License-Identifier: Apache-2.0

package store

import "strings"

// lockErrorPhrases are the exact substrings (matched case-insensitively
// against err.Error()) that classify a KV open failure as lock
// contention rather than some other I/O error. This textual matcher
// is deliberately the only place that reasons about lock errors — the
// KV layer has no second locking scheme of its own, so a lock failure
// always surfaces from SQLite's own file lock through this text.
var lockErrorPhrases = []string{
	"lock",
	"would block",
	"resource temporarily unavailable",
	"another process has locked",
	"database is locked",
}

// isLockError reports whether err's textual form indicates the KV
// backend could not acquire its file lock.
func isLockError(err error) bool {
	if err == nil {
		return false
	}
	text := strings.ToLower(err.Error())
	for _, phrase := range lockErrorPhrases {
		if strings.Contains(text, phrase) {
			return true
		}
	}
	return false
}
