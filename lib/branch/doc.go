// Copyright 2026 The TimeLoop Authors
// SPDX-License-Identifier: Apache-2.0

// Package branch implements the branch DAG manager atop lib/store:
// creating, listing, merging, and deleting branches. A branch is
// stored as an ordinary store.Session (with a non-nil Parent) plus a
// store.Branch pointer record; lib/store's ReadEvents already
// implements the transparent parent-prefix-then-branch-local read
// view, so this package only owns the operations that mutate the DAG
// itself.
package branch
