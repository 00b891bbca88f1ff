// Copyright 2026 The TimeLoop Authors
// SPDX-License-Identifier: Apache-2.0

// Package binhash provides SHA256 content hashing for recorded file
// changes.
//
// A FileChange event carries a content_hash so a session can be replayed
// or diffed without re-reading every touched file from disk.
//
// The API surface is four functions:
//
//   - [HashFile] -- streams a file through SHA256, returning a [32]byte
//     digest with constant memory usage regardless of file size
//   - [HashReader] -- same, for an already-open io.Reader; [HashFile] is
//     built on it
//   - [FormatDigest] -- converts a [32]byte digest to its canonical
//     hex-encoded string representation, used in event payloads and logs
//   - [ParseDigest] -- parses a hex-encoded digest string back to a
//     [32]byte array, validating length and encoding
//
// This package has no dependencies on other timeloop packages.
package binhash
