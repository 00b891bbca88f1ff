// Copyright 2026 The TimeLoop Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec implements the store's two on-disk record formats.
//
// A store is opened in one of two [Format]s, fixed at creation and
// recorded in the store's metadata:
//
//   - [TextJSON] ("text_json"): encoding/json, human-readable, used for
//     debugging and for stores that prioritize inspectability over size.
//   - [CompactBinary] ("compact_binary"): CBOR using Core Deterministic
//     Encoding (RFC 8949 §4.2) — sorted map keys, smallest integer
//     encoding, no indefinite-length items — so the same logical value
//     always produces identical bytes. This matters because record
//     bytes are the input to encryption and to any future
//     content-addressed deduplication.
//
// Every record value (Event, Session, Branch) round-trips through
// either format, so [MarshalRecord] and [UnmarshalRecord] take a Format
// argument and dispatch to the matching backend ([Marshal] and
// [Unmarshal] are the CBOR backend itself). CBOR support is provided by
// fxamacker/cbor/v2; see cbor.go for the encoder/decoder configuration.
//
// # Struct Tag Rules
//
// A record type uses `json` struct tags exclusively. fxamacker/cbor v2
// reads `json` tags as fallback when `cbor` tags are absent, so a
// single tag set controls field naming and omitempty for both formats.
// This keeps every record type usable under either Format without
// duplicated tag maintenance.
package codec
