// Copyright 2026 The TimeLoop Authors
// SPDX-License-Identifier: Apache-2.0

// Package crypto implements the store's at-rest encryption: an Argon2id
// key derivation function over the store passphrase, and a
// ChaCha20-Poly1305 AEAD envelope for individual KV records.
//
// This is the same two-step shape as lib/artifactstore's encryption in
// the pack this was learned from (HKDF root key -> per-purpose derived
// key -> AEAD blob with a bound identity as AAD), adapted to a
// passphrase-based single-writer store rather than a fleet-wide HKDF
// tree: there is one derived key per open store, derived once from the
// user's passphrase via Argon2id (deliberately slow and memory-hard,
// unlike HKDF, because here the input entropy is a human passphrase
// rather than an already-random master key), and every record is
// sealed independently with that same key.
//
// [DeriveKey] never caches its output — the store holds the returned
// [secret.Buffer] for its own lifetime and callers must Close it. [Seal]
// and [Open] use the record's KV key bytes as additional authenticated
// data, so a ciphertext copied to a different key is rejected as a
// forgery even though it decrypts successfully in isolation.
package crypto
