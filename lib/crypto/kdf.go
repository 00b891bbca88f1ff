// Copyright 2026 The TimeLoop Authors
// SPDX-License-Identifier: Apache-2.0

package crypto

import (
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"

	"github.com/timeloop-rec/timeloop/lib/secret"
)

// KeySize is the size in bytes of the derived store key, and of the
// ChaCha20-Poly1305 key it is used as.
const KeySize = 32

// SaltSize is the size in bytes of an Argon2id salt.
const SaltSize = 16

// Params holds the Argon2id parameters used to derive a store's key
// from its passphrase. Params are chosen once when a store is created
// and persisted in the store's cleartext metadata (meta.toml) so the
// same key can be re-derived on every subsequent open — Argon2id's
// memory-hardness only works as a defense if the parameters used to
// derive the key are known, not secret.
type Params struct {
	// MemoryKiB is the amount of memory used during derivation, in
	// kibibytes.
	MemoryKiB uint32
	// Iterations is the number of passes over memory.
	Iterations uint32
	// Parallelism is the number of parallel lanes.
	Parallelism uint8
	// OutputLen is the length in bytes of the derived key. Always
	// KeySize for this package's use, but recorded explicitly since it
	// is part of what a persisted Params value must reproduce.
	OutputLen uint32
	// Salt is the random salt mixed into the derivation. Generated once
	// at store creation via [NewSalt] and persisted alongside the other
	// parameters.
	Salt [SaltSize]byte
}

// DefaultParams returns TimeLoop's default Argon2id parameters: 64 MiB
// of memory, 3 iterations, 4 parallel lanes, and a 32-byte output key.
// These follow the OWASP-recommended floor for Argon2id used
// interactively (as opposed to server-side password hashing, which can
// afford much higher memory). A fresh random salt is generated on every
// call — callers creating a new store should call this once and persist
// the result.
func DefaultParams() (Params, error) {
	salt, err := NewSalt()
	if err != nil {
		return Params{}, err
	}
	return Params{
		MemoryKiB:   65536,
		Iterations:  3,
		Parallelism: 4,
		OutputLen:   KeySize,
		Salt:        salt,
	}, nil
}

// NewSalt generates a fresh random Argon2id salt.
func NewSalt() ([SaltSize]byte, error) {
	var salt [SaltSize]byte
	if _, err := io.ReadFull(rand.Reader, salt[:]); err != nil {
		return salt, fmt.Errorf("crypto: generating salt: %w", err)
	}
	return salt, nil
}

// DeriveKey runs Argon2id over passphrase with the given params,
// returning the derived key in a mmap-backed, mlock'd [secret.Buffer].
// The passphrase buffer is borrowed and not closed by this function;
// the caller owns its lifetime.
func DeriveKey(passphrase *secret.Buffer, params Params) (*secret.Buffer, error) {
	if params.OutputLen != KeySize {
		return nil, fmt.Errorf("crypto: derived key length must be %d, got %d", KeySize, params.OutputLen)
	}

	derived := argon2.IDKey(
		passphrase.Bytes(),
		params.Salt[:],
		params.Iterations,
		params.MemoryKiB,
		params.Parallelism,
		params.OutputLen,
	)

	buffer, err := secret.NewFromBytes(derived)
	if err != nil {
		secret.Zero(derived)
		return nil, fmt.Errorf("crypto: moving derived key into secret buffer: %w", err)
	}
	return buffer, nil
}
