// Copyright 2026 The TimeLoop Authors
// SPDX-License-Identifier: Apache-2.0

package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/timeloop-rec/timeloop/lib/secret"
)

// Overhead is the total byte overhead per sealed record: 12 (nonce) +
// 16 (Poly1305 tag).
const Overhead = chacha20poly1305.NonceSize + chacha20poly1305.Overhead

// ErrAuthenticationFailed is returned by Open when the ciphertext fails
// AEAD authentication: wrong key, corrupted data, or additionalData
// that does not match what Seal was called with (most commonly, a
// record's bytes copied under a different KV key).
var ErrAuthenticationFailed = errors.New("crypto: authentication failed")

// Seal encrypts plaintext under key using ChaCha20-Poly1305 with a
// freshly generated random 12-byte nonce, returning
//
//	[nonce: 12 bytes][ciphertext+tag: len(plaintext)+16 bytes]
//
// additionalData is authenticated but not encrypted; the store passes
// the record's raw KV key bytes so that a sealed value copied under a
// different key fails to open, even though the underlying plaintext and
// derived key are unchanged.
func Seal(key *secret.Buffer, additionalData, plaintext []byte) ([]byte, error) {
	if key.Len() != KeySize {
		return nil, fmt.Errorf("crypto: key must be %d bytes, got %d", KeySize, key.Len())
	}

	aead, err := chacha20poly1305.New(key.Bytes())
	if err != nil {
		return nil, fmt.Errorf("crypto: creating cipher: %w", err)
	}

	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("crypto: generating nonce: %w", err)
	}

	sealed := make([]byte, chacha20poly1305.NonceSize, chacha20poly1305.NonceSize+len(plaintext)+aead.Overhead())
	copy(sealed, nonce)
	sealed = aead.Seal(sealed, nonce, plaintext, additionalData)
	return sealed, nil
}

// Open decrypts a value produced by Seal, verifying it against
// additionalData. Returns ErrAuthenticationFailed if the ciphertext is
// too short, has been tampered with, or was sealed under different
// additionalData or a different key.
func Open(key *secret.Buffer, additionalData, sealed []byte) ([]byte, error) {
	if key.Len() != KeySize {
		return nil, fmt.Errorf("crypto: key must be %d bytes, got %d", KeySize, key.Len())
	}
	if len(sealed) < Overhead {
		return nil, fmt.Errorf("%w: sealed value is %d bytes, minimum is %d", ErrAuthenticationFailed, len(sealed), Overhead)
	}

	aead, err := chacha20poly1305.New(key.Bytes())
	if err != nil {
		return nil, fmt.Errorf("crypto: creating cipher: %w", err)
	}

	nonce := sealed[:chacha20poly1305.NonceSize]
	ciphertext := sealed[chacha20poly1305.NonceSize:]

	plaintext, err := aead.Open(nil, nonce, ciphertext, additionalData)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}
	return plaintext, nil
}
