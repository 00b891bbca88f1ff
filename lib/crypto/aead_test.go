// Copyright 2026 The TimeLoop Authors
// SPDX-License-Identifier: Apache-2.0

package crypto

import (
	"bytes"
	"errors"
	"testing"

	"github.com/timeloop-rec/timeloop/lib/secret"
)

func testKey(t *testing.T, seed byte) *secret.Buffer {
	t.Helper()
	raw := make([]byte, KeySize)
	for i := range raw {
		raw[i] = seed + byte(i)
	}
	buffer, err := secret.NewFromBytes(raw)
	if err != nil {
		t.Fatalf("secret.NewFromBytes: %v", err)
	}
	return buffer
}

func TestSealOpenRoundTrip(t *testing.T) {
	key := testKey(t, 0x01)
	defer key.Close()

	plaintext := []byte("terminal event payload")
	aad := []byte("e/session-id/00000000000000042")

	sealed, err := Seal(key, aad, plaintext)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	opened, err := Open(key, aad, sealed)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Errorf("Open = %q, want %q", opened, plaintext)
	}
}

func TestSealProducesDistinctNoncesEachCall(t *testing.T) {
	key := testKey(t, 0x02)
	defer key.Close()

	first, err := Seal(key, nil, []byte("same plaintext"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	second, err := Seal(key, nil, []byte("same plaintext"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	if bytes.Equal(first, second) {
		t.Error("two Seal calls with the same plaintext produced identical output; nonce reuse")
	}
}

func TestOpenRejectsTamperedCiphertext(t *testing.T) {
	key := testKey(t, 0x03)
	defer key.Close()

	sealed, err := Seal(key, []byte("aad"), []byte("plaintext"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	sealed[len(sealed)-1] ^= 0xFF

	if _, err := Open(key, []byte("aad"), sealed); !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("Open error = %v, want %v", err, ErrAuthenticationFailed)
	}
}

func TestOpenRejectsMismatchedAAD(t *testing.T) {
	key := testKey(t, 0x04)
	defer key.Close()

	sealed, err := Seal(key, []byte("key-a"), []byte("plaintext"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	if _, err := Open(key, []byte("key-b"), sealed); !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("Open with mismatched AAD error = %v, want %v", err, ErrAuthenticationFailed)
	}
}

func TestOpenRejectsWrongKey(t *testing.T) {
	key := testKey(t, 0x05)
	defer key.Close()
	otherKey := testKey(t, 0x99)
	defer otherKey.Close()

	sealed, err := Seal(key, nil, []byte("plaintext"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	if _, err := Open(otherKey, nil, sealed); !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("Open with wrong key error = %v, want %v", err, ErrAuthenticationFailed)
	}
}

func TestOpenRejectsTruncated(t *testing.T) {
	key := testKey(t, 0x06)
	defer key.Close()

	if _, err := Open(key, nil, []byte{0x01, 0x02}); !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("Open of truncated value error = %v, want %v", err, ErrAuthenticationFailed)
	}
}
