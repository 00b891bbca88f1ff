// Copyright 2026 The TimeLoop Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/timeloop-rec/timeloop/lib/codec"
	"github.com/timeloop-rec/timeloop/lib/crypto"
)

// formatVersion is the current on-disk metadata schema version.
const formatVersion = 1

// metaFile is the store directory's meta.toml contents: everything
// needed to reopen the store correctly without guessing (persistence
// format, and, if encrypted, the salt and KDF parameters needed to
// re-derive the key from a passphrase). None of these fields are
// secret, so they are stored in clear even in an encrypted store.
type metaFile struct {
	FormatVersion     int    `toml:"format_version"`
	PersistenceFormat string `toml:"persistence_format"`
	Encrypted         bool   `toml:"encrypted"`
	Compressed        bool   `toml:"compressed"`
	Salt              string `toml:"salt,omitempty"`
	Argon2MemoryKiB   uint32 `toml:"argon2_memory_kib,omitempty"`
	Argon2Iterations  uint32 `toml:"argon2_iterations,omitempty"`
	Argon2Parallelism uint8  `toml:"argon2_parallelism,omitempty"`
	Argon2OutputLen   uint32 `toml:"argon2_output_len,omitempty"`
}

func metaPath(dir string) string { return filepath.Join(dir, "meta.toml") }
func kvPath(dir string) string   { return filepath.Join(dir, "data.db") }

func readMetaFile(dir string) (*metaFile, error) {
	var meta metaFile
	if _, err := toml.DecodeFile(metaPath(dir), &meta); err != nil {
		return nil, fmt.Errorf("store: reading %s: %w", metaPath(dir), err)
	}
	return &meta, nil
}

func writeMetaFile(dir string, meta *metaFile) error {
	tmp, err := os.CreateTemp(dir, "meta.toml.*.tmp")
	if err != nil {
		return fmt.Errorf("store: creating meta tempfile: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := toml.NewEncoder(tmp).Encode(meta); err != nil {
		tmp.Close()
		return fmt.Errorf("store: encoding meta.toml: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("store: closing meta tempfile: %w", err)
	}
	if err := os.Rename(tmpPath, metaPath(dir)); err != nil {
		return fmt.Errorf("store: renaming meta.toml into place: %w", err)
	}
	return nil
}

func metaExists(dir string) bool {
	_, err := os.Stat(metaPath(dir))
	return err == nil
}

func newMetaFile(format codec.Format, encryption EncryptionOptions, compression CompressionMode) (*metaFile, crypto.Params, error) {
	meta := &metaFile{
		FormatVersion:     formatVersion,
		PersistenceFormat: format.String(),
		Compressed:        compression == CompressionZstd,
	}

	var params crypto.Params
	if encryption.Mode == EncryptionPassword {
		meta.Encrypted = true
		params = encryption.KDFParams
		if params.OutputLen == 0 {
			defaults, err := crypto.DefaultParams()
			if err != nil {
				return nil, crypto.Params{}, err
			}
			params = defaults
		} else if params.Salt == ([crypto.SaltSize]byte{}) {
			salt, err := crypto.NewSalt()
			if err != nil {
				return nil, crypto.Params{}, err
			}
			params.Salt = salt
		}
		meta.Salt = hex.EncodeToString(params.Salt[:])
		meta.Argon2MemoryKiB = params.MemoryKiB
		meta.Argon2Iterations = params.Iterations
		meta.Argon2Parallelism = params.Parallelism
		meta.Argon2OutputLen = params.OutputLen
	}

	return meta, params, nil
}

func (m *metaFile) kdfParams() (crypto.Params, error) {
	saltBytes, err := hex.DecodeString(m.Salt)
	if err != nil {
		return crypto.Params{}, fmt.Errorf("store: decoding persisted salt: %w", err)
	}
	if len(saltBytes) != crypto.SaltSize {
		return crypto.Params{}, fmt.Errorf("store: persisted salt is %d bytes, want %d", len(saltBytes), crypto.SaltSize)
	}
	var params crypto.Params
	copy(params.Salt[:], saltBytes)
	params.MemoryKiB = m.Argon2MemoryKiB
	params.Iterations = m.Argon2Iterations
	params.Parallelism = m.Argon2Parallelism
	params.OutputLen = m.Argon2OutputLen
	return params, nil
}
